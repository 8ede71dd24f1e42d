package pgstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/oauthcore/pkg/audit"
)

// AuditStorage writes audit events to oauth_audit_events.
type AuditStorage struct {
	db DBTX
}

// NewAuditStorage creates an audit.Storage over db.
func NewAuditStorage(db DBTX) *AuditStorage {
	return &AuditStorage{db: db}
}

const insertAuditEvent = `
INSERT INTO oauth_audit_events (id, user_id, action, resource, resource_id, result, error, ip, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

// Store inserts events in one batch.
func (s *AuditStorage) Store(ctx context.Context, events ...audit.Event) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range events {
		id, err := uuid.Parse(e.ID)
		if err != nil {
			id = uuid.New()
		}
		var meta []byte
		if len(e.Metadata) > 0 {
			if meta, err = json.Marshal(e.Metadata); err != nil {
				return fmt.Errorf("encode audit metadata: %w", err)
			}
		}
		batch.Queue(insertAuditEvent, id, e.UserID, e.Action, e.Resource, e.ResourceID,
			string(e.Result), e.Error, e.IP, meta, e.CreatedAt)
	}

	sender, ok := s.db.(interface {
		SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	})
	if !ok {
		for _, q := range batch.QueuedQueries {
			if _, err := s.db.Exec(ctx, q.SQL, q.Arguments...); err != nil {
				return fmt.Errorf("insert audit event: %w", err)
			}
		}
		return nil
	}

	res := sender.SendBatch(ctx, batch)
	defer res.Close()
	for range events {
		if _, err := res.Exec(); err != nil {
			return fmt.Errorf("insert audit event: %w", err)
		}
	}
	return nil
}

var _ audit.Storage = (*AuditStorage)(nil)
