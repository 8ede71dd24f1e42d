package audit

import (
	"context"
	"log/slog"
	"sync"
)

// SlogStorage writes events as structured log records.
type SlogStorage struct {
	log *slog.Logger
}

// NewSlogStorage logs events through log under the "audit" group.
func NewSlogStorage(log *slog.Logger) *SlogStorage {
	return &SlogStorage{log: log}
}

// Store implements Storage.
func (s *SlogStorage) Store(ctx context.Context, events ...Event) error {
	for _, e := range events {
		level := slog.LevelInfo
		if e.Result != ResultSuccess {
			level = slog.LevelWarn
		}
		s.log.LogAttrs(ctx, level, "audit event",
			slog.Group("audit",
				slog.String("id", e.ID),
				slog.String("action", e.Action),
				slog.String("result", string(e.Result)),
				slog.String("user_id", e.UserID),
				slog.String("resource", e.Resource),
				slog.String("resource_id", e.ResourceID),
				slog.String("ip", e.IP),
				slog.String("error", e.Error),
				slog.Any("metadata", e.Metadata),
			),
		)
	}
	return nil
}

// MemoryStorage keeps events in memory. Intended for tests and local runs.
type MemoryStorage struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryStorage creates an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

// Store implements Storage.
func (m *MemoryStorage) Store(_ context.Context, events ...Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	return nil
}

// Events returns a copy of everything stored so far.
func (m *MemoryStorage) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// Actions returns stored action names in order.
func (m *MemoryStorage) Actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.Action)
	}
	return out
}

// MultiStorage fans events out to several storages, returning the first error.
func MultiStorage(storages ...Storage) Storage {
	return StorageFunc(func(ctx context.Context, events ...Event) error {
		for _, s := range storages {
			if err := s.Store(ctx, events...); err != nil {
				return err
			}
		}
		return nil
	})
}

var (
	_ Storage = (*SlogStorage)(nil)
	_ Storage = (*MemoryStorage)(nil)
)
