package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type contextExtractor func(context.Context) (string, bool)

// Logger builds events, fills them from context and hands them to storage.
type Logger struct {
	storage         Storage
	userIDExtractor contextExtractor
	ipExtractor     contextExtractor
	now             func() time.Time
}

// Option configures a Logger.
type Option func(*Logger)

// WithUserIDExtractor fills Event.UserID from the context when not set explicitly.
func WithUserIDExtractor(fn func(context.Context) (string, bool)) Option {
	return func(l *Logger) { l.userIDExtractor = fn }
}

// WithIPExtractor fills Event.IP from the context when not set explicitly.
func WithIPExtractor(fn func(context.Context) (string, bool)) Option {
	return func(l *Logger) { l.ipExtractor = fn }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Logger) {
		if now != nil {
			l.now = now
		}
	}
}

// NewLogger creates an audit logger.
func NewLogger(storage Storage, opts ...Option) (*Logger, error) {
	if storage == nil {
		return nil, ErrStorageRequired
	}
	l := &Logger{storage: storage, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Log records a successful action.
func (l *Logger) Log(ctx context.Context, action string, opts ...EventOption) error {
	return l.record(ctx, action, ResultSuccess, nil, opts)
}

// LogFailure records an action that was refused, such as a throttled request.
func (l *Logger) LogFailure(ctx context.Context, action string, opts ...EventOption) error {
	return l.record(ctx, action, ResultFailure, nil, opts)
}

// LogError records an action that failed with err.
func (l *Logger) LogError(ctx context.Context, action string, err error, opts ...EventOption) error {
	return l.record(ctx, action, ResultError, err, opts)
}

func (l *Logger) record(ctx context.Context, action string, result Result, cause error, opts []EventOption) error {
	event := Event{
		ID:        uuid.NewString(),
		Action:    action,
		Result:    result,
		CreatedAt: l.now().UTC(),
	}
	if cause != nil {
		event.Error = cause.Error()
	}

	if l.userIDExtractor != nil {
		if id, ok := l.userIDExtractor(ctx); ok {
			event.UserID = id
		}
	}
	if l.ipExtractor != nil {
		if ip, ok := l.ipExtractor(ctx); ok {
			event.IP = ip
		}
	}

	for _, opt := range opts {
		opt(&event)
	}

	if err := event.Validate(); err != nil {
		return err
	}
	return l.storage.Store(ctx, event)
}
