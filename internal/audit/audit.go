// Package audit records error and activity events to the error-log table,
// independent of user-facing handling. Writes are best-effort: an
// unreachable store must never fail the request being audited.
package audit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ignite88-dev/finance-bot-cloud/internal/storage"
)

// Kind is a machine-readable event category.
type Kind string

const (
	KindMessageFailed      Kind = "message.failed"
	KindProviderFallback   Kind = "ai.provider_fallback"
	KindTransactionCreated Kind = "transaction.created"
	KindTransactionFailed  Kind = "transaction.failed"
	KindTransactionCancel  Kind = "transaction.canceled"
	KindSettingsChanged    Kind = "settings.changed"
	KindAggregateRepair    Kind = "aggregate.repaired"
)

// Event carries the data the logger formats and persists.
type Event struct {
	Kind    Kind
	ChatID  int64
	UserID  int64
	SheetID string
	Message string
	Err     error
}

// Logger writes audit events to zap and appends them to the error-log
// table when a sheet locator is known.
type Logger struct {
	store  storage.Storage
	logger *zap.Logger
}

func NewLogger(store storage.Storage, logger *zap.Logger) *Logger {
	return &Logger{store: store, logger: logger}
}

// Record logs the event and persists it. Persistence failures are logged
// and swallowed.
func (l *Logger) Record(ctx context.Context, evt Event) {
	fields := []zap.Field{
		zap.String("kind", string(evt.Kind)),
		zap.Int64("chat_id", evt.ChatID),
		zap.Int64("user_id", evt.UserID),
	}

	level := "info"
	if evt.Err != nil {
		level = "error"
		fields = append(fields, zap.Error(evt.Err))
		l.logger.Error(evt.Message, fields...)
	} else {
		l.logger.Info(evt.Message, fields...)
	}

	if evt.SheetID == "" {
		return
	}

	entry := &storage.ErrorLog{
		Timestamp: time.Now(),
		Level:     level,
		ChatID:    evt.ChatID,
		UserID:    evt.UserID,
		Action:    string(evt.Kind),
		Message:   evt.Message,
	}
	if evt.Err != nil {
		entry.ErrText = evt.Err.Error()
	}

	if err := l.store.AppendErrorLog(ctx, evt.SheetID, entry); err != nil {
		l.logger.Warn("Failed to persist audit event",
			zap.Error(err),
			zap.String("kind", string(evt.Kind)))
	}
}
