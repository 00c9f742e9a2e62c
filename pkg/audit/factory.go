package audit

import (
	"context"
	"fmt"
	"log/slog"
)

// Closer is implemented by loggers that buffer events.
type Closer interface {
	Close(ctx context.Context) error
}

// New returns the audit logger described by config. Events always go to slog; when a
// bucket is configured they are archived to the object store as well.
func New(store ObjectWriter, namespace string, config Config) (Logger, error) {
	logger := slog.Default()

	if !config.Enabled {
		logger.Debug("audit logging is disabled, using no-op logger")
		return &NoOpAuditLogger{}, nil
	}

	if config.Store.Bucket == "" {
		return NewSlogAuditLogger(), nil
	}

	if store == nil {
		return nil, fmt.Errorf("object store not available for audit logging")
	}

	logger.Debug("enabling object store audit logging",
		slog.String("bucket", config.Store.Bucket),
		slog.String("prefix", config.Store.Prefix))

	storeLogger, err := NewStoreAuditLogger(store, namespace, config.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to create object store audit logger: %w", err)
	}

	return MultiLogger{NewSlogAuditLogger(), storeLogger}, nil
}

// Close flushes every buffering logger behind l.
func Close(ctx context.Context, l Logger) error {
	switch v := l.(type) {
	case Closer:
		return v.Close(ctx)
	case MultiLogger:
		for _, inner := range v {
			if err := Close(ctx, inner); err != nil {
				return err
			}
		}
	}
	return nil
}
