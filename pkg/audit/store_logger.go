package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ObjectWriter is the part of an object store the audit logger writes through.
type ObjectWriter interface {
	PutObject(ctx context.Context, namespace, bucket, object string, body []byte) error
}

// StoreAuditLogger buffers events and writes them as one JSON object per batch. Events are
// flushed when the batch is full and on Close, on the calling goroutine.
type StoreAuditLogger struct {
	store     ObjectWriter
	namespace string
	bucket    string
	prefix    string
	batchSize int
	now       func() time.Time
	logger    *slog.Logger

	mu     sync.Mutex
	buffer []*AuditEvent
}

func NewStoreAuditLogger(store ObjectWriter, namespace string, config StoreConfig) (*StoreAuditLogger, error) {
	config = config.withDefaults()
	if config.Bucket == "" {
		return nil, fmt.Errorf("bucket must be specified for object store audit logging")
	}

	return &StoreAuditLogger{
		store:     store,
		namespace: namespace,
		bucket:    config.Bucket,
		prefix:    config.Prefix,
		batchSize: config.BatchSize,
		now:       time.Now,
		logger:    slog.Default(),
		buffer:    make([]*AuditEvent, 0, config.BatchSize),
	}, nil
}

func (l *StoreAuditLogger) LogEvent(ctx context.Context, event *AuditEvent) {
	l.mu.Lock()
	l.buffer = append(l.buffer, event)
	full := len(l.buffer) >= l.batchSize
	l.mu.Unlock()

	if full {
		if err := l.Flush(ctx); err != nil {
			l.logger.Error("failed to upload audit events", slog.String("err", err.Error()))
		}
	}
}

func (l *StoreAuditLogger) Flush(ctx context.Context) error {
	l.mu.Lock()
	if len(l.buffer) == 0 {
		l.mu.Unlock()
		return nil
	}
	events := make([]*AuditEvent, len(l.buffer))
	copy(events, l.buffer)
	l.buffer = l.buffer[:0]
	l.mu.Unlock()

	now := l.now().UTC()
	batch := struct {
		Events    []*AuditEvent `json:"events"`
		BatchInfo struct {
			Count     int       `json:"count"`
			Timestamp time.Time `json:"timestamp"`
		} `json:"batch_info"`
	}{
		Events: events,
	}
	batch.BatchInfo.Count = len(events)
	batch.BatchInfo.Timestamp = now

	data, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("failed to marshal audit events: %w", err)
	}

	key := fmt.Sprintf("%syear=%d/month=%02d/day=%02d/hour=%02d/audit-events-%d-%03d.json",
		l.prefix,
		now.Year(), now.Month(), now.Day(), now.Hour(),
		now.Unix(),
		len(events))

	if err := l.store.PutObject(ctx, l.namespace, l.bucket, key, data); err != nil {
		return fmt.Errorf("failed to upload audit events to %s/%s: %w", l.bucket, key, err)
	}

	l.logger.Debug("uploaded audit events",
		slog.String("key", key),
		slog.Int("event_count", len(events)))
	return nil
}

// Close flushes whatever is left in the buffer.
func (l *StoreAuditLogger) Close(ctx context.Context) error {
	return l.Flush(ctx)
}
