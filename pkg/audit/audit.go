package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// Event types for audit logging
const (
	EventApplianceInitAuth            = "appliance.init_auth"
	EventApplianceConfigureEncryption = "appliance.configure_encryption"
	EventApplianceUnlock              = "appliance.unlock"
	EventApplianceFinalize            = "appliance.finalize"
	EventApplianceUnregister          = "appliance.unregister"
)

// Result types
const (
	ResultSuccess = "success"
	ResultFailed  = "failed"
)

// AuditEvent represents a single audit log entry
type AuditEvent struct {
	Timestamp  time.Time `json:"timestamp"`
	Level      string    `json:"level"`
	Event      string    `json:"event"`
	Result     string    `json:"result"`
	Profile    string    `json:"profile,omitempty"`
	User       string    `json:"user,omitempty"`
	Resource   string    `json:"resource,omitempty"`
	DurationMs int64     `json:"duration_ms,omitempty"`
	Error      string    `json:"error,omitempty"`
	Hostname   string    `json:"hostname,omitempty"`
}

// Logger interface for audit logging
type Logger interface {
	LogEvent(ctx context.Context, event *AuditEvent)
}

// SlogAuditLogger implements audit logging using structured logging
type SlogAuditLogger struct {
	logger *slog.Logger
}

// NewSlogAuditLogger creates a new audit logger using slog
func NewSlogAuditLogger() *SlogAuditLogger {
	return &SlogAuditLogger{
		logger: slog.Default(),
	}
}

// LogEvent logs an audit event using structured logging
func (l *SlogAuditLogger) LogEvent(ctx context.Context, event *AuditEvent) {
	eventJSON, err := json.Marshal(event)
	if err != nil {
		l.logger.Error("failed to marshal audit event", slog.String("err", err.Error()))
		return
	}

	if event.Result == ResultFailed {
		l.logger.Error("audit event", slog.String("audit_data", string(eventJSON)))
	} else {
		l.logger.Info("audit event", slog.String("audit_data", string(eventJSON)))
	}
}

// NoOpAuditLogger discards all audit events
type NoOpAuditLogger struct{}

func (n *NoOpAuditLogger) LogEvent(ctx context.Context, event *AuditEvent) {}

// MultiLogger fans an event out to every logger.
type MultiLogger []Logger

func (m MultiLogger) LogEvent(ctx context.Context, event *AuditEvent) {
	for _, l := range m {
		l.LogEvent(ctx, event)
	}
}

// LogApplianceStep records the result of one appliance bring-up step.
func LogApplianceStep(ctx context.Context, logger Logger, event, profile, resource string, duration time.Duration, err error) {
	if logger == nil {
		return
	}

	e := &AuditEvent{
		Timestamp:  time.Now(),
		Level:      "INFO",
		Event:      event,
		Result:     ResultSuccess,
		Profile:    profile,
		Resource:   resource,
		DurationMs: duration.Milliseconds(),
	}
	if err != nil {
		e.Level = "ERROR"
		e.Result = ResultFailed
		e.Error = err.Error()
	}
	logger.LogEvent(ctx, e)
}
