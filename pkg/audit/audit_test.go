package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestNewSlogAuditLogger(t *testing.T) {
	logger := NewSlogAuditLogger()
	if logger == nil {
		t.Fatal("NewSlogAuditLogger returned nil")
	}
}

func TestSlogAuditLogger_LogEvent(t *testing.T) {
	var buf bytes.Buffer
	logger := &SlogAuditLogger{
		logger: slog.New(slog.NewJSONHandler(&buf, nil)),
	}

	tests := []struct {
		name      string
		event     *AuditEvent
		contains  []string
		wantLevel string
	}{
		{
			name: "successful event",
			event: &AuditEvent{
				Timestamp: time.Now(),
				Level:     "INFO",
				Event:     EventApplianceUnlock,
				Result:    ResultSuccess,
				Profile:   "DEFAULT",
				Resource:  "https://10.0.0.5:443",
			},
			contains:  []string{"appliance.unlock", "success", "10.0.0.5"},
			wantLevel: `"level":"INFO"`,
		},
		{
			name: "failed event",
			event: &AuditEvent{
				Timestamp: time.Now(),
				Level:     "ERROR",
				Event:     EventApplianceFinalize,
				Result:    ResultFailed,
				Error:     "appliance is locked",
			},
			contains:  []string{"appliance.finalize", "failed", "appliance is locked"},
			wantLevel: `"level":"ERROR"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			logger.LogEvent(context.Background(), tt.event)

			output := buf.String()
			if output == "" {
				t.Fatal("No output from logger")
			}
			if !strings.Contains(output, tt.wantLevel) {
				t.Errorf("Expected output to contain %q, got: %s", tt.wantLevel, output)
			}
			for _, expected := range tt.contains {
				if !strings.Contains(output, expected) {
					t.Errorf("Expected output to contain %q, got: %s", expected, output)
				}
			}
		})
	}
}

type recordingLogger struct {
	events []*AuditEvent
}

func (r *recordingLogger) LogEvent(_ context.Context, event *AuditEvent) {
	r.events = append(r.events, event)
}

func TestLogApplianceStep(t *testing.T) {
	r := &recordingLogger{}

	LogApplianceStep(context.Background(), r, EventApplianceInitAuth, "DEFAULT", "https://10.0.0.5:443", 1500*time.Millisecond, nil)
	LogApplianceStep(context.Background(), r, EventApplianceFinalize, "lab", "", time.Second, errors.New("locked"))
	LogApplianceStep(context.Background(), nil, EventApplianceFinalize, "lab", "", time.Second, nil)

	if len(r.events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(r.events))
	}

	ok := r.events[0]
	if ok.Result != ResultSuccess || ok.Level != "INFO" || ok.DurationMs != 1500 || ok.Profile != "DEFAULT" {
		t.Errorf("Unexpected success event: %+v", ok)
	}

	failed := r.events[1]
	if failed.Result != ResultFailed || failed.Level != "ERROR" || failed.Error != "locked" {
		t.Errorf("Unexpected failure event: %+v", failed)
	}
}

func TestNoOpAuditLogger(t *testing.T) {
	logger := &NoOpAuditLogger{}
	logger.LogEvent(context.Background(), &AuditEvent{Event: EventApplianceUnlock})
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	if !config.Enabled {
		t.Error("Expected audit logging to be enabled by default")
	}
	if config.Store.BatchSize != 100 {
		t.Errorf("Expected batch size 100, got %d", config.Store.BatchSize)
	}
	if config.Store.Prefix != "audit-logs/" {
		t.Errorf("Expected prefix audit-logs/, got %q", config.Store.Prefix)
	}
}

type put struct {
	namespace, bucket, object string
	body                      []byte
}

type mockWriter struct {
	puts []put
	err  error
}

func (m *mockWriter) PutObject(_ context.Context, namespace, bucket, object string, body []byte) error {
	if m.err != nil {
		return m.err
	}
	m.puts = append(m.puts, put{namespace: namespace, bucket: bucket, object: object, body: body})
	return nil
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		store   ObjectWriter
		config  Config
		wantErr bool
		check   func(t *testing.T, l Logger)
	}{
		{
			name:   "disabled",
			config: Config{Enabled: false},
			check: func(t *testing.T, l Logger) {
				if _, ok := l.(*NoOpAuditLogger); !ok {
					t.Errorf("Expected NoOpAuditLogger, got %T", l)
				}
			},
		},
		{
			name:   "slog only",
			config: DefaultConfig(),
			check: func(t *testing.T, l Logger) {
				if _, ok := l.(*SlogAuditLogger); !ok {
					t.Errorf("Expected SlogAuditLogger, got %T", l)
				}
			},
		},
		{
			name:    "bucket without store",
			config:  Config{Enabled: true, Store: StoreConfig{Bucket: "audit"}},
			wantErr: true,
		},
		{
			name:   "bucket with store",
			store:  &mockWriter{},
			config: Config{Enabled: true, Store: StoreConfig{Bucket: "audit"}},
			check: func(t *testing.T, l Logger) {
				m, ok := l.(MultiLogger)
				if !ok || len(m) != 2 {
					t.Fatalf("Expected MultiLogger with 2 loggers, got %T", l)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.store, "ns", tt.config)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			tt.check(t, l)
		})
	}
}

func TestStoreAuditLogger_Batching(t *testing.T) {
	w := &mockWriter{}
	l, err := NewStoreAuditLogger(w, "axaxnpcrorw5", StoreConfig{Bucket: "audit", BatchSize: 2})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	l.now = func() time.Time { return time.Date(2024, 3, 9, 14, 0, 0, 0, time.UTC) }

	ctx := context.Background()
	l.LogEvent(ctx, &AuditEvent{Event: EventApplianceInitAuth, Result: ResultSuccess})
	if len(w.puts) != 0 {
		t.Fatalf("Expected no upload before the batch is full, got %d", len(w.puts))
	}

	l.LogEvent(ctx, &AuditEvent{Event: EventApplianceUnlock, Result: ResultSuccess})
	if len(w.puts) != 1 {
		t.Fatalf("Expected 1 upload, got %d", len(w.puts))
	}

	first := w.puts[0]
	if first.namespace != "axaxnpcrorw5" || first.bucket != "audit" {
		t.Errorf("Unexpected destination %s/%s", first.namespace, first.bucket)
	}
	wantKey := "audit-logs/year=2024/month=03/day=09/hour=14/audit-events-1709992800-002.json"
	if first.object != wantKey {
		t.Errorf("Expected key %q, got %q", wantKey, first.object)
	}

	var batch struct {
		Events    []AuditEvent `json:"events"`
		BatchInfo struct {
			Count int `json:"count"`
		} `json:"batch_info"`
	}
	if err := json.Unmarshal(first.body, &batch); err != nil {
		t.Fatalf("Failed to decode batch: %v", err)
	}
	if batch.BatchInfo.Count != 2 || batch.Events[1].Event != EventApplianceUnlock {
		t.Errorf("Unexpected batch: %+v", batch)
	}

	l.LogEvent(ctx, &AuditEvent{Event: EventApplianceFinalize})
	if err := Close(ctx, MultiLogger{&NoOpAuditLogger{}, l}); err != nil {
		t.Fatalf("Unexpected error on close: %v", err)
	}
	if len(w.puts) != 2 {
		t.Fatalf("Expected remaining event to be flushed on close, got %d uploads", len(w.puts))
	}

	if err := l.Close(ctx); err != nil {
		t.Fatalf("Closing an empty logger should not fail: %v", err)
	}
	if len(w.puts) != 2 {
		t.Errorf("Expected no upload for an empty buffer, got %d", len(w.puts))
	}
}

func TestStoreAuditLogger_UploadError(t *testing.T) {
	w := &mockWriter{err: errors.New("forbidden")}
	l, err := NewStoreAuditLogger(w, "ns", StoreConfig{Bucket: "audit", BatchSize: 10})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	l.LogEvent(context.Background(), &AuditEvent{Event: EventApplianceUnregister})
	err = l.Flush(context.Background())
	if err == nil || !strings.Contains(err.Error(), "forbidden") {
		t.Errorf("Expected upload error, got %v", err)
	}
}
