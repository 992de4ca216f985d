package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// AuditEventType categorizes audit events.
type AuditEventType string

const (
	AuditEventBuildStart  AuditEventType = "build.start"
	AuditEventBuildEnd    AuditEventType = "build.end"
	AuditEventEntryFailed AuditEventType = "entry.failed"
	AuditEventFileWrite   AuditEventType = "file.write"
	AuditEventWarning     AuditEventType = "warning"
	AuditEventGraphStore  AuditEventType = "graph.store"
)

// AuditEvent is one line of the audit log.
type AuditEvent struct {
	Timestamp   time.Time      `json:"timestamp"`
	EventType   AuditEventType `json:"event_type"`
	SessionID   string         `json:"session_id"`
	TraceID     string         `json:"trace_id,omitempty"`
	Path        string         `json:"path,omitempty"`
	Success     bool           `json:"success"`
	Duration    time.Duration  `json:"duration_ms,omitempty"`
	Message     string         `json:"message,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	ErrorDetail string         `json:"error_detail,omitempty"`
}

// AuditLogger writes build events as JSON lines.
type AuditLogger struct {
	mu        sync.Mutex
	writer    io.Writer
	sessionID string
	enabled   bool
}

// AuditConfig configures the audit logger.
type AuditConfig struct {
	Enabled    bool
	OutputPath string // File path or "stdout"/"stderr"
	SessionID  string
}

// NewAuditLogger creates an audit logger. A disabled config yields a logger
// that drops every event.
func NewAuditLogger(config *AuditConfig) (*AuditLogger, error) {
	if config == nil || !config.Enabled {
		return &AuditLogger{}, nil
	}

	var writer io.Writer
	switch config.OutputPath {
	case "stdout", "":
		writer = os.Stdout
	case "stderr":
		writer = os.Stderr
	default:
		f, err := os.OpenFile(config.OutputPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		writer = f
	}
	return newAuditLogger(writer, config.SessionID), nil
}

// NewAuditWriter returns an enabled audit logger writing to w.
func NewAuditWriter(w io.Writer, sessionID string) *AuditLogger {
	return newAuditLogger(w, sessionID)
}

func newAuditLogger(w io.Writer, sessionID string) *AuditLogger {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	return &AuditLogger{writer: w, sessionID: sessionID, enabled: true}
}

// SessionID identifies every event written by this logger.
func (l *AuditLogger) SessionID() string { return l.sessionID }

// Log writes an audit event.
func (l *AuditLogger) Log(ctx context.Context, event *AuditEvent) error {
	if !l.enabled {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.SessionID == "" {
		event.SessionID = l.sessionID
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		event.TraceID = sc.TraceID().String()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	_, err = fmt.Fprintf(l.writer, "%s\n", data)
	return err
}

func (l *AuditLogger) LogBuildStart(ctx context.Context, root string, entries []string) {
	_ = l.Log(ctx, &AuditEvent{
		EventType: AuditEventBuildStart,
		Path:      root,
		Success:   true,
		Details:   map[string]any{"entries": entries},
	})
}

func (l *AuditLogger) LogBuildEnd(ctx context.Context, root string, duration time.Duration, outputs, failed, warnings int) {
	_ = l.Log(ctx, &AuditEvent{
		EventType: AuditEventBuildEnd,
		Path:      root,
		Success:   failed == 0,
		Duration:  duration,
		Details: map[string]any{
			"outputs":  outputs,
			"failed":   failed,
			"warnings": warnings,
		},
	})
}

func (l *AuditLogger) LogEntryFailed(ctx context.Context, path string, err error) {
	_ = l.Log(ctx, &AuditEvent{
		EventType:   AuditEventEntryFailed,
		Path:        path,
		ErrorDetail: err.Error(),
	})
}

func (l *AuditLogger) LogFileWrite(ctx context.Context, path string, size int) {
	_ = l.Log(ctx, &AuditEvent{
		EventType: AuditEventFileWrite,
		Path:      path,
		Success:   true,
		Details:   map[string]any{"bytes": size},
	})
}

func (l *AuditLogger) LogWarning(ctx context.Context, kind, path, referrer, message string) {
	_ = l.Log(ctx, &AuditEvent{
		EventType: AuditEventWarning,
		Path:      path,
		Success:   true,
		Message:   message,
		Details:   map[string]any{"kind": kind, "referrer": referrer},
	})
}

func (l *AuditLogger) LogGraphStore(ctx context.Context, entry string, nodes, edges int, err error) {
	event := &AuditEvent{
		EventType: AuditEventGraphStore,
		Path:      entry,
		Success:   err == nil,
		Details:   map[string]any{"nodes": nodes, "edges": edges},
	}
	if err != nil {
		event.ErrorDetail = err.Error()
	}
	_ = l.Log(ctx, event)
}

// Close closes the audit logger (if using a file).
func (l *AuditLogger) Close() error {
	if closer, ok := l.writer.(io.Closer); ok {
		if closer != os.Stdout && closer != os.Stderr {
			return closer.Close()
		}
	}
	return nil
}
