package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/pulse-control/ptc/internal/frametimer"
)

// Entry is a single audit record.
type Entry struct {
	Timestamp time.Time      `json:"ts"`
	Kind      string         `json:"kind"`
	Component string         `json:"component"`
	ConnID    string         `json:"connId,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
}

// Logger writes audit entries as JSON lines to a size-rotated file.
type Logger struct {
	mu  sync.Mutex
	out io.WriteCloser
}

// NewLogger creates a logger writing to <logDir>/audit.jsonl, rotating at
// 10 MB with three backups kept.
func NewLogger(logDir string) (*Logger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	return &Logger{
		out: &lumberjack.Logger{
			Filename:   filepath.Join(logDir, "audit.jsonl"),
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			Compress:   true,
		},
	}, nil
}

// NewLoggerWithWriter wraps an arbitrary writer; tests use a buffer.
func NewLoggerWithWriter(w io.WriteCloser) *Logger {
	return &Logger{out: w}
}

// ConnectionOpened records a new subscriber.
func (l *Logger) ConnectionOpened(connID, remoteAddr string) {
	l.write(Entry{
		Kind:      "connection_opened",
		Component: "telemetry",
		ConnID:    connID,
		Detail:    map[string]any{"remoteAddr": remoteAddr},
	})
}

// ConnectionClosed records a subscriber leaving or being dropped.
func (l *Logger) ConnectionClosed(connID, reason string) {
	l.write(Entry{
		Kind:      "connection_closed",
		Component: "telemetry",
		ConnID:    connID,
		Detail:    map[string]any{"reason": reason},
	})
}

// SendOverrun records a single send that exceeded the frame budget.
func (l *Logger) SendOverrun(connID string, took, budget time.Duration) {
	l.write(Entry{
		Kind:      "send_overrun",
		Component: "telemetry",
		ConnID:    connID,
		Detail: map[string]any{
			"tookMs":   float64(took) / float64(time.Millisecond),
			"budgetMs": float64(budget) / float64(time.Millisecond),
		},
	})
}

// FrameOverrun records a scheduler tick that exceeded its budget.
func (l *Logger) FrameOverrun(frameNumber uint64, m frametimer.Metrics) {
	l.write(Entry{
		Kind:      "frame_overrun",
		Component: "scheduler",
		Detail: map[string]any{
			"frame":       frameNumber,
			"durationMs":  float64(m.Duration) / float64(time.Millisecond),
			"budgetMs":    float64(m.Budget) / float64(time.Millisecond),
			"overrunByMs": float64(m.OverrunBy) / float64(time.Millisecond),
		},
	})
}

// Action records an API-level action and its outcome.
func (l *Logger) Action(action, identity, outcome string) {
	l.write(Entry{
		Kind:      "action",
		Component: "api",
		Detail:    map[string]any{"action": action, "identity": identity, "outcome": outcome},
	})
}

func (l *Logger) write(e Entry) {
	e.Timestamp = time.Now().UTC()

	data, err := json.Marshal(e)
	if err != nil {
		fmt.Fprintf(os.Stderr, "audit: failed to marshal entry: %v\n", err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.out.Write(append(data, '\n')); err != nil {
		fmt.Fprintf(os.Stderr, "audit: failed to write entry: %v\n", err)
	}
}

// Close closes the underlying writer.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.out.Close()
}
