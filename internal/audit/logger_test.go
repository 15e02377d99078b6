package audit

import (
	"bufio"
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/pulse-control/ptc/internal/frametimer"
)

type closableBuffer struct {
	bytes.Buffer
}

func (b *closableBuffer) Close() error { return nil }

func TestEntriesAreJSONLines(t *testing.T) {
	buf := &closableBuffer{}
	logger := NewLoggerWithWriter(buf)

	logger.ConnectionOpened("c1", "10.0.0.1:5000")
	logger.SendOverrun("c1", 25*time.Millisecond, 16*time.Millisecond)
	logger.FrameOverrun(7, frametimer.Metrics{
		Duration:  20 * time.Millisecond,
		Budget:    16 * time.Millisecond,
		Overrun:   true,
		OverrunBy: 4 * time.Millisecond,
	})
	logger.ConnectionClosed("c1", "unregistered")
	logger.Action("session.create", "default", "SUCCESS")

	scanner := bufio.NewScanner(&buf.Buffer)
	var entries []Entry
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("line is not valid JSON: %v", err)
		}
		entries = append(entries, e)
	}

	if len(entries) != 5 {
		t.Fatalf("wrote %d entries, want 5", len(entries))
	}

	wantKinds := []string{"connection_opened", "send_overrun", "frame_overrun", "connection_closed", "action"}
	for i, kind := range wantKinds {
		if entries[i].Kind != kind {
			t.Errorf("entry %d kind = %q, want %q", i, entries[i].Kind, kind)
		}
		if entries[i].Timestamp.IsZero() {
			t.Errorf("entry %d has zero timestamp", i)
		}
	}

	if entries[2].Detail["frame"].(float64) != 7 {
		t.Errorf("frame_overrun detail = %v", entries[2].Detail)
	}
}

func TestNewLoggerCreatesDirectory(t *testing.T) {
	dir := t.TempDir() + "/nested/logs"
	logger, err := NewLogger(dir)
	if err != nil {
		t.Fatalf("NewLogger() failed: %v", err)
	}
	logger.Action("test", "default", "SUCCESS")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
}
