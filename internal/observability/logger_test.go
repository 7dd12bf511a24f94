package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLogger_WritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	dir := t.TempDir()
	l := NewLoggerTo(&buf, dir)

	l.LogToolCall("chat-1", "q-1", "execute_sql", "SELECT 1")
	l.LogLLM("chat-1", "q-1", "prompt", "response")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}

	var evt Event
	if err := json.Unmarshal([]byte(lines[0]), &evt); err != nil {
		t.Fatalf("line is not JSON: %v", err)
	}
	if evt.Type != EventTypeToolCall || evt.ChatID != "chat-1" || evt.TaskID != "q-1" {
		t.Errorf("unexpected event: %+v", evt)
	}
	if evt.Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}

	data, err := os.ReadFile(filepath.Join(dir, "llm.jsonl"))
	if err != nil {
		t.Fatalf("expected llm transcript file: %v", err)
	}
	if !strings.Contains(string(data), `"response":"response"`) {
		t.Errorf("unexpected transcript: %s", data)
	}
}

func TestLogger_NilDiscards(t *testing.T) {
	var l *Logger
	l.LogHeartbeat(nil)
}

func TestBeginRequest_Counters(t *testing.T) {
	before := GetStatus()
	done := BeginRequest("k2: show rows")
	if s := GetStatus(); s.Active != before.Active+1 || s.State != StateServing {
		t.Errorf("expected an active request, got %+v", s)
	}
	done(true)

	after := GetStatus()
	if after.Served != before.Served+1 || after.Failed != before.Failed+1 {
		t.Errorf("unexpected counters: before %+v after %+v", before, after)
	}
	if after.Active != before.Active {
		t.Errorf("expected active to return to %d, got %d", before.Active, after.Active)
	}
}
