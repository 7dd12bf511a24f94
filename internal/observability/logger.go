package observability

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypeRequest    EventType = "request"
	EventTypePlan       EventType = "plan"
	EventTypeFallback   EventType = "fallback"
	EventTypeToolCall   EventType = "tool_call"
	EventTypeToolResult EventType = "tool_result"
	EventTypeCache      EventType = "cache"
	EventTypeLLM        EventType = "llm"
	EventTypeHeartbeat  EventType = "heartbeat"
)

// Event represents a structured log entry.
type Event struct {
	Type      EventType `json:"type"`
	ChatID    string    `json:"chat_id,omitempty"`
	TaskID    string    `json:"task_id,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Logger handles structured logging. A nil *Logger discards every event.
type Logger struct {
	mu         sync.Mutex
	out        io.Writer
	llmLogPath string
	maxSize    int64
}

// NewLoggerTo writes events to out and llm transcripts under logDir.
func NewLoggerTo(out io.Writer, logDir string) *Logger {
	return &Logger{
		out:        out,
		llmLogPath: filepath.Join(logDir, "llm.jsonl"),
		maxSize:    10 * 1024 * 1024, // 10MB
	}
}

// Log emits a structured JSON event, one per line.
func (l *Logger) Log(evt Event) {
	if l == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		data = []byte(fmt.Sprintf("{\"error\": %q}", "failed to marshal event: "+err.Error()))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.out, string(data))

	if evt.Type == EventTypeLLM {
		l.writeToFile(data)
	}
}

func (l *Logger) writeToFile(data []byte) {
	if err := os.MkdirAll(filepath.Dir(l.llmLogPath), 0755); err != nil {
		log.Printf("failed to create log directory: %v", err)
		return
	}

	info, err := os.Stat(l.llmLogPath)
	if err == nil && info.Size() > l.maxSize {
		l.rotateLogs()
	}

	f, err := os.OpenFile(l.llmLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("failed to open log file: %v", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		log.Printf("failed to write to log file: %v", err)
	}
}

func (l *Logger) rotateLogs() {
	// Simple rotation: keep one .old file
	oldPath := l.llmLogPath + ".old"
	_ = os.Remove(oldPath)
	_ = os.Rename(l.llmLogPath, oldPath)
}

// Helper methods for common events

func (l *Logger) LogRequest(chatID, taskID, table, message string) {
	l.Log(Event{
		Type:   EventTypeRequest,
		ChatID: chatID,
		TaskID: taskID,
		Data: map[string]string{
			"table":   table,
			"message": message,
		},
	})
}

func (l *Logger) LogPlan(chatID, taskID string, plan any) {
	l.Log(Event{
		Type:   EventTypePlan,
		ChatID: chatID,
		TaskID: taskID,
		Data:   plan,
	})
}

func (l *Logger) LogFallback(chatID, taskID, reason string) {
	l.Log(Event{
		Type:   EventTypeFallback,
		ChatID: chatID,
		TaskID: taskID,
		Data:   map[string]string{"reason": reason},
	})
}

func (l *Logger) LogToolCall(chatID, taskID, tool, args string) {
	l.Log(Event{
		Type:   EventTypeToolCall,
		ChatID: chatID,
		TaskID: taskID,
		Data: map[string]string{
			"tool": tool,
			"args": args,
		},
	})
}

func (l *Logger) LogToolResult(chatID, taskID, tool string, success bool, detail string) {
	l.Log(Event{
		Type:   EventTypeToolResult,
		ChatID: chatID,
		TaskID: taskID,
		Data: map[string]any{
			"tool":    tool,
			"success": success,
			"detail":  detail,
		},
	})
}

func (l *Logger) LogCache(taskID, action string, rows int) {
	l.Log(Event{
		Type:   EventTypeCache,
		TaskID: taskID,
		Data: map[string]any{
			"action": action,
			"rows":   rows,
		},
	})
}

func (l *Logger) LogHeartbeat(data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	data["status"] = "alive"
	l.Log(Event{
		Type: EventTypeHeartbeat,
		Data: data,
	})
}

func (l *Logger) LogLLM(chatID, taskID string, prompt any, response string) {
	l.Log(Event{
		Type:   EventTypeLLM,
		ChatID: chatID,
		TaskID: taskID,
		Data: map[string]any{
			"prompt":   prompt,
			"response": response,
		},
	})
}
