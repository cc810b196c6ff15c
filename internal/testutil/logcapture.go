package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

// LogCapture collects slog JSON output so tests can assert on it.
// Safe for loggers used from several goroutines.
type LogCapture struct {
	mu     sync.Mutex
	buffer bytes.Buffer
	logger *slog.Logger
}

// LogEntry is one parsed log line.
type LogEntry struct {
	Level   string
	Message string
	Fields  map[string]interface{}
}

// NewLogCapture creates a capture at debug level.
func NewLogCapture() *LogCapture {
	lc := &LogCapture{}
	lc.logger = slog.New(slog.NewJSONHandler(lc, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return lc
}

// Logger returns the slog.Logger that writes to this capture.
func (lc *LogCapture) Logger() *slog.Logger {
	return lc.logger
}

func (lc *LogCapture) Write(p []byte) (int, error) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.buffer.Write(p)
}

// Entries parses everything captured so far.
func (lc *LogCapture) Entries() []LogEntry {
	lc.mu.Lock()
	data := append([]byte(nil), lc.buffer.Bytes()...)
	lc.mu.Unlock()

	var entries []LogEntry
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		if len(line) == 0 {
			continue
		}
		var raw map[string]interface{}
		if err := json.Unmarshal(line, &raw); err != nil {
			continue
		}
		entry := LogEntry{Fields: make(map[string]interface{})}
		for k, v := range raw {
			switch k {
			case "level":
				entry.Level, _ = v.(string)
			case "msg":
				entry.Message, _ = v.(string)
			case "time":
			default:
				entry.Fields[k] = v
			}
		}
		entries = append(entries, entry)
	}
	return entries
}

// Find returns entries matching the level (any if empty) and message substring.
func (lc *LogCapture) Find(level, msgSubstring string) []LogEntry {
	var results []LogEntry
	for _, entry := range lc.Entries() {
		if (level == "" || strings.EqualFold(entry.Level, level)) &&
			strings.Contains(entry.Message, msgSubstring) {
			results = append(results, entry)
		}
	}
	return results
}

// AssertLogContains fails the test unless an entry with level and message substring exists.
func AssertLogContains(t *testing.T, lc *LogCapture, level, msg string) LogEntry {
	t.Helper()
	found := lc.Find(level, msg)
	if len(found) == 0 {
		t.Fatalf("no log entry found with level=%q msg containing %q. Entries: %d", level, msg, len(lc.Entries()))
	}
	return found[0]
}

// AssertLogHasField fails the test unless some entry carries key=value.
func AssertLogHasField(t *testing.T, lc *LogCapture, key string, value interface{}) {
	t.Helper()
	for _, entry := range lc.Entries() {
		if v, ok := entry.Fields[key]; ok && fmt.Sprint(v) == fmt.Sprint(value) {
			return
		}
	}
	t.Fatalf("no log entry found with field %q=%v", key, value)
}
