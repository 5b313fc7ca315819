package testutil

import (
	"fmt"
	"strings"
	"sync"
)

// LogEntry is one captured log call.
type LogEntry struct {
	Level string
	Msg   string
	Args  []any
}

// Logger captures log calls for assertions. Safe for concurrent use.
type Logger struct {
	mu      sync.Mutex
	entries []LogEntry
}

func (l *Logger) add(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, LogEntry{Level: level, Msg: msg, Args: args})
}

func (l *Logger) Debug(msg string, args ...any) { l.add("debug", msg, args) }
func (l *Logger) Info(msg string, args ...any)  { l.add("info", msg, args) }
func (l *Logger) Warn(msg string, args ...any)  { l.add("warn", msg, args) }
func (l *Logger) Error(msg string, args ...any) { l.add("error", msg, args) }

// Entries returns a copy of the captured entries.
func (l *Logger) Entries() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]LogEntry(nil), l.entries...)
}

// Has reports whether a message containing substr was logged at level.
func (l *Logger) Has(level, substr string) bool {
	for _, e := range l.Entries() {
		if e.Level == level && strings.Contains(e.Msg, substr) {
			return true
		}
	}
	return false
}

// String renders the captured log for failure messages.
func (l *Logger) String() string {
	var b strings.Builder
	for _, e := range l.Entries() {
		fmt.Fprintf(&b, "%s %s %v\n", e.Level, e.Msg, e.Args)
	}
	return b.String()
}
