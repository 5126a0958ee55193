package testutil

import (
	"sync"
)

// WarnRecorder implements the small logging interfaces used by the core
// packages and records every message.
type WarnRecorder struct {
	mu       sync.Mutex
	warnings []string
	debugs   []string
}

func (l *WarnRecorder) Warn(msg string, keyvals ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warnings = append(l.warnings, msg)
}

func (l *WarnRecorder) Debug(msg string, keyvals ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.debugs = append(l.debugs, msg)
}

func (l *WarnRecorder) Info(msg string, keyvals ...interface{}) {}

// Warnings returns a copy of the recorded warn messages.
func (l *WarnRecorder) Warnings() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.warnings))
	copy(out, l.warnings)
	return out
}

// Debugs returns a copy of the recorded debug messages.
func (l *WarnRecorder) Debugs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.debugs))
	copy(out, l.debugs)
	return out
}
