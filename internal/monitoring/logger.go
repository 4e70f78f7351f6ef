// Package monitoring holds the package-level progress logger used by the
// pipeline and providers.
package monitoring

import (
	"fmt"
	"log"
	"sync"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger and returns the previous one.
// Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) func(format string, v ...interface{}) {
	prev := Logf
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return prev
	}
	Logf = f
	return prev
}

// Recorder collects formatted log lines. Use Capture to install one.
type Recorder struct {
	mu    sync.Mutex
	lines []string
}

// Lines returns a copy of the recorded lines.
func (r *Recorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.lines))
	copy(out, r.lines)
	return out
}

// Capture redirects Logf into a Recorder until restore is called.
func Capture() (rec *Recorder, restore func()) {
	rec = &Recorder{}
	prev := SetLogger(func(format string, v ...interface{}) {
		rec.mu.Lock()
		rec.lines = append(rec.lines, fmt.Sprintf(format, v...))
		rec.mu.Unlock()
	})
	return rec, func() { Logf = prev }
}
