// Package logging provides a small run-scoped logger, grounded on the
// teacher's habit of prefixing ad hoc log.Printf/fmt.Printf calls with
// a component tag (see internal/webclient's "[webclient] ..." style):
// here every line is prefixed with the first 8 characters of the
// run's UUID so that successive
// or concurrent challenge runs in one process are distinguishable in
// the log stream.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/google/uuid"
)

// Logger wraps a standard library *log.Logger with a fixed run ID
// prefix.
type Logger struct {
	runID string
	std   *log.Logger
}

// New returns a Logger writing to w, stamped with a fresh run ID.
func New(w io.Writer) *Logger {
	return &Logger{
		runID: uuid.NewString(),
		std:   log.New(w, "", log.LstdFlags),
	}
}

// Default returns a Logger writing to stderr.
func Default() *Logger { return New(os.Stderr) }

// RunID returns the full correlation ID; every line this logger emits
// carries its first 8 characters.
func (l *Logger) RunID() string { return l.runID }

// Infof logs a formatted line tagged with the component name and the
// run ID.
func (l *Logger) Infof(component, format string, args ...any) {
	l.std.Printf("[%s %s] %s", l.runID[:8], component, fmt.Sprintf(format, args...))
}

// Errorf logs a formatted error line.
func (l *Logger) Errorf(component, format string, args ...any) {
	l.std.Printf("[%s %s] ERROR %s", l.runID[:8], component, fmt.Sprintf(format, args...))
}
