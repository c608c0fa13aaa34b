// Package applog sets up the process-wide logger (A2): a logrus
// logger writing to stderr through a mutex-guarded, TTY-aware writer,
// grounded on the teacher's own consoleWriter (cmd/ui.go) and its
// colorable/isatty-driven TextFormatter setup in cmd/root.go.
package applog

import (
	"io"
	"os"
	"sync"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

// consoleWriter syncs writes to the underlying stream with a mutex, so
// a stdio command goroutine logging a failure never interleaves with
// another goroutine's log line mid-write — the same guard
// internal/protocol's Writer applies around result lines.
type consoleWriter struct {
	out   io.Writer
	mutex *sync.Mutex
}

func (w *consoleWriter) Write(p []byte) (int, error) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.out.Write(p)
}

// New builds a logger writing to stderr, with colors enabled only when
// stderr is a real terminal (respecting NO_COLOR, same as the
// teacher). verbose raises the level to Debug; otherwise it's Info.
func New(verbose bool) *logrus.Logger {
	isTTY := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	_, noColor := os.LookupEnv("NO_COLOR")

	level := logrus.InfoLevel
	if verbose {
		level = logrus.DebugLevel
	}

	return &logrus.Logger{
		Out: &consoleWriter{out: colorable.NewColorable(os.Stderr), mutex: &sync.Mutex{}},
		Formatter: &logrus.TextFormatter{
			ForceColors:   isTTY,
			DisableColors: !isTTY || noColor,
		},
		Hooks: make(logrus.LevelHooks),
		Level: level,
	}
}
