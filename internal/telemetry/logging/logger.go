// Package logging builds the process logger: slog on stdout, optionally
// mirrored to a daily-rotated file.
package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/juju/lumberjack/v2"
	"github.com/robfig/cron/v3"
)

// FileName is the name of the active log file inside the log directory.
const FileName = "app.log"

// Options configures New.
type Options struct {
	Level  slog.Level
	Format string // "text" or "json"
	// Dir enables file logging when non-empty.
	Dir           string
	RetentionDays int
	// Stdout defaults to os.Stdout.
	Stdout io.Writer
}

// Logger is a slog.Logger plus the resources backing its file output.
type Logger struct {
	*slog.Logger

	file      *lumberjack.Logger
	scheduler *cron.Cron
}

// New creates a Logger. When opts.Dir is set, output is also written to
// Dir/app.log, which is rotated at midnight and whose backups are removed
// after RetentionDays.
func New(opts Options) (*Logger, error) {
	out := opts.Stdout
	if out == nil {
		out = os.Stdout
	}

	l := &Logger{}

	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o750); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}

		l.file = &lumberjack.Logger{
			Filename: filepath.Join(opts.Dir, FileName),
			MaxAge:   opts.RetentionDays,
			Compress: true,
		}

		l.scheduler = cron.New()
		if _, err := l.scheduler.AddFunc("@midnight", l.rotate); err != nil {
			return nil, fmt.Errorf("schedule log rotation: %w", err)
		}
		l.scheduler.Start()

		out = io.MultiWriter(out, l.file)
	}

	handlerOpts := &slog.HandlerOptions{Level: opts.Level}
	var handler slog.Handler
	if opts.Format == "json" {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(out, handlerOpts)
	}

	l.Logger = slog.New(handler)
	return l, nil
}

// rotate starts a new log file. Failures go to stderr since the file itself
// may be the problem.
func (l *Logger) rotate() {
	if err := l.file.Rotate(); err != nil {
		fmt.Fprintf(os.Stderr, "log rotation failed: %v\n", err)
	}
}

// Close stops the rotation schedule and closes the log file, if any.
func (l *Logger) Close() error {
	if l.scheduler != nil {
		<-l.scheduler.Stop().Done()
	}
	if l.file != nil {
		if err := l.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			return fmt.Errorf("close log file: %w", err)
		}
	}
	return nil
}
