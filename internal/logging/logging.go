// Package logging builds the logrus logger used by every subcommand.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	nested "github.com/antonfisher/nested-logrus-formatter"
	"github.com/shiena/ansicolor"
	"github.com/sirupsen/logrus"
)

const TimestampFormat = "2006-01-02 15:04:05.000"

type Options struct {
	// Level is a logrus level name; unknown names fall back to info.
	Level string
	// Dir receives one append-only file per day when non-empty.
	Dir string
	// Terminal mirrors the log to Stdout.
	Terminal bool
	// Stdout overrides os.Stdout, mostly for tests.
	Stdout io.Writer
}

// New returns a logger writing to the daily file and/or the terminal. The
// returned closer releases the log file.
func New(opts Options) (*logrus.Logger, io.Closer, error) {
	log := logrus.New()
	log.SetFormatter(&nested.Formatter{
		HideKeys:        true,
		ShowFullLevel:   true,
		TimestampFormat: TimestampFormat,
	})

	var (
		outs   []io.Writer
		closer io.Closer = nopCloser{}
	)
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, os.ModePerm); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		name := filepath.Join(opts.Dir, time.Now().Format("2006-01-02.log"))
		f, err := os.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		outs = append(outs, f)
		closer = f
	}
	if opts.Terminal {
		out := opts.Stdout
		if out == nil {
			out = os.Stdout
		}
		outs = append(outs, out)
	}
	log.SetOutput(ansicolor.NewAnsiColorWriter(io.MultiWriter(outs...)))

	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
