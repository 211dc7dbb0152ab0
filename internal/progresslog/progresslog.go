// Package progresslog is the append-only text log a batch conversion leaves
// behind so the monitor can follow it: one "[i/n] ..." marker per line.
package progresslog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	stepVerb = "Converting:"
	doneVerb = "Done"
	stopVerb = "Stopped"
)

// Writer appends markers to a log file.
type Writer struct {
	mu      sync.Mutex
	file    *os.File
	now     func() time.Time
	cur, of int
	done    bool
}

// Open opens (or creates) the log at path for appending.
func Open(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &Writer{file: f, now: time.Now}, nil
}

// Step records that item i of n, name, is being processed.
func (w *Writer) Step(i, n int, name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cur, w.of = i, n
	return w.mark(i, n, stepVerb+" "+name)
}

// Done records that all n items are finished.
func (w *Writer) Done(n int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cur, w.of = n, n
	w.done = true
	return w.mark(n, n, doneVerb)
}

// Stop records that the batch ended early at the last recorded step. It
// is safe to call from another goroutine, e.g. a signal handler.
func (w *Writer) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.of == 0 || w.done || w.file == nil {
		return nil
	}
	return w.mark(w.cur, w.of, stopVerb)
}

func (w *Writer) mark(i, n int, text string) error {
	if w.file == nil {
		return os.ErrClosed
	}
	_, err := fmt.Fprintf(w.file, "[%d/%d] %s (%s)\n", i, n, text, w.now().Format(time.RFC3339))
	return err
}

// Close closes the log; later markers fail with os.ErrClosed.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// Progress is the most recent marker found in a log.
type Progress struct {
	Current int
	Total   int
	File    string
	Running bool
}

var markerRe = regexp.MustCompile(`\[\s*(\d+)\s*/\s*(\d+)\s*\]`)

// ParseLast returns the last progress marker in r. ok is false when the
// log holds none.
func ParseLast(r io.Reader) (p Progress, ok bool, err error) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		m := markerRe.FindStringSubmatchIndex(line)
		if m == nil {
			continue
		}
		cur, _ := strconv.Atoi(line[m[2]:m[3]])
		total, _ := strconv.Atoi(line[m[4]:m[5]])
		rest := strings.TrimSpace(line[m[1]:])

		p = Progress{Current: cur, Total: total, Running: cur < total}
		switch {
		case strings.HasPrefix(rest, stepVerb):
			p.File = fileName(strings.TrimSpace(strings.TrimPrefix(rest, stepVerb)))
			p.Running = true
		case strings.HasPrefix(rest, doneVerb), strings.HasPrefix(rest, stopVerb):
			p.Running = false
		}
		ok = true
	}
	return p, ok, sc.Err()
}

// ParseFile is ParseLast on the file at path.
func ParseFile(path string) (Progress, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return Progress{}, false, err
	}
	defer f.Close()
	return ParseLast(f)
}

// fileName strips the trailing timestamp the Writer appends.
func fileName(s string) string {
	if i := strings.LastIndex(s, " ("); i >= 0 && strings.HasSuffix(s, ")") {
		return s[:i]
	}
	return s
}
