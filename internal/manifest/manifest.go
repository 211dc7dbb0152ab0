// Package manifest reads and writes the tile list that drives a pipeline run:
// one tile_{x}_{y}.bin entry per line, '#' comments and blank lines allowed.
package manifest

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"windtiler/internal/tileid"
)

// ParseError reports a manifest that could not be read at all.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("manifest %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Warning is a single entry that was skipped while reading.
type Warning struct {
	Line  int
	Text  string
	Cause error
}

func (w Warning) String() string {
	return fmt.Sprintf("line %d: %q skipped: %v", w.Line, w.Text, w.Cause)
}

// Header is the comment block written above the tile entries.
type Header struct {
	Title     string
	RunID     string
	Generated time.Time
	Sites     int
	Radius    float64 // metres
	Usage     []string
}

// Write serializes the header and the sorted tiles to w.
func Write(w io.Writer, tiles tileid.Set, h Header) error {
	bw := bufio.NewWriter(w)

	title := h.Title
	if title == "" {
		title = "lidar height tiles"
	}
	fmt.Fprintf(bw, "# %s\n", title)
	if h.RunID != "" {
		fmt.Fprintf(bw, "# Run: %s\n", h.RunID)
	}
	if !h.Generated.IsZero() {
		fmt.Fprintf(bw, "# Generated: %s\n", h.Generated.Format(time.RFC3339))
	}
	fmt.Fprintf(bw, "# Sites: %d\n", h.Sites)
	fmt.Fprintf(bw, "# Radius: %g km\n", h.Radius/1000)
	fmt.Fprintf(bw, "# Tiles: %d\n", len(tiles))
	if len(h.Usage) > 0 {
		fmt.Fprintln(bw, "#")
		fmt.Fprintln(bw, "# Usage:")
		for _, u := range h.Usage {
			fmt.Fprintf(bw, "#   %s\n", u)
		}
	}
	fmt.Fprintln(bw, "#")
	fmt.Fprintln(bw)

	for _, id := range tiles.Sorted() {
		fmt.Fprintln(bw, id.FileName())
	}
	return bw.Flush()
}

// WriteFile writes the manifest to path, creating parent directories.
func WriteFile(path string, tiles tileid.Set, h Header) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, tiles, h); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Parse reads tile entries from r. Malformed entries are returned as
// warnings and do not fail the read.
func Parse(r io.Reader) (tileid.Set, []Warning, error) {
	tiles := tileid.NewSet()
	var warnings []Warning

	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		id, err := tileid.Parse(line)
		if err != nil {
			warnings = append(warnings, Warning{Line: n, Text: line, Cause: err})
			continue
		}
		tiles.Add(id)
	}
	return tiles, warnings, sc.Err()
}

// Read parses the manifest at path. Only an unreadable file is an error.
func Read(path string) (tileid.Set, []Warning, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, &ParseError{Path: path, Err: err}
	}
	defer f.Close()

	tiles, warnings, err := Parse(f)
	if err != nil {
		return nil, nil, &ParseError{Path: path, Err: err}
	}
	return tiles, warnings, nil
}
