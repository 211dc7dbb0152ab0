package monitor

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"
)

const (
	boxWidth = 58
	barWidth = 30
	clear    = "\033[2J\033[H"
)

// Bar draws current/total as a fixed-width bar.
func Bar(current, total, width int) string {
	if total <= 0 {
		return strings.Repeat("░", width)
	}
	if current > total {
		current = total
	}
	filled := width * current / total
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

type box struct {
	w     *bufio.Writer
	lines []string
}

func (b *box) add(format string, args ...interface{}) {
	b.lines = append(b.lines, fmt.Sprintf(format, args...))
}

func (b *box) flush() {
	fmt.Fprintln(b.w, "┌"+strings.Repeat("─", boxWidth)+"┐")
	for _, l := range b.lines {
		l = runewidth.Truncate(l, boxWidth-2, "…")
		fmt.Fprintln(b.w, "│ "+runewidth.FillRight(l, boxWidth-2)+" │")
	}
	fmt.Fprintln(b.w, "└"+strings.Repeat("─", boxWidth)+"┘")
	fmt.Fprintln(b.w)
	b.lines = b.lines[:0]
}

// Render writes the dashboard for st.
func Render(w io.Writer, st Status) error {
	bw := bufio.NewWriter(w)
	b := &box{w: bw}

	fmt.Fprintln(bw, "Wind turbine tile pipeline")
	fmt.Fprintln(bw, strings.Repeat("━", boxWidth+2))
	fmt.Fprintln(bw)

	expected := st.Expected
	if expected == 0 && st.Conversion != nil {
		expected = st.Conversion.Total
	}

	b.add("Download  [%s] %d/%s", Bar(st.Archives, expected, barWidth), st.Archives, total(expected))
	switch {
	case st.Archives == 0:
		b.add("Status: not started")
	case expected > 0 && st.Archives >= expected:
		b.add("Status: completed (%s)", humanize.Bytes(uint64(st.ArchiveBytes)))
	default:
		b.add("Status: in progress (%s)", humanize.Bytes(uint64(st.ArchiveBytes)))
	}
	b.flush()

	if c := st.Conversion; c != nil {
		b.add("Convert   [%s] %d/%d", Bar(c.Current, c.Total, barWidth), c.Current, c.Total)
		if c.Running {
			b.add("Status: in progress")
			if c.File != "" {
				b.add("Current: %s", c.File)
			}
		} else if c.Current < c.Total {
			b.add("Status: stopped")
		} else {
			b.add("Status: completed")
		}
	} else {
		b.add("Convert   [%s] 0/%s", Bar(0, expected, barWidth), total(expected))
		b.add("Status: not started")
	}
	b.add("Output: %d compressed tiles (%s)", st.GzipTiles, humanize.Bytes(uint64(st.TileBytes)))
	b.flush()

	b.add("Upload    [%s] 0/%s", Bar(0, expected, barWidth), total(expected))
	b.add("Status: pending")
	b.flush()

	fmt.Fprintln(bw, "Disk usage:")
	fmt.Fprintf(bw, "  Archives: %s (%d files)\n", humanize.Bytes(uint64(st.ArchiveBytes)), st.Archives)
	fmt.Fprintf(bw, "  Tiles:    %s (%d raw, %d compressed)\n", humanize.Bytes(uint64(st.TileBytes)), st.RawTiles, st.GzipTiles)
	return bw.Flush()
}

// RenderScreen clears a terminal and renders st with a refresh footer.
func RenderScreen(w io.Writer, st Status) error {
	if _, err := io.WriteString(w, clear); err != nil {
		return err
	}
	if err := Render(w, st); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\nLast update: %s\nPress Ctrl+C to stop.\n", st.Time.Format("15:04:05"))
	return err
}

func total(n int) string {
	if n <= 0 {
		return "?"
	}
	return fmt.Sprint(n)
}
