package progresslog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterAndParse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "convert.log")
	w, err := Open(path)
	require.NoError(t, err)
	w.now = func() time.Time { return time.Date(2026, 2, 14, 12, 0, 0, 0, time.UTC) }

	require.NoError(t, w.Step(1, 3, "als_33458-5723.zip"))
	require.NoError(t, w.Step(2, 3, "als_33459-5723.zip"))

	p, ok, err := ParseFile(path)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Progress{Current: 2, Total: 3, File: "als_33459-5723.zip", Running: true}, p)

	require.NoError(t, w.Step(3, 3, "als_33460-5723.zip"))
	p, _, _ = ParseFile(path)
	assert.True(t, p.Running, "last item still converting")
	assert.Equal(t, 3, p.Current)

	require.NoError(t, w.Done(3))
	require.NoError(t, w.Close())
	p, _, _ = ParseFile(path)
	assert.Equal(t, Progress{Current: 3, Total: 3, Running: false}, p)

	// Reopening appends.
	w, err = Open(path)
	require.NoError(t, err)
	require.NoError(t, w.Step(1, 1, "x.las"))
	require.NoError(t, w.Close())
	p, _, _ = ParseFile(path)
	assert.Equal(t, 1, p.Total)
	assert.Equal(t, "x.las", p.File)
}

func TestParseLastForeignFormat(t *testing.T) {
	log := `starting
[20/     141] Verarbeite: als_33458-5722.laz
some output [not a marker]
[21/     141] Verarbeite: als_33458-5723.laz
tile written
`
	p, ok, err := ParseLast(strings.NewReader(log))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 21, p.Current)
	assert.Equal(t, 141, p.Total)
	assert.True(t, p.Running)
	assert.Empty(t, p.File)
}

func TestParseLastNoMarker(t *testing.T) {
	_, ok, err := ParseLast(strings.NewReader("nothing here\n"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParseFileMissing(t *testing.T) {
	_, _, err := ParseFile(filepath.Join(t.TempDir(), "missing.log"))
	assert.Error(t, err)
}

func TestStop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "convert.log")
	w, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, w.Stop(), "nothing recorded yet")
	require.NoError(t, w.Step(4, 9, "als_33458-5723.zip"))
	require.NoError(t, w.Stop())
	require.NoError(t, w.Close())
	require.NoError(t, w.Stop(), "closed")
	assert.ErrorIs(t, w.Step(5, 9, "x.zip"), os.ErrClosed)

	p, ok, err := ParseFile(path)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Progress{Current: 4, Total: 9, Running: false}, p)
}
