package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"windtiler/internal/tileid"
)

type archiveServer struct {
	mu       sync.Mutex
	files    map[string]string
	status   map[string]int
	requests []string
}

func (s *archiveServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := strings.TrimPrefix(r.URL.Path, "/laz/")
	s.requests = append(s.requests, name)
	if code, ok := s.status[name]; ok {
		w.WriteHeader(code)
		return
	}
	body, ok := s.files[name]
	if !ok {
		http.NotFound(w, r)
		return
	}
	fmt.Fprint(w, body)
}

func newTestFetcher(t *testing.T, s *archiveServer, naming Naming) (*Fetcher, string) {
	t.Helper()
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	out := t.TempDir()
	log, _ := test.NewNullLogger()
	f := New(Config{
		BaseURL:   srv.URL + "/laz/",
		OutputDir: out,
		Naming:    naming,
	}, srv.Client(), log)
	return f, out
}

func TestNaming(t *testing.T) {
	zipID, err := tileid.Parse("tile_459_5722.bin")
	require.NoError(t, err)
	assert.Equal(t, "als_33459-5722.zip", ZIPNaming(zipID))

	lazID, err := tileid.Parse("tile_401_5729.bin")
	require.NoError(t, err)
	assert.Equal(t, "dom_33401_5729.laz", LAZNaming(lazID))

	n, err := NamingByName("LAZ")
	require.NoError(t, err)
	assert.Equal(t, "dom_331_2.laz", n(tileid.ID{X: 1, Y: 2}))
	_, err = NamingByName("tar")
	assert.Error(t, err)
}

func TestFetchRequestsConventionName(t *testing.T) {
	s := &archiveServer{files: map[string]string{"als_33459-5722.zip": "zipdata"}}
	f, out := newTestFetcher(t, s, ZIPNaming)

	res, err := f.Fetch(context.Background(), tileid.ID{X: 459, Y: 5722})
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, int64(7), res.Bytes)
	assert.Equal(t, []string{"als_33459-5722.zip"}, s.requests)

	data, err := os.ReadFile(filepath.Join(out, "als_33459-5722.zip"))
	require.NoError(t, err)
	assert.Equal(t, "zipdata", string(data))
	_, err = os.Stat(filepath.Join(out, "als_33459-5722.zip.part"))
	assert.True(t, os.IsNotExist(err), "part file left behind")
}

func TestFetchLAZConvention(t *testing.T) {
	s := &archiveServer{files: map[string]string{"dom_33401_5729.laz": "laz"}}
	f, _ := newTestFetcher(t, s, LAZNaming)

	_, err := f.Fetch(context.Background(), tileid.ID{X: 401, Y: 5729})
	require.NoError(t, err)
	assert.Equal(t, []string{"dom_33401_5729.laz"}, s.requests)
}

func TestFetchSkipsExisting(t *testing.T) {
	s := &archiveServer{files: map[string]string{}}
	f, out := newTestFetcher(t, s, ZIPNaming)
	require.NoError(t, os.WriteFile(filepath.Join(out, "als_331-2.zip"), []byte("old"), 0o644))

	res, err := f.Fetch(context.Background(), tileid.ID{X: 1, Y: 2})
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, int64(3), res.Bytes)
	assert.Empty(t, s.requests)
}

func TestFetchFailsWhenExistingFileCannotBeChecked(t *testing.T) {
	s := &archiveServer{files: map[string]string{"als_331-2.zip": "new"}}
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	// A regular file where the output directory should be makes Stat fail
	// with something other than "not exist".
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	log, _ := test.NewNullLogger()
	f := New(Config{BaseURL: srv.URL + "/laz/", OutputDir: blocker}, srv.Client(), log)

	res, err := f.Fetch(context.Background(), tileid.ID{X: 1, Y: 2})
	require.Error(t, err)
	assert.False(t, res.Skipped)
	var nf *NotFoundError
	assert.False(t, errors.As(err, &nf))
	assert.Empty(t, s.requests, "no download attempted")
}

func TestFetchNotFound(t *testing.T) {
	s := &archiveServer{files: map[string]string{}}
	f, out := newTestFetcher(t, s, ZIPNaming)

	_, err := f.Fetch(context.Background(), tileid.ID{X: 1, Y: 2})
	var nf *NotFoundError
	require.True(t, errors.As(err, &nf), "got %v", err)

	entries, _ := os.ReadDir(out)
	assert.Empty(t, entries)
}

func TestFetchServerError(t *testing.T) {
	s := &archiveServer{status: map[string]int{"als_331-2.zip": http.StatusBadGateway}}
	f, _ := newTestFetcher(t, s, ZIPNaming)

	_, err := f.Fetch(context.Background(), tileid.ID{X: 1, Y: 2})
	var te *TransportError
	require.True(t, errors.As(err, &te), "got %v", err)
	assert.Equal(t, http.StatusBadGateway, te.StatusCode)
	var nf *NotFoundError
	assert.False(t, errors.As(err, &nf))
}

func TestFetchTransportFailure(t *testing.T) {
	log, _ := test.NewNullLogger()
	f := New(Config{BaseURL: "http://127.0.0.1:1", OutputDir: t.TempDir()}, nil, log)

	_, err := f.Fetch(context.Background(), tileid.ID{X: 1, Y: 2})
	var te *TransportError
	require.True(t, errors.As(err, &te), "got %v", err)
	assert.Zero(t, te.StatusCode)
	assert.Error(t, te.Unwrap())
}

func TestFetchAllCollectsFailures(t *testing.T) {
	s := &archiveServer{
		files:  map[string]string{"als_331-1.zip": "a", "als_333-3.zip": "ccc"},
		status: map[string]int{"als_334-4.zip": http.StatusInternalServerError},
	}
	f, out := newTestFetcher(t, s, ZIPNaming)
	require.NoError(t, os.WriteFile(filepath.Join(out, "als_335-5.zip"), []byte("x"), 0o644))

	ids := []tileid.ID{{X: 1, Y: 1}, {X: 2, Y: 2}, {X: 3, Y: 3}, {X: 4, Y: 4}, {X: 5, Y: 5}}
	rep := f.FetchAll(context.Background(), ids)

	assert.Equal(t, 5, rep.Total)
	assert.Equal(t, 3, rep.Succeeded)
	assert.Equal(t, 1, rep.Skipped)
	assert.Equal(t, int64(4), rep.Bytes)
	require.Len(t, rep.Failures, 2)
	assert.Equal(t, "als_332-2.zip", rep.Failures[0].FileName)
	assert.Equal(t, "als_334-4.zip", rep.Failures[1].FileName)
	// No retries: every missing archive is requested exactly once.
	assert.Equal(t, []string{"als_331-1.zip", "als_332-2.zip", "als_333-3.zip", "als_334-4.zip"}, s.requests)

	var buf bytes.Buffer
	rep.Summary(&buf)
	assert.Contains(t, buf.String(), "Succeeded: 3/5")
	assert.Contains(t, buf.String(), "als_332-2.zip")
	assert.Contains(t, buf.String(), "Likely causes")
}

func TestSummaryBoundsFailureList(t *testing.T) {
	rep := Report{Total: 12}
	for i := 0; i < 12; i++ {
		rep.Failures = append(rep.Failures, Failure{FileName: fmt.Sprintf("f%d.zip", i), Err: errors.New("boom")})
	}
	var buf bytes.Buffer
	rep.Summary(&buf)
	assert.Contains(t, buf.String(), "f9.zip")
	assert.NotContains(t, buf.String(), "f10.zip")
	assert.Contains(t, buf.String(), "... and 2 more")
}

func TestFetchAllStopsOnCancel(t *testing.T) {
	s := &archiveServer{files: map[string]string{}}
	f, _ := newTestFetcher(t, s, ZIPNaming)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep := f.FetchAll(ctx, []tileid.ID{{X: 1, Y: 1}})
	assert.Zero(t, rep.Succeeded)
	assert.Empty(t, s.requests)
}
