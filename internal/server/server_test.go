package server

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func gz(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func newTestServer(t *testing.T) (*Server, string, []byte) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "tiles"), 0o755))
	tile := gz(t, []byte{1, 0, 2, 0})
	require.NoError(t, os.WriteFile(filepath.Join(root, "tiles", "tile_460_5740.bin.gz"), tile, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "tiles", "tile_460_5740.bin"), []byte{1, 0, 2, 0}, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("<h1>viewer</h1>"), 0o644))

	log, _ := test.NewNullLogger()
	return New(Config{Root: root}, log), root, tile
}

func do(s *Server, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func assertCORS(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Headers"))
}

func TestServeCompressedTile(t *testing.T) {
	s, _, tile := newTestServer(t)
	rec := do(s, http.MethodGet, "/tiles/tile_460_5740.bin.gz")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
	assert.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, tile, rec.Body.Bytes())
	assertCORS(t, rec)
}

func TestMissingTile(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := do(s, http.MethodGet, "/tiles/tile_1_2.bin.gz")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Tile not found: tile_1_2.bin.gz")
	assertCORS(t, rec)
}

func TestPreflight(t *testing.T) {
	s, _, _ := newTestServer(t)
	for _, path := range []string{"/tiles/tile_460_5740.bin.gz", "/", "/anything/else"} {
		rec := do(s, http.MethodOptions, path)
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Empty(t, rec.Body.String(), path)
		assertCORS(t, rec)
	}
}

func TestStaticFallback(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := do(s, http.MethodGet, "/index.html")
	// http.FileServer redirects /index.html to /.
	assert.Equal(t, http.StatusMovedPermanently, rec.Code)

	rec = do(s, http.MethodGet, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "viewer")
	assertCORS(t, rec)

	rec = do(s, http.MethodGet, "/tiles/tile_460_5740.bin")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []byte{1, 0, 2, 0}, rec.Body.Bytes())
	assert.Empty(t, rec.Header().Get("Content-Encoding"))

	rec = do(s, http.MethodGet, "/nope.txt")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(s, http.MethodPost, "/index.html")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSeparateTilesDir(t *testing.T) {
	root := t.TempDir()
	tiles := t.TempDir()
	tile := gz(t, []byte{9, 9})
	require.NoError(t, os.WriteFile(filepath.Join(tiles, "tile_1_1.bin.gz"), tile, 0o644))

	log, _ := test.NewNullLogger()
	s := New(Config{Root: root, TilesDir: tiles}, log)
	rec := do(s, http.MethodGet, "/tiles/tile_1_1.bin.gz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, tile, rec.Body.Bytes())
}

func TestRunShutsDownOnCancel(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	s, _, tile := newTestServer(t)
	s.cfg.Addr = addr

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	var resp *http.Response
	require.Eventually(t, func() bool {
		resp, err = http.Get("http://" + addr + "/tiles/tile_460_5740.bin.gz")
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
	defer resp.Body.Close()
	// The client transparently decodes Content-Encoding: gzip.
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 0, 2, 0}, body)
	assert.NotEmpty(t, tile)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
