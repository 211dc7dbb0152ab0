// Package server serves converted height tiles to the browser client.
// It is a development server: permissive CORS, no authentication.
package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// TileSuffix marks requests for pre-compressed tiles.
const TileSuffix = ".bin.gz"

type Config struct {
	Addr string
	// Root is served as static files.
	Root string
	// TilesDir holds the .bin.gz files served under /tiles/; defaults to
	// Root/tiles.
	TilesDir string
	// ShutdownTimeout bounds the graceful shutdown in Run.
	ShutdownTimeout time.Duration
}

type Server struct {
	cfg    Config
	log    logrus.FieldLogger
	engine *gin.Engine
	static http.Handler
}

func New(cfg Config, log logrus.FieldLogger) *Server {
	if cfg.Root == "" {
		cfg.Root = "."
	}
	if cfg.TilesDir == "" {
		cfg.TilesDir = filepath.Join(cfg.Root, "tiles")
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}

	s := &Server{
		cfg:    cfg,
		log:    log,
		static: http.FileServer(http.Dir(cfg.Root)),
	}

	e := gin.New()
	e.Use(gin.Recovery(), s.logRequests(), cors())
	e.GET("/tiles/:name", s.serveTile)
	e.NoRoute(s.serveStatic)
	s.engine = e
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run listens on cfg.Addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Infof("serving %s on %s (tiles from %s)", s.cfg.Root, s.cfg.Addr, s.cfg.TilesDir)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.log.Infof("server stopped")
	return nil
}

// cors allows any origin and answers preflight requests itself.
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "*")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.WithFields(logrus.Fields{
			"status":  c.Writer.Status(),
			"elapsed": time.Since(start).Round(time.Microsecond),
		}).Infof("%s %s", c.Request.Method, c.Request.URL.Path)
	}
}

func (s *Server) serveTile(c *gin.Context) {
	name := c.Param("name")
	if !strings.HasSuffix(name, TileSuffix) {
		s.serveStatic(c)
		return
	}
	if name != filepath.Base(name) || strings.Contains(name, "..") {
		c.String(http.StatusNotFound, "Tile not found: %s", name)
		return
	}

	data, err := os.ReadFile(filepath.Join(s.cfg.TilesDir, name))
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warnf("read %s: %v", name, err)
		}
		c.String(http.StatusNotFound, "Tile not found: %s", name)
		return
	}
	c.Header("Content-Encoding", "gzip")
	c.Data(http.StatusOK, "application/octet-stream", data)
}

func (s *Server) serveStatic(c *gin.Context) {
	if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
		c.String(http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.static.ServeHTTP(c.Writer, c.Request)
}
