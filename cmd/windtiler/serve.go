package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/google/subcommands"

	"windtiler/internal/server"
)

type serveCmd struct {
	*app
	port     int
	dir      string
	tilesDir string
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "serve the viewer and gzip tiles for development" }
func (*serveCmd) Usage() string {
	return "windtiler serve [-port <n>] [-dir <root>] [-tiles <dir>]\n"
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.port, "port", 0, "listen port (default from config)")
	f.StringVar(&c.dir, "dir", "", "static file root (default from config)")
	f.StringVar(&c.tilesDir, "tiles", "", "directory of .bin.gz tiles (default <dir>/tiles)")
}

func (c *serveCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg := c.conf.ServerConfig()
	if c.port > 0 {
		cfg.Addr = fmt.Sprintf(":%d", c.port)
	}
	if c.dir != "" {
		cfg.Root = c.dir
	}
	if c.tilesDir != "" {
		cfg.TilesDir = c.tilesDir
	}

	gin.SetMode(gin.ReleaseMode)
	srv := server.New(cfg, c.log)
	fmt.Fprintf(c.out, "serving %s on http://localhost%s (tiles under /tiles/)\n", cfg.Root, cfg.Addr)
	fmt.Fprintln(c.out, "Press Ctrl+C to stop.")
	if err := srv.Run(ctx); err != nil {
		return c.fail(err)
	}
	return subcommands.ExitSuccess
}
