package main

import (
	"context"
	"flag"
	"time"

	"github.com/google/subcommands"

	"windtiler/internal/manifest"
	"windtiler/internal/monitor"
)

type monitorCmd struct {
	*app
	watch    bool
	interval time.Duration
	expected int
	manifest string
}

func (*monitorCmd) Name() string     { return "monitor" }
func (*monitorCmd) Synopsis() string { return "show download and conversion progress" }
func (*monitorCmd) Usage() string {
	return "windtiler monitor [-watch] [-interval <d>] [-expected <n> | -manifest <file>]\n"
}

func (c *monitorCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.watch, "watch", false, "refresh until interrupted")
	f.DurationVar(&c.interval, "interval", 0, "refresh interval (default from config)")
	f.IntVar(&c.expected, "expected", 0, "expected tile count (default from config or manifest)")
	f.StringVar(&c.manifest, "manifest", "", "take the expected tile count from this manifest")
}

func (c *monitorCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg := c.conf.MonitorConfig()
	if c.interval > 0 {
		cfg.Interval = c.interval
	}
	switch {
	case c.expected > 0:
		cfg.Expected = c.expected
	case c.manifest != "":
		tiles, _, err := manifest.Read(c.manifest)
		if err != nil {
			return c.fail(err)
		}
		cfg.Expected = len(tiles)
	case cfg.Expected == 0:
		// Best effort: the manifest may not exist yet.
		if tiles, _, err := manifest.Read(c.conf.Indexer.Manifest); err == nil {
			cfg.Expected = len(tiles)
		}
	}

	m := monitor.New(cfg, c.log)
	if !c.watch {
		if err := monitor.Render(c.out, m.Collect()); err != nil {
			return c.fail(err)
		}
		return subcommands.ExitSuccess
	}
	if err := m.Watch(ctx, c.out); err != nil {
		return c.fail(err)
	}
	return subcommands.ExitSuccess
}
