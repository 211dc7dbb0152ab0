package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/subcommands"

	"windtiler/internal/fetch"
	"windtiler/internal/manifest"
)

type fetchCmd struct {
	*app
	manifest  string
	dataset   string
	baseURL   string
	outputDir string
	yes       bool
}

func (*fetchCmd) Name() string     { return "fetch" }
func (*fetchCmd) Synopsis() string { return "download the archives listed in a manifest" }
func (*fetchCmd) Usage() string {
	return "windtiler fetch [-manifest <file>] [-dataset zip|laz] [-url <base>] [-o <dir>] [-yes]\n"
}

func (c *fetchCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.manifest, "manifest", "", "tile manifest (default from config)")
	f.StringVar(&c.dataset, "dataset", "", "naming convention: zip or laz (default from config)")
	f.StringVar(&c.baseURL, "url", "", "base URL of the archive server (default from config)")
	f.StringVar(&c.outputDir, "o", "", "download directory (default from config)")
	f.BoolVar(&c.yes, "yes", false, "do not ask for confirmation")
}

func (c *fetchCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.manifest == "" {
		c.manifest = c.conf.Indexer.Manifest
	}
	if c.dataset != "" {
		c.conf.Fetch.Dataset = c.dataset
	}
	cfg, err := c.conf.FetchConfig()
	if err != nil {
		return c.fail(err)
	}
	if c.baseURL != "" {
		cfg.BaseURL = c.baseURL
	}
	if c.outputDir != "" {
		cfg.OutputDir = c.outputDir
	}
	cfg.ShowProgress = true
	cfg.ProgressOutput = c.out

	tiles, warnings, err := manifest.Read(c.manifest)
	if err != nil {
		return c.fail(err)
	}
	for _, w := range warnings {
		c.log.Warn(w)
	}
	ids := tiles.Sorted()
	if len(ids) == 0 {
		return c.fail(fmt.Errorf("manifest %s lists no tiles", c.manifest))
	}

	fmt.Fprintf(c.out, "%d archives from %s into %s\n", len(ids), cfg.BaseURL, cfg.OutputDir)
	fmt.Fprintf(c.out, "estimated download: ~%s\n", humanize.Bytes(uint64(len(ids))*fetch.ApproxArchiveSize))
	if !c.yes && !c.confirm("Continue? [y/N] ") {
		fmt.Fprintln(c.out, "aborted")
		return subcommands.ExitSuccess
	}

	rep := fetch.New(cfg, nil, c.log).FetchAll(ctx, ids)
	fmt.Fprintln(c.out)
	rep.Summary(c.out)

	if errors.Is(ctx.Err(), context.Canceled) {
		return c.fail(errors.New("fetch interrupted"))
	}
	if len(rep.Failures) > 0 {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (c *fetchCmd) confirm(prompt string) bool {
	fmt.Fprint(c.out, prompt)
	line, err := bufio.NewReader(c.in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes", "j", "ja":
		return true
	}
	return false
}
