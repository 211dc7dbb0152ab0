package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/google/subcommands"
	"github.com/teris-io/shortid"

	"windtiler/internal/manifest"
	"windtiler/internal/pointcloud"
	"windtiler/internal/progresslog"
	"windtiler/internal/raster"
)

type convertCmd struct {
	*app
	outputDir   string
	tileSize    float64
	resolution  float64
	tileList    string
	progressLog string
}

func (*convertCmd) Name() string     { return "convert" }
func (*convertCmd) Synopsis() string { return "rasterize point clouds into height tiles" }
func (*convertCmd) Usage() string {
	return `windtiler convert [-o <dir>] [-tile-list <manifest>] [<file|dir|glob> ...]
  Converts LAS, XYZ and ZIP point clouds. Without arguments every supported
  file in the fetch output directory is converted.
`
}

func (c *convertCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.outputDir, "o", "", "output directory (default from config)")
	f.Float64Var(&c.tileSize, "tile-size", 0, "tile edge in metres, a multiple of 1000 (default from config)")
	f.Float64Var(&c.resolution, "resolution", 0, "cell size in metres (default from config)")
	f.StringVar(&c.tileList, "tile-list", "", "only write tiles listed in this manifest")
	f.StringVar(&c.progressLog, "progress-log", "", "progress log read by the monitor (default from config)")
}

func (c *convertCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg := c.conf.RasterConfig()
	if c.outputDir != "" {
		cfg.OutputDir = c.outputDir
	}
	if c.tileSize > 0 {
		cfg.TileEdge = c.tileSize
	}
	if c.resolution > 0 {
		cfg.Resolution = c.resolution
	}
	cfg.ShowProgress = true
	cfg.ProgressOutput = c.out

	if c.tileList != "" {
		sel, warnings, err := manifest.Read(c.tileList)
		if err != nil {
			return c.fail(err)
		}
		for _, w := range warnings {
			c.log.Warn(w)
		}
		cfg.Selection = sel
	}

	args := f.Args()
	if len(args) == 0 {
		args = []string{c.conf.Fetch.OutputDir}
	}
	paths, err := expandInputs(args)
	if err != nil {
		return c.fail(err)
	}
	if len(paths) == 0 {
		return c.fail(errors.New("no point cloud files found"))
	}

	runID, err := shortid.Generate()
	if err != nil {
		return c.fail(err)
	}
	log := c.log.WithField("run", runID)

	conv, err := raster.NewConverter(cfg, log)
	if err != nil {
		return c.fail(err)
	}

	logPath := c.progressLog
	if logPath == "" {
		logPath = c.conf.Convert.ProgressLog
	}
	var journal raster.Journal
	if logPath != "" {
		w, err := progresslog.Open(logPath)
		if err != nil {
			return c.fail(err)
		}
		defer w.Close()
		c.stop.Register(func() {
			if err := w.Stop(); err != nil {
				c.log.Warnf("progress log: %v", err)
			}
		})
		journal = w
	}

	stats, err := conv.ConvertFiles(ctx, paths, journal)
	printStats(c, stats)
	if err != nil {
		return c.fail(err)
	}
	return subcommands.ExitSuccess
}

func printStats(c *convertCmd, stats []raster.TileStats) {
	var raw, gz int64
	for _, st := range stats {
		raw += st.RawBytes
		gz += st.GzipBytes
	}
	fmt.Fprintf(c.out, "\n%d tiles written, %s raw, %s gzip", len(stats),
		humanize.Bytes(uint64(raw)), humanize.Bytes(uint64(gz)))
	if raw > 0 {
		fmt.Fprintf(c.out, " (%.0f%% saved)", 100*(1-float64(gz)/float64(raw)))
	}
	fmt.Fprintln(c.out)
}

// expandInputs resolves files, directories and glob patterns into a
// sorted, deduplicated list of supported point cloud files.
func expandInputs(args []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		if pointcloud.Supported(p) && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, arg := range args {
		if fi, err := os.Stat(arg); err == nil {
			if !fi.IsDir() {
				if !pointcloud.Supported(arg) {
					return nil, fmt.Errorf("%s: unsupported point cloud format", arg)
				}
				add(arg)
				continue
			}
			entries, err := os.ReadDir(arg)
			if err != nil {
				return nil, err
			}
			for _, e := range entries {
				if !e.IsDir() {
					add(filepath.Join(arg, e.Name()))
				}
			}
			continue
		}

		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", arg, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("%s: no such file", arg)
		}
		for _, m := range matches {
			add(m)
		}
	}
	sort.Strings(out)
	return out, nil
}
