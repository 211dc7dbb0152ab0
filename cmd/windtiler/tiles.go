package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/google/subcommands"
	"github.com/teris-io/shortid"

	"windtiler/internal/indexer"
	"windtiler/internal/manifest"
)

type tilesCmd struct {
	*app
	sites    string
	radius   float64
	manifest string
}

func (*tilesCmd) Name() string     { return "tiles" }
func (*tilesCmd) Synopsis() string { return "list the tiles needed around every site" }
func (*tilesCmd) Usage() string {
	return "windtiler tiles [-sites <geojson>] [-radius <m>] [-o <manifest>]\n"
}

func (c *tilesCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.sites, "sites", "", "GeoJSON file of site points (default from config)")
	f.Float64Var(&c.radius, "radius", 0, "view radius in metres (default from config)")
	f.StringVar(&c.manifest, "o", "", "manifest `file` to write (default from config)")
}

func (c *tilesCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.sites != "" {
		c.conf.Indexer.Sites = c.sites
	}
	if c.radius > 0 {
		c.conf.Indexer.Radius = c.radius
	}
	if c.manifest == "" {
		c.manifest = c.conf.Indexer.Manifest
	}

	sites, err := c.conf.LoadSites()
	if err != nil {
		return c.fail(err)
	}
	if len(sites) == 0 {
		return c.fail(errors.New("no sites configured, pass -sites or add [[indexer.site]] to the config"))
	}

	res := indexer.Index(c.conf.ProjectionParams(), sites, c.conf.Indexer.Radius)
	for _, s := range res.Sites {
		fmt.Fprintf(c.out, "%s\n", s.Site.Name)
		fmt.Fprintf(c.out, "  WGS84: %.6f, %.6f\n", s.Site.Point.Lat, s.Site.Point.Lon)
		fmt.Fprintf(c.out, "  UTM33: E %.2f, N %.2f\n", s.Projected.Easting, s.Projected.Northing)
		fmt.Fprintf(c.out, "  tile:  %s (%d tiles in radius)\n", s.Tile, len(s.Tiles))
	}

	sorted := res.Tiles.Sorted()
	fmt.Fprintf(c.out, "\n%d tiles for %d sites (%g km radius)\n", len(sorted), len(sites), res.Radius/1000)
	if lo, hi, ok := res.Tiles.Range(); ok {
		fmt.Fprintf(c.out, "x %d..%d, y %d..%d\n", lo.X, hi.X, lo.Y, hi.Y)
	}

	runID, err := shortid.Generate()
	if err != nil {
		return c.fail(err)
	}
	h := manifest.Header{
		Title:     c.conf.App.Title + " tile list",
		RunID:     runID,
		Generated: time.Now(),
		Sites:     len(sites),
		Radius:    res.Radius,
		Usage: []string{
			"windtiler fetch -manifest " + c.manifest,
			"windtiler convert -tile-list " + c.manifest,
		},
	}
	if err := manifest.WriteFile(c.manifest, res.Tiles, h); err != nil {
		return c.fail(fmt.Errorf("write manifest: %w", err))
	}
	c.log.WithField("run", runID).Infof("wrote %d tiles to %s", len(sorted), c.manifest)
	return subcommands.ExitSuccess
}
