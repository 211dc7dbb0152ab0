package raster

import (
	"context"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	pb "gopkg.in/cheggaaa/pb.v1"

	"windtiler/internal/pointcloud"
	"windtiler/internal/tileid"
)

type Config struct {
	Params
	OutputDir string
	// Selection restricts output to these tiles; nil converts every
	// occupied tile.
	Selection tileid.Set
	// Reader opens source files; pointcloud.DefaultReader when nil.
	Reader       *pointcloud.Reader
	ShowProgress bool
	// ProgressOutput receives the progress bar; stdout when nil.
	ProgressOutput io.Writer
}

// TileStats describes one written tile.
type TileStats struct {
	Tile      tileid.ID
	Points    int
	Filled    int
	Empty     int
	RawPath   string
	GzipPath  string
	RawBytes  int64
	GzipBytes int64
}

// Journal records batch progress so other processes can follow it.
type Journal interface {
	Step(i, n int, name string) error
	Done(n int) error
}

type Converter struct {
	cfg    Config
	store  Store
	reader *pointcloud.Reader
	log    logrus.FieldLogger
}

func NewConverter(cfg Config, log logrus.FieldLogger) (*Converter, error) {
	if err := cfg.Params.Validate(); err != nil {
		return nil, err
	}
	reader := cfg.Reader
	if reader == nil {
		reader = pointcloud.DefaultReader
	}
	return &Converter{cfg: cfg, store: Store{Dir: cfg.OutputDir}, reader: reader, log: log}, nil
}

// TileFor returns the tile of the given edge length containing (x, y),
// named by its origin in kilometres.
func TileFor(x, y, edge float64) tileid.ID {
	ox := math.Floor(x/edge) * edge
	oy := math.Floor(y/edge) * edge
	return tileid.ID{X: int(ox / tileid.Edge), Y: int(oy / tileid.Edge)}
}

// OccupiedTiles returns every tile holding at least one point.
func OccupiedTiles(points []pointcloud.Point, edge float64) tileid.Set {
	tiles := tileid.NewSet()
	for _, p := range points {
		tiles.Add(TileFor(p.X, p.Y, edge))
	}
	return tiles
}

// Convert rasterizes every occupied (and selected) tile of the cloud in
// order and writes it. The first failure aborts; tiles already written stay.
func (c *Converter) Convert(cloud *pointcloud.Cloud) ([]TileStats, error) {
	log := c.log.WithField("source", filepath.Base(cloud.Source))
	log.Infof("%d points, x [%.2f, %.2f], y [%.2f, %.2f], z [%.2f, %.2f]",
		len(cloud.Points),
		cloud.Bound.Min.X(), cloud.Bound.Max.X(),
		cloud.Bound.Min.Y(), cloud.Bound.Max.Y(),
		cloud.MinZ, cloud.MaxZ)

	var tiles []tileid.ID
	for _, id := range OccupiedTiles(cloud.Points, c.cfg.TileEdge).Sorted() {
		if c.cfg.Selection != nil && !c.cfg.Selection.Has(id) {
			log.Debugf("%s not in selection, skipped", id)
			continue
		}
		tiles = append(tiles, id)
	}

	var bar *pb.ProgressBar
	if c.cfg.ShowProgress && len(tiles) > 0 {
		bar = pb.New(len(tiles)).Prefix("Tiles ")
		if c.cfg.ProgressOutput != nil {
			bar.Output = c.cfg.ProgressOutput
		}
		bar.Start()
		defer bar.Finish()
	}

	stats := make([]TileStats, 0, len(tiles))
	for _, id := range tiles {
		st, err := c.convertTile(cloud.Points, id)
		if err != nil {
			return stats, fmt.Errorf("tile %s: %w", id, err)
		}
		log.Infof("%s: %d points, %d cells filled, %d empty, %.0f KB -> %.0f KB (gzip)",
			id, st.Points, st.Filled, st.Empty,
			float64(st.RawBytes)/1024, float64(st.GzipBytes)/1024)
		stats = append(stats, st)
		if bar != nil {
			bar.Increment()
		}
	}
	return stats, nil
}

func (c *Converter) convertTile(points []pointcloud.Point, id tileid.ID) (TileStats, error) {
	g := Rasterize(points, id.Origin(), c.cfg.Params)
	st := TileStats{Tile: id, Points: g.Points}
	st.Filled = g.FillGaps()
	st.Empty = g.Empty()

	var err error
	st.RawPath, st.GzipPath = c.store.Paths(id)
	st.RawBytes, st.GzipBytes, err = c.store.Write(id, Encode(g))
	return st, err
}

// ConvertFiles loads and converts each source file in turn, reporting
// progress to j (which may be nil). Any unreadable source or failed tile
// aborts the whole run.
func (c *Converter) ConvertFiles(ctx context.Context, paths []string, j Journal) ([]TileStats, error) {
	var all []TileStats
	start := time.Now()
	for i, p := range paths {
		if err := ctx.Err(); err != nil {
			return all, err
		}
		if j != nil {
			if err := j.Step(i+1, len(paths), filepath.Base(p)); err != nil {
				return all, err
			}
		}
		c.log.Infof("[%d/%d] converting %s", i+1, len(paths), p)

		cloud, err := c.reader.Open(ctx, p)
		if err != nil {
			return all, err
		}
		stats, err := c.Convert(cloud)
		all = append(all, stats...)
		if err != nil {
			return all, err
		}
	}
	if j != nil {
		if err := j.Done(len(paths)); err != nil {
			return all, err
		}
	}
	c.log.Infof("%d tiles from %d sources in %s", len(all), len(paths), time.Since(start).Round(time.Millisecond))
	return all, nil
}
