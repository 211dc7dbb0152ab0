// Package indexer works out which lidar tiles cover the surroundings of a
// set of sites.
package indexer

import (
	"fmt"
	"math"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"windtiler/internal/projection"
	"windtiler/internal/tileid"
)

// Site is a named point of interest, typically a turbine position.
type Site struct {
	Name  string
	Point projection.GeoPoint
}

// SiteTiles is the per-site part of an index run.
type SiteTiles struct {
	Site      Site
	Projected projection.ProjectedPoint
	Tile      tileid.ID
	Tiles     tileid.Set
}

// Result is the union of tiles required by all sites.
type Result struct {
	Sites  []SiteTiles
	Tiles  tileid.Set
	Radius float64
}

// TilesInRadius returns every tile whose cell intersects the square that
// bounds a disc of radiusMeters around g. The square over-includes a few
// corner tiles compared to the disc.
func TilesInRadius(proj projection.Projection, g projection.GeoPoint, radiusMeters float64) tileid.Set {
	center := proj.Project(g).Point()
	return tilesInBound(orb.Bound{
		Min: orb.Point{center.X() - radiusMeters, center.Y() - radiusMeters},
		Max: orb.Point{center.X() + radiusMeters, center.Y() + radiusMeters},
	})
}

func tilesInBound(b orb.Bound) tileid.Set {
	minX := int(math.Floor(b.Min.X() / tileid.Edge))
	maxX := int(math.Floor(b.Max.X() / tileid.Edge))
	minY := int(math.Floor(b.Min.Y() / tileid.Edge))
	maxY := int(math.Floor(b.Max.Y() / tileid.Edge))

	tiles := tileid.NewSet()
	for x := minX; x <= maxX; x++ {
		for y := minY; y <= maxY; y++ {
			tiles.Add(tileid.ID{X: x, Y: y})
		}
	}
	return tiles
}

// Index collects the tiles of every site into one deduplicated set.
func Index(proj projection.Projection, sites []Site, radiusMeters float64) Result {
	res := Result{Tiles: tileid.NewSet(), Radius: radiusMeters}
	for _, s := range sites {
		pp := proj.Project(s.Point)
		tiles := TilesInRadius(proj, s.Point, radiusMeters)
		res.Tiles.Union(tiles)
		res.Sites = append(res.Sites, SiteTiles{
			Site:      s,
			Projected: pp,
			Tile:      tileid.FromPoint(pp.Point()),
			Tiles:     tiles,
		})
	}
	return res
}

// LoadSites reads Point features from a GeoJSON FeatureCollection. The
// feature's "name" property names the site; other geometry types are ignored.
func LoadSites(path string) ([]Site, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read sites: %w", err)
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("unable to unmarshal sites %s: %w", path, err)
	}

	var sites []Site
	for i, f := range fc.Features {
		p, ok := f.Geometry.(orb.Point)
		if !ok {
			continue
		}
		name := f.Properties.MustString("name", fmt.Sprintf("site-%d", i+1))
		sites = append(sites, Site{
			Name:  name,
			Point: projection.GeoPoint{Lat: p.Lat(), Lon: p.Lon()},
		})
	}
	return sites, nil
}
