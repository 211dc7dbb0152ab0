// Package raster turns lidar returns into tile-aligned digital surface
// model grids and persists them as centimetre-quantized uint16 arrays.
package raster

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/stat"

	"windtiler/internal/pointcloud"
	"windtiler/internal/tileid"
)

// Params fixes the grid geometry of a conversion run. Neither value is
// stored in the output files; consumers must be told out-of-band.
type Params struct {
	TileEdge   float64 // metres
	Resolution float64 // metres per cell
}

func DefaultParams() Params {
	return Params{TileEdge: tileid.Edge, Resolution: 1}
}

// GridSize is the number of cells along one tile edge.
func (p Params) GridSize() int {
	return int(p.TileEdge / p.Resolution)
}

// Validate rejects geometries that cannot be named or gridded. Tile files
// are named in kilometres, so the edge must be a whole number of them.
func (p Params) Validate() error {
	if p.TileEdge <= 0 || math.Mod(p.TileEdge, tileid.Edge) != 0 {
		return fmt.Errorf("tile edge %gm must be a positive multiple of %gm", p.TileEdge, tileid.Edge)
	}
	if p.Resolution <= 0 || p.Resolution > p.TileEdge {
		return fmt.Errorf("resolution %gm must be in (0, %g]", p.Resolution, p.TileEdge)
	}
	return nil
}

// HeightGrid is a Size×Size row-major array of elevations in metres.
// Row 0 is the southern edge of the tile, column 0 the western edge.
// Zero means no data.
type HeightGrid struct {
	Origin     orb.Point
	Size       int
	Resolution float64
	Cells      []float64
	// Points is the number of returns that fell into the tile.
	Points int
}

func NewHeightGrid(origin orb.Point, p Params) *HeightGrid {
	n := p.GridSize()
	return &HeightGrid{
		Origin:     origin,
		Size:       n,
		Resolution: p.Resolution,
		Cells:      make([]float64, n*n),
	}
}

func (g *HeightGrid) At(row, col int) float64 {
	return g.Cells[row*g.Size+col]
}

func (g *HeightGrid) Set(row, col int, v float64) {
	g.Cells[row*g.Size+col] = v
}

// Bound is the tile extent covered by the grid.
func (g *HeightGrid) Bound() orb.Bound {
	edge := float64(g.Size) * g.Resolution
	return orb.Bound{Min: g.Origin, Max: orb.Point{g.Origin.X() + edge, g.Origin.Y() + edge}}
}

// Cell maps a projected position to its grid cell. Positions on or past
// the far edge land in the last row/column.
func (g *HeightGrid) Cell(x, y float64) (row, col int) {
	col = clamp(int(math.Floor((x-g.Origin.X())/g.Resolution)), 0, g.Size-1)
	row = clamp(int(math.Floor((y-g.Origin.Y())/g.Resolution)), 0, g.Size-1)
	return row, col
}

// Add records a return; the highest return of a cell wins.
func (g *HeightGrid) Add(p pointcloud.Point) {
	row, col := g.Cell(p.X, p.Y)
	i := row*g.Size + col
	if p.Z > g.Cells[i] {
		g.Cells[i] = p.Z
	}
	g.Points++
}

// Rasterize builds the grid of the tile at origin from every point inside
// the half-open box [origin, origin+edge) on both axes.
func Rasterize(points []pointcloud.Point, origin orb.Point, p Params) *HeightGrid {
	g := NewHeightGrid(origin, p)
	minX, minY := origin.X(), origin.Y()
	maxX, maxY := minX+p.TileEdge, minY+p.TileEdge
	for _, pt := range points {
		if pt.X < minX || pt.X >= maxX || pt.Y < minY || pt.Y >= maxY {
			continue
		}
		g.Add(pt)
	}
	return g
}

// FillGaps gives every empty cell the mean of its non-empty neighbours
// (up to 8). It is a single pass over the grid as it was before the call,
// so gaps wider than two cells keep an empty core. It returns the number
// of cells filled.
//
// Neighbours filled during the pass are not used. An in-place row-major
// fill would let those values spread right and down within one pass; here
// the result does not depend on scan order and a cell with no non-empty
// neighbour stays empty.
func (g *HeightGrid) FillGaps() int {
	src := make([]float64, len(g.Cells))
	copy(src, g.Cells)

	var neighbours [8]float64
	filled := 0
	for row := 0; row < g.Size; row++ {
		for col := 0; col < g.Size; col++ {
			if src[row*g.Size+col] != 0 {
				continue
			}
			n := 0
			for dr := -1; dr <= 1; dr++ {
				r := row + dr
				if r < 0 || r >= g.Size {
					continue
				}
				for dc := -1; dc <= 1; dc++ {
					c := col + dc
					if (dr == 0 && dc == 0) || c < 0 || c >= g.Size {
						continue
					}
					if v := src[r*g.Size+c]; v != 0 {
						neighbours[n] = v
						n++
					}
				}
			}
			if n > 0 {
				g.Cells[row*g.Size+col] = stat.Mean(neighbours[:n], nil)
				filled++
			}
		}
	}
	return filled
}

// Empty counts cells without data.
func (g *HeightGrid) Empty() int {
	n := 0
	for _, v := range g.Cells {
		if v == 0 {
			n++
		}
	}
	return n
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
