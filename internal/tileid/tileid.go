// Package tileid names the 1 km × 1 km tiles every pipeline stage is keyed by.
package tileid

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// Edge is the tile edge length in metres.
const Edge = 1000.0

// Ext is the suffix manifest entries and raw grid files carry.
const Ext = ".bin"

var ErrInvalidName = errors.New("invalid tile name")

// ID identifies a tile by its projected origin in kilometres.
type ID struct {
	X int
	Y int
}

// FromPoint returns the tile containing the projected point p.
func FromPoint(p orb.Point) ID {
	return ID{
		X: int(math.Floor(p.X() / Edge)),
		Y: int(math.Floor(p.Y() / Edge)),
	}
}

// String returns the canonical form tile_{x}_{y}.
func (id ID) String() string {
	return fmt.Sprintf("tile_%d_%d", id.X, id.Y)
}

// FileName returns tile_{x}_{y}.bin.
func (id ID) FileName() string {
	return id.String() + Ext
}

// Origin is the south-west corner of the tile in metres.
func (id ID) Origin() orb.Point {
	return orb.Point{float64(id.X) * Edge, float64(id.Y) * Edge}
}

// Bound returns the tile's extent for the given edge length.
func (id ID) Bound(edge float64) orb.Bound {
	o := id.Origin()
	return orb.Bound{Min: o, Max: orb.Point{o.X() + edge, o.Y() + edge}}
}

// Parse accepts tile_{x}_{y} with or without a trailing .bin.
func Parse(s string) (ID, error) {
	name := strings.TrimSuffix(strings.TrimSpace(s), Ext)
	parts := strings.Split(name, "_")
	if len(parts) != 3 || parts[0] != "tile" {
		return ID{}, fmt.Errorf("%w: %q", ErrInvalidName, s)
	}
	x, err := strconv.Atoi(parts[1])
	if err != nil {
		return ID{}, fmt.Errorf("%w: %q: bad x", ErrInvalidName, s)
	}
	y, err := strconv.Atoi(parts[2])
	if err != nil {
		return ID{}, fmt.Errorf("%w: %q: bad y", ErrInvalidName, s)
	}
	return ID{X: x, Y: y}, nil
}

// Set is a deduplicated collection of tile ids.
type Set map[ID]struct{}

func NewSet(ids ...ID) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

func (s Set) Add(id ID) {
	s[id] = struct{}{}
}

func (s Set) Has(id ID) bool {
	_, ok := s[id]
	return ok
}

// Union adds every id of o to s.
func (s Set) Union(o Set) {
	for id := range o {
		s.Add(id)
	}
}

// Sorted returns the ids ordered by x, then y.
func (s Set) Sorted() []ID {
	ids := make([]ID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if ids[i].X != ids[j].X {
			return ids[i].X < ids[j].X
		}
		return ids[i].Y < ids[j].Y
	})
	return ids
}

// Range returns the smallest and largest x and y over the set.
// ok is false for an empty set.
func (s Set) Range() (min, max ID, ok bool) {
	first := true
	for id := range s {
		if first {
			min, max, first = id, id, false
			continue
		}
		if id.X < min.X {
			min.X = id.X
		}
		if id.Y < min.Y {
			min.Y = id.Y
		}
		if id.X > max.X {
			max.X = id.X
		}
		if id.Y > max.Y {
			max.Y = id.Y
		}
	}
	return min, max, !first
}
