package raster

import (
	"math"
	"math/rand"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"windtiler/internal/pointcloud"
)

var origin = orb.Point{459000, 5722000}

func TestParamsValidate(t *testing.T) {
	assert.NoError(t, DefaultParams().Validate())
	assert.NoError(t, Params{TileEdge: 2000, Resolution: 0.5}.Validate())
	assert.Error(t, Params{TileEdge: 500, Resolution: 1}.Validate())
	assert.Error(t, Params{TileEdge: 1000, Resolution: 0}.Validate())
	assert.Error(t, Params{TileEdge: 1000, Resolution: 2000}.Validate())
	assert.Equal(t, 1000, DefaultParams().GridSize())
	assert.Equal(t, 4, Params{TileEdge: 1000, Resolution: 250}.GridSize())
}

func TestRasterizeHighestReturnWins(t *testing.T) {
	p := Params{TileEdge: 1000, Resolution: 250}
	g := Rasterize([]pointcloud.Point{
		{X: 459010, Y: 5722010, Z: 70},
		{X: 459200, Y: 5722100, Z: 95.5}, // same cell, higher
		{X: 459100, Y: 5722240, Z: 80},   // same cell, lower
		{X: 459600, Y: 5722800, Z: 42},
	}, origin, p)

	assert.Equal(t, 4, g.Points)
	assert.Equal(t, 95.5, g.At(0, 0))
	assert.Equal(t, 42.0, g.At(3, 2))
	assert.Equal(t, 0.0, g.At(1, 1))
}

func TestRasterizeMembershipIsHalfOpen(t *testing.T) {
	p := Params{TileEdge: 1000, Resolution: 250}
	g := Rasterize([]pointcloud.Point{
		{X: 458999.99, Y: 5722500, Z: 1}, // west of tile
		{X: 460000, Y: 5722500, Z: 2},    // on the east edge, belongs to the next tile
		{X: 459500, Y: 5723000, Z: 3},    // on the north edge
		{X: 459000, Y: 5722000, Z: 4},    // origin is inside
	}, origin, p)

	assert.Equal(t, 1, g.Points)
	assert.Equal(t, 4.0, g.At(0, 0))
}

func TestCellClampsFarEdge(t *testing.T) {
	g := NewHeightGrid(origin, Params{TileEdge: 1000, Resolution: 1})
	row, col := g.Cell(460000, 5723000)
	assert.Equal(t, 999, row)
	assert.Equal(t, 999, col)
	row, col = g.Cell(460123, 5722000.5)
	assert.Equal(t, 0, row)
	assert.Equal(t, 999, col)
	row, col = g.Cell(458000, 5721000)
	assert.Equal(t, 0, row)
	assert.Equal(t, 0, col)
}

func TestMembershipProperty(t *testing.T) {
	rnd := rand.New(rand.NewSource(127))
	p := Params{TileEdge: 1000, Resolution: 0.7}
	var points []pointcloud.Point
	for i := 0; i < 20000; i++ {
		points = append(points, pointcloud.Point{
			X: 458500 + rnd.Float64()*2000,
			Y: 5721500 + rnd.Float64()*2000,
			Z: 1 + rnd.Float64()*100,
		})
	}

	g := Rasterize(points, origin, p)
	want := 0
	for _, pt := range points {
		if pt.X >= origin.X() && pt.X < origin.X()+p.TileEdge &&
			pt.Y >= origin.Y() && pt.Y < origin.Y()+p.TileEdge {
			want++
			row, col := g.Cell(pt.X, pt.Y)
			require.GreaterOrEqual(t, g.At(row, col), pt.Z)
		}
	}
	assert.Equal(t, want, g.Points)
}

func TestFillGaps(t *testing.T) {
	g := NewHeightGrid(origin, Params{TileEdge: 1000, Resolution: 200}) // 5×5
	g.Set(0, 0, 10)
	g.Set(0, 2, 20)
	g.Set(2, 0, 30)

	filled := g.FillGaps()

	assert.Equal(t, 10.0, g.At(0, 0), "measured cells are untouched")
	assert.InDelta(t, (10+20)/2.0, g.At(0, 1), 1e-12)
	assert.InDelta(t, (10+20+30)/3.0, g.At(1, 1), 1e-12)
	assert.InDelta(t, (10+30)/2.0, g.At(1, 0), 1e-12)
	assert.InDelta(t, 20.0, g.At(1, 3), 1e-12)
	assert.InDelta(t, 30.0, g.At(3, 1), 1e-12)

	// Single pass: cells whose only neighbours were filled in this pass stay empty.
	assert.Equal(t, 0.0, g.At(2, 2))
	assert.Equal(t, 0.0, g.At(4, 4))
	assert.Equal(t, 0.0, g.At(0, 4))
	assert.Equal(t, 9, filled)
	assert.Equal(t, 25-3-9, g.Empty())
}

func TestFillGapsEmptyGrid(t *testing.T) {
	g := NewHeightGrid(origin, Params{TileEdge: 1000, Resolution: 100})
	assert.Zero(t, g.FillGaps())
	assert.Equal(t, 100, g.Empty())
}

func TestQuantize(t *testing.T) {
	cases := []struct {
		in   float64
		want uint16
	}{
		{0, 0},
		{-3.2, 0},
		{math.NaN(), 0},
		{0.004, 0},
		{0.005, 1},
		{123.456, 12346},
		{655.35, 65535},
		{700, 65535},
		{math.Inf(1), 65535},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Quantize(tc.in), "Quantize(%v)", tc.in)
	}
}

func TestQuantizationLaw(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	for i := 0; i < 100000; i++ {
		v := rnd.Float64() * MaxHeight
		got := Dequantize(Quantize(v))
		if math.Abs(got-v) > 0.005+1e-9 {
			t.Fatalf("Dequantize(Quantize(%v)) = %v", v, got)
		}
	}
}

func TestEncodeDecode(t *testing.T) {
	g := NewHeightGrid(origin, Params{TileEdge: 1000, Resolution: 500})
	g.Set(0, 0, 1.23)
	g.Set(0, 1, 655.35)
	g.Set(1, 0, 0)
	g.Set(1, 1, 2.56)

	data := Encode(g)
	assert.Equal(t, []byte{0x7b, 0x00, 0xff, 0xff, 0x00, 0x00, 0x00, 0x01}, data)

	vals, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, []uint16{123, 65535, 0, 256}, vals)

	_, err = Decode([]byte{1, 2, 3})
	assert.Error(t, err)
}
