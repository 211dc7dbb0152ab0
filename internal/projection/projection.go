// Package projection converts WGS84 geographic coordinates into the planar
// transverse Mercator grid the lidar tiles are cut from.
package projection

import (
	"math"

	"github.com/paulmach/orb"
)

// GeoPoint is a WGS84 position in degrees.
type GeoPoint struct {
	Lat float64
	Lon float64
}

// ProjectedPoint is a position in metres in the projected system.
type ProjectedPoint struct {
	Easting  float64
	Northing float64
}

// Point returns p as an orb point (X = easting, Y = northing).
func (p ProjectedPoint) Point() orb.Point {
	return orb.Point{p.Easting, p.Northing}
}

// Projection holds the ellipsoid and the transverse Mercator parameters.
type Projection struct {
	SemiMajorAxis   float64 // metres
	Flattening      float64
	ScaleFactor     float64 // k0
	FalseEasting    float64 // metres
	FalseNorthing   float64 // metres
	CentralMeridian float64 // degrees
}

// UTM33N is ETRS89 / UTM zone 33N (EPSG:25833), the grid the Brandenburg
// lidar tiles are published in.
func UTM33N() Projection {
	return Projection{
		SemiMajorAxis:   6378137.0,
		Flattening:      1 / 298.257223563,
		ScaleFactor:     0.9996,
		FalseEasting:    500000,
		FalseNorthing:   0,
		CentralMeridian: 15,
	}
}

// Project converts g into easting/northing. Accuracy degrades outside
// roughly ±3° of the central meridian; such input is still accepted.
func (p Projection) Project(g GeoPoint) ProjectedPoint {
	a := p.SemiMajorAxis
	f := p.Flattening
	e2 := 2*f - f*f
	ep2 := e2 / (1 - e2)

	phi := g.Lat * math.Pi / 180
	dLambda := (g.Lon - p.CentralMeridian) * math.Pi / 180

	sinPhi, cosPhi := math.Sincos(phi)
	tanPhi := math.Tan(phi)

	m := p.meridionalArc(phi)

	nu := a / math.Sqrt(1-e2*sinPhi*sinPhi)
	t := tanPhi * tanPhi
	c := ep2 * cosPhi * cosPhi
	az := dLambda * cosPhi
	az2 := az * az
	az3 := az2 * az
	az4 := az3 * az
	az5 := az4 * az
	az6 := az5 * az

	x := az +
		(1-t+c)*az3/6 +
		(5-18*t+t*t+72*c-58*ep2)*az5/120
	y := m + nu*tanPhi*(az2/2+
		(5-t+9*c+4*c*c)*az4/24+
		(61-58*t+t*t+600*c-330*ep2)*az6/720)

	return ProjectedPoint{
		Easting:  p.FalseEasting + p.ScaleFactor*nu*x,
		Northing: p.FalseNorthing + p.ScaleFactor*y,
	}
}

// meridionalArc is the distance along the meridian from the equator to
// latitude phi (radians), Helmert's series in the third flattening n.
func (p Projection) meridionalArc(phi float64) float64 {
	f := p.Flattening
	n := f / (2 - f)
	n2 := n * n
	n3 := n2 * n
	n4 := n3 * n
	n6 := n4 * n2

	scale := p.SemiMajorAxis / (1 + n) * (1 + n2/4 + n4/64 + n6/256)
	return scale * (phi -
		(3*n/2-9*n3/16)*math.Sin(2*phi) +
		(15*n2/16-15*n4/64)*math.Sin(4*phi) -
		(35*n3/48)*math.Sin(6*phi) +
		(315*n4/512)*math.Sin(8*phi))
}
