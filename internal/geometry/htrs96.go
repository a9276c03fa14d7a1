package geometry

import (
	"math"

	"github.com/paulmach/orb"
)

// HTRS96/TM (EPSG:3765): transverse Mercator on the GRS80 ellipsoid,
// central meridian 16.5°E, scale 0.9999, false easting 500000 m.
// Forward/inverse use the standard series expansions (Snyder), which are
// well under a millimetre of error across Croatia.
const (
	grs80A = 6378137.0
	grs80F = 1.0 / 298.257222101

	tmLon0         = 16.5 * math.Pi / 180.0
	tmScale        = 0.9999
	tmFalseEasting = 500000.0
)

var (
	e2  = grs80F * (2 - grs80F)
	e4  = e2 * e2
	e6  = e4 * e2
	ep2 = e2 / (1 - e2)

	// Meridional arc coefficients.
	m0 = 1 - e2/4 - 3*e4/64 - 5*e6/256
	m2 = 3*e2/8 + 3*e4/32 + 45*e6/1024
	m4 = 15*e4/256 + 45*e6/1024
	m6 = 35 * e6 / 3072

	// Footpoint latitude coefficients.
	e1 = (1 - math.Sqrt(1-e2)) / (1 + math.Sqrt(1-e2))
	f2 = 3*e1/2 - 27*e1*e1*e1/32
	f4 = 21*e1*e1/16 - 55*e1*e1*e1*e1/32
	f6 = 151 * e1 * e1 * e1 / 96
	f8 = 1097 * e1 * e1 * e1 * e1 / 512
)

// htrs96Forward projects a lon/lat point (degrees) to easting/northing.
func htrs96Forward(p orb.Point) orb.Point {
	lon := p[0] * math.Pi / 180.0
	lat := p[1] * math.Pi / 180.0

	sinLat := math.Sin(lat)
	cosLat := math.Cos(lat)
	tanLat := math.Tan(lat)

	n := grs80A / math.Sqrt(1-e2*sinLat*sinLat)
	t := tanLat * tanLat
	c := ep2 * cosLat * cosLat
	a := (lon - tmLon0) * cosLat

	m := grs80A * (m0*lat - m2*math.Sin(2*lat) + m4*math.Sin(4*lat) - m6*math.Sin(6*lat))

	a2 := a * a
	a3 := a2 * a
	a4 := a3 * a
	a5 := a4 * a
	a6 := a5 * a

	x := tmScale*n*(a+(1-t+c)*a3/6+(5-18*t+t*t+72*c-58*ep2)*a5/120) + tmFalseEasting
	y := tmScale * (m + n*tanLat*(a2/2+(5-t+9*c+4*c*c)*a4/24+(61-58*t+t*t+600*c-330*ep2)*a6/720))

	return orb.Point{x, y}
}

// htrs96Inverse projects easting/northing back to lon/lat (degrees).
func htrs96Inverse(p orb.Point) orb.Point {
	x := p[0] - tmFalseEasting
	y := p[1]

	m := y / tmScale
	mu := m / (grs80A * m0)

	// Footpoint latitude.
	phi1 := mu + f2*math.Sin(2*mu) + f4*math.Sin(4*mu) + f6*math.Sin(6*mu) + f8*math.Sin(8*mu)

	sinPhi1 := math.Sin(phi1)
	cosPhi1 := math.Cos(phi1)
	tanPhi1 := math.Tan(phi1)

	c1 := ep2 * cosPhi1 * cosPhi1
	t1 := tanPhi1 * tanPhi1
	n1 := grs80A / math.Sqrt(1-e2*sinPhi1*sinPhi1)
	r1 := grs80A * (1 - e2) / math.Pow(1-e2*sinPhi1*sinPhi1, 1.5)
	d := x / (n1 * tmScale)

	d2 := d * d
	d3 := d2 * d
	d4 := d3 * d
	d5 := d4 * d
	d6 := d5 * d

	lat := phi1 - (n1*tanPhi1/r1)*(d2/2-(5+3*t1+10*c1-4*c1*c1-9*ep2)*d4/24+
		(61+90*t1+298*c1+45*t1*t1-252*ep2-3*c1*c1)*d6/720)
	lon := tmLon0 + (d-(1+2*t1+c1)*d3/6+
		(5-2*c1+28*t1-3*c1*c1+8*ep2+24*t1*t1)*d5/120)/cosPhi1

	return orb.Point{lon * 180.0 / math.Pi, lat * 180.0 / math.Pi}
}
