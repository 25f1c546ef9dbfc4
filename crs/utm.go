package crs

import "math"

// WGS84 ellipsoid.
const (
	semiMajor  = 6378137.0
	flattening = 1.0 / 298.257223563
)

const (
	utmScale        = 0.9996
	utmFalseEasting = 500000.0
	utmFalseNorth   = 10000000.0
)

// UTM implements the WGS84 Universal Transverse Mercator zones
// (EPSG:326xx north, EPSG:327xx south) with the standard Snyder series,
// good to well under a millimeter inside a zone.
type UTM struct {
	Zone  int
	South bool
}

func (u UTM) EPSG() int {
	if u.South {
		return 32700 + u.Zone
	}
	return 32600 + u.Zone
}

func (u UTM) centralMeridian() float64 {
	return float64(u.Zone)*6.0 - 183.0
}

func (u UTM) FromWGS84(lon, lat float64) (x, y float64) {
	a := semiMajor
	e2 := flattening * (2 - flattening)
	ep2 := e2 / (1 - e2)

	phi := lat * math.Pi / 180.0
	dLam := (lon - u.centralMeridian()) * math.Pi / 180.0

	sinPhi := math.Sin(phi)
	cosPhi := math.Cos(phi)
	tanPhi := math.Tan(phi)

	n := a / math.Sqrt(1-e2*sinPhi*sinPhi)
	t := tanPhi * tanPhi
	c := ep2 * cosPhi * cosPhi
	aCap := cosPhi * dLam

	m := a * ((1-e2/4-3*e2*e2/64-5*e2*e2*e2/256)*phi -
		(3*e2/8+3*e2*e2/32+45*e2*e2*e2/1024)*math.Sin(2*phi) +
		(15*e2*e2/256+45*e2*e2*e2/1024)*math.Sin(4*phi) -
		(35*e2*e2*e2/3072)*math.Sin(6*phi))

	x = utmScale*n*(aCap+(1-t+c)*aCap*aCap*aCap/6+
		(5-18*t+t*t+72*c-58*ep2)*math.Pow(aCap, 5)/120) + utmFalseEasting
	y = utmScale * (m + n*tanPhi*(aCap*aCap/2+
		(5-t+9*c+4*c*c)*math.Pow(aCap, 4)/24+
		(61-58*t+t*t+600*c-330*ep2)*math.Pow(aCap, 6)/720))
	if u.South {
		y += utmFalseNorth
	}
	return x, y
}

func (u UTM) ToWGS84(x, y float64) (lon, lat float64) {
	a := semiMajor
	e2 := flattening * (2 - flattening)
	ep2 := e2 / (1 - e2)
	e1 := (1 - math.Sqrt(1-e2)) / (1 + math.Sqrt(1-e2))

	dx := x - utmFalseEasting
	dy := y
	if u.South {
		dy -= utmFalseNorth
	}

	m := dy / utmScale
	mu := m / (a * (1 - e2/4 - 3*e2*e2/64 - 5*e2*e2*e2/256))

	phi1 := mu + (3*e1/2-27*e1*e1*e1/32)*math.Sin(2*mu) +
		(21*e1*e1/16-55*e1*e1*e1*e1/32)*math.Sin(4*mu) +
		(151*e1*e1*e1/96)*math.Sin(6*mu) +
		(1097*e1*e1*e1*e1/512)*math.Sin(8*mu)

	sinPhi1 := math.Sin(phi1)
	cosPhi1 := math.Cos(phi1)
	tanPhi1 := math.Tan(phi1)

	c1 := ep2 * cosPhi1 * cosPhi1
	t1 := tanPhi1 * tanPhi1
	n1 := a / math.Sqrt(1-e2*sinPhi1*sinPhi1)
	r1 := a * (1 - e2) / math.Pow(1-e2*sinPhi1*sinPhi1, 1.5)
	d := dx / (n1 * utmScale)

	lat = phi1 - (n1*tanPhi1/r1)*(d*d/2-
		(5+3*t1+10*c1-4*c1*c1-9*ep2)*math.Pow(d, 4)/24+
		(61+90*t1+298*c1+45*t1*t1-252*ep2-3*c1*c1)*math.Pow(d, 6)/720)
	lon = (d - (1+2*t1+c1)*d*d*d/6 +
		(5-2*c1+28*t1-3*c1*c1+8*ep2+24*t1*t1)*math.Pow(d, 5)/120) / cosPhi1

	lat = lat * 180.0 / math.Pi
	lon = u.centralMeridian() + lon*180.0/math.Pi
	return lon, lat
}
