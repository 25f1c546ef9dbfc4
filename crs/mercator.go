package crs

import "math"

// EarthCircumference is the WGS84 equatorial circumference in meters.
const EarthCircumference = 40075016.685578488

// OriginShift is half the equatorial circumference: the web mercator
// coordinate of the antimeridian.
const OriginShift = EarthCircumference / 2.0

// WebMercator implements EPSG:3857, the spherical mercator used by
// slippy-map tile schemes.
type WebMercator struct{}

func (WebMercator) EPSG() int { return 3857 }

func (WebMercator) ToWGS84(x, y float64) (lon, lat float64) {
	lon = (x / OriginShift) * 180.0
	lat = (y / OriginShift) * 180.0
	lat = 180.0 / math.Pi * (2.0*math.Atan(math.Exp(lat*math.Pi/180.0)) - math.Pi/2.0)
	return
}

func (WebMercator) FromWGS84(lon, lat float64) (x, y float64) {
	x = lon * OriginShift / 180.0
	y = math.Log(math.Tan((90.0+lat)*math.Pi/360.0)) / (math.Pi / 180.0)
	y = y * OriginShift / 180.0
	return
}
