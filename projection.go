package cloudtiff

import (
	"fmt"
	"math"

	"github.com/airbusgeo/cloudtiff/crs"
	"github.com/airbusgeo/cloudtiff/geotags"
)

// Projection georeferences a COG: the CRS of the file plus the affine
// mapping between unit image coordinates and projected coordinates.
// Origin is the projected position of the image's top-left corner;
// Scale is the projected extent of the full image on each axis.
type Projection struct {
	EPSG   uint16
	CRS    crs.CRS
	Origin [3]float64
	Scale  [3]float64
}

// projectionFromGeoTags derives the projection for an image of the
// given full-resolution dimensions. Declared angular units are
// converted to degrees; a geographic CRS with no declared unit is
// assumed to carry degrees.
func projectionFromGeoTags(geo *geotags.GeoTags, width, height uint32) (Projection, error) {
	code, _, err := geo.EPSG()
	if err != nil {
		return Projection{}, err
	}
	system, err := crs.ForEPSG(code)
	if err != nil {
		return Projection{}, err
	}

	if !geo.Model.Scaled() {
		return Projection{}, geotags.ErrUnsupportedModelTransformation
	}
	gain := geo.AngularUnitGain()
	tiepoint := geo.Model.Tiepoint
	pixelScale := geo.Model.PixelScale

	origin := [3]float64{tiepoint[3] * gain, tiepoint[4] * gain, tiepoint[5] * gain}
	for _, v := range origin {
		if !isFinite(v) {
			return Projection{}, fmt.Errorf("%w: %v", ErrInvalidOrigin, origin)
		}
	}

	scaled := [3]float64{pixelScale[0] * gain, pixelScale[1] * gain, pixelScale[2]}
	if !isNormal(scaled[0]) || !isNormal(scaled[1]) {
		return Projection{}, fmt.Errorf("%w: %v", ErrInvalidScale, scaled)
	}
	scale := [3]float64{
		scaled[0] * float64(width),
		scaled[1] * float64(height),
		scaled[2],
	}

	return Projection{
		EPSG:   uint16(code),
		CRS:    system,
		Origin: origin,
		Scale:  scale,
	}, nil
}

func isFinite(v float64) bool {
	return !math.IsInf(v, 0) && !math.IsNaN(v)
}

func isNormal(v float64) bool {
	return isFinite(v) && v != 0
}

// toNative converts coordinates from another CRS into this
// projection's native units, hubbing through WGS84 degrees.
func (p Projection) toNative(x, y float64, from crs.CRS) (float64, float64) {
	if from.EPSG() == p.CRS.EPSG() {
		return x, y
	}
	lon, lat := from.ToWGS84(x, y)
	return p.CRS.FromWGS84(lon, lat)
}

// fromNative converts native coordinates into another CRS.
func (p Projection) fromNative(x, y float64, to crs.CRS) (float64, float64) {
	if to.EPSG() == p.CRS.EPSG() {
		return x, y
	}
	lon, lat := p.CRS.ToWGS84(x, y)
	return to.FromWGS84(lon, lat)
}

// TransformFrom maps a point in the from CRS to unit image coordinates
// (u right, v down, both in [0,1] inside the image).
func (p Projection) TransformFrom(x, y, z float64, from crs.CRS) (u, v, w float64) {
	nx, ny := p.toNative(x, y, from)
	u = (nx - p.Origin[0]) / p.Scale[0]
	v = (p.Origin[1] - ny) / p.Scale[1]
	w = z - p.Origin[2]
	return
}

// TransformInto maps unit image coordinates into the to CRS.
func (p Projection) TransformInto(u, v, w float64, to crs.CRS) (x, y, z float64) {
	nx := p.Origin[0] + u*p.Scale[0]
	ny := p.Origin[1] - v*p.Scale[1]
	x, y = p.fromNative(nx, ny, to)
	z = p.Origin[2] + w
	return
}

// TransformFromLatLonDeg maps WGS84 degrees to unit image coordinates.
func (p Projection) TransformFromLatLonDeg(lat, lon float64) (u, v float64) {
	u, v, _ = p.TransformFrom(lon, lat, 0, crs.WGS84{})
	return
}

// BoundsLatLonDeg returns the image footprint in WGS84 degrees,
// sampling the edge midpoints as well as the corners so curved edges
// in the source CRS are not cut short.
func (p Projection) BoundsLatLonDeg() Region {
	return p.boundsIn(crs.WGS84{})
}

func (p Projection) boundsIn(to crs.CRS) Region {
	samples := [][2]float64{
		{0, 0}, {0.5, 0}, {1, 0}, {1, 0.5},
		{1, 1}, {0.5, 1}, {0, 1}, {0, 0.5},
	}
	bounds := Region{math.MaxFloat64, math.MaxFloat64, -math.MaxFloat64, -math.MaxFloat64}
	for _, s := range samples {
		x, y, _ := p.TransformInto(s[0], s[1], 0, to)
		bounds = bounds.Extend(x, y)
	}
	return bounds
}
