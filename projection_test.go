package cloudtiff

import (
	"math"
	"testing"

	"github.com/airbusgeo/cloudtiff/crs"
	"github.com/airbusgeo/cloudtiff/geotags"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func utmGeoTags(tiepoint, pixelScale []float64) *geotags.GeoTags {
	geo := &geotags.GeoTags{
		Model:     geotags.Model{Tiepoint: tiepoint, PixelScale: pixelScale},
		Directory: geotags.Directory{Version: 1, Revision: 1},
	}
	geo.Directory.SetKey(geotags.KeyGTModelType, geotags.ShortValue(geotags.ModelTypeProjected))
	geo.Directory.SetKey(geotags.KeyProjectedCSType, geotags.ShortValue(32609))
	return geo
}

func TestProjectionFromGeoTags(t *testing.T) {
	geo := utmGeoTags(
		[]float64{0, 0, 0, 499980, 6100020, 0},
		[]float64{10, 10, 0},
	)
	p, err := projectionFromGeoTags(geo, 1024, 1024)
	require.NoError(t, err)

	assert.Equal(t, uint16(32609), p.EPSG)
	assert.Equal(t, [3]float64{499980, 6100020, 0}, p.Origin)
	assert.Equal(t, 10240.0, p.Scale[0])
	assert.Equal(t, 10240.0, p.Scale[1])
}

func TestProjectionUnitTransforms(t *testing.T) {
	geo := utmGeoTags(
		[]float64{0, 0, 0, 499980, 6100020, 0},
		[]float64{10, 10, 0},
	)
	p, err := projectionFromGeoTags(geo, 1024, 1024)
	require.NoError(t, err)

	// Identity CRS: image corners map to the projected corners.
	same, err := crs.ForEPSG(32609)
	require.NoError(t, err)
	u, v, _ := p.TransformFrom(499980, 6100020, 0, same)
	assert.InDelta(t, 0, u, 1e-12)
	assert.InDelta(t, 0, v, 1e-12)
	u, v, _ = p.TransformFrom(510220, 6089780, 0, same)
	assert.InDelta(t, 1, u, 1e-12)
	assert.InDelta(t, 1, v, 1e-12)

	x, y, _ := p.TransformInto(0.5, 0.5, 0, same)
	assert.InDelta(t, 505100, x, 1e-6)
	assert.InDelta(t, 6094900, y, 1e-6)
}

func TestProjectionCrossCRS(t *testing.T) {
	geo := utmGeoTags(
		[]float64{0, 0, 0, 499980, 6100020, 0},
		[]float64{10, 10, 0},
	)
	p, err := projectionFromGeoTags(geo, 1024, 1024)
	require.NoError(t, err)

	// Into WGS84 and back lands on the same unit coordinates, within the
	// UTM series' sub-millimetre round-trip error (1e-7 of the 10240 m
	// extent is about 1 mm).
	wgs := crs.WGS84{}
	lon, lat, _ := p.TransformInto(0.25, 0.75, 0, wgs)
	u, v, _ := p.TransformFrom(lon, lat, 0, wgs)
	assert.InDelta(t, 0.25, u, 1e-7)
	assert.InDelta(t, 0.75, v, 1e-7)

	bounds := p.BoundsLatLonDeg()
	assert.Greater(t, bounds.MaxY, bounds.MinY)
	assert.Greater(t, bounds.MaxX, bounds.MinX)
	// Zone 9 covers 132W..126W.
	assert.Greater(t, bounds.MinX, -132.0)
	assert.Less(t, bounds.MaxX, -126.0)
}

func TestProjectionInvalidOrigin(t *testing.T) {
	geo := utmGeoTags(
		[]float64{0, 0, 0, math.Inf(1), 6100020, 0},
		[]float64{10, 10, 0},
	)
	_, err := projectionFromGeoTags(geo, 1024, 1024)
	assert.ErrorIs(t, err, ErrInvalidOrigin)
}

func TestProjectionInvalidScale(t *testing.T) {
	geo := utmGeoTags(
		[]float64{0, 0, 0, 499980, 6100020, 0},
		[]float64{0, 10, 0},
	)
	_, err := projectionFromGeoTags(geo, 1024, 1024)
	assert.ErrorIs(t, err, ErrInvalidScale)
}

func TestProjectionTransformedModelRejected(t *testing.T) {
	geo := &geotags.GeoTags{
		Model:     geotags.Model{Transformation: make([]float64, 16)},
		Directory: geotags.Directory{Version: 1, Revision: 1},
	}
	geo.Directory.SetKey(geotags.KeyProjectedCSType, geotags.ShortValue(32609))
	_, err := projectionFromGeoTags(geo, 64, 64)
	assert.ErrorIs(t, err, geotags.ErrUnsupportedModelTransformation)
}

func TestProjectionMissingCRSKey(t *testing.T) {
	geo := &geotags.GeoTags{
		Model: geotags.Model{
			Tiepoint:   []float64{0, 0, 0, 0, 0, 0},
			PixelScale: []float64{1, 1, 0},
		},
	}
	_, err := projectionFromGeoTags(geo, 64, 64)
	var missing *geotags.MissingKeyError
	assert.ErrorAs(t, err, &missing)
}

func TestRegionHelpers(t *testing.T) {
	r := NewRegion(1, 2, 5, 10)
	assert.Equal(t, 4.0, r.Width())
	assert.Equal(t, 8.0, r.Height())
	assert.True(t, r.Intersects(NewRegion(4, 9, 6, 11)))
	assert.False(t, r.Intersects(NewRegion(5, 2, 6, 3)))

	clamped := NewRegion(-0.5, 0.2, 1.5, 0.8).clampUnit()
	assert.Equal(t, NewRegion(0, 0.2, 1, 0.8), clamped)

	inverted := NewRegion(0.9, 0.9, 0.1, 0.1).clampUnit()
	assert.Equal(t, NewRegion(0.1, 0.1, 0.9, 0.9), inverted)
}
