package cloudtiff

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWmtsTileBounds(t *testing.T) {
	// Zoom 0 is the whole mercator world.
	world, ok := wmtsTileBoundsLatLonDeg(0, 0, 0)
	require.True(t, ok)
	assert.InDelta(t, -180, world.MinX, 1e-9)
	assert.InDelta(t, 180, world.MaxX, 1e-9)
	assert.InDelta(t, 85.051128, world.MaxY, 1e-5)
	assert.InDelta(t, -85.051128, world.MinY, 1e-5)

	// Zoom 1 splits the world into quadrants.
	nw, ok := wmtsTileBoundsLatLonDeg(0, 0, 1)
	require.True(t, ok)
	assert.InDelta(t, -180, nw.MinX, 1e-9)
	assert.InDelta(t, 0, nw.MaxX, 1e-9)
	assert.InDelta(t, 0, nw.MinY, 1e-9)

	se, ok := wmtsTileBoundsLatLonDeg(1, 1, 1)
	require.True(t, ok)
	assert.InDelta(t, 0, se.MinX, 1e-9)
	assert.InDelta(t, 0, se.MaxY, 1e-9)
}

func TestWmtsTileBoundsInvalid(t *testing.T) {
	for _, index := range [][3]int{
		{-1, 0, 0}, {0, -1, 0}, {0, 0, -1}, {2, 0, 1}, {0, 2, 1}, {1, 0, 0},
	} {
		_, ok := wmtsTileBoundsLatLonDeg(index[0], index[1], index[2])
		assert.False(t, ok, "index %v", index)
	}
}

func TestWmtsIndexRoundTrip(t *testing.T) {
	for _, tc := range [][3]int{{1188, 2608, 13}, {0, 0, 1}, {5, 9, 4}} {
		bounds, ok := wmtsTileBoundsLatLonDeg(tc[0], tc[1], tc[2])
		require.True(t, ok)
		centerLon := (bounds.MinX + bounds.MaxX) / 2
		centerLat := (bounds.MinY + bounds.MaxY) / 2
		x, y := wmtsLonLatToIndex(centerLon, centerLat, float64(tc[2]))
		assert.Equal(t, tc[0], int(x))
		assert.Equal(t, tc[1], int(y))
	}
}

func TestWmtsZoomRange(t *testing.T) {
	bounds := NewRegion(-127.9, 54.3, -127.6, 54.6)
	zMin, zMax := wmtsZoomRange(bounds, 512, 512, 256, 256)
	assert.LessOrEqual(t, zMin, zMax)
	assert.GreaterOrEqual(t, zMin, 8)
	assert.LessOrEqual(t, zMin, 9)
	assert.GreaterOrEqual(t, zMax, 11)
	assert.LessOrEqual(t, zMax, 13)
}

func TestWmtsTileTreeIndicesCoverBounds(t *testing.T) {
	src := grayTestRaster(t, 512, 512)
	data := encodeCOG(t, NewEncoder(src).
		WithTileSize(256).
		WithProjection(4326, NewRegion(-127.9, 54.3, -127.6, 54.6)))
	cog := openCOG(t, data)

	tree := cog.WmtsTileTreeIndices(256, 256)
	require.NotEmpty(t, tree)

	bounds := cog.BoundsLatLonDeg()
	for _, index := range tree {
		tb, ok := wmtsTileBoundsLatLonDeg(index[0], index[1], index[2])
		require.True(t, ok, "index %v", index)
		assert.True(t, tb.Intersects(bounds), "tile %v does not touch the footprint", index)
	}
}

// Rendering two adjacent WMTS tiles sequentially against the same
// reader reads each backing tile at most once.
func TestTileTreeRendererCacheReuse(t *testing.T) {
	src := grayTestRaster(t, 512, 512)
	data := encodeCOG(t, NewEncoder(src).
		WithTileSize(256).
		WithProjection(4326, NewRegion(-127.9, 54.3, -127.6, 54.6)))
	cog := openCOG(t, data)

	counter := newCountingReader(ReaderAt{R: bytes.NewReader(data)})
	renderer := NewTileTreeRenderer(cog, counter, 256, 256)

	first, err := renderer.RenderTile(1188, 2608, 13)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.LessOrEqual(t, counter.maxCount(), 1)

	second, err := renderer.RenderTile(1189, 2608, 13)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.LessOrEqual(t, counter.maxCount(), 1,
		"backing tiles shared between adjacent wmts tiles must come from the cache")
}

func TestTileTreeRendererBadIndex(t *testing.T) {
	src := grayTestRaster(t, 256, 256)
	data := encodeCOG(t, NewEncoder(src).
		WithTileSize(128).
		WithProjection(4326, NewRegion(-127.9, 54.3, -127.6, 54.6)))
	cog := openCOG(t, data)

	renderer := NewTileTreeRenderer(cog, ReaderAt{R: bytes.NewReader(data)}, 256, 256)
	_, err := renderer.RenderTile(-1, 0, 3)
	var bad *BadWmtsTileIndexError
	assert.ErrorAs(t, err, &bad)
}
