package cloudtiff

import (
	"bytes"
	"context"
	"testing"

	"github.com/airbusgeo/cloudtiff/crs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Classic TIFF, uncompressed, 256x256 RGB8 in 64x64 tiles: a full-crop
// render at source resolution reproduces the source byte for byte.
func TestRenderFullCropReproducesSource(t *testing.T) {
	src := rgbTestRaster(t, 256, 256)
	data := encodeCOG(t, NewEncoder(src).
		WithTileSize(64).
		WithBigTiff(false).
		WithProjection(4326, NewRegion(-1, -1, 1, 1)))
	cog := openCOG(t, data)

	result, err := cog.Renderer().
		OfCrop(0, 0, 1, 1).
		WithExactResolution(256, 256).
		WithReader(ReaderAt{R: bytes.NewReader(data)}).
		Render()
	require.NoError(t, err)

	assert.Equal(t, uint32(256), result.Width)
	assert.Equal(t, uint32(256), result.Height)
	assert.Equal(t, src.Buffer, result.Buffer)
}

func TestRenderQuarterCrop(t *testing.T) {
	src := grayTestRaster(t, 256, 256)
	data := encodeCOG(t, NewEncoder(src).
		WithTileSize(64).
		WithBigTiff(false).
		WithProjection(4326, NewRegion(-1, -1, 1, 1)))
	cog := openCOG(t, data)

	result, err := cog.Renderer().
		OfCrop(0.5, 0.5, 1, 1).
		WithExactResolution(128, 128).
		WithReader(ReaderAt{R: bytes.NewReader(data)}).
		Render()
	require.NoError(t, err)

	// The bottom-right quadrant at native resolution.
	for _, p := range [][2]uint32{{0, 0}, {64, 3}, {127, 127}} {
		want := grayPattern(128+p[0], 128+p[1])
		assert.Equal(t, want, result.GetPixel(p[0], p[1])[0], "pixel %v", p)
	}
}

// BigTIFF, deflate, gray, UTM scaled model: an output-region render in
// the file's own CRS hits the expected source pixels.
func TestRenderOutputRegionUTM(t *testing.T) {
	src := grayTestRaster(t, 1024, 1024)
	data := encodeCOG(t, NewEncoder(src).
		WithTileSize(256).
		WithBigTiff(true).
		WithCompression(CompressionDeflate).
		WithProjection(32609, NewRegion(499980, 6089780, 510220, 6100020)))
	cog := openCOG(t, data)
	require.Equal(t, uint16(32609), cog.Projection.EPSG)

	// Sample points sit at half-pixel offsets so nearest-neighbor
	// lookups are unambiguous: output pixel (i,j) reads source pixel
	// (i, 384+j) at full resolution.
	result, err := cog.Renderer().
		OfOutputRegion(32609, 499985, 6090035, 502545, 6096175).
		WithExactResolution(256, 614).
		WithReader(ReaderAt{R: bytes.NewReader(data)}).
		Render()
	require.NoError(t, err)

	assert.Equal(t, uint32(256), result.Width)
	assert.Equal(t, uint32(614), result.Height)
	for _, p := range [][2]uint32{{0, 0}, {128, 128}, {255, 613}} {
		want := grayPattern(p[0], 384+p[1])
		got := result.GetPixel(p[0], p[1])
		require.NotNil(t, got)
		assert.Equal(t, want, got[0], "pixel %v", p)
	}
}

func TestRenderRegionOutOfBounds(t *testing.T) {
	src := grayTestRaster(t, 256, 256)
	data := encodeCOG(t, NewEncoder(src).
		WithTileSize(64).
		WithProjection(4326, NewRegion(-127.9, 54.3, -127.6, 54.6)))
	cog := openCOG(t, data)

	_, err := cog.Renderer().
		OfOutputRegionLatLonDeg(10, 10, 11, 11).
		WithExactResolution(64, 64).
		WithReader(ReaderAt{R: bytes.NewReader(data)}).
		Render()
	var oob *RegionOutOfBoundsError
	assert.ErrorAs(t, err, &oob)
}

// A WMTS tile far away from the COG footprint is RegionOutOfBounds; a
// nonexistent index is BadWmtsTileIndex.
func TestRenderWmtsTileOutsideBounds(t *testing.T) {
	src := grayTestRaster(t, 256, 256)
	data := encodeCOG(t, NewEncoder(src).
		WithTileSize(64).
		WithProjection(4326, NewRegion(-127.9, 54.3, -127.6, 54.6)))
	cog := openCOG(t, data)
	reader := ReaderAt{R: bytes.NewReader(data)}

	_, err := cog.Renderer().
		OfTile(0, 0, 2).
		WithExactResolution(256, 256).
		WithReader(reader).
		Render()
	var oob *RegionOutOfBoundsError
	assert.ErrorAs(t, err, &oob)

	_, err = cog.Renderer().
		OfTile(9, 0, 1).
		WithExactResolution(256, 256).
		WithReader(reader).
		Render()
	var bad *BadWmtsTileIndexError
	assert.ErrorAs(t, err, &bad)
}

func TestRenderWmtsTileInsideBounds(t *testing.T) {
	src := grayTestRaster(t, 512, 512)
	data := encodeCOG(t, NewEncoder(src).
		WithTileSize(256).
		WithProjection(4326, NewRegion(-127.9, 54.3, -127.6, 54.6)))
	cog := openCOG(t, data)

	result, err := cog.Renderer().
		OfTile(1188, 2608, 13).
		WithExactResolution(256, 256).
		WithReader(ReaderAt{R: bytes.NewReader(data)}).
		Render()
	require.NoError(t, err)
	assert.Equal(t, uint32(256), result.Width)

	// The tile overlaps the footprint, so some pixels must be filled.
	filled := 0
	for y := uint32(0); y < 256; y += 16 {
		for x := uint32(0); x < 256; x += 16 {
			if result.GetPixel(x, y)[0] != 0 {
				filled++
			}
		}
	}
	assert.Greater(t, filled, 0)
}

func TestRenderZeroResolution(t *testing.T) {
	src := grayTestRaster(t, 128, 128)
	data := encodeCOG(t, NewEncoder(src).
		WithTileSize(64).
		WithProjection(4326, NewRegion(-1, -1, 1, 1)))
	cog := openCOG(t, data)
	reader := ReaderAt{R: bytes.NewReader(data)}

	for _, dims := range [][2]uint32{{0, 128}, {128, 0}, {0, 0}} {
		result, err := cog.Renderer().
			WithExactResolution(dims[0], dims[1]).
			WithReader(reader).
			Render()
		require.NoError(t, err)
		assert.Equal(t, dims[0], result.Width)
		assert.Equal(t, dims[1], result.Height)
		assert.Empty(t, result.Buffer)
	}
}

func TestRenderWithoutReader(t *testing.T) {
	src := grayTestRaster(t, 128, 128)
	data := encodeCOG(t, NewEncoder(src).
		WithTileSize(64).
		WithProjection(4326, NewRegion(-1, -1, 1, 1)))
	cog := openCOG(t, data)

	_, err := cog.Renderer().Render()
	assert.ErrorIs(t, err, errNoReader)
	_, err = cog.Renderer().RenderContext(context.Background())
	assert.ErrorIs(t, err, errNoReader)
}

func TestRenderWithMPLimit(t *testing.T) {
	src := grayTestRaster(t, 512, 256)
	data := encodeCOG(t, NewEncoder(src).
		WithTileSize(128).
		WithProjection(4326, NewRegion(-1, -1, 1, 1)))
	cog := openCOG(t, data)

	result, err := cog.Renderer().
		WithMPLimit(0.02).
		WithReader(ReaderAt{R: bytes.NewReader(data)}).
		Render()
	require.NoError(t, err)
	// Aspect ratio preserved, pixel count under the limit.
	assert.InDelta(t, 2.0, float64(result.Width)/float64(result.Height), 0.05)
	assert.LessOrEqual(t, int(result.Width)*int(result.Height), 20000)
}

// The similarity fast path and the per-pixel projection path must
// produce identical rasters when the deviation test passes.
func TestSimilarityFastPathEquivalence(t *testing.T) {
	src := grayTestRaster(t, 1024, 1024)
	data := encodeCOG(t, NewEncoder(src).
		WithTileSize(256).
		WithProjection(32609, NewRegion(499980, 6089780, 510220, 6100020)))
	cog := openCOG(t, data)

	outputCRS, err := crs.ForEPSG(32609)
	require.NoError(t, err)
	region := NewRegion(499985, 6090035, 502545, 6096175)
	width, height := uint32(256), uint32(614)

	require.True(t, similarityValid(cog.Projection, outputCRS, region, width, height))

	level := levelFromRegion(cog, outputCRS, region, width, height)
	slow, err := projectPixelMap(level, cog.Projection, outputCRS, region, width, height, zap.NewNop())
	require.NoError(t, err)
	fast, err := projectPixelMapSimilarity(level, cog.Projection, outputCRS, region, width, height)
	require.NoError(t, err)

	reader := ReaderAt{R: bytes.NewReader(data)}
	cache := getTiles(reader, level, slow.indices(), zap.NewNop())

	slowRaster := compose(&renderPlan{level: level, pm: slow}, cache, width, height)
	fastRaster := compose(&renderPlan{level: level, pm: fast}, cache, width, height)
	assert.Equal(t, slowRaster.Buffer, fastRaster.Buffer)
}

// The concurrent path must agree with the blocking path.
func TestRenderContextMatchesSync(t *testing.T) {
	src := rgbTestRaster(t, 256, 256)
	data := encodeCOG(t, NewEncoder(src).
		WithTileSize(64).
		WithProjection(4326, NewRegion(-1, -1, 1, 1)))
	cog := openCOG(t, data)
	reader := ReaderAt{R: bytes.NewReader(data)}

	syncResult, err := cog.Renderer().
		OfOutputRegionLatLonDeg(-0.75, -0.75, 0.75, 0.75).
		WithExactResolution(128, 128).
		WithReader(reader).
		Render()
	require.NoError(t, err)

	asyncResult, err := cog.Renderer().
		OfOutputRegionLatLonDeg(-0.75, -0.75, 0.75, 0.75).
		WithExactResolution(128, 128).
		WithAsyncReader(reader).
		RenderContext(context.Background())
	require.NoError(t, err)

	assert.Equal(t, syncResult.Buffer, asyncResult.Buffer)
}

func TestRenderContextCancelled(t *testing.T) {
	src := grayTestRaster(t, 256, 256)
	data := encodeCOG(t, NewEncoder(src).
		WithTileSize(64).
		WithProjection(4326, NewRegion(-1, -1, 1, 1)))
	cog := openCOG(t, data)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := cog.Renderer().
		WithAsyncReader(blockingReader{ReaderAt{R: bytes.NewReader(data)}}).
		RenderContext(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

// blockingReader honors ctx cancellation before every read.
type blockingReader struct {
	inner ReaderAt
}

func (b blockingReader) ReadRangeContext(ctx context.Context, offset uint64, p []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return b.inner.ReadRangeContext(ctx, offset, p)
}
