package cloudtiff

import (
	"bytes"
	"testing"

	"github.com/airbusgeo/cloudtiff/crs"
	"github.com/airbusgeo/cloudtiff/geotags"
	"github.com/airbusgeo/cloudtiff/tiff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Encoding a 1024x768 RGB8 raster with 256px tiles yields exactly three
// levels with sorted tag codes per IFD.
func TestEncodePyramidStructure(t *testing.T) {
	src := rgbTestRaster(t, 1024, 768)
	data := encodeCOG(t, NewEncoder(src).
		WithTileSize(256).
		WithBigTiff(false).
		WithProjection(4326, NewRegion(-1, -1, 1, 1)))

	tif, err := tiff.Parse(bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, tif.IFDs, 3)

	wantDims := [][2]uint64{{1024, 768}, {512, 384}, {256, 192}}
	for i, ifd := range tif.IFDs {
		width, err := ifd.Tag(tiff.TagImageWidth)
		require.NoError(t, err)
		height, err := ifd.Tag(tiff.TagImageLength)
		require.NoError(t, err)
		assert.Equal(t, wantDims[i][0], width.Uint(), "ifd %d width", i)
		assert.Equal(t, wantDims[i][1], height.Uint(), "ifd %d height", i)

		var prev uint16
		for k, tag := range ifd.Tags {
			if k > 0 {
				assert.Greater(t, tag.Code, prev, "ifd %d tags must be sorted", i)
			}
			prev = tag.Code
		}
	}
}

func TestEncodeStrileTypesMatchVariant(t *testing.T) {
	src := grayTestRaster(t, 256, 256)

	classic := encodeCOG(t, NewEncoder(src).
		WithTileSize(128).
		WithBigTiff(false).
		WithProjection(4326, NewRegion(-1, -1, 1, 1)))
	tif, err := tiff.Parse(bytes.NewReader(classic))
	require.NoError(t, err)
	offsets, err := tif.IFDs[0].Tag(tiff.TagTileOffsets)
	require.NoError(t, err)
	assert.Equal(t, tiff.TypeLong, offsets.Type)

	big := encodeCOG(t, NewEncoder(src).
		WithTileSize(128).
		WithBigTiff(true).
		WithProjection(4326, NewRegion(-1, -1, 1, 1)))
	tif, err = tiff.Parse(bytes.NewReader(big))
	require.NoError(t, err)
	assert.Equal(t, tiff.Big, tif.Variant)
	offsets, err = tif.IFDs[0].Tag(tiff.TagTileOffsets)
	require.NoError(t, err)
	assert.Equal(t, tiff.TypeLong8, offsets.Type)
}

// Every patched tile offset points past the directory region, and tile
// payloads do not interleave with the tables.
func TestEncodeOffsetsPatchedPastDirectories(t *testing.T) {
	src := grayTestRaster(t, 512, 512)
	data := encodeCOG(t, NewEncoder(src).
		WithTileSize(128).
		WithBigTiff(false).
		WithProjection(4326, NewRegion(-1, -1, 1, 1)))
	cog := openCOG(t, data)

	// Reconstruct the directory extent by re-encoding the parsed
	// container: the last IFD's region ends where payloads may begin.
	tif, err := tiff.Parse(bytes.NewReader(data))
	require.NoError(t, err)
	var sink bytes.Buffer
	layout, err := tif.Encode(&sink)
	require.NoError(t, err)

	for _, level := range cog.Levels {
		for i, offset := range level.TileOffsets {
			assert.GreaterOrEqual(t, offset, layout.End, "level %d tile %d", level.OverviewIndex, i)
			assert.NotZero(t, level.TileByteCounts[i])
			assert.LessOrEqual(t, offset+level.TileByteCounts[i], uint64(len(data)))
		}
	}
}

func TestEncodeBigEndian(t *testing.T) {
	src := grayTestRaster(t, 128, 128)
	data := encodeCOG(t, NewEncoder(src).
		WithTileSize(64).
		WithBigEndian(true).
		WithBigTiff(false).
		WithProjection(4326, NewRegion(-1, -1, 1, 1)))

	assert.Equal(t, byte('M'), data[0])
	cog := openCOG(t, data)

	result, err := cog.Renderer().
		WithReader(ReaderAt{R: bytes.NewReader(data)}).
		Render()
	require.NoError(t, err)
	assert.Equal(t, src.Buffer, result.Buffer)
}

func TestEncodeDeflateRoundTrip(t *testing.T) {
	src := grayTestRaster(t, 256, 256)
	data := encodeCOG(t, NewEncoder(src).
		WithTileSize(64).
		WithCompression(CompressionDeflate).
		WithProjection(4326, NewRegion(-1, -1, 1, 1)))
	cog := openCOG(t, data)
	assert.Equal(t, CompressionDeflate, cog.Levels[0].Compression)

	result, err := cog.Renderer().
		OfCrop(0, 0, 1, 1).
		WithExactResolution(256, 256).
		WithReader(ReaderAt{R: bytes.NewReader(data)}).
		Render()
	require.NoError(t, err)
	assert.Equal(t, src.Buffer, result.Buffer)
}

func TestEncodeUnsupportedProjection(t *testing.T) {
	src := grayTestRaster(t, 64, 64)
	out := &bytesWriteSeeker{}
	err := NewEncoder(src).
		WithProjection(2154, NewRegion(0, 0, 1, 1)).
		Encode(out)
	var ue *crs.UnsupportedError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, 2154, ue.Code)
}

func TestEncodeLzwRejected(t *testing.T) {
	src := grayTestRaster(t, 64, 64)
	out := &bytesWriteSeeker{}
	err := NewEncoder(src).
		WithCompression(CompressionLzw).
		WithProjection(4326, NewRegion(-1, -1, 1, 1)).
		Encode(out)
	var cne *CompressionNotSupportedError
	assert.ErrorAs(t, err, &cne)
}

func TestEncodeGeoKeysRoundTrip(t *testing.T) {
	src := grayTestRaster(t, 128, 128)
	data := encodeCOG(t, NewEncoder(src).
		WithTileSize(64).
		WithProjection(32709, NewRegion(499980, 8000000, 501260, 8001280)))

	tif, err := tiff.Parse(bytes.NewReader(data))
	require.NoError(t, err)
	geo, err := geotags.Parse(tif.IFDs[0])
	require.NoError(t, err)

	code, geographic, err := geo.EPSG()
	require.NoError(t, err)
	assert.Equal(t, 32709, code)
	assert.False(t, geographic)

	assert.Equal(t, []float64{0, 0, 0, 499980, 8001280, 0}, geo.Model.Tiepoint)
	assert.Equal(t, []float64{10, 10, 0}, geo.Model.PixelScale)

	citation, ok := geo.Directory.Key(geotags.KeyPCSCitation)
	require.True(t, ok)
	assert.Equal(t, "WGS 84 / UTM zone 9S", citation.Value.Ascii)
}

func TestEncodeSingleLevelWhenTileCoversImage(t *testing.T) {
	src := grayTestRaster(t, 200, 100)
	data := encodeCOG(t, NewEncoder(src).
		WithTileSize(256).
		WithProjection(4326, NewRegion(-1, -1, 1, 1)))
	cog := openCOG(t, data)
	assert.Len(t, cog.Levels, 1)
}

// bytesWriteSeeker is a minimal in-memory WriteSeeker for error paths
// that never produce output.
type bytesWriteSeeker struct {
	buf []byte
	pos int64
}

func (b *bytesWriteSeeker) Write(p []byte) (int, error) {
	need := b.pos + int64(len(p))
	if int64(len(b.buf)) < need {
		grown := make([]byte, need)
		copy(grown, b.buf)
		b.buf = grown
	}
	copy(b.buf[b.pos:], p)
	b.pos = need
	return len(p), nil
}

func (b *bytesWriteSeeker) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case 0:
		b.pos = offset
	case 1:
		b.pos += offset
	case 2:
		b.pos = int64(len(b.buf)) + offset
	}
	return b.pos, nil
}
