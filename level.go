package cloudtiff

import (
	"encoding/binary"
	"math"

	"github.com/airbusgeo/cloudtiff/raster"
	"github.com/airbusgeo/cloudtiff/tiff"
)

// Level is one pyramid entry of a COG: a tiled image with its sample
// geometry and the byte ranges of every tile. Immutable after parsing.
type Level struct {
	OverviewIndex  int
	Width          uint32
	Height         uint32
	TileWidth      uint32
	TileHeight     uint32
	Compression    Compression
	Predictor      Predictor
	Interpretation raster.PhotometricInterpretation
	BitsPerSample  []uint16
	SampleFormat   []raster.SampleFormat
	ExtraSamples   []raster.ExtraSamples
	Order          binary.ByteOrder
	TileOffsets    []uint64
	TileByteCounts []uint64
}

// levelFromIFD builds a level from a tiled IFD. Untiled or otherwise
// unusable IFDs return an error and are filtered out by the caller.
func levelFromIFD(ifd *tiff.IFD, order binary.ByteOrder) (*Level, error) {
	width, err := tagUint(ifd, tiff.TagImageWidth)
	if err != nil {
		return nil, err
	}
	height, err := tagUint(ifd, tiff.TagImageLength)
	if err != nil {
		return nil, err
	}
	tileWidth, err := tagUint(ifd, tiff.TagTileWidth)
	if err != nil {
		return nil, err
	}
	tileHeight, err := tagUint(ifd, tiff.TagTileLength)
	if err != nil {
		return nil, err
	}
	compression, err := tagUint(ifd, tiff.TagCompression)
	if err != nil {
		return nil, err
	}
	offsetsTag, err := ifd.Tag(tiff.TagTileOffsets)
	if err != nil {
		return nil, err
	}
	byteCountsTag, err := ifd.Tag(tiff.TagTileByteCounts)
	if err != nil {
		return nil, err
	}
	bitsTag, err := ifd.Tag(tiff.TagBitsPerSample)
	if err != nil {
		return nil, err
	}

	offsets := offsetsTag.Uints()
	byteCounts := byteCountsTag.Uints()
	if len(offsets) != len(byteCounts) {
		return nil, &tiff.TagError{Code: tiff.TagTileOffsets, Reason: "offset/bytecount length mismatch"}
	}

	bitsPerSample := bitsTag.Shorts()

	predictor := PredictorNone
	if t, err := ifd.Tag(tiff.TagPredictor); err == nil {
		predictor = Predictor(t.Uint())
	}

	sampleFormat := make([]raster.SampleFormat, len(bitsPerSample))
	for i := range sampleFormat {
		sampleFormat[i] = raster.SampleFormatUint
	}
	if t, err := ifd.Tag(tiff.TagSampleFormat); err == nil {
		for i, v := range t.Shorts() {
			if i < len(sampleFormat) {
				sampleFormat[i] = raster.SampleFormat(v)
			}
		}
	}

	var extraSamples []raster.ExtraSamples
	if t, err := ifd.Tag(tiff.TagExtraSamples); err == nil {
		for _, v := range t.Shorts() {
			extraSamples = append(extraSamples, raster.ExtraSamples(v))
		}
	}

	interpretation := raster.PhotometricInterpretation(0xFFFF)
	if t, err := ifd.Tag(tiff.TagPhotometricInterpretation); err == nil {
		interpretation = raster.PhotometricInterpretation(t.Uint())
	}

	return &Level{
		Width:          uint32(width),
		Height:         uint32(height),
		TileWidth:      uint32(tileWidth),
		TileHeight:     uint32(tileHeight),
		Compression:    Compression(compression),
		Predictor:      predictor,
		Interpretation: interpretation,
		BitsPerSample:  bitsPerSample,
		SampleFormat:   sampleFormat,
		ExtraSamples:   extraSamples,
		Order:          order,
		TileOffsets:    offsets,
		TileByteCounts: byteCounts,
	}, nil
}

func tagUint(ifd *tiff.IFD, code uint16) (uint64, error) {
	t, err := ifd.Tag(code)
	if err != nil {
		return 0, err
	}
	return t.Uint(), nil
}

// MegaPixels is the level's pixel count in millions.
func (l *Level) MegaPixels() float64 {
	return float64(l.Width) * float64(l.Height) / 1e6
}

// ColCount is the number of tile columns.
func (l *Level) ColCount() int {
	return int((l.Width + l.TileWidth - 1) / l.TileWidth)
}

// RowCount is the number of tile rows.
func (l *Level) RowCount() int {
	return int((l.Height + l.TileHeight - 1) / l.TileHeight)
}

// TileCount is the row-major grid size.
func (l *Level) TileCount() int {
	return l.ColCount() * l.RowCount()
}

// TileIndex is the row-major index of tile (row, col).
func (l *Level) TileIndex(row, col int) int {
	return row*l.ColCount() + col
}

// TileByteRange returns the [start, end) byte range of tile index.
func (l *Level) TileByteRange(index int) (uint64, uint64, error) {
	maxValid := len(l.TileOffsets)
	if len(l.TileByteCounts) < maxValid {
		maxValid = len(l.TileByteCounts)
	}
	maxValid--
	if index < 0 || index > maxValid {
		return 0, 0, &TileIndexOutOfRangeError{Index: index, Max: maxValid}
	}
	start := l.TileOffsets[index]
	return start, start + l.TileByteCounts[index], nil
}

// tileCoordFromImageCoord maps unit image coordinates to fractional
// tile grid coordinates.
func (l *Level) tileCoordFromImageCoord(x, y float64) (col, row float64) {
	col = x * float64(l.Width) / float64(l.TileWidth)
	row = y * float64(l.Height) / float64(l.TileHeight)
	return
}

// IndexFromImageCoords resolves unit image coordinates to a tile index
// and the intra-tile pixel offset.
func (l *Level) IndexFromImageCoords(x, y float64) (index int, tileX, tileY float64, err error) {
	if x < 0 || x > 1 || y < 0 || y > 1 {
		return 0, 0, 0, &ImageCoordOutOfRangeError{X: x, Y: y}
	}
	col, row := l.tileCoordFromImageCoord(x, y)
	index = int(math.Floor(row))*l.ColCount() + int(math.Floor(col))
	tileX = (col - math.Floor(col)) * float64(l.TileWidth)
	tileY = (row - math.Floor(row)) * float64(l.TileHeight)
	return index, tileX, tileY, nil
}

// TileIndicesWithinImageCrop returns the row-major tile indices whose
// bounding box intersects the unit-normalized crop.
func (l *Level) TileIndicesWithinImageCrop(crop Region) []int {
	left, top := l.tileCoordFromImageCoord(crop.MinX, crop.MinY)
	right, bottom := l.tileCoordFromImageCoord(crop.MaxX, crop.MaxY)

	colCount := l.ColCount()
	rowCount := l.RowCount()

	colMin := int(math.Max(math.Floor(left), 0))
	colMax := int(math.Min(math.Ceil(right), float64(colCount)))
	rowMin := int(math.Max(math.Floor(top), 0))
	rowMax := int(math.Min(math.Ceil(bottom), float64(rowCount)))

	var indices []int
	for row := rowMin; row < rowMax; row++ {
		for col := colMin; col < colMax; col++ {
			indices = append(indices, row*colCount+col)
		}
	}
	return indices
}

// TileBounds returns the unit image region covered by tile index.
func (l *Level) TileBounds(index int) Region {
	colCount := l.ColCount()
	row := float64(index / colCount)
	col := float64(index % colCount)
	return Region{
		MinX: col * float64(l.TileWidth) / float64(l.Width),
		MinY: row * float64(l.TileHeight) / float64(l.Height),
		MaxX: (col + 1) * float64(l.TileWidth) / float64(l.Width),
		MaxY: (row + 1) * float64(l.TileHeight) / float64(l.Height),
	}
}

// ExtractTile turns one tile's raw bytes into a raster: decompress,
// undo the predictor, rasterize.
func (l *Level) ExtractTile(data []byte) (*raster.Raster, error) {
	buf, err := l.Compression.Decode(data)
	if err != nil {
		return nil, err
	}
	bitDepth := 8
	if len(l.BitsPerSample) > 0 {
		bitDepth = int(l.BitsPerSample[0])
	}
	if err := l.Predictor.Decode(buf, int(l.TileWidth), bitDepth, len(l.BitsPerSample)); err != nil {
		return nil, err
	}
	return raster.New(l.TileWidth, l.TileHeight, buf, l.BitsPerSample,
		l.Interpretation, l.SampleFormat, l.ExtraSamples, l.Order)
}
