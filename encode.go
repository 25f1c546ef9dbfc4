package cloudtiff

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/airbusgeo/cloudtiff/raster"
	"github.com/airbusgeo/cloudtiff/tiff"
)

// Encoder writes a raster out as a valid, tiled, overview-bearing COG.
// Directory tables are emitted before any tile payload; the tile
// offset and byte-count arrays are reserved zeroed and overwritten once
// payloads have landed, which is the one non-streaming step of the
// writer.
type Encoder struct {
	source      *raster.Raster
	epsg        int
	region      Region
	georef      bool
	order       binary.ByteOrder
	variant     tiff.Variant
	compression Compression
	tileSize    uint32
}

// NewEncoder starts an encode of src: little endian, BigTIFF, 1024px
// tiles, uncompressed.
func NewEncoder(src *raster.Raster) *Encoder {
	return &Encoder{
		source:      src,
		order:       binary.LittleEndian,
		variant:     tiff.Big,
		compression: CompressionNone,
		tileSize:    1024,
	}
}

// WithProjection georeferences the output: the raster covers region in
// the given EPSG's native units.
func (e *Encoder) WithProjection(epsg int, region Region) *Encoder {
	e.epsg = epsg
	e.region = region
	e.georef = true
	return e
}

// WithTileSize sets the square tile dimension in pixels.
func (e *Encoder) WithTileSize(pixels uint32) *Encoder {
	e.tileSize = pixels
	return e
}

// WithBigEndian selects the byte order.
func (e *Encoder) WithBigEndian(big bool) *Encoder {
	if big {
		e.order = binary.BigEndian
	} else {
		e.order = binary.LittleEndian
	}
	return e
}

// WithBigTiff selects classic TIFF or BigTIFF.
func (e *Encoder) WithBigTiff(big bool) *Encoder {
	if big {
		e.variant = tiff.Big
	} else {
		e.variant = tiff.Classic
	}
	return e
}

// WithCompression sets the tile codec. The write path supports
// uncompressed and deflate.
func (e *Encoder) WithCompression(c Compression) *Encoder {
	e.compression = c
	return e
}

// overviewCount is the number of reduced-resolution levels: halvings
// until the larger tile-grid axis fits a single tile.
func (e *Encoder) overviewCount() int {
	w := float64(e.source.Width) / float64(e.tileSize)
	h := float64(e.source.Height) / float64(e.tileSize)
	k := int(math.Floor(math.Log2(math.Max(w, h))))
	if k < 0 {
		return 0
	}
	return k
}

func levelDims(full uint32, level int) uint32 {
	d := full >> uint(level)
	if d == 0 {
		return 1
	}
	return d
}

// Encode writes the COG to w.
func (e *Encoder) Encode(w io.WriteSeeker) error {
	if e.source.BitsPerPixel()%8 != 0 {
		return &raster.NotSupportedError{Reason: "encoder requires byte-aligned pixels"}
	}
	if _, err := e.compression.Encode(nil); err != nil {
		return err
	}

	// Pyramid rasters, full resolution first.
	k := e.overviewCount()
	pyramid := make([]*raster.Raster, 0, k+1)
	pyramid = append(pyramid, e.source)
	for i := 1; i <= k; i++ {
		level, err := e.source.Resize(levelDims(e.source.Width, i), levelDims(e.source.Height, i), raster.Nearest)
		if err != nil {
			return fmt.Errorf("overview %d: %w", i, err)
		}
		pyramid = append(pyramid, level)
	}

	// Directory skeleton with zeroed strile arrays, largest level
	// first.
	tif := &tiff.Tiff{Order: e.order, Variant: e.variant}
	for i, level := range pyramid {
		ifd, err := e.buildIFD(level, i > 0)
		if err != nil {
			return err
		}
		tif.IFDs = append(tif.IFDs, ifd)
	}
	if e.georef {
		geo, err := e.geoTags()
		if err != nil {
			return err
		}
		if err := geo.ApplyTo(tif.IFDs[0], e.order); err != nil {
			return err
		}
	}

	layout, err := tif.Encode(w)
	if err != nil {
		return err
	}

	// Tile payloads, coarsest level first so the largest writes happen
	// last against a warm source raster.
	cursor := layout.End
	offsets := make([][]uint64, len(pyramid))
	byteCounts := make([][]uint64, len(pyramid))
	for i := len(pyramid) - 1; i >= 0; i-- {
		offsets[i], byteCounts[i], cursor, err = e.writeLevelTiles(w, pyramid[i], cursor)
		if err != nil {
			return fmt.Errorf("level %d tiles: %w", i, err)
		}
	}

	// Back-patch the reserved strile arrays.
	for i := range pyramid {
		if err := e.patchArray(w, layout, i, tiff.TagTileOffsets, offsets[i]); err != nil {
			return err
		}
		if err := e.patchArray(w, layout, i, tiff.TagTileByteCounts, byteCounts[i]); err != nil {
			return err
		}
	}
	_, err = w.Seek(int64(cursor), io.SeekStart)
	return err
}

func (e *Encoder) buildIFD(level *raster.Raster, overview bool) (*tiff.IFD, error) {
	order := e.order
	ifd := &tiff.IFD{}

	if overview {
		ifd.SetTag(tiff.NewLong(tiff.TagNewSubfileType, order, 1))
	}
	ifd.SetTag(tiff.NewLong(tiff.TagImageWidth, order, level.Width))
	ifd.SetTag(tiff.NewLong(tiff.TagImageLength, order, level.Height))
	ifd.SetTag(tiff.NewShorts(tiff.TagBitsPerSample, order, level.BitsPerSample))
	ifd.SetTag(tiff.NewShort(tiff.TagCompression, order, uint16(e.compression)))
	ifd.SetTag(tiff.NewShort(tiff.TagPhotometricInterpretation, order, uint16(level.Interpretation)))
	ifd.SetTag(tiff.NewShort(tiff.TagSamplesPerPixel, order, uint16(level.SamplesPerPixel())))
	ifd.SetTag(tiff.NewShort(tiff.TagPlanarConfiguration, order, 1))
	ifd.SetTag(tiff.NewShort(tiff.TagPredictor, order, uint16(PredictorNone)))
	ifd.SetTag(tiff.NewShort(tiff.TagTileWidth, order, uint16(e.tileSize)))
	ifd.SetTag(tiff.NewShort(tiff.TagTileLength, order, uint16(e.tileSize)))

	if len(level.SampleFormat) > 0 {
		formats := make([]uint16, len(level.SampleFormat))
		for i, f := range level.SampleFormat {
			formats[i] = uint16(f)
		}
		ifd.SetTag(tiff.NewShorts(tiff.TagSampleFormat, order, formats))
	}
	if len(level.ExtraSamples) > 0 {
		extras := make([]uint16, len(level.ExtraSamples))
		for i, x := range level.ExtraSamples {
			extras[i] = uint16(x)
		}
		ifd.SetTag(tiff.NewShorts(tiff.TagExtraSamples, order, extras))
	}

	tileCount := e.tileGrid(level.Width) * e.tileGrid(level.Height)
	if e.variant == tiff.Big {
		ifd.SetTag(tiff.NewLong8s(tiff.TagTileOffsets, order, make([]uint64, tileCount)))
		ifd.SetTag(tiff.NewLong8s(tiff.TagTileByteCounts, order, make([]uint64, tileCount)))
	} else {
		ifd.SetTag(tiff.NewLongs(tiff.TagTileOffsets, order, make([]uint32, tileCount)))
		ifd.SetTag(tiff.NewLongs(tiff.TagTileByteCounts, order, make([]uint32, tileCount)))
	}
	return ifd, nil
}

func (e *Encoder) tileGrid(dim uint32) int {
	return int((dim + e.tileSize - 1) / e.tileSize)
}

// writeLevelTiles writes one level's tiles row-major at cursor and
// returns the recorded offsets and byte counts.
func (e *Encoder) writeLevelTiles(w io.Writer, level *raster.Raster, cursor uint64) ([]uint64, []uint64, uint64, error) {
	cols := e.tileGrid(level.Width)
	rows := e.tileGrid(level.Height)
	offsets := make([]uint64, 0, cols*rows)
	byteCounts := make([]uint64, 0, cols*rows)

	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			// Edge tiles pad out to full tile size with zeros.
			tile, err := level.Crop(
				uint32(col)*e.tileSize, uint32(row)*e.tileSize,
				uint32(col+1)*e.tileSize, uint32(row+1)*e.tileSize,
			)
			if err != nil {
				return nil, nil, 0, err
			}
			payload, err := e.compression.Encode(tile.Buffer)
			if err != nil {
				return nil, nil, 0, err
			}
			if _, err := w.Write(payload); err != nil {
				return nil, nil, 0, err
			}
			offsets = append(offsets, cursor)
			byteCounts = append(byteCounts, uint64(len(payload)))
			cursor += uint64(len(payload))
		}
	}
	return offsets, byteCounts, cursor, nil
}

// patchArray seeks back to a reserved strile array and overwrites it
// with the recorded values, in the variant's offset width.
func (e *Encoder) patchArray(w io.WriteSeeker, layout *tiff.Layout, ifdIndex int, code uint16, values []uint64) error {
	pos, ok := layout.TagValueOffset(ifdIndex, code)
	if !ok {
		return fmt.Errorf("cloudtiff: no slot for tag %d in ifd %d", code, ifdIndex)
	}
	if _, err := w.Seek(int64(pos), io.SeekStart); err != nil {
		return err
	}
	var buf []byte
	if e.variant == tiff.Big {
		buf = make([]byte, 8*len(values))
		for i, v := range values {
			e.order.PutUint64(buf[i*8:], v)
		}
	} else {
		buf = make([]byte, 4*len(values))
		for i, v := range values {
			if v > math.MaxUint32 {
				return fmt.Errorf("cloudtiff: offset %d overflows classic tiff; use WithBigTiff(true)", v)
			}
			e.order.PutUint32(buf[i*4:], uint32(v))
		}
	}
	_, err := w.Write(buf)
	return err
}
