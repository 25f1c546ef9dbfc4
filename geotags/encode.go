package geotags

import (
	"encoding/binary"

	"github.com/airbusgeo/cloudtiff/tiff"
)

// ApplyTo installs the geo overlay on ifd: the model tags, the geo-key
// directory (keys sorted by code) and, when needed, the companion
// GeoDoubleParams and GeoAsciiParams tags.
func (g *GeoTags) ApplyTo(ifd *tiff.IFD, order binary.ByteOrder) error {
	if !g.Model.Scaled() {
		return ErrUnsupportedModelTransformation
	}
	ifd.SetTag(tiff.NewDoubles(tiff.TagModelTiepoint, order, g.Model.Tiepoint))
	ifd.SetTag(tiff.NewDoubles(tiff.TagModelPixelScale, order, g.Model.PixelScale))

	g.Directory.sortKeys()

	var doubles []float64
	var ascii []byte
	entries := make([]uint16, 0, 4+len(g.Directory.Keys)*4)
	entries = append(entries,
		g.Directory.Version,
		g.Directory.Revision,
		g.Directory.MinorRevision,
		uint16(len(g.Directory.Keys)),
	)

	for _, key := range g.Directory.Keys {
		switch {
		case key.Value.kind == kindShort && len(key.Value.Shorts) == 1:
			entries = append(entries, key.Code, 0, 1, key.Value.Shorts[0])
		case key.Value.kind == kindDouble:
			entries = append(entries, key.Code, tiff.TagGeoDoubleParams,
				uint16(len(key.Value.Doubles)), uint16(len(doubles)))
			doubles = append(doubles, key.Value.Doubles...)
		case key.Value.kind == kindAscii:
			// Values in the ascii store are '|'-separated; the final
			// NUL comes from the ASCII tag itself.
			value := key.Value.Ascii + "|"
			entries = append(entries, key.Code, tiff.TagGeoAsciiParams,
				uint16(len(value)), uint16(len(ascii)))
			ascii = append(ascii, value...)
		default:
			// Multi-short and undefined values ride in the directory
			// tag's own tail, which this writer does not produce.
			return &tiff.TagError{Code: tiff.TagGeoKeyDirectory, Reason: "unencodable key value"}
		}
	}

	ifd.SetTag(tiff.NewShorts(tiff.TagGeoKeyDirectory, order, entries))
	if len(doubles) > 0 {
		ifd.SetTag(tiff.NewDoubles(tiff.TagGeoDoubleParams, order, doubles))
	}
	if len(ascii) > 0 {
		ifd.SetTag(tiff.NewASCII(tiff.TagGeoAsciiParams, order, string(ascii)))
	}
	return nil
}
