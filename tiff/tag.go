package tiff

import (
	"encoding/binary"
	"math"
	"strings"
)

// Tag codes used elsewhere in the module. The container itself treats
// codes opaquely; this list only covers what the COG layers look up.
const (
	TagNewSubfileType            = 254
	TagImageWidth                = 256
	TagImageLength               = 257
	TagBitsPerSample             = 258
	TagCompression               = 259
	TagPhotometricInterpretation = 262
	TagStripOffsets              = 273
	TagSamplesPerPixel           = 277
	TagStripByteCounts           = 279
	TagPlanarConfiguration       = 284
	TagPredictor                 = 317
	TagTileWidth                 = 322
	TagTileLength                = 323
	TagTileOffsets               = 324
	TagTileByteCounts            = 325
	TagExtraSamples              = 338
	TagSampleFormat              = 339
	TagModelPixelScale           = 33550
	TagModelTiepoint             = 33922
	TagModelTransformation       = 34264
	TagGeoKeyDirectory           = 34735
	TagGeoDoubleParams           = 34736
	TagGeoAsciiParams            = 34737
)

// Type is a TIFF tag datatype. The numeric values are the on-disk
// discriminants from TIFF 6.0 plus the BigTIFF additions.
type Type uint16

const (
	TypeByte      Type = 1
	TypeASCII     Type = 2
	TypeShort     Type = 3
	TypeLong      Type = 4
	TypeRational  Type = 5
	TypeSByte     Type = 6
	TypeUndefined Type = 7
	TypeSShort    Type = 8
	TypeSLong     Type = 9
	TypeSRational Type = 10
	TypeFloat     Type = 11
	TypeDouble    Type = 12
	TypeIFD       Type = 13
	TypeLong8     Type = 16
	TypeSLong8    Type = 17
	TypeIFD8      Type = 18
)

// Size returns the byte width of one value of the type. Unknown types
// report 1 so their payloads survive parse/emit untouched.
func (t Type) Size() int {
	switch t {
	case TypeByte, TypeASCII, TypeSByte, TypeUndefined:
		return 1
	case TypeShort, TypeSShort:
		return 2
	case TypeLong, TypeSLong, TypeFloat, TypeIFD:
		return 4
	case TypeRational, TypeSRational, TypeDouble, TypeLong8, TypeSLong8, TypeIFD8:
		return 8
	default:
		return 1
	}
}

// Tag is one IFD entry: a code, a datatype, and the raw value bytes in
// file endianness. Values are kept raw so unfamiliar tags round-trip
// bit-identical through parse and emit.
type Tag struct {
	Code  uint16
	Type  Type
	Count uint64
	Data  []byte
	Order binary.ByteOrder
}

func (t *Tag) decodeUint(b []byte) uint64 {
	switch t.Type.Size() {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(t.Order.Uint16(b))
	case 4:
		return uint64(t.Order.Uint32(b))
	default:
		return t.Order.Uint64(b)
	}
}

// Uints decodes the value as unsigned integers. Works for Byte, Short,
// Long, Long8 and the IFD offset types.
func (t *Tag) Uints() []uint64 {
	size := t.Type.Size()
	n := len(t.Data) / size
	out := make([]uint64, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, t.decodeUint(t.Data[i*size:]))
	}
	return out
}

// Uint returns the first value of Uints, or 0 when empty.
func (t *Tag) Uint() uint64 {
	v := t.Uints()
	if len(v) == 0 {
		return 0
	}
	return v[0]
}

// Floats decodes the value as float64s. Short/Long types widen, Float
// and Double decode through their IEEE bit patterns, rationals divide.
func (t *Tag) Floats() []float64 {
	switch t.Type {
	case TypeFloat:
		n := len(t.Data) / 4
		out := make([]float64, 0, n)
		for i := 0; i < n; i++ {
			out = append(out, float64(math.Float32frombits(t.Order.Uint32(t.Data[i*4:]))))
		}
		return out
	case TypeDouble:
		n := len(t.Data) / 8
		out := make([]float64, 0, n)
		for i := 0; i < n; i++ {
			out = append(out, math.Float64frombits(t.Order.Uint64(t.Data[i*8:])))
		}
		return out
	case TypeRational:
		n := len(t.Data) / 8
		out := make([]float64, 0, n)
		for i := 0; i < n; i++ {
			num := t.Order.Uint32(t.Data[i*8:])
			den := t.Order.Uint32(t.Data[i*8+4:])
			if den == 0 {
				out = append(out, math.NaN())
			} else {
				out = append(out, float64(num)/float64(den))
			}
		}
		return out
	case TypeSRational:
		n := len(t.Data) / 8
		out := make([]float64, 0, n)
		for i := 0; i < n; i++ {
			num := int32(t.Order.Uint32(t.Data[i*8:]))
			den := int32(t.Order.Uint32(t.Data[i*8+4:]))
			if den == 0 {
				out = append(out, math.NaN())
			} else {
				out = append(out, float64(num)/float64(den))
			}
		}
		return out
	default:
		uints := t.Uints()
		out := make([]float64, len(uints))
		for i, u := range uints {
			out[i] = float64(u)
		}
		return out
	}
}

// ASCII decodes the value as a string, trimming the trailing NUL.
func (t *Tag) ASCII() string {
	return strings.TrimRight(string(t.Data), "\x00")
}

// Shorts decodes the value as uint16s.
func (t *Tag) Shorts() []uint16 {
	uints := t.Uints()
	out := make([]uint16, len(uints))
	for i, u := range uints {
		out[i] = uint16(u)
	}
	return out
}

// NewShorts builds a Short tag.
func NewShorts(code uint16, order binary.ByteOrder, values []uint16) Tag {
	data := make([]byte, 2*len(values))
	for i, v := range values {
		order.PutUint16(data[i*2:], v)
	}
	return Tag{Code: code, Type: TypeShort, Count: uint64(len(values)), Data: data, Order: order}
}

// NewShort builds a single-value Short tag.
func NewShort(code uint16, order binary.ByteOrder, value uint16) Tag {
	return NewShorts(code, order, []uint16{value})
}

// NewLongs builds a Long tag.
func NewLongs(code uint16, order binary.ByteOrder, values []uint32) Tag {
	data := make([]byte, 4*len(values))
	for i, v := range values {
		order.PutUint32(data[i*4:], v)
	}
	return Tag{Code: code, Type: TypeLong, Count: uint64(len(values)), Data: data, Order: order}
}

// NewLong builds a single-value Long tag.
func NewLong(code uint16, order binary.ByteOrder, value uint32) Tag {
	return NewLongs(code, order, []uint32{value})
}

// NewLong8s builds a BigTIFF Long8 tag.
func NewLong8s(code uint16, order binary.ByteOrder, values []uint64) Tag {
	data := make([]byte, 8*len(values))
	for i, v := range values {
		order.PutUint64(data[i*8:], v)
	}
	return Tag{Code: code, Type: TypeLong8, Count: uint64(len(values)), Data: data, Order: order}
}

// NewDoubles builds a Double tag.
func NewDoubles(code uint16, order binary.ByteOrder, values []float64) Tag {
	data := make([]byte, 8*len(values))
	for i, v := range values {
		order.PutUint64(data[i*8:], math.Float64bits(v))
	}
	return Tag{Code: code, Type: TypeDouble, Count: uint64(len(values)), Data: data, Order: order}
}

// NewASCII builds an ASCII tag with the mandatory NUL terminator.
func NewASCII(code uint16, order binary.ByteOrder, s string) Tag {
	data := append([]byte(s), 0)
	return Tag{Code: code, Type: TypeASCII, Count: uint64(len(data)), Data: data, Order: order}
}
