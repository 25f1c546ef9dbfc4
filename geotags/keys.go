package geotags

import (
	"fmt"
	"sort"
	"strings"

	"github.com/airbusgeo/cloudtiff/tiff"
)

// GeoKey codes from OGC 19-008r4. Only the keys the library interprets
// are named; everything else is carried by numeric code.
const (
	KeyGTModelType      = 1024
	KeyGTRasterType     = 1025
	KeyGTCitation       = 1026
	KeyGeographicType   = 2048
	KeyGeogCitation     = 2049
	KeyGeogAngularUnits = 2054
	KeyProjectedCSType  = 3072
	KeyPCSCitation      = 3073
	KeyProjLinearUnits  = 3076
)

// Model type values for KeyGTModelType.
const (
	ModelTypeProjected  = 1
	ModelTypeGeographic = 2
)

// Angular unit values for KeyGeogAngularUnits.
const (
	AngularUnitRadian = 9101
	AngularUnitDegree = 9102
)

// Linear unit value for KeyProjLinearUnits.
const LinearUnitMeter = 9001

// KeyValue is one geo-key's value: shorts inline in the directory, or
// doubles / ascii resolved from the companion params tags.
type KeyValue struct {
	Shorts  []uint16
	Doubles []float64
	Ascii   string
	kind    valueKind
}

type valueKind int

const (
	kindUndefined valueKind = iota
	kindShort
	kindDouble
	kindAscii
)

// Number returns the value as a single integer when it is a one-element
// short or double.
func (v KeyValue) Number() (int, bool) {
	switch v.kind {
	case kindShort:
		if len(v.Shorts) == 1 {
			return int(v.Shorts[0]), true
		}
	case kindDouble:
		if len(v.Doubles) == 1 {
			return int(v.Doubles[0]), true
		}
	}
	return 0, false
}

func (v KeyValue) String() string {
	switch v.kind {
	case kindShort:
		return fmt.Sprintf("%v", v.Shorts)
	case kindDouble:
		return fmt.Sprintf("%v", v.Doubles)
	case kindAscii:
		return v.Ascii
	default:
		return "undefined"
	}
}

// ShortValue builds an inline short key value.
func ShortValue(v uint16) KeyValue {
	return KeyValue{Shorts: []uint16{v}, kind: kindShort}
}

// DoubleValue builds a double-params key value.
func DoubleValue(v ...float64) KeyValue {
	return KeyValue{Doubles: v, kind: kindDouble}
}

// AsciiValue builds an ascii-params key value.
func AsciiValue(s string) KeyValue {
	return KeyValue{Ascii: s, kind: kindAscii}
}

// Key is one entry of the geo-key directory.
type Key struct {
	Code  uint16
	Value KeyValue
}

// Directory is the parsed GeoKeyDirectory tag: a second-level key store
// nested inside the TIFF tag namespace.
type Directory struct {
	Version       uint16
	Revision      uint16
	MinorRevision uint16
	Keys          []Key
}

// Key returns the key with the given code.
func (d *Directory) Key(code uint16) (*Key, bool) {
	for i := range d.Keys {
		if d.Keys[i].Code == code {
			return &d.Keys[i], true
		}
	}
	return nil, false
}

// SetKey inserts or replaces a key.
func (d *Directory) SetKey(code uint16, v KeyValue) {
	for i := range d.Keys {
		if d.Keys[i].Code == code {
			d.Keys[i].Value = v
			return
		}
	}
	d.Keys = append(d.Keys, Key{Code: code, Value: v})
}

// sortKeys orders keys by ascending code, required on emit.
func (d *Directory) sortKeys() {
	sort.SliceStable(d.Keys, func(i, j int) bool {
		return d.Keys[i].Code < d.Keys[j].Code
	})
}

func parseDirectory(ifd *tiff.IFD) (Directory, error) {
	tag, err := ifd.Tag(tiff.TagGeoKeyDirectory)
	if err != nil {
		return Directory{}, err
	}
	values := tag.Shorts()
	if len(values) < 4 {
		return Directory{}, &tiff.TagError{Code: tiff.TagGeoKeyDirectory, Reason: "directory header truncated"}
	}
	dir := Directory{
		Version:       values[0],
		Revision:      values[1],
		MinorRevision: values[2],
	}
	keyCount := int(values[3])
	if len(values) < 4+keyCount*4 {
		return Directory{}, &tiff.TagError{Code: tiff.TagGeoKeyDirectory, Reason: "directory entries truncated"}
	}

	for i := 0; i < keyCount; i++ {
		entry := values[4+i*4 : 4+i*4+4]
		code, location, count, offset := entry[0], entry[1], entry[2], entry[3]

		var value KeyValue
		switch location {
		case 0:
			value = ShortValue(offset)
		case tiff.TagGeoDoubleParams:
			params, err := ifd.Tag(tiff.TagGeoDoubleParams)
			if err != nil {
				return Directory{}, err
			}
			doubles := params.Floats()
			if int(offset)+int(count) > len(doubles) {
				return Directory{}, &tiff.TagError{Code: tiff.TagGeoDoubleParams, Reason: "key value out of range"}
			}
			value = KeyValue{Doubles: doubles[offset : offset+count], kind: kindDouble}
		case tiff.TagGeoAsciiParams:
			params, err := ifd.Tag(tiff.TagGeoAsciiParams)
			if err != nil {
				return Directory{}, err
			}
			ascii := params.ASCII()
			if int(offset)+int(count) > len(ascii) {
				return Directory{}, &tiff.TagError{Code: tiff.TagGeoAsciiParams, Reason: "key value out of range"}
			}
			s := ascii[offset : offset+count]
			value = AsciiValue(strings.TrimRight(s, "|\x00"))
		case tiff.TagGeoKeyDirectory:
			if int(offset)+int(count) > len(values) {
				return Directory{}, &tiff.TagError{Code: tiff.TagGeoKeyDirectory, Reason: "key value out of range"}
			}
			value = KeyValue{Shorts: values[offset : offset+count], kind: kindShort}
		default:
			value = KeyValue{}
		}
		dir.Keys = append(dir.Keys, Key{Code: code, Value: value})
	}
	return dir, nil
}
