// Package geotags interprets the GeoTIFF tag overlay of a TIFF IFD:
// the geo-key directory plus the tiepoint / pixel-scale / transformation
// model tags, per OGC 19-008r4.
package geotags

import (
	"errors"
	"fmt"
	"math"

	"github.com/airbusgeo/cloudtiff/tiff"
)

// MissingKeyError reports an absent geo-key that the caller required.
type MissingKeyError struct {
	Code uint16
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("geotags: missing geo key %d", e.Code)
}

// ErrUnsupportedModelTransformation is returned when a full 4x4
// transformation model reaches a code path that only handles the scaled
// model.
var ErrUnsupportedModelTransformation = errors.New("geotags: model transformation not supported")

// Model describes how raster space maps to projected space. Exactly one
// of the two forms is present.
type Model struct {
	// Scaled model: Tiepoint[6] + PixelScale[3].
	Tiepoint   []float64
	PixelScale []float64
	// Transformed model: a row-major 4x4 matrix, with an optional
	// tiepoint. Read-only; the encoder always emits the scaled form.
	Transformation []float64
}

// Scaled reports whether the model is the affine tiepoint/scale form.
func (m *Model) Scaled() bool {
	return m.Transformation == nil
}

// GeoTags is the parsed overlay of one IFD.
type GeoTags struct {
	Model     Model
	Directory Directory
}

// Parse reads the geo overlay from ifd. The model requires either
// ModelTransformation, or both ModelTiepoint and ModelPixelScale.
func Parse(ifd *tiff.IFD) (*GeoTags, error) {
	dir, err := parseDirectory(ifd)
	if err != nil {
		return nil, err
	}

	var model Model
	if transform, err := ifd.Tag(tiff.TagModelTransformation); err == nil {
		matrix := transform.Floats()
		if len(matrix) != 16 {
			return nil, &tiff.TagError{Code: tiff.TagModelTransformation, Reason: "expected 16 values"}
		}
		model.Transformation = matrix
		if tiepoint, err := ifd.Tag(tiff.TagModelTiepoint); err == nil {
			model.Tiepoint = tiepoint.Floats()
		}
	} else {
		tiepoint, err := ifd.Tag(tiff.TagModelTiepoint)
		if err != nil {
			return nil, err
		}
		scale, err := ifd.Tag(tiff.TagModelPixelScale)
		if err != nil {
			return nil, err
		}
		model.Tiepoint = tiepoint.Floats()
		model.PixelScale = scale.Floats()
		if len(model.Tiepoint) < 6 {
			return nil, &tiff.TagError{Code: tiff.TagModelTiepoint, Reason: "expected 6 values"}
		}
		if len(model.PixelScale) < 3 {
			return nil, &tiff.TagError{Code: tiff.TagModelPixelScale, Reason: "expected 3 values"}
		}
	}

	return &GeoTags{Model: model, Directory: dir}, nil
}

// EPSG returns the CRS code declared by either ProjectedCSType or
// GeographicType, and whether the CRS is geographic.
func (g *GeoTags) EPSG() (code int, geographic bool, err error) {
	if key, ok := g.Directory.Key(KeyProjectedCSType); ok {
		if v, ok := key.Value.Number(); ok {
			return v, false, nil
		}
	}
	if key, ok := g.Directory.Key(KeyGeographicType); ok {
		if v, ok := key.Value.Number(); ok {
			return v, true, nil
		}
	}
	return 0, false, &MissingKeyError{Code: KeyProjectedCSType}
}

// AngularUnitGain converts the declared angular unit to degrees. For a
// geographic CRS with no declared unit the file is assumed to carry
// degrees already.
func (g *GeoTags) AngularUnitGain() float64 {
	if key, ok := g.Directory.Key(KeyGeogAngularUnits); ok {
		if v, ok := key.Value.Number(); ok && v == AngularUnitRadian {
			return 180.0 / math.Pi
		}
	}
	return 1.0
}
