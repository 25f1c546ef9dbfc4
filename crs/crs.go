// Package crs provides the coordinate reference system collaborators
// the render pipeline projects through. Every CRS converts to and from
// WGS84 longitude/latitude degrees, which acts as the hub for
// transforms between arbitrary EPSG pairs.
package crs

import "fmt"

// CRS converts between a source coordinate system and WGS84.
type CRS interface {
	// ToWGS84 converts native coordinates to longitude/latitude degrees.
	ToWGS84(x, y float64) (lon, lat float64)

	// FromWGS84 converts longitude/latitude degrees to native coordinates.
	FromWGS84(lon, lat float64) (x, y float64)

	// EPSG returns the EPSG code of this system.
	EPSG() int
}

// UnsupportedError reports an EPSG code with no registered CRS.
type UnsupportedError struct {
	Code int
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("crs: unsupported projection epsg:%d", e.Code)
}

// ForEPSG returns the CRS for an EPSG code. Supported: 4326 (WGS84),
// 3857 (web mercator), 32601-32660 and 32701-32760 (WGS84 UTM zones).
func ForEPSG(code int) (CRS, error) {
	switch {
	case code == 4326:
		return WGS84{}, nil
	case code == 3857:
		return WebMercator{}, nil
	case code >= 32601 && code <= 32660:
		return UTM{Zone: code - 32600, South: false}, nil
	case code >= 32701 && code <= 32760:
		return UTM{Zone: code - 32700, South: true}, nil
	default:
		return nil, &UnsupportedError{Code: code}
	}
}

// Supported reports whether ForEPSG knows the code.
func Supported(code int) bool {
	_, err := ForEPSG(code)
	return err == nil
}

// WGS84 is the identity system: native coordinates are already
// longitude/latitude degrees.
type WGS84 struct{}

func (WGS84) ToWGS84(x, y float64) (float64, float64)   { return x, y }
func (WGS84) FromWGS84(lon, lat float64) (float64, float64) { return lon, lat }
func (WGS84) EPSG() int                                 { return 4326 }
