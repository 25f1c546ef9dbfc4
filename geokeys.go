package cloudtiff

import (
	"fmt"

	"github.com/airbusgeo/cloudtiff/crs"
	"github.com/airbusgeo/cloudtiff/geotags"
)

// buildGeoTags synthesizes the GeoTIFF overlay for an encode: a scaled
// model anchoring the raster's top-left corner at the region's
// north-west, plus the geo-key directory for the EPSG code. Only CRSs
// the crs package can project are encodable.
func buildGeoTags(epsg int, region Region) (*geotags.GeoTags, error) {
	system, err := crs.ForEPSG(epsg)
	if err != nil {
		return nil, err
	}

	geo := &geotags.GeoTags{
		Model: geotags.Model{
			Tiepoint:   []float64{0, 0, 0, region.MinX, region.MaxY, 0},
			PixelScale: []float64{0, 0, 0},
		},
		Directory: geotags.Directory{Version: 1, Revision: 1, MinorRevision: 0},
	}

	dir := &geo.Directory
	dir.SetKey(geotags.KeyGTRasterType, geotags.ShortValue(1))
	switch s := system.(type) {
	case crs.WGS84:
		dir.SetKey(geotags.KeyGTModelType, geotags.ShortValue(geotags.ModelTypeGeographic))
		dir.SetKey(geotags.KeyGeographicType, geotags.ShortValue(uint16(epsg)))
		dir.SetKey(geotags.KeyGeogAngularUnits, geotags.ShortValue(geotags.AngularUnitDegree))
		dir.SetKey(geotags.KeyGeogCitation, geotags.AsciiValue("WGS 84"))
	case crs.WebMercator:
		dir.SetKey(geotags.KeyGTModelType, geotags.ShortValue(geotags.ModelTypeProjected))
		dir.SetKey(geotags.KeyProjectedCSType, geotags.ShortValue(uint16(epsg)))
		dir.SetKey(geotags.KeyProjLinearUnits, geotags.ShortValue(geotags.LinearUnitMeter))
		dir.SetKey(geotags.KeyPCSCitation, geotags.AsciiValue("WGS 84 / Pseudo-Mercator"))
	case crs.UTM:
		dir.SetKey(geotags.KeyGTModelType, geotags.ShortValue(geotags.ModelTypeProjected))
		dir.SetKey(geotags.KeyProjectedCSType, geotags.ShortValue(uint16(epsg)))
		dir.SetKey(geotags.KeyProjLinearUnits, geotags.ShortValue(geotags.LinearUnitMeter))
		hemisphere := "N"
		if s.South {
			hemisphere = "S"
		}
		dir.SetKey(geotags.KeyPCSCitation,
			geotags.AsciiValue(fmt.Sprintf("WGS 84 / UTM zone %d%s", s.Zone, hemisphere)))
	default:
		return nil, &crs.UnsupportedError{Code: epsg}
	}
	return geo, nil
}

// geoTags binds the model's pixel scale to the output raster
// size.
func (e *Encoder) geoTags() (*geotags.GeoTags, error) {
	geo, err := buildGeoTags(e.epsg, e.region)
	if err != nil {
		return nil, err
	}
	geo.Model.PixelScale = []float64{
		e.region.Width() / float64(e.source.Width),
		e.region.Height() / float64(e.source.Height),
		0,
	}
	return geo, nil
}
