// Package cloudtiff reads, renders and writes Cloud-Optimized GeoTIFF
// imagery. A COG is a tiled, pyramided TIFF whose directory layout lets
// clients fetch only the byte ranges they need to materialize a region
// of interest at a chosen resolution.
package cloudtiff

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/airbusgeo/cloudtiff/geotags"
	"github.com/airbusgeo/cloudtiff/tiff"
)

// CloudTiff is the parsed model of a COG: the pyramid levels sorted by
// pixel count, largest first, and the projection that georeferences
// them. Immutable after parsing; safe to share across renders.
type CloudTiff struct {
	Levels     []*Level
	Projection Projection
}

// Open parses a COG from a seekable stream.
func Open(stream io.ReadSeeker) (*CloudTiff, error) {
	tif, err := tiff.Parse(stream)
	if err != nil {
		return nil, err
	}
	ifd0, err := tif.IFD0()
	if err != nil {
		return nil, err
	}
	geo, err := geotags.Parse(ifd0)
	if err != nil {
		return nil, err
	}
	return fromTiffAndGeo(tif, geo)
}

// OpenRange parses a COG through a positional reader.
func OpenRange(r RangeReader) (*CloudTiff, error) {
	return Open(NewStream(r))
}

// headerFetchSize is the chunk size used when probing a remote file's
// header region.
const headerFetchSize = 4096

// headerFetchAttempts bounds how much of a file OpenRangeContext will
// pull before giving up on finding the directory chain.
const headerFetchAttempts = 10

// OpenRangeContext parses a COG through an async positional reader by
// fetching the header region in growing chunks until the directory
// chain resolves. Sources whose directories sit beyond ~40 KiB from the
// file start (non-cloud-optimized layouts) should be opened with
// OpenRange over a local copy instead.
func OpenRangeContext(ctx context.Context, r AsyncRangeReader) (*CloudTiff, error) {
	buffer := make([]byte, 0, headerFetchSize)
	var lastErr error
	for i := 0; i < headerFetchAttempts; i++ {
		chunk := make([]byte, headerFetchSize)
		n, err := r.ReadRangeContext(ctx, uint64(len(buffer)), chunk)
		buffer = append(buffer, chunk[:n]...)
		if n == 0 && err != nil && err != io.EOF {
			return nil, err
		}

		cog, parseErr := Open(bytes.NewReader(buffer))
		if parseErr == nil {
			return cog, nil
		}
		lastErr = parseErr
		if !errors.Is(parseErr, io.ErrUnexpectedEOF) && !errors.Is(parseErr, io.EOF) {
			return nil, parseErr
		}
		if err == io.EOF {
			break
		}
	}
	return nil, lastErr
}

// fromTiffAndGeo maps the container's IFDs into levels, dropping any
// IFD that is not a usable tiled image, and derives the projection
// from the geo overlay.
func fromTiffAndGeo(tif *tiff.Tiff, geo *geotags.GeoTags) (*CloudTiff, error) {
	var levels []*Level
	for _, ifd := range tif.IFDs {
		level, err := levelFromIFD(ifd, tif.Order)
		if err != nil {
			continue
		}
		levels = append(levels, level)
	}
	if len(levels) == 0 {
		return nil, ErrNoLevels
	}

	// COGs should already be sorted big to small; enforce it.
	sort.SliceStable(levels, func(i, j int) bool {
		return levels[i].MegaPixels() > levels[j].MegaPixels()
	})
	for i, level := range levels {
		level.OverviewIndex = i
	}

	projection, err := projectionFromGeoTags(geo, levels[0].Width, levels[0].Height)
	if err != nil {
		return nil, err
	}

	return &CloudTiff{Levels: levels, Projection: projection}, nil
}

// FullDimensions returns the full-resolution width and height.
func (c *CloudTiff) FullDimensions() (uint32, uint32) {
	return c.Levels[0].Width, c.Levels[0].Height
}

// AspectRatio is width over height of the full-resolution level.
func (c *CloudTiff) AspectRatio() float64 {
	w, h := c.FullDimensions()
	return float64(w) / float64(h)
}

// MaxLevel is the index of the coarsest level.
func (c *CloudTiff) MaxLevel() int {
	return len(c.Levels) - 1
}

// Level returns level i.
func (c *CloudTiff) Level(i int) (*Level, error) {
	if i < 0 || i >= len(c.Levels) {
		return nil, &TileLevelOutOfRangeError{Level: i, Max: len(c.Levels) - 1}
	}
	return c.Levels[i], nil
}

// BoundsLatLonDeg is the COG footprint in WGS84 degrees.
func (c *CloudTiff) BoundsLatLonDeg() Region {
	return c.Projection.BoundsLatLonDeg()
}

// PixelScales returns, per level, the projected units covered by one
// pixel on each axis.
func (c *CloudTiff) PixelScales() [][2]float64 {
	out := make([][2]float64, len(c.Levels))
	for i, level := range c.Levels {
		out[i] = [2]float64{
			c.Projection.Scale[0] / float64(level.Width),
			c.Projection.Scale[1] / float64(level.Height),
		}
	}
	return out
}

// LevelAtPixelScale picks the smallest level whose own pixel scale is
// still finer than minPixelScale, falling back to full resolution.
func (c *CloudTiff) LevelAtPixelScale(minPixelScale float64) *Level {
	scales := c.PixelScales()
	for i := len(scales) - 1; i >= 0; i-- {
		larger := scales[i][0]
		if scales[i][1] > larger {
			larger = scales[i][1]
		}
		if larger < minPixelScale {
			return c.Levels[i]
		}
	}
	return c.Levels[0]
}

func (c *CloudTiff) String() string {
	return fmt.Sprintf("CloudTiff(%d levels, epsg:%d)", len(c.Levels), c.Projection.EPSG)
}
