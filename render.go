package cloudtiff

import (
	"errors"

	"github.com/airbusgeo/cloudtiff/crs"
	"github.com/airbusgeo/cloudtiff/raster"
	"go.uber.org/zap"
)

type regionMode int

const (
	modeCrop regionMode = iota
	modeOutputRegion
	modeWmtsTile
)

// RenderBuilder configures one render of a COG. Obtain one from
// CloudTiff.Renderer, set a region, resolution and reader, then call
// Render or RenderContext. Builders are cheap and single-use; configure
// immediately before rendering.
type RenderBuilder struct {
	cog    *CloudTiff
	logger *zap.Logger

	mode       regionMode
	crop       Region
	regionEPSG int
	region     Region
	tileX      int
	tileY      int
	tileZ      int

	width  uint32
	height uint32

	reader      RangeReader
	asyncReader AsyncRangeReader
}

// Renderer starts a render of the COG: full resolution, full crop.
func (c *CloudTiff) Renderer() *RenderBuilder {
	w, h := c.FullDimensions()
	return &RenderBuilder{
		cog:    c,
		logger: zap.NewNop(),
		mode:   modeCrop,
		crop:   UnitRegion(),
		width:  w,
		height: h,
	}
}

// OfCrop renders a crop of the source image, in unit coordinates in
// [0,1]^2. Coordinates are saturated into range.
func (b *RenderBuilder) OfCrop(minX, minY, maxX, maxY float64) *RenderBuilder {
	b.mode = modeCrop
	b.crop = NewRegion(minX, minY, maxX, maxY).clampUnit()
	return b
}

// OfOutputRegion renders a rectangle declared in an output CRS, in that
// CRS's native units.
func (b *RenderBuilder) OfOutputRegion(epsg int, minX, minY, maxX, maxY float64) *RenderBuilder {
	b.mode = modeOutputRegion
	b.regionEPSG = epsg
	b.region = NewRegion(minX, minY, maxX, maxY)
	return b
}

// OfOutputRegionLatLonDeg renders a WGS84 rectangle given as west,
// south, east, north degrees.
func (b *RenderBuilder) OfOutputRegionLatLonDeg(west, south, east, north float64) *RenderBuilder {
	return b.OfOutputRegion(4326, west, south, east, north)
}

// OfTile renders one WMTS tile.
func (b *RenderBuilder) OfTile(x, y, z int) *RenderBuilder {
	b.mode = modeWmtsTile
	b.tileX, b.tileY, b.tileZ = x, y, z
	return b
}

// WithExactResolution sets the output size in pixels.
func (b *RenderBuilder) WithExactResolution(width, height uint32) *RenderBuilder {
	b.width, b.height = width, height
	return b
}

// WithMPLimit scales the output to at most the given megapixel count,
// preserving the source aspect ratio.
func (b *RenderBuilder) WithMPLimit(megapixels float64) *RenderBuilder {
	w, h := b.cog.FullDimensions()
	b.width, b.height = resolutionFromMPLimit(w, h, megapixels)
	return b
}

// WithReader attaches a blocking positional reader.
func (b *RenderBuilder) WithReader(r RangeReader) *RenderBuilder {
	b.reader = r
	return b
}

// WithAsyncReader attaches a context-aware positional reader, enabling
// RenderContext's concurrent fetch path.
func (b *RenderBuilder) WithAsyncReader(r AsyncRangeReader) *RenderBuilder {
	b.asyncReader = r
	return b
}

// WithLogger routes per-tile diagnostics somewhere visible. The default
// logger drops them.
func (b *RenderBuilder) WithLogger(logger *zap.Logger) *RenderBuilder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// errNoReader is returned when a render starts without a reader.
var errNoReader = errors.New("cloudtiff: render has no reader")

// plan resolves the builder's region mode into a level, a pixel map (or
// crop) and the tile indices to fetch.
type renderPlan struct {
	level   *Level
	crop    *Region  // set in crop mode
	pm      pixelMap // set in region modes
	indices []int
}

func (b *RenderBuilder) plan() (*renderPlan, error) {
	switch b.mode {
	case modeCrop:
		level := levelFromCrop(b.cog, b.crop, b.width, b.height)
		crop := b.crop
		return &renderPlan{
			level:   level,
			crop:    &crop,
			indices: level.TileIndicesWithinImageCrop(crop),
		}, nil

	case modeOutputRegion:
		return b.planRegion(b.regionEPSG, b.region)

	case modeWmtsTile:
		bounds, ok := wmtsTileBoundsLatLonDeg(b.tileX, b.tileY, b.tileZ)
		if !ok {
			return nil, &BadWmtsTileIndexError{X: b.tileX, Y: b.tileY, Z: b.tileZ}
		}
		return b.planRegion(4326, bounds)
	}
	return nil, errors.New("cloudtiff: unknown render region mode")
}

func (b *RenderBuilder) planRegion(epsg int, region Region) (*renderPlan, error) {
	outputCRS, err := crs.ForEPSG(epsg)
	if err != nil {
		return nil, err
	}
	level := levelFromRegion(b.cog, outputCRS, region, b.width, b.height)

	var pm pixelMap
	if similarityValid(b.cog.Projection, outputCRS, region, b.width, b.height) {
		pm, err = projectPixelMapSimilarity(level, b.cog.Projection, outputCRS, region, b.width, b.height)
	} else {
		pm, err = projectPixelMap(level, b.cog.Projection, outputCRS, region, b.width, b.height, b.logger)
	}
	if err != nil {
		return nil, err
	}
	return &renderPlan{level: level, pm: pm, indices: pm.indices()}, nil
}

// blankOutput allocates the output raster with the level's sample
// geometry.
func blankOutput(level *Level, width, height uint32) *raster.Raster {
	return raster.Blank(width, height, level.BitsPerSample, level.Interpretation,
		level.SampleFormat, level.ExtraSamples, level.Order)
}

// compose copies mapped source pixels into the output raster.
// Tiles missing from the cache leave their destination pixels zero.
func compose(plan *renderPlan, cache map[int]*raster.Raster, width, height uint32) *raster.Raster {
	out := blankOutput(plan.level, width, height)
	if plan.crop != nil {
		composeCrop(plan.level, *plan.crop, cache, out)
		return out
	}
	for index, mappings := range plan.pm {
		tile, ok := cache[index]
		if !ok {
			continue
		}
		for _, m := range mappings {
			pixel := tile.GetPixel(uint32(m.srcX), uint32(m.srcY))
			if pixel == nil {
				continue
			}
			_ = out.PutPixel(m.dstX, m.dstY, pixel)
		}
	}
	return out
}

// composeCrop walks the output grid, nearest-sampling the crop region.
func composeCrop(level *Level, crop Region, cache map[int]*raster.Raster, out *raster.Raster) {
	dxdi := crop.Width() / float64(out.Width)
	dydj := crop.Height() / float64(out.Height)
	for j := uint32(0); j < out.Height; j++ {
		y := crop.MinY + dydj*float64(j)
		for i := uint32(0); i < out.Width; i++ {
			x := crop.MinX + dxdi*float64(i)
			index, tileX, tileY, err := level.IndexFromImageCoords(x, y)
			if err != nil {
				continue
			}
			tile, ok := cache[index]
			if !ok {
				continue
			}
			pixel := tile.GetPixel(uint32(tileX), uint32(tileY))
			if pixel == nil {
				continue
			}
			_ = out.PutPixel(i, j, pixel)
		}
	}
}

// emptyResolution reports a degenerate output size; renders return an
// empty raster rather than planning anything.
func (b *RenderBuilder) emptyResolution() bool {
	return b.width == 0 || b.height == 0
}

func (b *RenderBuilder) emptyRaster() *raster.Raster {
	level := b.cog.Levels[0]
	return raster.Blank(b.width, b.height, level.BitsPerSample, level.Interpretation,
		level.SampleFormat, level.ExtraSamples, level.Order)
}
