package cloudtiff

import (
	"math"

	"github.com/airbusgeo/cloudtiff/raster"
	"go.uber.org/zap"
)

// Web mercator latitude clamp: tiles do not exist past these parallels.
const (
	wmtsMaxLatDeg = 85.06
	wmtsMinLatDeg = -85.06
)

// wmtsTileBoundsLatLonDeg returns the WGS84 footprint of the (x, y, z)
// slippy-map tile, or false when the index does not exist at that zoom.
func wmtsTileBoundsLatLonDeg(x, y, z int) (Region, bool) {
	if z < 0 || x < 0 || y < 0 {
		return Region{}, false
	}
	n := math.Exp2(float64(z))
	if float64(x) >= n || float64(y) >= n {
		return Region{}, false
	}
	west, north := wmtsIndexToLonLat(float64(x), float64(y), n)
	east, south := wmtsIndexToLonLat(float64(x+1), float64(y+1), n)
	return Region{MinX: west, MinY: south, MaxX: east, MaxY: north}, true
}

func wmtsIndexToLonLat(x, y, n float64) (lon, lat float64) {
	lon = x/n*360.0 - 180.0
	v := math.Pi * (1.0 - 2.0*y/n)
	lat = math.Atan(math.Sinh(v)) * 180.0 / math.Pi
	return
}

// wmtsLonLatToIndex returns fractional tile coordinates at zoom z.
func wmtsLonLatToIndex(lon, lat float64, z float64) (x, y float64) {
	n := math.Exp2(z)
	latRad := lat * math.Pi / 180.0
	x = n * (lon + 180.0) / 360.0
	y = n * (1.0 - math.Log(math.Tan(latRad)+1.0/math.Cos(latRad))/math.Pi) / 2.0
	return
}

// wmtsZoomRange computes the zoom span covering a WGS84 footprint:
// zMin is where the footprint still fits a single tile (adjusted down
// when the footprint straddles a tile seam on either axis), zMax is
// where tile resolution meets or exceeds the source resolution.
func wmtsZoomRange(bounds Region, width, height, tileWidth, tileHeight uint32) (zMin, zMax int) {
	maxLat := math.Min(bounds.MaxY, wmtsMaxLatDeg)
	minLat := math.Max(bounds.MinY, wmtsMinLatDeg)

	zMinF := math.Min(
		360.0/bounds.Width(),
		(wmtsMaxLatDeg-wmtsMinLatDeg)/(maxLat-minLat),
	)
	zMin = int(math.Floor(math.Log2(zMinF)))
	if zMin < 0 {
		zMin = 0
	}

	// Drop a level when the footprint crosses a tile boundary at zMin.
	x0, y0 := wmtsLonLatToIndex(bounds.MinX, maxLat, float64(zMin))
	x1, y1 := wmtsLonLatToIndex(bounds.MaxX, minLat, float64(zMin))
	if math.Floor(x0) != math.Floor(x1) || math.Floor(y0) != math.Floor(y1) {
		zMin--
		if zMin < 0 {
			zMin = 0
		}
	}

	xResolution := bounds.Width() / float64(width)
	yResolution := (maxLat - minLat) / float64(height)
	z0XResolution := 360.0 / float64(tileWidth)
	z0YResolution := (wmtsMaxLatDeg - wmtsMinLatDeg) / float64(tileHeight)
	zMax = int(math.Ceil(math.Log2(math.Max(
		z0XResolution/xResolution,
		z0YResolution/yResolution,
	))))
	if zMax < zMin {
		zMax = zMin
	}
	return zMin, zMax
}

// WmtsTileTreeIndices enumerates the (x, y, z) tile indices covering
// the COG's WGS84 footprint across the natural zoom span.
func (c *CloudTiff) WmtsTileTreeIndices(tileWidth, tileHeight uint32) [][3]int {
	bounds := c.BoundsLatLonDeg()
	w, h := c.FullDimensions()
	zMin, zMax := wmtsZoomRange(bounds, w, h, tileWidth, tileHeight)

	var tree [][3]int
	for z := zMin; z <= zMax; z++ {
		x0, y0 := wmtsLonLatToIndex(bounds.MinX, math.Min(bounds.MaxY, wmtsMaxLatDeg), float64(z))
		x1, y1 := wmtsLonLatToIndex(bounds.MaxX, math.Max(bounds.MinY, wmtsMinLatDeg), float64(z))
		for y := int(math.Floor(y0)); y < int(math.Ceil(y1)); y++ {
			for x := int(math.Floor(x0)); x < int(math.Ceil(x1)); x++ {
				tree = append(tree, [3]int{x, y, z})
			}
		}
	}
	return tree
}

// TileTreeRenderer renders WMTS tiles against one reader, keeping the
// decoded source tiles of the current pyramid level cached between
// calls. The cache is invalidated whenever the chosen source level
// changes, so walking a tree zoom by zoom reads each backing tile at
// most once per level. Not safe for concurrent use: the cache is owned
// by the renderer.
type TileTreeRenderer struct {
	cog        *CloudTiff
	reader     RangeReader
	tileWidth  uint32
	tileHeight uint32
	logger     *zap.Logger

	cache     map[int]*raster.Raster
	prevLevel int
}

// NewTileTreeRenderer builds a tree renderer producing tiles of the
// given pixel dimensions.
func NewTileTreeRenderer(cog *CloudTiff, reader RangeReader, tileWidth, tileHeight uint32) *TileTreeRenderer {
	return &TileTreeRenderer{
		cog:        cog,
		reader:     reader,
		tileWidth:  tileWidth,
		tileHeight: tileHeight,
		logger:     zap.NewNop(),
		cache:      make(map[int]*raster.Raster),
		prevLevel:  -1,
	}
}

// WithLogger routes per-tile diagnostics.
func (t *TileTreeRenderer) WithLogger(logger *zap.Logger) *TileTreeRenderer {
	if logger != nil {
		t.logger = logger
	}
	return t
}

// RenderTile renders one WMTS tile through the region path, reusing
// cached source tiles where possible.
func (t *TileTreeRenderer) RenderTile(x, y, z int) (*raster.Raster, error) {
	bounds, ok := wmtsTileBoundsLatLonDeg(x, y, z)
	if !ok {
		return nil, &BadWmtsTileIndexError{X: x, Y: y, Z: z}
	}

	builder := t.cog.Renderer().
		OfOutputRegion(4326, bounds.MinX, bounds.MinY, bounds.MaxX, bounds.MaxY).
		WithExactResolution(t.tileWidth, t.tileHeight).
		WithLogger(t.logger)
	plan, err := builder.plan()
	if err != nil {
		return nil, err
	}

	if plan.level.OverviewIndex != t.prevLevel {
		t.cache = make(map[int]*raster.Raster)
		t.prevLevel = plan.level.OverviewIndex
	}

	var missing []int
	for _, index := range plan.indices {
		if _, ok := t.cache[index]; !ok {
			missing = append(missing, index)
		}
	}
	for index, tile := range getTiles(t.reader, plan.level, missing, t.logger) {
		t.cache[index] = tile
	}

	return compose(plan, t.cache, t.tileWidth, t.tileHeight), nil
}
