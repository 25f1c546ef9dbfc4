package cloudtiff

import (
	"github.com/airbusgeo/cloudtiff/raster"
	"go.uber.org/zap"
)

// Render runs the render on the caller's thread: plan, fetch the
// needed tiles one by one through the blocking reader, decode, compose.
// Per-tile fetch or decode failures are logged and skipped; the
// affected destination pixels stay zero.
func (b *RenderBuilder) Render() (*raster.Raster, error) {
	if b.reader == nil {
		return nil, errNoReader
	}
	if b.emptyResolution() {
		return b.emptyRaster(), nil
	}
	plan, err := b.plan()
	if err != nil {
		return nil, err
	}
	cache := getTiles(b.reader, plan.level, plan.indices, b.logger)
	return compose(plan, cache, b.width, b.height), nil
}

// getTiles fetches and decodes the given tile indices sequentially.
func getTiles(r RangeReader, level *Level, indices []int, logger *zap.Logger) map[int]*raster.Raster {
	cache := make(map[int]*raster.Raster, len(indices))
	for _, tr := range tileRangesFromIndices(level, indices, logger) {
		tile, err := getTileRange(r, level, tr)
		if err != nil {
			logger.Warn("tile skipped", zap.Int("tile", tr.index), zap.Error(err))
			continue
		}
		cache[tr.index] = tile
	}
	return cache
}

func getTileRange(r RangeReader, level *Level, tr tileRange) (*raster.Raster, error) {
	buf := make([]byte, tr.end-tr.start)
	if err := ReadRangeFull(r, tr.start, buf); err != nil {
		return nil, err
	}
	return level.ExtractTile(buf)
}

// GetTile fetches and decodes a single tile of one pyramid level. A
// failed tile is an error here, not a skip: the caller asked for
// exactly this tile.
func (c *CloudTiff) GetTile(r RangeReader, levelIndex, tileIndex int) (*raster.Raster, error) {
	level, err := c.Level(levelIndex)
	if err != nil {
		return nil, err
	}
	start, end, err := level.TileByteRange(tileIndex)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, end-start)
	if err := ReadRangeFull(r, start, buf); err != nil {
		return nil, err
	}
	return level.ExtractTile(buf)
}
