package cloudtiff

import (
	"context"
	"runtime"
	"sync"

	"github.com/airbusgeo/cloudtiff/raster"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// RenderContext runs the render with concurrent I/O: all tile fetches
// are dispatched at once through the async reader and joined as a
// group, then decoded on a CPU-bound worker pool. Tile order is
// irrelevant; each tile writes a disjoint set of output pixels.
// Per-tile failures are logged and skipped.
//
// Cancelling ctx abandons outstanding fetches; the reader is left in a
// valid state because the positional contract carries no shared cursor.
func (b *RenderBuilder) RenderContext(ctx context.Context) (*raster.Raster, error) {
	if b.asyncReader == nil {
		return nil, errNoReader
	}
	if b.emptyResolution() {
		return b.emptyRaster(), nil
	}
	plan, err := b.plan()
	if err != nil {
		return nil, err
	}
	cache, err := getTilesContext(ctx, b.asyncReader, plan.level, plan.indices, b.logger)
	if err != nil {
		return nil, err
	}
	return compose(plan, cache, b.width, b.height), nil
}

type fetchedTile struct {
	index int
	data  []byte
}

// getTilesContext fetches all tiles concurrently, then decodes them in
// parallel. Only ctx cancellation aborts the whole render; individual
// tile errors are logged and dropped.
func getTilesContext(ctx context.Context, r AsyncRangeReader, level *Level,
	indices []int, logger *zap.Logger) (map[int]*raster.Raster, error) {

	ranges := tileRangesFromIndices(level, indices, logger)

	// I/O fan-out: every fetch in flight at once, joined as a group.
	fetched := make([]*fetchedTile, len(ranges))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, tr := range ranges {
		i, tr := i, tr
		group.Go(func() error {
			buf := make([]byte, tr.end-tr.start)
			if err := ReadRangeFullContext(groupCtx, r, tr.start, buf); err != nil {
				if groupCtx.Err() != nil {
					return groupCtx.Err()
				}
				logger.Warn("tile fetch failed", zap.Int("tile", tr.index), zap.Error(err))
				return nil
			}
			fetched[i] = &fetchedTile{index: tr.index, data: buf}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	// CPU fan-out: decode independently per tile on a bounded pool.
	workers := runtime.GOMAXPROCS(0)
	if workers > len(ranges) {
		workers = len(ranges)
	}
	if workers < 1 {
		workers = 1
	}

	var mu sync.Mutex
	cache := make(map[int]*raster.Raster, len(ranges))
	decode := errgroup.Group{}
	decode.SetLimit(workers)
	for _, ft := range fetched {
		if ft == nil {
			continue
		}
		ft := ft
		decode.Go(func() error {
			tile, err := level.ExtractTile(ft.data)
			if err != nil {
				logger.Warn("tile decode failed", zap.Int("tile", ft.index), zap.Error(err))
				return nil
			}
			mu.Lock()
			cache[ft.index] = tile
			mu.Unlock()
			return nil
		})
	}
	_ = decode.Wait()

	return cache, nil
}
