package cloudtiff

import (
	"math"

	"github.com/airbusgeo/cloudtiff/crs"
	"go.uber.org/zap"
)

// pixelMapping ties one source pixel (fractional, intra-tile) to one
// destination pixel of the output raster.
type pixelMapping struct {
	srcX, srcY float64
	dstX, dstY uint32
}

// pixelMap maps each needed tile index to the source→destination pixel
// pairs it supplies for a single render. Destination sets are disjoint
// across tiles by construction, so tiles compose in any order.
type pixelMap map[int][]pixelMapping

func (pm pixelMap) indices() []int {
	out := make([]int, 0, len(pm))
	for index := range pm {
		out = append(out, index)
	}
	return out
}

// maxPixelDeviation is the similarity fast-path tolerance, in output
// pixels.
const maxPixelDeviation = 1.0

// levelFromCrop picks the coarsest level whose dimensions still exceed
// the output resolution scaled up by the crop extent.
func levelFromCrop(cog *CloudTiff, crop Region, outWidth, outHeight uint32) *Level {
	minWidth := math.Ceil(float64(outWidth) / crop.Width())
	minHeight := math.Ceil(float64(outHeight) / crop.Height())
	for i := len(cog.Levels) - 1; i >= 0; i-- {
		level := cog.Levels[i]
		if float64(level.Width) > minWidth && float64(level.Height) > minHeight {
			return level
		}
	}
	return cog.Levels[0]
}

// levelFromRegion picks a level by the target pixel scale implied by
// the output region and resolution.
func levelFromRegion(cog *CloudTiff, outputCRS crs.CRS, region Region, outWidth, outHeight uint32) *Level {
	left, top, _ := cog.Projection.TransformFrom(region.MinX, region.MinY, 0, outputCRS)
	right, bottom, _ := cog.Projection.TransformFrom(region.MaxX, region.MaxY, 0, outputCRS)

	// Unit image extents scaled back to projected units per output pixel.
	scaleX := math.Abs(right-left) * cog.Projection.Scale[0] / float64(outWidth)
	scaleY := math.Abs(top-bottom) * cog.Projection.Scale[1] / float64(outHeight)
	minPixelScale := math.Min(scaleX, scaleY)
	return cog.LevelAtPixelScale(minPixelScale)
}

// resolutionFromMPLimit scales the full dimensions down to at most
// maxMegapixels, preserving aspect ratio.
func resolutionFromMPLimit(fullWidth, fullHeight uint32, maxMegapixels float64) (uint32, uint32) {
	ar := float64(fullWidth) / float64(fullHeight)
	maxPixels := float64(fullWidth) * float64(fullHeight)
	height := math.Sqrt(math.Min(maxMegapixels*1e6, maxPixels) / ar)
	width := ar * height
	return uint32(width), uint32(height)
}

// projectPixelMap builds the pixel map for an output region by
// projecting every output pixel back onto the source image. Pixels
// whose projection falls outside the source are dropped.
func projectPixelMap(level *Level, projection Projection, outputCRS crs.CRS,
	region Region, outWidth, outHeight uint32, logger *zap.Logger) (pixelMap, error) {

	pm := pixelMap{}
	dxdi := region.Width() / float64(outWidth)
	dydj := region.Height() / float64(outHeight)
	for j := uint32(0); j < outHeight; j++ {
		y := region.MaxY - dydj*float64(j)
		for i := uint32(0); i < outWidth; i++ {
			x := region.MinX + dxdi*float64(i)
			u, v, _ := projection.TransformFrom(x, y, 0, outputCRS)
			index, tileX, tileY, err := level.IndexFromImageCoords(u, v)
			if err != nil {
				continue
			}
			pm[index] = append(pm[index], pixelMapping{srcX: tileX, srcY: tileY, dstX: i, dstY: j})
		}
	}
	if len(pm) == 0 {
		return nil, &RegionOutOfBoundsError{
			Requested: region,
			Actual:    projection.boundsIn(outputCRS),
		}
	}
	return pm, nil
}

// similarityValid tests whether the region's source→output transform is
// close enough to a 2-D similarity: project the fourth corner with the
// affine approximation from the other three and compare against the
// true projection. Valid when the deviation is at most one output
// pixel.
func similarityValid(projection Projection, outputCRS crs.CRS, region Region, outWidth, outHeight uint32) bool {
	origin := project2(projection, outputCRS, region.MinX, region.MinY)
	right := project2(projection, outputCRS, region.MaxX, region.MinY)
	down := project2(projection, outputCRS, region.MinX, region.MaxY)
	across := project2(projection, outputCRS, region.MaxX, region.MaxY)

	dudx := (right[0] - origin[0]) / region.Width()
	dvdx := (right[1] - origin[1]) / region.Width()
	dudy := (down[0] - origin[0]) / region.Height()
	dvdy := (down[1] - origin[1]) / region.Height()

	projected := [2]float64{
		origin[0] + dudx*region.Width() + dudy*region.Height(),
		origin[1] + dvdx*region.Width() + dvdy*region.Height(),
	}
	deviation := math.Hypot(projected[0]-across[0], projected[1]-across[1])
	pixelSize := math.Hypot(across[0]-origin[0], across[1]-origin[1]) /
		math.Hypot(float64(outWidth), float64(outHeight))
	if pixelSize == 0 {
		return false
	}
	return deviation/pixelSize <= maxPixelDeviation
}

func project2(projection Projection, outputCRS crs.CRS, x, y float64) [2]float64 {
	u, v, _ := projection.TransformFrom(x, y, 0, outputCRS)
	return [2]float64{u, v}
}

// projectPixelMapSimilarity fills the pixel map by affine increments
// derived from three corner projections, skipping per-pixel projection.
func projectPixelMapSimilarity(level *Level, projection Projection, outputCRS crs.CRS,
	region Region, outWidth, outHeight uint32) (pixelMap, error) {

	pm := pixelMap{}
	origin := project2(projection, outputCRS, region.MinX, region.MaxY)
	right := project2(projection, outputCRS, region.MaxX, region.MaxY)
	down := project2(projection, outputCRS, region.MinX, region.MinY)

	dudx := (right[0] - origin[0]) / region.Width()
	dvdx := (right[1] - origin[1]) / region.Width()
	dudy := (down[0] - origin[0]) / region.Height()
	dvdy := (down[1] - origin[1]) / region.Height()

	dxdi := region.Width() / float64(outWidth)
	dydj := region.Height() / float64(outHeight)
	for j := uint32(0); j < outHeight; j++ {
		dy := dydj * float64(j)
		for i := uint32(0); i < outWidth; i++ {
			dx := dxdi * float64(i)
			u := origin[0] + dudx*dx + dudy*dy
			v := origin[1] + dvdx*dx + dvdy*dy
			index, tileX, tileY, err := level.IndexFromImageCoords(u, v)
			if err != nil {
				continue
			}
			pm[index] = append(pm[index], pixelMapping{srcX: tileX, srcY: tileY, dstX: i, dstY: j})
		}
	}
	if len(pm) == 0 {
		return nil, &RegionOutOfBoundsError{
			Requested: region,
			Actual:    projection.boundsIn(outputCRS),
		}
	}
	return pm, nil
}

// tileRange pairs a tile index with its byte range.
type tileRange struct {
	index      int
	start, end uint64
}

// tileRangesFromIndices resolves indices to byte ranges, logging and
// dropping any index outside the level's grid.
func tileRangesFromIndices(level *Level, indices []int, logger *zap.Logger) []tileRange {
	out := make([]tileRange, 0, len(indices))
	for _, index := range indices {
		start, end, err := level.TileByteRange(index)
		if err != nil {
			logger.Warn("tile byte range", zap.Int("tile", index), zap.Error(err))
			continue
		}
		out = append(out, tileRange{index: index, start: start, end: end})
	}
	return out
}
