package imageprocessor

import (
	"image"

	"cardcheck/logging"
	"cardcheck/types"

	"gocv.io/x/gocv"
)

// RegionExtractor binarizes a scaled similarity map and finds the regions
// that differ.
type RegionExtractor struct{}

// NewRegionExtractor returns a RegionExtractor
func NewRegionExtractor() *RegionExtractor {
	return &RegionExtractor{}
}

// Threshold applies an inverted Otsu threshold to an 8-bit similarity map:
// dissimilar (dark) pixels become 255, similar pixels 0. A uniform map has
// a single class and produces an all-background mask.
func (e *RegionExtractor) Threshold(diff gocv.Mat) (gocv.Mat, error) {
	if diff.Channels() != 1 {
		return gocv.NewMat(), newChannelError("threshold", 1, diff.Channels())
	}
	if diff.Empty() {
		return gocv.NewMat(), newDimensionError("threshold", "difference map is empty")
	}

	minVal, maxVal, _, _ := gocv.MinMaxLoc(diff)
	if minVal == maxVal {
		logging.DebugLog("Uniform difference map (value %.0f), no foreground", minVal)
		return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), diff.Rows(), diff.Cols(), gocv.MatTypeCV8U), nil
	}

	mask := gocv.NewMat()
	otsu := gocv.Threshold(diff, &mask, 0, 255, gocv.ThresholdBinaryInv+gocv.ThresholdOtsu)
	logging.DebugLog("Otsu threshold selected: %.0f", otsu)
	return mask, nil
}

// ExtractRegions returns the bounding box of every external contour of the
// foreground in mask, in contour discovery order. Boxes are clipped to the
// mask bounds.
func (e *RegionExtractor) ExtractRegions(mask gocv.Mat) ([]types.Region, error) {
	if mask.Channels() != 1 {
		return nil, newChannelError("extract", 1, mask.Channels())
	}
	if mask.Empty() {
		return nil, newDimensionError("extract", "mask is empty")
	}

	regions := []types.Region{}
	if gocv.CountNonZero(mask) == 0 {
		return regions, nil
	}

	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	bounds := image.Rect(0, 0, mask.Cols(), mask.Rows())
	for i := 0; i < contours.Size(); i++ {
		rect := gocv.BoundingRect(contours.At(i))
		if region, ok := ClipRegion(rect, bounds); ok {
			regions = append(regions, region)
		}
	}

	return regions, nil
}

// ClipRegion intersects rect with bounds. It reports false when nothing
// of rect lies inside bounds.
func ClipRegion(rect, bounds image.Rectangle) (types.Region, bool) {
	clipped := rect.Intersect(bounds)
	if clipped.Empty() {
		return types.Region{}, false
	}
	return types.RegionFromRect(clipped), true
}
