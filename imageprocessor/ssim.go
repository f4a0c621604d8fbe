package imageprocessor

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// Stabilising constants for 8-bit data: (K1*L)^2 and (K2*L)^2 with
// K1=0.01, K2=0.03, L=255.
const (
	ssimC1 = 6.5025
	ssimC2 = 58.5225

	DefaultSSIMWindow = 7
)

// SimilarityResult holds the global SSIM score and the per-pixel map
type SimilarityResult struct {
	Score float64
	// DiffMap is a CV_64F single-channel map of local SSIM values
	DiffMap gocv.Mat
}

// Close releases the similarity map
func (r *SimilarityResult) Close() error {
	return r.DiffMap.Close()
}

// SSIMScorer computes the structural similarity index between two
// equally sized grayscale images using a uniform sliding window.
type SSIMScorer struct {
	WindowSize int
}

// NewSSIMScorer returns a scorer with the 7x7 window
func NewSSIMScorer() *SSIMScorer {
	return &SSIMScorer{WindowSize: DefaultSSIMWindow}
}

// Compare computes the SSIM of a and b. Both must be single-channel and of
// identical size, and at least one window in each dimension.
func (s *SSIMScorer) Compare(a, b gocv.Mat) (*SimilarityResult, error) {
	if a.Channels() != 1 {
		return nil, newChannelError("compare", 1, a.Channels())
	}
	if b.Channels() != 1 {
		return nil, newChannelError("compare", 1, b.Channels())
	}
	if a.Rows() != b.Rows() || a.Cols() != b.Cols() {
		return nil, newDimensionError("compare",
			fmt.Sprintf("%dx%d vs %dx%d", a.Cols(), a.Rows(), b.Cols(), b.Rows()))
	}

	win := s.WindowSize
	if win <= 0 {
		win = DefaultSSIMWindow
	}
	if win%2 == 0 {
		return nil, newDimensionError("compare", fmt.Sprintf("window size %d must be odd", win))
	}
	if a.Rows() < win || a.Cols() < win {
		return nil, newDimensionError("compare",
			fmt.Sprintf("image %dx%d is smaller than the %dx%d window", a.Cols(), a.Rows(), win, win))
	}

	ssimMap := computeSSIMMap(a, b, win)

	// Mean over the map with the window border excluded
	pad := (win - 1) / 2
	inner := ssimMap.Region(image.Rect(pad, pad, ssimMap.Cols()-pad, ssimMap.Rows()-pad))
	score := inner.Mean().Val1
	inner.Close()

	return &SimilarityResult{Score: score, DiffMap: ssimMap}, nil
}

// computeSSIMMap evaluates the SSIM formula at every pixel. Local moments
// come from a normalised box filter; variances use the sample estimate.
func computeSSIMMap(a, b gocv.Mat, win int) gocv.Mat {
	var mats []*gocv.Mat
	track := func(m gocv.Mat) *gocv.Mat {
		mats = append(mats, &m)
		return &m
	}
	defer func() {
		for _, m := range mats {
			m.Close()
		}
	}()

	ksize := image.Pt(win, win)
	mean := func(src *gocv.Mat) *gocv.Mat {
		dst := track(gocv.NewMat())
		gocv.Blur(*src, dst, ksize)
		return dst
	}
	mul := func(x, y *gocv.Mat) *gocv.Mat {
		dst := track(gocv.NewMat())
		gocv.Multiply(*x, *y, dst)
		return dst
	}

	x := track(gocv.NewMat())
	a.ConvertTo(x, gocv.MatTypeCV64F)
	y := track(gocv.NewMat())
	b.ConvertTo(y, gocv.MatTypeCV64F)

	covNorm := float32(win*win) / float32(win*win-1)

	ux := mean(x)
	uy := mean(y)
	uxx := mean(mul(x, x))
	uyy := mean(mul(y, y))
	uxy := mean(mul(x, y))

	uxux := mul(ux, ux)
	uyuy := mul(uy, uy)
	uxuy := mul(ux, uy)

	vx := track(gocv.NewMat())
	gocv.Subtract(*uxx, *uxux, vx)
	vx.MultiplyFloat(covNorm)
	vy := track(gocv.NewMat())
	gocv.Subtract(*uyy, *uyuy, vy)
	vy.MultiplyFloat(covNorm)
	vxy := track(gocv.NewMat())
	gocv.Subtract(*uxy, *uxuy, vxy)
	vxy.MultiplyFloat(covNorm)

	// A1 = 2*ux*uy + C1, A2 = 2*vxy + C2
	a1 := track(uxuy.Clone())
	a1.MultiplyFloat(2)
	a1.AddFloat(ssimC1)
	a2 := track(vxy.Clone())
	a2.MultiplyFloat(2)
	a2.AddFloat(ssimC2)

	// B1 = ux^2 + uy^2 + C1, B2 = vx + vy + C2
	b1 := track(gocv.NewMat())
	gocv.Add(*uxux, *uyuy, b1)
	b1.AddFloat(ssimC1)
	b2 := track(gocv.NewMat())
	gocv.Add(*vx, *vy, b2)
	b2.AddFloat(ssimC2)

	num := mul(a1, a2)
	den := mul(b1, b2)

	ssimMap := gocv.NewMat()
	gocv.Divide(*num, *den, &ssimMap)
	return ssimMap
}

// ScaleDiffMap converts a similarity map to 8 bits (value*255). Values
// outside [0,1] saturate to 0 or 255.
func ScaleDiffMap(diffMap gocv.Mat) (gocv.Mat, error) {
	if diffMap.Channels() != 1 {
		return gocv.NewMat(), newChannelError("scale", 1, diffMap.Channels())
	}

	scaled := gocv.NewMat()
	diffMap.ConvertToWithParams(&scaled, gocv.MatTypeCV8U, 255, 0)
	return scaled, nil
}
