package imageprocessor

import "gocv.io/x/gocv"

// ToGrayscale reduces a 3-channel BGR image to a single luma channel
func ToGrayscale(src gocv.Mat) (gocv.Mat, error) {
	if src.Channels() != 3 {
		return gocv.NewMat(), newChannelError("grayscale", 3, src.Channels())
	}

	gray := gocv.NewMat()
	gocv.CvtColor(src, &gray, gocv.ColorBGRToGray)
	return gray, nil
}
