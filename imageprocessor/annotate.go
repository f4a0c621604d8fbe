package imageprocessor

import (
	"image"
	"image/color"

	"cardcheck/types"

	"gocv.io/x/gocv"
)

// Annotator draws region outlines on colour images
type Annotator struct {
	Color     color.RGBA
	Thickness int
}

// NewAnnotator returns an Annotator drawing 2px red rectangles
func NewAnnotator() *Annotator {
	return &Annotator{
		Color:     color.RGBA{R: 255, A: 255},
		Thickness: 2,
	}
}

// Annotate returns a copy of img with a rectangle for every region. The
// input is never modified; drawing outside the image is clipped.
func (a *Annotator) Annotate(img gocv.Mat, regions []types.Region) (gocv.Mat, error) {
	if img.Channels() != 3 {
		return gocv.NewMat(), newChannelError("annotate", 3, img.Channels())
	}

	marked := img.Clone()
	for _, region := range regions {
		rect := image.Rect(region.X, region.Y, region.X+region.Width, region.Y+region.Height)
		gocv.Rectangle(&marked, rect, a.Color, a.Thickness)
	}

	return marked, nil
}
