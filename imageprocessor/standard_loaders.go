package imageprocessor

import (
	"gocv.io/x/gocv"
)

// StandardImageLoader handles the formats OpenCV decodes natively
type StandardImageLoader struct {
	BaseImageLoader
}

// NewStandardImageLoader creates a new loader for standard image formats
func NewStandardImageLoader() *StandardImageLoader {
	return &StandardImageLoader{
		BaseImageLoader: BaseImageLoader{
			SupportedFormats: []FormatType{
				FormatJPEG,
				FormatPNG,
				FormatBMP,
				FormatWEBP,
				FormatTIFF,
			},
		},
	}
}

// LoadImage loads a standard image format
func (l *StandardImageLoader) LoadImage(path string) (gocv.Mat, error) {
	return l.DefaultLoadImage(path)
}

// GoImageLoader decodes with Go's image packages and converts to a Mat.
// It covers GIF, which OpenCV does not read, and serves as the fallback
// when an OpenCV build lacks a codec.
type GoImageLoader struct {
	BaseImageLoader
}

// NewGoImageLoader creates a loader backed by the registered Go decoders
func NewGoImageLoader() *GoImageLoader {
	return &GoImageLoader{
		BaseImageLoader: BaseImageLoader{
			SupportedFormats: []FormatType{
				FormatGIF,
				FormatJPEG,
				FormatPNG,
				FormatBMP,
				FormatWEBP,
				FormatTIFF,
			},
		},
	}
}

// LoadImage decodes the file with image.Decode
func (l *GoImageLoader) LoadImage(path string) (gocv.Mat, error) {
	img, err := tryGoImagePackages(path)
	if err != nil {
		return gocv.NewMat(), newDecodeError("load", path, "go image decoder failed", err)
	}
	return gocvMatFromGoImage(img)
}
