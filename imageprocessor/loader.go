package imageprocessor

import (
	"errors"
	"image"
	"os"

	"cardcheck/logging"

	"gocv.io/x/gocv"
)

// Loader decodes, resizes and persists images
type Loader struct {
	registry      *ImageLoaderRegistry
	Interpolation gocv.InterpolationFlags
}

// NewLoader creates a Loader with the default format registry and bilinear resampling
func NewLoader() *Loader {
	return &Loader{
		registry:      NewImageLoaderRegistry(),
		Interpolation: gocv.InterpolationLinear,
	}
}

// LoadImage decodes the image at path into a 3-channel BGR Mat
func (l *Loader) LoadImage(path string) (gocv.Mat, error) {
	info, err := os.Stat(path)
	if err != nil {
		return gocv.NewMat(), newDecodeError("load", path, "cannot access image", err)
	}
	if info.IsDir() {
		return gocv.NewMat(), newDecodeError("load", path, "path is a directory", nil)
	}

	return l.registry.LoadImage(path)
}

// DecodeImage decodes an in-memory image into a 3-channel BGR Mat
func (l *Loader) DecodeImage(data []byte) (gocv.Mat, error) {
	if len(data) == 0 {
		return gocv.NewMat(), newDecodeError("decode", "", "empty image buffer", nil)
	}

	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err == nil {
		if !mat.Empty() {
			return mat, nil
		}
		mat.Close()
	}

	img, decodeErr := decodeGoImageBytes(data)
	if decodeErr != nil {
		return gocv.NewMat(), newDecodeError("decode", "", "unsupported or corrupt image data", decodeErr)
	}
	return gocvMatFromGoImage(img)
}

// Resize returns a new Mat of exactly width x height. Aspect ratio is not
// preserved. Resizing to the current size yields a pixel-identical copy.
func (l *Loader) Resize(src gocv.Mat, width, height int) (gocv.Mat, error) {
	if src.Empty() {
		return gocv.NewMat(), newDimensionError("resize", "source image is empty")
	}
	if width <= 0 || height <= 0 {
		return gocv.NewMat(), newDimensionError("resize", "target size must be positive")
	}

	dst := gocv.NewMat()
	gocv.Resize(src, &dst, image.Pt(width, height), 0, 0, l.Interpolation)
	return dst, nil
}

// SaveImage encodes img to path; the format follows the extension
func (l *Loader) SaveImage(path string, img gocv.Mat) error {
	if img.Empty() {
		return newIOError("save", path, errors.New("image is empty"))
	}
	if !IsWritableFormat(path) {
		return newIOError("save", path, errors.New("unsupported output format"))
	}
	if ok := gocv.IMWrite(path, img); !ok {
		return newIOError("save", path, errors.New("opencv failed to write image"))
	}

	logging.DebugLog("Saved image %s (%dx%d)", path, img.Cols(), img.Rows())
	return nil
}

// ResizeAndSave loads sourcePath, resizes it and writes it to outputPath.
// The resized Mat is returned and owned by the caller.
func (l *Loader) ResizeAndSave(sourcePath, outputPath string, width, height int) (gocv.Mat, error) {
	img, err := l.LoadImage(sourcePath)
	if err != nil {
		return img, err
	}
	defer img.Close()

	return l.resizeAndSave(img, outputPath, width, height)
}

// ResizeBytesAndSave is ResizeAndSave for an in-memory source such as an upload
func (l *Loader) ResizeBytesAndSave(data []byte, outputPath string, width, height int) (gocv.Mat, error) {
	img, err := l.DecodeImage(data)
	if err != nil {
		return img, err
	}
	defer img.Close()

	return l.resizeAndSave(img, outputPath, width, height)
}

func (l *Loader) resizeAndSave(img gocv.Mat, outputPath string, width, height int) (gocv.Mat, error) {
	resized, err := l.Resize(img, width, height)
	if err != nil {
		return resized, err
	}

	if err := l.SaveImage(outputPath, resized); err != nil {
		resized.Close()
		return gocv.NewMat(), err
	}
	return resized, nil
}
