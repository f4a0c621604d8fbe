// Package imageprocessor implements the image comparison building blocks:
// loading and resizing, grayscale conversion, SSIM scoring, difference
// region extraction and annotation.
package imageprocessor

import "gocv.io/x/gocv"

// ImageLoader is the interface that all format loaders must implement
type ImageLoader interface {
	// CanLoad checks if the loader can handle the given file
	CanLoad(path string) bool

	// LoadImage loads and returns the image as a 3-channel BGR Mat
	LoadImage(path string) (gocv.Mat, error)
}
