package imageprocessor

import (
	"path/filepath"
	"strings"
	"sync"

	"cardcheck/logging"

	"gocv.io/x/gocv"
)

// ImageLoaderRegistry maintains a registry of image loaders
type ImageLoaderRegistry struct {
	loaders        map[string]ImageLoader
	defaultLoader  ImageLoader
	fallbackLoader ImageLoader
	mutex          sync.RWMutex
}

// NewImageLoaderRegistry creates a new image loader registry
func NewImageLoaderRegistry() *ImageLoaderRegistry {
	registry := &ImageLoaderRegistry{
		loaders: make(map[string]ImageLoader),
	}

	standardLoader := NewStandardImageLoader()
	goLoader := NewGoImageLoader()

	for _, ext := range []string{".jpg", ".jpeg", ".png", ".bmp", ".webp", ".tif", ".tiff"} {
		registry.RegisterLoader(ext, standardLoader)
	}
	registry.RegisterLoader(".gif", goLoader)

	registry.defaultLoader = standardLoader
	registry.fallbackLoader = goLoader

	return registry
}

// RegisterLoader registers a new loader for a specific file extension
func (r *ImageLoaderRegistry) RegisterLoader(ext string, loader ImageLoader) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	ext = strings.ToLower(ext)
	r.loaders[ext] = loader
}

// GetLoader returns the appropriate loader for the given path
func (r *ImageLoaderRegistry) GetLoader(path string) ImageLoader {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	ext := strings.ToLower(filepath.Ext(path))
	if loader, ok := r.loaders[ext]; ok {
		return loader
	}

	return r.defaultLoader
}

// CanLoadFile checks if any registered loader can handle the given file
func (r *ImageLoaderRegistry) CanLoadFile(path string) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	ext := strings.ToLower(filepath.Ext(path))
	_, ok := r.loaders[ext]
	return ok
}

// LoadImage loads an image using the registered loader, retrying once with
// the Go decoders when the primary loader fails. Files with an unknown
// extension are sniffed by content.
func (r *ImageLoaderRegistry) LoadImage(path string) (gocv.Mat, error) {
	loader := r.GetLoader(path)

	img, err := loader.LoadImage(path)
	if err == nil {
		return img, nil
	}

	if loader == r.fallbackLoader {
		return img, err
	}

	logging.DebugLog("Primary loader failed for %s, trying Go decoders: %v", path, err)
	img.Close()

	fallback, fallbackErr := r.fallbackLoader.LoadImage(path)
	if fallbackErr != nil {
		return fallback, err
	}
	return fallback, nil
}
