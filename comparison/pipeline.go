// Package comparison runs the full reference-versus-upload comparison:
// load, resize, grayscale, score, threshold, extract, annotate, persist.
package comparison

import (
	"fmt"
	"math"
	"os"

	"cardcheck/imageprocessor"
	"cardcheck/logging"
	"cardcheck/types"

	"gocv.io/x/gocv"
)

// ImageLoader decodes, resizes and writes images
type ImageLoader interface {
	LoadImage(path string) (gocv.Mat, error)
	DecodeImage(data []byte) (gocv.Mat, error)
	Resize(src gocv.Mat, width, height int) (gocv.Mat, error)
	SaveImage(path string, img gocv.Mat) error
}

// SimilarityScorer compares two single-channel images of equal size
type SimilarityScorer interface {
	Compare(a, b gocv.Mat) (*imageprocessor.SimilarityResult, error)
}

// RegionExtractor turns a scaled similarity map into difference regions
type RegionExtractor interface {
	Threshold(diff gocv.Mat) (gocv.Mat, error)
	ExtractRegions(mask gocv.Mat) ([]types.Region, error)
}

// Annotator marks regions on a colour image copy
type Annotator interface {
	Annotate(img gocv.Mat, regions []types.Region) (gocv.Mat, error)
}

// Pipeline orchestrates one comparison. It holds no per-call state and
// may be shared by concurrent callers that use distinct output directories.
type Pipeline struct {
	cfg       Config
	loader    ImageLoader
	scorer    SimilarityScorer
	extractor RegionExtractor
	annotator Annotator
}

// NewPipeline creates a Pipeline from its collaborators
func NewPipeline(cfg Config, loader ImageLoader, scorer SimilarityScorer, extractor RegionExtractor, annotator Annotator) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if loader == nil || scorer == nil || extractor == nil || annotator == nil {
		return nil, fmt.Errorf("pipeline collaborators must not be nil")
	}

	return &Pipeline{
		cfg:       cfg,
		loader:    loader,
		scorer:    scorer,
		extractor: extractor,
		annotator: annotator,
	}, nil
}

// NewDefaultPipeline wires the OpenCV-backed components
func NewDefaultPipeline(cfg Config) (*Pipeline, error) {
	return NewPipeline(cfg,
		imageprocessor.NewLoader(),
		imageprocessor.NewSSIMScorer(),
		imageprocessor.NewRegionExtractor(),
		imageprocessor.NewAnnotator(),
	)
}

// Config returns the pipeline settings
func (p *Pipeline) Config() Config {
	return p.cfg
}

// Run compares the images at originalPath and uploadedPath and writes the
// four output images into outputDir.
func (p *Pipeline) Run(originalPath, uploadedPath, outputDir string) (*ComparisonOutput, error) {
	logging.DebugLog("Comparing %s against %s", uploadedPath, originalPath)

	original, err := p.loader.LoadImage(originalPath)
	if err != nil {
		return nil, &StepError{Step: StepLoadOriginal, Err: err}
	}
	defer original.Close()

	uploaded, err := p.loader.LoadImage(uploadedPath)
	if err != nil {
		return nil, &StepError{Step: StepLoadUploaded, Err: err}
	}
	defer uploaded.Close()

	return p.compare(original, uploaded, outputDir)
}

// RunBytes is Run for in-memory sources
func (p *Pipeline) RunBytes(original, uploaded []byte, outputDir string) (*ComparisonOutput, error) {
	originalImg, err := p.loader.DecodeImage(original)
	if err != nil {
		return nil, &StepError{Step: StepLoadOriginal, Err: err}
	}
	defer originalImg.Close()

	uploadedImg, err := p.loader.DecodeImage(uploaded)
	if err != nil {
		return nil, &StepError{Step: StepLoadUploaded, Err: err}
	}
	defer uploadedImg.Close()

	return p.compare(originalImg, uploadedImg, outputDir)
}

func (p *Pipeline) compare(original, uploaded gocv.Mat, outputDir string) (*ComparisonOutput, error) {
	w, h := p.cfg.CanonicalWidth, p.cfg.CanonicalHeight

	// Every Mat created by this call. On success the four output images
	// move to the caller and the rest are closed.
	var owned []*gocv.Mat
	keep := func(m gocv.Mat) *gocv.Mat {
		owned = append(owned, &m)
		return &m
	}
	release := func() {
		for _, m := range owned {
			m.Close()
		}
	}

	fail := func(step Step, err error) (*ComparisonOutput, error) {
		release()
		return nil, &StepError{Step: step, Err: err}
	}

	originalResized, err := p.loader.Resize(original, w, h)
	if err != nil {
		return fail(StepResize, err)
	}
	origColor := keep(originalResized)

	uploadedResized, err := p.loader.Resize(uploaded, w, h)
	if err != nil {
		return fail(StepResize, err)
	}
	upColor := keep(uploadedResized)

	originalGray, err := imageprocessor.ToGrayscale(*origColor)
	if err != nil {
		return fail(StepGrayscale, err)
	}
	origGray := keep(originalGray)

	uploadedGray, err := imageprocessor.ToGrayscale(*upColor)
	if err != nil {
		return fail(StepGrayscale, err)
	}
	upGray := keep(uploadedGray)

	similarity, err := p.scorer.Compare(*origGray, *upGray)
	if err != nil {
		return fail(StepScore, err)
	}
	keep(similarity.DiffMap)

	scaled, err := imageprocessor.ScaleDiffMap(similarity.DiffMap)
	if err != nil {
		return fail(StepScale, err)
	}
	diff := keep(scaled)

	threshMask, err := p.extractor.Threshold(*diff)
	if err != nil {
		return fail(StepThreshold, err)
	}
	thresh := keep(threshMask)

	regions, err := p.extractor.ExtractRegions(*thresh)
	if err != nil {
		return fail(StepExtract, err)
	}

	markedOriginal, err := p.annotator.Annotate(*origColor, regions)
	if err != nil {
		return fail(StepAnnotate, err)
	}
	annotatedOriginal := keep(markedOriginal)

	markedUploaded, err := p.annotator.Annotate(*upColor, regions)
	if err != nil {
		return fail(StepAnnotate, err)
	}
	annotatedUploaded := keep(markedUploaded)

	paths := p.cfg.OutputFilenames.In(outputDir)
	if err := p.persist(outputDir, paths, *annotatedOriginal, *annotatedUploaded, *diff, *thresh); err != nil {
		return fail(StepPersist, err)
	}

	output := &ComparisonOutput{
		Score:             similarity.Score,
		Percentage:        RoundPercentage(similarity.Score),
		Regions:           regions,
		AnnotatedOriginal: *annotatedOriginal,
		AnnotatedUploaded: *annotatedUploaded,
		DiffImage:         *diff,
		ThreshImage:       *thresh,
		Paths:             paths,
	}

	// Hand the four images to the caller, release the rest
	for _, m := range owned {
		if m == annotatedOriginal || m == annotatedUploaded || m == diff || m == thresh {
			continue
		}
		m.Close()
	}

	logging.DebugLog("Comparison done: score=%.4f regions=%d output=%s", output.Score, len(regions), outputDir)
	return output, nil
}

// persist writes the four images, removing any already written on failure
func (p *Pipeline) persist(outputDir string, paths types.OutputPaths, original, uploaded, diff, thresh gocv.Mat) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return &imageprocessor.ImageError{Kind: imageprocessor.ErrIO, Op: "persist", Path: outputDir, Cause: err}
	}

	images := []struct {
		path string
		img  gocv.Mat
	}{
		{paths.Original, original},
		{paths.Uploaded, uploaded},
		{paths.Diff, diff},
		{paths.Thresh, thresh},
	}

	var written []string
	for _, item := range images {
		if err := p.loader.SaveImage(item.path, item.img); err != nil {
			for _, path := range written {
				if removeErr := os.Remove(path); removeErr != nil {
					logging.LogWarning("Failed to remove partial output %s: %v", path, removeErr)
				}
			}
			return err
		}
		written = append(written, item.path)
	}

	return nil
}

// RoundPercentage converts a score to a percentage rounded to 2 decimals
func RoundPercentage(score float64) float64 {
	return math.Round(score*100*100) / 100
}
