package comparison

import (
	"fmt"
	"path/filepath"

	"cardcheck/types"

	"gocv.io/x/gocv"
)

// OutputFilenames are the fixed names of the four persisted images
type OutputFilenames struct {
	Original string
	Uploaded string
	Diff     string
	Thresh   string
}

// DefaultOutputFilenames returns the well-known output names
func DefaultOutputFilenames() OutputFilenames {
	return OutputFilenames{
		Original: "image_original.jpg",
		Uploaded: "image_uploaded.jpg",
		Diff:     "image_diff.jpg",
		Thresh:   "image_thresh.jpg",
	}
}

// In resolves the names inside dir
func (f OutputFilenames) In(dir string) types.OutputPaths {
	return types.OutputPaths{
		Original: filepath.Join(dir, f.Original),
		Uploaded: filepath.Join(dir, f.Uploaded),
		Diff:     filepath.Join(dir, f.Diff),
		Thresh:   filepath.Join(dir, f.Thresh),
	}
}

// Config is the immutable pipeline configuration
type Config struct {
	CanonicalWidth  int
	CanonicalHeight int
	OutputFilenames OutputFilenames
}

// DefaultConfig returns the 250x160 canonical size with the default names
func DefaultConfig() Config {
	return Config{
		CanonicalWidth:  250,
		CanonicalHeight: 160,
		OutputFilenames: DefaultOutputFilenames(),
	}
}

// Validate checks the canonical size and output names
func (c Config) Validate() error {
	if c.CanonicalWidth <= 0 || c.CanonicalHeight <= 0 {
		return fmt.Errorf("canonical size must be positive, got %dx%d", c.CanonicalWidth, c.CanonicalHeight)
	}
	names := []string{c.OutputFilenames.Original, c.OutputFilenames.Uploaded, c.OutputFilenames.Diff, c.OutputFilenames.Thresh}
	for _, name := range names {
		if name == "" {
			return fmt.Errorf("output file names must not be empty")
		}
	}
	return nil
}

// ComparisonOutput is the result of one pipeline run. The caller owns the
// four images and must Close the output.
type ComparisonOutput struct {
	Score      float64
	Percentage float64
	Regions    []types.Region

	AnnotatedOriginal gocv.Mat
	AnnotatedUploaded gocv.Mat
	DiffImage         gocv.Mat
	ThreshImage       gocv.Mat

	Paths types.OutputPaths
}

// Close releases the output images
func (o *ComparisonOutput) Close() {
	o.AnnotatedOriginal.Close()
	o.AnnotatedUploaded.Close()
	o.DiffImage.Close()
	o.ThreshImage.Close()
}

// Step names a pipeline stage
type Step string

// Pipeline stages in execution order
const (
	StepLoadOriginal Step = "load original"
	StepLoadUploaded Step = "load uploaded"
	StepResize       Step = "resize"
	StepGrayscale    Step = "grayscale"
	StepScore        Step = "score"
	StepScale        Step = "scale"
	StepThreshold    Step = "threshold"
	StepExtract      Step = "extract regions"
	StepAnnotate     Step = "annotate"
	StepPersist      Step = "persist"
)

// StepError reports which stage of a comparison failed
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("comparison failed at %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
