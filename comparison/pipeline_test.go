package comparison

import (
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"cardcheck/imageprocessor"
	"cardcheck/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

// writeCard writes a 250x160 card of the given gray level, optionally with
// a filled black square, and returns its path.
func writeCard(t *testing.T, dir, name string, level float64, square *image.Rectangle) string {
	t.Helper()

	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(level, level, level, 0), 160, 250, gocv.MatTypeCV8UC3)
	defer img.Close()
	if square != nil {
		gocv.Rectangle(&img, *square, color.RGBA{A: 255}, -1)
	}

	path := filepath.Join(dir, name)
	require.True(t, gocv.IMWrite(path, img))
	return path
}

func assertNoOutputs(t *testing.T, paths types.OutputPaths) {
	t.Helper()
	for _, p := range paths.All() {
		assert.NoFileExists(t, p)
	}
}

func TestRunDetectsTamperedSquare(t *testing.T) {
	dir := t.TempDir()
	square := image.Rect(50, 50, 70, 70)
	original := writeCard(t, dir, "original.png", 255, nil)
	uploaded := writeCard(t, dir, "uploaded.png", 255, &square)

	p, err := NewDefaultPipeline(DefaultConfig())
	require.NoError(t, err)

	outDir := filepath.Join(dir, "out")
	out, err := p.Run(original, uploaded, outDir)
	require.NoError(t, err)
	defer out.Close()

	assert.Less(t, out.Percentage, 100.0)
	assert.Greater(t, out.Percentage, 0.0)
	require.NotEmpty(t, out.Regions)

	found := false
	for _, r := range out.Regions {
		if r.Contains(55, 55) {
			found = true
		}
		assert.GreaterOrEqual(t, r.X, 0)
		assert.GreaterOrEqual(t, r.Y, 0)
		assert.LessOrEqual(t, r.X+r.Width, 250)
		assert.LessOrEqual(t, r.Y+r.Height, 160)
	}
	assert.True(t, found, "no region covers the altered square: %v", out.Regions)

	for _, path := range out.Paths.All() {
		assert.FileExists(t, path)
	}
	assert.Equal(t, filepath.Join(outDir, "image_diff.jpg"), out.Paths.Diff)

	assert.Equal(t, 250, out.DiffImage.Cols())
	assert.Equal(t, 160, out.DiffImage.Rows())
	assert.Equal(t, 1, out.ThreshImage.Channels())
	assert.Equal(t, 3, out.AnnotatedUploaded.Channels())
}

func TestRunIdenticalImages(t *testing.T) {
	dir := t.TempDir()
	original := writeCard(t, dir, "original.png", 128, nil)
	uploaded := writeCard(t, dir, "uploaded.png", 128, nil)

	p, err := NewDefaultPipeline(DefaultConfig())
	require.NoError(t, err)

	out, err := p.Run(original, uploaded, filepath.Join(dir, "out"))
	require.NoError(t, err)
	defer out.Close()

	assert.Equal(t, 100.0, out.Percentage)
	assert.InDelta(t, 1.0, out.Score, 1e-9)
	assert.Empty(t, out.Regions)
	assert.Equal(t, 0, gocv.CountNonZero(out.ThreshImage))

	// no regions, so the annotated copies equal the resized inputs
	expected := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(128, 128, 128, 0), 160, 250, gocv.MatTypeCV8UC3)
	defer expected.Close()
	assert.Equal(t, expected.ToBytes(), out.AnnotatedOriginal.ToBytes())
	assert.Equal(t, expected.ToBytes(), out.AnnotatedUploaded.ToBytes())
}

func TestRunBytesResizesMismatchedSources(t *testing.T) {
	dir := t.TempDir()

	small := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(200, 200, 200, 0), 80, 120, gocv.MatTypeCV8UC3)
	defer small.Close()
	smallPath := filepath.Join(dir, "small.png")
	require.True(t, gocv.IMWrite(smallPath, small))

	original, err := os.ReadFile(writeCard(t, dir, "original.png", 200, nil))
	require.NoError(t, err)
	uploaded, err := os.ReadFile(smallPath)
	require.NoError(t, err)

	p, err := NewDefaultPipeline(DefaultConfig())
	require.NoError(t, err)

	out, err := p.RunBytes(original, uploaded, filepath.Join(dir, "out"))
	require.NoError(t, err)
	defer out.Close()

	assert.Equal(t, 100.0, out.Percentage)
	assert.Equal(t, 250, out.AnnotatedUploaded.Cols())
	assert.Equal(t, 160, out.AnnotatedUploaded.Rows())
}

func TestRunMissingOriginal(t *testing.T) {
	dir := t.TempDir()
	uploaded := writeCard(t, dir, "uploaded.png", 255, nil)

	p, err := NewDefaultPipeline(DefaultConfig())
	require.NoError(t, err)

	outDir := filepath.Join(dir, "out")
	_, err = p.Run(filepath.Join(dir, "missing.png"), uploaded, outDir)
	require.Error(t, err)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StepLoadOriginal, stepErr.Step)
	assert.ErrorIs(t, err, imageprocessor.ErrDecode)
	assertNoOutputs(t, DefaultOutputFilenames().In(outDir))
}

func TestRunBytesCorruptUpload(t *testing.T) {
	dir := t.TempDir()
	original, err := os.ReadFile(writeCard(t, dir, "original.png", 255, nil))
	require.NoError(t, err)

	p, err := NewDefaultPipeline(DefaultConfig())
	require.NoError(t, err)

	_, err = p.RunBytes(original, []byte("not an image"), filepath.Join(dir, "out"))
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StepLoadUploaded, stepErr.Step)
	assert.ErrorIs(t, err, imageprocessor.ErrDecode)
}

type failingAnnotator struct{}

func (failingAnnotator) Annotate(gocv.Mat, []types.Region) (gocv.Mat, error) {
	return gocv.NewMat(), errors.New("annotate broke")
}

// flakyLoader fails the n-th SaveImage call
type flakyLoader struct {
	*imageprocessor.Loader
	failOn int
	calls  int
}

func (l *flakyLoader) SaveImage(path string, img gocv.Mat) error {
	l.calls++
	if l.calls == l.failOn {
		return errors.New("disk full")
	}
	return l.Loader.SaveImage(path, img)
}

func TestRunAnnotateFailureWritesNothing(t *testing.T) {
	dir := t.TempDir()
	square := image.Rect(50, 50, 70, 70)
	original := writeCard(t, dir, "original.png", 255, nil)
	uploaded := writeCard(t, dir, "uploaded.png", 255, &square)

	p, err := NewPipeline(DefaultConfig(),
		imageprocessor.NewLoader(),
		imageprocessor.NewSSIMScorer(),
		imageprocessor.NewRegionExtractor(),
		failingAnnotator{},
	)
	require.NoError(t, err)

	outDir := filepath.Join(dir, "out")
	_, err = p.Run(original, uploaded, outDir)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StepAnnotate, stepErr.Step)
	assertNoOutputs(t, DefaultOutputFilenames().In(outDir))
}

func TestRunPersistFailureRemovesPartialOutputs(t *testing.T) {
	dir := t.TempDir()
	original := writeCard(t, dir, "original.png", 255, nil)
	uploaded := writeCard(t, dir, "uploaded.png", 250, nil)

	loader := &flakyLoader{Loader: imageprocessor.NewLoader(), failOn: 3}
	p, err := NewPipeline(DefaultConfig(), loader,
		imageprocessor.NewSSIMScorer(),
		imageprocessor.NewRegionExtractor(),
		imageprocessor.NewAnnotator(),
	)
	require.NoError(t, err)

	outDir := filepath.Join(dir, "out")
	_, err = p.Run(original, uploaded, outDir)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StepPersist, stepErr.Step)
	assert.Equal(t, 3, loader.calls)
	assertNoOutputs(t, DefaultOutputFilenames().In(outDir))
}

func TestNewPipelineValidation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CanonicalWidth = 0
	_, err := NewDefaultPipeline(cfg)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.OutputFilenames.Thresh = ""
	_, err = NewDefaultPipeline(cfg)
	assert.Error(t, err)

	_, err = NewPipeline(DefaultConfig(), nil, imageprocessor.NewSSIMScorer(), imageprocessor.NewRegionExtractor(), imageprocessor.NewAnnotator())
	assert.Error(t, err)
}

func TestRoundPercentage(t *testing.T) {
	tests := []struct {
		score float64
		want  float64
	}{
		{1, 100},
		{0, 0},
		{0.97314, 97.31},
		{0.123456, 12.35},
		{-0.25, -25},
	}

	for _, tt := range tests {
		assert.InDelta(t, tt.want, RoundPercentage(tt.score), 1e-9)
	}
}

func TestStepErrorMessage(t *testing.T) {
	err := &StepError{Step: StepResize, Err: errors.New("boom")}
	assert.Equal(t, "comparison failed at resize: boom", err.Error())
	assert.EqualError(t, errors.Unwrap(err), "boom")
}
