package scanner

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"cardcheck/comparison"
	"cardcheck/database"
)

func writeCard(t *testing.T, path string, square *image.Rectangle) {
	t.Helper()
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), 160, 250, gocv.MatTypeCV8UC3)
	defer img.Close()
	if square != nil {
		gocv.Rectangle(&img, *square, color.RGBA{A: 255}, -1)
	}
	require.True(t, gocv.IMWrite(path, img))
}

func TestScanAndCompareFolder(t *testing.T) {
	root := t.TempDir()
	folder := filepath.Join(root, "uploads")
	require.NoError(t, os.MkdirAll(filepath.Join(folder, "nested"), 0o755))

	reference := filepath.Join(folder, "reference.png")
	writeCard(t, reference, nil)
	writeCard(t, filepath.Join(folder, "same.png"), nil)
	square := image.Rect(50, 50, 70, 70)
	writeCard(t, filepath.Join(folder, "nested", "tampered.png"), &square)
	require.NoError(t, os.WriteFile(filepath.Join(folder, "broken.jpg"), []byte("garbage"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(folder, "notes.txt"), []byte("ignored"), 0o644))

	db, err := database.InitDatabase(filepath.Join(root, "history.db"))
	require.NoError(t, err)
	defer db.Close()

	pipeline, err := comparison.NewDefaultPipeline(comparison.DefaultConfig())
	require.NoError(t, err)

	summary, err := ScanAndCompareFolder(db, pipeline, ScanOptions{
		FolderPath:    folder,
		ReferencePath: reference,
		OutputRoot:    filepath.Join(root, "generated"),
		MaxWorkers:    2,
		Quiet:         true,
	})
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Processed)
	assert.Equal(t, 1, summary.Errors)
	assert.Equal(t, 1, summary.Flagged)
	require.Len(t, summary.Results, 3)

	byName := map[string]CompareResult{}
	for _, r := range summary.Results {
		byName[filepath.Base(r.Path)] = r
	}

	assert.False(t, byName["broken.jpg"].Success)
	assert.Error(t, byName["broken.jpg"].Error)

	assert.True(t, byName["same.png"].Success)
	assert.Equal(t, 100.0, byName["same.png"].Percentage)
	assert.Equal(t, 0, byName["same.png"].Regions)

	tampered := byName["tampered.png"]
	assert.True(t, tampered.Success)
	assert.Less(t, tampered.Percentage, 100.0)
	assert.Greater(t, tampered.Regions, 0)
	assert.FileExists(t, filepath.Join(tampered.OutputDir, "image_thresh.jpg"))

	records, err := database.ListComparisons(db, 0)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestScanAndCompareFolderErrors(t *testing.T) {
	root := t.TempDir()
	reference := filepath.Join(root, "reference.png")
	writeCard(t, reference, nil)

	pipeline, err := comparison.NewDefaultPipeline(comparison.DefaultConfig())
	require.NoError(t, err)

	_, err = ScanAndCompareFolder(nil, pipeline, ScanOptions{FolderPath: filepath.Join(root, "nope"), ReferencePath: reference, Quiet: true})
	assert.Error(t, err)

	_, err = ScanAndCompareFolder(nil, pipeline, ScanOptions{FolderPath: reference, ReferencePath: reference, Quiet: true})
	assert.Error(t, err)

	_, err = ScanAndCompareFolder(nil, pipeline, ScanOptions{FolderPath: root, ReferencePath: filepath.Join(root, "missing.png"), Quiet: true})
	assert.Error(t, err)
}

func TestScanEmptyFolder(t *testing.T) {
	root := t.TempDir()
	reference := filepath.Join(root, "reference.png")
	writeCard(t, reference, nil)

	pipeline, err := comparison.NewDefaultPipeline(comparison.DefaultConfig())
	require.NoError(t, err)

	summary, err := ScanAndCompareFolder(nil, pipeline, ScanOptions{
		FolderPath:    root,
		ReferencePath: reference,
		OutputRoot:    filepath.Join(root, "generated"),
		Quiet:         true,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Processed)
	assert.Empty(t, summary.Results)
}
