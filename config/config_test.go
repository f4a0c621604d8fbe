package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, int64(16777216), cfg.Server.MaxUploadBytes)
	assert.Equal(t, 250, cfg.Pipeline.CanonicalWidth)
	assert.Equal(t, 160, cfg.Pipeline.CanonicalHeight)
	assert.Equal(t, "image_original.jpg", cfg.Pipeline.OriginalFile)
	assert.Equal(t, "image_uploaded.jpg", cfg.Pipeline.UploadedFile)
	assert.Equal(t, "image_diff.jpg", cfg.Pipeline.DiffFile)
	assert.Equal(t, "image_thresh.jpg", cfg.Pipeline.ThreshFile)
	assert.Equal(t, "sample_data/image/original.png", cfg.Paths.ReferenceSource)
	assert.Equal(t, "comparisons.db", cfg.Database.Path)
	assert.False(t, cfg.Logging.Debug)
	assert.Equal(t, 7, cfg.Logging.MaxAgeDays)
	assert.NoError(t, cfg.Validate())
}

func TestLoadPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cardcheck.toml")
	content := `
[server]
addr = ":9090"

[pipeline]
canonical_width = 300
diff_file = "diff.png"

[logging]
debug = true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	t.Setenv("CARDCHECK_ADDR", ":7070")
	t.Setenv("CARDCHECK_CANONICAL_HEIGHT", "200")

	cfg, err := Load(path)
	require.NoError(t, err)

	// env beats file, file beats defaults
	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, 300, cfg.Pipeline.CanonicalWidth)
	assert.Equal(t, 200, cfg.Pipeline.CanonicalHeight)
	assert.Equal(t, "diff.png", cfg.Pipeline.DiffFile)
	assert.Equal(t, "image_thresh.jpg", cfg.Pipeline.ThreshFile)
	assert.True(t, cfg.Logging.Debug)

	pc := cfg.PipelineConfig()
	assert.Equal(t, 300, pc.CanonicalWidth)
	assert.Equal(t, 200, pc.CanonicalHeight)
	assert.Equal(t, "diff.png", pc.OutputFilenames.Diff)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		env     map[string]string
	}{
		{
			name:    "malformed toml",
			content: "[server\naddr = ",
		},
		{
			name:    "canonical size too small",
			content: "[pipeline]\ncanonical_width = 3\n",
		},
		{
			name:    "duplicate output names",
			content: "[pipeline]\ndiff_file = \"image_thresh.jpg\"\n",
		},
		{
			name:    "output name with directory",
			content: "[pipeline]\noriginal_file = \"../escape.jpg\"\n",
		},
		{
			name: "non numeric env override",
			env:  map[string]string{"CARDCHECK_CANONICAL_WIDTH": "wide"},
		},
		{
			name: "non boolean debug",
			env:  map[string]string{"CARDCHECK_DEBUG": "sometimes"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "cardcheck.toml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
