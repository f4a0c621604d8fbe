package database

import (
	"database/sql"
	"path/filepath"
	"testing"

	"cardcheck/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := InitDatabase(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestStoreAndGetComparison(t *testing.T) {
	db := openTestDB(t)

	record := types.ComparisonRecord{
		ID:             "first",
		CreatedAt:      "2026-01-02T03:04:05Z",
		OriginalSource: "static/original/image.jpg",
		UploadedSource: "static/uploads/first/image.jpg",
		OutputDir:      "static/generated/first",
		Score:          0.9731,
		Percentage:     97.31,
		Regions:        []types.Region{{X: 47, Y: 47, Width: 27, Height: 27}},
		Paths: types.OutputPaths{
			Original: "static/generated/first/image_original.jpg",
			Uploaded: "static/generated/first/image_uploaded.jpg",
			Diff:     "static/generated/first/image_diff.jpg",
			Thresh:   "static/generated/first/image_thresh.jpg",
		},
	}
	require.NoError(t, StoreComparison(db, record))

	got, err := GetComparison(db, "first")
	require.NoError(t, err)

	record.RegionCount = 1
	assert.Equal(t, record, *got)
}

func TestGetComparisonNotFound(t *testing.T) {
	db := openTestDB(t)

	_, err := GetComparison(db, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreComparisonRequiresID(t *testing.T) {
	db := openTestDB(t)
	assert.Error(t, StoreComparison(db, types.ComparisonRecord{}))
}

func TestListComparisonsNewestFirst(t *testing.T) {
	db := openTestDB(t)

	for _, r := range []types.ComparisonRecord{
		{ID: "a", CreatedAt: "2026-01-01T00:00:00Z", Percentage: 100},
		{ID: "b", CreatedAt: "2026-01-03T00:00:00Z", Percentage: 90, Regions: []types.Region{{X: 1, Y: 1, Width: 2, Height: 2}}},
		{ID: "c", CreatedAt: "2026-01-02T00:00:00Z", Percentage: 80},
	} {
		require.NoError(t, StoreComparison(db, r))
	}

	all, err := ListComparisons(db, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"b", "c", "a"}, []string{all[0].ID, all[1].ID, all[2].ID})
	assert.Empty(t, all[2].Regions)

	limited, err := ListComparisons(db, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	stats, err := GetComparisonStats(db)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalComparisons)
	assert.Equal(t, 1, stats.WithRegions)
	assert.InDelta(t, 90.0, stats.AveragePercentage, 1e-9)
}

func TestGetComparisonStatsEmpty(t *testing.T) {
	db := openTestDB(t)

	stats, err := GetComparisonStats(db)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalComparisons)
	assert.Equal(t, 0.0, stats.AveragePercentage)
}

func TestInitDatabaseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	db, err := InitDatabase(path)
	require.NoError(t, err)
	require.NoError(t, StoreComparison(db, types.ComparisonRecord{ID: "kept"}))
	require.NoError(t, db.Close())

	db, err = InitDatabase(path)
	require.NoError(t, err)
	defer db.Close()

	got, err := GetComparison(db, "kept")
	require.NoError(t, err)
	assert.Equal(t, "kept", got.ID)
	assert.NotEmpty(t, got.CreatedAt)
}
