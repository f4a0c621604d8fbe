package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cardcheck/logging"
	"cardcheck/types"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a comparison ID is unknown
var ErrNotFound = errors.New("comparison not found")

// InitDatabase initializes and returns a database connection
func InitDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// Create table if it doesn't exist
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS comparisons (
		id TEXT PRIMARY KEY,
		created_at TEXT NOT NULL,
		original_source TEXT,
		uploaded_source TEXT,
		output_dir TEXT,
		score REAL,
		percentage REAL,
		region_count INTEGER,
		original_output TEXT,
		uploaded_output TEXT,
		diff_output TEXT,
		thresh_output TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_created_at ON comparisons(created_at);`

	_, err = db.Exec(createTableSQL)
	if err != nil {
		db.Close()
		return nil, err
	}

	// Check if regions column exists, add it if it doesn't
	var hasRegionsColumn bool
	err = db.QueryRow("SELECT COUNT(*) FROM pragma_table_info('comparisons') WHERE name='regions'").Scan(&hasRegionsColumn)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("error checking for regions column: %w", err)
	}

	if !hasRegionsColumn {
		_, err = db.Exec("ALTER TABLE comparisons ADD COLUMN regions TEXT;")
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("error adding regions column: %w", err)
		}
		logging.DebugLog("Added 'regions' column to comparisons schema")
	}

	return db, nil
}

// OpenDatabase opens an existing database connection
func OpenDatabase(dbPath string) (*sql.DB, error) {
	return sql.Open("sqlite3", dbPath)
}

// StoreComparison stores one comparison result
func StoreComparison(db *sql.DB, record types.ComparisonRecord) error {
	if record.ID == "" {
		return fmt.Errorf("comparison record has no id")
	}
	if record.CreatedAt == "" {
		record.CreatedAt = time.Now().Format(time.RFC3339)
	}

	regions := record.Regions
	if regions == nil {
		regions = []types.Region{}
	}
	regionsJSON, err := json.Marshal(regions)
	if err != nil {
		return fmt.Errorf("cannot encode regions for %s: %w", record.ID, err)
	}

	stmt, err := db.Prepare(`
		INSERT OR REPLACE INTO comparisons (
			id, created_at, original_source, uploaded_source, output_dir, score, percentage,
			region_count, original_output, uploaded_output, diff_output, thresh_output, regions
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("cannot prepare statement for %s: %w", record.ID, err)
	}
	defer stmt.Close()

	_, err = stmt.Exec(
		record.ID,
		record.CreatedAt,
		record.OriginalSource,
		record.UploadedSource,
		record.OutputDir,
		record.Score,
		record.Percentage,
		len(regions),
		record.Paths.Original,
		record.Paths.Uploaded,
		record.Paths.Diff,
		record.Paths.Thresh,
		string(regionsJSON),
	)
	if err != nil {
		return fmt.Errorf("cannot insert comparison %s: %w", record.ID, err)
	}

	return nil
}

const selectColumns = `SELECT id, created_at, original_source, uploaded_source, output_dir, score, percentage,
	region_count, original_output, uploaded_output, diff_output, thresh_output, regions FROM comparisons`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (types.ComparisonRecord, error) {
	var record types.ComparisonRecord
	var regionsJSON sql.NullString

	err := row.Scan(
		&record.ID,
		&record.CreatedAt,
		&record.OriginalSource,
		&record.UploadedSource,
		&record.OutputDir,
		&record.Score,
		&record.Percentage,
		&record.RegionCount,
		&record.Paths.Original,
		&record.Paths.Uploaded,
		&record.Paths.Diff,
		&record.Paths.Thresh,
		&regionsJSON,
	)
	if err != nil {
		return record, err
	}

	record.Regions = []types.Region{}
	if regionsJSON.Valid && regionsJSON.String != "" {
		if err := json.Unmarshal([]byte(regionsJSON.String), &record.Regions); err != nil {
			return record, fmt.Errorf("cannot decode regions for %s: %w", record.ID, err)
		}
	}

	return record, nil
}

// GetComparison retrieves a comparison by ID
func GetComparison(db *sql.DB, id string) (*types.ComparisonRecord, error) {
	record, err := scanRecord(db.QueryRow(selectColumns+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("database error for %s: %w", id, err)
	}
	return &record, nil
}

// ListComparisons returns the most recent comparisons, newest first.
// A non-positive limit returns all of them.
func ListComparisons(db *sql.DB, limit int) ([]types.ComparisonRecord, error) {
	query := selectColumns + " ORDER BY created_at DESC, rowid DESC"
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("database query error: %w", err)
	}
	defer rows.Close()

	records := []types.ComparisonRecord{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

// ComparisonStats summarizes the stored comparisons
type ComparisonStats struct {
	TotalComparisons  int     `json:"total_comparisons"`
	WithRegions       int     `json:"with_regions"`
	AveragePercentage float64 `json:"average_percentage"`
}

// GetComparisonStats retrieves statistics about stored comparisons
func GetComparisonStats(db *sql.DB) (*ComparisonStats, error) {
	var stats ComparisonStats
	var avg sql.NullFloat64

	err := db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(CASE WHEN region_count > 0 THEN 1 ELSE 0 END), 0), AVG(percentage)
		FROM comparisons`).Scan(&stats.TotalComparisons, &stats.WithRegions, &avg)
	if err != nil {
		return nil, fmt.Errorf("failed to get comparison stats: %w", err)
	}

	if avg.Valid {
		stats.AveragePercentage = avg.Float64
	}

	return &stats, nil
}
