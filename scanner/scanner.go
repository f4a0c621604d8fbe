// Package scanner compares every image in a folder against one reference
// card, in parallel, and records each result.
package scanner

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"cardcheck/comparison"
	"cardcheck/database"
	"cardcheck/imageprocessor"
	"cardcheck/logging"
	"cardcheck/types"
)

// ScanAndCompareFolder compares each image under options.FolderPath with
// the reference. db may be nil. A failing image is counted, not fatal.
func ScanAndCompareFolder(db *sql.DB, pipeline *comparison.Pipeline, options ScanOptions) (*Summary, error) {
	if _, err := os.Stat(options.ReferencePath); err != nil {
		return nil, fmt.Errorf("reference image %s: %w", options.ReferencePath, err)
	}
	info, err := os.Stat(options.FolderPath)
	if err != nil {
		return nil, fmt.Errorf("cannot access folder path %s: %w", options.FolderPath, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", options.FolderPath)
	}

	files, err := collectImages(options)
	if err != nil {
		return nil, err
	}

	workers := options.MaxWorkers
	if workers <= 0 {
		workers = 4
	}

	logging.DebugLog("Starting batch comparison on folder: %s (%d images, %d workers)",
		options.FolderPath, len(files), workers)
	if !options.Quiet {
		fmt.Printf("Starting batch comparison...\nTotal image files to compare: %d\n", len(files))
	}

	// Initialize components for parallel processing
	var wg sync.WaitGroup
	resultsChan := make(chan CompareResult, 100)
	semaphore := make(chan struct{}, workers) // Limit concurrent goroutines

	tracker := NewProgressTracker(len(files), resultsChan, options.Quiet)

	startTime := time.Now()
	for _, path := range files {
		wg.Add(1)
		// Acquire semaphore
		semaphore <- struct{}{}

		go func(p string) {
			defer wg.Done()
			defer func() { <-semaphore }() // Release semaphore when done

			resultsChan <- compareAndStore(db, pipeline, p, options)
		}(path)
	}

	// Wait for all processing to complete
	wg.Wait()
	close(resultsChan)
	tracker.Stop()

	summary := &Summary{
		Processed: tracker.processed,
		Errors:    tracker.errors,
		Flagged:   tracker.flagged,
		Elapsed:   time.Since(startTime),
		Results:   tracker.results,
	}
	sort.Slice(summary.Results, func(i, j int) bool {
		return summary.Results[i].Path < summary.Results[j].Path
	})

	return summary, nil
}

// collectImages lists the image files to compare, skipping the reference
// itself and anything under the output root
func collectImages(options ScanOptions) ([]string, error) {
	refAbs, _ := filepath.Abs(options.ReferencePath)
	outAbs := ""
	if options.OutputRoot != "" {
		outAbs, _ = filepath.Abs(options.OutputRoot)
	}

	var files []string
	err := filepath.Walk(options.FolderPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			logging.LogError("Error accessing path %s: %v", path, err)
			return nil
		}

		abs, _ := filepath.Abs(path)
		if info.IsDir() {
			if outAbs != "" && abs == outAbs {
				return filepath.SkipDir
			}
			return nil
		}

		if abs == refAbs || !imageprocessor.IsImageFile(path) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error walking %s: %w", options.FolderPath, err)
	}

	sort.Strings(files)
	return files, nil
}

// compareAndStore compares a single image and stores the result
func compareAndStore(db *sql.DB, pipeline *comparison.Pipeline, path string, options ScanOptions) CompareResult {
	id := uuid.NewString()
	outputDir := filepath.Join(options.OutputRoot, id)

	result := CompareResult{
		Path:      path,
		ID:        id,
		OutputDir: outputDir,
	}

	startTime := time.Now()
	out, err := pipeline.Run(options.ReferencePath, path, outputDir)
	if err != nil {
		result.Error = fmt.Errorf("failed to compare %s: %w", path, err)
		return result
	}
	defer out.Close()

	result.Score = out.Score
	result.Percentage = out.Percentage
	result.Regions = len(out.Regions)

	if db != nil {
		record := types.ComparisonRecord{
			ID:             id,
			CreatedAt:      startTime.Format(time.RFC3339),
			OriginalSource: options.ReferencePath,
			UploadedSource: path,
			OutputDir:      outputDir,
			Score:          out.Score,
			Percentage:     out.Percentage,
			Regions:        out.Regions,
			Paths:          out.Paths,
		}
		if err := database.StoreComparison(db, record); err != nil {
			result.Error = fmt.Errorf("cannot store data for %s: %w", path, err)
			return result
		}
	}

	result.Success = true
	return result
}
