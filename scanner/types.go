package scanner

import (
	"sync"
	"time"
)

// ScanOptions defines the options for a batch comparison
type ScanOptions struct {
	FolderPath    string
	ReferencePath string
	// OutputRoot receives one <id>/ directory per compared image
	OutputRoot string
	MaxWorkers int // Optional worker limit
	// Quiet suppresses the progress line on stdout
	Quiet bool
}

// CompareResult holds the result of comparing one image
type CompareResult struct {
	Path       string
	ID         string
	Score      float64
	Percentage float64
	Regions    int
	OutputDir  string
	Success    bool
	Error      error
}

// Summary aggregates a finished batch
type Summary struct {
	Processed int
	Errors    int
	// Flagged counts images with at least one difference region
	Flagged int
	Elapsed time.Duration
	Results []CompareResult
}

// ProgressTracker tracks progress of the batch
type ProgressTracker struct {
	processed  int
	errors     int
	flagged    int
	results    []CompareResult
	ticker     *time.Ticker
	done       chan bool
	finished   chan struct{}
	mu         sync.Mutex
	totalFiles int
}
