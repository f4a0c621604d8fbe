package scanner

import (
	"fmt"
	"time"

	"cardcheck/logging"
)

// NewProgressTracker initializes the progress tracker
func NewProgressTracker(totalFiles int, resultsChan chan CompareResult, quiet bool) *ProgressTracker {
	tracker := &ProgressTracker{
		ticker:     time.NewTicker(500 * time.Millisecond),
		done:       make(chan bool),
		finished:   make(chan struct{}),
		totalFiles: totalFiles,
	}

	// Start progress display goroutine
	if quiet {
		tracker.ticker.Stop()
	} else {
		go tracker.displayProgress()
	}

	// Start result processor goroutine
	go tracker.processResults(resultsChan)

	return tracker
}

// displayProgress shows the progress periodically
func (p *ProgressTracker) displayProgress() {
	for {
		select {
		case <-p.done:
			return
		case <-p.ticker.C:
			p.mu.Lock()
			if p.errors > 0 {
				fmt.Printf("\rProgress: %d/%d (Flagged: %d, Errors: %d)", p.processed, p.totalFiles, p.flagged, p.errors)
			} else {
				fmt.Printf("\rProgress: %d/%d (Flagged: %d)", p.processed, p.totalFiles, p.flagged)
			}
			p.mu.Unlock()
		}
	}
}

// processResults updates the tracker state until resultsChan is closed
func (p *ProgressTracker) processResults(resultsChan chan CompareResult) {
	defer close(p.finished)

	for result := range resultsChan {
		p.mu.Lock()
		p.processed++
		p.results = append(p.results, result)

		if !result.Success {
			p.errors++
			errMsg := "unknown error"
			if result.Error != nil {
				errMsg = result.Error.Error()
			}
			logging.LogComparison(result.Path, 0, 0, errMsg)
		} else {
			if result.Regions > 0 {
				p.flagged++
			}
			logging.LogComparison(result.Path, result.Percentage, result.Regions, "")
		}

		p.mu.Unlock()
	}
}

// Stop waits for all results to be consumed and ends the progress display.
// resultsChan must be closed first.
func (p *ProgressTracker) Stop() {
	<-p.finished
	p.ticker.Stop()
	close(p.done)
}

// PrintCompletionStats displays statistics after the batch finishes
func PrintCompletionStats(summary *Summary) {
	logging.DebugLog("Batch completed in %v. Processed: %d, Flagged: %d, Errors: %d",
		summary.Elapsed, summary.Processed, summary.Flagged, summary.Errors)

	fmt.Println("\nBatch comparison complete.")
	fmt.Printf("Compared %d images in %v.\n", summary.Processed, summary.Elapsed.Round(time.Millisecond))
	fmt.Printf("Images with difference regions: %d\n", summary.Flagged)

	if summary.Errors > 0 {
		fmt.Printf("Encountered %d errors during comparison.\n", summary.Errors)
		fmt.Println("Check the log file for details.")
	}
}
