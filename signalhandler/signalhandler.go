package signalhandler

import (
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"cardcheck/logging"
)

// exit is replaced in tests
var exit = os.Exit

// SetupHandler configures signal handling for safer interaction with C libraries.
// On SIGINT or SIGTERM onShutdown runs (if non-nil) before the process exits,
// so open Mats, the database and the log file can be released.
func SetupHandler(onShutdown func()) {
	// Create a channel to receive OS signals
	sigChan := make(chan os.Signal, 1)

	// Register for specific signals
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Handle signals in a separate goroutine
	go func() {
		sig := <-sigChan
		signal.Stop(sigChan)
		logging.LogInfo("Received %v, shutting down", sig)

		if onShutdown != nil {
			onShutdown()
		}
		exit(0)
	}()
}

// GetOptimalProcs returns the optimal number of worker goroutines for the system
func GetOptimalProcs() int {
	// Get the number of CPUs available
	numCPU := runtime.NumCPU()

	// For image processing with CGo, using too many goroutines can cause issues
	maxProcs := (numCPU * 3) / 4
	if maxProcs < 1 {
		maxProcs = 1
	}

	return maxProcs
}
