package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
)

var (
	debugLogger *log.Logger
	logWriter   io.WriteCloser
	debugMode   bool
	mu          sync.Mutex
	isSetup     bool
)

// Options controls where and how the log file is written
type Options struct {
	// Path is the name of the current log; rotated files get a date suffix
	Path string
	// Debug enables DebugLog output
	Debug bool
	// Echo also writes every line to stdout
	Echo         bool
	MaxAge       time.Duration
	RotationTime time.Duration
}

// SetupLogger initializes the logger with a rotating log file
func SetupLogger(opts Options) error {
	mu.Lock()
	defer mu.Unlock()

	// Check if logger is already set up
	if isSetup {
		return nil
	}

	if opts.MaxAge <= 0 {
		opts.MaxAge = 7 * 24 * time.Hour
	}
	if opts.RotationTime <= 0 {
		opts.RotationTime = 24 * time.Hour
	}

	writer, err := rotatelogs.New(
		opts.Path+".%Y%m%d",
		rotatelogs.WithLinkName(opts.Path),
		rotatelogs.WithMaxAge(opts.MaxAge),
		rotatelogs.WithRotationTime(opts.RotationTime),
	)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	logWriter = writer

	var out io.Writer = writer
	if opts.Echo {
		out = io.MultiWriter(os.Stdout, writer)
	}

	// Create logger with timestamp prefix
	debugLogger = log.New(out, "", log.LstdFlags)
	debugMode = opts.Debug

	debugLogger.Printf("--- CardCheck Log Started at %s ---\n", time.Now().Format(time.RFC3339))

	isSetup = true
	return nil
}

// CloseLogger closes the log file
func CloseLogger() {
	mu.Lock()
	defer mu.Unlock()

	if logWriter != nil {
		debugLogger.Printf("--- CardCheck Log Closed at %s ---\n", time.Now().Format(time.RFC3339))
		logWriter.Close()
		logWriter = nil
		debugLogger = nil
		debugMode = false
		isSetup = false
	}
}

// LogInfo logs an information message
func LogInfo(format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()

	if debugLogger != nil {
		debugLogger.Printf("INFO: "+format, args...)
	} else {
		// Fallback to standard output if logger is not set up
		log.Printf("INFO: "+format, args...)
	}
}

// DebugLog logs a message if debug mode is enabled
func DebugLog(format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()

	if debugLogger != nil && debugMode {
		debugLogger.Printf("DEBUG: "+format, args...)
	}
}

// LogError logs an error message
func LogError(format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()

	if debugLogger != nil {
		debugLogger.Printf("ERROR: "+format, args...)
	} else {
		log.Printf("ERROR: "+format, args...)
	}
}

// LogWarning logs a warning message
func LogWarning(format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()

	if debugLogger != nil {
		debugLogger.Printf("WARNING: "+format, args...)
	}
}

// LogComparison logs the outcome of one comparison
func LogComparison(id string, percentage float64, regions int, errMsg string) {
	mu.Lock()
	defer mu.Unlock()

	if debugLogger != nil {
		if errMsg == "" {
			debugLogger.Printf("COMPARED: %s similarity=%.2f%% regions=%d", id, percentage, regions)
		} else {
			debugLogger.Printf("FAILED: %s - Error: %s", id, errMsg)
		}
	}
}
