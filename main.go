package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"cardcheck/comparison"
	"cardcheck/config"
	"cardcheck/database"
	"cardcheck/logging"
	"cardcheck/scanner"
	"cardcheck/server"
	"cardcheck/signalhandler"
	"cardcheck/types"
	"cardcheck/utils"
)

func main() {
	// Set the optimal number of CPUs to use
	runtime.GOMAXPROCS(signalhandler.GetOptimalProcs())

	// Optional .env with CARDCHECK_* overrides
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Printf("Warning: Failed to load .env: %v\n", err)
	}

	// Parse command line arguments into a map
	args := utils.ParseArguments(os.Args[1:])

	command, hasCommand := args["command"]

	// Check if required arguments are missing
	showUsage := !hasCommand
	if hasCommand && command == "compare" && (args["original"] == "" || args["uploaded"] == "") {
		showUsage = true
	}
	if hasCommand && command == "batch" && (args["folder"] == "" || args["original"] == "") {
		showUsage = true
	}
	if showUsage {
		utils.PrintUsage()
		os.Exit(1)
	}

	cfg, err := config.Load(args["config"])
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}
	applyFlagOverrides(cfg, args)

	if err := logging.SetupLogger(logging.Options{
		Path:         cfg.Logging.File,
		Debug:        cfg.Logging.Debug,
		MaxAge:       cfg.LogMaxAge(),
		RotationTime: cfg.LogRotationTime(),
	}); err != nil {
		fmt.Printf("Warning: Failed to setup logging: %v\n", err)
	} else if cfg.Logging.Debug {
		fmt.Printf("Debug mode enabled. Logging to: %s\n", cfg.Logging.File)
	}
	defer logging.CloseLogger()

	switch command {
	case "compare":
		handleCompareCommand(cfg, args)
	case "batch":
		handleBatchCommand(cfg, args)
	case "serve":
		handleServeCommand(cfg)
	case "history":
		handleHistoryCommand(cfg, args)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		utils.PrintUsage()
		os.Exit(1)
	}
}

// applyFlagOverrides lets command-line flags win over file and environment
func applyFlagOverrides(cfg *config.Config, args map[string]string) {
	if v, ok := args["width"]; ok {
		n, err := utils.ParsePositiveInt("width", v)
		if err != nil {
			log.Fatalf("Error: %v", err)
		}
		cfg.Pipeline.CanonicalWidth = n
	}
	if v, ok := args["height"]; ok {
		n, err := utils.ParsePositiveInt("height", v)
		if err != nil {
			log.Fatalf("Error: %v", err)
		}
		cfg.Pipeline.CanonicalHeight = n
	}
	if v, ok := args["database"]; ok && v != "" {
		cfg.Database.Path = v
	} else if v, ok := args["db"]; ok && v != "" {
		// Allow --db as an alias for --database
		cfg.Database.Path = v
	}
	if v, ok := args["logfile"]; ok && v != "" {
		cfg.Logging.File = v
	}
	if _, ok := args["debug"]; ok {
		cfg.Logging.Debug = true
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
}

// openHistory opens the comparison database with retry logic
func openHistory(dbPath string) *sql.DB {
	var db *sql.DB
	var err error
	const maxRetries = 3
	for i := 0; i < maxRetries; i++ {
		db, err = database.InitDatabase(dbPath)
		if err == nil {
			return db
		}

		if i < maxRetries-1 {
			log.Printf("Error initializing database (attempt %d/%d): %v - retrying...",
				i+1, maxRetries, err)
			time.Sleep(time.Second * time.Duration(i+1))
		}
	}
	log.Fatalf("Error initializing database after %d attempts: %v", maxRetries, err)
	return nil
}

func handleCompareCommand(cfg *config.Config, args map[string]string) {
	originalPath := args["original"]
	uploadedPath := args["uploaded"]

	pipeline, err := comparison.NewDefaultPipeline(cfg.PipelineConfig())
	if err != nil {
		log.Fatalf("Error creating pipeline: %v", err)
	}

	id := uuid.NewString()
	outputDir := args["output"]
	if outputDir == "" {
		outputDir = filepath.Join(cfg.Paths.Generated, id)
	}

	startTime := time.Now()

	out, err := pipeline.Run(originalPath, uploadedPath, outputDir)
	if err != nil {
		logging.LogComparison(id, 0, 0, err.Error())
		log.Fatalf("Error comparing images: %v", err)
	}
	defer out.Close()

	logging.LogComparison(id, out.Percentage, len(out.Regions), "")

	fmt.Printf("Comparison %s\n", id)
	fmt.Printf("  Original  : %s\n", originalPath)
	fmt.Printf("  Uploaded  : %s\n", uploadedPath)
	fmt.Printf("  SSIM Score: %.4f\n", out.Score)
	fmt.Printf("  Result    : %s\n", server.FormatPrediction(out.Percentage))
	fmt.Printf("  Regions   : %d\n", len(out.Regions))
	for i, r := range out.Regions {
		fmt.Printf("    %d. x=%d y=%d w=%d h=%d\n", i+1, r.X, r.Y, r.Width, r.Height)
	}
	fmt.Printf("  Outputs   : %s\n", outputDir)

	db := openHistory(cfg.Database.Path)
	defer db.Close()

	record := types.ComparisonRecord{
		ID:             id,
		CreatedAt:      startTime.Format(time.RFC3339),
		OriginalSource: originalPath,
		UploadedSource: uploadedPath,
		OutputDir:      outputDir,
		Score:          out.Score,
		Percentage:     out.Percentage,
		Regions:        out.Regions,
		Paths:          out.Paths,
	}
	if err := database.StoreComparison(db, record); err != nil {
		fmt.Printf("Warning: comparison not recorded: %v\n", err)
	}

	fmt.Printf("\nTotal comparison time: %v\n", time.Since(startTime))
}

func handleBatchCommand(cfg *config.Config, args map[string]string) {
	workers := signalhandler.GetOptimalProcs()
	if v, ok := args["workers"]; ok {
		n, err := utils.ParsePositiveInt("workers", v)
		if err != nil {
			log.Fatalf("Error: %v", err)
		}
		workers = n
	}

	outputRoot := args["output"]
	if outputRoot == "" {
		outputRoot = cfg.Paths.Generated
	}

	pipeline, err := comparison.NewDefaultPipeline(cfg.PipelineConfig())
	if err != nil {
		log.Fatalf("Error creating pipeline: %v", err)
	}

	db := openHistory(cfg.Database.Path)
	defer db.Close()

	summary, err := scanner.ScanAndCompareFolder(db, pipeline, scanner.ScanOptions{
		FolderPath:    args["folder"],
		ReferencePath: args["original"],
		OutputRoot:    outputRoot,
		MaxWorkers:    workers,
	})
	if err != nil {
		log.Fatalf("Error comparing folder: %v", err)
	}

	scanner.PrintCompletionStats(summary)
	for _, r := range summary.Results {
		if !r.Success {
			fmt.Printf("  FAILED  %s: %v\n", r.Path, r.Error)
			continue
		}
		if r.Regions > 0 {
			fmt.Printf("  FLAGGED %s: %s, %d region(s) -> %s\n", r.Path, server.FormatPrediction(r.Percentage), r.Regions, r.OutputDir)
		}
	}
}

func handleServeCommand(cfg *config.Config) {
	db := openHistory(cfg.Database.Path)

	srv, err := server.New(cfg, db)
	if err != nil {
		db.Close()
		log.Fatalf("Error creating server: %v", err)
	}

	// Set up proper signal handling
	signalhandler.SetupHandler(func() {
		if err := srv.Shutdown(); err != nil {
			logging.LogError("Server shutdown failed: %v", err)
		}
		db.Close()
		logging.CloseLogger()
	})

	fmt.Printf("Listening on %s (reference: %s)\n", cfg.Server.Addr, cfg.Paths.ReferenceSource)
	if err := srv.Listen(); err != nil {
		db.Close()
		log.Fatalf("Server error: %v", err)
	}
}

func handleHistoryCommand(cfg *config.Config, args map[string]string) {
	limit, err := utils.ParseLimit(args["limit"], 20)
	if err != nil {
		fmt.Printf("Warning: %v\n", err)
	}

	if _, err := os.Stat(cfg.Database.Path); os.IsNotExist(err) {
		log.Fatalf("Database does not exist: %s. Run a comparison first.", cfg.Database.Path)
	}

	db, err := database.OpenDatabase(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Error opening database: %v", err)
	}
	defer db.Close()

	records, err := database.ListComparisons(db, limit)
	if err != nil {
		log.Fatalf("Error reading history: %v", err)
	}

	if len(records) == 0 {
		fmt.Println("No comparisons recorded.")
		return
	}

	fmt.Println("Recent comparisons:")
	for i, r := range records {
		fmt.Printf("%d. %s  %s\n", i+1, r.ID, r.CreatedAt)
		fmt.Printf("   Uploaded: %s\n", r.UploadedSource)
		fmt.Printf("   %s, %d region(s)\n", server.FormatPrediction(r.Percentage), r.RegionCount)
	}

	stats, err := database.GetComparisonStats(db)
	if err == nil && stats != nil {
		fmt.Printf("\nSummary:\n")
		fmt.Printf("- Total comparisons: %d\n", stats.TotalComparisons)
		fmt.Printf("- With difference regions: %d\n", stats.WithRegions)
		fmt.Printf("- Average similarity: %.2f%%\n", stats.AveragePercentage)
	}
}
