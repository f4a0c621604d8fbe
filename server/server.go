// Package server exposes the card comparison over HTTP.
package server

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/google/uuid"

	"cardcheck/comparison"
	"cardcheck/config"
	"cardcheck/database"
	"cardcheck/imageprocessor"
	"cardcheck/logging"
	"cardcheck/types"
)

const (
	uploadField   = "file_upload"
	referenceName = "image.jpg"
	uploadName    = "image.jpg"
)

// ErrReferenceMissing is returned when neither the reference source nor a
// prepared copy is available
var ErrReferenceMissing = errors.New("original reference image not found")

// CompareResponse is the JSON body of a successful comparison
type CompareResponse struct {
	ID         string            `json:"id"`
	Score      float64           `json:"score"`
	Percentage float64           `json:"percentage"`
	Pred       string            `json:"pred"`
	Regions    []types.Region    `json:"regions"`
	Images     types.OutputPaths `json:"images"`
	Elapsed    string            `json:"elapsed"`
}

// ErrorResponse is the JSON body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
}

// Server wires the comparison pipeline to a fiber app
type Server struct {
	cfg      *config.Config
	pipeline *comparison.Pipeline
	loader   *imageprocessor.Loader
	db       *sql.DB
	app      *fiber.App

	// guards the prepared reference file
	refMu sync.RWMutex
}

// New builds the HTTP server. db may be nil, in which case nothing is
// recorded and the history routes answer 503.
func New(cfg *config.Config, db *sql.DB) (*Server, error) {
	pipeline, err := comparison.NewDefaultPipeline(cfg.PipelineConfig())
	if err != nil {
		return nil, err
	}

	for _, dir := range []string{cfg.Paths.Uploads, cfg.Paths.Original, cfg.Paths.Generated} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("cannot create directory %s: %w", dir, err)
		}
	}

	s := &Server{
		cfg:      cfg,
		pipeline: pipeline,
		loader:   imageprocessor.NewLoader(),
		db:       db,
	}

	s.app = fiber.New(fiber.Config{
		BodyLimit:             int(cfg.Server.MaxUploadBytes),
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}
			return c.Status(code).JSON(ErrorResponse{
				Error: err.Error(),
			})
		},
	})

	// Middleware
	s.app.Use(logger.New())
	s.app.Use(cors.New())

	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"time":   time.Now(),
		})
	})

	s.app.Post("/", s.handleCompare)
	s.app.Post("/api/compare", s.handleCompare)
	s.app.Get("/api/comparisons", s.handleList)
	s.app.Get("/api/comparisons/:id", s.handleGet)
	s.app.Get("/api/stats", s.handleStats)
	s.app.Static("/static/generated", cfg.Paths.Generated)

	return s, nil
}

// App returns the underlying fiber app
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on the configured address until Shutdown
func (s *Server) Listen() error {
	logging.LogInfo("Server starting on %s", s.cfg.Server.Addr)
	return s.app.Listen(s.cfg.Server.Addr)
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) handleCompare(c *fiber.Ctx) error {
	start := time.Now()

	fh, err := c.FormFile(uploadField)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "missing upload field "+uploadField)
	}

	file, err := fh.Open()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "cannot read upload: "+err.Error())
	}
	data, err := io.ReadAll(file)
	file.Close()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "cannot read upload: "+err.Error())
	}

	id := uuid.NewString()
	w, h := s.cfg.Pipeline.CanonicalWidth, s.cfg.Pipeline.CanonicalHeight

	s.refMu.Lock()
	referencePath, err := s.prepareReference()
	s.refMu.Unlock()
	if err != nil {
		logging.LogComparison(id, 0, 0, err.Error())
		return statusError(err)
	}

	uploadDir := filepath.Join(s.cfg.Paths.Uploads, id)
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "cannot create upload directory")
	}
	uploadPath := filepath.Join(uploadDir, uploadName)

	resized, err := s.loader.ResizeBytesAndSave(data, uploadPath, w, h)
	if err != nil {
		os.RemoveAll(uploadDir)
		logging.LogComparison(id, 0, 0, err.Error())
		return statusError(err)
	}
	resized.Close()

	outputDir := filepath.Join(s.cfg.Paths.Generated, id)
	s.refMu.RLock()
	out, err := s.pipeline.Run(referencePath, uploadPath, outputDir)
	s.refMu.RUnlock()
	if err != nil {
		logging.LogComparison(id, 0, 0, err.Error())
		return statusError(err)
	}
	defer out.Close()

	logging.LogComparison(id, out.Percentage, len(out.Regions), "")

	if s.db != nil {
		record := types.ComparisonRecord{
			ID:             id,
			CreatedAt:      start.Format(time.RFC3339),
			OriginalSource: referencePath,
			UploadedSource: uploadPath,
			OutputDir:      outputDir,
			Score:          out.Score,
			Percentage:     out.Percentage,
			Regions:        out.Regions,
			Paths:          out.Paths,
		}
		if err := database.StoreComparison(s.db, record); err != nil {
			logging.LogError("Failed to record comparison %s: %v", id, err)
		}
	}

	names := s.pipeline.Config().OutputFilenames
	return c.JSON(CompareResponse{
		ID:         id,
		Score:      out.Score,
		Percentage: out.Percentage,
		Pred:       FormatPrediction(out.Percentage),
		Regions:    out.Regions,
		Images:     names.In("/static/generated/" + id),
		Elapsed:    time.Since(start).String(),
	})
}

// prepareReference resizes the configured reference source into the
// original directory and returns the prepared path. An existing prepared
// copy is reused when the source is gone.
func (s *Server) prepareReference() (string, error) {
	w, h := s.cfg.Pipeline.CanonicalWidth, s.cfg.Pipeline.CanonicalHeight
	prepared := filepath.Join(s.cfg.Paths.Original, referenceName)

	if _, err := os.Stat(s.cfg.Paths.ReferenceSource); err == nil {
		img, err := s.loader.ResizeAndSave(s.cfg.Paths.ReferenceSource, prepared, w, h)
		if err != nil {
			return "", err
		}
		img.Close()
		return prepared, nil
	}

	if _, err := os.Stat(prepared); err == nil {
		logging.DebugLog("Reference source %s missing, reusing %s", s.cfg.Paths.ReferenceSource, prepared)
		return prepared, nil
	}

	return "", &imageprocessor.ImageError{
		Kind:  imageprocessor.ErrDecode,
		Op:    "reference",
		Path:  s.cfg.Paths.ReferenceSource,
		Cause: ErrReferenceMissing,
	}
}

func (s *Server) handleList(c *fiber.Ctx) error {
	if s.db == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "history store disabled")
	}

	limit := 20
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}

	records, err := database.ListComparisons(s.db, limit)
	if err != nil {
		return err
	}
	return c.JSON(records)
}

func (s *Server) handleGet(c *fiber.Ctx) error {
	if s.db == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "history store disabled")
	}

	record, err := database.GetComparison(s.db, c.Params("id"))
	if errors.Is(err, database.ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	if err != nil {
		return err
	}
	return c.JSON(record)
}

func (s *Server) handleStats(c *fiber.Ctx) error {
	if s.db == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "history store disabled")
	}

	stats, err := database.GetComparisonStats(s.db)
	if err != nil {
		return err
	}
	return c.JSON(stats)
}

// statusError maps a comparison failure to an HTTP error
func statusError(err error) error {
	switch {
	case errors.Is(err, imageprocessor.ErrDecode), errors.Is(err, imageprocessor.ErrInvalidChannel):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}

// FormatPrediction renders a percentage as "<pct> % similarity". Whole
// numbers keep one decimal, e.g. "100.0 % similarity".
func FormatPrediction(percentage float64) string {
	s := strconv.FormatFloat(percentage, 'f', -1, 64)
	if percentage == float64(int64(percentage)) {
		s = strconv.FormatFloat(percentage, 'f', 1, 64)
	}
	return s + " % similarity"
}
