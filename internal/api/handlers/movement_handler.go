package handlers

import (
	"context"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/portops/cargoflow/internal/domain"
	"github.com/portops/cargoflow/internal/service"
)

type MovementHandler struct {
	movementService *service.MovementService
	uploadDir       string
}

func NewMovementHandler(movementService *service.MovementService, uploadDir string) *MovementHandler {
	if uploadDir == "" {
		uploadDir = "data/uploads"
	}
	return &MovementHandler{
		movementService: movementService,
		uploadDir:       uploadDir,
	}
}

// Upload accepts movement snapshot files and processes them in the
// background.
func (h *MovementHandler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid form data"})
		return
	}

	files := form.File["files"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no files provided"})
		return
	}

	uploadedFiles := make([]*domain.UploadedFile, 0, len(files))
	for _, file := range files {
		filePath := filepath.Join(h.uploadDir, filepath.Base(file.Filename))
		if err := c.SaveUploadedFile(file, filePath); err != nil {
			log.Error().Err(err).Str("filename", file.Filename).Msg("failed to save uploaded file")
			continue
		}

		uploadedFiles = append(uploadedFiles, &domain.UploadedFile{
			Filename: file.Filename,
			Path:     filePath,
			Size:     file.Size,
		})
	}

	if len(uploadedFiles) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no valid files to process"})
		return
	}

	go func() {
		// Detached from the request context so processing survives the
		// 202 response.
		if _, err := h.movementService.ProcessUploads(context.Background(), uploadedFiles); err != nil {
			log.Error().Err(err).Msg("failed to process movement files")
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"message": "files are being processed",
		"count":   len(uploadedFiles),
	})
}

// GetRunStatus returns the pipeline run record for a snapshot date.
func (h *MovementHandler) GetRunStatus(c *gin.Context) {
	date, ok := h.parseDate(c)
	if !ok {
		return
	}

	run, err := h.movementService.GetRunStatus(c.Request.Context(), date)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch run status"})
		return
	}
	if run == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no run for date"})
		return
	}

	c.JSON(http.StatusOK, run)
}

// GetSummary returns the reconciliation summary for a snapshot date.
func (h *MovementHandler) GetSummary(c *gin.Context) {
	date, ok := h.parseDate(c)
	if !ok {
		return
	}

	summary, found, err := h.movementService.GetSummary(c.Request.Context(), date)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch summary"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "no summary for date"})
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (h *MovementHandler) parseDate(c *gin.Context) (time.Time, bool) {
	raw := c.Query("date")
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date parameter is required"})
		return time.Time{}, false
	}

	date, err := time.Parse("2006-01-02", raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return time.Time{}, false
	}
	return date, true
}
