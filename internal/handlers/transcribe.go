package handlers

import (
	"fmt"
	"log"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/adimov-eth/transcribe/internal/queue"
	"github.com/adimov-eth/transcribe/internal/storage"
	"github.com/adimov-eth/transcribe/internal/transcription"
	"github.com/adimov-eth/transcribe/internal/types"
)

// TranscribeHandler accepts transcription submissions
type TranscribeHandler struct {
	store            *queue.Store
	storage          *storage.Manager
	supportedFormats []string
}

// NewTranscribeHandler creates a handler over the job store and
// storage manager
func NewTranscribeHandler(store *queue.Store, storageManager *storage.Manager, supportedFormats []string) *TranscribeHandler {
	if len(supportedFormats) == 0 {
		supportedFormats = transcription.DefaultSupportedFormats
	}
	return &TranscribeHandler{
		store:            store,
		storage:          storageManager,
		supportedFormats: supportedFormats,
	}
}

// HandleFile processes a multipart upload submission
func (h *TranscribeHandler) HandleFile(c *fiber.Ctx) error {
	file, err := c.FormFile("audio")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No file uploaded",
		})
	}

	if !h.storage.ValidateSize(file.Size) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fmt.Sprintf("File too large. Maximum size: %.0fMB", h.storage.MaxFileSizeMB()),
		})
	}

	if !transcription.ValidateFormat(file.Filename, h.supportedFormats) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fmt.Sprintf("File type not allowed. Supported formats: %s",
				strings.Join(h.supportedFormats, ", ")),
		})
	}

	jobID := uuid.New().String()
	ext := strings.ToLower(filepath.Ext(file.Filename))
	uploadPath := h.storage.Path(fmt.Sprintf("upload_%s%s", uuid.New().String(), ext))

	if err := c.SaveFile(file, uploadPath); err != nil {
		log.Printf("Failed to save uploaded file: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to save file",
		})
	}

	job := queue.NewJob(jobID, types.SourceFile, uploadPath, types.JobOptions{
		Language:     c.FormValue("language"),
		OutputFormat: c.FormValue("format"),
	})

	if err := h.store.Enqueue(job); err != nil {
		log.Printf("Failed to create file transcription job: %v", err)
		h.storage.Delete(uploadPath)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create transcription job",
		})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"jobId":   jobID,
		"status":  types.StatusPending,
		"message": "Transcription job created",
	})
}

// URLRequest is the body of a remote-source submission
type URLRequest struct {
	URL      string `json:"url"`
	Language string `json:"language"`
	Format   string `json:"format"`
}

// HandleURL processes a remote-source submission
func (h *TranscribeHandler) HandleURL(c *fiber.Ctx) error {
	var req URLRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.URL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "URL is required",
		})
	}
	if parsed, err := url.Parse(req.URL); err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid URL",
		})
	}

	jobID := uuid.New().String()
	job := queue.NewJob(jobID, types.SourceURL, req.URL, types.JobOptions{
		Language:     req.Language,
		OutputFormat: req.Format,
	})

	if err := h.store.Enqueue(job); err != nil {
		log.Printf("Failed to create URL transcription job: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create transcription job",
		})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"jobId":   jobID,
		"status":  types.StatusPending,
		"message": "Transcription job created",
	})
}
