package handlers

import (
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/adimov-eth/transcribe/internal/queue"
	"github.com/adimov-eth/transcribe/internal/types"
)

// JobsHandler serves job status, results and cancellation
type JobsHandler struct {
	store *queue.Store
}

// NewJobsHandler creates a jobs handler over the store
func NewJobsHandler(store *queue.Store) *JobsHandler {
	return &JobsHandler{store: store}
}

// HandleStatus returns the job record projection
func (h *JobsHandler) HandleStatus(c *fiber.Ctx) error {
	job, err := h.store.GetJob(c.Params("id"))
	if err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Job not found"})
		}
		log.Printf("Failed to get job status: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to get job status"})
	}
	return c.JSON(job)
}

// HandleResult returns a completed job's result
func (h *JobsHandler) HandleResult(c *fiber.Ctx) error {
	job, err := h.store.GetJob(c.Params("id"))
	if err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Job not found"})
		}
		log.Printf("Failed to get job result: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to get job result"})
	}

	if job.Status != types.StatusCompleted {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":  "Job not completed",
			"status": job.Status,
		})
	}
	if job.Result == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Result not found"})
	}

	return c.JSON(fiber.Map{
		"jobId":       job.ID,
		"result":      job.Result,
		"completedAt": job.CompletedAt,
	})
}

// HandleDelete cancels a job. An in-flight external call cannot be
// interrupted; removal prevents future leasing.
func (h *JobsHandler) HandleDelete(c *fiber.Ctx) error {
	id := c.Params("id")
	removed, err := h.store.Remove(id)
	if err != nil {
		log.Printf("Failed to cancel job: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to cancel job"})
	}
	if !removed {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Job not found"})
	}
	return c.JSON(fiber.Map{"message": "Job cancelled", "jobId": id})
}

// HandleList returns counts and summaries of active and waiting jobs
func (h *JobsHandler) HandleList(c *fiber.Ctx) error {
	active, err := h.store.ListActive()
	if err != nil {
		log.Printf("Failed to list jobs: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to list jobs"})
	}
	waiting, err := h.store.ListWaiting()
	if err != nil {
		log.Printf("Failed to list jobs: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to list jobs"})
	}

	type activeSummary struct {
		ID        string `json:"id"`
		Progress  int    `json:"progress"`
		CreatedAt string `json:"createdAt"`
	}
	type waitingSummary struct {
		ID        string `json:"id"`
		CreatedAt string `json:"createdAt"`
	}

	activeOut := make([]activeSummary, 0, len(active))
	for _, job := range active {
		activeOut = append(activeOut, activeSummary{
			ID:        job.ID,
			Progress:  job.Progress,
			CreatedAt: job.CreatedAt.Format(time.RFC3339),
		})
	}
	waitingOut := make([]waitingSummary, 0, len(waiting))
	for _, job := range waiting {
		waitingOut = append(waitingOut, waitingSummary{
			ID:        job.ID,
			CreatedAt: job.CreatedAt.Format(time.RFC3339),
		})
	}

	return c.JSON(fiber.Map{
		"active":  len(active),
		"waiting": len(waiting),
		"jobs": fiber.Map{
			"active":  activeOut,
			"waiting": waitingOut,
		},
	})
}
