package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/arturoeanton/go-semantic-autofill/internal/domain"
	"github.com/arturoeanton/go-semantic-autofill/internal/middleware"
	"github.com/arturoeanton/go-semantic-autofill/internal/port"
	"github.com/arturoeanton/go-semantic-autofill/internal/service"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

// SubmissionHandler handles form submission ingest and retrieval.
type SubmissionHandler struct {
	submissions *service.SubmissionService
	indexer     *service.IndexingService
	tracker     *JobTracker
}

// NewSubmissionHandler creates a new submission handler.
func NewSubmissionHandler(submissions *service.SubmissionService, indexer *service.IndexingService, tracker *JobTracker) *SubmissionHandler {
	return &SubmissionHandler{submissions: submissions, indexer: indexer, tracker: tracker}
}

// Register sets up submission routes on a protected group.
func (h *SubmissionHandler) Register(api fiber.Router) {
	subs := api.Group("/submissions")
	subs.Post("/", h.Ingest)
	subs.Get("/", h.List)
	subs.Get("/:id", h.Get)
}

// Ingest merges a submission and dispatches asynchronous indexing.
// The merge is synchronous; indexing runs in the background and its
// outcome never affects this response.
func (h *SubmissionHandler) Ingest(c fiber.Ctx) error {
	uc := middleware.GetUserContext(c)
	if uc == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	req, err := decodeIngest(c.Body())
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	record, scalars, err := h.submissions.Ingest(c.Context(), uc.UserID, req)
	if err != nil {
		if errors.Is(err, port.ErrValidation) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	jobID := uuid.NewString()
	h.tracker.CreateJob(jobID, record.ID, len(scalars))

	identity := record.Identity()
	go func() {
		indexErr := h.indexer.Index(context.Background(), identity, scalars)
		if indexErr != nil {
			// Suppressed: the merge already succeeded and the record
			// is the source of truth.
			slog.Error("background indexing failed",
				"submission_id", record.ID, "job_id", jobID, "error", indexErr)
		}
		h.tracker.FinishJob(jobID, indexErr)
	}()

	return c.JSON(fiber.Map{
		"submission": record,
		"job_id":     jobID,
	})
}

// List returns submission summaries for the current user.
func (h *SubmissionHandler) List(c fiber.Ctx) error {
	uc := middleware.GetUserContext(c)
	if uc == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	summaries, err := h.submissions.List(c.Context(), uc.UserID, c.Query("site"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if summaries == nil {
		summaries = []domain.SubmissionSummary{}
	}

	return c.JSON(fiber.Map{"submissions": summaries, "count": len(summaries)})
}

// Get returns the full merged record by id, scoped to the current user.
func (h *SubmissionHandler) Get(c fiber.Ctx) error {
	uc := middleware.GetUserContext(c)
	if uc == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	record, err := h.submissions.Get(c.Context(), c.Params("id"), uc.UserID)
	if err != nil {
		if errors.Is(err, port.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "submission not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(record)
}

// decodeIngest decodes the ingest body with UseNumber so numeric field
// values keep their submitted text form instead of going through float64.
func decodeIngest(body []byte) (service.IngestRequest, error) {
	var req service.IngestRequest
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		return service.IngestRequest{}, err
	}
	return req, nil
}
