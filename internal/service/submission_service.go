package service

import (
	"context"
	"fmt"

	"github.com/arturoeanton/go-semantic-autofill/internal/domain"
	"github.com/arturoeanton/go-semantic-autofill/internal/port"
)

// IngestRequest is one raw form submission as received from a client.
// Fields values are arbitrary JSON scalars; structured values are kept in
// the record but never indexed.
type IngestRequest struct {
	Site   string         `json:"site"`
	Path   string         `json:"path"`
	FormID *string        `json:"form_id"`
	Fields map[string]any `json:"fields"`
}

// SubmissionService merges raw submissions into the identity-keyed store.
type SubmissionService struct {
	store port.SubmissionStore
}

// NewSubmissionService creates a new submission service.
func NewSubmissionService(store port.SubmissionStore) *SubmissionService {
	return &SubmissionService{store: store}
}

// Ingest validates and merges a submission for the authenticated user.
// It returns the full merged record plus the scalar subset of the raw
// fields, which is what the indexing pipeline consumes afterwards.
func (s *SubmissionService) Ingest(ctx context.Context, userID string, req IngestRequest) (*domain.SubmissionRecord, map[string]string, error) {
	if userID == "" {
		return nil, nil, fmt.Errorf("%w: missing user", port.ErrValidation)
	}
	if req.Site == "" {
		return nil, nil, fmt.Errorf("%w: site is required", port.ErrValidation)
	}
	if len(req.Fields) == 0 {
		return nil, nil, fmt.Errorf("%w: fields must not be empty", port.ErrValidation)
	}

	identity := domain.Identity{
		UserID: userID,
		Site:   req.Site,
		Path:   req.Path,
		FormID: req.FormID,
	}.Normalize()

	record, err := s.store.MergeSubmission(ctx, identity, domain.StringifyAll(req.Fields))
	if err != nil {
		return nil, nil, fmt.Errorf("merge submission: %w", err)
	}

	return record, domain.ScalarFields(req.Fields), nil
}

// List returns submission summaries for a user, optionally filtered by site.
func (s *SubmissionService) List(ctx context.Context, userID, site string) ([]domain.SubmissionSummary, error) {
	return s.store.ListSubmissions(ctx, userID, site)
}

// Get returns the full merged record by id, scoped to the owning user.
func (s *SubmissionService) Get(ctx context.Context, id, userID string) (*domain.SubmissionRecord, error) {
	return s.store.GetSubmission(ctx, id, userID)
}
