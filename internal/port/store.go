package port

import (
	"context"

	"github.com/arturoeanton/go-semantic-autofill/internal/domain"
)

// SubmissionStore is the authoritative merge/aggregation layer over
// submitted form data, keyed by identity.
type SubmissionStore interface {
	// MergeSubmission folds values into the record for identity,
	// creating it on first sight. Values only ever accumulate into the
	// per-key sets; nothing is removed or reordered. Concurrent merges
	// to the same identity are serialized; neither caller's values are
	// lost. Returns the full merged record.
	MergeSubmission(ctx context.Context, identity domain.Identity, values map[string]string) (*domain.SubmissionRecord, error)

	// ListSubmissions returns summaries for a user, optionally filtered
	// by site. No field payloads.
	ListSubmissions(ctx context.Context, userID, site string) ([]domain.SubmissionSummary, error)

	// GetSubmission returns the full record by id, scoped to userID.
	// Returns ErrNotFound when missing or owned by a different user.
	GetSubmission(ctx context.Context, id, userID string) (*domain.SubmissionRecord, error)
}
