package port

import (
	"context"

	"github.com/arturoeanton/go-semantic-autofill/internal/domain"
)

// IndexFilter narrows a similarity query. UserID is mandatory — a query is
// always scoped to one user. Site and Path filter when non-empty; FormID
// filters when non-nil. All supplied fields must match (conjunctive).
type IndexFilter struct {
	UserID string
	Site   string
	Path   string
	FormID *string
}

// SimilarityIndex abstracts the approximate-nearest-neighbor store for
// embedded field labels.
type SimilarityIndex interface {
	// EnsureReady lazily creates the index collection and its keyword
	// indexes. Idempotent and safe to call concurrently and repeatedly.
	EnsureReady(ctx context.Context) error

	// Ready reports whether the index collection exists yet. A missing
	// collection is the valid "no data ingested" state, not an error.
	Ready(ctx context.Context) (bool, error)

	// Upsert writes points keyed by their deterministic PointID,
	// overwriting any existing entry for the same id.
	Upsert(ctx context.Context, points []domain.IndexPoint) error

	// Query returns up to limit hits nearest to vector under the filter,
	// highest score first. Scores are cosine similarities in [0,1]-ish
	// range depending on the backend; threshold cuts are the caller's job.
	Query(ctx context.Context, vector []float32, filter IndexFilter, limit int) ([]domain.SuggestionHit, error)
}
