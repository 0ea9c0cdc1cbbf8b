package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/arturoeanton/go-semantic-autofill/internal/domain"
	"github.com/arturoeanton/go-semantic-autofill/internal/port"
	"golang.org/x/sync/errgroup"
)

const defaultSuggestionLimit = 3

// AutofillRequest asks for suggestions for a set of field labels.
type AutofillRequest struct {
	Keys      []string             `json:"keys"`
	Scope     domain.AutofillScope `json:"scope"`
	Threshold float64              `json:"threshold"`
	Multiple  bool                 `json:"multiple"`
	Limit     int                  `json:"limit"`
}

// AutofillService resolves field labels to previously observed values by
// semantic similarity. Every requested key resolves independently; a
// failed or slow key degrades to null without touching the others.
type AutofillService struct {
	embedder   port.EmbeddingProvider
	index      port.SimilarityIndex
	keyTimeout time.Duration
}

// NewAutofillService creates a new autofill matcher.
func NewAutofillService(embedder port.EmbeddingProvider, index port.SimilarityIndex, keyTimeout time.Duration) *AutofillService {
	if keyTimeout <= 0 {
		keyTimeout = 5 * time.Second
	}
	return &AutofillService{embedder: embedder, index: index, keyTimeout: keyTimeout}
}

// Autofill returns a suggestion per requested key: the best value (or nil)
// when Multiple is false, a descending-score value list (possibly empty)
// when Multiple is true. The result map always covers every requested key.
func (s *AutofillService) Autofill(ctx context.Context, userID string, req AutofillRequest) (map[string]any, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: missing user", port.ErrValidation)
	}
	if len(req.Keys) == 0 {
		return nil, fmt.Errorf("%w: keys must not be empty", port.ErrValidation)
	}
	if req.Threshold < 0 || req.Threshold > 1 {
		return nil, fmt.Errorf("%w: threshold must be in [0,1]", port.ErrValidation)
	}
	if req.Limit < 1 {
		req.Limit = defaultSuggestionLimit
	}

	results := make(map[string]any, len(req.Keys))
	for _, key := range req.Keys {
		results[key] = s.emptySuggestion(req.Multiple)
	}

	ready, err := s.index.Ready(ctx)
	if err != nil {
		// Index unreachable: degrade to "no suggestions" for the whole
		// request rather than failing it.
		slog.Warn("similarity index unavailable", "error", err)
		return results, nil
	}
	if !ready {
		// Valid "no data ingested yet" state.
		return results, nil
	}

	filter := port.IndexFilter{
		UserID: userID,
		Site:   req.Scope.Site,
		Path:   req.Scope.Path,
		FormID: req.Scope.FormID,
	}

	resolved := make([]any, len(req.Keys))
	g := &errgroup.Group{}
	g.SetLimit(8)
	for i, key := range req.Keys {
		g.Go(func() error {
			resolved[i] = s.resolveKey(ctx, key, filter, req)
			return nil
		})
	}
	_ = g.Wait()

	for i, key := range req.Keys {
		results[key] = resolved[i]
	}
	return results, nil
}

// resolveKey answers one key. Failures and timeouts resolve to the empty
// suggestion; they never abort the rest of the request.
func (s *AutofillService) resolveKey(ctx context.Context, key string, filter port.IndexFilter, req AutofillRequest) any {
	ctx, cancel := context.WithTimeout(ctx, s.keyTimeout)
	defer cancel()

	vector, err := s.embedder.Embed(ctx, key)
	if err != nil {
		slog.Warn("autofill embed failed", "key", key, "error", err)
		return s.emptySuggestion(req.Multiple)
	}

	hits, err := s.index.Query(ctx, vector, filter, req.Limit)
	if err != nil {
		slog.Warn("autofill query failed", "key", key, "error", err)
		return s.emptySuggestion(req.Multiple)
	}

	// The index's own threshold handling is not reliable across
	// embedding backends, so the cutoff is always applied here.
	surviving := hits[:0]
	for _, h := range hits {
		if h.Score >= req.Threshold {
			surviving = append(surviving, h)
		}
	}

	if len(surviving) == 0 {
		return s.emptySuggestion(req.Multiple)
	}

	if !req.Multiple {
		return surviving[0].Value
	}
	values := make([]string, 0, min(len(surviving), req.Limit))
	for _, h := range surviving {
		if len(values) == req.Limit {
			break
		}
		values = append(values, h.Value)
	}
	return values
}

func (s *AutofillService) emptySuggestion(multiple bool) any {
	if multiple {
		return []string{}
	}
	return nil
}
