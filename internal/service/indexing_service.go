package service

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
	"log/slog"
	"sort"

	"github.com/arturoeanton/go-semantic-autofill/internal/domain"
	"github.com/arturoeanton/go-semantic-autofill/internal/port"
)

// IndexingService converts a submission's scalar fields into similarity
// index points. It runs after the merge response has been prepared and its
// failures are never surfaced to the ingest caller: the submission store
// stays the source of truth whether or not indexing succeeds.
type IndexingService struct {
	embedder port.EmbeddingProvider
	index    port.SimilarityIndex
}

// NewIndexingService creates a new indexing pipeline.
func NewIndexingService(embedder port.EmbeddingProvider, index port.SimilarityIndex) *IndexingService {
	return &IndexingService{embedder: embedder, index: index}
}

// Index embeds every field label and upserts one point per key. values is
// the scalar subset of the raw submitted fields (not the accumulated sets).
// The returned error is for the caller's log only; nothing upstream fails
// because of it.
func (s *IndexingService) Index(ctx context.Context, identity domain.Identity, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}

	if err := s.index.EnsureReady(ctx); err != nil {
		return fmt.Errorf("%w: ensure index: %v", port.ErrDependencyUnavailable, err)
	}

	// Stable key order keeps embed batches deterministic.
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	vectors, err := s.embedder.EmbedBatch(ctx, keys)
	if err != nil {
		return fmt.Errorf("%w: embed labels: %v", port.ErrDependencyUnavailable, err)
	}
	if len(vectors) != len(keys) {
		return fmt.Errorf("embed labels: got %d vectors for %d keys", len(vectors), len(keys))
	}

	points := make([]domain.IndexPoint, len(keys))
	for i, key := range keys {
		points[i] = domain.IndexPoint{
			PointID:     PointID(identity, key),
			UserID:      identity.UserID,
			Site:        identity.Site,
			Path:        identity.Path,
			FormID:      identity.FormID,
			OriginalKey: key,
			Value:       values[key],
			Vector:      vectors[i],
		}
	}

	if err := s.index.Upsert(ctx, points); err != nil {
		return fmt.Errorf("%w: upsert points: %v", port.ErrDependencyUnavailable, err)
	}

	slog.Info("indexed submission fields",
		"user_id", identity.UserID, "site", identity.Site, "points", len(points))
	return nil
}

// PointID derives the deterministic point identifier for one field of one
// identity. Fields are length-prefixed before hashing so no combination of
// values can collide by concatenation, and an absent form id hashes
// differently from an empty string.
func PointID(identity domain.Identity, key string) string {
	h := sha256.New()
	hashField(h, identity.UserID)
	hashField(h, identity.Site)
	hashField(h, identity.Path)
	if identity.FormID == nil {
		h.Write([]byte{0})
	} else {
		h.Write([]byte{1})
		hashField(h, *identity.FormID)
	}
	hashField(h, key)
	return hex.EncodeToString(h.Sum(nil))
}

func hashField(h hash.Hash, field string) {
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(field)))
	h.Write(lenBuf[:])
	h.Write([]byte(field))
}
