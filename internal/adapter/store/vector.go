package store

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/arturoeanton/go-semantic-autofill/internal/domain"
	"github.com/arturoeanton/go-semantic-autofill/internal/port"
)

// VectorIndex implements port.SimilarityIndex on pgvector. Each row is one
// embedded field label; point_id is the deterministic identity+key hash, so
// upserts overwrite in place and the index always holds the latest scalar
// observation per (identity, key).
type VectorIndex struct {
	store     *PostgresStore
	dimension int

	mu      sync.Mutex
	ensured bool
}

// NewVectorIndex creates a similarity index backed by the given Postgres store.
func NewVectorIndex(store *PostgresStore, dimension int) *VectorIndex {
	return &VectorIndex{store: store, dimension: dimension}
}

// EnsureReady lazily creates the index table and its keyword indexes.
// Safe to call concurrently and repeatedly: the statements are IF NOT
// EXISTS and a duplicate create attempt racing another process is a no-op.
func (v *VectorIndex) EnsureReady(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.ensured {
		return nil
	}
	if err := v.ensure(ctx); err != nil {
		return err
	}
	v.ensured = true
	return nil
}

func (v *VectorIndex) ensure(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS index_points (
			point_id     TEXT PRIMARY KEY,
			user_id      TEXT NOT NULL,
			site         TEXT NOT NULL,
			path         TEXT NOT NULL,
			form_id      TEXT,
			original_key TEXT NOT NULL,
			value        TEXT NOT NULL,
			vector       vector(%d) NOT NULL,
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, v.dimension),
		`CREATE INDEX IF NOT EXISTS index_points_user_idx ON index_points (user_id)`,
		`CREATE INDEX IF NOT EXISTS index_points_scope_idx ON index_points (user_id, site, path, form_id)`,
	}
	for _, stmt := range stmts {
		if _, err := v.store.db.ExecContext(ctx, stmt); err != nil {
			if isUniqueViolation(err) {
				// Concurrent first-caller created it between our check
				// and create. Benign.
				continue
			}
			return fmt.Errorf("ensure index: %w", err)
		}
	}
	return nil
}

// Ready reports whether the index table exists yet.
func (v *VectorIndex) Ready(ctx context.Context) (bool, error) {
	var exists bool
	err := v.store.db.QueryRowContext(ctx,
		`SELECT to_regclass('index_points') IS NOT NULL`,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("index ready check: %w", err)
	}
	return exists, nil
}

// Upsert writes points keyed by point_id, overwriting existing entries.
func (v *VectorIndex) Upsert(ctx context.Context, points []domain.IndexPoint) error {
	if len(points) == 0 {
		return nil
	}

	tx, err := v.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO index_points (point_id, user_id, site, path, form_id, original_key, value, vector, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::vector, NOW())
		 ON CONFLICT (point_id) DO UPDATE SET
			original_key = EXCLUDED.original_key,
			value        = EXCLUDED.value,
			vector       = EXCLUDED.vector,
			updated_at   = NOW()`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err := stmt.ExecContext(ctx,
			p.PointID, p.UserID, p.Site, p.Path, p.FormID, p.OriginalKey, p.Value, vectorToString(p.Vector),
		); err != nil {
			return fmt.Errorf("upsert point: %w", err)
		}
	}

	return tx.Commit()
}

// Query performs a filtered cosine similarity search, highest score first.
func (v *VectorIndex) Query(ctx context.Context, vector []float32, filter port.IndexFilter, limit int) ([]domain.SuggestionHit, error) {
	vectorStr := vectorToString(vector)

	query := `SELECT point_id, original_key, value, 1 - (vector <=> $1::vector) AS score
	          FROM index_points
	          WHERE user_id = $2`
	args := []interface{}{vectorStr, filter.UserID}

	if filter.Site != "" {
		args = append(args, filter.Site)
		query += fmt.Sprintf(" AND site = $%d", len(args))
	}
	if filter.Path != "" {
		args = append(args, filter.Path)
		query += fmt.Sprintf(" AND path = $%d", len(args))
	}
	if filter.FormID != nil {
		args = append(args, *filter.FormID)
		query += fmt.Sprintf(" AND form_id = $%d", len(args))
	}

	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY vector <=> $1::vector LIMIT $%d", len(args))

	rows, err := v.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	defer rows.Close()

	var hits []domain.SuggestionHit
	for rows.Next() {
		var h domain.SuggestionHit
		if err := rows.Scan(&h.PointID, &h.OriginalKey, &h.Value, &h.Score); err != nil {
			return nil, fmt.Errorf("scan hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// vectorToString converts a float32 slice to pgvector string format: [0.1,0.2,0.3].
func vectorToString(v []float32) string {
	parts := make([]string, len(v))
	for i, val := range v {
		parts[i] = fmt.Sprintf("%g", val)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
