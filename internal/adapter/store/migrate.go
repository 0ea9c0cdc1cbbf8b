package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/arturoeanton/go-semantic-autofill/internal/domain"
	"github.com/lib/pq"
)

// Reconcile normalizes legacy submission documents and then activates the
// identity uniqueness index. It runs at startup before the server accepts
// traffic and is fatal on failure. Every pass is idempotent: backfill and
// shape normalization are no-ops once applied, and dedup is a no-op once
// identity groups are singletons.
func (s *PostgresStore) Reconcile(ctx context.Context) error {
	if err := s.createBaseTables(ctx); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	if err := s.backfillIdentityDefaults(ctx); err != nil {
		return fmt.Errorf("backfill pass: %w", err)
	}
	if err := s.normalizeFieldShapes(ctx); err != nil {
		return fmt.Errorf("shape pass: %w", err)
	}
	if err := s.dedupeIdentities(ctx); err != nil {
		return fmt.Errorf("dedup pass: %w", err)
	}
	if err := s.activateUniquenessIndex(ctx); err != nil {
		return fmt.Errorf("activate uniqueness: %w", err)
	}
	slog.Info("schema reconciliation complete")
	return nil
}

func (s *PostgresStore) createBaseTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			email       TEXT NOT NULL,
			name        TEXT NOT NULL DEFAULT '',
			avatar_url  TEXT NOT NULL DEFAULT '',
			provider    TEXT NOT NULL,
			provider_id TEXT NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (provider, provider_id)
		)`,
		`CREATE TABLE IF NOT EXISTS submissions (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			site       TEXT NOT NULL,
			path       TEXT,
			form_id    TEXT,
			fields     JSONB NOT NULL DEFAULT '{}'::jsonb,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS submissions_user_idx ON submissions (user_id, site)`,
		`CREATE TABLE IF NOT EXISTS audit_logs (
			id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			user_id     TEXT NOT NULL,
			action      TEXT NOT NULL,
			resource    TEXT NOT NULL,
			resource_id TEXT NOT NULL DEFAULT '',
			details     JSONB NOT NULL DEFAULT '{}'::jsonb,
			ip          TEXT NOT NULL DEFAULT '',
			user_agent  TEXT NOT NULL DEFAULT '',
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// backfillIdentityDefaults is pass 1: records missing a path get the
// default "/", and empty-string form ids normalize to explicit null.
func (s *PostgresStore) backfillIdentityDefaults(ctx context.Context) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE submissions SET path = $1 WHERE path IS NULL OR path = ''`, domain.DefaultPath)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		slog.Info("backfilled default paths", "rows", n)
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE submissions SET form_id = NULL WHERE form_id = ''`); err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `ALTER TABLE submissions ALTER COLUMN path SET NOT NULL`)
	return err
}

// normalizeFieldShapes is pass 2: field values stored as bare scalars
// (pre-dating set accumulation) are rewritten as single-element arrays so
// every record conforms to map<string, []string>.
func (s *PostgresStore) normalizeFieldShapes(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, fields FROM submissions
		WHERE EXISTS (
			SELECT 1 FROM jsonb_each(fields) kv WHERE jsonb_typeof(kv.value) <> 'array'
		)`)
	if err != nil {
		return err
	}
	defer rows.Close()

	type fix struct {
		id     string
		fields domain.FieldSets
	}
	var fixes []fix
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return err
		}
		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("record %s: %w", id, err)
		}
		normalized, changed := normalizeFieldDoc(doc)
		if changed {
			fixes = append(fixes, fix{id: id, fields: normalized})
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, f := range fixes {
		payload, err := json.Marshal(f.fields)
		if err != nil {
			return err
		}
		if _, err := s.db.ExecContext(ctx,
			`UPDATE submissions SET fields = $1::jsonb WHERE id = $2`, payload, f.id); err != nil {
			return err
		}
	}
	if len(fixes) > 0 {
		slog.Info("normalized legacy field shapes", "rows", len(fixes))
	}
	return nil
}

// normalizeFieldDoc rewrites a loosely shaped fields document into the
// canonical map<string, []string> form. Bare scalars become one-element
// sets; array members are coerced to strings. Returns whether anything
// changed.
func normalizeFieldDoc(doc map[string]any) (domain.FieldSets, bool) {
	out := make(domain.FieldSets, len(doc))
	changed := false
	for key, v := range doc {
		switch t := v.(type) {
		case []any:
			values := make([]string, 0, len(t))
			for _, el := range t {
				if str, ok := el.(string); ok {
					values = append(values, str)
					continue
				}
				changed = true
				if s, ok := domain.ScalarFromJSON(el); ok {
					values = append(values, s.Text)
				}
			}
			out[key] = values
		default:
			changed = true
			if s, ok := domain.ScalarFromJSON(v); ok {
				out[key] = []string{s.Text}
			} else {
				// Structured legacy value: keep its JSON form as the
				// single observed member rather than dropping data.
				raw, _ := json.Marshal(v)
				out[key] = []string{string(raw)}
			}
		}
	}
	return out, changed
}

// submissionRow is the reconciler's working view of a submissions row.
type submissionRow struct {
	ID     string
	UserID string
	Site   string
	Path   string
	FormID *string
	Fields domain.FieldSets
}

func (r submissionRow) identityKey() string {
	formID := ""
	if r.FormID != nil {
		formID = *r.FormID
	}
	return r.UserID + "\x00" + r.Site + "\x00" + r.Path + "\x00" + formID
}

// dedupeIdentities is pass 3: identity groups with more than one record
// collapse into a single survivor whose field sets are the union of the
// whole group. Only after this pass can the uniqueness index activate.
func (s *PostgresStore) dedupeIdentities(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, site, path, form_id, fields FROM submissions
		ORDER BY user_id, site, path, COALESCE(form_id, ''), id`)
	if err != nil {
		return err
	}
	defer rows.Close()

	var records []submissionRow
	for rows.Next() {
		var r submissionRow
		var raw []byte
		if err := rows.Scan(&r.ID, &r.UserID, &r.Site, &r.Path, &r.FormID, &raw); err != nil {
			return err
		}
		if err := json.Unmarshal(raw, &r.Fields); err != nil {
			return fmt.Errorf("record %s: %w", r.ID, err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	survivors, discarded := collapseDuplicates(records)
	if len(discarded) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, sv := range survivors {
		payload, err := json.Marshal(sv.Fields)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE submissions SET fields = $1::jsonb WHERE id = $2`, payload, sv.ID); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM submissions WHERE id = ANY($1)`, pq.Array(discarded)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("deduplicated submission identities",
		"survivors_updated", len(survivors), "records_discarded", len(discarded))
	return nil
}

// collapseDuplicates groups records by identity, picks the first record of
// each group (fixed id order) as survivor, and unions every other record's
// field sets into it. Returns survivors that changed and the ids to discard.
func collapseDuplicates(records []submissionRow) (survivors []submissionRow, discarded []string) {
	groups := make(map[string][]submissionRow)
	var order []string
	for _, r := range records {
		key := r.identityKey()
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], r)
	}

	for _, key := range order {
		group := groups[key]
		if len(group) < 2 {
			continue
		}
		sort.Slice(group, func(i, j int) bool { return group[i].ID < group[j].ID })
		survivor := group[0]
		survivor.Fields = survivor.Fields.Clone()
		for _, loser := range group[1:] {
			survivor.Fields.Union(loser.Fields)
			discarded = append(discarded, loser.ID)
		}
		survivors = append(survivors, survivor)
	}
	return survivors, discarded
}

// activateUniquenessIndex enforces the one-record-per-identity invariant.
// form_id coalesces to '' inside the index only; the API boundary has
// already normalized empty-string form ids to null.
func (s *PostgresStore) activateUniquenessIndex(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE UNIQUE INDEX IF NOT EXISTS submissions_identity_key
		ON submissions (user_id, site, path, COALESCE(form_id, ''))`)
	return err
}
