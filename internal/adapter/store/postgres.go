package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/arturoeanton/go-semantic-autofill/internal/domain"
	"github.com/arturoeanton/go-semantic-autofill/internal/port"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// PostgresStore handles all relational database operations.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection and returns a store instance.
func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use in transactions.
func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// --- Users ---

// UpsertUser inserts or updates a user by provider + provider_id.
func (s *PostgresStore) UpsertUser(ctx context.Context, u *domain.User) (*domain.User, error) {
	query := `
		INSERT INTO users (email, name, avatar_url, provider, provider_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (provider, provider_id) DO UPDATE SET
			email = EXCLUDED.email,
			name = EXCLUDED.name,
			avatar_url = EXCLUDED.avatar_url,
			updated_at = NOW()
		RETURNING id, email, name, avatar_url, provider, provider_id, created_at, updated_at`

	row := s.db.QueryRowContext(ctx, query,
		u.Email, u.Name, u.AvatarURL, u.Provider, u.ProviderID,
	)

	var user domain.User
	err := row.Scan(
		&user.ID, &user.Email, &user.Name, &user.AvatarURL,
		&user.Provider, &user.ProviderID,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return &user, nil
}

// GetUserByID retrieves a user by ID.
func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT id, email, name, avatar_url, provider, provider_id, created_at, updated_at
	          FROM users WHERE id = $1`

	var user domain.User
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID, &user.Email, &user.Name, &user.AvatarURL,
		&user.Provider, &user.ProviderID,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

// --- Submissions ---

const mergeRetries = 3

// MergeSubmission implements port.SubmissionStore. The first writer for an
// identity inserts the row; every later writer takes a row lock and unions
// its values into the stored field sets, so concurrent merges to the same
// identity serialize and neither side's values are lost.
func (s *PostgresStore) MergeSubmission(ctx context.Context, identity domain.Identity, values map[string]string) (*domain.SubmissionRecord, error) {
	var lastErr error
	for attempt := 0; attempt < mergeRetries; attempt++ {
		rec, retry, err := s.tryMerge(ctx, identity, values)
		if err == nil {
			return rec, nil
		}
		if !retry {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("merge submission: retries exhausted: %w", lastErr)
}

func (s *PostgresStore) tryMerge(ctx context.Context, identity domain.Identity, values map[string]string) (*domain.SubmissionRecord, bool, error) {
	fields := make(domain.FieldSets, len(values))
	for key, v := range values {
		fields.Add(key, v)
	}
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return nil, false, fmt.Errorf("marshal fields: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	insert := `
		INSERT INTO submissions (id, user_id, site, path, form_id, fields, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, NOW())
		ON CONFLICT (user_id, site, path, (COALESCE(form_id, ''))) DO NOTHING
		RETURNING id, user_id, site, path, form_id, fields, updated_at`

	var rec domain.SubmissionRecord
	var rawFields []byte
	err = tx.QueryRowContext(ctx, insert,
		newRecordID(), identity.UserID, identity.Site, identity.Path, identity.FormID, fieldsJSON,
	).Scan(&rec.ID, &rec.UserID, &rec.Site, &rec.Path, &rec.FormID, &rawFields, &rec.UpdatedAt)
	if err == nil {
		if err := json.Unmarshal(rawFields, &rec.Fields); err != nil {
			return nil, false, fmt.Errorf("unmarshal fields: %w", err)
		}
		return &rec, false, tx.Commit()
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, isUniqueViolation(err), fmt.Errorf("insert submission: %w", err)
	}

	// Identity already exists: lock the row, union in Go, write back.
	sel := `
		SELECT id, user_id, site, path, form_id, fields, updated_at
		FROM submissions
		WHERE user_id = $1 AND site = $2 AND path = $3 AND COALESCE(form_id, '') = COALESCE($4, '')
		FOR UPDATE`

	err = tx.QueryRowContext(ctx, sel,
		identity.UserID, identity.Site, identity.Path, identity.FormID,
	).Scan(&rec.ID, &rec.UserID, &rec.Site, &rec.Path, &rec.FormID, &rawFields, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		// Lost a race with a concurrent delete between insert and select.
		return nil, true, fmt.Errorf("select submission: %w", err)
	}
	if err != nil {
		return nil, false, fmt.Errorf("select submission: %w", err)
	}

	if err := json.Unmarshal(rawFields, &rec.Fields); err != nil {
		return nil, false, fmt.Errorf("unmarshal fields: %w", err)
	}
	rec.Fields.Union(fields)

	mergedJSON, err := json.Marshal(rec.Fields)
	if err != nil {
		return nil, false, fmt.Errorf("marshal merged fields: %w", err)
	}

	update := `UPDATE submissions SET fields = $1::jsonb, updated_at = NOW() WHERE id = $2 RETURNING updated_at`
	if err := tx.QueryRowContext(ctx, update, mergedJSON, rec.ID).Scan(&rec.UpdatedAt); err != nil {
		return nil, false, fmt.Errorf("update submission: %w", err)
	}

	return &rec, false, tx.Commit()
}

// ListSubmissions returns summaries for a user, optionally filtered by site.
func (s *PostgresStore) ListSubmissions(ctx context.Context, userID, site string) ([]domain.SubmissionSummary, error) {
	query := `SELECT id, user_id, site, path, form_id, updated_at
	          FROM submissions WHERE user_id = $1`
	args := []interface{}{userID}

	if site != "" {
		query += ` AND site = $2`
		args = append(args, site)
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	var summaries []domain.SubmissionSummary
	for rows.Next() {
		var sm domain.SubmissionSummary
		if err := rows.Scan(&sm.ID, &sm.UserID, &sm.Site, &sm.Path, &sm.FormID, &sm.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		summaries = append(summaries, sm)
	}
	return summaries, rows.Err()
}

// GetSubmission returns the full record by id, scoped to the owning user.
func (s *PostgresStore) GetSubmission(ctx context.Context, id, userID string) (*domain.SubmissionRecord, error) {
	query := `SELECT id, user_id, site, path, form_id, fields, updated_at
	          FROM submissions WHERE id = $1 AND user_id = $2`

	var rec domain.SubmissionRecord
	var rawFields []byte
	err := s.db.QueryRowContext(ctx, query, id, userID).Scan(
		&rec.ID, &rec.UserID, &rec.Site, &rec.Path, &rec.FormID, &rawFields, &rec.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get submission: %w", err)
	}
	if err := json.Unmarshal(rawFields, &rec.Fields); err != nil {
		return nil, fmt.Errorf("unmarshal fields: %w", err)
	}
	return &rec, nil
}

// --- Audit Logs ---

// WriteAudit implements middleware.AuditWriter.
func (s *PostgresStore) WriteAudit(userID, action, resource, resourceID, details, ip, userAgent string) error {
	query := `INSERT INTO audit_logs (user_id, action, resource, resource_id, details, ip, user_agent)
	          VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7)`
	_, err := s.db.ExecContext(context.Background(), query,
		userID, action, resource, resourceID, details, ip, userAgent,
	)
	return err
}

// ListAuditLogs returns recent audit logs with optional filters.
func (s *PostgresStore) ListAuditLogs(ctx context.Context, limit int, action string) ([]domain.AuditLog, error) {
	query := `SELECT id, user_id, action, resource, resource_id, details, ip, user_agent, created_at
	          FROM audit_logs`
	args := []interface{}{}
	argIdx := 1

	if action != "" {
		query += fmt.Sprintf(" WHERE action = $%d", argIdx)
		args = append(args, action)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	var logs []domain.AuditLog
	for rows.Next() {
		var l domain.AuditLog
		if err := rows.Scan(
			&l.ID, &l.UserID, &l.Action, &l.Resource, &l.ResourceID,
			&l.Details, &l.IP, &l.UserAgent, &l.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, nil
}

// newRecordID mints the opaque id assigned once at first creation of an
// identity. It is never reassigned afterwards.
func newRecordID() string {
	return uuid.NewString()
}

// isUniqueViolation reports whether err is a Postgres unique_violation.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
