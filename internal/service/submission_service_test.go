package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/arturoeanton/go-semantic-autofill/internal/domain"
	"github.com/arturoeanton/go-semantic-autofill/internal/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore implements port.SubmissionStore with an in-memory union merge.
type fakeStore struct {
	records      map[string]*domain.SubmissionRecord // by identity key
	lastIdentity domain.Identity
	lastValues   map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: map[string]*domain.SubmissionRecord{}}
}

func identityKey(id domain.Identity) string {
	formID := ""
	if id.FormID != nil {
		formID = "#" + *id.FormID
	}
	return id.UserID + "|" + id.Site + "|" + id.Path + formID
}

func (f *fakeStore) MergeSubmission(_ context.Context, identity domain.Identity, values map[string]string) (*domain.SubmissionRecord, error) {
	f.lastIdentity = identity
	f.lastValues = values

	key := identityKey(identity)
	rec, ok := f.records[key]
	if !ok {
		rec = &domain.SubmissionRecord{
			ID:     key,
			UserID: identity.UserID,
			Site:   identity.Site,
			Path:   identity.Path,
			FormID: identity.FormID,
			Fields: domain.FieldSets{},
		}
		f.records[key] = rec
	}
	incoming := domain.FieldSets{}
	for k, v := range values {
		incoming.Add(k, v)
	}
	rec.Fields.Union(incoming)
	rec.UpdatedAt = time.Now()
	return rec, nil
}

func (f *fakeStore) ListSubmissions(context.Context, string, string) ([]domain.SubmissionSummary, error) {
	return nil, nil
}

func (f *fakeStore) GetSubmission(context.Context, string, string) (*domain.SubmissionRecord, error) {
	return nil, port.ErrNotFound
}

func TestIngestValidation(t *testing.T) {
	svc := NewSubmissionService(newFakeStore())

	_, _, err := svc.Ingest(context.Background(), "", IngestRequest{Site: "s", Fields: map[string]any{"k": "v"}})
	assert.ErrorIs(t, err, port.ErrValidation)

	_, _, err = svc.Ingest(context.Background(), "u1", IngestRequest{Fields: map[string]any{"k": "v"}})
	assert.ErrorIs(t, err, port.ErrValidation)

	_, _, err = svc.Ingest(context.Background(), "u1", IngestRequest{Site: "s"})
	assert.ErrorIs(t, err, port.ErrValidation)
}

func TestIngestNormalizesIdentity(t *testing.T) {
	store := newFakeStore()
	svc := NewSubmissionService(store)

	empty := ""
	_, _, err := svc.Ingest(context.Background(), "u1", IngestRequest{
		Site:   "shop.example",
		FormID: &empty,
		Fields: map[string]any{"email": "a@example.com"},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.DefaultPath, store.lastIdentity.Path)
	assert.Nil(t, store.lastIdentity.FormID)
}

func TestIngestReturnsScalarSubsetOnly(t *testing.T) {
	store := newFakeStore()
	svc := NewSubmissionService(store)

	record, scalars, err := svc.Ingest(context.Background(), "u1", IngestRequest{
		Site: "shop.example",
		Fields: map[string]any{
			"email": "a@example.com",
			"age":   json.Number("42"),
			"langs": []any{"en", "fr"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"email": "a@example.com", "age": "42"}, scalars,
		"structured values never reach the indexing pipeline")

	// The store still received the structured value in JSON form.
	assert.Contains(t, store.lastValues, "langs")
	assert.JSONEq(t, `["en","fr"]`, store.lastValues["langs"])
	assert.Equal(t, []string{"a@example.com"}, record.Fields["email"])
}

func TestIngestAccumulatesAcrossSubmissions(t *testing.T) {
	store := newFakeStore()
	svc := NewSubmissionService(store)

	req := func(email string) IngestRequest {
		return IngestRequest{Site: "shop.example", Fields: map[string]any{"email": email}}
	}

	_, _, err := svc.Ingest(context.Background(), "u1", req("a@example.com"))
	require.NoError(t, err)
	record, _, err := svc.Ingest(context.Background(), "u1", req("b@example.com"))
	require.NoError(t, err)

	assert.Equal(t, []string{"a@example.com", "b@example.com"}, record.Fields["email"])

	// Resubmitting an observed value leaves the set unchanged.
	record, _, err = svc.Ingest(context.Background(), "u1", req("a@example.com"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, record.Fields["email"])
}
