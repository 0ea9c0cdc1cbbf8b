package service

import (
	"context"
	"errors"
	"testing"

	"github.com/arturoeanton/go-semantic-autofill/internal/domain"
	"github.com/arturoeanton/go-semantic-autofill/internal/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbedder returns a fixed unit vector per text and records its calls.
type fakeEmbedder struct {
	batchCalls [][]string
	embedCalls []string
	err        error
}

func (f *fakeEmbedder) ModelName() string { return "fake-embed" }

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.embedCalls = append(f.embedCalls, text)
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0, 0}, nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.batchCalls = append(f.batchCalls, texts)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

// fakeIndex records upserts and serves canned query hits.
type fakeIndex struct {
	points     []domain.IndexPoint
	hits       map[string][]domain.SuggestionHit // by original key of query text
	lastFilter port.IndexFilter
	ready      bool
	ensureErr  error
	readyErr   error
	upsertErr  error
	queryErr   error
}

func (f *fakeIndex) EnsureReady(context.Context) error { return f.ensureErr }

func (f *fakeIndex) Ready(context.Context) (bool, error) { return f.ready, f.readyErr }

func (f *fakeIndex) Upsert(_ context.Context, points []domain.IndexPoint) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.points = append(f.points, points...)
	return nil
}

func (f *fakeIndex) Query(_ context.Context, _ []float32, filter port.IndexFilter, _ int) ([]domain.SuggestionHit, error) {
	f.lastFilter = filter
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.hits["*"], nil
}

func testIdentity() domain.Identity {
	return domain.Identity{UserID: "u1", Site: "shop.example", Path: "/checkout"}
}

func TestIndexUpsertsOnePointPerKey(t *testing.T) {
	embedder := &fakeEmbedder{}
	index := &fakeIndex{}
	svc := NewIndexingService(embedder, index)

	err := svc.Index(context.Background(), testIdentity(), map[string]string{
		"email": "a@example.com",
		"name":  "Ann",
	})
	require.NoError(t, err)

	require.Len(t, index.points, 2)
	require.Len(t, embedder.batchCalls, 1)
	assert.Equal(t, []string{"email", "name"}, embedder.batchCalls[0],
		"labels are embedded in sorted order")

	byKey := map[string]domain.IndexPoint{}
	for _, p := range index.points {
		byKey[p.OriginalKey] = p
	}
	assert.Equal(t, "a@example.com", byKey["email"].Value)
	assert.Equal(t, PointID(testIdentity(), "email"), byKey["email"].PointID)
	assert.Equal(t, "u1", byKey["email"].UserID)
}

func TestIndexEmptyValuesIsNoop(t *testing.T) {
	embedder := &fakeEmbedder{}
	index := &fakeIndex{}
	svc := NewIndexingService(embedder, index)

	require.NoError(t, svc.Index(context.Background(), testIdentity(), nil))
	assert.Empty(t, embedder.batchCalls)
	assert.Empty(t, index.points)
}

func TestIndexReingestOverwritesSamePoint(t *testing.T) {
	embedder := &fakeEmbedder{}
	index := &fakeIndex{}
	svc := NewIndexingService(embedder, index)

	require.NoError(t, svc.Index(context.Background(), testIdentity(), map[string]string{"email": "old@example.com"}))
	require.NoError(t, svc.Index(context.Background(), testIdentity(), map[string]string{"email": "new@example.com"}))

	require.Len(t, index.points, 2)
	assert.Equal(t, index.points[0].PointID, index.points[1].PointID,
		"the same identity and key always map to the same point id")
	assert.Equal(t, "new@example.com", index.points[1].Value)
}

func TestIndexDependencyFailuresAreTyped(t *testing.T) {
	embedder := &fakeEmbedder{err: errors.New("ollama down")}
	index := &fakeIndex{}
	svc := NewIndexingService(embedder, index)

	err := svc.Index(context.Background(), testIdentity(), map[string]string{"email": "a@example.com"})
	assert.ErrorIs(t, err, port.ErrDependencyUnavailable)

	index.ensureErr = errors.New("pg down")
	err = svc.Index(context.Background(), testIdentity(), map[string]string{"email": "a@example.com"})
	assert.ErrorIs(t, err, port.ErrDependencyUnavailable)
}

func TestPointIDDeterministic(t *testing.T) {
	id := testIdentity()
	assert.Equal(t, PointID(id, "email"), PointID(id, "email"))
	assert.NotEqual(t, PointID(id, "email"), PointID(id, "name"))

	other := id
	other.Site = "other.example"
	assert.NotEqual(t, PointID(id, "email"), PointID(other, "email"))
}

func TestPointIDDistinguishesAbsentFormID(t *testing.T) {
	withNil := testIdentity()

	empty := ""
	withEmpty := testIdentity()
	withEmpty.FormID = &empty

	form := "checkout"
	withForm := testIdentity()
	withForm.FormID = &form

	assert.NotEqual(t, PointID(withNil, "email"), PointID(withEmpty, "email"),
		"nil form id and empty-string form id must hash differently")
	assert.NotEqual(t, PointID(withNil, "email"), PointID(withForm, "email"))
}

func TestPointIDResistsConcatenationCollisions(t *testing.T) {
	a := domain.Identity{UserID: "ab", Site: "c", Path: "/"}
	b := domain.Identity{UserID: "a", Site: "bc", Path: "/"}
	assert.NotEqual(t, PointID(a, "k"), PointID(b, "k"))
}
