package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arturoeanton/go-semantic-autofill/internal/domain"
	"github.com/arturoeanton/go-semantic-autofill/internal/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// selectiveEmbedder fails only for the configured texts.
type selectiveEmbedder struct {
	fakeEmbedder
	failOn map[string]bool
}

func (s *selectiveEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if s.failOn[text] {
		return nil, errors.New("embed backend unreachable")
	}
	return s.fakeEmbedder.Embed(ctx, text)
}

func readyIndexWithHits(hits []domain.SuggestionHit) *fakeIndex {
	return &fakeIndex{
		ready: true,
		hits:  map[string][]domain.SuggestionHit{"*": hits},
	}
}

func TestAutofillValidation(t *testing.T) {
	svc := NewAutofillService(&fakeEmbedder{}, readyIndexWithHits(nil), time.Second)

	_, err := svc.Autofill(context.Background(), "", AutofillRequest{Keys: []string{"email"}})
	assert.ErrorIs(t, err, port.ErrValidation)

	_, err = svc.Autofill(context.Background(), "u1", AutofillRequest{})
	assert.ErrorIs(t, err, port.ErrValidation)

	_, err = svc.Autofill(context.Background(), "u1", AutofillRequest{Keys: []string{"email"}, Threshold: 1.5})
	assert.ErrorIs(t, err, port.ErrValidation)
}

func TestAutofillThresholdCut(t *testing.T) {
	index := readyIndexWithHits([]domain.SuggestionHit{
		{Score: 0.92, Value: "a@example.com"},
		{Score: 0.81, Value: "b@example.com"},
		{Score: 0.50, Value: "c@example.com"},
	})
	svc := NewAutofillService(&fakeEmbedder{}, index, time.Second)

	results, err := svc.Autofill(context.Background(), "u1", AutofillRequest{
		Keys:      []string{"email"},
		Threshold: 0.8,
	})
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", results["email"],
		"single mode returns the best surviving value")

	results, err = svc.Autofill(context.Background(), "u1", AutofillRequest{
		Keys:      []string{"email"},
		Threshold: 0.8,
		Multiple:  true,
		Limit:     10,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, results["email"],
		"multiple mode returns every hit above the threshold, best first")
}

func TestAutofillNoHitAboveThreshold(t *testing.T) {
	index := readyIndexWithHits([]domain.SuggestionHit{{Score: 0.4, Value: "x"}})
	svc := NewAutofillService(&fakeEmbedder{}, index, time.Second)

	results, err := svc.Autofill(context.Background(), "u1", AutofillRequest{
		Keys:      []string{"email"},
		Threshold: 0.8,
	})
	require.NoError(t, err)
	assert.Nil(t, results["email"])

	results, err = svc.Autofill(context.Background(), "u1", AutofillRequest{
		Keys:      []string{"email"},
		Threshold: 0.8,
		Multiple:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{}, results["email"],
		"multiple mode degrades to an empty list, not null")
}

func TestAutofillMultipleRespectsLimit(t *testing.T) {
	index := readyIndexWithHits([]domain.SuggestionHit{
		{Score: 0.95, Value: "v1"},
		{Score: 0.94, Value: "v2"},
		{Score: 0.93, Value: "v3"},
	})
	svc := NewAutofillService(&fakeEmbedder{}, index, time.Second)

	results, err := svc.Autofill(context.Background(), "u1", AutofillRequest{
		Keys:     []string{"email"},
		Multiple: true,
		Limit:    2,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"v1", "v2"}, results["email"])
}

func TestAutofillIndexNotReady(t *testing.T) {
	index := &fakeIndex{ready: false}
	svc := NewAutofillService(&fakeEmbedder{}, index, time.Second)

	results, err := svc.Autofill(context.Background(), "u1", AutofillRequest{
		Keys: []string{"email", "name"},
	})
	require.NoError(t, err, "a missing index is the valid empty state, not a failure")
	assert.Len(t, results, 2)
	assert.Nil(t, results["email"])
	assert.Nil(t, results["name"])
}

func TestAutofillIndexUnreachable(t *testing.T) {
	index := &fakeIndex{readyErr: errors.New("pg down")}
	svc := NewAutofillService(&fakeEmbedder{}, index, time.Second)

	results, err := svc.Autofill(context.Background(), "u1", AutofillRequest{
		Keys: []string{"email"},
	})
	require.NoError(t, err)
	assert.Nil(t, results["email"])
}

func TestAutofillKeyFailureIsIsolated(t *testing.T) {
	index := readyIndexWithHits([]domain.SuggestionHit{{Score: 0.9, Value: "a@example.com"}})
	embedder := &selectiveEmbedder{failOn: map[string]bool{"phone": true}}
	svc := NewAutofillService(embedder, index, time.Second)

	results, err := svc.Autofill(context.Background(), "u1", AutofillRequest{
		Keys:      []string{"email", "phone"},
		Threshold: 0.8,
	})
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", results["email"])
	assert.Nil(t, results["phone"], "one key's failure never aborts the others")
}

func TestAutofillScopePropagates(t *testing.T) {
	index := readyIndexWithHits(nil)
	svc := NewAutofillService(&fakeEmbedder{}, index, time.Second)

	form := "checkout"
	_, err := svc.Autofill(context.Background(), "u1", AutofillRequest{
		Keys: []string{"email"},
		Scope: domain.AutofillScope{
			Site:   "shop.example",
			Path:   "/checkout",
			FormID: &form,
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "u1", index.lastFilter.UserID)
	assert.Equal(t, "shop.example", index.lastFilter.Site)
	assert.Equal(t, "/checkout", index.lastFilter.Path)
	require.NotNil(t, index.lastFilter.FormID)
	assert.Equal(t, "checkout", *index.lastFilter.FormID)
}
