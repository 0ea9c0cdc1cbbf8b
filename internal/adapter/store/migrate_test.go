package store

import (
	"testing"

	"github.com/arturoeanton/go-semantic-autofill/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeFieldDocScalarsBecomeSets(t *testing.T) {
	doc := map[string]any{
		"email": "a@example.com",
		"age":   float64(42),
		"ok":    true,
	}

	out, changed := normalizeFieldDoc(doc)
	assert.True(t, changed)
	assert.Equal(t, domain.FieldSets{
		"email": {"a@example.com"},
		"age":   {"42"},
		"ok":    {"true"},
	}, out)
}

func TestNormalizeFieldDocCanonicalIsUnchanged(t *testing.T) {
	doc := map[string]any{
		"email": []any{"a@example.com", "b@example.com"},
	}

	out, changed := normalizeFieldDoc(doc)
	assert.False(t, changed, "already-canonical documents must not be rewritten")
	assert.Equal(t, domain.FieldSets{"email": {"a@example.com", "b@example.com"}}, out)
}

func TestNormalizeFieldDocMixedArrayMembers(t *testing.T) {
	doc := map[string]any{
		"vals": []any{"text", float64(7)},
	}

	out, changed := normalizeFieldDoc(doc)
	assert.True(t, changed)
	assert.Equal(t, domain.FieldSets{"vals": {"text", "7"}}, out)
}

func TestNormalizeFieldDocStructuredLegacyValue(t *testing.T) {
	doc := map[string]any{
		"address": map[string]any{"city": "Lyon"},
	}

	out, changed := normalizeFieldDoc(doc)
	assert.True(t, changed)
	require.Len(t, out["address"], 1)
	assert.JSONEq(t, `{"city":"Lyon"}`, out["address"][0])
}

func TestCollapseDuplicatesUnionsGroups(t *testing.T) {
	records := []submissionRow{
		{ID: "b", UserID: "u1", Site: "shop.example", Path: "/", Fields: domain.FieldSets{"email": {"b@example.com"}}},
		{ID: "a", UserID: "u1", Site: "shop.example", Path: "/", Fields: domain.FieldSets{"email": {"a@example.com"}}},
		{ID: "c", UserID: "u1", Site: "other.example", Path: "/", Fields: domain.FieldSets{"email": {"c@example.com"}}},
	}

	survivors, discarded := collapseDuplicates(records)

	require.Len(t, survivors, 1)
	assert.Equal(t, "a", survivors[0].ID, "lowest id in the group survives")
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, survivors[0].Fields["email"],
		"discarded records' values fold into the survivor")
	assert.Equal(t, []string{"b"}, discarded)
}

func TestCollapseDuplicatesSingletonsUntouched(t *testing.T) {
	records := []submissionRow{
		{ID: "a", UserID: "u1", Site: "shop.example", Path: "/", Fields: domain.FieldSets{"k": {"v"}}},
		{ID: "b", UserID: "u2", Site: "shop.example", Path: "/", Fields: domain.FieldSets{"k": {"v"}}},
	}

	survivors, discarded := collapseDuplicates(records)
	assert.Empty(t, survivors)
	assert.Empty(t, discarded)
}

func TestCollapseDuplicatesFormIDSeparatesGroups(t *testing.T) {
	form := "checkout"
	records := []submissionRow{
		{ID: "a", UserID: "u1", Site: "s", Path: "/", Fields: domain.FieldSets{"k": {"v1"}}},
		{ID: "b", UserID: "u1", Site: "s", Path: "/", FormID: &form, Fields: domain.FieldSets{"k": {"v2"}}},
	}

	survivors, discarded := collapseDuplicates(records)
	assert.Empty(t, survivors, "records differing only in form id are distinct identities")
	assert.Empty(t, discarded)
}

func TestCollapseDuplicatesDoesNotMutateInput(t *testing.T) {
	records := []submissionRow{
		{ID: "a", UserID: "u1", Site: "s", Path: "/", Fields: domain.FieldSets{"k": {"v1"}}},
		{ID: "b", UserID: "u1", Site: "s", Path: "/", Fields: domain.FieldSets{"k": {"v2"}}},
	}

	_, _ = collapseDuplicates(records)
	assert.Equal(t, domain.FieldSets{"k": {"v1"}}, records[0].Fields,
		"survivor fields are cloned before union")
}
