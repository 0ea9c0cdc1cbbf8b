package domain

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityNormalize(t *testing.T) {
	empty := ""
	form := "checkout"

	id := Identity{UserID: "u1", Site: "shop.example", Path: "", FormID: &empty}.Normalize()
	assert.Equal(t, DefaultPath, id.Path)
	assert.Nil(t, id.FormID, "empty-string form id should normalize to absent")

	id = Identity{UserID: "u1", Site: "shop.example", Path: "/checkout", FormID: &form}.Normalize()
	assert.Equal(t, "/checkout", id.Path)
	require.NotNil(t, id.FormID)
	assert.Equal(t, "checkout", *id.FormID)
}

func TestFieldSetsAdd(t *testing.T) {
	f := FieldSets{}

	assert.True(t, f.Add("email", "a@example.com"))
	assert.False(t, f.Add("email", "a@example.com"), "re-adding an existing value must be a no-op")
	assert.True(t, f.Add("email", "b@example.com"))

	assert.Equal(t, []string{"a@example.com", "b@example.com"}, f["email"],
		"insertion order is preserved")
}

func TestFieldSetsUnionAccumulates(t *testing.T) {
	f := FieldSets{"name": {"Ann"}}

	changed := f.Union(FieldSets{"name": {"Ann", "Annette"}, "phone": {"555"}})
	assert.True(t, changed)
	assert.Equal(t, []string{"Ann", "Annette"}, f["name"])
	assert.Equal(t, []string{"555"}, f["phone"])

	// Merging the same payload again changes nothing.
	changed = f.Union(FieldSets{"name": {"Ann", "Annette"}, "phone": {"555"}})
	assert.False(t, changed)
	assert.Equal(t, []string{"Ann", "Annette"}, f["name"])
	assert.Equal(t, []string{"555"}, f["phone"])
}

func TestFieldSetsCloneIsIndependent(t *testing.T) {
	f := FieldSets{"k": {"v1"}}
	c := f.Clone()
	c.Add("k", "v2")

	assert.Equal(t, []string{"v1"}, f["k"])
	assert.Equal(t, []string{"v1", "v2"}, c["k"])
}

func TestScalarFromJSON(t *testing.T) {
	s, ok := ScalarFromJSON("hello")
	require.True(t, ok)
	assert.Equal(t, Scalar{Kind: ScalarString, Text: "hello"}, s)

	s, ok = ScalarFromJSON(json.Number("42"))
	require.True(t, ok)
	assert.Equal(t, Scalar{Kind: ScalarNumber, Text: "42"}, s)

	s, ok = ScalarFromJSON(true)
	require.True(t, ok)
	assert.Equal(t, Scalar{Kind: ScalarBool, Text: "true"}, s)

	_, ok = ScalarFromJSON(nil)
	assert.False(t, ok, "null is not a scalar")
	_, ok = ScalarFromJSON([]any{"x"})
	assert.False(t, ok, "arrays are not scalars")
	_, ok = ScalarFromJSON(map[string]any{"x": 1})
	assert.False(t, ok, "objects are not scalars")
}

func TestScalarFieldsKeepsNumberText(t *testing.T) {
	// Decode the way the ingest handler does, with UseNumber, so large or
	// precise numbers keep their submitted text form.
	payload := []byte(`{"age": 42, "zip": "94107", "score": 3.50, "tags": ["a"], "note": null}`)
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var raw map[string]any
	require.NoError(t, dec.Decode(&raw))

	scalars := ScalarFields(raw)
	assert.Equal(t, map[string]string{
		"age":   "42",
		"zip":   "94107",
		"score": "3.50",
	}, scalars, "structured values and nulls are gated out")
}

func TestStringifyAllKeepsStructuredValues(t *testing.T) {
	raw := map[string]any{
		"email": "a@example.com",
		"langs": []any{"en", "fr"},
	}

	all := StringifyAll(raw)
	assert.Equal(t, "a@example.com", all["email"])
	assert.JSONEq(t, `["en","fr"]`, all["langs"],
		"structured values are stored in their JSON form")
}
