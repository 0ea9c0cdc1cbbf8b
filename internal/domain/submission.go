package domain

import (
	"encoding/json"
	"strconv"
	"time"
)

// Identity is the composite key addressing one logical form instance.
// FormID is optional: a nil FormID is a distinct, stable value and is not
// equivalent to an empty string.
type Identity struct {
	UserID string  `json:"user_id"`
	Site   string  `json:"site"`
	Path   string  `json:"path"`
	FormID *string `json:"form_id"`
}

// DefaultPath is used when a submission arrives without a page path.
const DefaultPath = "/"

// Normalize applies the canonical identity defaults: empty path becomes
// DefaultPath and an empty-string form id becomes absent (nil).
func (id Identity) Normalize() Identity {
	if id.Path == "" {
		id.Path = DefaultPath
	}
	if id.FormID != nil && *id.FormID == "" {
		id.FormID = nil
	}
	return id
}

// FieldSets maps a field label to the set of distinct observed string values.
// Insertion order is preserved for display stability.
type FieldSets map[string][]string

// Add appends value to the set for key if not already present.
// Returns true when the set changed.
func (f FieldSets) Add(key, value string) bool {
	for _, v := range f[key] {
		if v == value {
			return false
		}
	}
	f[key] = append(f[key], value)
	return true
}

// Union folds every value of other into f, preserving existing members and
// their order. Returns true when anything changed.
func (f FieldSets) Union(other FieldSets) bool {
	changed := false
	for key, values := range other {
		for _, v := range values {
			if f.Add(key, v) {
				changed = true
			}
		}
	}
	return changed
}

// Clone returns a deep copy of the field sets.
func (f FieldSets) Clone() FieldSets {
	out := make(FieldSets, len(f))
	for key, values := range f {
		out[key] = append([]string(nil), values...)
	}
	return out
}

// SubmissionRecord is the deduplicated, append-only record for one identity.
type SubmissionRecord struct {
	ID        string    `json:"id"         db:"id"`
	UserID    string    `json:"user_id"    db:"user_id"`
	Site      string    `json:"site"       db:"site"`
	Path      string    `json:"path"       db:"path"`
	FormID    *string   `json:"form_id"    db:"form_id"`
	Fields    FieldSets `json:"fields"     db:"fields"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Identity returns the record's composite identity.
func (r *SubmissionRecord) Identity() Identity {
	return Identity{UserID: r.UserID, Site: r.Site, Path: r.Path, FormID: r.FormID}
}

// SubmissionSummary is the listing projection: identity plus timestamp,
// without the field payload.
type SubmissionSummary struct {
	ID        string    `json:"id"         db:"id"`
	UserID    string    `json:"user_id"    db:"user_id"`
	Site      string    `json:"site"       db:"site"`
	Path      string    `json:"path"       db:"path"`
	FormID    *string   `json:"form_id"    db:"form_id"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ScalarKind enumerates the JSON scalar types accepted at the ingestion boundary.
type ScalarKind int

const (
	ScalarString ScalarKind = iota
	ScalarNumber
	ScalarBool
)

// Scalar is a form field value coerced to its string representation at
// ingest time. Original type information is not retained beyond Kind.
type Scalar struct {
	Kind ScalarKind
	Text string
}

// ScalarFromJSON classifies a decoded JSON value. Structured values
// (arrays, objects) and nulls are rejected, not coerced.
func ScalarFromJSON(v any) (Scalar, bool) {
	switch t := v.(type) {
	case string:
		return Scalar{Kind: ScalarString, Text: t}, true
	case json.Number:
		return Scalar{Kind: ScalarNumber, Text: t.String()}, true
	case float64:
		// Reached only when the decoder was not configured with UseNumber.
		return Scalar{Kind: ScalarNumber, Text: strconv.FormatFloat(t, 'f', -1, 64)}, true
	case bool:
		return Scalar{Kind: ScalarBool, Text: strconv.FormatBool(t)}, true
	default:
		return Scalar{}, false
	}
}

// ScalarFields filters a raw submission payload down to its scalar entries,
// each coerced to a string. Non-scalar entries are dropped. This is the
// type gate for indexing: structured values never reach the similarity
// index.
func ScalarFields(raw map[string]any) map[string]string {
	out := make(map[string]string, len(raw))
	for key, v := range raw {
		if s, ok := ScalarFromJSON(v); ok {
			out[key] = s.Text
		}
	}
	return out
}

// StringifyAll coerces every entry of a raw submission payload to a string.
// Scalars use their canonical text form; structured values keep their JSON
// encoding so they still accumulate in the submission store even though
// they are excluded from indexing.
func StringifyAll(raw map[string]any) map[string]string {
	out := make(map[string]string, len(raw))
	for key, v := range raw {
		if s, ok := ScalarFromJSON(v); ok {
			out[key] = s.Text
			continue
		}
		encoded, err := json.Marshal(v)
		if err != nil {
			continue
		}
		out[key] = string(encoded)
	}
	return out
}
