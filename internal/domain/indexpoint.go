package domain

import "time"

// IndexPoint is one embedded field label stored in the similarity index.
// PointID is a deterministic function of (user_id, site, path, form_id, key)
// so re-ingesting the same field overwrites its entry instead of appending.
// The payload carries the most recently ingested scalar value for that key,
// independent of the accumulated set kept by the submission store.
type IndexPoint struct {
	PointID     string    `json:"point_id"     db:"point_id"`
	UserID      string    `json:"user_id"      db:"user_id"`
	Site        string    `json:"site"         db:"site"`
	Path        string    `json:"path"         db:"path"`
	FormID      *string   `json:"form_id"      db:"form_id"`
	OriginalKey string    `json:"original_key" db:"original_key"`
	Value       string    `json:"value"        db:"value"`
	Vector      []float32 `json:"-"            db:"vector"`
	UpdatedAt   time.Time `json:"updated_at"   db:"updated_at"`
}

// SuggestionHit is one ranked result from a similarity query.
type SuggestionHit struct {
	PointID     string  `json:"point_id"`
	Score       float64 `json:"score"`
	Value       string  `json:"value"`
	OriginalKey string  `json:"original_key"`
}

// AutofillScope narrows a similarity query beyond the mandatory user
// isolation. Supplied fields are conjunctive; zero values impose no
// constraint.
type AutofillScope struct {
	Site   string  `json:"site,omitempty"`
	Path   string  `json:"path,omitempty"`
	FormID *string `json:"form_id,omitempty"`
}
