package models

// SearchQuery represents a semantic search request.
type SearchQuery struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
	// VideoID restricts results to a single video when set.
	VideoID string `json:"video_id,omitempty"`
	// MinScore drops results scoring below it. Zero means use the configured default.
	MinScore float64 `json:"min_score,omitempty"`
	// KeywordEnabled turns on the hybrid keyword pass; semantic search always runs.
	KeywordEnabled bool `json:"keyword_enabled,omitempty"`
	// PadSeconds overrides the configured segment padding for located ranges.
	PadSeconds *float64 `json:"pad_seconds,omitempty"`
}

// Normalize applies defaults and caps to the query in place.
// It does not validate the query text; blank queries are rejected by the
// retrieval service before any embedding call.
func (q *SearchQuery) Normalize(defaultTopK, maxTopK int) {
	if q.TopK <= 0 {
		q.TopK = defaultTopK
	}
	if maxTopK > 0 && q.TopK > maxTopK {
		q.TopK = maxTopK
	}
}
