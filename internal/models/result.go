package models

// SearchResult is a single search hit: an indexed chunk with its similarity score.
// Result sets are sorted by descending score, ties broken by ascending entry ID.
type SearchResult struct {
	EntryID    int64   `json:"entry_id"`
	Score      float64 `json:"score"`
	VideoID    string  `json:"video_id"`
	ChunkIndex int     `json:"chunk_index"`
	Text       string  `json:"text"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	// KeywordScore is the normalized keyword contribution when hybrid search ran.
	KeywordScore float64 `json:"keyword_score,omitempty"`
}

// SearchResponse is the response for a search request.
type SearchResponse struct {
	Results   []*SearchResult `json:"results"`
	Total     int             `json:"total"`
	QueryTime int64           `json:"query_time_ms"`
	Query     string          `json:"query"`
}
