package retrieval

import (
	"sort"
	"strconv"

	"github.com/clipseek/clipseek/internal/keyword"
	"github.com/clipseek/clipseek/internal/models"
)

// NormalizeKeywordScores normalizes keyword scores to [0,1] by max and keys
// them by entry ID.
func NormalizeKeywordScores(results []*keyword.Result) map[int64]float64 {
	normalized := make(map[int64]float64)
	if len(results) == 0 {
		return normalized
	}
	maxScore := results[0].Score
	for _, r := range results {
		if r.Score > maxScore {
			maxScore = r.Score
		}
	}
	for _, r := range results {
		id, err := strconv.ParseInt(r.ID, 10, 64)
		if err != nil {
			continue
		}
		if maxScore > 0 {
			normalized[id] = r.Score / maxScore
		} else {
			normalized[id] = 0
		}
	}
	return normalized
}

// Fuse blends normalized keyword scores into semantic results with weighted
// sums and re-sorts. Keyword hits outside the semantic result set are ignored;
// the vector index is the authority on which chunks exist.
func Fuse(semantic []*models.SearchResult, keywordScores map[int64]float64, keywordWeight, semanticWeight float64) []*models.SearchResult {
	for _, r := range semantic {
		ks := keywordScores[r.EntryID]
		r.KeywordScore = ks
		r.Score = (semanticWeight * r.Score) + (keywordWeight * ks)
	}
	sort.SliceStable(semantic, func(i, j int) bool {
		if semantic[i].Score != semantic[j].Score {
			return semantic[i].Score > semantic[j].Score
		}
		return semantic[i].EntryID < semantic[j].EntryID
	})
	return semantic
}
