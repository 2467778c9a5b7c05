// Package segment maps search hits back to playable video time ranges.
package segment

import (
	"errors"
	"sort"

	"github.com/clipseek/clipseek/internal/models"
	"github.com/clipseek/clipseek/pkg/utils"
)

// ErrOutOfRange indicates a chunk that lies entirely outside the video's
// duration, leaving no playable range after clamping.
var ErrOutOfRange = errors.New("segment outside video duration")

// Segment is a playable time range within a video.
type Segment struct {
	VideoID string  `json:"video_id"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
}

// Locate converts a search hit into a playable range: the chunk's time span
// padded by padSeconds on both sides, then clamped to [0, videoDuration].
// When videoDuration is zero or negative the duration is unknown and only the
// lower bound is clamped.
func Locate(result *models.SearchResult, padSeconds, videoDuration float64) (Segment, error) {
	start := result.Start - padSeconds
	end := result.End + padSeconds

	if videoDuration > 0 {
		start = utils.Clamp(start, 0, videoDuration)
		end = utils.Clamp(end, 0, videoDuration)
	} else {
		if start < 0 {
			start = 0
		}
		if end < 0 {
			end = 0
		}
	}
	if end <= start {
		return Segment{}, ErrOutOfRange
	}
	return Segment{VideoID: result.VideoID, Start: start, End: end}, nil
}

// Merge collapses overlapping or touching segments of the same video into
// single ranges. The result is ordered by video ID, then start time.
func Merge(segments []Segment) []Segment {
	if len(segments) == 0 {
		return nil
	}
	sorted := make([]Segment, len(segments))
	copy(sorted, segments)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].VideoID != sorted[j].VideoID {
			return sorted[i].VideoID < sorted[j].VideoID
		}
		return sorted[i].Start < sorted[j].Start
	})

	merged := []Segment{sorted[0]}
	for _, seg := range sorted[1:] {
		last := &merged[len(merged)-1]
		if seg.VideoID == last.VideoID && seg.Start <= last.End {
			if seg.End > last.End {
				last.End = seg.End
			}
			continue
		}
		merged = append(merged, seg)
	}
	return merged
}
