package storyboard

import (
	"sort"
	"time"
)

// Cue is a timestamp-anchored request for an illustrative visual.
type Cue struct {
	TimestampSeconds float64 `json:"timestamp_seconds"`
	Query            string  `json:"query"`
	Priority         float64 `json:"priority"`
}

// Budget enforces the per-job cue cap. When more than max cues are proposed,
// the top max by priority survive; the surviving set is re-sorted by
// timestamp because composition consumes cues in timeline order.
func Budget(cues []Cue, max int) []Cue {
	kept := make([]Cue, len(cues))
	copy(kept, cues)

	if max > 0 && len(kept) > max {
		sort.SliceStable(kept, func(i, j int) bool {
			if kept[i].Priority != kept[j].Priority {
				return kept[i].Priority > kept[j].Priority
			}
			return kept[i].TimestampSeconds < kept[j].TimestampSeconds
		})
		kept = kept[:max]
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].TimestampSeconds < kept[j].TimestampSeconds
	})
	return kept
}

// Source identifies where a candidate image came from.
type Source string

const (
	SourceSearch    Source = "search"
	SourceGenerated Source = "generated"
)

// MediaKind distinguishes still images from generated video clips.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaClip  MediaKind = "clip"
)

// CandidateImage is one visual resolved for a cue, scored for relevance to
// the cue's query text.
type CandidateImage struct {
	Cue            Cue       `json:"cue"`
	URL            string    `json:"url,omitempty"`
	LocalPath      string    `json:"local_path,omitempty"`
	Source         Source    `json:"source"`
	Kind           MediaKind `json:"kind"`
	RelevanceScore float64   `json:"relevance_score"`
	Description    string    `json:"description,omitempty"`
}

// SelectBest picks the winning candidate for one cue: highest relevance
// score, ties preferring generated over search, then earliest retrieval
// order. Returns false when no candidates were offered.
func SelectBest(candidates []CandidateImage) (CandidateImage, bool) {
	if len(candidates) == 0 {
		return CandidateImage{}, false
	}

	best := candidates[0]
	for _, candidate := range candidates[1:] {
		if candidate.RelevanceScore > best.RelevanceScore {
			best = candidate
			continue
		}
		if candidate.RelevanceScore == best.RelevanceScore &&
			candidate.Source == SourceGenerated && best.Source != SourceGenerated {
			best = candidate
		}
	}
	return best, true
}

// VideoArtifact describes the finished composition output.
type VideoArtifact struct {
	Path                 string    `json:"path"`
	Width                int       `json:"width"`
	Height               int       `json:"height"`
	FPS                  int       `json:"fps"`
	DurationSeconds      float64   `json:"duration_seconds"`
	TimelineSegmentCount int       `json:"timeline_segment_count"`
	FileSizeBytes        int64     `json:"file_size_bytes"`
	CreatedAt            time.Time `json:"created_at"`
}
