package storyboard

import (
	"fmt"
	"sort"
)

// TimelineSegment maps a time range to exactly one visual for composition.
// An empty VisualPath means the interval renders the fallback background.
type TimelineSegment struct {
	StartSeconds float64   `json:"start_seconds"`
	EndSeconds   float64   `json:"end_seconds"`
	VisualPath   string    `json:"visual_path,omitempty"`
	Kind         MediaKind `json:"kind,omitempty"`
}

// BuildTimeline turns resolved visuals into the ordered segment sequence the
// encoder consumes. Each visual's cue timestamp is a cut point; the interval
// opened by a cut point shows that visual until the next cut point or the end
// of the audio. The lead-in before the first cue shows the first visual so
// the full duration [0, D) is covered with no gaps and no overlaps. With no
// visuals at all the whole duration renders the fallback background.
func BuildTimeline(visuals []CandidateImage, durationSeconds float64) ([]TimelineSegment, error) {
	if durationSeconds <= 0 {
		return nil, fmt.Errorf("audio duration must be positive, got %g", durationSeconds)
	}

	if len(visuals) == 0 {
		return []TimelineSegment{{StartSeconds: 0, EndSeconds: durationSeconds}}, nil
	}

	ordered := make([]CandidateImage, len(visuals))
	copy(ordered, visuals)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Cue.TimestampSeconds < ordered[j].Cue.TimestampSeconds
	})

	var segments []TimelineSegment
	appendSegment := func(start, end float64, visual CandidateImage) {
		if end <= start {
			return
		}
		segments = append(segments, TimelineSegment{
			StartSeconds: start,
			EndSeconds:   end,
			VisualPath:   visual.LocalPath,
			Kind:         visual.Kind,
		})
	}

	// Cut points outside [0, D] are clamped so the timeline always covers
	// exactly [0, D), even for cues timestamped past the audio end.
	clamp := func(v float64) float64 {
		if v < 0 {
			return 0
		}
		if v > durationSeconds {
			return durationSeconds
		}
		return v
	}

	// Lead-in before the first cue falls back to the first visual.
	appendSegment(0, clamp(ordered[0].Cue.TimestampSeconds), ordered[0])

	for i, visual := range ordered {
		start := clamp(visual.Cue.TimestampSeconds)
		end := durationSeconds
		if i+1 < len(ordered) {
			end = clamp(ordered[i+1].Cue.TimestampSeconds)
		}
		appendSegment(start, end, visual)
	}

	return segments, nil
}
