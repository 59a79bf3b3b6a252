package transcript

import (
	"fmt"
	"strings"
)

// Segment is a contiguous [start,end) slice of the source audio, in seconds.
type Segment struct {
	Index        int     `json:"index"`
	StartSeconds float64 `json:"start_seconds"`
	EndSeconds   float64 `json:"end_seconds"`
}

// Duration returns the segment length in seconds.
func (s Segment) Duration() float64 {
	return s.EndSeconds - s.StartSeconds
}

// Split partitions a source duration into contiguous segments of at most
// budgetSeconds each. The segments are non-overlapping, ordered, and cover
// [0, duration) exactly once; the final segment absorbs the remainder.
func Split(durationSeconds float64, budgetSeconds int) ([]Segment, error) {
	if durationSeconds <= 0 {
		return nil, fmt.Errorf("audio duration must be positive, got %g", durationSeconds)
	}
	if budgetSeconds <= 0 {
		return nil, fmt.Errorf("segment budget must be positive, got %d", budgetSeconds)
	}

	budget := float64(budgetSeconds)
	var segments []Segment
	for start := 0.0; start < durationSeconds; start += budget {
		end := start + budget
		if end > durationSeconds {
			end = durationSeconds
		}
		segments = append(segments, Segment{
			Index:        len(segments),
			StartSeconds: start,
			EndSeconds:   end,
		})
	}
	return segments, nil
}

// Entry is one timestamped span of transcribed speech on the global timeline.
type Entry struct {
	StartSeconds float64 `json:"start_seconds"`
	EndSeconds   float64 `json:"end_seconds"`
	Text         string  `json:"text"`
}

// Transcript is the merged, globally-aligned transcript for one job.
type Transcript struct {
	DurationSeconds float64 `json:"duration_seconds"`
	Entries         []Entry `json:"entries"`
}

// Merge concatenates per-segment transcription results into one transcript,
// rebasing each segment's entry timestamps from segment-local offsets to
// global offsets. Entries keep segment order, so a collaborator that emits
// entries in non-decreasing start order per segment yields a globally ordered
// transcript.
func Merge(segments []Segment, parts [][]Entry) (Transcript, error) {
	if len(segments) != len(parts) {
		return Transcript{}, fmt.Errorf("segment count %d does not match transcript part count %d", len(segments), len(parts))
	}

	merged := Transcript{}
	for i, segment := range segments {
		if segment.EndSeconds > merged.DurationSeconds {
			merged.DurationSeconds = segment.EndSeconds
		}
		for _, entry := range parts[i] {
			merged.Entries = append(merged.Entries, Entry{
				StartSeconds: entry.StartSeconds + segment.StartSeconds,
				EndSeconds:   entry.EndSeconds + segment.StartSeconds,
				Text:         entry.Text,
			})
		}
	}
	return merged, nil
}

// IsEmpty reports whether the transcript carries no usable text.
func (t Transcript) IsEmpty() bool {
	for _, entry := range t.Entries {
		if strings.TrimSpace(entry.Text) != "" {
			return false
		}
	}
	return true
}

// FullText joins all entry text into one space-separated string.
func (t Transcript) FullText() string {
	parts := make([]string, 0, len(t.Entries))
	for _, entry := range t.Entries {
		if text := strings.TrimSpace(entry.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// Window returns the entries overlapping the [start,end) time range.
func (t Transcript) Window(startSeconds, endSeconds float64) []Entry {
	var window []Entry
	for _, entry := range t.Entries {
		if entry.EndSeconds <= startSeconds || entry.StartSeconds >= endSeconds {
			continue
		}
		window = append(window, entry)
	}
	return window
}
