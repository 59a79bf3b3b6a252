package analyzer

import (
	"strings"

	"vignette/internal/storyboard"
	"vignette/internal/transcript"
)

// Words that signal a topic shift or emphasis worth illustrating. Scanned
// case-insensitively against entry text.
var emphasisMarkers = []string{
	"imagine",
	"picture",
	"for example",
	"looks like",
	"called",
	"known as",
	"famous",
	"incredible",
	"amazing",
	"huge",
	"massive",
	"beautiful",
	"discovered",
	"invented",
	"built",
}

// HeuristicCues derives cue candidates without a model collaborator: one
// candidate per window, anchored at the window's most emphasized entry.
// Priority blends emphasis hits with entry length so denser speech wins when
// the budget cuts candidates.
func HeuristicCues(tr transcript.Transcript, windowSeconds int) []storyboard.Cue {
	if windowSeconds <= 0 {
		windowSeconds = 45
	}
	if tr.IsEmpty() {
		return nil
	}

	var cues []storyboard.Cue
	window := float64(windowSeconds)
	for start := 0.0; start < tr.DurationSeconds; start += window {
		end := start + window
		entries := tr.Window(start, end)
		if len(entries) == 0 {
			continue
		}

		best := entries[0]
		bestScore := scoreEntry(entries[0])
		for _, entry := range entries[1:] {
			if score := scoreEntry(entry); score > bestScore {
				best = entry
				bestScore = score
			}
		}
		if bestScore <= 0 {
			continue
		}

		query := queryFromText(best.Text)
		if query == "" {
			continue
		}
		cues = append(cues, storyboard.Cue{
			TimestampSeconds: best.StartSeconds,
			Query:            query,
			Priority:         bestScore,
		})
	}
	return cues
}

func scoreEntry(entry transcript.Entry) float64 {
	text := strings.ToLower(entry.Text)
	words := len(strings.Fields(text))
	if words < 4 {
		return 0
	}

	score := 0.0
	for _, marker := range emphasisMarkers {
		if strings.Contains(text, marker) {
			score += 0.3
		}
	}
	// Longer entries carry more content; cap the length contribution so
	// emphasis still dominates.
	lengthBonus := float64(words) / 100
	if lengthBonus > 0.2 {
		lengthBonus = 0.2
	}
	score += lengthBonus
	if score > 1 {
		score = 1
	}
	return score
}

func queryFromText(text string) string {
	words := strings.Fields(strings.TrimSpace(text))
	if len(words) == 0 {
		return ""
	}
	if len(words) > 8 {
		words = words[:8]
	}
	return strings.Join(words, " ")
}
