package storyboard_test

import (
	"fmt"
	"testing"

	"vignette/internal/storyboard"
)

func TestBudgetKeepsTopPriorityInTimestampOrder(t *testing.T) {
	var cues []storyboard.Cue
	for i := 0; i < 30; i++ {
		cues = append(cues, storyboard.Cue{
			TimestampSeconds: float64(30 - i),
			Query:            fmt.Sprintf("cue-%d", i),
			Priority:         float64(i),
		})
	}

	kept := storyboard.Budget(cues, 15)
	if len(kept) != 15 {
		t.Fatalf("expected 15 cues, got %d", len(kept))
	}
	for i := 1; i < len(kept); i++ {
		if kept[i].TimestampSeconds < kept[i-1].TimestampSeconds {
			t.Fatalf("budgeted cues out of timestamp order at %d", i)
		}
	}
	// The 15 highest priorities are 15..29.
	for _, cue := range kept {
		if cue.Priority < 15 {
			t.Fatalf("low-priority cue survived the budget: %#v", cue)
		}
	}
}

func TestBudgetUnderLimitOnlySorts(t *testing.T) {
	cues := []storyboard.Cue{
		{TimestampSeconds: 20, Priority: 1},
		{TimestampSeconds: 5, Priority: 9},
	}
	kept := storyboard.Budget(cues, 15)
	if len(kept) != 2 {
		t.Fatalf("expected both cues kept, got %d", len(kept))
	}
	if kept[0].TimestampSeconds != 5 {
		t.Fatalf("expected timestamp order, got %#v", kept)
	}
}

func TestSelectBestPrefersHighestScore(t *testing.T) {
	best, ok := storyboard.SelectBest([]storyboard.CandidateImage{
		{Source: storyboard.SourceSearch, RelevanceScore: 0.4, Description: "a"},
		{Source: storyboard.SourceSearch, RelevanceScore: 0.9, Description: "b"},
		{Source: storyboard.SourceGenerated, RelevanceScore: 0.7, Description: "c"},
	})
	if !ok || best.Description != "b" {
		t.Fatalf("unexpected winner: %#v", best)
	}
}

func TestSelectBestTiePrefersGenerated(t *testing.T) {
	best, ok := storyboard.SelectBest([]storyboard.CandidateImage{
		{Source: storyboard.SourceSearch, RelevanceScore: 0.8, Description: "search"},
		{Source: storyboard.SourceGenerated, RelevanceScore: 0.8, Description: "generated"},
	})
	if !ok || best.Source != storyboard.SourceGenerated {
		t.Fatalf("tie must prefer generated: %#v", best)
	}
}

func TestSelectBestTieWithinSourceKeepsEarliest(t *testing.T) {
	best, ok := storyboard.SelectBest([]storyboard.CandidateImage{
		{Source: storyboard.SourceSearch, RelevanceScore: 0.5, Description: "first"},
		{Source: storyboard.SourceSearch, RelevanceScore: 0.5, Description: "second"},
	})
	if !ok || best.Description != "first" {
		t.Fatalf("tie within source must keep retrieval order: %#v", best)
	}
}

func TestSelectBestEmpty(t *testing.T) {
	if _, ok := storyboard.SelectBest(nil); ok {
		t.Fatal("expected no winner for empty candidates")
	}
}

func TestBuildTimelineCoversDuration(t *testing.T) {
	visuals := []storyboard.CandidateImage{
		{Cue: storyboard.Cue{TimestampSeconds: 40}, LocalPath: "b.jpg"},
		{Cue: storyboard.Cue{TimestampSeconds: 10}, LocalPath: "a.jpg"},
		{Cue: storyboard.Cue{TimestampSeconds: 70}, LocalPath: "c.jpg"},
	}

	timeline, err := storyboard.BuildTimeline(visuals, 100)
	if err != nil {
		t.Fatalf("BuildTimeline failed: %v", err)
	}
	if len(timeline) != 4 {
		t.Fatalf("expected lead-in plus three intervals, got %d", len(timeline))
	}
	if timeline[0].StartSeconds != 0 || timeline[0].VisualPath != "a.jpg" {
		t.Fatalf("lead-in must show the first visual: %#v", timeline[0])
	}
	if timeline[0].EndSeconds != 10 {
		t.Fatalf("lead-in must end at first cue: %#v", timeline[0])
	}
	for i := 1; i < len(timeline); i++ {
		if timeline[i].StartSeconds != timeline[i-1].EndSeconds {
			t.Fatalf("gap or overlap between segments %d and %d", i-1, i)
		}
	}
	last := timeline[len(timeline)-1]
	if last.EndSeconds != 100 || last.VisualPath != "c.jpg" {
		t.Fatalf("last segment must run to the end of audio: %#v", last)
	}
}

func TestBuildTimelineClampsCuesPastAudioEnd(t *testing.T) {
	visuals := []storyboard.CandidateImage{
		{Cue: storyboard.Cue{TimestampSeconds: 30}, LocalPath: "a.jpg"},
		{Cue: storyboard.Cue{TimestampSeconds: 120}, LocalPath: "late.jpg"},
	}

	timeline, err := storyboard.BuildTimeline(visuals, 100)
	if err != nil {
		t.Fatalf("BuildTimeline failed: %v", err)
	}
	if len(timeline) != 2 {
		t.Fatalf("cue past the audio end must not open an interval, got %d segments", len(timeline))
	}
	if timeline[0].StartSeconds != 0 || timeline[0].EndSeconds != 30 {
		t.Fatalf("unexpected lead-in: %#v", timeline[0])
	}
	last := timeline[len(timeline)-1]
	if last.EndSeconds != 100 || last.VisualPath != "a.jpg" {
		t.Fatalf("timeline must end exactly at the audio duration: %#v", last)
	}

	// A lone out-of-range cue still covers [0, D) via the lead-in.
	timeline, err = storyboard.BuildTimeline([]storyboard.CandidateImage{
		{Cue: storyboard.Cue{TimestampSeconds: 500}, LocalPath: "late.jpg"},
	}, 100)
	if err != nil {
		t.Fatalf("BuildTimeline failed: %v", err)
	}
	if len(timeline) != 1 {
		t.Fatalf("expected a single clamped interval, got %d", len(timeline))
	}
	if timeline[0].StartSeconds != 0 || timeline[0].EndSeconds != 100 {
		t.Fatalf("clamped interval must cover the full audio: %#v", timeline[0])
	}
}

func TestBuildTimelineCueAtZeroHasNoLeadIn(t *testing.T) {
	timeline, err := storyboard.BuildTimeline([]storyboard.CandidateImage{
		{Cue: storyboard.Cue{TimestampSeconds: 0}, LocalPath: "a.jpg"},
	}, 60)
	if err != nil {
		t.Fatalf("BuildTimeline failed: %v", err)
	}
	if len(timeline) != 1 {
		t.Fatalf("expected a single interval, got %d", len(timeline))
	}
	if timeline[0].StartSeconds != 0 || timeline[0].EndSeconds != 60 {
		t.Fatalf("unexpected interval: %#v", timeline[0])
	}
}

func TestBuildTimelineNoVisualsYieldsFallback(t *testing.T) {
	timeline, err := storyboard.BuildTimeline(nil, 42)
	if err != nil {
		t.Fatalf("BuildTimeline failed: %v", err)
	}
	if len(timeline) != 1 || timeline[0].VisualPath != "" {
		t.Fatalf("expected one fallback segment: %#v", timeline)
	}
	if timeline[0].EndSeconds != 42 {
		t.Fatalf("fallback segment must cover the full duration: %#v", timeline[0])
	}
}

func TestBuildTimelineRejectsZeroDuration(t *testing.T) {
	if _, err := storyboard.BuildTimeline(nil, 0); err == nil {
		t.Fatal("expected error for zero duration")
	}
}
