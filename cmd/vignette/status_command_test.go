package main

import (
	"strings"
	"testing"
)

func TestStatusShowsJobDetails(t *testing.T) {
	cfgPath, cfg := writeTestConfig(t)
	job := seedJob(t, cfg, "podcast.mp3", false)

	out, err := runCommand(t, cfgPath, "status", job.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, job.ID) {
		t.Fatalf("expected job ID in output:\n%s", out)
	}
	if !strings.Contains(out, "podcast.mp3") {
		t.Fatalf("expected filename in output:\n%s", out)
	}
	if !strings.Contains(out, "Progress") {
		t.Fatalf("expected progress line in output:\n%s", out)
	}
}

func TestStatusShowsFailureReason(t *testing.T) {
	cfgPath, cfg := writeTestConfig(t)
	job := seedJob(t, cfg, "broken.mp3", true)

	out, err := runCommand(t, cfgPath, "status", job.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "upstream timeout") {
		t.Fatalf("expected failure reason in output:\n%s", out)
	}
}

func TestStatusUnknownJob(t *testing.T) {
	cfgPath, _ := writeTestConfig(t)

	_, err := runCommand(t, cfgPath, "status", "missing-id")
	if err == nil {
		t.Fatal("expected error for unknown job")
	}
	if !strings.Contains(err.Error(), "no job with ID") {
		t.Fatalf("unexpected error: %v", err)
	}
}
