package transcribing_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"vignette/internal/artifacts"
	"vignette/internal/queue"
	"vignette/internal/services"
	"vignette/internal/testsupport"
	"vignette/internal/transcribing"
	"vignette/internal/transcript"
)

type fakeClient struct {
	transcribe func(wavPath string) ([]transcript.Entry, error)
	healthErr  error
}

func (f *fakeClient) ExtractSegment(ctx context.Context, source string, startSec, durationSec float64, dest string) error {
	return os.WriteFile(dest, []byte("wav"), 0o644)
}

func (f *fakeClient) Transcribe(ctx context.Context, wavPath string) ([]transcript.Entry, error) {
	return f.transcribe(wavPath)
}

func (f *fakeClient) HealthCheck(ctx context.Context) error {
	return f.healthErr
}

func segmentIndex(t *testing.T, wavPath string) int {
	t.Helper()
	base := filepath.Base(wavPath)
	var index int
	if _, err := fmt.Sscanf(base, "segment_%03d.wav", &index); err != nil {
		t.Fatalf("unexpected wav name %s", base)
	}
	return index
}

func newJob(t *testing.T, store *queue.Store, durationSeconds float64) *queue.Job {
	t.Helper()
	job, err := store.Create(context.Background(), queue.NewJobParams{
		Filename:        "episode.mp3",
		AudioPath:       "/tmp/episode.mp3",
		FileSize:        4096,
		DurationSeconds: durationSeconds,
		Options:         queue.DefaultOptions(),
	})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	return job
}

func TestPrepareRejectsZeroDuration(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	art := artifacts.NewStore(cfg)
	handler := transcribing.New(cfg, store, art, &fakeClient{}, nil)

	job := testsupport.NewJob(t, store, "nodur.mp3")
	job.DurationSeconds = 0
	if err := handler.Prepare(context.Background(), job); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestPreparePersistsSegmentPlan(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	art := artifacts.NewStore(cfg)
	handler := transcribing.New(cfg, store, art, &fakeClient{}, nil)

	job := newJob(t, store, 1200)
	if err := handler.Prepare(context.Background(), job); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}

	var segments []transcript.Segment
	if err := art.ReadJSON(job.ID, artifacts.DocSegments, &segments); err != nil {
		t.Fatalf("segment plan not persisted: %v", err)
	}
	if len(segments) != 2 {
		t.Fatalf("expected 2 planned segments for 1200s audio, got %d", len(segments))
	}
	if job.ProgressStage != "Transcribing" || job.ProgressPercent != 0 {
		t.Fatalf("unexpected progress: %#v", job)
	}
}

func TestExecuteMergesAndRebases(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	art := artifacts.NewStore(cfg)

	client := &fakeClient{
		transcribe: func(wavPath string) ([]transcript.Entry, error) {
			return []transcript.Entry{
				{StartSeconds: 1, EndSeconds: 5, Text: fmt.Sprintf("part %s", filepath.Base(wavPath))},
			}, nil
		},
	}
	handler := transcribing.New(cfg, store, art, client, nil)

	job := newJob(t, store, 1200)
	if err := handler.Prepare(context.Background(), job); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if err := handler.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	var merged transcript.Transcript
	if err := art.ReadJSON(job.ID, artifacts.DocTranscript, &merged); err != nil {
		t.Fatalf("merged transcript not persisted: %v", err)
	}
	if len(merged.Entries) != 2 {
		t.Fatalf("expected 2 merged entries, got %d", len(merged.Entries))
	}
	if merged.Entries[1].StartSeconds != 601 {
		t.Fatalf("second segment entries must be rebased by 600s: %#v", merged.Entries[1])
	}
	if merged.DurationSeconds != 1200 {
		t.Fatalf("merged duration = %g", merged.DurationSeconds)
	}
	if job.ProgressPercent >= 70 {
		t.Fatalf("transcription progress must stay below 70, got %g", job.ProgressPercent)
	}
}

func TestExecuteProgressNeverDecreasesWhilePolled(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Transcriber.Workers = 8
	store := testsupport.MustOpenStore(t, cfg)
	art := artifacts.NewStore(cfg)

	client := &fakeClient{
		transcribe: func(wavPath string) ([]transcript.Entry, error) {
			time.Sleep(time.Millisecond)
			return []transcript.Entry{{StartSeconds: 0, EndSeconds: 1, Text: "ok"}}, nil
		},
	}
	handler := transcribing.New(cfg, store, art, client, nil)

	// 60 segments at the default 600s budget.
	job := newJob(t, store, 36000)
	if err := handler.Prepare(context.Background(), job); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}

	stop := make(chan struct{})
	regressions := make(chan int, 1)
	go func() {
		var last float64
		regressed := 0
		for {
			select {
			case <-stop:
				regressions <- regressed
				return
			default:
			}
			polled, err := store.GetByID(context.Background(), job.ID)
			if err == nil && polled != nil {
				if polled.ProgressPercent < last {
					regressed++
				} else {
					last = polled.ProgressPercent
				}
			}
			time.Sleep(time.Millisecond)
		}
	}()

	if err := handler.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	close(stop)
	if regressed := <-regressions; regressed > 0 {
		t.Fatalf("polled progress regressed %d time(s)", regressed)
	}
}

func TestExecuteFailureNamesSegmentAndDiscardsPartials(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Transcriber.Workers = 1
	store := testsupport.MustOpenStore(t, cfg)
	art := artifacts.NewStore(cfg)

	client := &fakeClient{}
	client.transcribe = func(wavPath string) ([]transcript.Entry, error) {
		if segmentIndex(t, wavPath) == 1 {
			return nil, services.Wrap(services.ErrTransient, "transcriber", "transcribe", "upstream gave up", nil)
		}
		return []transcript.Entry{{StartSeconds: 0, EndSeconds: 1, Text: "ok"}}, nil
	}
	handler := transcribing.New(cfg, store, art, client, nil)

	job := newJob(t, store, 1200)
	if err := handler.Prepare(context.Background(), job); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}

	err := handler.Execute(context.Background(), job)
	if err == nil {
		t.Fatal("expected Execute to fail")
	}
	if !strings.Contains(err.Error(), "segment 1") {
		t.Fatalf("failure must name the failing segment: %v", err)
	}
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("classification lost: %v", err)
	}

	var merged transcript.Transcript
	if readErr := art.ReadJSON(job.ID, artifacts.DocTranscript, &merged); !errors.Is(readErr, services.ErrNotFound) {
		t.Fatalf("partial transcript must not be persisted: %v", readErr)
	}
	entries, readErr := os.ReadDir(art.SubDir(job.ID, artifacts.DirTranscripts))
	if readErr != nil {
		t.Fatalf("read transcripts dir: %v", readErr)
	}
	if len(entries) != 0 {
		t.Fatalf("partial per-segment transcripts must be discarded, found %d", len(entries))
	}
}

func TestHealthCheck(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	art := artifacts.NewStore(cfg)

	healthy := transcribing.New(cfg, store, art, &fakeClient{}, nil)
	if health := healthy.HealthCheck(context.Background()); !health.Ready {
		t.Fatalf("expected ready, got %#v", health)
	}

	unhealthy := transcribing.New(cfg, store, art, &fakeClient{healthErr: errors.New("ffmpeg missing")}, nil)
	if health := unhealthy.HealthCheck(context.Background()); health.Ready || health.Detail == "" {
		t.Fatalf("expected unready with detail, got %#v", health)
	}
}
