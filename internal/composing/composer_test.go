package composing_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"vignette/internal/artifacts"
	"vignette/internal/composing"
	"vignette/internal/generating"
	"vignette/internal/services"
	"vignette/internal/storyboard"
	"vignette/internal/testsupport"
)

type fakeEncoder struct {
	compose func(audioPath string, timeline []storyboard.TimelineSegment, workDir, outputPath string) (storyboard.VideoArtifact, error)
	health  error
}

func (f *fakeEncoder) Compose(ctx context.Context, audioPath string, timeline []storyboard.TimelineSegment, workDir, outputPath string) (storyboard.VideoArtifact, error) {
	return f.compose(audioPath, timeline, workDir, outputPath)
}

func (f *fakeEncoder) HealthCheck(ctx context.Context) error { return f.health }

func writeManifest(t *testing.T, art *artifacts.Store, jobID string, manifest generating.Manifest) {
	t.Helper()
	if err := art.WriteJSON(jobID, artifacts.DocManifest, manifest); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
}

func TestExecuteComposesAndSeals(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	art := artifacts.NewStore(cfg)

	var gotAudio, gotOutput string
	var gotTimeline []storyboard.TimelineSegment
	encoder := &fakeEncoder{
		compose: func(audioPath string, timeline []storyboard.TimelineSegment, workDir, outputPath string) (storyboard.VideoArtifact, error) {
			gotAudio = audioPath
			gotTimeline = timeline
			gotOutput = outputPath
			return storyboard.VideoArtifact{
				Path:                 outputPath,
				Width:                1920,
				Height:               1080,
				FPS:                  30,
				DurationSeconds:      120,
				TimelineSegmentCount: len(timeline),
				FileSizeBytes:        9000,
			}, nil
		},
	}
	handler := composing.New(cfg, store, art, encoder, nil)

	job := testsupport.NewJob(t, store, "episode.mp3")
	writeManifest(t, art, job.ID, generating.Manifest{
		Resolved: []storyboard.CandidateImage{
			{Cue: storyboard.Cue{TimestampSeconds: 10, Query: "bridge"}, LocalPath: "/tmp/a.jpg"},
			{Cue: storyboard.Cue{TimestampSeconds: 60, Query: "harbor"}, LocalPath: "/tmp/b.jpg"},
		},
	})

	if err := handler.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if gotAudio != job.AudioPath {
		t.Fatalf("encoder received wrong audio path: %s", gotAudio)
	}
	if !strings.Contains(gotOutput, job.ID) || !strings.HasSuffix(gotOutput, composing.OutputVideoName) {
		t.Fatalf("output path must live under the job's output directory: %s", gotOutput)
	}
	// Lead-in to the first cue plus one segment per visual.
	if len(gotTimeline) != 3 {
		t.Fatalf("expected 3 timeline segments, got %d", len(gotTimeline))
	}
	if gotTimeline[len(gotTimeline)-1].EndSeconds != job.DurationSeconds {
		t.Fatalf("timeline must run to the full duration")
	}

	var persisted []storyboard.TimelineSegment
	if err := art.ReadJSON(job.ID, artifacts.DocTimeline, &persisted); err != nil {
		t.Fatalf("timeline not persisted: %v", err)
	}
	var video storyboard.VideoArtifact
	if err := art.ReadJSON(job.ID, artifacts.DocVideo, &video); err != nil {
		t.Fatalf("video record not persisted: %v", err)
	}
	if video.TimelineSegmentCount != 3 || video.FileSizeBytes != 9000 {
		t.Fatalf("unexpected video record: %#v", video)
	}

	if !art.Sealed(job.ID) {
		t.Fatal("artifacts must be sealed after composition")
	}
	if job.ProgressPercent != 100 {
		t.Fatalf("completed composition must report 100, got %g", job.ProgressPercent)
	}
	if job.ArtifactDir == "" {
		t.Fatal("job must record its artifact directory")
	}
}

func TestExecuteEmptyManifestRendersFallback(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	art := artifacts.NewStore(cfg)

	encoder := &fakeEncoder{
		compose: func(audioPath string, timeline []storyboard.TimelineSegment, workDir, outputPath string) (storyboard.VideoArtifact, error) {
			if len(timeline) != 1 || timeline[0].VisualPath != "" {
				return storyboard.VideoArtifact{}, errors.New("expected a single fallback segment")
			}
			return storyboard.VideoArtifact{Path: outputPath, TimelineSegmentCount: 1}, nil
		},
	}
	handler := composing.New(cfg, store, art, encoder, nil)

	job := testsupport.NewJob(t, store, "nocues.mp3")
	writeManifest(t, art, job.ID, generating.Manifest{})

	if err := handler.Execute(context.Background(), job); err != nil {
		t.Fatalf("cue-less jobs must still produce a video: %v", err)
	}
	if !art.Sealed(job.ID) {
		t.Fatal("fallback composition must still seal")
	}
}

func TestExecuteEncoderFailureDoesNotSeal(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	art := artifacts.NewStore(cfg)

	encoder := &fakeEncoder{
		compose: func(string, []storyboard.TimelineSegment, string, string) (storyboard.VideoArtifact, error) {
			return storyboard.VideoArtifact{}, services.Wrap(services.ErrExternalTool, "encoder", "compose", "ffmpeg exited 1", nil)
		},
	}
	handler := composing.New(cfg, store, art, encoder, nil)

	job := testsupport.NewJob(t, store, "broken.mp3")
	writeManifest(t, art, job.ID, generating.Manifest{
		Resolved: []storyboard.CandidateImage{{Cue: storyboard.Cue{TimestampSeconds: 0, Query: "x"}, LocalPath: "/tmp/x.jpg"}},
	})

	err := handler.Execute(context.Background(), job)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected encoder failure to propagate, got %v", err)
	}
	if art.Sealed(job.ID) {
		t.Fatal("a failed composition must leave artifacts unsealed")
	}
	if err := art.ReadJSON(job.ID, artifacts.DocVideo, &storyboard.VideoArtifact{}); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("no video record may exist after failure, got %v", err)
	}
}

func TestPrepareEntersCompositionBand(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	art := artifacts.NewStore(cfg)
	handler := composing.New(cfg, store, art, &fakeEncoder{}, nil)

	job := testsupport.NewJob(t, store, "band.mp3")
	if err := handler.Prepare(context.Background(), job); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if job.ProgressPercent != 98 {
		t.Fatalf("composition band must open at 98, got %g", job.ProgressPercent)
	}
}

func TestHealthCheck(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	art := artifacts.NewStore(cfg)

	healthy := composing.New(cfg, store, art, &fakeEncoder{}, nil).HealthCheck(context.Background())
	if !healthy.Ready {
		t.Fatalf("expected ready, got %#v", healthy)
	}
	broken := composing.New(cfg, store, art, &fakeEncoder{health: errors.New("ffmpeg missing")}, nil).HealthCheck(context.Background())
	if broken.Ready {
		t.Fatal("expected unready when the encoder is unavailable")
	}
}
