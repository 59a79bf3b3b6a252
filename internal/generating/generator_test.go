package generating_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"vignette/internal/artifacts"
	"vignette/internal/generating"
	"vignette/internal/queue"
	"vignette/internal/services"
	"vignette/internal/storyboard"
	"vignette/internal/testsupport"
)

type fakeSearcher struct {
	search func(cue storyboard.Cue) ([]storyboard.CandidateImage, error)
}

func (f *fakeSearcher) Search(ctx context.Context, cue storyboard.Cue) ([]storyboard.CandidateImage, error) {
	return f.search(cue)
}

func (f *fakeSearcher) Download(ctx context.Context, candidate storyboard.CandidateImage) (io.ReadCloser, string, error) {
	return io.NopCloser(strings.NewReader("search-bytes")), ".jpg", nil
}

func (f *fakeSearcher) HealthCheck(ctx context.Context) error { return nil }

type fakeGenerator struct {
	generate func(cue storyboard.Cue) (storyboard.CandidateImage, error)
	clip     func(cue storyboard.Cue) (storyboard.CandidateImage, error)
}

func (f *fakeGenerator) GenerateImage(ctx context.Context, cue storyboard.Cue) (storyboard.CandidateImage, error) {
	if f.generate == nil {
		return storyboard.CandidateImage{}, services.Wrap(services.ErrTransient, "imagegen", "generate", "not stubbed", nil)
	}
	return f.generate(cue)
}

func (f *fakeGenerator) GenerateClip(ctx context.Context, cue storyboard.Cue) (storyboard.CandidateImage, error) {
	if f.clip == nil {
		return storyboard.CandidateImage{}, services.Wrap(services.ErrTransient, "imagegen", "generate", "not stubbed", nil)
	}
	return f.clip(cue)
}

func (f *fakeGenerator) Download(ctx context.Context, candidate storyboard.CandidateImage) (io.ReadCloser, string, error) {
	return io.NopCloser(strings.NewReader("gen-bytes")), ".png", nil
}

func (f *fakeGenerator) HealthCheck(ctx context.Context) error { return nil }

func writeCues(t *testing.T, art *artifacts.Store, jobID string, cues []storyboard.Cue) {
	t.Helper()
	if err := art.WriteJSON(jobID, artifacts.DocCues, cues); err != nil {
		t.Fatalf("write cues: %v", err)
	}
}

func readManifest(t *testing.T, art *artifacts.Store, jobID string) generating.Manifest {
	t.Helper()
	var manifest generating.Manifest
	if err := art.ReadJSON(jobID, artifacts.DocManifest, &manifest); err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	return manifest
}

func TestExecuteSelectsBestPerCue(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	art := artifacts.NewStore(cfg)

	searcher := &fakeSearcher{
		search: func(cue storyboard.Cue) ([]storyboard.CandidateImage, error) {
			return []storyboard.CandidateImage{
				{Cue: cue, URL: "https://img/s.jpg", Source: storyboard.SourceSearch, Kind: storyboard.MediaImage, RelevanceScore: 0.6},
			}, nil
		},
	}
	generator := &fakeGenerator{
		generate: func(cue storyboard.Cue) (storyboard.CandidateImage, error) {
			return storyboard.CandidateImage{Cue: cue, URL: "https://gen/g.png", Source: storyboard.SourceGenerated, Kind: storyboard.MediaImage, RelevanceScore: 0.9}, nil
		},
	}
	handler := generating.New(cfg, store, art, searcher, generator, nil)

	job := testsupport.NewJob(t, store, "select.mp3")
	writeCues(t, art, job.ID, []storyboard.Cue{
		{TimestampSeconds: 40, Query: "second"},
		{TimestampSeconds: 10, Query: "first"},
	})

	if err := handler.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	manifest := readManifest(t, art, job.ID)
	if len(manifest.Resolved) != 2 {
		t.Fatalf("expected both cues resolved, got %d", len(manifest.Resolved))
	}
	if manifest.Resolved[0].Cue.TimestampSeconds != 10 {
		t.Fatalf("manifest must be timestamp ordered: %#v", manifest.Resolved[0])
	}
	for _, visual := range manifest.Resolved {
		if visual.Source != storyboard.SourceGenerated {
			t.Fatalf("generated candidate scored higher and must win: %#v", visual)
		}
		if visual.LocalPath == "" {
			t.Fatalf("winner must be downloaded: %#v", visual)
		}
	}
	if job.ProgressPercent < 90 || job.ProgressPercent >= 98 {
		t.Fatalf("generation progress must land in [90,98), got %g", job.ProgressPercent)
	}
}

func TestExecuteDropsUnresolvableCues(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	art := artifacts.NewStore(cfg)

	searcher := &fakeSearcher{
		search: func(cue storyboard.Cue) ([]storyboard.CandidateImage, error) {
			if cue.Query == "doomed" {
				return nil, services.Wrap(services.ErrTransient, "imagesearch", "search", "upstream down", nil)
			}
			return []storyboard.CandidateImage{
				{Cue: cue, URL: "https://img/ok.jpg", Source: storyboard.SourceSearch, RelevanceScore: 0.5},
			}, nil
		},
	}
	handler := generating.New(cfg, store, art, searcher, nil, nil)

	job := testsupport.NewJob(t, store, "drop.mp3")
	writeCues(t, art, job.ID, []storyboard.Cue{
		{TimestampSeconds: 5, Query: "doomed"},
		{TimestampSeconds: 25, Query: "fine"},
	})

	if err := handler.Execute(context.Background(), job); err != nil {
		t.Fatalf("a dropped cue must not fail the job: %v", err)
	}

	manifest := readManifest(t, art, job.ID)
	if len(manifest.Resolved) != 1 || manifest.Resolved[0].Cue.Query != "fine" {
		t.Fatalf("unexpected resolved set: %#v", manifest.Resolved)
	}
	if len(manifest.Dropped) != 1 || manifest.Dropped[0].Cue.Query != "doomed" {
		t.Fatalf("dropped cue must be recorded: %#v", manifest.Dropped)
	}
}

func TestExecuteFailsWhenZeroCuesResolve(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	art := artifacts.NewStore(cfg)

	searcher := &fakeSearcher{
		search: func(cue storyboard.Cue) ([]storyboard.CandidateImage, error) {
			return nil, services.Wrap(services.ErrTransient, "imagesearch", "search", "down", nil)
		},
	}
	handler := generating.New(cfg, store, art, searcher, nil, nil)

	job := testsupport.NewJob(t, store, "allfail.mp3")
	writeCues(t, art, job.ID, []storyboard.Cue{{TimestampSeconds: 5, Query: "anything"}})

	err := handler.Execute(context.Background(), job)
	if err == nil {
		t.Fatal("expected failure when zero cues resolve")
	}
	if !strings.Contains(err.Error(), "none of 1") {
		t.Fatalf("failure must name the requested cue count: %v", err)
	}
}

func TestExecuteConfigurationErrorAborts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	art := artifacts.NewStore(cfg)

	searcher := &fakeSearcher{
		search: func(cue storyboard.Cue) ([]storyboard.CandidateImage, error) {
			return nil, services.Wrap(services.ErrConfiguration, "imagesearch", "search", "invalid credentials", nil)
		},
	}
	handler := generating.New(cfg, store, art, searcher, nil, nil)

	job := testsupport.NewJob(t, store, "badcreds.mp3")
	writeCues(t, art, job.ID, []storyboard.Cue{{TimestampSeconds: 5, Query: "anything"}})

	if err := handler.Execute(context.Background(), job); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestExecuteZeroCuesSucceeds(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	art := artifacts.NewStore(cfg)
	handler := generating.New(cfg, store, art, &fakeSearcher{}, nil, nil)

	job := testsupport.NewJob(t, store, "nocues.mp3")
	writeCues(t, art, job.ID, nil)

	if err := handler.Execute(context.Background(), job); err != nil {
		t.Fatalf("zero requested cues must succeed: %v", err)
	}
	manifest := readManifest(t, art, job.ID)
	if len(manifest.Resolved) != 0 {
		t.Fatalf("unexpected manifest: %#v", manifest)
	}
}

func TestExecuteClipVariantCompetes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	art := artifacts.NewStore(cfg)

	searcher := &fakeSearcher{
		search: func(cue storyboard.Cue) ([]storyboard.CandidateImage, error) {
			return []storyboard.CandidateImage{
				{Cue: cue, URL: "https://img/s.jpg", Source: storyboard.SourceSearch, RelevanceScore: 0.7},
			}, nil
		},
	}
	generator := &fakeGenerator{
		generate: func(cue storyboard.Cue) (storyboard.CandidateImage, error) {
			return storyboard.CandidateImage{Cue: cue, URL: "https://gen/i.png", Source: storyboard.SourceGenerated, Kind: storyboard.MediaImage, RelevanceScore: 0.7}, nil
		},
		clip: func(cue storyboard.Cue) (storyboard.CandidateImage, error) {
			return storyboard.CandidateImage{Cue: cue, URL: "https://gen/c.mp4", Source: storyboard.SourceGenerated, Kind: storyboard.MediaClip, RelevanceScore: 0.95}, nil
		},
	}
	handler := generating.New(cfg, store, art, searcher, generator, nil)

	job, err := store.Create(context.Background(), queue.NewJobParams{
		Filename:        "clips.mp3",
		AudioPath:       "/tmp/clips.mp3",
		FileSize:        1,
		DurationSeconds: 60,
		Options:         queue.Options{GenerateImages: true, GenerateVideos: true},
	})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	writeCues(t, art, job.ID, []storyboard.Cue{{TimestampSeconds: 5, Query: "waves"}})

	if execErr := handler.Execute(context.Background(), job); execErr != nil {
		t.Fatalf("Execute failed: %v", execErr)
	}
	manifest := readManifest(t, art, job.ID)
	if len(manifest.Resolved) != 1 || manifest.Resolved[0].Kind != storyboard.MediaClip {
		t.Fatalf("highest scoring clip must win: %#v", manifest.Resolved)
	}
}
