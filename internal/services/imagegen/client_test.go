package imagegen_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"vignette/internal/services"
	"vignette/internal/services/imagegen"
	"vignette/internal/storyboard"
)

func TestGenerateImage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/images" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req["prompt"] != "red lighthouse" {
			t.Errorf("unexpected prompt %q", req["prompt"])
		}
		_, _ = w.Write([]byte(`{"url":"https://gen/a.png","description":"a red lighthouse","score":0.95}`))
	}))
	defer server.Close()

	client := imagegen.NewClient(imagegen.Config{BaseURL: server.URL, APIKey: "key"})
	cue := storyboard.Cue{TimestampSeconds: 12, Query: "red lighthouse"}
	candidate, err := client.GenerateImage(context.Background(), cue)
	if err != nil {
		t.Fatalf("GenerateImage failed: %v", err)
	}
	if candidate.Source != storyboard.SourceGenerated || candidate.Kind != storyboard.MediaImage {
		t.Fatalf("unexpected candidate: %#v", candidate)
	}
	if candidate.RelevanceScore != 0.95 || candidate.Cue.TimestampSeconds != 12 {
		t.Fatalf("unexpected candidate: %#v", candidate)
	}
}

func TestGenerateClipUsesClipEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/clips" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"url":"https://gen/a.mp4"}`))
	}))
	defer server.Close()

	client := imagegen.NewClient(imagegen.Config{BaseURL: server.URL, APIKey: "key"})
	candidate, err := client.GenerateClip(context.Background(), storyboard.Cue{Query: "waves"})
	if err != nil {
		t.Fatalf("GenerateClip failed: %v", err)
	}
	if candidate.Kind != storyboard.MediaClip {
		t.Fatalf("expected clip kind, got %#v", candidate)
	}
	if candidate.RelevanceScore != 1 {
		t.Fatalf("unscored generated visual must default to full relevance: %#v", candidate)
	}
}

func TestGenerateRetriesServerError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"url":"https://gen/b.png"}`))
	}))
	defer server.Close()

	client := imagegen.NewClient(imagegen.Config{BaseURL: server.URL, APIKey: "key"},
		imagegen.WithSleeper(func(time.Duration) {}),
	)
	if _, err := client.GenerateImage(context.Background(), storyboard.Cue{Query: "x"}); err != nil {
		t.Fatalf("GenerateImage failed: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected one retry, got %d calls", calls.Load())
	}
}

func TestGenerateUnauthorizedIsConfiguration(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer server.Close()

	client := imagegen.NewClient(imagegen.Config{BaseURL: server.URL, APIKey: "key"})
	if _, err := client.GenerateImage(context.Background(), storyboard.Cue{Query: "x"}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestGenerateMissingURLIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"description":"no url"}`))
	}))
	defer server.Close()

	client := imagegen.NewClient(imagegen.Config{BaseURL: server.URL, APIKey: "key"},
		imagegen.WithSleeper(func(time.Duration) {}),
	)
	if _, err := client.GenerateImage(context.Background(), storyboard.Cue{Query: "x"}); !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
}
