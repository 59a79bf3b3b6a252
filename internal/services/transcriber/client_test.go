package transcriber_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"vignette/internal/services"
	"vignette/internal/services/transcriber"
)

func writeWAV(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "segment.wav")
	if err := os.WriteFile(path, []byte("RIFF fake audio"), 0o644); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	return path
}

func TestTranscribeDecodesVerboseJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key" {
			t.Errorf("unexpected auth header %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if got := r.FormValue("response_format"); got != "verbose_json" {
			t.Errorf("unexpected response_format %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"segments":[{"start":0,"end":4.2,"text":" hello "},{"start":4.2,"end":8,"text":"world"}]}`))
	}))
	defer server.Close()

	client := transcriber.NewClient(transcriber.Config{
		BaseURL: server.URL,
		APIKey:  "key",
	}, "ffmpeg", "ffprobe")

	entries, err := client.Transcribe(context.Background(), writeWAV(t))
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Text != "hello" || entries[0].EndSeconds != 4.2 {
		t.Fatalf("unexpected first entry: %#v", entries[0])
	}
}

func TestTranscribeRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"segments":[{"start":0,"end":1,"text":"ok"}]}`))
	}))
	defer server.Close()

	client := transcriber.NewClient(transcriber.Config{
		BaseURL:       server.URL,
		APIKey:        "key",
		RetryAttempts: 3,
	}, "ffmpeg", "ffprobe",
		transcriber.WithSleeper(func(time.Duration) {}),
	)

	entries, err := client.Transcribe(context.Background(), writeWAV(t))
	if err != nil {
		t.Fatalf("Transcribe failed after retries: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
	if len(entries) != 1 {
		t.Fatalf("unexpected entries: %#v", entries)
	}
}

func TestTranscribeUnauthorizedIsConfiguration(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer server.Close()

	client := transcriber.NewClient(transcriber.Config{
		BaseURL:       server.URL,
		APIKey:        "key",
		RetryAttempts: 3,
	}, "ffmpeg", "ffprobe",
		transcriber.WithSleeper(func(time.Duration) {}),
	)

	_, err := client.Transcribe(context.Background(), writeWAV(t))
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("configuration errors must not be retried, got %d attempts", calls.Load())
	}
}

func TestTranscribeRequiresAPIKey(t *testing.T) {
	client := transcriber.NewClient(transcriber.Config{}, "ffmpeg", "ffprobe")
	if _, err := client.Transcribe(context.Background(), "any.wav"); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestExtractSegmentBuildsFFmpegArgs(t *testing.T) {
	var captured []string
	client := transcriber.NewClient(transcriber.Config{APIKey: "key"}, "ffmpeg", "ffprobe",
		transcriber.WithCommandRunner(func(ctx context.Context, name string, args ...string) error {
			captured = append([]string{name}, args...)
			return nil
		}),
	)

	if err := client.ExtractSegment(context.Background(), "in.mp3", 600, 600, "out.wav"); err != nil {
		t.Fatalf("ExtractSegment failed: %v", err)
	}
	joined := strings.Join(captured, " ")
	for _, want := range []string{"ffmpeg", "-ss 600", "-t 600", "-i in.mp3", "-ar 16000", "out.wav"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("ffmpeg args missing %q: %s", want, joined)
		}
	}
}

func TestExtractSegmentRejectsZeroDuration(t *testing.T) {
	client := transcriber.NewClient(transcriber.Config{APIKey: "key"}, "ffmpeg", "ffprobe")
	if err := client.ExtractSegment(context.Background(), "in.mp3", 0, 0, "out.wav"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestProbeDurationParsesOutput(t *testing.T) {
	client := transcriber.NewClient(transcriber.Config{APIKey: "key"}, "ffmpeg", "ffprobe",
		transcriber.WithOutputRunner(func(ctx context.Context, name string, args ...string) (string, error) {
			return "1234.56\n", nil
		}),
	)
	duration, err := client.ProbeDuration(context.Background(), "in.mp3")
	if err != nil {
		t.Fatalf("ProbeDuration failed: %v", err)
	}
	if duration != 1234.56 {
		t.Fatalf("duration = %g", duration)
	}
}
