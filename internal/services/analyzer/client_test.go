package analyzer_test

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
	"vignette/internal/services/analyzer"
	"vignette/internal/transcript"
)

func completionBody(content string) string {
	encoded, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"content": content}},
		},
	})
	return string(encoded)
}

func TestExtractCuesParsesPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(completionBody(`{"cues":[{"timestamp_seconds":12.5,"query":"golden gate bridge","priority":0.9},{"timestamp_seconds":999,"query":"fog","priority":0.4}]}`)))
	}))
	defer server.Close()

	client := analyzer.NewClient(analyzer.Config{BaseURL: server.URL, APIKey: "key", Model: "m"})
	cues, err := client.ExtractCues(context.Background(), "some transcript text", 0, 45)
	if err != nil {
		t.Fatalf("ExtractCues failed: %v", err)
	}
	if len(cues) != 2 {
		t.Fatalf("expected 2 cues, got %d", len(cues))
	}
	if cues[0].Query != "golden gate bridge" || cues[0].TimestampSeconds != 12.5 {
		t.Fatalf("unexpected cue: %#v", cues[0])
	}
	if cues[1].TimestampSeconds != 45 {
		t.Fatalf("out-of-window timestamp must be clamped: %#v", cues[1])
	}
}

func TestExtractCuesToleratesMarkdownFences(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(completionBody("```json\n{\"cues\":[{\"timestamp_seconds\":3,\"query\":\"red lighthouse\",\"priority\":0.5}]}\n```")))
	}))
	defer server.Close()

	client := analyzer.NewClient(analyzer.Config{BaseURL: server.URL, APIKey: "key", Model: "m"})
	cues, err := client.ExtractCues(context.Background(), "text", 0, 45)
	if err != nil {
		t.Fatalf("ExtractCues failed: %v", err)
	}
	if len(cues) != 1 || cues[0].Query != "red lighthouse" {
		t.Fatalf("unexpected cues: %#v", cues)
	}
}

func TestExtractCuesHonorsRetryAfter(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(completionBody(`{"cues":[]}`)))
	}))
	defer server.Close()

	var slept time.Duration
	client := analyzer.NewClient(analyzer.Config{BaseURL: server.URL, APIKey: "key", Model: "m"},
		analyzer.WithSleeper(func(d time.Duration) { slept = d }),
	)
	if _, err := client.ExtractCues(context.Background(), "text", 0, 45); err != nil {
		t.Fatalf("ExtractCues failed: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected retry after 429, got %d calls", calls.Load())
	}
	if slept != time.Second {
		t.Fatalf("expected Retry-After delay of 1s, slept %s", slept)
	}
}

func TestExtractCuesUnauthorizedIsConfiguration(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer server.Close()

	client := analyzer.NewClient(analyzer.Config{BaseURL: server.URL, APIKey: "key", Model: "m"})
	if _, err := client.ExtractCues(context.Background(), "text", 0, 45); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestExtractCuesEmptyWindowSkipsRequest(t *testing.T) {
	client := analyzer.NewClient(analyzer.Config{BaseURL: "http://unused", APIKey: "key"})
	cues, err := client.ExtractCues(context.Background(), "   ", 0, 45)
	if err != nil || cues != nil {
		t.Fatalf("empty window must be a no-op: %v, %#v", err, cues)
	}
}

func TestEnabledRequiresBaseURLAndKey(t *testing.T) {
	if analyzer.NewClient(analyzer.Config{}).Enabled() {
		t.Fatal("empty config must not be enabled")
	}
	if !analyzer.NewClient(analyzer.Config{BaseURL: "http://x", APIKey: "k"}).Enabled() {
		t.Fatal("configured client must be enabled")
	}
}

func TestHeuristicCuesFindEmphasizedEntries(t *testing.T) {
	tr := transcript.Transcript{
		DurationSeconds: 90,
		Entries: []transcript.Entry{
			{StartSeconds: 2, EndSeconds: 8, Text: "hey welcome back to the show everyone"},
			{StartSeconds: 10, EndSeconds: 20, Text: "imagine the golden gate bridge wrapped in fog at sunrise"},
			{StartSeconds: 50, EndSeconds: 60, Text: "they built an incredible machine called the difference engine"},
		},
	}

	cues := analyzer.HeuristicCues(tr, 45)
	if len(cues) != 2 {
		t.Fatalf("expected one cue per window, got %d: %#v", len(cues), cues)
	}
	if cues[0].TimestampSeconds != 10 {
		t.Fatalf("first window must anchor on the emphasized entry: %#v", cues[0])
	}
	if cues[1].TimestampSeconds != 50 {
		t.Fatalf("second window cue misplaced: %#v", cues[1])
	}
	for _, cue := range cues {
		if cue.Query == "" || cue.Priority <= 0 {
			t.Fatalf("cue missing query or priority: %#v", cue)
		}
	}
}

func TestHeuristicCuesEmptyTranscript(t *testing.T) {
	if cues := analyzer.HeuristicCues(transcript.Transcript{}, 45); cues != nil {
		t.Fatalf("expected no cues for empty transcript, got %#v", cues)
	}
}

func TestDecodeModelJSONPlain(t *testing.T) {
	var out struct {
		OK bool `json:"ok"`
	}
	if err := analyzer.DecodeModelJSON(`{"ok":true}`, &out); err != nil || !out.OK {
		t.Fatalf("DecodeModelJSON failed: %v %#v", err, out)
	}
}
