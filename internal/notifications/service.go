package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"vignette/internal/config"
)

const userAgent = "Vignette/0.1.0"

// Event identifies a job lifecycle moment worth notifying about.
type Event string

const (
	EventJobCompleted Event = "job_completed"
	EventJobFailed    Event = "job_failed"
	EventTest         Event = "test"
)

// Payload carries event-specific values used to format the message.
type Payload map[string]string

// Service defines the notification surface exposed to workflow components.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := formatMessage(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func formatMessage(event Event, payload Payload) (message, bool) {
	filename := strings.TrimSpace(payload["filename"])
	switch event {
	case EventJobCompleted:
		body := fmt.Sprintf("Video ready: %s", filename)
		if dir := strings.TrimSpace(payload["artifactDir"]); dir != "" {
			body = fmt.Sprintf("%s\nArtifacts: %s", body, dir)
		}
		return message{
			title:    "Vignette - Job Complete",
			body:     body,
			tags:     []string{"vignette", "job", "completed"},
			priority: "high",
		}, true
	case EventJobFailed:
		reason := strings.TrimSpace(payload["reason"])
		if reason == "" {
			reason = "unknown error"
		}
		return message{
			title:    "Vignette - Job Failed",
			body:     fmt.Sprintf("%s: %s", filename, reason),
			tags:     []string{"vignette", "job", "failed"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "Vignette - Test",
			body:     "Notification system test",
			tags:     []string{"vignette", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
