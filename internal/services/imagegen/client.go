package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"vignette/internal/services"
	"vignette/internal/storyboard"
)

const (
	defaultHTTPTimeout   = 90 * time.Second
	defaultRetryAttempts = 2
	defaultRetryBase     = 2 * time.Second
	defaultRetryMax      = 15 * time.Second
)

// Config captures the runtime settings for the generation collaborator.
type Config struct {
	BaseURL        string
	APIKey         string
	TimeoutSeconds int
}

// Client requests generated images and clips.
type Client struct {
	cfg        Config
	httpClient *http.Client
	retryBase  time.Duration
	retryMax   time.Duration
	sleeper    func(time.Duration)
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

// NewClient constructs a generation client.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		retryBase:  defaultRetryBase,
		retryMax:   defaultRetryMax,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type generateResponse struct {
	URL         string  `json:"url"`
	Description string  `json:"description"`
	Score       float64 `json:"score"`
}

// GenerateImage requests one generated still for a cue.
func (c *Client) GenerateImage(ctx context.Context, cue storyboard.Cue) (storyboard.CandidateImage, error) {
	return c.generate(ctx, cue, "/images", storyboard.MediaImage)
}

// GenerateClip requests one short generated video clip for a cue. Clips share
// the candidate contract with stills and compete under the same selection
// rule.
func (c *Client) GenerateClip(ctx context.Context, cue storyboard.Cue) (storyboard.CandidateImage, error) {
	return c.generate(ctx, cue, "/clips", storyboard.MediaClip)
}

func (c *Client) generate(ctx context.Context, cue storyboard.Cue, path string, kind storyboard.MediaKind) (storyboard.CandidateImage, error) {
	var empty storyboard.CandidateImage
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return empty, services.Wrap(services.ErrConfiguration, "imagegen", "generate", "api key required", nil)
	}
	if strings.TrimSpace(cue.Query) == "" {
		return empty, services.Wrap(services.ErrValidation, "imagegen", "generate", "prompt is empty", nil)
	}

	var lastErr error
	for attempt := 1; attempt <= defaultRetryAttempts; attempt++ {
		candidate, err := c.generateOnce(ctx, cue, path, kind)
		if err == nil {
			return candidate, nil
		}
		lastErr = err
		if !services.IsRetryable(err) || attempt == defaultRetryAttempts || ctx.Err() != nil {
			break
		}
		if err := c.sleep(ctx, c.backoffDelay(attempt)); err != nil {
			return empty, err
		}
	}
	return empty, lastErr
}

func (c *Client) generateOnce(ctx context.Context, cue storyboard.Cue, path string, kind storyboard.MediaKind) (storyboard.CandidateImage, error) {
	var empty storyboard.CandidateImage
	payload, err := json.Marshal(map[string]string{"prompt": cue.Query})
	if err != nil {
		return empty, fmt.Errorf("encode body: %w", err)
	}
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return empty, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return empty, services.Wrap(services.ErrTransient, "imagegen", "generate", "http error", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return empty, services.Wrap(services.ErrTransient, "imagegen", "generate", "read response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return empty, classifyStatus(resp.StatusCode, body)
	}

	var decoded generateResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return empty, services.Wrap(services.ErrTransient, "imagegen", "generate", "decode response", err)
	}
	if strings.TrimSpace(decoded.URL) == "" {
		return empty, services.Wrap(services.ErrTransient, "imagegen", "generate", "response carries no url", nil)
	}

	score := decoded.Score
	if score <= 0 {
		// Generated visuals are on-topic by construction; without an explicit
		// score they compete at full relevance.
		score = 1
	}
	if score > 1 {
		score = 1
	}
	return storyboard.CandidateImage{
		Cue:            cue,
		URL:            decoded.URL,
		Source:         storyboard.SourceGenerated,
		Kind:           kind,
		RelevanceScore: score,
		Description:    strings.TrimSpace(decoded.Description),
	}, nil
}

func classifyStatus(status int, body []byte) error {
	detail := fmt.Sprintf("http %d: %s", status, strings.TrimSpace(string(body)))
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return services.Wrap(services.ErrConfiguration, "imagegen", "generate", detail, nil)
	case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
		return services.Wrap(services.ErrTransient, "imagegen", "generate", detail, nil)
	default:
		return services.Wrap(services.ErrValidation, "imagegen", "generate", detail, nil)
	}
}

// Download fetches a generated candidate's content for storage.
func (c *Client) Download(ctx context.Context, candidate storyboard.CandidateImage) (io.ReadCloser, string, error) {
	return services.FetchURL(ctx, c.httpClient, candidate.URL)
}

// HealthCheck verifies the collaborator is configured.
func (c *Client) HealthCheck(ctx context.Context) error {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return errors.New("imagegen health: api key required")
	}
	if strings.TrimSpace(c.cfg.BaseURL) == "" {
		return errors.New("imagegen health: base url required")
	}
	return nil
}

func (c *Client) backoffDelay(attempt int) time.Duration {
	delay := c.retryBase
	for i := 1; i < attempt; i++ {
		if delay > c.retryMax/2 {
			return c.retryMax
		}
		delay *= 2
	}
	return delay
}

func (c *Client) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if c.sleeper != nil {
		c.sleeper(delay)
		return nil
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
