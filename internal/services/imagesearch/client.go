package imagesearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"vignette/internal/services"
	"vignette/internal/storyboard"
)

const (
	defaultHTTPTimeout   = 20 * time.Second
	defaultRetryAttempts = 3
	defaultRetryBase     = 500 * time.Millisecond
	defaultRetryMax      = 5 * time.Second
	defaultMaxResults    = 3
)

// Config captures the runtime settings for the image search collaborator.
type Config struct {
	BaseURL        string
	APIKey         string
	MaxResults     int
	TimeoutSeconds int
}

// Client queries the image search collaborator.
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

// NewClient constructs an image search client.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = defaultMaxResults
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

type searchResponse struct {
	Results []struct {
		URL         string  `json:"url"`
		Description string  `json:"description"`
		Score       float64 `json:"score"`
	} `json:"results"`
}

// Search returns scored candidates for a cue query, capped at the configured
// result count. Transient failures are retried with backoff.
func (c *Client) Search(ctx context.Context, cue storyboard.Cue) ([]storyboard.CandidateImage, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "imagesearch", "search", "api key required", nil)
	}
	if strings.TrimSpace(cue.Query) == "" {
		return nil, services.Wrap(services.ErrValidation, "imagesearch", "search", "query is empty", nil)
	}

	var lastErr error
	for attempt := 1; attempt <= defaultRetryAttempts; attempt++ {
		candidates, err := c.searchOnce(ctx, cue)
		if err == nil {
			return candidates, nil
		}
		lastErr = err
		if !services.IsRetryable(err) || attempt == defaultRetryAttempts || ctx.Err() != nil {
			break
		}
		if err := c.sleep(ctx, c.backoffDelay(attempt)); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) searchOnce(ctx context.Context, cue storyboard.Cue) ([]storyboard.CandidateImage, error) {
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/search?" + url.Values{
		"q":     {cue.Query},
		"count": {strconv.Itoa(c.cfg.MaxResults)},
	}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "imagesearch", "search", "http error", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "imagesearch", "search", "read response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode, body)
	}

	var decoded searchResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, services.Wrap(services.ErrTransient, "imagesearch", "search", "decode response", err)
	}

	candidates := make([]storyboard.CandidateImage, 0, len(decoded.Results))
	for _, result := range decoded.Results {
		if strings.TrimSpace(result.URL) == "" {
			continue
		}
		score := result.Score
		if score < 0 {
			score = 0
		}
		if score > 1 {
			score = 1
		}
		candidates = append(candidates, storyboard.CandidateImage{
			Cue:            cue,
			URL:            result.URL,
			Source:         storyboard.SourceSearch,
			Kind:           storyboard.MediaImage,
			RelevanceScore: score,
			Description:    strings.TrimSpace(result.Description),
		})
		if len(candidates) == c.cfg.MaxResults {
			break
		}
	}
	return candidates, nil
}

func classifyStatus(status int, body []byte) error {
	detail := fmt.Sprintf("http %d: %s", status, strings.TrimSpace(string(body)))
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return services.Wrap(services.ErrConfiguration, "imagesearch", "search", detail, nil)
	case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
		return services.Wrap(services.ErrTransient, "imagesearch", "search", detail, nil)
	default:
		return services.Wrap(services.ErrValidation, "imagesearch", "search", detail, nil)
	}
}

// Download fetches a candidate's content for storage.
func (c *Client) Download(ctx context.Context, candidate storyboard.CandidateImage) (io.ReadCloser, string, error) {
	return services.FetchURL(ctx, c.httpClient, candidate.URL)
}

// HealthCheck verifies the collaborator is configured.
func (c *Client) HealthCheck(ctx context.Context) error {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return errors.New("imagesearch health: api key required")
	}
	if strings.TrimSpace(c.cfg.BaseURL) == "" {
		return errors.New("imagesearch health: base url required")
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
