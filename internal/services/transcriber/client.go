package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"vignette/internal/services"
	"vignette/internal/transcript"
)

const (
	defaultHTTPTimeout   = 120 * time.Second
	defaultRetryAttempts = 3
	defaultRetryBase     = 1 * time.Second
	defaultRetryMax      = 15 * time.Second
)

// Config captures the runtime settings for the transcription collaborator.
type Config struct {
	BaseURL        string
	APIKey         string
	Model          string
	TimeoutSeconds int
	RetryAttempts  int
}

// Client submits audio segments to the transcription collaborator.
type Client struct {
	cfg           Config
	httpClient    *http.Client
	ffmpegBinary  string
	ffprobeBinary string
	commandRunner func(ctx context.Context, name string, args ...string) error
	outputRunner  func(ctx context.Context, name string, args ...string) (string, error)
	retryBase     time.Duration
	retryMax      time.Duration
	sleeper       func(time.Duration)
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

// WithCommandRunner sets a custom command runner (for testing).
func WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) Option {
	return func(c *Client) {
		c.commandRunner = runner
	}
}

// WithOutputRunner sets a custom output-capturing command runner (for testing).
func WithOutputRunner(runner func(ctx context.Context, name string, args ...string) (string, error)) Option {
	return func(c *Client) {
		c.outputRunner = runner
	}
}

// WithRetryBackoff overrides the retry backoff delays.
func WithRetryBackoff(base, max time.Duration) Option {
	return func(c *Client) {
		c.retryBase = base
		c.retryMax = max
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

// NewClient constructs a transcriber client.
func NewClient(cfg Config, ffmpegBinary, ffprobeBinary string, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = defaultRetryAttempts
	}
	client := &Client{
		cfg:           cfg,
		httpClient:    &http.Client{Timeout: timeout},
		ffmpegBinary:  ffmpegBinary,
		ffprobeBinary: ffprobeBinary,
		retryBase:     defaultRetryBase,
		retryMax:      defaultRetryMax,
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.BaseURL == "" {
		client.cfg.BaseURL = "https://api.openai.com/v1"
	}
	return client
}

// Model returns the configured model name for logging.
func (c *Client) Model() string {
	if c.cfg.Model != "" {
		return c.cfg.Model
	}
	return "whisper-1"
}

// ExtractSegment extracts a [start,start+duration) slice of the source audio
// to a mono 16kHz WAV file at dest.
func (c *Client) ExtractSegment(ctx context.Context, source string, startSec, durationSec float64, dest string) error {
	if durationSec <= 0 {
		return services.Wrap(services.ErrValidation, "transcriber", "extract segment", fmt.Sprintf("invalid duration %g", durationSec), nil)
	}
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-ss", fmt.Sprintf("%g", startSec),
		"-t", fmt.Sprintf("%g", durationSec),
		"-i", source,
		"-vn",
		"-sn",
		"-dn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		dest,
	}
	if err := c.run(ctx, c.ffmpegBinary, args...); err != nil {
		return services.Wrap(services.ErrExternalTool, "transcriber", "extract segment", source, err)
	}
	return nil
}

// ProbeDuration reads the audio duration in seconds via ffprobe.
func (c *Client) ProbeDuration(ctx context.Context, source string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		source,
	}
	output, err := c.runOutput(ctx, c.ffprobeBinary, args...)
	if err != nil {
		return 0, services.Wrap(services.ErrExternalTool, "transcriber", "probe duration", source, err)
	}
	var duration float64
	if _, err := fmt.Sscanf(strings.TrimSpace(output), "%g", &duration); err != nil {
		return 0, services.Wrap(services.ErrExternalTool, "transcriber", "probe duration", fmt.Sprintf("unparseable ffprobe output %q", strings.TrimSpace(output)), err)
	}
	return duration, nil
}

// Transcribe submits one extracted WAV segment and returns its entries with
// segment-local timestamps. Retries transient failures with backoff.
func (c *Client) Transcribe(ctx context.Context, wavPath string) ([]transcript.Entry, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "transcriber", "transcribe", "api key required", nil)
	}

	attempts := c.cfg.RetryAttempts
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		entries, err := c.transcribeOnce(ctx, wavPath)
		if err == nil {
			return entries, nil
		}
		lastErr = err
		if !services.IsRetryable(err) || attempt == attempts || ctx.Err() != nil {
			break
		}
		if err := c.sleep(ctx, c.backoffDelay(attempt)); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

type verboseTranscription struct {
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
	Text string `json:"text"`
}

func (c *Client) transcribeOnce(ctx context.Context, wavPath string) ([]transcript.Entry, error) {
	file, err := os.Open(wavPath)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "transcriber", "transcribe", wavPath, err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filepath.Base(wavPath))
	if err != nil {
		return nil, fmt.Errorf("build multipart: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("copy audio into request: %w", err)
	}
	_ = writer.WriteField("model", c.Model())
	_ = writer.WriteField("response_format", "verbose_json")
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalize multipart: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "transcriber", "transcribe", "http error", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "transcriber", "transcribe", "read response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode, payload)
	}

	var decoded verboseTranscription
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, services.Wrap(services.ErrTransient, "transcriber", "transcribe", "decode response", err)
	}

	entries := make([]transcript.Entry, 0, len(decoded.Segments))
	for _, segment := range decoded.Segments {
		entries = append(entries, transcript.Entry{
			StartSeconds: segment.Start,
			EndSeconds:   segment.End,
			Text:         strings.TrimSpace(segment.Text),
		})
	}
	return entries, nil
}

func classifyStatus(status int, body []byte) error {
	detail := fmt.Sprintf("http %d: %s", status, strings.TrimSpace(string(body)))
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return services.Wrap(services.ErrConfiguration, "transcriber", "transcribe", detail, nil)
	case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
		return services.Wrap(services.ErrTransient, "transcriber", "transcribe", detail, nil)
	default:
		return services.Wrap(services.ErrValidation, "transcriber", "transcribe", detail, nil)
	}
}

// HealthCheck verifies the collaborator credentials and local ffmpeg binaries
// are available.
func (c *Client) HealthCheck(ctx context.Context) error {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return errors.New("transcriber health: api key required")
	}
	if _, err := exec.LookPath(c.ffmpegBinary); err != nil {
		return fmt.Errorf("transcriber health: %s not found: %w", c.ffmpegBinary, err)
	}
	if _, err := exec.LookPath(c.ffprobeBinary); err != nil {
		return fmt.Errorf("transcriber health: %s not found: %w", c.ffprobeBinary, err)
	}
	return nil
}

func (c *Client) run(ctx context.Context, name string, args ...string) error {
	if c.commandRunner != nil {
		return c.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

func (c *Client) runOutput(ctx context.Context, name string, args ...string) (string, error) {
	if c.outputRunner != nil {
		return c.outputRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return string(output), nil
}

func (c *Client) backoffDelay(attempt int) time.Duration {
	delay := c.retryBase
	for i := 1; i < attempt; i++ {
		if delay > c.retryMax/2 {
			return c.retryMax
		}
		delay *= 2
	}
	if delay > c.retryMax {
		return c.retryMax
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
