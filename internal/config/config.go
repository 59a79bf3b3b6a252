package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StagingDir string `toml:"staging_dir"`
	LibraryDir string `toml:"library_dir"`
	LogDir     string `toml:"log_dir"`
}

// Upload contains limits applied when a job is submitted.
type Upload struct {
	MaxFileSizeMiB    int      `toml:"max_file_size_mib"`
	AllowedExtensions []string `toml:"allowed_extensions"`
}

// Transcriber contains configuration for the speech-to-text collaborator.
type Transcriber struct {
	BaseURL                string `toml:"base_url"`
	APIKey                 string `toml:"api_key"`
	Model                  string `toml:"model"`
	TimeoutSeconds         int    `toml:"timeout_seconds"`
	SegmentDurationSeconds int    `toml:"segment_duration_seconds"`
	Workers                int    `toml:"workers"`
	RetryAttempts          int    `toml:"retry_attempts"`
}

// Analyzer contains configuration for the content-analysis collaborator.
// When base_url or api_key is empty the in-process heuristic is used instead.
type Analyzer struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxQueries     int    `toml:"max_queries"`
	WindowSeconds  int    `toml:"window_seconds"`
}

// ImageSearch contains configuration for the image-search collaborator.
type ImageSearch struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	MaxResults     int    `toml:"max_results"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// ImageGen contains configuration for the image/clip generation collaborator.
type ImageGen struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Generation contains tuning for the visual generation stage.
type Generation struct {
	Workers       int `toml:"workers"`
	RetryAttempts int `toml:"retry_attempts"`
}

// Encoder contains configuration for video composition.
type Encoder struct {
	VideoWidth     int `toml:"video_width"`
	VideoHeight    int `toml:"video_height"`
	FPS            int `toml:"fps"`
	TimeoutSeconds int `toml:"timeout_seconds"`
}

// Workflow contains daemon timing and concurrency intervals.
type Workflow struct {
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	HeartbeatInterval  int `toml:"heartbeat_interval"`
	HeartbeatTimeout   int `toml:"heartbeat_timeout"`
	MaxConcurrentJobs  int `toml:"max_concurrent_jobs"`
}

// Notifications contains configuration for push notifications. When
// ntfy_topic is empty notifications are disabled.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for vignette.
//
// Configuration sections by subsystem:
//   - Paths: staging, library, and log directories
//   - Upload: submit-time file limits
//   - Transcriber: speech-to-text collaborator and segmentation budget
//   - Analyzer: content-analysis collaborator and cue budget
//   - ImageSearch / ImageGen / Generation: visual collaborators and workers
//   - Encoder: composition target resolution and frame rate
//   - Workflow: daemon polling intervals, heartbeats, and job concurrency
//   - Notifications: push notifications for finished jobs
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Upload        Upload        `toml:"upload"`
	Transcriber   Transcriber   `toml:"transcriber"`
	Analyzer      Analyzer      `toml:"analyzer"`
	ImageSearch   ImageSearch   `toml:"image_search"`
	ImageGen      ImageGen      `toml:"image_gen"`
	Generation    Generation    `toml:"generation"`
	Encoder       Encoder       `toml:"encoder"`
	Workflow      Workflow      `toml:"workflow"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/vignette/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("vignette.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// LibraryDir is created on a best-effort basis so the daemon can run when
// external storage is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.LibraryDir) != "" {
		_ = os.MkdirAll(c.Paths.LibraryDir, 0o755)
	}
	return nil
}

// FFmpegBinary returns the ffmpeg executable name used for audio extraction
// and video composition.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable name used for media probing.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

// MaxFileSizeBytes returns the upload size cap in bytes.
func (c *Config) MaxFileSizeBytes() int64 {
	return int64(c.Upload.MaxFileSizeMiB) * 1024 * 1024
}

// ExtensionAllowed reports whether an audio filename extension is accepted.
func (c *Config) ExtensionAllowed(name string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	for _, allowed := range c.Upload.AllowedExtensions {
		if ext == strings.ToLower(strings.TrimSpace(allowed)) {
			return true
		}
	}
	return false
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
