package config

import (
	"errors"
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	var err error
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return err
	}
	if c.Paths.LibraryDir, err = expandPath(c.Paths.LibraryDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}

	c.Transcriber.BaseURL = strings.TrimSpace(c.Transcriber.BaseURL)
	c.Transcriber.APIKey = strings.TrimSpace(c.Transcriber.APIKey)
	c.Analyzer.BaseURL = strings.TrimSpace(c.Analyzer.BaseURL)
	c.Analyzer.APIKey = strings.TrimSpace(c.Analyzer.APIKey)
	c.ImageSearch.BaseURL = strings.TrimSpace(c.ImageSearch.BaseURL)
	c.ImageSearch.APIKey = strings.TrimSpace(c.ImageSearch.APIKey)
	c.ImageGen.BaseURL = strings.TrimSpace(c.ImageGen.BaseURL)
	c.ImageGen.APIKey = strings.TrimSpace(c.ImageGen.APIKey)
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)

	normalized := make([]string, 0, len(c.Upload.AllowedExtensions))
	for _, ext := range c.Upload.AllowedExtensions {
		ext = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(ext, ".")))
		if ext != "" {
			normalized = append(normalized, ext)
		}
	}
	c.Upload.AllowedExtensions = normalized

	return nil
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		problems = append(problems, "paths.staging_dir is required")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		problems = append(problems, "paths.log_dir is required")
	}
	if c.Upload.MaxFileSizeMiB <= 0 {
		problems = append(problems, "upload.max_file_size_mib must be positive")
	}
	if len(c.Upload.AllowedExtensions) == 0 {
		problems = append(problems, "upload.allowed_extensions must not be empty")
	}
	if c.Transcriber.SegmentDurationSeconds <= 0 {
		problems = append(problems, "transcriber.segment_duration_seconds must be positive")
	}
	if c.Transcriber.Workers <= 0 {
		problems = append(problems, "transcriber.workers must be positive")
	}
	if c.Transcriber.RetryAttempts < 0 {
		problems = append(problems, "transcriber.retry_attempts must not be negative")
	}
	if c.Analyzer.MaxQueries <= 0 {
		problems = append(problems, "analyzer.max_queries must be positive")
	}
	if c.Analyzer.WindowSeconds <= 0 {
		problems = append(problems, "analyzer.window_seconds must be positive")
	}
	if c.ImageSearch.MaxResults <= 0 {
		problems = append(problems, "image_search.max_results must be positive")
	}
	if c.Generation.Workers <= 0 {
		problems = append(problems, "generation.workers must be positive")
	}
	if c.Encoder.VideoWidth <= 0 || c.Encoder.VideoHeight <= 0 {
		problems = append(problems, "encoder.video_width and encoder.video_height must be positive")
	}
	if c.Encoder.FPS <= 0 {
		problems = append(problems, "encoder.fps must be positive")
	}
	if c.Workflow.QueuePollInterval <= 0 {
		problems = append(problems, "workflow.queue_poll_interval must be positive")
	}
	if c.Workflow.HeartbeatInterval <= 0 || c.Workflow.HeartbeatTimeout <= 0 {
		problems = append(problems, "workflow.heartbeat_interval and workflow.heartbeat_timeout must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		problems = append(problems, "workflow.heartbeat_timeout must exceed workflow.heartbeat_interval")
	}
	if c.Workflow.MaxConcurrentJobs <= 0 {
		problems = append(problems, "workflow.max_concurrent_jobs must be positive")
	}

	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "text", "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q is not supported", c.Logging.Format))
	}

	if len(problems) > 0 {
		return errors.New("invalid configuration: " + strings.Join(problems, "; "))
	}
	return nil
}
