package queue

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle of a pipeline job.
type Status string

const (
	StatusUploaded     Status = "uploaded"
	StatusTranscribing Status = "transcribing"
	StatusTranscribed  Status = "transcribed"
	StatusAnalyzing    Status = "analyzing"
	StatusAnalyzed     Status = "analyzed"
	StatusGenerating   Status = "generating"
	StatusGenerated    Status = "generated"
	StatusComposing    Status = "composing"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
)

var allStatuses = []Status{
	StatusUploaded,
	StatusTranscribing,
	StatusTranscribed,
	StatusAnalyzing,
	StatusAnalyzed,
	StatusGenerating,
	StatusGenerated,
	StatusComposing,
	StatusCompleted,
	StatusFailed,
}

var statusRank = func() map[Status]int {
	rank := make(map[Status]int, len(allStatuses))
	for i, status := range allStatuses {
		rank[status] = i
	}
	return rank
}()

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var processingStatuses = map[Status]struct{}{
	StatusTranscribing: {},
	StatusAnalyzing:    {},
	StatusGenerating:   {},
	StatusComposing:    {},
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsProcessingStatus reports whether a status reflects an in-flight stage.
func IsProcessingStatus(status Status) bool {
	_, ok := processingStatuses[status]
	return ok
}

// IsTerminal reports whether a status admits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// StageKey maps an internal status to the caller-visible pipeline stage.
func (s Status) StageKey() string {
	switch s {
	case StatusUploaded:
		return "uploaded"
	case StatusTranscribing, StatusTranscribed:
		return "transcribing"
	case StatusAnalyzing, StatusAnalyzed:
		return "analyzing"
	case StatusGenerating, StatusGenerated:
		return "generating"
	case StatusComposing:
		return "composing"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return ""
	}
}

// Options captures the per-job pipeline configuration accepted at submit time.
type Options struct {
	SegmentDurationSeconds int  `json:"segment_duration_seconds"`
	GenerateImages         bool `json:"generate_images"`
	GenerateVideos         bool `json:"generate_videos"`
	MaxQueries             int  `json:"max_queries"`
}

// DefaultOptions returns the submit-time defaults for unset pipeline options.
func DefaultOptions() Options {
	return Options{
		SegmentDurationSeconds: 600,
		GenerateImages:         true,
		GenerateVideos:         false,
		MaxQueries:             15,
	}
}

// Normalize fills zero values with defaults and rejects invalid settings.
func (o Options) Normalize() (Options, error) {
	defaults := DefaultOptions()
	if o.SegmentDurationSeconds == 0 {
		o.SegmentDurationSeconds = defaults.SegmentDurationSeconds
	}
	if o.MaxQueries == 0 {
		o.MaxQueries = defaults.MaxQueries
	}
	if o.SegmentDurationSeconds < 0 {
		return o, fmt.Errorf("segment duration must be positive, got %d", o.SegmentDurationSeconds)
	}
	if o.MaxQueries < 0 {
		return o, fmt.Errorf("max queries must be positive, got %d", o.MaxQueries)
	}
	return o, nil
}

// Job represents a pipeline job persisted in SQLite.
type Job struct {
	ID              string
	Filename        string
	AudioPath       string
	FileSize        int64
	DurationSeconds float64
	OptionsJSON     string
	Status          Status
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ProgressStage   string
	ProgressPercent float64
	ProgressMessage string
	LastHeartbeat   *time.Time
	ArtifactDir     string
}

// Options decodes the job's stored pipeline options, applying defaults for
// anything missing.
func (j *Job) Options() Options {
	opts := DefaultOptions()
	if strings.TrimSpace(j.OptionsJSON) == "" {
		return opts
	}
	if err := json.Unmarshal([]byte(j.OptionsJSON), &opts); err != nil {
		return DefaultOptions()
	}
	if normalized, err := opts.Normalize(); err == nil {
		opts = normalized
	}
	return opts
}

// IsProcessing returns true when the job reflects an in-flight stage.
func (j Job) IsProcessing() bool {
	return IsProcessingStatus(j.Status)
}

// IsTerminal reports whether the job has reached a terminal state.
func (j Job) IsTerminal() bool {
	return j.Status.IsTerminal()
}

// SetProgress updates all three progress fields atomically.
func (j *Job) SetProgress(stage, message string, percent float64) {
	j.ProgressStage = stage
	j.ProgressMessage = message
	j.ProgressPercent = percent
}

// SetFailed marks the job as failed with the given error message.
// Clears the heartbeat and freezes progress at its last value.
func (j *Job) SetFailed(message string) {
	j.Status = StatusFailed
	j.ErrorMessage = message
	j.ProgressMessage = message
	j.ProgressStage = "Failed"
	j.LastHeartbeat = nil
}

// HealthSummary describes aggregated job counts per key lifecycle states.
type HealthSummary struct {
	Total      int
	Uploaded   int
	Processing int
	Failed     int
	Completed  int
}
