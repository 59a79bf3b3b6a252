package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// QueueJob describes a queue entry in a transport-friendly format.
type QueueJob struct {
	ID              string      `json:"id"`
	Filename        string      `json:"filename"`
	Status          string      `json:"status"`
	Stage           string      `json:"stage"`
	Terminal        bool        `json:"terminal"`
	Progress        JobProgress `json:"progress"`
	ErrorMessage    string      `json:"errorMessage,omitempty"`
	DurationSeconds float64     `json:"durationSeconds"`
	FileSize        int64       `json:"fileSize"`
	ArtifactDir     string      `json:"artifactDir,omitempty"`
	CreatedAt       string      `json:"createdAt,omitempty"`
	UpdatedAt       string      `json:"updatedAt,omitempty"`
}

// JobProgress captures stage progress information for a queue entry.
type JobProgress struct {
	Stage   string  `json:"stage"`
	Percent float64 `json:"percent"`
	Message string  `json:"message"`
}

// WorkflowStatus summarizes workflow execution state.
type WorkflowStatus struct {
	Running     bool           `json:"running"`
	QueueStats  map[string]int `json:"queueStats"`
	LastError   string         `json:"lastError,omitempty"`
	LastJob     *QueueJob      `json:"lastJob,omitempty"`
	StageHealth []StageHealth  `json:"stageHealth"`
}

// StageHealth mirrors readiness reporting for workflow stages.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// QueueStatsResponse provides a normalized queue stats payload.
type QueueStatsResponse struct {
	Counts map[string]int `json:"counts"`
}

// QueueListResponse wraps a collection of queue jobs for API responses.
type QueueListResponse struct {
	Jobs []QueueJob `json:"jobs"`
}
