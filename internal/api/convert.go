package api

import (
	"slices"
	"time"

	"vignette/internal/queue"
	"vignette/internal/stage"
	"vignette/internal/workflow"
)

// FromQueueJob converts a queue record to its API representation.
func FromQueueJob(job *queue.Job) QueueJob {
	if job == nil {
		return QueueJob{}
	}
	dto := QueueJob{
		ID:       job.ID,
		Filename: job.Filename,
		Status:   string(job.Status),
		Stage:    job.Status.StageKey(),
		Terminal: job.Status.IsTerminal(),
		Progress: JobProgress{
			Stage:   job.ProgressStage,
			Percent: job.ProgressPercent,
			Message: job.ProgressMessage,
		},
		ErrorMessage:    job.ErrorMessage,
		DurationSeconds: job.DurationSeconds,
		FileSize:        job.FileSize,
		ArtifactDir:     job.ArtifactDir,
	}
	if !job.CreatedAt.IsZero() {
		dto.CreatedAt = job.CreatedAt.UTC().Format(dateTimeFormat)
	}
	if !job.UpdatedAt.IsZero() {
		dto.UpdatedAt = job.UpdatedAt.UTC().Format(dateTimeFormat)
	}
	return dto
}

// FromQueueJobs converts a slice of queue records into API DTOs.
func FromQueueJobs(jobs []*queue.Job) []QueueJob {
	if len(jobs) == 0 {
		return nil
	}
	out := make([]QueueJob, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, FromQueueJob(job))
	}
	return out
}

// FromStatusSummary converts a workflow status summary to an API payload.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	wf := WorkflowStatus{
		Running:     summary.Running,
		QueueStats:  MergeQueueStats(summary.QueueStats),
		StageHealth: StageHealthSlice(summary.StageHealth),
	}
	if summary.LastError != "" {
		wf.LastError = summary.LastError
	}
	if summary.LastJob != nil {
		last := FromQueueJob(summary.LastJob)
		wf.LastJob = &last
	}
	return wf
}

// MergeQueueStats produces a string-keyed representation of queue stats.
func MergeQueueStats(stats map[queue.Status]int) map[string]int {
	out := make(map[string]int, len(stats))
	for status, count := range stats {
		out[string(status)] = count
	}
	return out
}

// StageHealthSlice converts a stage health map into a deterministic slice.
func StageHealthSlice(health map[string]stage.Health) []StageHealth {
	if len(health) == 0 {
		return nil
	}
	names := make([]string, 0, len(health))
	for name := range health {
		names = append(names, name)
	}
	slices.Sort(names)

	out := make([]StageHealth, 0, len(names))
	for _, name := range names {
		h := health[name]
		out = append(out, StageHealth{Name: name, Ready: h.Ready, Detail: h.Detail})
	}
	return out
}

// FormatTime converts a time to RFC3339 or returns an empty string.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
