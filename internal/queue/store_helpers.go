package queue

import (
	"database/sql"
	"errors"
	"time"
)

const jobColumns = "id, filename, audio_path, file_size, duration_seconds, options_json, status, error_message, created_at, updated_at, progress_stage, progress_percent, progress_message, last_heartbeat, artifact_dir"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id               string
		filename         sql.NullString
		audioPath        sql.NullString
		fileSize         sql.NullInt64
		duration         sql.NullFloat64
		optionsJSON      sql.NullString
		statusStr        string
		errorMessage     sql.NullString
		createdRaw       sql.NullString
		updatedRaw       sql.NullString
		progressStage    sql.NullString
		progressPercent  sql.NullFloat64
		progressMessage  sql.NullString
		lastHeartbeatRaw sql.NullString
		artifactDir      sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&filename,
		&audioPath,
		&fileSize,
		&duration,
		&optionsJSON,
		&statusStr,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
		&progressStage,
		&progressPercent,
		&progressMessage,
		&lastHeartbeatRaw,
		&artifactDir,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:              id,
		Filename:        filename.String,
		AudioPath:       audioPath.String,
		FileSize:        fileSize.Int64,
		DurationSeconds: duration.Float64,
		OptionsJSON:     optionsJSON.String,
		Status:          Status(statusStr),
		ErrorMessage:    errorMessage.String,
		ProgressStage:   progressStage.String,
		ProgressPercent: progressPercent.Float64,
		ProgressMessage: progressMessage.String,
		ArtifactDir:     artifactDir.String,
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	if lastHeartbeatRaw.Valid {
		if heartbeat, err := parseTimeString(lastHeartbeatRaw.String); err == nil {
			job.LastHeartbeat = &heartbeat
		}
	}
	return job, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
