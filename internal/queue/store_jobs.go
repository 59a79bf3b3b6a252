package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"vignette/internal/logging"
)

// NewJobParams captures the upload-acceptance tuple handed over by the
// transport layer when a job is created.
type NewJobParams struct {
	Filename        string
	AudioPath       string
	FileSize        int64
	DurationSeconds float64
	Options         Options
	ArtifactDir     string
}

// Create inserts a new job in the uploaded state and returns the stored record.
func (s *Store) Create(ctx context.Context, params NewJobParams) (*Job, error) {
	opts, err := params.Options.Normalize()
	if err != nil {
		return nil, fmt.Errorf("normalize options: %w", err)
	}
	optionsJSON, err := json.Marshal(opts)
	if err != nil {
		return nil, fmt.Errorf("marshal options: %w", err)
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	_, err = s.execWithRetry(
		ctx,
		`INSERT INTO jobs (
            id, filename, audio_path, file_size, duration_seconds, options_json,
            status, created_at, updated_at, progress_stage, progress_percent,
            progress_message, artifact_dir
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		nullableString(params.Filename),
		nullableString(params.AudioPath),
		params.FileSize,
		params.DurationSeconds,
		string(optionsJSON),
		StatusUploaded,
		timestamp,
		timestamp,
		nil,
		0.0,
		nil,
		nullableString(params.ArtifactDir),
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID fetches a job by identifier.
func (s *Store) GetByID(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// Update persists changes to an existing job. Updates against a job that has
// already reached a terminal state are suppressed (logged, not an error) so
// late completion signals from retried stages cannot revert polling results.
func (s *Store) Update(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	ctx = ensureContext(ctx)

	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin update tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		var storedStatus string
		err = tx.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = ?`, job.ID).Scan(&storedStatus)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("read current status: %w", err)
		}

		if Status(storedStatus).IsTerminal() && job.Status != Status(storedStatus) {
			s.logger.Debug("suppressing update against terminal job",
				logging.String(logging.FieldJobID, job.ID),
				logging.String("stored_status", storedStatus),
				logging.String("attempted_status", string(job.Status)),
			)
			job.Status = Status(storedStatus)
			return nil
		}

		job.UpdatedAt = time.Now().UTC()
		_, err = tx.ExecContext(
			ctx,
			`UPDATE jobs
             SET filename = ?, audio_path = ?, file_size = ?, duration_seconds = ?,
                 options_json = ?, status = ?, error_message = ?, updated_at = ?,
                 progress_stage = ?, progress_percent = ?, progress_message = ?,
                 last_heartbeat = ?, artifact_dir = ?
             WHERE id = ?`,
			nullableString(job.Filename),
			nullableString(job.AudioPath),
			job.FileSize,
			job.DurationSeconds,
			nullableString(job.OptionsJSON),
			job.Status,
			nullableString(job.ErrorMessage),
			job.UpdatedAt.Format(time.RFC3339Nano),
			nullableString(job.ProgressStage),
			job.ProgressPercent,
			nullableString(job.ProgressMessage),
			nullableTime(job.LastHeartbeat),
			nullableString(job.ArtifactDir),
			job.ID,
		)
		if err != nil {
			return fmt.Errorf("update job: %w", err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit update: %w", err)
		}
		return nil
	})
}

// NextForStatuses returns the oldest job matching any of the provided statuses.
func (s *Store) NextForStatuses(ctx context.Context, statuses ...Status) (*Job, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := makePlaceholders(len(statuses))
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = status
	}

	query := `SELECT ` + jobColumns + ` FROM jobs WHERE status IN (` + placeholders + `) ORDER BY created_at LIMIT 1`
	row := s.db.QueryRowContext(ensureContext(ctx), query, args...)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// List returns jobs filtered by status set (or all jobs when no status is provided).
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	var (
		rows *sql.Rows
		err  error
	)
	ctx = ensureContext(ctx)

	baseQuery := `SELECT ` + jobColumns + ` FROM jobs`
	orderClause := ` ORDER BY created_at`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		query := baseQuery + ` WHERE status IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// UpdateHeartbeat updates the last heartbeat timestamp for an in-flight job.
func (s *Store) UpdateHeartbeat(ctx context.Context, id string) error {
	now := time.Now().UTC()
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET last_heartbeat = ?, updated_at = ? WHERE id = ?`,
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("heartbeat rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
