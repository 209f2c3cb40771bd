package imagepulse

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobStatus tracks a pull job through its lifecycle.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// ErrJobNotFound is returned by GetJob for unknown job ids.
var ErrJobNotFound = errors.New("job not found")

// Job is one queued image pull.
type Job struct {
	ID          string
	Image       string
	Status      JobStatus
	Result      string
	ErrorDetail string
	RetryCount  int64
	Priority    int64
	CreatedAt   time.Time
}

// JobMetric is one measurement recorded while executing a job.
type JobMetric struct {
	JobID     string
	Key       string
	Value     float64
	Unit      string
	Labels    map[string]any
	CreatedAt time.Time
}

// InsertJob enqueues a pull job for the image and returns its id.
func (s *Store) InsertJob(ctx context.Context, image string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO jobs (id, image, status, created_at) VALUES (?, ?, 'queued', ?)",
		id, image, formatTime(time.Now()),
	)
	if err != nil {
		return "", &WriteError{Err: fmt.Errorf("failed to insert job for %s: %w", image, err)}
	}
	return id, nil
}

// ClaimNextJob atomically claims the next eligible job: a queued one,
// or a running one whose lease has expired (its worker died). The claim
// marks the job running and sets a fresh lease. Returns nil when there
// is nothing to do.
//
// Lease expiry is stored as unix nanoseconds so the comparison is
// numeric and sub-second.
func (s *Store) ClaimNextJob(ctx context.Context, lease time.Duration) (*Job, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now()
	var job Job
	var createdAt string
	err = tx.QueryRowContext(ctx, `
		SELECT id, image, retry_count, priority, created_at
		  FROM jobs
		 WHERE status = 'queued'
		    OR (status = 'running' AND (lease_expires_at IS NULL OR lease_expires_at < ?))
		 ORDER BY priority DESC, created_at ASC, rowid ASC
		 LIMIT 1
	`, now.UnixNano()).Scan(&job.ID, &job.Image, &job.RetryCount, &job.Priority, &createdAt)
	if err == sql.ErrNoRows {
		return nil, tx.Commit()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select next job: %w", err)
	}
	if job.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at for job %s: %w", job.ID, err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE jobs
		   SET status = 'running',
		       started_at = COALESCE(started_at, ?),
		       lease_expires_at = ?
		 WHERE id = ?
	`, formatTime(now), now.Add(lease).UnixNano(), job.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to claim job %s: %w", job.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	job.Status = JobRunning
	return &job, nil
}

// HeartbeatJob extends a running job's lease.
func (s *Store) HeartbeatJob(ctx context.Context, id string, lease time.Duration) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		"UPDATE jobs SET last_heartbeat = ?, lease_expires_at = ? WHERE id = ?",
		formatTime(now), now.Add(lease).UnixNano(), id,
	)
	if err != nil {
		return &WriteError{Err: fmt.Errorf("failed to heartbeat job %s: %w", id, err)}
	}
	return nil
}

// CompleteJob marks a running job as completed with its result log.
func (s *Store) CompleteJob(ctx context.Context, id string, result string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		   SET status = 'completed', result = ?, finished_at = ?
		 WHERE id = ?
	`, result, formatTime(time.Now()), id)
	if err != nil {
		return &WriteError{Err: fmt.Errorf("failed to complete job %s: %w", id, err)}
	}
	return nil
}

// FailJob marks a job as failed with an error detail and bumps its
// retry count.
func (s *Store) FailJob(ctx context.Context, id string, detail string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		   SET status = 'failed', error_detail = ?, finished_at = ?,
		       retry_count = retry_count + 1
		 WHERE id = ?
	`, detail, formatTime(time.Now()), id)
	if err != nil {
		return &WriteError{Err: fmt.Errorf("failed to mark job %s failed: %w", id, err)}
	}
	return nil
}

// ListJobs returns every job, newest first.
func (s *Store) ListJobs(ctx context.Context) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, image, status, COALESCE(result, ''), COALESCE(error_detail, ''),
		       retry_count, priority, created_at
		  FROM jobs
		 ORDER BY created_at DESC, rowid DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// GetJob returns one job by id, or ErrJobNotFound.
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, image, status, COALESCE(result, ''), COALESCE(error_detail, ''),
		       retry_count, priority, created_at
		  FROM jobs
		 WHERE id = ?
	`, id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var job Job
	var createdAt string
	err := row.Scan(&job.ID, &job.Image, &job.Status, &job.Result,
		&job.ErrorDetail, &job.RetryCount, &job.Priority, &createdAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}
	if job.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at for job %s: %w", job.ID, err)
	}
	return &job, nil
}

// InsertJobMetric upserts one measurement for a job. Labels are stored
// as a JSON object; nil means no labels.
func (s *Store) InsertJobMetric(ctx context.Context, jobID, key string, value float64, unit string, labels map[string]any) error {
	var labelsJSON any
	if labels != nil {
		b, err := json.Marshal(labels)
		if err != nil {
			return fmt.Errorf("failed to marshal labels for %s/%s: %w", jobID, key, err)
		}
		labelsJSON = string(b)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO job_metrics (job_id, key, value, unit, labels_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id, key) DO UPDATE SET
			value = excluded.value,
			unit = COALESCE(excluded.unit, job_metrics.unit),
			labels_json = COALESCE(excluded.labels_json, job_metrics.labels_json),
			created_at = excluded.created_at
	`, jobID, key, value, unit, labelsJSON, formatTime(time.Now()))
	if err != nil {
		return &WriteError{Err: fmt.Errorf("failed to insert metric %s for job %s: %w", key, jobID, err)}
	}
	return nil
}

// JobMetrics returns every metric recorded for one job, newest first.
func (s *Store) JobMetrics(ctx context.Context, jobID string) ([]JobMetric, error) {
	return s.queryJobMetrics(ctx,
		`SELECT job_id, key, value, unit, labels_json, created_at
		   FROM job_metrics WHERE job_id = ? ORDER BY created_at DESC, rowid DESC`, jobID)
}

// RecentMetrics returns the most recent job metric rows across all
// jobs, up to limit.
func (s *Store) RecentMetrics(ctx context.Context, limit int64) ([]JobMetric, error) {
	return s.queryJobMetrics(ctx,
		`SELECT job_id, key, value, unit, labels_json, created_at
		   FROM job_metrics ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
}

func (s *Store) queryJobMetrics(ctx context.Context, query string, args ...any) ([]JobMetric, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query job metrics: %w", err)
	}
	defer rows.Close()

	var metrics []JobMetric
	for rows.Next() {
		var m JobMetric
		var unit, labelsJSON sql.NullString
		var value sql.NullFloat64
		var createdAt string
		if err := rows.Scan(&m.JobID, &m.Key, &value, &unit, &labelsJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan job metric: %w", err)
		}
		m.Value = value.Float64
		m.Unit = unit.String
		if labelsJSON.Valid {
			if err := json.Unmarshal([]byte(labelsJSON.String), &m.Labels); err != nil {
				return nil, fmt.Errorf("failed to parse labels for %s/%s: %w", m.JobID, m.Key, err)
			}
		}
		if m.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse created_at for metric %s: %w", m.Key, err)
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}
