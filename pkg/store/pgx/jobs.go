package pgx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cleargate-io/cleargate/pkg/screening"

	pgxv5 "github.com/jackc/pgx/v5"
)

// ErrJobNotFound is returned for unknown screening job ids.
var ErrJobNotFound = errors.New("screening job not found")

// JobStatus is the lifecycle state of an async screening job.
type JobStatus string

const (
	JobQueued  JobStatus = "queued"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// ScreenJob is an asynchronous screening request processed by the worker.
// Report is set once the job is done; ReportKey points at the CSV export in
// object storage.
type ScreenJob struct {
	ID        string            `json:"id"`
	Status    JobStatus         `json:"status"`
	Names     []string          `json:"names"`
	Report    *screening.Report `json:"report,omitempty"`
	ReportKey string            `json:"report_key,omitempty"`
	Error     string            `json:"error,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func (s *Store) CreateScreenJob(ctx context.Context, id string, names []string) (ScreenJob, error) {
	namesJSON, err := json.Marshal(names)
	if err != nil {
		return ScreenJob{}, fmt.Errorf("failed to encode job names: %w", err)
	}

	var job ScreenJob
	err = s.conn.QueryRow(ctx, `
		INSERT INTO screen_jobs (id, status, names)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at`,
		id, string(JobQueued), namesJSON,
	).Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return ScreenJob{}, fmt.Errorf("failed to create screening job: %w", err)
	}

	job.ID = id
	job.Status = JobQueued
	job.Names = names
	return job, nil
}

func (s *Store) GetScreenJob(ctx context.Context, id string) (ScreenJob, error) {
	var (
		job        ScreenJob
		status     string
		namesJSON  []byte
		reportJSON []byte
	)
	err := s.conn.QueryRow(ctx, `
		SELECT id, status, names, report, report_key, error, created_at, updated_at
		FROM screen_jobs
		WHERE id = $1`, id,
	).Scan(&job.ID, &status, &namesJSON, &reportJSON, &job.ReportKey, &job.Error, &job.CreatedAt, &job.UpdatedAt)
	if errors.Is(err, pgxv5.ErrNoRows) {
		return ScreenJob{}, ErrJobNotFound
	}
	if err != nil {
		return ScreenJob{}, fmt.Errorf("failed to get screening job %s: %w", id, err)
	}

	job.Status = JobStatus(status)
	if err := json.Unmarshal(namesJSON, &job.Names); err != nil {
		return ScreenJob{}, fmt.Errorf("failed to decode names of job %s: %w", id, err)
	}
	if len(reportJSON) > 0 {
		job.Report = &screening.Report{}
		if err := json.Unmarshal(reportJSON, job.Report); err != nil {
			return ScreenJob{}, fmt.Errorf("failed to decode report of job %s: %w", id, err)
		}
	}
	return job, nil
}

func (s *Store) MarkScreenJobRunning(ctx context.Context, id string) error {
	return s.setJobStatus(ctx, id, JobRunning, `
		UPDATE screen_jobs
		SET status = $2, updated_at = now()
		WHERE id = $1`)
}

func (s *Store) CompleteScreenJob(ctx context.Context, id string, report *screening.Report, reportKey string) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode report of job %s: %w", id, err)
	}

	tag, err := s.conn.Exec(ctx, `
		UPDATE screen_jobs
		SET status = $2, report = $3, report_key = $4, error = '', updated_at = now()
		WHERE id = $1`,
		id, string(JobDone), reportJSON, reportKey,
	)
	if err != nil {
		return fmt.Errorf("failed to complete screening job %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *Store) FailScreenJob(ctx context.Context, id string, jobErr string) error {
	tag, err := s.conn.Exec(ctx, `
		UPDATE screen_jobs
		SET status = $2, error = $3, updated_at = now()
		WHERE id = $1`,
		id, string(JobFailed), jobErr,
	)
	if err != nil {
		return fmt.Errorf("failed to fail screening job %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *Store) setJobStatus(ctx context.Context, id string, status JobStatus, query string) error {
	tag, err := s.conn.Exec(ctx, query, id, string(status))
	if err != nil {
		return fmt.Errorf("failed to update screening job %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}
