package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/counselhq/counsel/internal/schedule"
)

// CreateScheduledJob inserts a recurring job definition. The caller computes
// the initial NextRunAt; the policy is assumed validated.
func (s *Store) CreateScheduledJob(j ScheduledJob) (ScheduledJob, error) {
	now := time.Now().UTC()
	if j.Status == "" {
		j.Status = JobActive
	}
	res, err := s.db.Exec(`
		INSERT INTO scheduled_jobs (name, prompt_template, policy, agent_id, status, next_run_at, last_run_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, '', ?, ?)`,
		j.Name, j.PromptTemplate, string(j.Policy), nullInt(j.AgentID), j.Status,
		fmtTime(j.NextRunAt), fmtTime(now), fmtTime(now),
	)
	if err != nil {
		return ScheduledJob{}, fmt.Errorf("inserting scheduled job: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return ScheduledJob{}, fmt.Errorf("reading scheduled job id: %w", err)
	}
	return s.GetScheduledJob(id)
}

const scheduledJobColumns = `id, name, prompt_template, policy, agent_id, status, next_run_at, last_run_at, last_prompt_id, last_run_status, created_at, updated_at`

func scanScheduledJob(row interface{ Scan(...any) error }) (ScheduledJob, error) {
	var j ScheduledJob
	var policy, nextRunAt, createdAt, updatedAt string
	var lastRunAt sql.NullString
	var agentID, lastPromptID sql.NullInt64
	if err := row.Scan(&j.ID, &j.Name, &j.PromptTemplate, &policy, &agentID, &j.Status,
		&nextRunAt, &lastRunAt, &lastPromptID, &j.LastRunStatus, &createdAt, &updatedAt); err != nil {
		return ScheduledJob{}, err
	}
	j.Policy = schedule.Policy(policy)
	j.AgentID = intPtr(agentID)
	j.LastPromptID = intPtr(lastPromptID)

	var err error
	if j.NextRunAt, err = parseTime(nextRunAt); err != nil {
		return ScheduledJob{}, err
	}
	if lastRunAt.Valid {
		t, err := parseTime(lastRunAt.String)
		if err != nil {
			return ScheduledJob{}, err
		}
		j.LastRunAt = &t
	}
	if j.CreatedAt, err = parseTime(createdAt); err != nil {
		return ScheduledJob{}, err
	}
	if j.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return ScheduledJob{}, err
	}
	return j, nil
}

// GetScheduledJob returns the job with the given id.
func (s *Store) GetScheduledJob(id int64) (ScheduledJob, error) {
	row := s.db.QueryRow(`SELECT `+scheduledJobColumns+` FROM scheduled_jobs WHERE id = ?`, id)
	j, err := scanScheduledJob(row)
	if err == sql.ErrNoRows {
		return ScheduledJob{}, ErrNotFound
	}
	if err != nil {
		return ScheduledJob{}, fmt.Errorf("getting scheduled job %d: %w", id, err)
	}
	return j, nil
}

// ListScheduledJobs returns all job definitions ordered by id.
func (s *Store) ListScheduledJobs() ([]ScheduledJob, error) {
	rows, err := s.db.Query(`SELECT ` + scheduledJobColumns + ` FROM scheduled_jobs ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []ScheduledJob
	for rows.Next() {
		j, err := scanScheduledJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// ListDueScheduledJobs returns active jobs whose next run is at or before now.
func (s *Store) ListDueScheduledJobs(now time.Time) ([]ScheduledJob, error) {
	rows, err := s.db.Query(`
		SELECT `+scheduledJobColumns+` FROM scheduled_jobs
		WHERE status = ? AND next_run_at <= ?
		ORDER BY next_run_at ASC`, JobActive, fmtTime(now))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []ScheduledJob
	for rows.Next() {
		j, err := scanScheduledJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// UpdateScheduledJob rewrites the user-editable fields plus NextRunAt and
// activation status.
func (s *Store) UpdateScheduledJob(j ScheduledJob) error {
	res, err := s.db.Exec(`
		UPDATE scheduled_jobs
		SET name = ?, prompt_template = ?, policy = ?, agent_id = ?, status = ?, next_run_at = ?, updated_at = ?
		WHERE id = ?`,
		j.Name, j.PromptTemplate, string(j.Policy), nullInt(j.AgentID), j.Status,
		fmtTime(j.NextRunAt), fmtTime(time.Now()), j.ID,
	)
	if err != nil {
		return fmt.Errorf("updating scheduled job %d: %w", j.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteScheduledJob removes a job definition. Prompts it spawned are kept.
func (s *Store) DeleteScheduledJob(id int64) error {
	res, err := s.db.Exec(`DELETE FROM scheduled_jobs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ClaimScheduledJob atomically advances a due job's next_run_at from the
// value the sweep observed to newNextRun, stamping last_run_at. The
// conditional write is what closes the overlapping-sweep race: of two sweeps
// seeing the same due job, only one matches the observed next_run_at and
// gets to dispatch.
func (s *Store) ClaimScheduledJob(id int64, seenNextRun, newNextRun, now time.Time) (bool, error) {
	res, err := s.db.Exec(`
		UPDATE scheduled_jobs
		SET next_run_at = ?, last_run_at = ?, updated_at = ?
		WHERE id = ? AND status = ? AND next_run_at = ?`,
		fmtTime(newNextRun), fmtTime(now), fmtTime(now), id, JobActive, fmtTime(seenNextRun),
	)
	if err != nil {
		return false, fmt.Errorf("claiming scheduled job %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// RecordRunDispatched stamps the bookkeeping for a successfully dispatched
// run: the spawned prompt, the triggered tag, and last_run_at.
func (s *Store) RecordRunDispatched(id, promptID int64, now time.Time, tag string) error {
	res, err := s.db.Exec(`
		UPDATE scheduled_jobs
		SET last_prompt_id = ?, last_run_status = ?, last_run_at = ?, updated_at = ?
		WHERE id = ?`,
		promptID, tag, fmtTime(now), fmtTime(now), id,
	)
	if err != nil {
		return fmt.Errorf("recording dispatch for scheduled job %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordRunFailure records a job-level dispatch failure without touching
// next_run_at (already advanced by the claim).
func (s *Store) RecordRunFailure(id int64, tag string, now time.Time) error {
	res, err := s.db.Exec(`
		UPDATE scheduled_jobs
		SET last_run_status = ?, last_run_at = ?, updated_at = ?
		WHERE id = ?`,
		tag, fmtTime(now), fmtTime(now), id,
	)
	if err != nil {
		return fmt.Errorf("recording run failure for scheduled job %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateLastRunStatus records the terminal outcome of a schedule-spawned
// prompt. This is the best-effort side channel: callers log failures and
// never let them affect the prompt's own transition.
func (s *Store) UpdateLastRunStatus(id int64, tag string) error {
	res, err := s.db.Exec(`
		UPDATE scheduled_jobs SET last_run_status = ?, updated_at = ? WHERE id = ?`,
		tag, fmtTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("updating last run status for scheduled job %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
