package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/counselhq/counsel/internal/status"
)

// CreatePrompt inserts a new prompt in pending_retrieval. scheduledJobID and
// agentID are optional back-references; pass nil for manual submissions
// without an agent.
func (s *Store) CreatePrompt(text string, scheduledJobID, agentID *int64) (Prompt, error) {
	now := time.Now().UTC()
	res, err := s.db.Exec(`
		INSERT INTO prompts (user_prompt, status, scheduled_job_id, agent_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		text, string(status.PendingRetrieval), nullInt(scheduledJobID), nullInt(agentID),
		fmtTime(now), fmtTime(now),
	)
	if err != nil {
		return Prompt{}, fmt.Errorf("inserting prompt: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Prompt{}, fmt.Errorf("reading prompt id: %w", err)
	}
	return Prompt{
		ID:             id,
		Text:           text,
		Status:         status.PendingRetrieval,
		ScheduledJobID: scheduledJobID,
		AgentID:        agentID,
		CreatedAt:      now.Truncate(time.Second),
		UpdatedAt:      now.Truncate(time.Second),
	}, nil
}

const promptColumns = `id, user_prompt, status, scheduled_job_id, agent_id, created_at, updated_at`

func scanPrompt(row interface{ Scan(...any) error }) (Prompt, error) {
	var p Prompt
	var st, createdAt, updatedAt string
	var jobID, agentID sql.NullInt64
	if err := row.Scan(&p.ID, &p.Text, &st, &jobID, &agentID, &createdAt, &updatedAt); err != nil {
		return Prompt{}, err
	}
	p.Status = status.Status(st)
	p.ScheduledJobID = intPtr(jobID)
	p.AgentID = intPtr(agentID)
	var err error
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return Prompt{}, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return Prompt{}, err
	}
	return p, nil
}

// GetPrompt returns the prompt with the given id.
func (s *Store) GetPrompt(id int64) (Prompt, error) {
	row := s.db.QueryRow(`SELECT `+promptColumns+` FROM prompts WHERE id = ?`, id)
	p, err := scanPrompt(row)
	if err == sql.ErrNoRows {
		return Prompt{}, ErrNotFound
	}
	if err != nil {
		return Prompt{}, fmt.Errorf("getting prompt %d: %w", id, err)
	}
	return p, nil
}

// ListPrompts returns prompts ordered newest-first.
func (s *Store) ListPrompts(limit, offset int) ([]Prompt, error) {
	rows, err := s.db.Query(`
		SELECT `+promptColumns+` FROM prompts
		ORDER BY id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prompts []Prompt
	for rows.Next() {
		p, err := scanPrompt(rows)
		if err != nil {
			return nil, err
		}
		prompts = append(prompts, p)
	}
	return prompts, rows.Err()
}

// TransitionPrompt moves a prompt from one status to another. The write is
// conditional on the prompt still being in the expected predecessor status,
// which makes stage entry idempotent-safe under at-least-once task delivery:
// a redelivered stage finds the prompt already advanced and gets false back.
// The transition itself must be valid per the state machine; an invalid pair
// is a programming error and returns an error.
func (s *Store) TransitionPrompt(id int64, from, to status.Status) (bool, error) {
	if !status.CanTransition(from, to) {
		return false, fmt.Errorf("invalid prompt transition %s -> %s", from, to)
	}
	res, err := s.db.Exec(`
		UPDATE prompts SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(to), fmtTime(time.Now()), id, string(from),
	)
	if err != nil {
		return false, fmt.Errorf("transitioning prompt %d to %s: %w", id, to, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}
	// Distinguish a lost race from a missing prompt.
	if _, err := s.GetPrompt(id); err != nil {
		return false, err
	}
	return false, nil
}
