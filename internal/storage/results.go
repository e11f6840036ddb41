package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/counselhq/counsel/internal/status"
)

// UpsertResultRaw records the raw retrieval payload for a prompt. The
// results table enforces one row per prompt; re-running the retrieval stage
// overwrites the payload in place instead of inserting a duplicate.
func (s *Store) UpsertResultRaw(promptID int64, rawPayload string) error {
	now := fmtTime(time.Now())
	_, err := s.db.Exec(`
		INSERT INTO results (prompt_id, raw_payload, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(prompt_id) DO UPDATE SET
			raw_payload = excluded.raw_payload,
			updated_at = excluded.updated_at`,
		promptID, rawPayload, now, now,
	)
	if err != nil {
		return fmt.Errorf("upserting result for prompt %d: %w", promptID, err)
	}
	return nil
}

// GetResultByPrompt returns the single result for the given prompt.
func (s *Store) GetResultByPrompt(promptID int64) (Result, error) {
	var r Result
	var options, enrichStatus, createdAt, updatedAt string
	err := s.db.QueryRow(`
		SELECT id, prompt_id, raw_payload, processed_options, summary, enrichment, enrichment_status, created_at, updated_at
		FROM results WHERE prompt_id = ?`, promptID,
	).Scan(&r.ID, &r.PromptID, &r.RawPayload, &options, &r.Summary, &r.Enrichment, &enrichStatus, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return Result{}, ErrNotFound
	}
	if err != nil {
		return Result{}, fmt.Errorf("getting result for prompt %d: %w", promptID, err)
	}
	if err := json.Unmarshal([]byte(options), &r.Options); err != nil {
		return Result{}, fmt.Errorf("parsing stored options for prompt %d: %w", promptID, err)
	}
	r.EnrichmentStatus = status.Enrichment(enrichStatus)
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return Result{}, err
	}
	if r.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return Result{}, err
	}
	return r, nil
}

// UpdateResultSummary fills in the processed options and summary produced by
// the summarization stage. The result row must already exist.
func (s *Store) UpdateResultSummary(promptID int64, options []string, summary string) error {
	if options == nil {
		options = []string{}
	}
	optionsJSON, err := json.Marshal(options)
	if err != nil {
		return fmt.Errorf("marshaling options: %w", err)
	}
	res, err := s.db.Exec(`
		UPDATE results SET processed_options = ?, summary = ?, updated_at = ?
		WHERE prompt_id = ?`,
		string(optionsJSON), summary, fmtTime(time.Now()), promptID,
	)
	if err != nil {
		return fmt.Errorf("updating result summary for prompt %d: %w", promptID, err)
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

// SetEnrichmentStatus records the state of the auxiliary MCP branch on the
// result row without touching the main pipeline's columns.
func (s *Store) SetEnrichmentStatus(promptID int64, st status.Enrichment) error {
	res, err := s.db.Exec(`
		UPDATE results SET enrichment_status = ?, updated_at = ?
		WHERE prompt_id = ?`,
		string(st), fmtTime(time.Now()), promptID,
	)
	if err != nil {
		return fmt.Errorf("setting enrichment status for prompt %d: %w", promptID, err)
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

// UpdateResultEnrichment attaches the enrichment payload and final branch
// status in one write.
func (s *Store) UpdateResultEnrichment(promptID int64, payload string, st status.Enrichment) error {
	res, err := s.db.Exec(`
		UPDATE results SET enrichment = ?, enrichment_status = ?, updated_at = ?
		WHERE prompt_id = ?`,
		payload, string(st), fmtTime(time.Now()), promptID,
	)
	if err != nil {
		return fmt.Errorf("updating enrichment for prompt %d: %w", promptID, err)
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
