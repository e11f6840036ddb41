package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// CreateAgent inserts an LLM configuration profile.
func (s *Store) CreateAgent(a Agent) (Agent, error) {
	now := time.Now().UTC()
	res, err := s.db.Exec(`
		INSERT INTO agents (role, system_template, summary_template, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		a.Role, a.SystemTemplate, a.SummaryTemplate, fmtTime(now), fmtTime(now),
	)
	if err != nil {
		return Agent{}, fmt.Errorf("inserting agent: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Agent{}, fmt.Errorf("reading agent id: %w", err)
	}
	return s.GetAgent(id)
}

const agentColumns = `id, role, system_template, summary_template, created_at, updated_at`

func scanAgent(row interface{ Scan(...any) error }) (Agent, error) {
	var a Agent
	var createdAt, updatedAt string
	if err := row.Scan(&a.ID, &a.Role, &a.SystemTemplate, &a.SummaryTemplate, &createdAt, &updatedAt); err != nil {
		return Agent{}, err
	}
	var err error
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return Agent{}, err
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return Agent{}, err
	}
	return a, nil
}

// GetAgent returns the agent with the given id.
func (s *Store) GetAgent(id int64) (Agent, error) {
	row := s.db.QueryRow(`SELECT `+agentColumns+` FROM agents WHERE id = ?`, id)
	a, err := scanAgent(row)
	if err == sql.ErrNoRows {
		return Agent{}, ErrNotFound
	}
	if err != nil {
		return Agent{}, fmt.Errorf("getting agent %d: %w", id, err)
	}
	return a, nil
}

// ListAgents returns all agents ordered by id.
func (s *Store) ListAgents() ([]Agent, error) {
	rows, err := s.db.Query(`SELECT ` + agentColumns + ` FROM agents ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// UpdateAgent rewrites an agent's templates and role label.
func (s *Store) UpdateAgent(a Agent) error {
	res, err := s.db.Exec(`
		UPDATE agents SET role = ?, system_template = ?, summary_template = ?, updated_at = ?
		WHERE id = ?`,
		a.Role, a.SystemTemplate, a.SummaryTemplate, fmtTime(time.Now()), a.ID,
	)
	if err != nil {
		return fmt.Errorf("updating agent %d: %w", a.ID, err)
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

// DeleteAgent removes an agent profile.
func (s *Store) DeleteAgent(id int64) error {
	res, err := s.db.Exec(`DELETE FROM agents WHERE id = ?`, id)
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
