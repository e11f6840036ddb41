package api

import (
	"time"

	"github.com/counselhq/counsel/internal/storage"
)

// Wire views for the storage entities. Timestamps render as RFC3339 UTC.

type promptView struct {
	ID             int64  `json:"id"`
	Text           string `json:"text"`
	Status         string `json:"status"`
	ScheduledJobID *int64 `json:"scheduled_job_id,omitempty"`
	AgentID        *int64 `json:"agent_id,omitempty"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

func viewPrompt(p storage.Prompt) promptView {
	return promptView{
		ID:             p.ID,
		Text:           p.Text,
		Status:         string(p.Status),
		ScheduledJobID: p.ScheduledJobID,
		AgentID:        p.AgentID,
		CreatedAt:      wireTime(p.CreatedAt),
		UpdatedAt:      wireTime(p.UpdatedAt),
	}
}

type resultView struct {
	PromptID         int64    `json:"prompt_id"`
	Status           string   `json:"status"`
	Options          []string `json:"options"`
	Summary          string   `json:"summary"`
	Enrichment       string   `json:"enrichment,omitempty"`
	EnrichmentStatus string   `json:"enrichment_status,omitempty"`
	UpdatedAt        string   `json:"updated_at"`
}

func viewResult(p storage.Prompt, res storage.Result) resultView {
	options := res.Options
	if options == nil {
		options = []string{}
	}
	return resultView{
		PromptID:         p.ID,
		Status:           string(p.Status),
		Options:          options,
		Summary:          res.Summary,
		Enrichment:       res.Enrichment,
		EnrichmentStatus: string(res.EnrichmentStatus),
		UpdatedAt:        wireTime(res.UpdatedAt),
	}
}

type scheduledJobView struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	PromptTemplate string `json:"prompt_template"`
	Policy         string `json:"policy"`
	AgentID        *int64 `json:"agent_id,omitempty"`
	Status         string `json:"status"`
	NextRunAt      string `json:"next_run_at"`
	LastRunAt      string `json:"last_run_at,omitempty"`
	LastPromptID   *int64 `json:"last_prompt_id,omitempty"`
	LastRunStatus  string `json:"last_run_status,omitempty"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

func viewScheduledJob(j storage.ScheduledJob) scheduledJobView {
	v := scheduledJobView{
		ID:             j.ID,
		Name:           j.Name,
		PromptTemplate: j.PromptTemplate,
		Policy:         string(j.Policy),
		AgentID:        j.AgentID,
		Status:         j.Status,
		NextRunAt:      wireTime(j.NextRunAt),
		LastPromptID:   j.LastPromptID,
		LastRunStatus:  j.LastRunStatus,
		CreatedAt:      wireTime(j.CreatedAt),
		UpdatedAt:      wireTime(j.UpdatedAt),
	}
	if j.LastRunAt != nil {
		v.LastRunAt = wireTime(*j.LastRunAt)
	}
	return v
}

type agentView struct {
	ID              int64  `json:"id"`
	Role            string `json:"role"`
	SystemTemplate  string `json:"system_template"`
	SummaryTemplate string `json:"summary_template"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

func viewAgent(a storage.Agent) agentView {
	return agentView{
		ID:              a.ID,
		Role:            a.Role,
		SystemTemplate:  a.SystemTemplate,
		SummaryTemplate: a.SummaryTemplate,
		CreatedAt:       wireTime(a.CreatedAt),
		UpdatedAt:       wireTime(a.UpdatedAt),
	}
}

func wireTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
