package storage

import (
	"errors"
	"time"

	"github.com/counselhq/counsel/internal/schedule"
	"github.com/counselhq/counsel/internal/status"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Prompt is a single unit of work tracked through retrieval and
// summarization. ScheduledJobID is set when the prompt was spawned by the
// dispatcher rather than submitted directly.
type Prompt struct {
	ID             int64
	Text           string
	Status         status.Status
	ScheduledJobID *int64
	AgentID        *int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Result is the content artifact for one prompt. The raw payload is written
// by the retrieval stage; options and summary by the summarization stage;
// the enrichment fields by the auxiliary MCP branch.
type Result struct {
	ID               int64
	PromptID         int64
	RawPayload       string
	Options          []string
	Summary          string
	Enrichment       string
	EnrichmentStatus status.Enrichment
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Scheduled job activation states.
const (
	JobActive = "active"
	JobPaused = "paused"
)

// ScheduledJob is a recurring definition that periodically spawns prompts.
// NextRunAt is strictly in the future for active jobs; for paused jobs it is
// frozen until reactivation.
type ScheduledJob struct {
	ID             int64
	Name           string
	PromptTemplate string
	Policy         schedule.Policy
	AgentID        *int64
	Status         string
	NextRunAt      time.Time
	LastRunAt      *time.Time
	LastPromptID   *int64
	LastRunStatus  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Agent is an LLM configuration profile referenced by the summarization
// stage. SummaryTemplate carries a single {{content}} placeholder.
type Agent struct {
	ID              int64
	Role            string
	SystemTemplate  string
	SummaryTemplate string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Task types processed by the queue worker.
const (
	TaskRetrieve  = "retrieve"
	TaskSummarize = "summarize"
	TaskEnrich    = "enrich"
)

// TaskPayload is the serialized argument carried by every stage task.
type TaskPayload struct {
	PromptID int64 `json:"prompt_id"`
}

// Task is one queued stage invocation. Delivery is at-least-once: a failed
// task is retried with backoff until MaxAttempts, so stage entry must be
// idempotent-safe.
type Task struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
