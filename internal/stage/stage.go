// Package stage implements the two pipeline stages that move a prompt from
// submission to a finished result: retrieval and summarization. Stages are
// invoked by the queue worker with just a prompt id, claim their entry
// transition with a conditional status write, and convert their own failures
// into terminal statuses rather than errors. Only persistence failures
// propagate, so the queue's retry machinery can act on them.
package stage

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/counselhq/counsel/internal/llm"
	"github.com/counselhq/counsel/internal/status"
	"github.com/counselhq/counsel/internal/storage"
)

// Store is the subset of storage the stages need.
type Store interface {
	GetPrompt(id int64) (storage.Prompt, error)
	TransitionPrompt(id int64, from, to status.Status) (bool, error)
	UpsertResultRaw(promptID int64, rawPayload string) error
	GetResultByPrompt(promptID int64) (storage.Result, error)
	UpdateResultSummary(promptID int64, options []string, summary string) error
	GetAgent(id int64) (storage.Agent, error)
	UpdateLastRunStatus(id int64, tag string) error
}

// ChatClient is the LLM provider surface used by both stages.
type ChatClient interface {
	Configured() bool
	Chat(ctx context.Context, model string, messages []llm.Message, maxTokens int) (string, error)
}

// CorpusFetcher assembles reference material from URLs found in a prompt.
type CorpusFetcher interface {
	FetchAll(ctx context.Context, urls []string) string
}

// Raw payload source tags. Presentation layers rely on these to distinguish
// real retrieved content from the degraded placeholder.
const (
	SourceLLM         = "llm"
	SourcePlaceholder = "placeholder"
)

// RawPayload is the structured artifact the retrieval stage writes and the
// summarization stage consumes.
type RawPayload struct {
	Source     string `json:"source"`
	Content    string `json:"content"`
	Error      string `json:"error,omitempty"`
	References string `json:"references,omitempty"`
}

// ContentPlaceholder is the substitution marker in agent summary templates.
const ContentPlaceholder = "{{content}}"

// RenderTemplate substitutes content into the template's placeholder. A
// template without the placeholder gets the content appended so nothing is
// silently dropped.
func RenderTemplate(template, content string) string {
	if !strings.Contains(template, ContentPlaceholder) {
		return template + "\n\n" + content
	}
	return strings.ReplaceAll(template, ContentPlaceholder, content)
}

// DefaultAgent is the built-in profile used when a prompt carries no agent
// reference.
var DefaultAgent = storage.Agent{
	Role:           "decision analyst",
	SystemTemplate: "You are a helpful assistant that summarizes information and extracts options.",
	SummaryTemplate: "Analyze the following text and extract key options or points, and provide a concise summary.\n" +
		"Text to analyze: \"{{content}}\"\n\n" +
		"Respond in JSON with two keys: 'options' (a list of strings) and 'summary' (a string).",
}

var urlPattern = regexp.MustCompile(`https?://[^\s<>"']+`)

// extractURLs returns the reference URLs mentioned in a prompt text.
func extractURLs(text string) []string {
	return urlPattern.FindAllString(text, -1)
}

// reportOutcome pushes a terminal prompt status to the originating scheduled
// job. This is a best-effort side channel: a failed update is logged and
// never affects the prompt's own transition.
func reportOutcome(store Store, p storage.Prompt, terminal status.Status, logger *slog.Logger) {
	if p.ScheduledJobID == nil {
		return
	}
	tag, ok := status.RunOutcome(terminal)
	if !ok {
		return
	}
	if err := store.UpdateLastRunStatus(*p.ScheduledJobID, tag); err != nil {
		logger.Warn("failed to update scheduled job outcome",
			"scheduled_job_id", *p.ScheduledJobID, "prompt_id", p.ID, "outcome", tag, "error", err)
	}
}
