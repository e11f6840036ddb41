package stage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/counselhq/counsel/internal/llm"
	"github.com/counselhq/counsel/internal/status"
	"github.com/counselhq/counsel/internal/storage"
)

const (
	summaryMaxTokens      = 700
	defaultSummaryTimeout = 60 * time.Second

	// OptionsParseFallback is the single option recorded when the model
	// reply is not the expected JSON shape. Clients can key off it to
	// render the raw reply instead of an options list.
	OptionsParseFallback = "Could not parse structured options from LLM response."

	emptySummaryFallback = "Summary could not be extracted."
)

// Summarizer runs the summarization stage for a prompt: it takes the raw
// retrieval payload, applies the prompt's agent profile, and produces the
// final options and summary.
type Summarizer struct {
	store   Store
	client  ChatClient
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewSummarizer creates a Summarizer. A timeout <= 0 defaults to 60s.
func NewSummarizer(store Store, client ChatClient, model string, timeout time.Duration) *Summarizer {
	if timeout <= 0 {
		timeout = defaultSummaryTimeout
	}
	return &Summarizer{
		store:   store,
		client:  client,
		model:   model,
		timeout: timeout,
		logger:  slog.Default(),
	}
}

// summaryOutput is the JSON shape the agent templates ask the model for.
type summaryOutput struct {
	Options []string `json:"options"`
	Summary string   `json:"summary"`
}

// Run executes the summarization stage for the given prompt. Entry is gated
// on the prompt being in retrieval_complete. A missing provider
// configuration or agent ends in summary_error_config; a missing raw result
// or failing model call ends in summary_error. A reply that is not the
// expected JSON still completes the prompt, with the raw reply preserved as
// the summary and a fallback options entry.
func (s *Summarizer) Run(ctx context.Context, promptID int64) error {
	p, err := s.store.GetPrompt(promptID)
	if err != nil {
		return fmt.Errorf("loading prompt %d: %w", promptID, err)
	}

	ok, err := s.store.TransitionPrompt(promptID, status.RetrievalComplete, status.ProcessingSummary)
	if err != nil {
		return fmt.Errorf("entering summary for prompt %d: %w", promptID, err)
	}
	if !ok {
		s.logger.Info("prompt not ready for summary, skipping", "prompt_id", promptID, "status", p.Status)
		return nil
	}

	if !s.client.Configured() {
		s.logger.Warn("llm not configured, cannot summarize", "prompt_id", promptID)
		s.finish(p, status.SummaryErrorConfig)
		return nil
	}

	agent := DefaultAgent
	if p.AgentID != nil {
		agent, err = s.store.GetAgent(*p.AgentID)
		if err != nil {
			if err == storage.ErrNotFound {
				s.logger.Warn("prompt references missing agent", "prompt_id", promptID, "agent_id", *p.AgentID)
				s.finish(p, status.SummaryErrorConfig)
				return nil
			}
			return s.fail(p, fmt.Errorf("loading agent %d: %w", *p.AgentID, err))
		}
	}

	res, err := s.store.GetResultByPrompt(promptID)
	if err != nil {
		if err == storage.ErrNotFound {
			s.logger.Error("no raw result for prompt entering summary", "prompt_id", promptID)
			s.finish(p, status.SummaryError)
			return nil
		}
		return s.fail(p, fmt.Errorf("loading raw result: %w", err))
	}

	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	reply, err := s.client.Chat(cctx, s.model, []llm.Message{
		{Role: "system", Content: agent.SystemTemplate},
		{Role: "user", Content: RenderTemplate(agent.SummaryTemplate, summaryContent(res.RawPayload))},
	}, summaryMaxTokens)
	if err != nil {
		s.logger.Warn("llm summary call failed", "prompt_id", promptID, "error", err)
		s.finish(p, status.SummaryError)
		return nil
	}

	options, summary := parseSummaryReply(reply)
	if err := s.store.UpdateResultSummary(promptID, options, summary); err != nil {
		return s.fail(p, fmt.Errorf("persisting summary: %w", err))
	}

	s.finish(p, status.Completed)
	s.logger.Info("summary complete", "prompt_id", promptID, "options", len(options))
	return nil
}

// summaryContent extracts the content to summarize from the stored raw
// payload. A payload that does not decode is passed through verbatim.
func summaryContent(raw string) string {
	var payload RawPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil || payload.Content == "" {
		return raw
	}
	if payload.References != "" {
		return payload.Content + "\n\nReference material:\n" + payload.References
	}
	return payload.Content
}

// parseSummaryReply decodes the model's options/summary JSON, stripping a
// markdown code fence if present. A reply that does not parse degrades to
// the raw text as the summary plus a fallback options entry; the summary is
// never left empty, a blank reply gets the fallback text instead.
func parseSummaryReply(reply string) (options []string, summary string) {
	var out summaryOutput
	if err := json.Unmarshal([]byte(stripCodeFence(reply)), &out); err != nil || (out.Summary == "" && len(out.Options) == 0) {
		summary = strings.TrimSpace(reply)
		if summary == "" {
			summary = emptySummaryFallback
		}
		return []string{OptionsParseFallback}, summary
	}
	if out.Summary == "" {
		out.Summary = emptySummaryFallback
	}
	return out.Options, out.Summary
}

// stripCodeFence unwraps a ```json ... ``` fenced block.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// finish records a terminal summary status and reports it to the
// originating scheduled job. Lost transition races are ignored: someone
// else already moved the prompt.
func (s *Summarizer) finish(p storage.Prompt, terminal status.Status) {
	ok, err := s.store.TransitionPrompt(p.ID, status.ProcessingSummary, terminal)
	if err != nil {
		s.logger.Error("failed to record summary outcome", "prompt_id", p.ID, "status", terminal, "error", err)
		return
	}
	if ok {
		reportOutcome(s.store, p, terminal, s.logger)
	}
}

// fail records summary_error and returns the causing error so the task
// queue surfaces the failure.
func (s *Summarizer) fail(p storage.Prompt, cause error) error {
	s.finish(p, status.SummaryError)
	return cause
}
