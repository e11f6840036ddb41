package stage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/counselhq/counsel/internal/llm"
	"github.com/counselhq/counsel/internal/status"
	"github.com/counselhq/counsel/internal/storage"
)

const (
	retrievalMaxTokens      = 500
	defaultRetrievalTimeout = 60 * time.Second

	retrievalSystemPrompt = "You are a research assistant that gathers information and surfaces potential options."
)

// Retriever runs the information retrieval stage for a prompt.
type Retriever struct {
	store   Store
	client  ChatClient
	fetcher CorpusFetcher
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewRetriever creates a Retriever. fetcher may be nil to disable reference
// URL following. A timeout <= 0 defaults to 60s.
func NewRetriever(store Store, client ChatClient, fetcher CorpusFetcher, model string, timeout time.Duration) *Retriever {
	if timeout <= 0 {
		timeout = defaultRetrievalTimeout
	}
	return &Retriever{
		store:   store,
		client:  client,
		fetcher: fetcher,
		model:   model,
		timeout: timeout,
		logger:  slog.Default(),
	}
}

// Run executes the retrieval stage for the given prompt. Entry is gated on
// the prompt being in pending_retrieval; a redelivered invocation finds the
// prompt already advanced and returns without side effects. An unavailable
// or failing LLM degrades to a tagged placeholder payload rather than
// failing the stage; only persistence failures move the prompt to
// retrieval_error and propagate.
func (r *Retriever) Run(ctx context.Context, promptID int64) error {
	p, err := r.store.GetPrompt(promptID)
	if err != nil {
		return fmt.Errorf("loading prompt %d: %w", promptID, err)
	}

	ok, err := r.store.TransitionPrompt(promptID, status.PendingRetrieval, status.ProcessingRetrieval)
	if err != nil {
		return fmt.Errorf("entering retrieval for prompt %d: %w", promptID, err)
	}
	if !ok {
		r.logger.Info("prompt not pending retrieval, skipping", "prompt_id", promptID, "status", p.Status)
		return nil
	}

	payload := r.gather(ctx, p.Text)
	raw, err := json.Marshal(payload)
	if err != nil {
		return r.fail(p, fmt.Errorf("marshaling raw payload: %w", err))
	}

	if err := r.store.UpsertResultRaw(promptID, string(raw)); err != nil {
		return r.fail(p, fmt.Errorf("persisting raw result: %w", err))
	}

	if _, err := r.store.TransitionPrompt(promptID, status.ProcessingRetrieval, status.RetrievalComplete); err != nil {
		return fmt.Errorf("completing retrieval for prompt %d: %w", promptID, err)
	}

	r.logger.Info("retrieval complete", "prompt_id", promptID, "source", payload.Source)
	return nil
}

// gather produces the raw payload for a prompt: LLM-backed content when the
// provider is configured and reachable, a tagged placeholder otherwise.
// Reference URLs in the prompt are fetched into the payload either way.
func (r *Retriever) gather(ctx context.Context, text string) RawPayload {
	var references string
	if urls := extractURLs(text); r.fetcher != nil && len(urls) > 0 {
		references = r.fetcher.FetchAll(ctx, urls)
	}

	if !r.client.Configured() {
		r.logger.Info("llm not configured, using placeholder payload")
		return RawPayload{
			Source:     SourcePlaceholder,
			Content:    placeholderContent(text),
			References: references,
		}
	}

	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	reply, err := r.client.Chat(cctx, r.model, []llm.Message{
		{Role: "system", Content: retrievalSystemPrompt},
		{Role: "user", Content: "Gather key information and potential options related to the following query: " +
			text + ". Present it as a structured summary."},
	}, retrievalMaxTokens)
	if err != nil {
		r.logger.Warn("llm retrieval call failed, using placeholder payload", "error", err)
		return RawPayload{
			Source:     SourcePlaceholder,
			Content:    placeholderContent(text),
			Error:      fmt.Sprintf("llm call failed: %v", err),
			References: references,
		}
	}

	return RawPayload{Source: SourceLLM, Content: reply, References: references}
}

func placeholderContent(text string) string {
	return fmt.Sprintf("No live research source was available. Placeholder notes for query: %q", text)
}

// fail records the terminal retrieval error and reports it to the
// originating scheduled job, then returns the causing error so the task
// queue surfaces the failure.
func (r *Retriever) fail(p storage.Prompt, cause error) error {
	ok, terr := r.store.TransitionPrompt(p.ID, status.ProcessingRetrieval, status.RetrievalError)
	if terr != nil {
		r.logger.Error("failed to record retrieval error", "prompt_id", p.ID, "error", terr)
	} else if ok {
		reportOutcome(r.store, p, status.RetrievalError, r.logger)
	}
	return cause
}
