// Package enrich implements the auxiliary MCP enrichment branch. It runs in
// parallel with summarization and attaches external tool output to a
// prompt's result. Its state lives on a dedicated result column; the main
// retrieval/summary lifecycle never depends on it.
package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/counselhq/counsel/internal/status"
	"github.com/counselhq/counsel/internal/storage"
)

const defaultEnrichTimeout = 120 * time.Second

// Store is the subset of storage the enrichment branch needs.
type Store interface {
	GetPrompt(id int64) (storage.Prompt, error)
	GetResultByPrompt(promptID int64) (storage.Result, error)
	SetEnrichmentStatus(promptID int64, st status.Enrichment) error
	UpdateResultEnrichment(promptID int64, payload string, st status.Enrichment) error
}

// ToolCaller invokes the configured MCP tool with a prompt's text and
// returns the textual tool output.
type ToolCaller interface {
	CallTool(ctx context.Context, text string) (string, error)
}

// Enricher runs the enrichment branch for a prompt.
type Enricher struct {
	store   Store
	tool    ToolCaller
	timeout time.Duration
	logger  *slog.Logger
}

// NewEnricher creates an Enricher. tool may be nil when no MCP server is
// configured; runs then end in mcp_error_config. A timeout <= 0 defaults
// to 120s.
func NewEnricher(store Store, tool ToolCaller, timeout time.Duration) *Enricher {
	if timeout <= 0 {
		timeout = defaultEnrichTimeout
	}
	return &Enricher{
		store:   store,
		tool:    tool,
		timeout: timeout,
		logger:  slog.Default(),
	}
}

// Run executes the enrichment branch for the given prompt. All failures are
// absorbed into the result's enrichment status; only a missing prompt
// propagates, so the queue can redeliver ahead of the retrieval stage.
func (e *Enricher) Run(ctx context.Context, promptID int64) error {
	p, err := e.store.GetPrompt(promptID)
	if err != nil {
		return fmt.Errorf("loading prompt %d: %w", promptID, err)
	}

	if _, err := e.store.GetResultByPrompt(promptID); err != nil {
		if err == storage.ErrNotFound {
			// Retrieval has not produced a result row yet; there is
			// nothing to attach the enrichment to.
			return fmt.Errorf("no result for prompt %d yet: %w", promptID, err)
		}
		return fmt.Errorf("loading result for prompt %d: %w", promptID, err)
	}

	if err := e.store.SetEnrichmentStatus(promptID, status.ProcessingMCP); err != nil {
		return fmt.Errorf("entering enrichment for prompt %d: %w", promptID, err)
	}

	if e.tool == nil {
		e.logger.Warn("no mcp tool configured", "prompt_id", promptID)
		e.mark(promptID, status.MCPErrorConfig)
		return nil
	}

	cctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	payload, err := e.tool.CallTool(cctx, p.Text)
	if err != nil {
		e.logger.Warn("mcp tool call failed", "prompt_id", promptID, "error", err)
		e.mark(promptID, status.MCPError)
		return nil
	}

	if err := e.store.UpdateResultEnrichment(promptID, payload, status.MCPComplete); err != nil {
		e.logger.Error("failed to persist enrichment", "prompt_id", promptID, "error", err)
		e.mark(promptID, status.MCPErrorStorage)
		return nil
	}

	e.logger.Info("enrichment complete", "prompt_id", promptID)
	return nil
}

// mark records a terminal enrichment state, best effort.
func (e *Enricher) mark(promptID int64, st status.Enrichment) {
	if err := e.store.SetEnrichmentStatus(promptID, st); err != nil {
		e.logger.Error("failed to record enrichment status",
			"prompt_id", promptID, "status", st, "error", err)
	}
}
