// Package status defines the prompt lifecycle state machine and the outcome
// tags reported back to scheduled jobs. Transition validity is enforced here
// centrally; stages request transitions instead of writing status strings.
package status

// Status is the lifecycle state of a prompt.
type Status string

const (
	PendingRetrieval    Status = "pending_retrieval"
	ProcessingRetrieval Status = "processing_retrieval"
	RetrievalComplete   Status = "retrieval_complete"
	RetrievalError      Status = "retrieval_error"
	ProcessingSummary   Status = "processing_summary"
	Completed           Status = "completed"
	SummaryError        Status = "summary_error"
	SummaryErrorConfig  Status = "summary_error_config"
)

// transitions is the closed set of forward moves. Error states additionally
// allow the manual-retry resets listed here; nothing else is reachable.
var transitions = map[Status][]Status{
	PendingRetrieval:    {ProcessingRetrieval},
	ProcessingRetrieval: {RetrievalComplete, RetrievalError},
	RetrievalComplete:   {ProcessingSummary},
	ProcessingSummary:   {Completed, SummaryError, SummaryErrorConfig},

	// Manual retry resets the prompt to the failed stage's entry state.
	RetrievalError:     {PendingRetrieval},
	SummaryError:       {RetrievalComplete},
	SummaryErrorConfig: {RetrievalComplete},
}

// Valid reports whether s is a known prompt status.
func (s Status) Valid() bool {
	switch s {
	case PendingRetrieval, ProcessingRetrieval, RetrievalComplete, RetrievalError,
		ProcessingSummary, Completed, SummaryError, SummaryErrorConfig:
		return true
	}
	return false
}

// Terminal reports whether s ends the pipeline from the dispatcher's
// perspective. Terminal states remain inspectable and re-triggerable by
// explicit user action.
func (s Status) Terminal() bool {
	switch s {
	case Completed, RetrievalError, SummaryError, SummaryErrorConfig:
		return true
	}
	return false
}

// CanTransition reports whether moving from one status to another is allowed.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Outcome tags recorded on a scheduled job's last_run_status.
const (
	OutcomeTriggered       = "triggered_retrieval"
	OutcomeCompleted       = "completed_successfully"
	OutcomeFailedRetrieval = "failed_retrieval"
	OutcomeFailedSummary   = "failed_summary"
	OutcomeFailedDispatch  = "failed_dispatch"
)

// RunOutcome maps a terminal prompt status to the outcome tag for the
// originating scheduled job. ok is false for non-terminal statuses.
func RunOutcome(s Status) (tag string, ok bool) {
	switch s {
	case Completed:
		return OutcomeCompleted, true
	case RetrievalError:
		return OutcomeFailedRetrieval, true
	case SummaryError, SummaryErrorConfig:
		return OutcomeFailedSummary, true
	}
	return "", false
}

// Enrichment is the state of the auxiliary MCP enrichment branch. It is
// tracked on the result row and never affects the prompt's own lifecycle.
type Enrichment string

const (
	EnrichmentNone  Enrichment = ""
	ProcessingMCP   Enrichment = "processing_mcp"
	MCPComplete     Enrichment = "mcp_complete"
	MCPError        Enrichment = "mcp_error"
	MCPErrorConfig  Enrichment = "mcp_error_config"
	MCPErrorStorage Enrichment = "mcp_error_storage"
)
