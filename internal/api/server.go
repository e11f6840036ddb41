// Package api exposes the HTTP surface: prompt submission and inspection,
// scheduled job management, agent profiles, and health.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/counselhq/counsel/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// ForceRunner triggers a scheduled job outside its regular schedule.
type ForceRunner interface {
	ForceRun(ctx context.Context, id int64, now time.Time) (storage.Prompt, error)
}

// Deps holds the handler dependencies.
type Deps struct {
	Store      *storage.Store
	Dispatcher ForceRunner
	Token      string
	Clock      func() time.Time // defaults to time.Now().UTC
}

func (d Deps) now() time.Time {
	if d.Clock != nil {
		return d.Clock()
	}
	return time.Now().UTC()
}

// NewHandler builds the full router. The health endpoint is unauthenticated;
// everything else sits behind the bearer token.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth(deps))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/prompts", handleCreatePrompt(deps))
		r.Get("/prompts", handleListPrompts(deps))
		r.Get("/prompts/{id}", handleGetPrompt(deps))
		r.Get("/prompts/{id}/result", handleGetPromptResult(deps))
		r.Post("/prompts/{id}/retry", handleRetryPrompt(deps))

		r.Post("/scheduled-jobs", handleCreateScheduledJob(deps))
		r.Get("/scheduled-jobs", handleListScheduledJobs(deps))
		r.Get("/scheduled-jobs/{id}", handleGetScheduledJob(deps))
		r.Patch("/scheduled-jobs/{id}", handleUpdateScheduledJob(deps))
		r.Delete("/scheduled-jobs/{id}", handleDeleteScheduledJob(deps))
		r.Post("/scheduled-jobs/{id}/run", handleRunScheduledJob(deps))

		r.Post("/agents", handleCreateAgent(deps))
		r.Get("/agents", handleListAgents(deps))
		r.Get("/agents/{id}", handleGetAgent(deps))
		r.Patch("/agents/{id}", handleUpdateAgent(deps))
		r.Delete("/agents/{id}", handleDeleteAgent(deps))
	})

	return r
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Store.DB().PingContext(r.Context()); err != nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "database unavailable: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
