package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/counselhq/counsel/internal/schedule"
	"github.com/counselhq/counsel/internal/storage"
)

type scheduledJobRequest struct {
	Name           *string `json:"name"`
	PromptTemplate *string `json:"prompt_template"`
	Policy         *string `json:"policy"`
	AgentID        *int64  `json:"agent_id"`
	Status         *string `json:"status"`
}

func handleCreateScheduledJob(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req scheduledJobRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		if req.Name == nil || strings.TrimSpace(*req.Name) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "name is required")
			return
		}
		if req.PromptTemplate == nil || strings.TrimSpace(*req.PromptTemplate) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "prompt_template is required")
			return
		}
		if req.Policy == nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "policy is required")
			return
		}
		policy, err := schedule.ParsePolicy(*req.Policy)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown policy %q", *req.Policy)
			return
		}
		if req.AgentID != nil {
			if ok := checkAgentExists(deps, w, *req.AgentID); !ok {
				return
			}
		}

		now := deps.now()
		nextRun, err := schedule.NextRun(now, policy)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown policy %q", policy)
			return
		}

		job, err := deps.Store.CreateScheduledJob(storage.ScheduledJob{
			Name:           strings.TrimSpace(*req.Name),
			PromptTemplate: *req.PromptTemplate,
			Policy:         policy,
			AgentID:        req.AgentID,
			NextRunAt:      nextRun,
		})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create scheduled job: %v", err)
			return
		}
		writeJSON(w, http.StatusCreated, viewScheduledJob(job))
	}
}

func handleListScheduledJobs(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobs, err := deps.Store.ListScheduledJobs()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list scheduled jobs: %v", err)
			return
		}
		views := make([]scheduledJobView, 0, len(jobs))
		for _, j := range jobs {
			views = append(views, viewScheduledJob(j))
		}
		writeJSON(w, http.StatusOK, views)
	}
}

func handleGetScheduledJob(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, ok := loadScheduledJob(deps, w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, viewScheduledJob(job))
	}
}

// handleUpdateScheduledJob patches a job definition. A policy change
// recomputes next_run_at under the new cadence; resuming a paused job whose
// next_run_at fell into the past also recomputes it, so a resume never
// causes an immediate burst of missed runs.
func handleUpdateScheduledJob(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, ok := loadScheduledJob(deps, w, r)
		if !ok {
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req scheduledJobRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		now := deps.now()
		if req.Name != nil {
			if strings.TrimSpace(*req.Name) == "" {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "name cannot be empty")
				return
			}
			job.Name = strings.TrimSpace(*req.Name)
		}
		if req.PromptTemplate != nil {
			if strings.TrimSpace(*req.PromptTemplate) == "" {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "prompt_template cannot be empty")
				return
			}
			job.PromptTemplate = *req.PromptTemplate
		}
		if req.AgentID != nil {
			if ok := checkAgentExists(deps, w, *req.AgentID); !ok {
				return
			}
			job.AgentID = req.AgentID
		}
		if req.Policy != nil {
			policy, err := schedule.ParsePolicy(*req.Policy)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown policy %q", *req.Policy)
				return
			}
			if policy != job.Policy {
				job.Policy = policy
				next, err := schedule.NextRun(now, policy)
				if err != nil {
					httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown policy %q", policy)
					return
				}
				job.NextRunAt = next
			}
		}
		if req.Status != nil {
			switch *req.Status {
			case storage.JobActive:
				if job.Status == storage.JobPaused && !job.NextRunAt.After(now) {
					next, err := schedule.NextRun(now, job.Policy)
					if err != nil {
						httpError(w, http.StatusInternalServerError, "api_error", "failed to recompute schedule: %v", err)
						return
					}
					job.NextRunAt = next
				}
				job.Status = storage.JobActive
			case storage.JobPaused:
				job.Status = storage.JobPaused
			default:
				httpError(w, http.StatusBadRequest, "invalid_request_error",
					"status must be %q or %q", storage.JobActive, storage.JobPaused)
				return
			}
		}

		if err := deps.Store.UpdateScheduledJob(job); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to update scheduled job: %v", err)
			return
		}
		job, err := deps.Store.GetScheduledJob(job.ID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to reload scheduled job: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, viewScheduledJob(job))
	}
}

func handleDeleteScheduledJob(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid id")
			return
		}
		err = deps.Store.DeleteScheduledJob(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "scheduled job not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete scheduled job: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

// handleRunScheduledJob force-runs a job now. The regular schedule is not
// consulted and not advanced.
func handleRunScheduledJob(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid id")
			return
		}

		p, err := deps.Dispatcher.ForceRun(r.Context(), id, deps.now())
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "scheduled job not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to run scheduled job: %v", err)
			return
		}
		writeJSON(w, http.StatusAccepted, viewPrompt(p))
	}
}

func loadScheduledJob(deps Deps, w http.ResponseWriter, r *http.Request) (storage.ScheduledJob, bool) {
	id, err := pathID(r)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid id")
		return storage.ScheduledJob{}, false
	}
	job, err := deps.Store.GetScheduledJob(id)
	if errors.Is(err, storage.ErrNotFound) {
		httpError(w, http.StatusNotFound, "not_found", "scheduled job not found")
		return storage.ScheduledJob{}, false
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to load scheduled job: %v", err)
		return storage.ScheduledJob{}, false
	}
	return job, true
}

func checkAgentExists(deps Deps, w http.ResponseWriter, id int64) bool {
	if _, err := deps.Store.GetAgent(id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "agent %d does not exist", id)
			return false
		}
		httpError(w, http.StatusInternalServerError, "api_error", "failed to check agent: %v", err)
		return false
	}
	return true
}
