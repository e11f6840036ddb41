package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/counselhq/counsel/internal/status"
	"github.com/counselhq/counsel/internal/storage"
)

type createPromptRequest struct {
	Text    string `json:"text"`
	AgentID *int64 `json:"agent_id"`
}

func handleCreatePrompt(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req createPromptRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		req.Text = strings.TrimSpace(req.Text)
		if req.Text == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "text is required")
			return
		}
		if req.AgentID != nil {
			if _, err := deps.Store.GetAgent(*req.AgentID); err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					httpError(w, http.StatusBadRequest, "invalid_request_error", "agent %d does not exist", *req.AgentID)
					return
				}
				httpError(w, http.StatusInternalServerError, "api_error", "failed to check agent: %v", err)
				return
			}
		}

		p, err := deps.Store.CreatePrompt(req.Text, nil, req.AgentID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create prompt: %v", err)
			return
		}
		if _, err := deps.Store.EnqueueTask(storage.TaskRetrieve, p.ID); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to enqueue retrieval: %v", err)
			return
		}

		writeJSON(w, http.StatusCreated, viewPrompt(p))
	}
}

func handleListPrompts(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)

		prompts, err := deps.Store.ListPrompts(limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list prompts: %v", err)
			return
		}

		views := make([]promptView, 0, len(prompts))
		for _, p := range prompts {
			views = append(views, viewPrompt(p))
		}
		writeJSON(w, http.StatusOK, views)
	}
}

func handleGetPrompt(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := loadPrompt(deps, w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, viewPrompt(p))
	}
}

// handleGetPromptResult serves the polling view: the prompt's status plus
// whatever the stages have produced so far. A prompt without a result row
// yet still answers 200 with empty content.
func handleGetPromptResult(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := loadPrompt(deps, w, r)
		if !ok {
			return
		}

		res, err := deps.Store.GetResultByPrompt(p.ID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load result: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, viewResult(p, res))
	}
}

// handleRetryPrompt re-triggers the failed stage of a prompt. Only error
// statuses are retryable; retrieval errors restart from scratch, summary
// errors reuse the stored raw payload.
func handleRetryPrompt(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := loadPrompt(deps, w, r)
		if !ok {
			return
		}

		var reset status.Status
		var taskType string
		switch p.Status {
		case status.RetrievalError:
			reset, taskType = status.PendingRetrieval, storage.TaskRetrieve
		case status.SummaryError, status.SummaryErrorConfig:
			reset, taskType = status.RetrievalComplete, storage.TaskSummarize
		default:
			httpError(w, http.StatusConflict, "invalid_request_error",
				"prompt in status %q is not retryable", p.Status)
			return
		}

		moved, err := deps.Store.TransitionPrompt(p.ID, p.Status, reset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to reset prompt: %v", err)
			return
		}
		if !moved {
			httpError(w, http.StatusConflict, "invalid_request_error",
				"prompt status changed concurrently, retry not applied")
			return
		}
		if _, err := deps.Store.EnqueueTask(taskType, p.ID); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to enqueue %s: %v", taskType, err)
			return
		}

		p, err = deps.Store.GetPrompt(p.ID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to reload prompt: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, viewPrompt(p))
	}
}

func loadPrompt(deps Deps, w http.ResponseWriter, r *http.Request) (storage.Prompt, bool) {
	id, err := pathID(r)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid id")
		return storage.Prompt{}, false
	}
	p, err := deps.Store.GetPrompt(id)
	if errors.Is(err, storage.ErrNotFound) {
		httpError(w, http.StatusNotFound, "not_found", "prompt not found")
		return storage.Prompt{}, false
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to load prompt: %v", err)
		return storage.Prompt{}, false
	}
	return p, true
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
