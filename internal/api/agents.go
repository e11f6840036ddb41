package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/counselhq/counsel/internal/stage"
	"github.com/counselhq/counsel/internal/storage"
)

type agentRequest struct {
	Role            *string `json:"role"`
	SystemTemplate  *string `json:"system_template"`
	SummaryTemplate *string `json:"summary_template"`
}

func handleCreateAgent(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req agentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Role == nil || strings.TrimSpace(*req.Role) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "role is required")
			return
		}
		if req.SystemTemplate == nil || strings.TrimSpace(*req.SystemTemplate) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "system_template is required")
			return
		}
		if req.SummaryTemplate == nil || !validSummaryTemplate(*req.SummaryTemplate) {
			httpError(w, http.StatusBadRequest, "invalid_request_error",
				"summary_template must contain the %s placeholder", stage.ContentPlaceholder)
			return
		}

		agent, err := deps.Store.CreateAgent(storage.Agent{
			Role:            strings.TrimSpace(*req.Role),
			SystemTemplate:  *req.SystemTemplate,
			SummaryTemplate: *req.SummaryTemplate,
		})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create agent: %v", err)
			return
		}
		writeJSON(w, http.StatusCreated, viewAgent(agent))
	}
}

func handleListAgents(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agents, err := deps.Store.ListAgents()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list agents: %v", err)
			return
		}
		views := make([]agentView, 0, len(agents))
		for _, a := range agents {
			views = append(views, viewAgent(a))
		}
		writeJSON(w, http.StatusOK, views)
	}
}

func handleGetAgent(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agent, ok := loadAgent(deps, w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, viewAgent(agent))
	}
}

func handleUpdateAgent(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agent, ok := loadAgent(deps, w, r)
		if !ok {
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req agentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Role != nil {
			if strings.TrimSpace(*req.Role) == "" {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "role cannot be empty")
				return
			}
			agent.Role = strings.TrimSpace(*req.Role)
		}
		if req.SystemTemplate != nil {
			if strings.TrimSpace(*req.SystemTemplate) == "" {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "system_template cannot be empty")
				return
			}
			agent.SystemTemplate = *req.SystemTemplate
		}
		if req.SummaryTemplate != nil {
			if !validSummaryTemplate(*req.SummaryTemplate) {
				httpError(w, http.StatusBadRequest, "invalid_request_error",
					"summary_template must contain the %s placeholder", stage.ContentPlaceholder)
				return
			}
			agent.SummaryTemplate = *req.SummaryTemplate
		}

		if err := deps.Store.UpdateAgent(agent); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to update agent: %v", err)
			return
		}
		agent, err := deps.Store.GetAgent(agent.ID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to reload agent: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, viewAgent(agent))
	}
}

func handleDeleteAgent(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid id")
			return
		}
		err = deps.Store.DeleteAgent(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "agent not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete agent: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func validSummaryTemplate(t string) bool {
	return strings.Contains(t, stage.ContentPlaceholder)
}

func loadAgent(deps Deps, w http.ResponseWriter, r *http.Request) (storage.Agent, bool) {
	id, err := pathID(r)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid id")
		return storage.Agent{}, false
	}
	agent, err := deps.Store.GetAgent(id)
	if errors.Is(err, storage.ErrNotFound) {
		httpError(w, http.StatusNotFound, "not_found", "agent not found")
		return storage.Agent{}, false
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to load agent: %v", err)
		return storage.Agent{}, false
	}
	return agent, true
}
