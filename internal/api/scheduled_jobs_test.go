package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/counselhq/counsel/internal/status"
	"github.com/counselhq/counsel/internal/storage"
)

func TestCreateScheduledJob(t *testing.T) {
	h, _ := setupHandler(t)

	out := doJSON(t, h, authReq(http.MethodPost, "/scheduled-jobs",
		`{"name":"morning digest","prompt_template":"summarize overnight changes","policy":"daily"}`,
		testToken), http.StatusCreated)

	if out["policy"] != "daily" {
		t.Errorf("policy = %v", out["policy"])
	}
	if out["status"] != storage.JobActive {
		t.Errorf("status = %v, want %q", out["status"], storage.JobActive)
	}
	// Created at 2024-03-01T10:00Z, daily policy: first run next midnight.
	if out["next_run_at"] != "2024-03-02T00:00:00Z" {
		t.Errorf("next_run_at = %v, want 2024-03-02T00:00:00Z", out["next_run_at"])
	}
}

func TestCreateScheduledJob_UnknownPolicyRejected(t *testing.T) {
	h, store := setupHandler(t)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/scheduled-jobs",
		`{"name":"bad","prompt_template":"x","policy":"every_other_tuesday"}`, testToken))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, http.StatusBadRequest, rr.Body.String())
	}

	jobs, err := store.ListScheduledJobs()
	if err != nil {
		t.Fatalf("ListScheduledJobs: %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("a job was persisted despite the unknown policy")
	}
}

func TestUpdateScheduledJob_PolicyChangeRecomputesSchedule(t *testing.T) {
	h, _ := setupHandler(t)
	doJSON(t, h, authReq(http.MethodPost, "/scheduled-jobs",
		`{"name":"digest","prompt_template":"x","policy":"daily"}`, testToken), http.StatusCreated)

	out := doJSON(t, h, authReq(http.MethodPatch, "/scheduled-jobs/1",
		`{"policy":"hourly"}`, testToken), http.StatusOK)
	if out["policy"] != "hourly" {
		t.Errorf("policy = %v", out["policy"])
	}
	if out["next_run_at"] != "2024-03-01T11:00:00Z" {
		t.Errorf("next_run_at = %v, want 2024-03-01T11:00:00Z under the new cadence", out["next_run_at"])
	}
}

func TestUpdateScheduledJob_PauseAndResume(t *testing.T) {
	h, store := setupHandler(t)
	doJSON(t, h, authReq(http.MethodPost, "/scheduled-jobs",
		`{"name":"digest","prompt_template":"x","policy":"hourly"}`, testToken), http.StatusCreated)

	out := doJSON(t, h, authReq(http.MethodPatch, "/scheduled-jobs/1",
		`{"status":"paused"}`, testToken), http.StatusOK)
	if out["status"] != storage.JobPaused {
		t.Fatalf("status = %v, want paused", out["status"])
	}

	// While paused the schedule drifted into the past.
	job, err := store.GetScheduledJob(1)
	if err != nil {
		t.Fatalf("GetScheduledJob: %v", err)
	}
	job.NextRunAt = testNow.Add(-3 * time.Hour)
	if err := store.UpdateScheduledJob(job); err != nil {
		t.Fatalf("UpdateScheduledJob: %v", err)
	}

	out = doJSON(t, h, authReq(http.MethodPatch, "/scheduled-jobs/1",
		`{"status":"active"}`, testToken), http.StatusOK)
	if out["status"] != storage.JobActive {
		t.Fatalf("status = %v, want active", out["status"])
	}
	if out["next_run_at"] != "2024-03-01T11:00:00Z" {
		t.Errorf("next_run_at = %v, want recomputed to 2024-03-01T11:00:00Z", out["next_run_at"])
	}
}

func TestUpdateScheduledJob_InvalidStatus(t *testing.T) {
	h, _ := setupHandler(t)
	doJSON(t, h, authReq(http.MethodPost, "/scheduled-jobs",
		`{"name":"digest","prompt_template":"x","policy":"daily"}`, testToken), http.StatusCreated)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPatch, "/scheduled-jobs/1", `{"status":"sleeping"}`, testToken))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestRunScheduledJob_ForceRun(t *testing.T) {
	h, store := setupHandler(t)
	doJSON(t, h, authReq(http.MethodPost, "/scheduled-jobs",
		`{"name":"digest","prompt_template":"overnight summary","policy":"weekly_monday"}`, testToken), http.StatusCreated)

	before, err := store.GetScheduledJob(1)
	if err != nil {
		t.Fatalf("GetScheduledJob: %v", err)
	}

	out := doJSON(t, h, authReq(http.MethodPost, "/scheduled-jobs/1/run", "", testToken), http.StatusAccepted)
	if out["text"] != "overnight summary" {
		t.Errorf("prompt text = %v", out["text"])
	}
	if out["status"] != string(status.PendingRetrieval) {
		t.Errorf("prompt status = %v", out["status"])
	}
	if sjID := int64(out["scheduled_job_id"].(float64)); sjID != 1 {
		t.Errorf("scheduled_job_id = %d, want 1", sjID)
	}

	after, err := store.GetScheduledJob(1)
	if err != nil {
		t.Fatalf("GetScheduledJob: %v", err)
	}
	if !after.NextRunAt.Equal(before.NextRunAt) {
		t.Errorf("force-run moved next_run_at from %v to %v", before.NextRunAt, after.NextRunAt)
	}
	if after.LastRunStatus != status.OutcomeTriggered {
		t.Errorf("last_run_status = %q, want %q", after.LastRunStatus, status.OutcomeTriggered)
	}
}

func TestDeleteScheduledJob(t *testing.T) {
	h, _ := setupHandler(t)
	doJSON(t, h, authReq(http.MethodPost, "/scheduled-jobs",
		`{"name":"digest","prompt_template":"x","policy":"daily"}`, testToken), http.StatusCreated)

	doJSON(t, h, authReq(http.MethodDelete, "/scheduled-jobs/1", "", testToken), http.StatusOK)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/scheduled-jobs/1", "", testToken))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d after delete", rr.Code, http.StatusNotFound)
	}
}

func TestListScheduledJobs(t *testing.T) {
	h, _ := setupHandler(t)
	doJSON(t, h, authReq(http.MethodPost, "/scheduled-jobs",
		`{"name":"a","prompt_template":"x","policy":"daily"}`, testToken), http.StatusCreated)
	doJSON(t, h, authReq(http.MethodPost, "/scheduled-jobs",
		`{"name":"b","prompt_template":"y","policy":"hourly"}`, testToken), http.StatusCreated)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/scheduled-jobs", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var out []map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(out) != 2 {
		t.Errorf("listed %d jobs, want 2", len(out))
	}
}
