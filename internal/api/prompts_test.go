package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/counselhq/counsel/internal/dispatch"
	"github.com/counselhq/counsel/internal/status"
	"github.com/counselhq/counsel/internal/storage"
)

const testToken = "test-token-12345"

var testNow = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func setupHandler(t *testing.T) (http.Handler, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	clock := func() time.Time { return testNow }
	handler := NewHandler(Deps{
		Store:      store,
		Dispatcher: dispatch.NewDispatcher(store, 0, clock),
		Token:      testToken,
		Clock:      clock,
	})
	return handler, store
}

func authReq(method, url, body, token string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func doJSON(t *testing.T, h http.Handler, req *http.Request, wantCode int) map[string]any {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != wantCode {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, wantCode, rr.Body.String())
	}
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decoding response: %v; body = %s", err, rr.Body.String())
	}
	return out
}

func TestAuth_RejectsMissingAndWrongToken(t *testing.T) {
	h, _ := setupHandler(t)

	for _, token := range []string{"", "wrong-token"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, authReq(http.MethodGet, "/prompts", "", token))
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("token %q: status = %d, want %d", token, rr.Code, http.StatusUnauthorized)
		}
	}
}

func TestHealth_NoAuthRequired(t *testing.T) {
	h, _ := setupHandler(t)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestCreatePrompt(t *testing.T) {
	h, store := setupHandler(t)

	out := doJSON(t, h, authReq(http.MethodPost, "/prompts",
		`{"text":"should we migrate the billing service?"}`, testToken), http.StatusCreated)

	if out["status"] != string(status.PendingRetrieval) {
		t.Errorf("status = %v, want %q", out["status"], status.PendingRetrieval)
	}
	if out["text"] != "should we migrate the billing service?" {
		t.Errorf("text = %v", out["text"])
	}

	task, err := store.ClaimNextTask([]string{storage.TaskRetrieve})
	if err != nil {
		t.Fatalf("ClaimNextTask: %v", err)
	}
	if task == nil {
		t.Fatal("no retrieval task enqueued on submission")
	}
}

func TestCreatePrompt_Validation(t *testing.T) {
	h, _ := setupHandler(t)

	cases := []struct {
		name string
		body string
	}{
		{"empty body", `{}`},
		{"blank text", `{"text":"   "}`},
		{"malformed json", `{"text":`},
		{"unknown agent", `{"text":"hello","agent_id":999}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, authReq(http.MethodPost, "/prompts", tc.body, testToken))
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d; body = %s", rr.Code, http.StatusBadRequest, rr.Body.String())
			}
		})
	}
}

func TestGetPromptResult_BeforeAndAfterStages(t *testing.T) {
	h, store := setupHandler(t)

	out := doJSON(t, h, authReq(http.MethodPost, "/prompts", `{"text":"pick a region"}`, testToken), http.StatusCreated)
	id := int64(out["id"].(float64))

	// Before any stage ran: 200 with the live status and empty content.
	res := doJSON(t, h, authReq(http.MethodGet, "/prompts/1/result", "", testToken), http.StatusOK)
	if res["status"] != string(status.PendingRetrieval) {
		t.Errorf("status = %v, want %q", res["status"], status.PendingRetrieval)
	}
	if opts := res["options"].([]any); len(opts) != 0 {
		t.Errorf("options = %v, want empty", opts)
	}

	// Simulate the pipeline finishing.
	if err := store.UpsertResultRaw(id, `{"source":"llm","content":"notes"}`); err != nil {
		t.Fatalf("UpsertResultRaw: %v", err)
	}
	if err := store.UpdateResultSummary(id, []string{"eu-west", "us-east"}, "Two regions fit."); err != nil {
		t.Fatalf("UpdateResultSummary: %v", err)
	}
	mustTransition(t, store, id, status.PendingRetrieval, status.ProcessingRetrieval,
		status.RetrievalComplete, status.ProcessingSummary, status.Completed)

	res = doJSON(t, h, authReq(http.MethodGet, "/prompts/1/result", "", testToken), http.StatusOK)
	if res["status"] != string(status.Completed) {
		t.Errorf("status = %v, want %q", res["status"], status.Completed)
	}
	if res["summary"] != "Two regions fit." {
		t.Errorf("summary = %v", res["summary"])
	}
	if opts := res["options"].([]any); len(opts) != 2 {
		t.Errorf("options = %v, want 2 entries", opts)
	}
}

func mustTransition(t *testing.T, store *storage.Store, id int64, chain ...status.Status) {
	t.Helper()
	for i := 0; i+1 < len(chain); i++ {
		ok, err := store.TransitionPrompt(id, chain[i], chain[i+1])
		if err != nil || !ok {
			t.Fatalf("transition %s -> %s: ok=%v err=%v", chain[i], chain[i+1], ok, err)
		}
	}
}

func TestRetryPrompt_RetrievalError(t *testing.T) {
	h, store := setupHandler(t)
	out := doJSON(t, h, authReq(http.MethodPost, "/prompts", `{"text":"retry me"}`, testToken), http.StatusCreated)
	id := int64(out["id"].(float64))
	mustTransition(t, store, id, status.PendingRetrieval, status.ProcessingRetrieval, status.RetrievalError)

	// Drain the submission task so the retry's task is observable.
	if _, err := store.ClaimNextTask([]string{storage.TaskRetrieve}); err != nil {
		t.Fatalf("ClaimNextTask: %v", err)
	}

	res := doJSON(t, h, authReq(http.MethodPost, "/prompts/1/retry", "", testToken), http.StatusOK)
	if res["status"] != string(status.PendingRetrieval) {
		t.Errorf("status = %v, want %q", res["status"], status.PendingRetrieval)
	}
	task, err := store.ClaimNextTask([]string{storage.TaskRetrieve})
	if err != nil {
		t.Fatalf("ClaimNextTask: %v", err)
	}
	if task == nil {
		t.Fatal("retry did not enqueue a retrieval task")
	}
}

func TestRetryPrompt_SummaryError(t *testing.T) {
	h, store := setupHandler(t)
	out := doJSON(t, h, authReq(http.MethodPost, "/prompts", `{"text":"retry summary"}`, testToken), http.StatusCreated)
	id := int64(out["id"].(float64))
	mustTransition(t, store, id, status.PendingRetrieval, status.ProcessingRetrieval,
		status.RetrievalComplete, status.ProcessingSummary, status.SummaryError)

	res := doJSON(t, h, authReq(http.MethodPost, "/prompts/1/retry", "", testToken), http.StatusOK)
	if res["status"] != string(status.RetrievalComplete) {
		t.Errorf("status = %v, want %q", res["status"], status.RetrievalComplete)
	}
	task, err := store.ClaimNextTask([]string{storage.TaskSummarize})
	if err != nil {
		t.Fatalf("ClaimNextTask: %v", err)
	}
	if task == nil {
		t.Fatal("retry did not enqueue a summarize task")
	}
}

func TestRetryPrompt_NotRetryable(t *testing.T) {
	h, _ := setupHandler(t)
	doJSON(t, h, authReq(http.MethodPost, "/prompts", `{"text":"still running"}`, testToken), http.StatusCreated)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/prompts/1/retry", "", testToken))
	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, http.StatusConflict, rr.Body.String())
	}
}

func TestGetPrompt_NotFound(t *testing.T) {
	h, _ := setupHandler(t)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/prompts/42", "", testToken))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestListPrompts(t *testing.T) {
	h, _ := setupHandler(t)
	for _, text := range []string{"first", "second", "third"} {
		doJSON(t, h, authReq(http.MethodPost, "/prompts", `{"text":"`+text+`"}`, testToken), http.StatusCreated)
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/prompts?limit=2", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var out []map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(out) != 2 {
		t.Errorf("listed %d prompts, want 2", len(out))
	}
}
