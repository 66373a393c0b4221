package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"mentor-training-platform/internal/auth"
	"mentor-training-platform/internal/evaluation"
	"mentor-training-platform/internal/practicecall"
	"mentor-training-platform/internal/rbac"

	"github.com/gin-gonic/gin"
)

func testRouter(h Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		ctx := auth.WithIdentity(c.Request.Context(), "mentor-1", "team-a", rbac.RoleMentor)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})
	r.POST("/v1/practice-calls", h.StartPracticeCall)
	r.GET("/v1/practice-calls/:id", h.GetPracticeCall)
	r.POST("/v1/practice-calls/:id/evaluate", h.EvaluateCall)
	r.POST("/v1/evaluations/batch", h.BatchEvaluate)
	return r
}

func newEvalHandlers(store *practicecall.MemoryStore) Handlers {
	return Handlers{
		Calls: store,
		Evaluator: evaluation.NewService(evaluation.ServiceOptions{
			Store:  store,
			Scorer: evaluation.NewHeuristicScorer(),
		}),
	}
}

func seedCall(t *testing.T, store *practicecall.MemoryStore, transcript string) practicecall.PracticeCall {
	t.Helper()
	call := practicecall.PracticeCall{
		TeamID:        "team-a",
		UserID:        "trainee-1",
		ScenarioLabel: "Refund request",
	}
	if transcript != "" {
		call.Transcript = &transcript
	}
	created, err := store.Create(context.Background(), call)
	if err != nil {
		t.Fatalf("seed call: %v", err)
	}
	return created
}

func postJSON(r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestEvaluateCallErrorMapping(t *testing.T) {
	store := practicecall.NewMemoryStore()
	r := testRouter(newEvalHandlers(store))

	// Unknown call.
	w := postJSON(r, "/v1/practice-calls/nope/evaluate", "{}")
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown call: status = %d, want 404", w.Code)
	}

	// No transcript.
	blank := seedCall(t, store, "")
	w = postJSON(r, "/v1/practice-calls/"+blank.ID+"/evaluate", "{}")
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("blank transcript: status = %d, want 422", w.Code)
	}
	if !strings.Contains(w.Body.String(), codeNoTranscript) {
		t.Fatalf("blank transcript body = %s, want %s", w.Body.String(), codeNoTranscript)
	}

	// First evaluation succeeds, second conflicts.
	call := seedCall(t, store, "Agent: I understand your concern, let's find a solution together.")
	w = postJSON(r, "/v1/practice-calls/"+call.ID+"/evaluate", "{}")
	if w.Code != http.StatusOK {
		t.Fatalf("evaluate: status = %d, body = %s", w.Code, w.Body.String())
	}
	w = postJSON(r, "/v1/practice-calls/"+call.ID+"/evaluate", "{}")
	if w.Code != http.StatusConflict {
		t.Fatalf("re-evaluate: status = %d, want 409", w.Code)
	}
	if !strings.Contains(w.Body.String(), codeAlreadyEvaluated) {
		t.Fatalf("re-evaluate body = %s, want %s", w.Body.String(), codeAlreadyEvaluated)
	}
}

func TestBatchEvaluateMixedOutcomes(t *testing.T) {
	store := practicecall.NewMemoryStore()
	h := newEvalHandlers(store)
	r := testRouter(h)

	evaluated := seedCall(t, store, "Agent: thank you for calling, how can I help?")
	if _, err := h.Evaluator.Evaluate(context.Background(), "team-a", evaluated.ID); err != nil {
		t.Fatalf("pre-evaluate: %v", err)
	}
	blank := seedCall(t, store, "")
	valid := seedCall(t, store, "Agent: I understand your concern, let's find a solution together.")

	body, _ := json.Marshal(gin.H{"call_ids": []string{evaluated.ID, blank.ID, valid.ID, "ghost"}})
	w := postJSON(r, "/v1/evaluations/batch", string(body))
	if w.Code != http.StatusOK {
		t.Fatalf("batch: status = %d, body = %s", w.Code, w.Body.String())
	}

	var rep evaluation.BatchReport
	if err := json.Unmarshal(w.Body.Bytes(), &rep); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if rep.Evaluated != 1 || rep.Skipped != 2 || rep.Errors != 1 {
		t.Fatalf("report = %+v, want 1 evaluated / 2 skipped / 1 error", rep)
	}

	got, _ := store.GetByID(context.Background(), "team-a", valid.ID)
	if !got.Evaluated() {
		t.Fatal("valid call was not persisted as evaluated")
	}
	untouched, _ := store.GetByID(context.Background(), "team-a", blank.ID)
	if untouched.Evaluated() {
		t.Fatal("blank-transcript call gained scores")
	}
}

func TestStartAndGetPracticeCall(t *testing.T) {
	store := practicecall.NewMemoryStore()
	r := testRouter(newEvalHandlers(store))

	w := postJSON(r, "/v1/practice-calls", `{"participant_name":"Priya"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("start: status = %d, body = %s", w.Code, w.Body.String())
	}
	var created practicecall.PracticeCall
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created call: %v", err)
	}
	if created.TeamID != "team-a" || created.UserID != "mentor-1" {
		t.Fatalf("created call identity = %s/%s, want team-a/mentor-1", created.TeamID, created.UserID)
	}
	if created.PollState != practicecall.PollStatePending {
		t.Fatalf("poll state = %s, want PENDING", created.PollState)
	}

	get := httptest.NewRecorder()
	r.ServeHTTP(get, httptest.NewRequest(http.MethodGet, "/v1/practice-calls/"+created.ID, nil))
	if get.Code != http.StatusOK {
		t.Fatalf("get: status = %d", get.Code)
	}
}
