package voiceai

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func webhookRouter(h WebhookHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/webhooks/voiceai/calls", h.HandleCallEvent)
	return r
}

func postEvent(r *gin.Engine, secret, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/voiceai/calls", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set(webhookSecretHeader, secret)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestWebhook_RejectsBadSecret(t *testing.T) {
	h := WebhookHandler{
		Secret:      "s3cret",
		RecordEvent: func(ctx context.Context, ev CallEvent) error { return nil },
	}
	r := webhookRouter(h)

	if w := postEvent(r, "", `{"call_id":"x"}`); w.Code != 401 {
		t.Fatalf("missing secret: expected 401, got %d", w.Code)
	}
	if w := postEvent(r, "wrong", `{"call_id":"x"}`); w.Code != 401 {
		t.Fatalf("wrong secret: expected 401, got %d", w.Code)
	}
}

func TestWebhook_RecordsAndSchedulesOnEnd(t *testing.T) {
	var recorded CallEvent
	var scheduled string
	now := time.Unix(1700000000, 0).UTC()

	h := WebhookHandler{
		Secret: "s3cret",
		RecordEvent: func(ctx context.Context, ev CallEvent) error {
			recorded = ev
			return nil
		},
		SchedulePoll: func(id string) { scheduled = id },
		Now:          func() time.Time { return now },
	}
	r := webhookRouter(h)

	w := postEvent(r, "s3cret", `{"call_id":" ext-9 ","status":"call_ended","call_duration":61.2,"recording_url":"https://cdn.example.test/r.wav"}`)
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	if recorded.ExternalCallID != "ext-9" {
		t.Fatalf("expected trimmed call id, got %q", recorded.ExternalCallID)
	}
	if recorded.DurationSeconds == nil || *recorded.DurationSeconds != 61 {
		t.Fatalf("duration: %+v", recorded.DurationSeconds)
	}
	if recorded.RecordingURL == nil {
		t.Fatalf("recording url not captured")
	}
	if !recorded.OccurredAt.Equal(now) {
		t.Fatalf("occurred_at mismatch")
	}
	if scheduled != "ext-9" {
		t.Fatalf("expected poll schedule for ext-9, got %q", scheduled)
	}
}

func TestWebhook_NoScheduleForOngoingStatus(t *testing.T) {
	scheduled := false
	h := WebhookHandler{
		Secret:       "s3cret",
		RecordEvent:  func(ctx context.Context, ev CallEvent) error { return nil },
		SchedulePoll: func(string) { scheduled = true },
	}
	r := webhookRouter(h)

	if w := postEvent(r, "s3cret", `{"call_id":"ext-1","status":"ongoing"}`); w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if scheduled {
		t.Fatalf("ongoing status must not schedule a poll")
	}
}

func TestWebhook_BadJSONRejected(t *testing.T) {
	h := WebhookHandler{
		Secret:      "s3cret",
		RecordEvent: func(ctx context.Context, ev CallEvent) error { return nil },
	}
	r := webhookRouter(h)

	if w := postEvent(r, "s3cret", `{not-json`); w.Code != 400 {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if w := postEvent(r, "s3cret", `{"status":"call_ended"}`); w.Code != 400 {
		t.Fatalf("missing call_id: expected 400, got %d", w.Code)
	}
}

func TestWebhook_UnknownCallStillAcknowledged(t *testing.T) {
	h := WebhookHandler{
		Secret:      "s3cret",
		RecordEvent: func(ctx context.Context, ev CallEvent) error { return errors.New("no such call") },
	}
	r := webhookRouter(h)

	if w := postEvent(r, "s3cret", `{"call_id":"ghost","status":"call_ended"}`); w.Code != 200 {
		t.Fatalf("expected 200 ack despite sink error, got %d", w.Code)
	}
}
