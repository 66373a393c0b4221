package voiceai

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"mentor-training-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

const webhookSecretHeader = "X-Webhook-Secret"

// CallEvent is the provider's push notification about a call status change.
type CallEvent struct {
	ExternalCallID  string
	Status          string
	DurationSeconds *int
	RecordingURL    *string
	OccurredAt      time.Time
}

// WebhookHandler converts provider call-event webhooks to internal types and
// delegates persistence and poll scheduling to injected functions.
//
// No business logic here.
//
// The provider retries on non-2xx; after the secret check we always return
// 200, because our own poll loop owns recovery from bad payloads.
type WebhookHandler struct {
	// Secret guards the endpoint; requests without it are rejected.
	Secret string

	// RecordEvent patches the call identified by the event. An unknown call
	// is not an error worth a provider retry.
	RecordEvent func(ctx context.Context, ev CallEvent) error

	// SchedulePoll kicks the recording poller for a call whose media may now
	// be ready. Nil disables scheduling.
	SchedulePoll func(externalCallID string)

	Now func() time.Time
}

type callEventBody struct {
	CallID       string   `json:"call_id"`
	Status       string   `json:"status"`
	CallDuration *float64 `json:"call_duration"`
	RecordingURL *string  `json:"recording_url"`
}

func (h WebhookHandler) HandleCallEvent(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Now == nil {
		h.Now = time.Now
	}
	if h.Secret == "" || subtle.ConstantTimeCompare([]byte(c.GetHeader(webhookSecretHeader)), []byte(h.Secret)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "bad webhook secret"})
		return
	}
	if h.RecordEvent == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "webhook sink not configured"})
		return
	}

	var body callEventBody
	if err := c.ShouldBindJSON(&body); err != nil {
		log.Warn("voiceai webhook parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(body.CallID) == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "call_id required"})
		return
	}

	ev := CallEvent{
		ExternalCallID: strings.TrimSpace(body.CallID),
		Status:         body.Status,
		RecordingURL:   cleanOptional(body.RecordingURL),
		OccurredAt:     h.Now().UTC(),
	}
	if body.CallDuration != nil && *body.CallDuration >= 0 {
		sec := int(*body.CallDuration)
		ev.DurationSeconds = &sec
	}

	if err := h.RecordEvent(c.Request.Context(), ev); err != nil {
		// Log and acknowledge: the provider retrying will not make an
		// unknown call known.
		log.Warn("voiceai webhook event not recorded", "external_call_id", ev.ExternalCallID, "err", err)
	}

	if h.SchedulePoll != nil && isEndedStatus(ev.Status) {
		h.SchedulePoll(ev.ExternalCallID)
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

func isEndedStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "call_ended", "completed", "ended", "hangup":
		return true
	default:
		return false
	}
}
