package voiceai

import (
	"errors"
	"net/http"
	"strings"

	"mentor-training-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// DiagHandlers exposes on-demand readiness snapshots for diagnostics.
// A diagnostic fetch is single-shot (no retry loop) and mutates nothing.
type DiagHandlers struct {
	Provider Provider
}

// GetCallSnapshot handles GET /v1/voiceai/calls/:external_id/snapshot.
func (h DiagHandlers) GetCallSnapshot(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Provider == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "voiceai provider not configured"})
		return
	}
	externalID := strings.TrimSpace(c.Param("external_id"))
	if externalID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "external_id required"})
		return
	}

	snap, err := h.Provider.FetchCallSnapshot(c.Request.Context(), externalID)
	if err != nil {
		if errors.Is(err, ErrCallNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
			return
		}
		log.Warn("diagnostic snapshot fetch failed", "external_call_id", externalID, "err", err)
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "provider fetch failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"snapshot":       snap,
		"has_transcript": snap.HasTranscript(),
		"has_recording":  snap.HasRecording(),
		"ready":          snap.Ready(),
	})
}
