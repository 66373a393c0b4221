package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"mentor-training-platform/internal/audit"
	"mentor-training-platform/internal/auth"
	"mentor-training-platform/internal/evaluation"
	"mentor-training-platform/internal/practicecall"
	"mentor-training-platform/internal/quota"
	"mentor-training-platform/internal/rbac"
	"mentor-training-platform/internal/recording"
	"mentor-training-platform/internal/reporting"
	"mentor-training-platform/internal/scenario"
	"mentor-training-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Wire-level error codes. Stable; clients switch on these.
const (
	codeNotFound         = "NOT_FOUND"
	codeNoTranscript     = "NO_TRANSCRIPT"
	codeAlreadyEvaluated = "ALREADY_EVALUATED"
	codeAlreadyCompleted = "ALREADY_COMPLETED"
	codeInvalidArgument  = "INVALID_ARGUMENT"
	codeScoringFailed    = "SCORING_FAILED"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth      *auth.Manager
	Calls     practicecall.Store
	Scheduler *recording.Scheduler
	Evaluator *evaluation.Service
	Quota     *quota.Service
	Catalog   *scenario.Catalog
	Resolver  *scenario.Resolver
	Pins      *scenario.PinEngine
	Reports   *reporting.Service
	Audit     *audit.Service
}

// evalError maps orchestrator sentinels to one wire shape.
// Scoring failures are a gateway problem (the completion service misbehaved),
// not a client one.
func evalError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, practicecall.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": codeNotFound})
	case errors.Is(err, evaluation.ErrNoTranscript):
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": codeNoTranscript})
	case errors.Is(err, practicecall.ErrAlreadyEvaluated):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": codeAlreadyEvaluated})
	default:
		logger.FromGin(c).Error("evaluation failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": codeScoringFailed})
	}
}

func identity(c *gin.Context) (teamID, userID, role string, ok bool) {
	ctx := c.Request.Context()
	teamID, err1 := auth.TeamID(ctx)
	userID, err2 := auth.UserID(ctx)
	role, _ = auth.Role(ctx)
	if err1 != nil || err2 != nil || teamID == "" || userID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return "", "", "", false
	}
	return teamID, userID, role, true
}

// --- Auth ---

type tokenRequest struct {
	UserID string `json:"user_id"`
	TeamID string `json:"team_id"`
	Role   string `json:"role"`
}

// IssueToken exchanges a dev credential for a JWT pair.
//
// NOTE: skeleton-only credential handling; a real deployment validates the
// user against an identity store before issuing.
func (h Handlers) IssueToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.TeamID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, team_id, role required"})
		return
	}
	// The automation role is never issued over HTTP.
	if rbac.IsHiddenRole(req.Role) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "role not issuable"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.TeamID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Practice calls ---

type startCallRequest struct {
	ScenarioID      string  `json:"scenario_id"`
	ParticipantName string  `json:"participant_name"`
	ExternalCallID  *string `json:"external_call_id"`
}

// StartPracticeCall creates the call record and, when the client already
// bridged a provider call, kicks off the background recording poll. The
// response never waits on the poll.
func (h Handlers) StartPracticeCall(c *gin.Context) {
	teamID, userID, _, ok := identity(c)
	if !ok {
		return
	}
	var req startCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	call := practicecall.PracticeCall{
		TeamID:          teamID,
		UserID:          userID,
		ParticipantName: strings.TrimSpace(req.ParticipantName),
		Status:          "registered",
	}
	if req.ExternalCallID != nil && strings.TrimSpace(*req.ExternalCallID) != "" {
		ext := strings.TrimSpace(*req.ExternalCallID)
		call.ExternalCallID = &ext
	}

	if req.ScenarioID != "" {
		sc, err := h.Catalog.GetByID(c.Request.Context(), teamID, req.ScenarioID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown scenario_id"})
			return
		}
		call.ScenarioID = sc.ID
		call.ScenarioLabel = sc.Title
	}

	created, err := h.Calls.Create(c.Request.Context(), call)
	if err != nil {
		if errors.Is(err, practicecall.ErrInvalidArgument) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": codeInvalidArgument})
			return
		}
		logger.FromGin(c).Error("practice call create failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "create failed"})
		return
	}

	if created.ExternalCallID != nil && h.Scheduler != nil {
		h.Scheduler.Schedule(created)
	}

	c.JSON(http.StatusCreated, created)
}

func (h Handlers) GetPracticeCall(c *gin.Context) {
	teamID, _, _, ok := identity(c)
	if !ok {
		return
	}
	call, err := h.Calls.GetByID(c.Request.Context(), teamID, c.Param("id"))
	if err != nil {
		if errors.Is(err, practicecall.ErrNotFound) || errors.Is(err, practicecall.ErrInvalidArgument) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": codeNotFound})
			return
		}
		logger.FromGin(c).Error("practice call lookup failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	c.JSON(http.StatusOK, call)
}

type completeCallRequest struct {
	Outcome practicecall.Outcome `json:"outcome"`
	Notes   string               `json:"notes"`
}

// CompletePracticeCall closes the roleplay session and settles the quota
// debit. The debit is idempotent on the call id, so a retried completion
// can never double-charge.
func (h Handlers) CompletePracticeCall(c *gin.Context) {
	teamID, _, _, ok := identity(c)
	if !ok {
		return
	}
	var req completeCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if !practicecall.ValidOutcome(req.Outcome) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "outcome must be PASSED, IMPROVE or N/A"})
		return
	}

	call, err := h.Calls.CompleteCall(c.Request.Context(), teamID, c.Param("id"), time.Now().UTC(), req.Outcome, req.Notes)
	if err != nil {
		switch {
		case errors.Is(err, practicecall.ErrNotFound):
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": codeNotFound})
		case errors.Is(err, practicecall.ErrAlreadyCompleted):
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": codeAlreadyCompleted})
		case errors.Is(err, practicecall.ErrInvalidArgument):
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": codeInvalidArgument})
		default:
			logger.FromGin(c).Error("practice call completion failed", "err", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "completion failed"})
		}
		return
	}

	// Settle minutes once the provider has reported a duration. When the
	// recording poll has not delivered one yet there is nothing to bill.
	if h.Quota != nil && call.DurationSeconds != nil && *call.DurationSeconds > 0 {
		if _, _, err := h.Quota.DebitForCall(c.Request.Context(), call.TeamID, call.UserID, call.ID, *call.DurationSeconds); err != nil {
			// The session is already closed; a quota hiccup must not undo it.
			logger.FromGin(c).Error("quota debit failed", "call_id", call.ID, "err", err)
		}
	}

	c.JSON(http.StatusOK, call)
}

// --- Evaluation ---

func (h Handlers) EvaluateCall(c *gin.Context) {
	teamID, _, _, ok := identity(c)
	if !ok {
		return
	}
	res, err := h.Evaluator.Evaluate(c.Request.Context(), teamID, c.Param("id"))
	if err != nil {
		evalError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type batchEvaluateRequest struct {
	CallIDs []string `json:"call_ids"`
}

func (h Handlers) BatchEvaluate(c *gin.Context) {
	teamID, _, _, ok := identity(c)
	if !ok {
		return
	}
	var req batchEvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if len(req.CallIDs) == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "call_ids required"})
		return
	}
	rep := h.Evaluator.BatchEvaluate(c.Request.Context(), teamID, req.CallIDs)
	c.JSON(http.StatusOK, rep)
}

// AdminReevaluate clears a stored result and scores the call again.
// Explicit admin action; audited.
func (h Handlers) AdminReevaluate(c *gin.Context) {
	teamID, userID, role, ok := identity(c)
	if !ok {
		return
	}
	callID := c.Param("id")

	res, err := h.Evaluator.Retrigger(c.Request.Context(), teamID, callID)
	if err != nil {
		evalError(c, err)
		return
	}
	if h.Audit != nil {
		_ = h.Audit.LogEvaluationRetrigger(c.Request.Context(), teamID, userID, role, c.ClientIP(), callID)
	}
	c.JSON(http.StatusOK, res)
}

// --- Scenarios ---

func (h Handlers) ListScenarios(c *gin.Context) {
	teamID, _, _, ok := identity(c)
	if !ok {
		return
	}
	list, err := h.Catalog.ListActive(c.Request.Context(), teamID)
	if err != nil {
		logger.FromGin(c).Error("scenario listing failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "listing failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"scenarios": list})
}

// ResolveScenario picks the trainee's next drill. The assignment reason is
// deliberately stripped: a pinned drill must be indistinguishable from
// normal rotation.
func (h Handlers) ResolveScenario(c *gin.Context) {
	teamID, userID, _, ok := identity(c)
	if !ok {
		return
	}
	a, err := h.Resolver.Resolve(c.Request.Context(), teamID, userID)
	if err != nil {
		if errors.Is(err, scenario.ErrNoScenarios) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "no eligible scenarios"})
			return
		}
		logger.FromGin(c).Error("scenario resolve failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "resolve failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"scenario_id": a.ScenarioID, "title": a.Title})
}

type pinRequest struct {
	UserID     string `json:"user_id"`
	ScenarioID string `json:"scenario_id"`
	TTLMinutes int    `json:"ttl_minutes"`
	Note       string `json:"note"`
}

// AdminSetPin forces one trainee onto one scenario until the pin expires.
func (h Handlers) AdminSetPin(c *gin.Context) {
	teamID, adminID, role, ok := identity(c)
	if !ok {
		return
	}
	var req pinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.TTLMinutes <= 0 {
		req.TTLMinutes = 24 * 60
	}
	pin, err := h.Pins.SetPin(c.Request.Context(), scenario.Pin{
		TeamID:     teamID,
		UserID:     req.UserID,
		ScenarioID: req.ScenarioID,
		PinnedBy:   adminID,
		ExpiresAt:  time.Now().UTC().Add(time.Duration(req.TTLMinutes) * time.Minute),
		Note:       req.Note,
	})
	if err != nil {
		if errors.Is(err, scenario.ErrInvalidPin) || errors.Is(err, scenario.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logger.FromGin(c).Error("scenario pin failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "pin failed"})
		return
	}
	if h.Audit != nil {
		_ = h.Audit.LogScenarioPin(c.Request.Context(), teamID, adminID, role, c.ClientIP(), pin.ScenarioID, pin.UserID, "scenario pin set")
	}
	c.JSON(http.StatusOK, pin)
}

func (h Handlers) AdminClearPin(c *gin.Context) {
	teamID, _, _, ok := identity(c)
	if !ok {
		return
	}
	userID := c.Param("user_id")
	if err := h.Pins.ClearPin(c.Request.Context(), teamID, userID); err != nil {
		logger.FromGin(c).Error("scenario pin clear failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "clear failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

// --- Quota ---

func (h Handlers) GetQuotaBalance(c *gin.Context) {
	teamID, userID, _, ok := identity(c)
	if !ok {
		return
	}
	// Mentors may read another trainee's balance.
	if q := c.Query("user_id"); q != "" {
		userID = q
	}
	bal, err := h.Quota.GetBalance(c.Request.Context(), teamID, userID)
	if err != nil {
		logger.FromGin(c).Error("quota balance lookup failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "balance lookup failed"})
		return
	}
	c.JSON(http.StatusOK, bal)
}

type grantRequest struct {
	UserID         string `json:"user_id"`
	Minutes        int    `json:"minutes"`
	Reason         string `json:"reason"`
	IdempotencyKey string `json:"idempotency_key"`
}

// AdminGrantQuota posts practice minutes to a trainee. Audited.
func (h Handlers) AdminGrantQuota(c *gin.Context) {
	teamID, adminID, role, ok := identity(c)
	if !ok {
		return
	}
	var req grantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	entry, bal, err := h.Quota.Grant(c.Request.Context(), teamID, req.UserID, adminID, quota.GrantRequest{
		Minutes:        req.Minutes,
		Reason:         req.Reason,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		if errors.Is(err, quota.ErrInvalidArgument) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": codeInvalidArgument})
			return
		}
		logger.FromGin(c).Error("quota grant failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "grant failed"})
		return
	}
	if h.Audit != nil {
		_ = h.Audit.LogQuotaGrant(c.Request.Context(), teamID, adminID, role, c.ClientIP(), `{"entry_id":"`+entry.ID+`"}`)
	}
	c.JSON(http.StatusOK, gin.H{"entry": entry, "balance": bal})
}

// --- Reports ---

const defaultReportWindow = 30 * 24 * time.Hour

func reportRange(c *gin.Context) (reporting.TimeRange, bool) {
	now := time.Now().UTC()
	tr := reporting.TimeRange{From: now.Add(-defaultReportWindow), To: now}
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339"})
			return tr, false
		}
		tr.From = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be RFC3339"})
			return tr, false
		}
		tr.To = t
	}
	return tr, true
}

func (h Handlers) ProgressReport(c *gin.Context) {
	teamID, userID, _, ok := identity(c)
	if !ok {
		return
	}
	if q := c.Query("user_id"); q != "" {
		userID = q
	}
	tr, ok := reportRange(c)
	if !ok {
		return
	}
	sum, err := h.Reports.ProgressSummary(c.Request.Context(), reporting.ProgressSummaryRequest{
		TeamID: teamID,
		UserID: userID,
		Range:  tr,
	})
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h Handlers) MinutesReport(c *gin.Context) {
	teamID, _, _, ok := identity(c)
	if !ok {
		return
	}
	tr, ok := reportRange(c)
	if !ok {
		return
	}
	sum, err := h.Reports.MinutesSummary(c.Request.Context(), reporting.MinutesSummaryRequest{
		TeamID: teamID,
		UserID: c.Query("user_id"),
		Range:  tr,
	})
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sum)
}
