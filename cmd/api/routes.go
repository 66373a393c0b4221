package main

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"mentor-training-platform/internal/auth"
	"mentor-training-platform/internal/config"
	"mentor-training-platform/internal/httpapi"
	"mentor-training-platform/internal/metrics"
	"mentor-training-platform/internal/practicecall"
	"mentor-training-platform/internal/quota"
	"mentor-training-platform/internal/rbac"
	"mentor-training-platform/internal/recording"
	"mentor-training-platform/internal/voiceai"
	"mentor-training-platform/pkg/utils"

	"github.com/gin-gonic/gin"
)

type routeDeps struct {
	cfg      config.Config
	auth     *auth.Manager
	handlers httpapi.Handlers

	provider  voiceai.Provider
	calls     practicecall.Store
	scheduler *recording.Scheduler
	quota     *quota.Service
	metrics   *metrics.Registry
	db        *sql.DB
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, deps routeDeps) {
	h := deps.handlers

	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), deps.db, 2*time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "postgres": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", deps.metrics.Handler())

	// Provider webhook (public, shared-secret header). The webhook only
	// triggers a poll; captured fields still come from an authenticated
	// snapshot fetch.
	webhook := voiceai.WebhookHandler{
		Secret: deps.cfg.Provider.WebhookSecret,
		RecordEvent: func(ctx context.Context, ev voiceai.CallEvent) error {
			call, err := deps.calls.GetByExternalID(ctx, ev.ExternalCallID)
			if err != nil {
				return err
			}
			patch := practicecall.RecordingPatch{}
			if ev.Status != "" {
				patch.Status = &ev.Status
			}
			patch.DurationSeconds = ev.DurationSeconds
			patch.RecordingURL = ev.RecordingURL
			if patch.Empty() {
				return nil
			}
			return deps.calls.ApplyRecordingData(ctx, call.ID, patch)
		},
		SchedulePoll: func(externalCallID string) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			call, err := deps.calls.GetByExternalID(ctx, externalCallID)
			if err != nil {
				return
			}
			deps.scheduler.Schedule(call)
		},
	}
	r.POST("/webhooks/voiceai/calls", webhook.HandleCallEvent)

	// Token issuance (dev credential exchange).
	r.POST("/v1/auth/token", h.IssueToken)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(auth.RequireAccessToken(deps.auth))
	v1.Use(rbac.RequireTeam())
	{
		// PRACTICE CALL routes: any trainee-facing role.
		callsGroup := v1.Group("/practice-calls")
		callsGroup.Use(rbac.RequireAnyRole(rbac.RoleTrainee, rbac.RoleMentor, rbac.RoleTrainingLead))
		{
			callsGroup.POST("", quota.RequireAvailableMinutes(deps.quota), h.StartPracticeCall)
			callsGroup.GET("/:id", h.GetPracticeCall)
			callsGroup.POST("/:id/complete", h.CompletePracticeCall)
		}

		// EVALUATION routes: mentors and up.
		evalGroup := v1.Group("")
		evalGroup.Use(rbac.RequireAnyRole(rbac.RoleMentor, rbac.RoleTrainingLead))
		{
			evalGroup.POST("/practice-calls/:id/evaluate", h.EvaluateCall)
			evalGroup.POST("/evaluations/batch", h.BatchEvaluate)

			// Diagnostics: single-shot readiness snapshot, no retry loop,
			// no state mutation.
			diag := voiceai.DiagHandlers{Provider: deps.provider}
			evalGroup.GET("/voiceai/calls/:external_id/snapshot", diag.GetCallSnapshot)
		}

		// SCENARIO routes.
		scenarios := v1.Group("/scenarios")
		scenarios.Use(rbac.RequireAnyRole(rbac.RoleTrainee, rbac.RoleMentor, rbac.RoleTrainingLead))
		{
			scenarios.GET("", h.ListScenarios)
			scenarios.POST("/resolve", h.ResolveScenario)
		}

		// QUOTA + REPORTS.
		v1.GET("/quota/balance", h.GetQuotaBalance)
		reports := v1.Group("/reports")
		reports.Use(rbac.RequireAnyRole(rbac.RoleMentor, rbac.RoleTrainingLead))
		{
			reports.GET("/progress", h.ProgressReport)
			reports.GET("/minutes", h.MinutesReport)
		}

		// ADMIN routes: training leads and super admins only.
		// Hidden task_runner is intentionally NOT included.
		admin := v1.Group("/admin")
		admin.Use(rbac.RequireAnyRole(rbac.RoleTrainingLead))
		{
			admin.POST("/quota/grant", h.AdminGrantQuota)
			admin.POST("/practice-calls/:id/re-evaluate", h.AdminReevaluate)
			admin.POST("/scenario-pins", h.AdminSetPin)
			admin.DELETE("/scenario-pins/:user_id", h.AdminClearPin)
		}
	}
}
