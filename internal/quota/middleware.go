package quota

import (
	"context"
	"net/http"

	"mentor-training-platform/internal/auth"
	"mentor-training-platform/internal/rbac"

	"github.com/gin-gonic/gin"
)

// MinutesService is the minimal quota service interface needed by middleware.
type MinutesService interface {
	GetBalance(ctx context.Context, teamID, userID string) (Balance, error)
}

// RequireAvailableMinutes blocks practice-call creation when the trainee has
// no minutes left. The exact call cost is unknown until the provider reports
// duration, so the gate only checks that the balance is positive; DebitForCall
// settles the real amount afterwards.
//
// Admin override:
// - super_admin bypasses (can always smoke-test calls)
// - hidden task_runner bypasses (scheduled jobs act on behalf of the system)
func RequireAvailableMinutes(svc MinutesService) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := auth.Role(c.Request.Context())
		if rbac.IsSuperAdmin(role) || rbac.IsHiddenRole(role) {
			c.Next()
			return
		}

		teamID, err := auth.TeamID(c.Request.Context())
		if err != nil || teamID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "team_id required"})
			return
		}
		userID, err := auth.UserID(c.Request.Context())
		if err != nil || userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
			return
		}

		bal, err := svc.GetBalance(c.Request.Context(), teamID, userID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "quota lookup failed"})
			return
		}
		if bal.Minutes <= 0 {
			// 402 Payment Required is semantically appropriate.
			c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{"error": "no practice minutes available"})
			return
		}

		c.Next()
	}
}
