// internal/app/router.go
package app

import (
	"net/http"

	authHandler "tourism-portal/internal/handlers/auth"
	"tourism-portal/internal/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const Version = "1.0.0"

const (
	// TeamMembersPermission gates the team member listing on the admin dashboard
	TeamMembersPermission = "team.members.read"
	// DashboardPermission gates the operator views of other identities
	DashboardPermission = "admin.dashboard"
)

// StaffRoles may open the admin dashboard at all
var StaffRoles = []string{"staff", "admin", "super_admin"}

type Handlers struct {
	AuthHandler    *authHandler.AuthHandler
	AuthMiddleware *middleware.AuthMiddleware
}

// NewEngine builds a gin engine carrying the shared middleware stack
func NewEngine(logger *zap.Logger, allowedOrigins []string) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RecoveryMiddleware(logger))
	r.Use(middleware.LoggingMiddleware(logger))
	r.Use(middleware.CORSMiddleware(allowedOrigins))
	return r
}

func SetupRouter(r *gin.Engine, logger *zap.Logger, h *Handlers) {
	api := r.Group("/api/v1")

	// ==================== Health Check ====================
	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": Version})
	})

	// ==================== Public Auth Routes ====================
	authPublic := api.Group("/auth")
	{
		authPublic.POST("/login", h.AuthHandler.Login)
	}

	// ==================== Authenticated Auth Routes ====================
	authProtected := api.Group("/auth")
	authProtected.Use(h.AuthMiddleware.Auth())
	{
		authProtected.POST("/logout", h.AuthHandler.Logout)
		authProtected.GET("/me", h.AuthHandler.GetMe)
		authProtected.GET("/sessions", h.AuthHandler.GetActiveSessions)
	}

	// ==================== Admin Dashboard ====================
	admin := api.Group("/admin")
	admin.Use(h.AuthMiddleware.Auth(), h.AuthMiddleware.RequireRole(StaffRoles...))
	{
		admin.GET("/teams/:team_id/members",
			h.AuthMiddleware.RequireTeamPermission("team_id", TeamMembersPermission),
			h.AuthHandler.ListTeamMembers,
		)
	}

	operators := api.Group("/admin/identities")
	operators.Use(h.AuthMiddleware.AdminOnly()...)
	{
		operators.GET("/:identity_id/sessions",
			h.AuthMiddleware.RequirePermission(DashboardPermission),
			h.AuthHandler.ListIdentitySessions,
		)
	}

	logger.Info("routes registered", zap.Int("count", len(r.Routes())))
}
