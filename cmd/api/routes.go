package main

import (
	"database/sql"
	"net/http"
	"time"

	"callbridge/internal/agents"
	"callbridge/internal/auth"
	"callbridge/internal/rbac"
	"callbridge/internal/realtime"
	"callbridge/internal/routing"
	"callbridge/internal/telephony"
	"callbridge/pkg/utils"

	"github.com/gin-gonic/gin"
)

type routeDeps struct {
	db      *sql.DB
	authMW  gin.HandlerFunc
	gateway *telephony.Handlers
	hub     *realtime.Hub
	queue   *routing.Engine
	agents  agents.Directory
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, deps routeDeps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), deps.db, 2*time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": "db unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "subscribers": deps.hub.Subscribers()})
	})

	// Provider webhooks (public; authenticated by the shared webhook token,
	// not by JWT).
	wh := r.Group("/webhooks/telephony")
	{
		wh.POST("/inbound/received", deps.gateway.Inbound(telephony.EventReceived))
		wh.POST("/inbound/answered", deps.gateway.Inbound(telephony.EventAnswered))
		wh.POST("/inbound/completed", deps.gateway.Inbound(telephony.EventCompleted))
		wh.POST("/outbound", deps.gateway.Outbound)
	}

	// Realtime call-status stream for agent desktops.
	r.GET("/ws", deps.authMW, gin.WrapH(deps.hub))

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(deps.authMW)
	{
		v1.GET("/me", func(c *gin.Context) {
			uid, _ := auth.UserID(c.Request.Context())
			role, _ := auth.Role(c.Request.Context())
			c.JSON(http.StatusOK, gin.H{"user_id": uid, "role": role})
		})

		calls := v1.Group("/telephony")
		calls.Use(rbac.RequireAnyRole(rbac.RoleAgent, rbac.RoleSupervisor))
		{
			calls.POST("/dial", deps.gateway.Dial)
			calls.POST("/hangup", deps.gateway.Hangup)
		}

		agentsGroup := v1.Group("/agents")
		agentsGroup.Use(rbac.RequireAnyRole(rbac.RoleAgent, rbac.RoleSupervisor))
		{
			agentsGroup.POST("/availability", func(c *gin.Context) {
				var req struct {
					Available bool `json:"available"`
				}
				if err := c.ShouldBindJSON(&req); err != nil {
					c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
					return
				}
				user, err := auth.UserID(c.Request.Context())
				if err != nil {
					c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
					return
				}
				if err := deps.agents.SetAvailability(c.Request.Context(), user, req.Available); err != nil {
					c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "availability update failed"})
					return
				}
				c.JSON(http.StatusOK, gin.H{"user": user, "available": req.Available})
			})
		}
	}
}
