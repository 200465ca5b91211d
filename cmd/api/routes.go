package main

import (
	"call-platform/internal/auth"
	"call-platform/internal/httpapi"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, authMW gin.HandlerFunc, h httpapi.Handlers) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.POST("/v1/auth/login", h.Login)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW)
	{
		v1.GET("/me", func(c *gin.Context) {
			uid, _ := auth.UserID(c.Request.Context())
			did, _ := auth.DeviceID(c.Request.Context())
			c.JSON(200, gin.H{"user_id": uid, "device_id": did})
		})

		// CALL routes
		calls := v1.Group("/calls")
		{
			calls.POST("", h.PlaceCall)
			calls.POST("/end", h.EndCall)
			calls.POST("/audio/toggle", h.ToggleAudio)
			calls.POST("/video/toggle", h.ToggleVideo)
			calls.GET("/events", h.CallEvents)
			calls.GET("/:call_id", h.GetCall)
			calls.POST("/:call_id/answer", h.AnswerCall)
			calls.POST("/:call_id/decline", h.DeclineCall)
		}

		// THREAD routes (messages + per-thread call history)
		threads := v1.Group("/threads")
		{
			threads.GET("/:thread_id/messages", h.ListMessages)
			threads.POST("/:thread_id/messages", h.PostMessage)
			threads.GET("/:thread_id/calls", h.ListCallHistory)
			threads.GET("/:thread_id/calls/summary", h.ThreadCallSummary)
		}
	}
}
