package router

import (
	"github.com/gin-gonic/gin"

	"studysprint/backend/internal/handler"
	"studysprint/backend/internal/middleware"
)

func New(sessionHandler *handler.SessionHandler, corsOrigins []string) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Logger(), gin.Recovery(), middleware.CORS(corsOrigins))

	engine.GET("/health", sessionHandler.Health)

	api := engine.Group("/api")
	sessions := api.Group("/sessions")

	// Browser WebSocket clients cannot set custom headers, so the timer
	// stream identifies its session by path alone.
	sessions.GET("/:id/timer", sessionHandler.Timer)

	owned := sessions.Group("")
	owned.Use(middleware.Owner())
	owned.POST("/start", sessionHandler.Start)
	owned.GET("/current", sessionHandler.Current)
	owned.GET("/history", sessionHandler.History)
	owned.GET("/:id/snapshot", sessionHandler.GetSnapshot)
	owned.POST("/:id/pause", sessionHandler.Pause)
	owned.POST("/:id/resume", sessionHandler.Resume)
	owned.POST("/:id/end", sessionHandler.End)
	owned.POST("/:id/activity", sessionHandler.RegisterActivity)
	owned.POST("/:id/pomodoro/start", sessionHandler.StartCycle)
	owned.POST("/:id/pomodoro/complete", sessionHandler.CompleteCycle)
	owned.PUT("/:id/page", sessionHandler.UpdatePage)
	owned.GET("/:id/cycles", sessionHandler.ListCycles)

	return engine
}
