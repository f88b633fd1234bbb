package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// NewRouter wires the API routes
func NewRouter(sessions *SessionHandler, reports *ReportHandler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	// Enable CORS for local development
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	api := router.Group("/api")
	{
		api.POST("/sessions", sessions.CreateSession)
		api.GET("/sessions/:id", sessions.GetSession)
		api.DELETE("/sessions/:id", sessions.LeaveSession)
		api.POST("/sessions/:id/messages", sessions.SendMessage)
		api.PUT("/sessions/:id/draft", sessions.SetDraft)
		api.POST("/sessions/:id/flush", sessions.Flush)
		api.POST("/sessions/:id/retry", sessions.RetryReport)
		api.GET("/sessions/:id/events", sessions.Events)

		api.GET("/reports", reports.ListReports)
		api.GET("/reports/:id", reports.GetReport)
		api.DELETE("/reports/:id", reports.DeleteReport)
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"sessions": sessions.sessions.Len(),
			"archive":  reports.store != nil,
		})
	})

	return router
}
