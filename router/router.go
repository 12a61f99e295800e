package router

import (
	"drive-agent-backend/controller"
	"drive-agent-backend/middleware"

	"github.com/gin-gonic/gin"
)

func Register() *gin.Engine {
	r := gin.Default()
	r.Use(middleware.CORSMiddleware())

	api := r.Group("/api")
	{
		public := api.Group("/user")
		{
			public.POST("/register", controller.UserRegister)
			public.POST("/login", controller.UserLogin)
		}

		protected := api.Group("")
		protected.Use(middleware.AuthMiddleware())
		{
			protected.POST("/scan", controller.TriggerScan)
			protected.GET("/scans", controller.GetScanRuns)
			protected.GET("/scan/:id", controller.GetScanRun)
			protected.GET("/scan/:id/progress", controller.ScanProgress)

			protected.GET("/documents", controller.GetDocuments)
			protected.GET("/documents/failed", controller.GetFailedDocuments)
			protected.GET("/document/:file_id/records", controller.GetDocumentRecords)

			protected.POST("/session", controller.CreateSession)
			protected.GET("/sessions", controller.GetSessions)
			protected.DELETE("/session/:id", controller.DeleteSession)
			protected.GET("/session/:id/messages", controller.GetSessionMessages)
			protected.PUT("/session/:id/title", controller.UpdateSessionTitle)

			protected.POST("/chat", controller.AgentChat)
		}
	}

	return r
}
