package api

import (
	"github.com/gin-gonic/gin"
)

func SetupRoutes(router *gin.Engine, handler *Handler) {
	router.GET("/health", handler.HealthCheck)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/license/status", handler.LicenseStatus)

		records := v1.Group("/records", IdentityMiddleware(handler.cfg.License))
		{
			records.POST("", handler.CreateRecords)
			records.GET("", handler.ListRecords)
			records.DELETE("", handler.DeleteRecords)
		}

		v1.POST("/sync/trigger", IdentityMiddleware(handler.cfg.License), handler.TriggerSync)
	}
}

// NewRouter builds the engine with the standard middleware stack.
func NewRouter(handler *Handler) *gin.Engine {
	router := gin.New()
	router.Use(RecoveryMiddleware())
	router.Use(LoggingMiddleware())
	router.Use(CORSMiddleware())

	SetupRoutes(router, handler)
	return router
}
