package http

import (
	"github.com/amankumarsingh77/conversion-orchestrator/internal/conversion"
	"github.com/amankumarsingh77/conversion-orchestrator/internal/middleware"
	"github.com/labstack/echo/v4"
)

func MapConversionRoutes(conversionGroup *echo.Group, h conversion.Handler, mw *middleware.MiddlewareManager) {
	conversionGroup.Use(mw.AuthJWTMiddleware())
	conversionGroup.POST("", h.Initiate())
	conversionGroup.POST("/cancel", h.CancelMany())
	conversionGroup.GET("/history", h.History())
	conversionGroup.GET("/:job_id/status", h.GetStatus())
	conversionGroup.GET("/:job_id/download", h.Download())
	conversionGroup.DELETE("/:job_id", h.Cancel())
}
