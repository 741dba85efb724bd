package middleware

import (
	"net/http"

	"github.com/amankumarsingh77/conversion-orchestrator/pkg/utils"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func (mw *MiddlewareManager) CORS() echo.MiddlewareFunc {
	return middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     mw.origins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAuthorization, "Range"},
		ExposeHeaders:    []string{echo.HeaderContentDisposition, "Content-Range", "Accept-Ranges"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}

// RequestLogger logs one line per request at info level.
func (mw *MiddlewareManager) RequestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			mw.logger.Infof("%s %s status=%d latency=%s ip=%s request_id=%s",
				v.Method, v.URI, v.Status, v.Latency, utils.GetIPAddress(c), v.RequestID)
			return nil
		},
	})
}
