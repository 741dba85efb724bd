package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/amankumarsingh77/conversion-orchestrator/internal/config"
	"github.com/amankumarsingh77/conversion-orchestrator/pkg/logger"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
)

type lineLogger struct {
	logger.Logger
	mu    sync.Mutex
	lines []string
}

func (l *lineLogger) Infof(template string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprintf(template, args...))
}

func TestRequestLogger(t *testing.T) {
	log := &lineLogger{Logger: logger.NewNop()}
	mw := NewMiddlewareManager(&config.Config{}, []string{"*"}, log)

	e := echo.New()
	e.Use(echoMiddleware.RequestID())
	e.Use(mw.RequestLogger())
	e.GET("/api/v1/health", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.RemoteAddr = "10.0.0.1:5000"
	req.Header.Set(echo.HeaderXForwardedFor, "203.0.113.7, 10.0.0.1")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	log.mu.Lock()
	defer log.mu.Unlock()
	if len(log.lines) != 1 {
		t.Fatalf("logged %d lines, want 1: %q", len(log.lines), log.lines)
	}
	line := log.lines[0]
	for _, want := range []string{
		"GET /api/v1/health",
		"status=204",
		"ip=203.0.113.7 ",
		"request_id=" + rec.Header().Get(echo.HeaderXRequestID),
	} {
		if !strings.Contains(line, want) {
			t.Errorf("log line %q lacks %q", line, want)
		}
	}
}
