package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/amankumarsingh77/conversion-orchestrator/internal/conversion"
	"github.com/amankumarsingh77/conversion-orchestrator/internal/models"
	"github.com/amankumarsingh77/conversion-orchestrator/internal/transcode"
	"github.com/amankumarsingh77/conversion-orchestrator/pkg/logger"
	"github.com/amankumarsingh77/conversion-orchestrator/pkg/utils"
	"github.com/labstack/echo/v4"
)

type conversionHandler struct {
	conversionUC conversion.UseCase
	logger       logger.Logger
}

func NewConversionHandler(conversionUC conversion.UseCase, logger logger.Logger) conversion.Handler {
	return &conversionHandler{
		conversionUC: conversionUC,
		logger:       logger,
	}
}

func (h *conversionHandler) Initiate() echo.HandlerFunc {
	return func(c echo.Context) error {
		input := &models.InitiateInput{}
		if err := c.Bind(input); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request payload"})
		}
		report, err := h.conversionUC.Initiate(c.Request().Context(), input)
		if err != nil {
			h.logger.Errorf("Initiate RequestID: %s, ERROR: %v", utils.GetRequestID(c), err)
			return c.JSON(errorStatus(err), map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusAccepted, report)
	}
}

func (h *conversionHandler) GetStatus() echo.HandlerFunc {
	return func(c echo.Context) error {
		jobID := c.Param("job_id")
		report, err := h.conversionUC.GetStatus(c.Request().Context(), jobID)
		if errors.Is(err, transcode.ErrNotFound) {
			return c.JSON(http.StatusNotFound, &models.ConversionStatusReport{
				Error:   true,
				Message: "Cannot find job",
				JobID:   jobID,
			})
		}
		if err != nil {
			return c.JSON(errorStatus(err), map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusOK, report)
	}
}

func (h *conversionHandler) Cancel() echo.HandlerFunc {
	return func(c echo.Context) error {
		jobID := c.Param("job_id")
		ack := h.conversionUC.Cancel(c.Request().Context(), jobID)
		return c.JSON(http.StatusOK, map[string]interface{}{
			"message":   "Job deleted",
			"job_id":    jobID,
			"matched":   ack.Matched,
			"cancelled": ack.Cancelled,
		})
	}
}

func (h *conversionHandler) CancelMany() echo.HandlerFunc {
	return func(c echo.Context) error {
		input := &models.CancelInput{}
		if err := c.Bind(input); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request payload"})
		}
		ack, err := h.conversionUC.CancelMany(c.Request().Context(), input)
		if err != nil {
			return c.JSON(errorStatus(err), map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusOK, ack)
	}
}

// Download streams a finished download job. Range requests are served by
// http.ServeContent; the job is handed off only by a response that delivered
// the file through its last byte.
func (h *conversionHandler) Download() echo.HandlerFunc {
	return func(c echo.Context) error {
		jobID := c.Param("job_id")
		ctx := c.Request().Context()

		status, err := h.conversionUC.GetDownload(ctx, jobID)
		if err != nil {
			return c.JSON(errorStatus(err), map[string]string{"error": err.Error()})
		}

		f, err := os.Open(status.OutputPath)
		if err != nil {
			h.logger.Errorf("Download - open %s: %v", status.OutputPath, err)
			return c.JSON(http.StatusGone, map[string]string{"error": "artifact is no longer available"})
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}

		name := downloadName(status)
		res := c.Response()
		res.Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
		counter := &countingWriter{ResponseWriter: res.Writer}
		res.Writer = counter
		http.ServeContent(res, c.Request(), name, info.ModTime(), f)
		res.Writer = counter.ResponseWriter

		if ctx.Err() != nil {
			h.logger.Warnf("Download - job %s: client left after %d bytes", jobID, counter.written)
			return nil
		}
		position, ok := deliveredToEnd(res, info.Size(), counter.written)
		if !ok {
			h.logger.Debugf("Download - job %s: partial response (%d, %d bytes) kept for resume", jobID, res.Status, counter.written)
			return nil
		}
		if err := h.conversionUC.CompleteDownload(context.WithoutCancel(ctx), jobID, position); err != nil {
			h.logger.Warnf("Download - handoff job %s: %v", jobID, err)
		}
		return nil
	}
}

func (h *conversionHandler) History() echo.HandlerFunc {
	return func(c echo.Context) error {
		pagination, err := utils.GetPaginationFromCtx(c)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		list, err := h.conversionUC.History(c.Request().Context(), c.QueryParam("media_id"), pagination)
		if err != nil {
			return c.JSON(errorStatus(err), map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusOK, list)
	}
}

func downloadName(status *transcode.Status) string {
	if status.MediaID != "" {
		return status.MediaID + filepath.Ext(status.OutputPath)
	}
	return filepath.Base(status.OutputPath)
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, transcode.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, transcode.ErrDuplicateArtifact), errors.Is(err, transcode.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, conversion.ErrInvalidRequest),
		errors.Is(err, transcode.ErrInvalidLabel),
		errors.Is(err, transcode.ErrPathOutsideMedia):
		return http.StatusBadRequest
	case errors.Is(err, conversion.ErrHistoryDisabled):
		return http.StatusNotImplemented
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// deliveredToEnd reports whether res carried the artifact of the given size
// through its last byte, and the position reached. Multipart range responses
// never count.
func deliveredToEnd(res *echo.Response, size, written int64) (int64, bool) {
	switch res.Status {
	case http.StatusOK:
		return written, written == size
	case http.StatusPartialContent:
		var start, end, total int64
		if _, err := fmt.Sscanf(res.Header().Get("Content-Range"), "bytes %d-%d/%d", &start, &end, &total); err != nil {
			return 0, false
		}
		if total == size && end == size-1 && written == end-start+1 {
			return size, true
		}
	}
	return 0, false
}

type countingWriter struct {
	http.ResponseWriter
	written int64
}

func (w *countingWriter) Write(p []byte) (int, error) {
	n, err := w.ResponseWriter.Write(p)
	w.written += int64(n)
	return n, err
}
