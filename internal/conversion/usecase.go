package conversion

import (
	"context"
	"errors"
	"time"

	"github.com/amankumarsingh77/conversion-orchestrator/internal/models"
	"github.com/amankumarsingh77/conversion-orchestrator/internal/transcode"
	"github.com/amankumarsingh77/conversion-orchestrator/pkg/utils"
)

var (
	ErrInvalidRequest  = errors.New("invalid request")
	ErrHistoryDisabled = errors.New("conversion history is not enabled")
)

type UseCase interface {
	Initiate(ctx context.Context, input *models.InitiateInput) (*models.ConversionStatusReport, error)
	GetStatus(ctx context.Context, jobID string) (*models.ConversionStatusReport, error)
	Cancel(ctx context.Context, jobID string) transcode.Ack
	CancelMany(ctx context.Context, input *models.CancelInput) (transcode.Ack, error)
	// GetDownload returns the job of a finished download ready to be served.
	GetDownload(ctx context.Context, jobID string) (*transcode.Status, error)
	CompleteDownload(ctx context.Context, jobID string, position int64) error
	History(ctx context.Context, mediaID string, pq *utils.Pagination) (*models.ConversionList, error)

	RunJanitor(ctx context.Context, interval time.Duration)
	Shutdown(ctx context.Context) error
}
