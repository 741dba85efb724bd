package conversion

import (
	"context"

	"github.com/amankumarsingh77/conversion-orchestrator/internal/models"
	"github.com/amankumarsingh77/conversion-orchestrator/pkg/utils"
)

// Repository stores the outcome of finished jobs.
type Repository interface {
	SaveRecord(ctx context.Context, record *models.ConversionRecord) error
	GetRecords(ctx context.Context, pq *utils.Pagination) (*models.ConversionList, error)
	GetRecordsByMedia(ctx context.Context, mediaID string, pq *utils.Pagination) (*models.ConversionList, error)
}
