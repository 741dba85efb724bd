package conversion

import (
	"context"
	"time"

	"github.com/amankumarsingh77/conversion-orchestrator/internal/models"
)

type RedisRepository interface {
	SaveStatus(ctx context.Context, key string, report *models.ConversionStatusReport, ttl time.Duration) error
	GetStatus(ctx context.Context, key string) (*models.ConversionStatusReport, error)
	DeleteStatus(ctx context.Context, key string) error
	PublishStatus(ctx context.Context, channel string, report *models.ConversionStatusReport) error
	SubscribeStatus(ctx context.Context, channel string) (<-chan *models.ConversionStatusReport, error)

	EnqueueRequest(ctx context.Context, key string, input *models.InitiateInput) error
	DequeueRequest(ctx context.Context, key string, timeout time.Duration) (*models.InitiateInput, error)
}
