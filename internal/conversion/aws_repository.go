package conversion

import (
	"context"

	"github.com/amankumarsingh77/conversion-orchestrator/internal/models"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// AWSRepository archives kept versions to object storage.
type AWSRepository interface {
	PutObject(ctx context.Context, input models.UploadInput) (*s3.PutObjectOutput, error)
}
