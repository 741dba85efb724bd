package repository

import (
	"context"
	"fmt"

	"github.com/amankumarsingh77/conversion-orchestrator/internal/conversion"
	"github.com/amankumarsingh77/conversion-orchestrator/internal/models"
	"github.com/amankumarsingh77/conversion-orchestrator/pkg/utils"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type awsRepository struct {
	client *s3.Client
}

func NewAwsRepository(awsClient *s3.Client) conversion.AWSRepository {
	return &awsRepository{
		client: awsClient,
	}
}

func (a *awsRepository) PutObject(ctx context.Context, input models.UploadInput) (*s3.PutObjectOutput, error) {
	if err := utils.ValidateStruct(ctx, &input); err != nil {
		return nil, fmt.Errorf("invalid upload input: %w", err)
	}
	res, err := a.client.PutObject(
		ctx,
		&s3.PutObjectInput{
			Bucket:        &input.BucketName,
			Key:           &input.Key,
			ContentType:   &input.MimeType,
			ContentLength: &input.Size,
			Body:          input.File,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upload file : %w", err)
	}
	return res, nil
}
