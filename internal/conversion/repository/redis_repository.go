package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/amankumarsingh77/conversion-orchestrator/internal/conversion"
	"github.com/amankumarsingh77/conversion-orchestrator/internal/models"
	"github.com/go-redis/redis/v8"
)

type conversionRedisRepo struct {
	redisClient *redis.Client
}

func NewConversionRedisRepo(redisClient *redis.Client) conversion.RedisRepository {
	return &conversionRedisRepo{
		redisClient: redisClient,
	}
}

func (r *conversionRedisRepo) SaveStatus(ctx context.Context, key string, report *models.ConversionStatusReport, ttl time.Duration) error {
	pipe := r.redisClient.TxPipeline()
	pipe.HSet(ctx, key, reportFields(report))
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save status: %w", err)
	}
	return nil
}

func (r *conversionRedisRepo) GetStatus(ctx context.Context, key string) (*models.ConversionStatusReport, error) {
	fields, err := r.redisClient.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return reportFromFields(fields), nil
}

func (r *conversionRedisRepo) DeleteStatus(ctx context.Context, key string) error {
	if err := r.redisClient.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete status: %w", err)
	}
	return nil
}

func (r *conversionRedisRepo) PublishStatus(ctx context.Context, channel string, report *models.ConversionStatusReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	if err := r.redisClient.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish status: %w", err)
	}
	return nil
}

// SubscribeStatus streams published reports until ctx is done. Messages that
// do not decode are skipped.
func (r *conversionRedisRepo) SubscribeStatus(ctx context.Context, channel string) (<-chan *models.ConversionStatusReport, error) {
	sub := r.redisClient.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	out := make(chan *models.ConversionStatusReport)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				report := &models.ConversionStatusReport{}
				if err := json.Unmarshal([]byte(msg.Payload), report); err != nil {
					continue
				}
				select {
				case out <- report:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (r *conversionRedisRepo) EnqueueRequest(ctx context.Context, key string, input *models.InitiateInput) error {
	data, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	if err := r.redisClient.LPush(ctx, key, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue request: %w", err)
	}
	return nil
}

// DequeueRequest pops the oldest request, waiting up to timeout. It returns
// nil without error when the queue stayed empty.
func (r *conversionRedisRepo) DequeueRequest(ctx context.Context, key string, timeout time.Duration) (*models.InitiateInput, error) {
	res, err := r.redisClient.BRPop(ctx, timeout, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue request: %w", err)
	}
	input := &models.InitiateInput{}
	if err := json.Unmarshal([]byte(res[1]), input); err != nil {
		return nil, fmt.Errorf("error unmarshalling request: %w", err)
	}
	return input, nil
}

func reportFields(report *models.ConversionStatusReport) map[string]interface{} {
	return map[string]interface{}{
		"error":            strconv.FormatBool(report.Error),
		"message":          report.Message,
		"job_id":           report.JobID,
		"media_id":         report.MediaID,
		"state":            string(report.State),
		"percent_complete": strconv.FormatFloat(report.PercentComplete, 'f', -1, 64),
		"type":             string(report.Type),
		"is_complete":      strconv.FormatBool(report.IsComplete),
	}
}

func reportFromFields(fields map[string]string) *models.ConversionStatusReport {
	report := &models.ConversionStatusReport{
		Message: fields["message"],
		JobID:   fields["job_id"],
		MediaID: fields["media_id"],
		State:   models.JobState(fields["state"]),
		Type:    models.JobKind(fields["type"]),
	}
	report.Error, _ = strconv.ParseBool(fields["error"])
	report.IsComplete, _ = strconv.ParseBool(fields["is_complete"])
	report.PercentComplete, _ = strconv.ParseFloat(fields["percent_complete"], 64)
	return report
}
