package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/amankumarsingh77/conversion-orchestrator/internal/config"
	"github.com/amankumarsingh77/conversion-orchestrator/internal/conversion"
	"github.com/amankumarsingh77/conversion-orchestrator/internal/encoder"
	"github.com/amankumarsingh77/conversion-orchestrator/internal/models"
	"github.com/amankumarsingh77/conversion-orchestrator/internal/transcode"
	"github.com/amankumarsingh77/conversion-orchestrator/pkg/logger"
	"github.com/amankumarsingh77/conversion-orchestrator/pkg/utils"
)

const (
	mirrorTimeout  = 5 * time.Second
	archiveTimeout = 30 * time.Minute
	probeTimeout   = 30 * time.Second
)

type conversionUC struct {
	cfg          *config.Config
	orchestrator *transcode.Orchestrator
	prober       encoder.Prober
	repo         conversion.Repository
	redisRepo    conversion.RedisRepository
	awsRepo      conversion.AWSRepository
	logger       logger.Logger

	archiveCtx    context.Context
	cancelArchive context.CancelFunc
	archiveWG     sync.WaitGroup
}

// NewConversionUseCase builds the orchestrator over registry and mirrors its
// job changes to the optional redis, postgres and s3 repositories. Any of
// prober, repo, redisRepo and awsRepo may be nil.
func NewConversionUseCase(
	cfg *config.Config,
	registry *transcode.Registry,
	runner encoder.Runner,
	builder encoder.ArgumentBuilder,
	prober encoder.Prober,
	repo conversion.Repository,
	redisRepo conversion.RedisRepository,
	awsRepo conversion.AWSRepository,
	log logger.Logger,
) conversion.UseCase {
	uc := &conversionUC{
		cfg:       cfg,
		prober:    prober,
		repo:      repo,
		redisRepo: redisRepo,
		awsRepo:   awsRepo,
		logger:    log,
	}
	uc.archiveCtx, uc.cancelArchive = context.WithCancel(context.Background())
	uc.orchestrator = transcode.NewOrchestrator(transcode.Config{
		TranscodeDir:    cfg.Transcode.TranscodeDir,
		KillTimeout:     cfg.Transcode.KillTimeout,
		RetentionPeriod: cfg.Transcode.RetentionPeriod,
		MaxRetention:    cfg.Transcode.MaxRetention,
	}, registry, runner, builder, uc, log)
	return uc
}

func (u *conversionUC) Initiate(ctx context.Context, input *models.InitiateInput) (*models.ConversionStatusReport, error) {
	if err := utils.ValidateStruct(ctx, input); err != nil {
		u.logger.Errorf("Initiate - ValidateStruct error: %v", err)
		return nil, fmt.Errorf("%w: %v", conversion.ErrInvalidRequest, err)
	}
	if !filepath.IsAbs(input.SourcePath) {
		return nil, fmt.Errorf("%w: source_path must be absolute", conversion.ErrInvalidRequest)
	}
	sourcePath, err := transcode.ResolveSource(input.SourcePath, u.cfg.Transcode.MediaRoots)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: source_path %s does not exist", conversion.ErrInvalidRequest, input.SourcePath)
	}
	if err != nil {
		u.logger.Errorf("Initiate - media %s: %v", input.MediaID, err)
		return nil, err
	}

	options := input.Options
	if options == (models.EncodingOptions{}) {
		if preset, ok := utils.PresetForLabel(input.OutputVersion); ok {
			options = preset
		}
	}

	source := input.Source()
	source.Path = sourcePath
	if source.Duration == 0 && u.prober != nil {
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		d, err := u.prober.Duration(probeCtx, source.Path)
		cancel()
		if err != nil {
			u.logger.Warnf("Initiate - probe %s: %v", source.Path, err)
		} else {
			source.Duration = d
		}
	}

	jobID, err := u.orchestrator.Initiate(ctx, transcode.Request{
		Source:  source,
		Kind:    input.Kind(),
		Label:   input.OutputVersion,
		Options: options,
	})
	if err != nil {
		u.logger.Errorf("Initiate - media %s: %v", input.MediaID, err)
		return nil, err
	}

	status, err := u.orchestrator.Peek(jobID)
	if err != nil {
		// Removed again before we could look; report it as queued.
		return &models.ConversionStatusReport{JobID: jobID, MediaID: input.MediaID, Type: input.Kind()}, nil
	}
	return toReport(status), nil
}

func (u *conversionUC) GetStatus(ctx context.Context, jobID string) (*models.ConversionStatusReport, error) {
	status, err := u.orchestrator.GetStatus(jobID)
	if err != nil {
		return nil, err
	}
	return toReport(status), nil
}

func (u *conversionUC) Cancel(ctx context.Context, jobID string) transcode.Ack {
	return u.orchestrator.Cancel(jobID)
}

func (u *conversionUC) CancelMany(ctx context.Context, input *models.CancelInput) (transcode.Ack, error) {
	if err := utils.ValidateStruct(ctx, input); err != nil {
		return transcode.Ack{}, fmt.Errorf("%w: %v", conversion.ErrInvalidRequest, err)
	}

	var sel transcode.Selector
	switch {
	case input.All:
		sel = transcode.All()
	case input.MediaID != "":
		sel = transcode.ByMedia(input.MediaID)
	case input.PathPrefix != "":
		if !filepath.IsAbs(input.PathPrefix) {
			return transcode.Ack{}, fmt.Errorf("%w: path_prefix must be absolute", conversion.ErrInvalidRequest)
		}
		sel = transcode.ByPathPrefix(input.PathPrefix)
	default:
		return transcode.Ack{}, fmt.Errorf("%w: one of media_id, path_prefix or all is required", conversion.ErrInvalidRequest)
	}
	return u.orchestrator.CancelMany(sel), nil
}

func (u *conversionUC) GetDownload(ctx context.Context, jobID string) (*transcode.Status, error) {
	status, err := u.orchestrator.GetStatus(jobID)
	if err != nil {
		return nil, err
	}
	if status.Kind != models.JobKindDownload || status.State != models.JobStateCompleted {
		return nil, fmt.Errorf("%w: job %s is a %s job in state %s", transcode.ErrInvalidTransition, jobID, status.Kind, status.State)
	}
	return &status, nil
}

func (u *conversionUC) CompleteDownload(ctx context.Context, jobID string, position int64) error {
	if err := u.orchestrator.CompleteHandoff(ctx, jobID, position); err != nil {
		u.logger.Errorf("CompleteDownload - job %s: %v", jobID, err)
		return err
	}
	u.logger.Infof("CompleteDownload - job %s delivered %d bytes", jobID, position)
	return nil
}

func (u *conversionUC) History(ctx context.Context, mediaID string, pq *utils.Pagination) (*models.ConversionList, error) {
	if u.repo == nil {
		return nil, conversion.ErrHistoryDisabled
	}
	if mediaID != "" {
		return u.repo.GetRecordsByMedia(ctx, mediaID, pq)
	}
	return u.repo.GetRecords(ctx, pq)
}

func (u *conversionUC) RunJanitor(ctx context.Context, interval time.Duration) {
	u.orchestrator.RunJanitor(ctx, interval)
}

// Shutdown stops every job, then cancels archive uploads still in flight and
// waits for them to return.
func (u *conversionUC) Shutdown(ctx context.Context) error {
	err := u.orchestrator.Shutdown(ctx)
	u.cancelArchive()

	done := make(chan struct{})
	go func() {
		u.archiveWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

// JobUpdated mirrors a transition to redis and records terminal outcomes.
func (u *conversionUC) JobUpdated(status transcode.Status) {
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()

	report := toReport(status)
	if u.redisRepo != nil {
		if err := u.redisRepo.SaveStatus(ctx, u.statusKey(status.SessionID), report, u.cfg.Redis.StatusTTL); err != nil {
			u.logger.Warnf("JobUpdated - SaveStatus %s: %v", status.SessionID, err)
		}
		if err := u.redisRepo.PublishStatus(ctx, u.cfg.Redis.StatusChannel, report); err != nil {
			u.logger.Warnf("JobUpdated - PublishStatus %s: %v", status.SessionID, err)
		}
	}

	if !status.IsComplete {
		return
	}
	if u.repo != nil {
		if err := u.repo.SaveRecord(ctx, toRecord(status)); err != nil {
			u.logger.Warnf("JobUpdated - SaveRecord %s: %v", status.SessionID, err)
		}
	}
	if status.State == models.JobStateCompleted && status.Kind == models.JobKindConversion {
		u.archiveWG.Add(1)
		go func() {
			defer u.archiveWG.Done()
			u.archive(status)
		}()
	}
}

// JobRemoved drops the mirrored status of a forgotten job.
func (u *conversionUC) JobRemoved(status transcode.Status) {
	if u.redisRepo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()
	if err := u.redisRepo.DeleteStatus(ctx, u.statusKey(status.SessionID)); err != nil {
		u.logger.Warnf("JobRemoved - DeleteStatus %s: %v", status.SessionID, err)
	}
}

func (u *conversionUC) archive(status transcode.Status) {
	if u.awsRepo == nil || u.cfg.S3.ArchiveBucket == "" {
		return
	}
	if err := u.archiveVersion(status); err != nil {
		u.logger.Errorf("archive - job %s: %v", status.SessionID, err)
		return
	}
	u.logger.Infof("archive - job %s uploaded %s", status.SessionID, filepath.Base(status.OutputPath))
}

func (u *conversionUC) archiveVersion(status transcode.Status) error {
	f, err := os.Open(status.OutputPath)
	if err != nil {
		return fmt.Errorf("failed to open version: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat version: %w", err)
	}

	ctx, cancel := context.WithTimeout(u.archiveCtx, archiveTimeout)
	defer cancel()
	_, err = u.awsRepo.PutObject(ctx, models.UploadInput{
		File:       f,
		Name:       filepath.Base(status.OutputPath),
		MimeType:   "video/mp4",
		Size:       info.Size(),
		Key:        fmt.Sprintf("versions/%s/%s", status.MediaID, filepath.Base(status.OutputPath)),
		BucketName: u.cfg.S3.ArchiveBucket,
	})
	return err
}

func (u *conversionUC) statusKey(jobID string) string {
	return u.cfg.Redis.StatusPrefix + jobID
}

func toReport(status transcode.Status) *models.ConversionStatusReport {
	report := &models.ConversionStatusReport{
		Error:           status.State == models.JobStateFailed,
		Message:         status.Message,
		JobID:           status.SessionID,
		MediaID:         status.MediaID,
		State:           status.State,
		PercentComplete: float64(status.PercentComplete),
		Type:            status.Kind,
		IsComplete:      status.IsComplete,
	}
	if report.Message == "" {
		report.Message = stateMessage(status.State)
	}
	return report
}

func stateMessage(state models.JobState) string {
	switch state {
	case models.JobStatePending:
		return "Job queued"
	case models.JobStateRunning:
		return "Job running"
	case models.JobStateCompleted:
		return "Job complete"
	case models.JobStateCancelled:
		return "Job cancelled"
	}
	return ""
}

func toRecord(status transcode.Status) *models.ConversionRecord {
	return &models.ConversionRecord{
		JobID:      status.SessionID,
		MediaID:    status.MediaID,
		Kind:       status.Kind,
		State:      status.State,
		OutputPath: status.OutputPath,
		Label:      status.Label,
		Message:    status.Message,
		StartedAt:  status.StartedAt,
		FinishedAt: status.FinishedAt,
	}
}
