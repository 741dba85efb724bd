package worker

import (
	"context"
	"sync"
	"time"

	"github.com/amankumarsingh77/conversion-orchestrator/internal/config"
	"github.com/amankumarsingh77/conversion-orchestrator/internal/conversion"
	"github.com/amankumarsingh77/conversion-orchestrator/pkg/logger"
	"github.com/amankumarsingh77/conversion-orchestrator/pkg/utils"
)

const cpuSampleInterval = time.Second

// Worker pulls queued conversion requests from redis and hands them to the
// use case while the host has CPU headroom.
type Worker struct {
	cfg       *config.Config
	logger    logger.Logger
	redisRepo conversion.RedisRepository
	convUC    conversion.UseCase
	cpuGate   func(ctx context.Context) (bool, float64)
	wg        sync.WaitGroup
}

func NewWorker(cfg *config.Config, logger logger.Logger, redisRepo conversion.RedisRepository, convUC conversion.UseCase) *Worker {
	w := &Worker{
		cfg:       cfg,
		logger:    logger,
		redisRepo: redisRepo,
		convUC:    convUC,
	}
	w.cpuGate = func(ctx context.Context) (bool, float64) {
		return utils.CheckCPUUsage(ctx, cfg.Worker.MaxCPUUsage, cpuSampleInterval)
	}
	return w
}

// Start launches WorkerCount consumers that run until ctx is done.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Infof("Starting %d workers on queue %s", w.cfg.Worker.WorkerCount, w.cfg.Worker.QueueKey)
	for i := 0; i < w.cfg.Worker.WorkerCount; i++ {
		w.wg.Add(1)
		go w.consume(ctx, i)
	}
}

// Wait blocks until every consumer has returned.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) consume(ctx context.Context, id int) {
	defer w.wg.Done()
	for ctx.Err() == nil {
		if ok, usage := w.cpuGate(ctx); !ok {
			w.logger.Debugf("worker %d: CPU usage is high: %.1f", id, usage)
			w.sleep(ctx)
			continue
		}

		input, err := w.redisRepo.DequeueRequest(ctx, w.cfg.Worker.QueueKey, w.cfg.Worker.PollInterval)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Errorf("worker %d: DequeueRequest: %v", id, err)
			w.sleep(ctx)
			continue
		}
		if input == nil {
			continue
		}

		report, err := w.convUC.Initiate(ctx, input)
		if err != nil {
			w.logger.Errorf("worker %d: Initiate media %s: %v", id, input.MediaID, err)
			continue
		}
		w.logger.Infof("worker %d: media %s queued as job %s", id, input.MediaID, report.JobID)
	}
}

func (w *Worker) sleep(ctx context.Context) {
	t := time.NewTimer(w.cfg.Worker.PollInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
