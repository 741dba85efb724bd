package transcode

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/amankumarsingh77/conversion-orchestrator/internal/encoder"
	"github.com/amankumarsingh77/conversion-orchestrator/internal/models"
	"github.com/amankumarsingh77/conversion-orchestrator/pkg/logger"
)

type Config struct {
	// TranscodeDir holds transient download outputs.
	TranscodeDir    string
	KillTimeout     time.Duration
	RetentionPeriod time.Duration
	MaxRetention    time.Duration
}

// Request is a fully resolved encode request.
type Request struct {
	Source  models.MediaSource
	Kind    models.JobKind
	Label   string
	Options models.EncodingOptions
}

// Ack reports how many jobs a cancel matched and how many of those were
// still live.
type Ack struct {
	Matched   int `json:"matched"`
	Cancelled int `json:"cancelled"`
}

// Notifier observes job changes. Calls are made synchronously from the
// goroutine that caused the change and never while a path lock is held.
// No update for a job follows its removal.
type Notifier interface {
	JobUpdated(Status)
	JobRemoved(Status)
}

type Orchestrator struct {
	cfg      Config
	locks    *PathLocks
	registry *Registry
	runner   encoder.Runner
	builder  encoder.ArgumentBuilder
	notifier Notifier
	logger   logger.Logger
	now      func() time.Time
	wg       sync.WaitGroup
}

func NewOrchestrator(cfg Config, registry *Registry, runner encoder.Runner, builder encoder.ArgumentBuilder, notifier Notifier, logger logger.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		locks:    NewPathLocks(),
		registry: registry,
		runner:   runner,
		builder:  builder,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Initiate starts an encode for req or joins the live one that targets the
// same output path, and returns the job's session id. The encoder process is
// not tied to ctx; ctx only bounds the lock wait and the spawn. Notifications
// are sent after the path lock is released.
func (o *Orchestrator) Initiate(ctx context.Context, req Request) (string, error) {
	outputPath, err := o.outputPath(req)
	if err != nil {
		return "", err
	}

	release, err := o.locks.Acquire(ctx, outputPath)
	if err != nil {
		return "", fmt.Errorf("acquire lock for %s: %w", outputPath, err)
	}
	res, err := o.initiateLocked(ctx, req, outputPath)
	release()

	if res.superseded != nil {
		o.notifyRemoved(res.superseded)
	}
	if err != nil {
		return "", err
	}
	if res.job == nil {
		return res.sessionID, nil
	}
	for _, st := range res.updates {
		o.publish(res.job, st)
	}
	if res.supervise {
		go o.supervise(res.job)
	}
	return res.sessionID, nil
}

// initiation is the outcome of the locked part of Initiate.
type initiation struct {
	sessionID string
	// job is nil when an existing job was joined.
	job        *Job
	updates    []Status
	supervise  bool
	superseded *Job
}

func (o *Orchestrator) initiateLocked(ctx context.Context, req Request, outputPath string) (initiation, error) {
	var res initiation
	if existing, ok := o.registry.FindByPath(outputPath); ok {
		if o.join(existing) {
			res.sessionID = existing.SessionID
			return res, nil
		}
		if !existing.keepsOutput() && o.forget(existing) {
			res.superseded = existing
		}
	}

	if req.Kind == models.JobKindConversion {
		if _, err := os.Stat(outputPath); err == nil {
			return res, fmt.Errorf("%s: %w", outputPath, ErrDuplicateArtifact)
		} else if !errors.Is(err, os.ErrNotExist) {
			return res, fmt.Errorf("stat %s: %w", outputPath, err)
		}
	}

	args := o.builder.BuildArguments(req.Source, req.Options, outputPath)
	handle, err := o.runner.Spawn(ctx, encoder.SpawnSpec{
		Args:       args,
		OutputPath: outputPath,
		Duration:   req.Source.Duration,
	})
	if err != nil {
		o.logger.Errorf("Orchestrator.Initiate - spawn for %s: %v", outputPath, err)
		return res, &SpawnError{OutputPath: outputPath, Err: err}
	}

	job := newJob(req, outputPath, handle, o.now())
	o.registry.Add(job)
	res.sessionID = job.SessionID
	res.job = job
	res.updates = append(res.updates, job.Snapshot())

	if err := job.transition(models.JobStateRunning, o.now(), nil); err != nil {
		// Cancelled between registration and start; CancelMany already
		// released the process.
		o.logger.Debugf("Orchestrator.Initiate - job %s: %v", job.SessionID, err)
		return res, nil
	}
	res.updates = append(res.updates, job.Snapshot())
	res.supervise = true
	o.wg.Add(1)

	o.logger.Infof("Orchestrator.Initiate - job %s started %s encode to %s (pid %d)", job.SessionID, job.Kind, outputPath, handle.Pid())
	return res, nil
}

// join reports whether a new request for the same path shares existing. Live
// jobs and finished downloads whose file is still on disk are shared; anything
// else except a completed conversion is superseded by the caller.
func (o *Orchestrator) join(existing *Job) bool {
	switch existing.State() {
	case models.JobStatePending, models.JobStateRunning:
		o.logger.Debugf("Orchestrator.join - joining live job %s", existing.SessionID)
		return true
	case models.JobStateCompleted:
		if existing.Kind == models.JobKindDownload {
			_, err := os.Stat(existing.OutputPath)
			return err == nil
		}
	}
	return false
}

func (o *Orchestrator) outputPath(req Request) (string, error) {
	switch req.Kind {
	case models.JobKindConversion:
		return ConversionPath(req.Source.Path, req.Label)
	case models.JobKindDownload:
		args := o.builder.BuildArguments(req.Source, req.Options, "")
		return DownloadPath(o.cfg.TranscodeDir, req.Source.Path, args), nil
	}
	return "", fmt.Errorf("unknown job kind %q", req.Kind)
}

func (o *Orchestrator) supervise(job *Job) {
	defer o.wg.Done()

	for p := range job.handle.Progress() {
		job.reportProgress(p.Fraction)
	}
	<-job.handle.Done()

	to := models.JobStateCompleted
	var cause error
	if status := job.handle.ExitStatus(); !status.Success() {
		to = models.JobStateFailed
		cause = &ProcessError{Code: status.Code, Stderr: status.Stderr}
	} else if err := verifyOutput(job.OutputPath); err != nil {
		to = models.JobStateFailed
		cause = fmt.Errorf("%w: %v", ErrProcessFailure, err)
	}

	if err := job.transition(to, o.now(), cause); err != nil {
		// Cancelled while the process was exiting.
		o.logger.Debugf("Orchestrator.supervise - job %s: %v", job.SessionID, err)
		return
	}
	o.notifyUpdated(job)

	if cause != nil {
		o.logger.Warnf("Orchestrator.supervise - job %s failed: %v", job.SessionID, cause)
		return
	}
	o.logger.Infof("Orchestrator.supervise - job %s completed", job.SessionID)
}

func verifyOutput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return fmt.Errorf("output %s is empty", path)
	}
	return nil
}

// GetStatus returns a snapshot of the job. A completed job always reports
// 100 percent.
func (o *Orchestrator) GetStatus(sessionID string) (Status, error) {
	job, ok := o.registry.Get(sessionID)
	if !ok {
		return Status{}, fmt.Errorf("job %s: %w", sessionID, ErrNotFound)
	}
	job.markObserved()
	return job.Snapshot(), nil
}

// Peek is GetStatus without marking the job observed.
func (o *Orchestrator) Peek(sessionID string) (Status, error) {
	job, ok := o.registry.Get(sessionID)
	if !ok {
		return Status{}, fmt.Errorf("job %s: %w", sessionID, ErrNotFound)
	}
	return job.Snapshot(), nil
}

// Cancel stops and forgets one job. Unknown and finished jobs are not an error.
func (o *Orchestrator) Cancel(sessionID string) Ack {
	return o.CancelMany(BySession(sessionID))
}

// CancelMany stops every live job matched by sel and removes all matched jobs
// from the registry. Cancelled jobs are not retained.
func (o *Orchestrator) CancelMany(sel Selector) Ack {
	jobs := o.registry.Select(sel)
	ack := Ack{Matched: len(jobs)}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, job := range jobs {
		wg.Add(1)
		go func(job *Job) {
			defer wg.Done()
			cancelled := job.transition(models.JobStateCancelled, o.now(), nil) == nil
			if cancelled {
				o.notifyUpdated(job)
				mu.Lock()
				ack.Cancelled++
				mu.Unlock()
			}
			o.remove(job)
		}(job)
	}
	wg.Wait()

	if ack.Matched > 0 {
		o.logger.Infof("Orchestrator.CancelMany - %s: matched %d, cancelled %d", sel, ack.Matched, ack.Cancelled)
	}
	return ack
}

// CompleteHandoff is called once a finished download has been delivered. It
// records the delivered position and discards the job and its file while
// holding the path lock, so a concurrent Initiate never joins a job that is
// being discarded.
func (o *Orchestrator) CompleteHandoff(ctx context.Context, sessionID string, position int64) error {
	job, ok := o.registry.Get(sessionID)
	if !ok {
		return fmt.Errorf("job %s: %w", sessionID, ErrNotFound)
	}

	release, err := o.locks.Acquire(ctx, job.OutputPath)
	if err != nil {
		return fmt.Errorf("acquire lock for %s: %w", job.OutputPath, err)
	}
	if err := job.recordHandoff(position); err != nil {
		release()
		return err
	}
	forgotten := o.forget(job)
	release()

	if !forgotten {
		return fmt.Errorf("job %s: %w", sessionID, ErrNotFound)
	}
	o.notifyRemoved(job)
	return nil
}

// Reap drops terminal jobs whose retention has run out and returns how many
// were removed.
func (o *Orchestrator) Reap(now time.Time) int {
	n := 0
	for _, job := range o.registry.Select(All()) {
		if job.expired(now, o.cfg.RetentionPeriod, o.cfg.MaxRetention) {
			o.remove(job)
			n++
		}
	}
	return n
}

// RunJanitor reaps on every tick until ctx is done.
func (o *Orchestrator) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := o.Reap(o.now()); n > 0 {
				o.logger.Debugf("Orchestrator.RunJanitor - reaped %d jobs", n)
			}
		}
	}
}

// Shutdown cancels every job and waits for the supervisors to finish.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.CancelMany(All())

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) remove(job *Job) {
	if o.forget(job) {
		o.notifyRemoved(job)
	}
}

// forget drops job from the registry and releases its process and transient
// output. It reports false when another caller already removed the job.
func (o *Orchestrator) forget(job *Job) bool {
	if _, ok := o.registry.Remove(job.SessionID); !ok {
		return false
	}
	if err := job.release(o.cfg.KillTimeout); err != nil {
		o.logger.Warnf("Orchestrator.forget - job %s: %v", job.SessionID, err)
	}
	return true
}

func (o *Orchestrator) notifyUpdated(job *Job) {
	o.publish(job, job.Snapshot())
}

// publish delivers st unless the job was already reported removed.
func (o *Orchestrator) publish(job *Job, st Status) {
	if o.notifier == nil {
		return
	}
	job.notifyMu.Lock()
	defer job.notifyMu.Unlock()
	if job.forgotten {
		return
	}
	o.notifier.JobUpdated(st)
}

func (o *Orchestrator) notifyRemoved(job *Job) {
	job.notifyMu.Lock()
	defer job.notifyMu.Unlock()
	if job.forgotten {
		return
	}
	job.forgotten = true
	if o.notifier != nil {
		o.notifier.JobRemoved(job.Snapshot())
	}
}
