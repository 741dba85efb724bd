package transcode

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/amankumarsingh77/conversion-orchestrator/internal/encoder"
	"github.com/amankumarsingh77/conversion-orchestrator/internal/models"
	"github.com/google/uuid"
)

var transitions = map[models.JobState][]models.JobState{
	models.JobStatePending: {models.JobStateRunning, models.JobStateFailed, models.JobStateCancelled},
	models.JobStateRunning: {models.JobStateCompleted, models.JobStateFailed, models.JobStateCancelled},
}

func isValidTransition(from, to models.JobState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Job is one tracked encode. Exported fields never change after creation;
// everything else is guarded by mu and only changed through transition.
type Job struct {
	SessionID  string
	MediaID    string
	OutputPath string
	Kind       models.JobKind
	Label      string
	CreatedAt  time.Time

	handle  encoder.Handle
	done    chan struct{}
	dispose sync.Once

	// notifyMu orders notifications for this job; forgotten is set once its
	// removal has been reported.
	notifyMu  sync.Mutex
	forgotten bool

	mu               sync.Mutex
	state            models.JobState
	progress         float64
	startedAt        time.Time
	finishedAt       time.Time
	downloadPosition int64
	observed         bool
	err              error
}

// Status is a point-in-time copy of a job.
type Status struct {
	SessionID        string          `json:"session_id"`
	MediaID          string          `json:"media_id"`
	OutputPath       string          `json:"output_path"`
	Kind             models.JobKind  `json:"kind"`
	Label            string          `json:"label,omitempty"`
	State            models.JobState `json:"state"`
	Progress         float64         `json:"progress"`
	PercentComplete  int             `json:"percent_complete"`
	IsComplete       bool            `json:"is_complete"`
	Message          string          `json:"message,omitempty"`
	DownloadPosition int64           `json:"download_position,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	StartedAt        time.Time       `json:"started_at,omitempty"`
	FinishedAt       time.Time       `json:"finished_at,omitempty"`
}

func newSessionID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

func newJob(req Request, outputPath string, handle encoder.Handle, now time.Time) *Job {
	return &Job{
		SessionID:  newSessionID(),
		MediaID:    req.Source.ID,
		OutputPath: outputPath,
		Kind:       req.Kind,
		Label:      req.Label,
		CreatedAt:  now,
		handle:     handle,
		done:       make(chan struct{}),
		state:      models.JobStatePending,
	}
}

func (j *Job) State() models.JobState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Done is closed when the job enters a terminal state.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

func (j *Job) transition(to models.JobState, now time.Time, cause error) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !isValidTransition(j.state, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.state, to)
	}
	j.state = to
	switch to {
	case models.JobStateRunning:
		j.startedAt = now
	case models.JobStateCompleted:
		j.progress = 1
	}
	if to.Terminal() {
		j.finishedAt = now
		j.err = cause
		close(j.done)
	}
	return nil
}

// reportProgress applies a sample while running. Samples never move progress
// backwards.
func (j *Job) reportProgress(fraction float64) {
	if fraction > 1 {
		fraction = 1
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state == models.JobStateRunning && fraction > j.progress {
		j.progress = fraction
	}
}

func (j *Job) markObserved() {
	j.mu.Lock()
	j.observed = true
	j.mu.Unlock()
}

// recordHandoff validates that the artifact is a finished download and stores
// how much of it the consumer read.
func (j *Job) recordHandoff(position int64) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != models.JobStateCompleted || j.Kind != models.JobKindDownload {
		return fmt.Errorf("%w: handoff of %s %s job", ErrInvalidTransition, j.state, j.Kind)
	}
	j.downloadPosition = position
	return nil
}

// expired reports whether the janitor may drop a terminal job.
func (j *Job) expired(now time.Time, retention, maxRetention time.Duration) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.state.Terminal() {
		return false
	}
	age := now.Sub(j.finishedAt)
	if maxRetention > 0 && age >= maxRetention {
		return true
	}
	if age < retention {
		return false
	}
	if j.state == models.JobStateCompleted && j.Kind == models.JobKindConversion {
		return j.observed
	}
	return true
}

func (j *Job) Snapshot() Status {
	j.mu.Lock()
	defer j.mu.Unlock()

	s := Status{
		SessionID:        j.SessionID,
		MediaID:          j.MediaID,
		OutputPath:       j.OutputPath,
		Kind:             j.Kind,
		Label:            j.Label,
		State:            j.state,
		Progress:         j.progress,
		PercentComplete:  int(math.Round(j.progress * 100)),
		IsComplete:       j.state.Terminal(),
		DownloadPosition: j.downloadPosition,
		CreatedAt:        j.CreatedAt,
		StartedAt:        j.startedAt,
		FinishedAt:       j.finishedAt,
	}
	if j.state == models.JobStateCompleted {
		s.PercentComplete = 100
	}
	if j.err != nil {
		s.Message = j.err.Error()
	}
	return s
}

// keepsOutput reports whether the output file outlives the job record. Only
// a completed conversion is a kept artifact.
func (j *Job) keepsOutput() bool {
	return j.Kind == models.JobKindConversion && j.State() == models.JobStateCompleted
}

// release stops the encoder if it is still alive and removes transient output.
// It runs at most once per job.
func (j *Job) release(killTimeout time.Duration) error {
	var errs []error
	j.dispose.Do(func() {
		if j.handle != nil && j.handle.IsAlive() {
			if err := j.handle.Terminate(killTimeout); err != nil {
				errs = append(errs, fmt.Errorf("terminate pid %d: %w", j.handle.Pid(), err))
			}
		}
		if !j.keepsOutput() {
			if err := os.Remove(j.OutputPath); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, fmt.Errorf("remove %s: %w", j.OutputPath, err))
			}
		}
	})
	return errors.Join(errs...)
}
