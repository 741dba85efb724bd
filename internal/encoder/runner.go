package encoder

import (
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/amankumarsingh77/conversion-orchestrator/pkg/logger"
	"github.com/pkg/errors"
)

const (
	progressBuffer   = 16
	stderrTailLines  = 20
	pipeDrainTimeout = 2 * time.Second
)

var ErrTerminateTimeout = errors.New("encoder did not exit before kill timeout")

// SpawnSpec describes one encoder invocation.
type SpawnSpec struct {
	Args       []string
	OutputPath string
	// Duration of the source, zero when unknown.
	Duration time.Duration
}

// Runner starts encoder processes. The process outlives the context passed
// to Spawn; ctx only bounds the start itself.
type Runner interface {
	Spawn(ctx context.Context, spec SpawnSpec) (Handle, error)
}

// Handle is the live view of a spawned encoder.
type Handle interface {
	Pid() int
	IsAlive() bool
	ExitStatus() ExitStatus
	// Terminate kills the process group and waits up to timeout for exit.
	Terminate(timeout time.Duration) error
	// Progress is closed once the encoder stops reporting.
	Progress() <-chan Progress
	// Done is closed after the exit status is known.
	Done() <-chan struct{}
}

type ExitState int

const (
	ExitPending ExitState = iota
	ExitSuccess
	ExitFailure
)

type ExitStatus struct {
	State  ExitState
	Code   int
	Stderr string
	Err    error
}

func (s ExitStatus) Success() bool {
	return s.State == ExitSuccess
}

type FFmpegRunner struct {
	path   string
	logger logger.Logger
}

func NewFFmpegRunner(path string, logger logger.Logger) *FFmpegRunner {
	return &FFmpegRunner{path: path, logger: logger}
}

func (r *FFmpegRunner) Spawn(ctx context.Context, spec SpawnSpec) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "spawn cancelled")
	}
	if spec.OutputPath != "" {
		if err := os.MkdirAll(filepath.Dir(spec.OutputPath), 0o755); err != nil {
			return nil, errors.Wrap(err, "create output directory")
		}
	}

	cmd := exec.Command(r.path, spec.Args...)
	setProcessGroup(cmd)
	cmd.WaitDelay = pipeDrainTimeout

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "stdout pipe")
	}
	tail := &tailBuffer{}
	cmd.Stderr = tail

	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "start %s", r.path)
	}

	h := &processHandle{
		cmd:      cmd,
		stderr:   tail,
		duration: spec.Duration,
		progress: make(chan Progress, progressBuffer),
		done:     make(chan struct{}),
		logger:   r.logger,
	}
	go h.wait(stdout)

	r.logger.Debugf("FFmpegRunner.Spawn - pid %d: %s %v", h.Pid(), r.path, spec.Args)
	return h, nil
}

type processHandle struct {
	cmd      *exec.Cmd
	stderr   *tailBuffer
	duration time.Duration
	progress chan Progress
	done     chan struct{}
	logger   logger.Logger

	mu     sync.Mutex
	status ExitStatus
}

func (h *processHandle) wait(stdout io.Reader) {
	durationFn := func() time.Duration {
		if h.duration > 0 {
			return h.duration
		}
		return h.stderr.Duration()
	}
	if err := ParseProgress(stdout, durationFn, h.publish); err != nil {
		h.logger.Debugf("processHandle.wait - progress stream for pid %d: %v", h.Pid(), err)
	}
	close(h.progress)

	status := exitStatus(h.cmd.Wait())
	if !status.Success() {
		status.Stderr = h.stderr.Tail(stderrTailLines)
	}

	h.mu.Lock()
	h.status = status
	h.mu.Unlock()
	close(h.done)
}

// publish never blocks the parser; a slow consumer only misses samples.
func (h *processHandle) publish(p Progress) {
	select {
	case h.progress <- p:
	default:
		select {
		case <-h.progress:
		default:
		}
		select {
		case h.progress <- p:
		default:
		}
	}
}

func exitStatus(err error) ExitStatus {
	if err == nil {
		return ExitStatus{State: ExitSuccess}
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return ExitStatus{State: ExitFailure, Code: exitErr.ExitCode(), Err: err}
	}
	return ExitStatus{State: ExitFailure, Code: -1, Err: err}
}

func (h *processHandle) Pid() int {
	if h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

func (h *processHandle) IsAlive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

func (h *processHandle) ExitStatus() ExitStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

func (h *processHandle) Terminate(timeout time.Duration) error {
	if !h.IsAlive() {
		return nil
	}
	if err := killProcessGroup(h.cmd); err != nil {
		return errors.Wrapf(err, "kill pid %d", h.Pid())
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-h.done:
		return nil
	case <-timer.C:
		return ErrTerminateTimeout
	}
}

func (h *processHandle) Progress() <-chan Progress {
	return h.progress
}

func (h *processHandle) Done() <-chan struct{} {
	return h.done
}
