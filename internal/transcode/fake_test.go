package transcode

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/amankumarsingh77/conversion-orchestrator/internal/encoder"
	"github.com/amankumarsingh77/conversion-orchestrator/internal/models"
	"github.com/amankumarsingh77/conversion-orchestrator/pkg/logger"
)

type fakeHandle struct {
	pid        int
	output     string
	progress   chan encoder.Progress
	done       chan struct{}
	ignoreKill bool
	terminated int32

	mu     sync.Mutex
	status encoder.ExitStatus
	once   sync.Once
}

func newFakeHandle(pid int, output string) *fakeHandle {
	return &fakeHandle{
		pid:      pid,
		output:   output,
		progress: make(chan encoder.Progress, 8),
		done:     make(chan struct{}),
	}
}

// finish ends the fake process; writeOutput simulates a produced file.
func (h *fakeHandle) finish(status encoder.ExitStatus, writeOutput bool) {
	h.once.Do(func() {
		if writeOutput {
			_ = os.WriteFile(h.output, []byte("ftypisom"), 0o644)
		}
		h.mu.Lock()
		h.status = status
		h.mu.Unlock()
		close(h.progress)
		close(h.done)
	})
}

func (h *fakeHandle) succeed() {
	h.finish(encoder.ExitStatus{State: encoder.ExitSuccess}, true)
}

func (h *fakeHandle) Pid() int { return h.pid }

func (h *fakeHandle) IsAlive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

func (h *fakeHandle) ExitStatus() encoder.ExitStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

func (h *fakeHandle) Terminate(timeout time.Duration) error {
	atomic.AddInt32(&h.terminated, 1)
	if h.ignoreKill {
		time.Sleep(timeout)
		return encoder.ErrTerminateTimeout
	}
	h.finish(encoder.ExitStatus{State: encoder.ExitFailure, Code: -1}, false)
	return nil
}

func (h *fakeHandle) Progress() <-chan encoder.Progress { return h.progress }

func (h *fakeHandle) Done() <-chan struct{} { return h.done }

type fakeRunner struct {
	mu           sync.Mutex
	handles      []*fakeHandle
	err          error
	writePartial bool
	ignoreKill   bool
}

func (r *fakeRunner) Spawn(ctx context.Context, spec encoder.SpawnSpec) (encoder.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	if err := os.MkdirAll(filepath.Dir(spec.OutputPath), 0o755); err != nil {
		return nil, err
	}
	if r.writePartial {
		if err := os.WriteFile(spec.OutputPath, []byte("partial"), 0o644); err != nil {
			return nil, err
		}
	}
	h := newFakeHandle(1000+len(r.handles), spec.OutputPath)
	h.ignoreKill = r.ignoreKill
	r.handles = append(r.handles, h)
	return h, nil
}

func (r *fakeRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

func (r *fakeRunner) handle(i int) *fakeHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handles[i]
}

type recordingNotifier struct {
	mu      sync.Mutex
	states  []models.JobState
	removed []string
}

func (n *recordingNotifier) JobUpdated(s Status) {
	n.mu.Lock()
	n.states = append(n.states, s.State)
	n.mu.Unlock()
}

func (n *recordingNotifier) JobRemoved(s Status) {
	n.mu.Lock()
	n.removed = append(n.removed, s.SessionID)
	n.mu.Unlock()
}

var testClock = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	o        *Orchestrator
	runner   *fakeRunner
	mediaDir string
	source   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	mediaDir := filepath.Join(dir, "media")
	if err := os.MkdirAll(mediaDir, 0o755); err != nil {
		t.Fatal(err)
	}
	source := filepath.Join(mediaDir, "Movie.mkv")
	if err := os.WriteFile(source, []byte("source"), 0o644); err != nil {
		t.Fatal(err)
	}

	runner := &fakeRunner{}
	cfg := Config{
		TranscodeDir:    filepath.Join(dir, "transcodes"),
		KillTimeout:     100 * time.Millisecond,
		RetentionPeriod: time.Minute,
		MaxRetention:    time.Hour,
	}
	o := NewOrchestrator(cfg, NewRegistry(), runner, encoder.FFmpegArguments{}, nil, logger.NewNop())
	o.now = func() time.Time { return testClock }
	return &testEnv{o: o, runner: runner, mediaDir: mediaDir, source: source}
}

func (e *testEnv) download() Request {
	return Request{
		Source: models.MediaSource{ID: "media-1", Path: e.source, Duration: 10 * time.Second},
		Kind:   models.JobKindDownload,
	}
}

func (e *testEnv) conversion(label string) Request {
	return Request{
		Source: models.MediaSource{ID: "media-1", Path: e.source, Duration: 10 * time.Second},
		Kind:   models.JobKindConversion,
		Label:  label,
	}
}

func (e *testEnv) initiate(t *testing.T, req Request) string {
	t.Helper()
	id, err := e.o.Initiate(context.Background(), req)
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	return id
}

// waitTerminal waits on the job's completion channel without marking it
// observed.
func (e *testEnv) waitTerminal(t *testing.T, id string) *Job {
	t.Helper()
	job, ok := e.o.registry.Get(id)
	if !ok {
		t.Fatalf("job %s not registered", id)
	}
	select {
	case <-job.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("job %s did not finish", id)
	}
	return job
}

func (e *testEnv) waitPercent(t *testing.T, id string, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		st, err := e.o.GetStatus(id)
		if err == nil && st.PercentComplete == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached %d%%", id, want)
}

func assertNotFound(t *testing.T, o *Orchestrator, id string) {
	t.Helper()
	if _, err := o.GetStatus(id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetStatus(%s) error = %v, want ErrNotFound", id, err)
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// gatedNotifier blocks every JobUpdated call until open is closed.
type gatedNotifier struct {
	recordingNotifier
	entered chan struct{}
	open    chan struct{}
	once    sync.Once
}

func newGatedNotifier() *gatedNotifier {
	return &gatedNotifier{entered: make(chan struct{}), open: make(chan struct{})}
}

func (n *gatedNotifier) JobUpdated(s Status) {
	n.once.Do(func() { close(n.entered) })
	<-n.open
	n.recordingNotifier.JobUpdated(s)
}
