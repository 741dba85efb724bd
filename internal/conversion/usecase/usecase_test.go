package usecase

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/amankumarsingh77/conversion-orchestrator/internal/config"
	"github.com/amankumarsingh77/conversion-orchestrator/internal/conversion"
	"github.com/amankumarsingh77/conversion-orchestrator/internal/encoder"
	"github.com/amankumarsingh77/conversion-orchestrator/internal/models"
	"github.com/amankumarsingh77/conversion-orchestrator/internal/transcode"
	"github.com/amankumarsingh77/conversion-orchestrator/pkg/logger"
	"github.com/amankumarsingh77/conversion-orchestrator/pkg/utils"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type stubHandle struct {
	output   string
	progress chan encoder.Progress
	done     chan struct{}
	once     sync.Once

	mu     sync.Mutex
	status encoder.ExitStatus
}

func (h *stubHandle) finish(ok bool) {
	h.once.Do(func() {
		h.mu.Lock()
		if ok {
			_ = os.WriteFile(h.output, []byte("ftypisom"), 0o644)
			h.status = encoder.ExitStatus{State: encoder.ExitSuccess}
		} else {
			h.status = encoder.ExitStatus{State: encoder.ExitFailure, Code: -1}
		}
		h.mu.Unlock()
		close(h.progress)
		close(h.done)
	})
}

func (h *stubHandle) Pid() int { return 42 }

func (h *stubHandle) IsAlive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

func (h *stubHandle) ExitStatus() encoder.ExitStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

func (h *stubHandle) Terminate(time.Duration) error {
	h.finish(false)
	return nil
}

func (h *stubHandle) Progress() <-chan encoder.Progress { return h.progress }

func (h *stubHandle) Done() <-chan struct{} { return h.done }

type stubRunner struct {
	mu      sync.Mutex
	specs   []encoder.SpawnSpec
	handles []*stubHandle
}

func (r *stubRunner) Spawn(ctx context.Context, spec encoder.SpawnSpec) (encoder.Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(spec.OutputPath), 0o755); err != nil {
		return nil, err
	}
	h := &stubHandle{
		output:   spec.OutputPath,
		progress: make(chan encoder.Progress),
		done:     make(chan struct{}),
	}
	r.specs = append(r.specs, spec)
	r.handles = append(r.handles, h)
	return h, nil
}

func (r *stubRunner) spawned() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

func (r *stubRunner) last() (*stubHandle, encoder.SpawnSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handles[len(r.handles)-1], r.specs[len(r.specs)-1]
}

type recordingBuilder struct {
	encoder.FFmpegArguments
	mu   sync.Mutex
	opts []models.EncodingOptions
}

func (b *recordingBuilder) BuildArguments(src models.MediaSource, opts models.EncodingOptions, outputPath string) []string {
	b.mu.Lock()
	b.opts = append(b.opts, opts)
	b.mu.Unlock()
	return b.FFmpegArguments.BuildArguments(src, opts, outputPath)
}

type stubProber struct {
	d   time.Duration
	err error
}

func (p stubProber) Duration(context.Context, string) (time.Duration, error) {
	return p.d, p.err
}

type memRedis struct {
	mu        sync.Mutex
	statuses  map[string]*models.ConversionStatusReport
	published []*models.ConversionStatusReport
	deleted   []string
}

func newMemRedis() *memRedis {
	return &memRedis{statuses: map[string]*models.ConversionStatusReport{}}
}

func (m *memRedis) SaveStatus(ctx context.Context, key string, report *models.ConversionStatusReport, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[key] = report
	return nil
}

func (m *memRedis) GetStatus(ctx context.Context, key string) (*models.ConversionStatusReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statuses[key], nil
}

func (m *memRedis) DeleteStatus(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.statuses, key)
	m.deleted = append(m.deleted, key)
	return nil
}

func (m *memRedis) PublishStatus(ctx context.Context, channel string, report *models.ConversionStatusReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, report)
	return nil
}

func (m *memRedis) SubscribeStatus(ctx context.Context, channel string) (<-chan *models.ConversionStatusReport, error) {
	return nil, errors.New("not supported")
}

func (m *memRedis) EnqueueRequest(ctx context.Context, key string, input *models.InitiateInput) error {
	return errors.New("not supported")
}

func (m *memRedis) DequeueRequest(ctx context.Context, key string, timeout time.Duration) (*models.InitiateInput, error) {
	return nil, nil
}

type memRepo struct {
	mu      sync.Mutex
	records []*models.ConversionRecord
	byMedia string
}

func (m *memRepo) SaveRecord(ctx context.Context, record *models.ConversionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, record)
	return nil
}

func (m *memRepo) GetRecords(ctx context.Context, pq *utils.Pagination) (*models.ConversionList, error) {
	return &models.ConversionList{TotalCount: len(m.records)}, nil
}

func (m *memRepo) GetRecordsByMedia(ctx context.Context, mediaID string, pq *utils.Pagination) (*models.ConversionList, error) {
	m.mu.Lock()
	m.byMedia = mediaID
	m.mu.Unlock()
	return &models.ConversionList{}, nil
}

func (m *memRepo) saved() []*models.ConversionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.ConversionRecord(nil), m.records...)
}

type memBucket struct {
	mu      sync.Mutex
	uploads map[string][]byte
	// gate, when set, holds every upload until it is closed or ctx ends.
	gate chan struct{}
}

func (b *memBucket) PutObject(ctx context.Context, input models.UploadInput) (*s3.PutObjectOutput, error) {
	if b.gate != nil {
		select {
		case <-b.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	data, err := io.ReadAll(input.File)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.uploads == nil {
		b.uploads = map[string][]byte{}
	}
	b.uploads[input.BucketName+"/"+input.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (b *memBucket) object(key string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.uploads[key]
	return data, ok
}

type testEnv struct {
	uc      conversion.UseCase
	runner  *stubRunner
	builder *recordingBuilder
	redis   *memRedis
	repo    *memRepo
	bucket  *memBucket
	source  string
}

func newTestEnv(t *testing.T, prober encoder.Prober) *testEnv {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	media := filepath.Join(root, "media")
	if err := os.MkdirAll(media, 0o755); err != nil {
		t.Fatal(err)
	}
	source := filepath.Join(media, "Movie.mkv")
	if err := os.WriteFile(source, []byte("matroska"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{}
	cfg.Transcode.MediaRoots = []string{media}
	cfg.Transcode.TranscodeDir = filepath.Join(root, "transcodes")
	cfg.Transcode.KillTimeout = 100 * time.Millisecond
	cfg.Transcode.RetentionPeriod = time.Minute
	cfg.Transcode.MaxRetention = time.Hour
	cfg.Redis.StatusPrefix = "conversion:status:"
	cfg.Redis.StatusChannel = "conversion_status"
	cfg.S3.ArchiveBucket = "versions"

	env := &testEnv{
		runner:  &stubRunner{},
		builder: &recordingBuilder{},
		redis:   newMemRedis(),
		repo:    &memRepo{},
		bucket:  &memBucket{},
		source:  source,
	}
	env.uc = NewConversionUseCase(cfg, transcode.NewRegistry(), env.runner, env.builder, prober,
		env.repo, env.redis, env.bucket, logger.NewNop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = env.uc.Shutdown(ctx)
	})
	return env
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestInitiateConversionMirrorsAndArchives(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	report, err := env.uc.Initiate(ctx, &models.InitiateInput{
		MediaID:         "m1",
		SourcePath:      env.source,
		OutputVersion:   "720p",
		DurationSeconds: 60,
	})
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if report.Type != models.JobKindConversion || report.State != models.JobStateRunning {
		t.Errorf("report = %+v", report)
	}
	if got := env.builder.opts[0]; got.MaxHeight != 720 || got.VideoBitrate != 3000 {
		t.Errorf("preset not applied: %+v", got)
	}

	h, spec := env.runner.last()
	if spec.Duration != time.Minute {
		t.Errorf("spawn duration = %v", spec.Duration)
	}
	wantOut := filepath.Join(filepath.Dir(env.source), "Movie - 720p.mp4")
	if spec.OutputPath != wantOut {
		t.Errorf("output = %q, want %q", spec.OutputPath, wantOut)
	}
	h.finish(true)

	eventually(t, "history record", func() bool { return len(env.repo.saved()) == 1 })
	rec := env.repo.saved()[0]
	if rec.State != models.JobStateCompleted || rec.Label != "720p" || rec.JobID != report.JobID {
		t.Errorf("record = %+v", rec)
	}

	eventually(t, "archive upload", func() bool {
		_, ok := env.bucket.object("versions/versions/m1/Movie - 720p.mp4")
		return ok
	})

	mirrored, _ := env.redis.GetStatus(ctx, "conversion:status:"+report.JobID)
	if mirrored == nil || mirrored.State != models.JobStateCompleted || mirrored.PercentComplete != 100 {
		t.Errorf("mirrored status = %+v", mirrored)
	}

	status, err := env.uc.GetStatus(ctx, report.JobID)
	if err != nil {
		t.Fatal(err)
	}
	if !status.IsComplete || status.Message != "Job complete" {
		t.Errorf("status = %+v", status)
	}
}

func TestInitiateProbesUnknownDuration(t *testing.T) {
	env := newTestEnv(t, stubProber{d: 90 * time.Second})
	if _, err := env.uc.Initiate(context.Background(), &models.InitiateInput{MediaID: "m1", SourcePath: env.source}); err != nil {
		t.Fatal(err)
	}
	if _, spec := env.runner.last(); spec.Duration != 90*time.Second {
		t.Errorf("spawn duration = %v, want probed 90s", spec.Duration)
	}

	env = newTestEnv(t, stubProber{err: errors.New("no ffprobe")})
	if _, err := env.uc.Initiate(context.Background(), &models.InitiateInput{MediaID: "m1", SourcePath: env.source}); err != nil {
		t.Fatalf("probe failure must not fail initiate: %v", err)
	}
}

func TestInitiateValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	tests := []struct {
		name  string
		input *models.InitiateInput
		want  error
	}{
		{"missing media", &models.InitiateInput{SourcePath: env.source}, conversion.ErrInvalidRequest},
		{"relative source", &models.InitiateInput{MediaID: "m1", SourcePath: "media/Movie.mkv"}, conversion.ErrInvalidRequest},
		{"bad codec", &models.InitiateInput{MediaID: "m1", SourcePath: env.source, Options: models.EncodingOptions{VideoCodec: "rm -rf"}}, conversion.ErrInvalidRequest},
		{"bad label", &models.InitiateInput{MediaID: "m1", SourcePath: env.source, OutputVersion: "///"}, transcode.ErrInvalidLabel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := env.uc.Initiate(context.Background(), tt.input); !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestInitiateRejectsSourceOutsideMediaRoots(t *testing.T) {
	env := newTestEnv(t, nil)

	outside := filepath.Join(t.TempDir(), "Private.mkv")
	if err := os.WriteFile(outside, []byte("matroska"), 0o644); err != nil {
		t.Fatal(err)
	}
	escape := filepath.Join(filepath.Dir(env.source), "Escape.mkv")
	if err := os.Symlink(outside, escape); err != nil {
		t.Fatal(err)
	}
	sibling := filepath.Join(filepath.Dir(filepath.Dir(env.source)), "Sibling.mkv")
	if err := os.WriteFile(sibling, []byte("matroska"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		source string
		want   error
	}{
		{"outside", outside, transcode.ErrPathOutsideMedia},
		{"dotdot", filepath.Join(filepath.Dir(env.source), "..", "Sibling.mkv"), transcode.ErrPathOutsideMedia},
		{"symlink", escape, transcode.ErrPathOutsideMedia},
		{"missing", filepath.Join(filepath.Dir(env.source), "Gone.mkv"), conversion.ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := &models.InitiateInput{MediaID: "m1", SourcePath: tt.source, OutputVersion: "720p"}
			if _, err := env.uc.Initiate(context.Background(), input); !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
	if n := env.runner.spawned(); n != 0 {
		t.Errorf("spawned %d encoders for rejected sources", n)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(outside), "Private - 720p.mp4")); !os.IsNotExist(err) {
		t.Errorf("version written outside the media root: %v", err)
	}
}

func TestArchiveDoesNotBlockJobChanges(t *testing.T) {
	env := newTestEnv(t, nil)
	env.bucket.gate = make(chan struct{})
	ctx := context.Background()

	report, err := env.uc.Initiate(ctx, &models.InitiateInput{MediaID: "m1", SourcePath: env.source, OutputVersion: "720p"})
	if err != nil {
		t.Fatal(err)
	}
	h, _ := env.runner.last()
	h.finish(true)
	eventually(t, "history record", func() bool { return len(env.repo.saved()) == 1 })

	acked := make(chan transcode.Ack, 1)
	go func() { acked <- env.uc.Cancel(ctx, report.JobID) }()
	select {
	case ack := <-acked:
		if ack.Matched != 1 || ack.Cancelled != 0 {
			t.Errorf("ack = %+v", ack)
		}
	case <-time.After(time.Second):
		t.Fatal("Cancel blocked behind a pending archive upload")
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := env.uc.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown with a pending upload: %v", err)
	}
	if _, ok := env.bucket.object("versions/versions/m1/Movie - 720p.mp4"); ok {
		t.Error("upload finished although the gate never opened")
	}
}

func TestCancelDropsMirroredStatus(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	report, err := env.uc.Initiate(ctx, &models.InitiateInput{MediaID: "m1", SourcePath: env.source})
	if err != nil {
		t.Fatal(err)
	}

	ack := env.uc.Cancel(ctx, report.JobID)
	if ack.Matched != 1 || ack.Cancelled != 1 {
		t.Errorf("ack = %+v", ack)
	}
	if got, _ := env.redis.GetStatus(ctx, "conversion:status:"+report.JobID); got != nil {
		t.Errorf("status still mirrored: %+v", got)
	}
	if _, err := env.uc.GetStatus(ctx, report.JobID); !errors.Is(err, transcode.ErrNotFound) {
		t.Errorf("GetStatus after cancel = %v", err)
	}
	records := env.repo.saved()
	if len(records) != 1 || records[0].State != models.JobStateCancelled {
		t.Errorf("records = %+v", records)
	}
}

func TestCancelManySelectors(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	if _, err := env.uc.Initiate(ctx, &models.InitiateInput{MediaID: "m1", SourcePath: env.source}); err != nil {
		t.Fatal(err)
	}

	if _, err := env.uc.CancelMany(ctx, &models.CancelInput{}); !errors.Is(err, conversion.ErrInvalidRequest) {
		t.Errorf("empty selector error = %v", err)
	}
	if _, err := env.uc.CancelMany(ctx, &models.CancelInput{PathPrefix: "relative/dir"}); !errors.Is(err, conversion.ErrInvalidRequest) {
		t.Errorf("relative prefix error = %v", err)
	}

	ack, err := env.uc.CancelMany(ctx, &models.CancelInput{MediaID: "other"})
	if err != nil || ack.Matched != 0 {
		t.Errorf("other media: ack %+v err %v", ack, err)
	}
	ack, err = env.uc.CancelMany(ctx, &models.CancelInput{All: true})
	if err != nil || ack.Matched != 1 || ack.Cancelled != 1 {
		t.Errorf("all: ack %+v err %v", ack, err)
	}
}

func TestDownloadHandoff(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	report, err := env.uc.Initiate(ctx, &models.InitiateInput{MediaID: "m1", SourcePath: env.source})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := env.uc.GetDownload(ctx, report.JobID); !errors.Is(err, transcode.ErrInvalidTransition) {
		t.Errorf("GetDownload while running = %v", err)
	}

	h, spec := env.runner.last()
	h.finish(true)
	eventually(t, "completion", func() bool {
		st, err := env.uc.GetStatus(ctx, report.JobID)
		return err == nil && st.IsComplete
	})

	status, err := env.uc.GetDownload(ctx, report.JobID)
	if err != nil {
		t.Fatal(err)
	}
	if status.OutputPath != spec.OutputPath {
		t.Errorf("OutputPath = %q", status.OutputPath)
	}
	if err := env.uc.CompleteDownload(ctx, report.JobID, 8); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(spec.OutputPath); !os.IsNotExist(err) {
		t.Errorf("download file kept after handoff: %v", err)
	}
	if _, ok := env.bucket.object("versions/versions/m1/" + filepath.Base(spec.OutputPath)); ok {
		t.Error("downloads must not be archived")
	}
}

func TestHistory(t *testing.T) {
	cfg := &config.Config{}
	uc := NewConversionUseCase(cfg, transcode.NewRegistry(), &stubRunner{}, encoder.FFmpegArguments{}, nil, nil, nil, nil, logger.NewNop())
	if _, err := uc.History(context.Background(), "", &utils.Pagination{Page: 1, Size: 10}); !errors.Is(err, conversion.ErrHistoryDisabled) {
		t.Errorf("History without repo = %v", err)
	}

	env := newTestEnv(t, nil)
	if _, err := env.uc.History(context.Background(), "m9", &utils.Pagination{Page: 1, Size: 10}); err != nil {
		t.Fatal(err)
	}
	if env.repo.byMedia != "m9" {
		t.Errorf("byMedia = %q", env.repo.byMedia)
	}
}
