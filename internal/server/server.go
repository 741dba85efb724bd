package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amankumarsingh77/conversion-orchestrator/internal/config"
	"github.com/amankumarsingh77/conversion-orchestrator/internal/conversion"
	"github.com/amankumarsingh77/conversion-orchestrator/internal/worker"
	"github.com/amankumarsingh77/conversion-orchestrator/pkg/logger"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
)

const (
	maxHeaderBytes = 1 << 20
	ctxTimeout     = 10
)

type Server struct {
	echo        *echo.Echo
	cfg         *config.Config
	db          *sqlx.DB
	redisClient *redis.Client
	s3Client    *s3.Client
	logger      logger.Logger

	convUC conversion.UseCase
	worker *worker.Worker
}

// NewServer wires the service. db, redisClient and s3Client may be nil when
// the matching backend is disabled.
func NewServer(cfg *config.Config, db *sqlx.DB, redisClient *redis.Client, s3Client *s3.Client, logger logger.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	return &Server{
		echo:        e,
		cfg:         cfg,
		db:          db,
		redisClient: redisClient,
		s3Client:    s3Client,
		logger:      logger,
	}
}

func (s *Server) Run() error {
	if err := s.MapHandlers(s.echo); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, os.Interrupt)
	defer stop()

	go s.convUC.RunJanitor(ctx, s.cfg.Transcode.JanitorInterval)
	if s.worker != nil {
		s.worker.Start(ctx)
	}

	server := &http.Server{
		Addr:           s.cfg.Server.Port,
		ReadTimeout:    time.Second * time.Duration(s.cfg.Server.ReadTimeout),
		WriteTimeout:   time.Second * time.Duration(s.cfg.Server.WriteTimeout),
		IdleTimeout:    time.Second * time.Duration(s.cfg.Server.IdleTimeout),
		MaxHeaderBytes: maxHeaderBytes,
	}

	serverErr := make(chan error, 1)
	go func() {
		s.logger.Infof("Server is listening on PORT: %s", s.cfg.Server.Port)
		if err := s.echo.StartServer(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serverErr:
		s.logger.Errorf("error starting server: %v", runErr)
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*ctxTimeout)
	defer cancel()

	s.logger.Infof("shutting down server")
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		s.logger.Errorf("echo shutdown: %v", err)
	}
	if s.worker != nil {
		s.worker.Wait()
	}
	if err := s.convUC.Shutdown(shutdownCtx); err != nil {
		s.logger.Errorf("conversion shutdown: %v", err)
		if runErr == nil {
			runErr = err
		}
	}
	return runErr
}
