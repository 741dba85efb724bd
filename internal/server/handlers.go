package server

import (
	"net/http"

	"github.com/amankumarsingh77/conversion-orchestrator/internal/conversion"
	conversionHttp "github.com/amankumarsingh77/conversion-orchestrator/internal/conversion/delivery/http"
	conversionRepository "github.com/amankumarsingh77/conversion-orchestrator/internal/conversion/repository"
	conversionUsecase "github.com/amankumarsingh77/conversion-orchestrator/internal/conversion/usecase"
	"github.com/amankumarsingh77/conversion-orchestrator/internal/encoder"
	"github.com/amankumarsingh77/conversion-orchestrator/internal/middleware"
	"github.com/amankumarsingh77/conversion-orchestrator/internal/transcode"
	"github.com/amankumarsingh77/conversion-orchestrator/internal/worker"
	"github.com/amankumarsingh77/conversion-orchestrator/pkg/utils"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
)

func (s *Server) MapHandlers(e *echo.Echo) error {
	var (
		cRepo      conversion.Repository
		cRedisRepo conversion.RedisRepository
		cAWSRepo   conversion.AWSRepository
		prober     encoder.Prober
	)
	if s.db != nil {
		cRepo = conversionRepository.NewConversionRepo(s.db)
	}
	if s.redisClient != nil {
		cRedisRepo = conversionRepository.NewConversionRedisRepo(s.redisClient)
	}
	if s.s3Client != nil {
		cAWSRepo = conversionRepository.NewAwsRepository(s.s3Client)
	}
	if s.cfg.Transcode.ProbePath != "" {
		prober = encoder.NewFFprobe(s.cfg.Transcode.ProbePath)
	}

	registry := transcode.NewRegistry()
	runner := encoder.NewFFmpegRunner(s.cfg.Transcode.EncoderPath, s.logger)
	s.convUC = conversionUsecase.NewConversionUseCase(
		s.cfg, registry, runner, encoder.FFmpegArguments{}, prober,
		cRepo, cRedisRepo, cAWSRepo, s.logger,
	)
	if s.cfg.Worker.Enabled && cRedisRepo != nil {
		s.worker = worker.NewWorker(s.cfg, s.logger, cRedisRepo, s.convUC)
	}

	conversionHandlers := conversionHttp.NewConversionHandler(s.convUC, s.logger)
	mw := middleware.NewMiddlewareManager(s.cfg, []string{"*"}, s.logger)

	e.Use(echoMiddleware.RequestID())
	e.Use(echoMiddleware.Recover())
	e.Use(mw.RequestLogger())
	e.Use(mw.CORS())

	v1 := e.Group("/api/v1")
	health := v1.Group("/health")
	conversionGroup := v1.Group("/conversions")

	conversionHttp.MapConversionRoutes(conversionGroup, conversionHandlers, mw)
	health.GET("", func(c echo.Context) error {
		s.logger.Infof("Health check RequestID: %s", utils.GetRequestID(c))
		return c.JSON(http.StatusOK, map[string]string{"status": "OK"})
	})
	return nil
}
