// Command enqueue pushes a conversion request onto the worker queue and can
// follow its status updates.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/amankumarsingh77/conversion-orchestrator/internal/config"
	"github.com/amankumarsingh77/conversion-orchestrator/internal/conversion/repository"
	"github.com/amankumarsingh77/conversion-orchestrator/internal/models"
	"github.com/amankumarsingh77/conversion-orchestrator/pkg/db/redis"
	"github.com/amankumarsingh77/conversion-orchestrator/pkg/utils"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	var (
		configFile = flag.String("config", "config.yml", "path to the config file")
		mediaID    = flag.String("media", "", "media id")
		source     = flag.String("source", "", "absolute path of the source file")
		version    = flag.String("version", "", "version label; empty requests a download")
		duration   = flag.Float64("duration", 0, "source duration in seconds, if known")
		watch      = flag.Bool("watch", false, "follow status updates for the media until it finishes")
	)
	flag.Parse()

	cfgFile, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("loadConfig: %v", err)
	}
	cfg, err := config.ParseConfig(cfgFile)
	if err != nil {
		log.Fatalf("parseConfig: %v", err)
	}

	abs, err := filepath.Abs(*source)
	if err != nil {
		log.Fatalf("source: %v", err)
	}
	input := &models.InitiateInput{
		MediaID:         *mediaID,
		SourcePath:      abs,
		OutputVersion:   *version,
		DurationSeconds: *duration,
	}
	if preset, ok := utils.PresetForLabel(*version); ok {
		input.Options = preset
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := utils.ValidateStruct(ctx, input); err != nil {
		log.Fatalf("invalid request: %v", err)
	}

	client, err := redis.NewRedisClient(ctx, cfg)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer client.Close()
	repo := repository.NewConversionRedisRepo(client)

	var updates <-chan *models.ConversionStatusReport
	if *watch {
		// Subscribe before the push.
		updates, err = repo.SubscribeStatus(ctx, cfg.Redis.StatusChannel)
		if err != nil {
			log.Fatalf("subscribe: %v", err)
		}
	}

	if err := repo.EnqueueRequest(ctx, cfg.Worker.QueueKey, input); err != nil {
		log.Fatalf("enqueue: %v", err)
	}
	fmt.Printf("queued media %s on %s\n", input.MediaID, cfg.Worker.QueueKey)

	if !*watch {
		return
	}
	for report := range updates {
		if report.MediaID != input.MediaID || report.Type != input.Kind() {
			continue
		}
		fmt.Printf("%s  job=%s state=%s %3.0f%%  %s\n",
			time.Now().Format(time.TimeOnly), report.JobID, report.State, report.PercentComplete, report.Message)
		if report.IsComplete {
			return
		}
	}
}
