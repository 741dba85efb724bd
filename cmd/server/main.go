package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/amankumarsingh77/conversion-orchestrator/internal/config"
	"github.com/amankumarsingh77/conversion-orchestrator/internal/server"
	"github.com/amankumarsingh77/conversion-orchestrator/pkg/db/aws"
	"github.com/amankumarsingh77/conversion-orchestrator/pkg/db/postgres"
	"github.com/amankumarsingh77/conversion-orchestrator/pkg/db/redis"
	"github.com/amankumarsingh77/conversion-orchestrator/pkg/logger"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	goredis "github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
)

const connectTimeout = 10 * time.Second

func main() {
	log.Println("Starting conversion orchestrator")
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("godotenv: %v", err)
	}

	defaultConfig := os.Getenv("CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = "config.yml"
	}
	configFile := flag.String("config", defaultConfig, "path to the config file")
	flag.Parse()

	cfgFile, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("loadConfig: %v", err)
	}
	cfg, err := config.ParseConfig(cfgFile)
	if err != nil {
		log.Fatalf("parseConfig: %v", err)
	}

	appLogger := logger.NewApiLogger(cfg)
	appLogger.InitLogger()
	appLogger.Infof("AppVersion: %s, LogLevel: %s, Mode: %s", cfg.Server.AppVersion, cfg.Logger.Level, cfg.Server.Mode)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	var psqlDB *sqlx.DB
	if cfg.Postgres.Enabled {
		psqlDB, err = postgres.NewPsqlDB(ctx, cfg)
		if err != nil {
			appLogger.Fatalf("could not connect to postgres: %v", err)
		}
		defer psqlDB.Close()
		appLogger.Infof("Postgres connected, status: %#v", psqlDB.Stats())
	}

	var redisClient *goredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = redis.NewRedisClient(ctx, cfg)
		if err != nil {
			appLogger.Fatalf("could not connect to redis: %v", err)
		}
		defer redisClient.Close()
		appLogger.Info("Redis connected")
	}

	var s3Client *s3.Client
	if cfg.S3.Enabled {
		s3Client, err = aws.NewS3Client(ctx, cfg)
		if err != nil {
			appLogger.Fatalf("could not create s3 client: %v", err)
		}
		appLogger.Infof("S3 client ready, archive bucket: %q", cfg.S3.ArchiveBucket)
	}

	s := server.NewServer(cfg, psqlDB, redisClient, s3Client, appLogger)
	if err = s.Run(); err != nil {
		appLogger.Errorf("server stopped: %v", err)
		os.Exit(1)
	}
}
