package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Postgres  DBConfig
	Redis     RedisConfig
	S3        S3Config
	Logger    Logger
	Worker    WorkerConfig
	Transcode TranscodeConfig
}

type ServerConfig struct {
	AppVersion   string
	Port         string
	Mode         string
	JwtSecretKey string
	ReadTimeout  int
	WriteTimeout int
	IdleTimeout  int
}

type WorkerConfig struct {
	Enabled      bool
	WorkerCount  int
	MaxCPUUsage  float64
	QueueKey     string
	PollInterval time.Duration
}

type TranscodeConfig struct {
	EncoderPath     string
	ProbePath       string
	MediaRoots      []string
	TranscodeDir    string
	KillTimeout     time.Duration
	RetentionPeriod time.Duration
	MaxRetention    time.Duration
	JanitorInterval time.Duration
}

type DBConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	PgDriver string
	SSLMode  string
}

type RedisConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	DB            int
	MinIdleConns  int
	PoolSize      int
	PoolTimeout   int
	StatusPrefix  string
	StatusChannel string
	StatusTTL     time.Duration
	UseTLS        bool
}

type S3Config struct {
	Enabled       bool
	Endpoint      string
	Region        string
	AccessKey     string
	SecretKey     string
	ArchiveBucket string
}

type Logger struct {
	Development       bool
	DisableCaller     bool
	DisableStacktrace bool
	Encoding          string
	Level             string
}

const (
	defaultKillTimeout     = 5 * time.Second
	defaultRetentionPeriod = 10 * time.Minute
	defaultMaxRetention    = 24 * time.Hour
	defaultJanitorInterval = time.Minute
)

func LoadConfig(filename string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigFile(filename)
	v.AddConfigPath(".")
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFound) {
			return nil, errors.New("config file not found")
		}
		return nil, err
	}
	return v, nil
}

func ParseConfig(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	c.applyDefaults()
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = ":8080"
	}
	if c.Transcode.EncoderPath == "" {
		c.Transcode.EncoderPath = "ffmpeg"
	}
	if c.Transcode.KillTimeout <= 0 {
		c.Transcode.KillTimeout = defaultKillTimeout
	}
	if c.Transcode.RetentionPeriod <= 0 {
		c.Transcode.RetentionPeriod = defaultRetentionPeriod
	}
	if c.Transcode.MaxRetention <= 0 {
		c.Transcode.MaxRetention = defaultMaxRetention
	}
	if c.Transcode.JanitorInterval <= 0 {
		c.Transcode.JanitorInterval = defaultJanitorInterval
	}
	if c.Redis.StatusPrefix == "" {
		c.Redis.StatusPrefix = "conversion:status:"
	}
	if c.Redis.StatusChannel == "" {
		c.Redis.StatusChannel = "conversion_status"
	}
	if c.Redis.StatusTTL <= 0 {
		c.Redis.StatusTTL = 24 * time.Hour
	}
	if c.Worker.QueueKey == "" {
		c.Worker.QueueKey = "conversion_requests"
	}
	if c.Worker.WorkerCount <= 0 {
		c.Worker.WorkerCount = 1
	}
	if c.Worker.MaxCPUUsage <= 0 {
		c.Worker.MaxCPUUsage = 80
	}
	if c.Worker.PollInterval <= 0 {
		c.Worker.PollInterval = 5 * time.Second
	}
}
