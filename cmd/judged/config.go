package main

import (
	"fmt"
	"os"
	"time"

	"judgecore/internal/common/cache"
	"judgecore/internal/common/db"
	commonmw "judgecore/internal/common/http/middleware"
	"judgecore/internal/common/storage"
	"judgecore/internal/language"
	"judgecore/internal/prescreen"
	"judgecore/internal/sandbox"
	"judgecore/internal/security"
	"judgecore/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8088"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string              `yaml:"addr"`
	ReadTimeout  time.Duration       `yaml:"readTimeout"`
	WriteTimeout time.Duration       `yaml:"writeTimeout"`
	IdleTimeout  time.Duration       `yaml:"idleTimeout"`
	CORS         commonmw.CORSConfig `yaml:"cors"`
}

// JudgeConfig holds queue transport and worker pool settings.
type JudgeConfig struct {
	QueueKey        string        `yaml:"queueKey"`
	Workers         int           `yaml:"workers"`
	PollTimeout     time.Duration `yaml:"pollTimeout"`
	MaxRetries      int           `yaml:"maxRetries"`
	RetryBackoff    time.Duration `yaml:"retryBackoff"`
	CompileLogLimit int           `yaml:"compileLogLimit"`
	RunCPUs         float64       `yaml:"runCPUs"`
	RunPIDs         int64         `yaml:"runPIDs"`
}

// WatchdogConfig holds stale-submission reaper settings.
type WatchdogConfig struct {
	Interval    time.Duration `yaml:"interval"`
	Overhead    time.Duration `yaml:"overhead"`
	MaxAttempts int           `yaml:"maxAttempts"`
	BatchLimit  int           `yaml:"batchLimit"`
}

// LimitsConfig bounds what a submission may ask for.
type LimitsConfig struct {
	MaxCodeBytes   int           `yaml:"maxCodeBytes"`
	MinTimeLimitMs int64         `yaml:"minTimeLimitMs"`
	MaxTimeLimitMs int64         `yaml:"maxTimeLimitMs"`
	MinMemoryBytes int64         `yaml:"minMemoryBytes"`
	MaxMemoryBytes int64         `yaml:"maxMemoryBytes"`
	DupGuardTTL    time.Duration `yaml:"dupGuardTTL"`
}

// RateLimitConfig holds the per-IP token bucket and the per-user window.
type RateLimitConfig struct {
	IPRate     float64       `yaml:"ipRate"`
	IPBurst    int           `yaml:"ipBurst"`
	IdleTTL    time.Duration `yaml:"idleTTL"`
	SweepEvery time.Duration `yaml:"sweepEvery"`
	UserMax    int64         `yaml:"userMax"`
	UserWindow time.Duration `yaml:"userWindow"`
}

// PrescreenConfig adds site rules on top of the built-ins.
type PrescreenConfig struct {
	Disabled bool             `yaml:"disabled"`
	Rules    []prescreen.Rule `yaml:"rules"`
}

// ArchiveConfig names the bucket compressed sources land in.
type ArchiveConfig struct {
	Bucket string `yaml:"bucket"`
}

// AppConfig holds judged configuration.
type AppConfig struct {
	Server    ServerConfig        `yaml:"server"`
	Logger    logger.Config       `yaml:"logger"`
	Database  db.MySQLConfig      `yaml:"database"`
	Redis     cache.RedisConfig   `yaml:"redis"`
	MinIO     storage.MinIOConfig `yaml:"minio"`
	Archive   ArchiveConfig       `yaml:"archive"`
	Sandbox   sandbox.Config      `yaml:"sandbox"`
	Security  security.Config     `yaml:"security"`
	Judge     JudgeConfig         `yaml:"judge"`
	Watchdog  WatchdogConfig      `yaml:"watchdog"`
	Limits    LimitsConfig        `yaml:"limits"`
	RateLimit RateLimitConfig     `yaml:"rateLimit"`
	Prescreen PrescreenConfig     `yaml:"prescreen"`
	Languages []language.Spec     `yaml:"languages"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}

	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	if cfg.MinIO.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}

	// Sources default into the same bucket testcase bundles come from.
	if cfg.Archive.Bucket == "" {
		cfg.Archive.Bucket = cfg.MinIO.Bucket
	}

	if cfg.RateLimit.IPRate == 0 {
		cfg.RateLimit.IPRate = 5
	}
	if cfg.RateLimit.IPBurst == 0 {
		cfg.RateLimit.IPBurst = 10
	}
	if cfg.RateLimit.IdleTTL == 0 {
		cfg.RateLimit.IdleTTL = 10 * time.Minute
	}
	if cfg.RateLimit.SweepEvery == 0 {
		cfg.RateLimit.SweepEvery = time.Minute
	}
	if cfg.RateLimit.UserMax == 0 {
		cfg.RateLimit.UserMax = 30
	}
	if cfg.RateLimit.UserWindow == 0 {
		cfg.RateLimit.UserWindow = time.Minute
	}

	return &cfg, nil
}
