package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"judgecore/internal/api"
	"judgecore/internal/archive"
	"judgecore/internal/common/cache"
	"judgecore/internal/common/db"
	"judgecore/internal/common/storage"
	"judgecore/internal/intake"
	"judgecore/internal/language"
	"judgecore/internal/prescreen"
	"judgecore/internal/problem"
	"judgecore/internal/queue"
	"judgecore/internal/ratelimit"
	"judgecore/internal/sandbox"
	"judgecore/internal/security"
	"judgecore/internal/submission"
	"judgecore/internal/worker"
	"judgecore/pkg/utils/logger"

	"go.uber.org/zap"
)

const defaultConfigPath = "configs/judged.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		return
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return
	}
	defer func() {
		_ = logger.Sync()
	}()

	mysqlDB, err := db.NewMySQLWithConfig(&appCfg.Database)
	if err != nil {
		logger.Error(context.Background(), "init database failed", zap.Error(err))
		return
	}
	defer func() {
		_ = mysqlDB.Close()
	}()

	redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
	if err != nil {
		logger.Error(context.Background(), "init redis failed", zap.Error(err))
		return
	}
	defer func() {
		_ = redisCache.Close()
	}()

	objStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
	if err != nil {
		logger.Error(context.Background(), "init minio failed", zap.Error(err))
		return
	}

	sourceArchive, err := archive.NewStore(objStorage, appCfg.Archive.Bucket)
	if err != nil {
		logger.Error(context.Background(), "init source archive failed", zap.Error(err))
		return
	}

	// A profile build failure aborts startup. Judging without the
	// hardened posture is not an option.
	profile, err := security.Build(appCfg.Security)
	if err != nil {
		logger.Error(context.Background(), "build security profile failed", zap.Error(err))
		return
	}

	engine, err := sandbox.NewDockerEngine(appCfg.Sandbox, profile)
	if err != nil {
		logger.Error(context.Background(), "init sandbox engine failed", zap.Error(err))
		return
	}
	engine.SweepOrphans(context.Background())
	if n := sandbox.SweepStaleWorkspaces(engine.WorkRoot(), appCfg.Sandbox.WorkspaceMaxAge); n > 0 {
		logger.Info(context.Background(), "removed stale workspaces", zap.Int("count", n))
	}

	submissionStore := submission.NewMySQLStore(mysqlDB, redisCache)
	problemStore := problem.NewMySQLStore(mysqlDB, redisCache)
	jobQueue := queue.NewRedisQueue(redisCache, appCfg.Judge.QueueKey)

	limiter := ratelimit.NewStore(appCfg.RateLimit.IPRate, appCfg.RateLimit.IPBurst, appCfg.RateLimit.IdleTTL)
	limiter.StartSweep(appCfg.RateLimit.SweepEvery)
	window := ratelimit.NewWindow(redisCache, appCfg.RateLimit.UserMax, appCfg.RateLimit.UserWindow)

	var scanner *prescreen.Scanner
	if !appCfg.Prescreen.Disabled {
		scanner, err = prescreen.NewScanner(append(prescreen.DefaultRules(), appCfg.Prescreen.Rules...))
		if err != nil {
			logger.Error(context.Background(), "init prescreen rules failed", zap.Error(err))
			return
		}
	}

	registry := language.NewRegistry()
	if err := registry.ApplyConfig(appCfg.Languages); err != nil {
		logger.Error(context.Background(), "apply language config failed", zap.Error(err))
		return
	}

	executor := worker.NewExecutor(submissionStore, registry, engine, jobQueue, engine.WorkRoot(), worker.ExecutorConfig{
		MaxRetries:      appCfg.Judge.MaxRetries,
		Backoff:         appCfg.Judge.RetryBackoff,
		CompileLogLimit: appCfg.Judge.CompileLogLimit,
		CPUs:            appCfg.Judge.RunCPUs,
		PIDs:            appCfg.Judge.RunPIDs,
	})
	pool := worker.NewPool(jobQueue, executor, appCfg.Judge.Workers, appCfg.Judge.PollTimeout)
	pool.Start(context.Background())

	watchdog := worker.NewWatchdog(submissionStore, problemStore, jobQueue, redisCache, worker.WatchdogConfig{
		Interval:    appCfg.Watchdog.Interval,
		Overhead:    appCfg.Watchdog.Overhead,
		MaxAttempts: appCfg.Watchdog.MaxAttempts,
		BatchLimit:  appCfg.Watchdog.BatchLimit,
	})
	watchdog.Start(context.Background())

	intakeService, err := intake.NewService(intake.Deps{
		Store:    submissionStore,
		Problems: problemStore,
		Queue:    jobQueue,
		Registry: registry,
		Scanner:  scanner,
		Archive:  sourceArchive,
		Window:   window,
		Cache:    redisCache,
		Workers:  pool,
	}, intake.Config{
		MaxCodeBytes:   appCfg.Limits.MaxCodeBytes,
		MinTimeLimitMs: appCfg.Limits.MinTimeLimitMs,
		MaxTimeLimitMs: appCfg.Limits.MaxTimeLimitMs,
		MinMemoryBytes: appCfg.Limits.MinMemoryBytes,
		MaxMemoryBytes: appCfg.Limits.MaxMemoryBytes,
		DupGuardTTL:    appCfg.Limits.DupGuardTTL,
	})
	if err != nil {
		logger.Error(context.Background(), "init intake service failed", zap.Error(err))
		return
	}

	router := api.BuildRouter(api.RouterConfig{
		Intake:  intakeService,
		Limiter: limiter,
		CORS:    appCfg.Server.CORS,
	})
	httpServer := &http.Server{
		Addr:         appCfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  appCfg.Server.ReadTimeout,
		WriteTimeout: appCfg.Server.WriteTimeout,
		IdleTimeout:  appCfg.Server.IdleTimeout,
	}
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		logger.Error(context.Background(), "init http listener failed", zap.Error(err))
		return
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "judged http server started", zap.String("addr", appCfg.Server.Addr))
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "http server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(context.Background(), "shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error(context.Background(), "http server shutdown failed", zap.Error(err))
	}

	// Drain in dependency order: no new jobs, then no sweeps, then the
	// in-memory limiter.
	pool.Stop()
	watchdog.Stop()
	limiter.Stop()
	logger.Info(context.Background(), "judged stopped")
}
