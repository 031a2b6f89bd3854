package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"campusportal/internal/audit"
	"campusportal/internal/config"
	"campusportal/internal/logger"
	"campusportal/internal/model"
	"campusportal/internal/queue"
	"campusportal/internal/store"
)

// Worker ships audit entries published by the API to the structured log.
func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg := config.Load()
	log, err := logger.New(logger.ForEnvironment(cfg.Env, cfg.LogLevel, cfg.LogFormat))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := store.NewRedis(cfg.RedisAddr)
	defer r.Close()
	if err := r.Ping(ctx); err != nil {
		log.Fatal("redis unreachable", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}

	q := queue.NewRedisQueue(r.Client, "")
	shipped := log.Named("audit")
	backlog, err := q.Len(ctx)
	if err != nil {
		log.Fatal("read audit backlog", zap.Error(err))
	}
	log.Info("worker started", zap.String("queue", queue.DefaultKey), zap.Int64("backlog", backlog))
	err = audit.Drain(ctx, q, func(e model.AuditLog) error {
		shipped.Info(e.Action,
			zap.String("id", e.ID),
			zap.String("details", e.Details),
			zap.String("timestamp", e.Timestamp))
		return nil
	}, log)
	if err != nil {
		log.Fatal("worker failed", zap.Error(err))
	}
	log.Info("worker stopped")
}
