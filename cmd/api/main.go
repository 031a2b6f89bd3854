package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"campusportal/internal/audit"
	"campusportal/internal/auth"
	"campusportal/internal/cloudinary"
	"campusportal/internal/config"
	"campusportal/internal/httpapi"
	"campusportal/internal/httpmiddleware"
	"campusportal/internal/logger"
	"campusportal/internal/model"
	"campusportal/internal/portal"
	"campusportal/internal/queue"
	"campusportal/internal/store"
)

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
	for _, w := range cfg.Warnings {
		log.Warn("config", zap.String("warning", w))
	}
	if err := cfg.Check(); err != nil {
		log.Fatal("invalid config", zap.Error(err))
	}

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("api failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.App, log *zap.Logger) error {
	var redisClient *redis.Client
	if cfg.AuditQueue == "redis" || cfg.StoreBackend == "redis" {
		r := store.NewRedis(cfg.RedisAddr)
		defer r.Close()
		redisClient = r.Client
	}

	st, err := store.Open(ctx, store.Options{
		Backend:     cfg.StoreBackend,
		Namespace:   cfg.StoreNamespace,
		BadgerPath:  cfg.BadgerPath,
		SQLitePath:  cfg.SQLitePath,
		DatabaseURL: cfg.DatabaseURL,
		RedisAddr:   cfg.RedisAddr,
		RedisClient: redisClient,
		Logger:      log,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Warn("store close", zap.Error(err))
		}
	}()

	auditOpts := []audit.Option{audit.WithLogger(log.Named("audit"))}
	switch cfg.AuditQueue {
	case "redis":
		auditOpts = append(auditOpts, audit.WithSink(queue.NewRedisQueue(redisClient, "")))
	case "memory":
		q := queue.NewInMemory(256)
		auditOpts = append(auditOpts, audit.WithSink(q))
		go func() {
			_ = audit.Drain(ctx, q, mirror(log.Named("audit-mirror")), log)
		}()
	case "":
	default:
		return fmt.Errorf("unknown AUDIT_QUEUE %q", cfg.AuditQueue)
	}

	db := portal.Open(st,
		portal.WithLogger(log.Named("portal")),
		portal.WithAuditLogger(audit.NewLogger(st, auditOpts...)),
	)
	if err := db.Initialize(ctx); err != nil {
		return err
	}

	verifier, passwords, err := buildVerifier(ctx, cfg, db, log)
	if err != nil {
		return err
	}

	var uploader httpapi.Uploader
	if cfg.CloudinaryEnabled() {
		uploader = cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		log.Info("cloudinary configured", zap.String("cloud", cfg.CloudinaryCloudName))
	} else {
		log.Info("cloudinary not configured, uploads disabled")
	}

	var limiter httpmiddleware.Limiter
	if cfg.RateLimitPerMin > 0 {
		if redisClient != nil {
			limiter = httpmiddleware.NewRedisWindow(redisClient, cfg.StoreNamespace+":ratelimit", cfg.RateLimitPerMin)
		} else {
			tb := httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
			go prune(ctx, tb)
			limiter = tb
		}
	}

	srv := httpapi.New(httpapi.Config{
		DB:        db,
		Auth:      auth.NewAuthenticator(verifier, st, db.Audit(), log.Named("auth")),
		Signer:    auth.NewSigner(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.AccessTTL, cfg.RefreshTTL),
		Uploader:  uploader,
		Passwords: passwords,
		Limiter:   limiter,
		Logger:    log,
	})

	httpSrv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      srv.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", httpSrv.Addr), zap.String("store", st.Backend()))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("forced shutdown", zap.Error(err))
	}
	return nil
}

// buildVerifier picks the sign-in strategy. In hash mode the admin account
// gets the configured admin password until one is set.
func buildVerifier(ctx context.Context, cfg config.App, db *portal.DB, log *zap.Logger) (auth.Verifier, httpapi.PasswordSetter, error) {
	switch cfg.AuthMode {
	case "", "rules":
		v, err := auth.NewRuleVerifier(db, auth.Rules{
			AdminRollNo:     cfg.AdminRollNo,
			AdminPassword:   cfg.AdminPassword,
			TeacherRollNo:   cfg.TeacherRollNo,
			TeacherPassword: cfg.TeacherPassword,
			StudentPassword: cfg.StudentPassword,
		})
		return v, nil, err
	case "hash":
		v := auth.NewHashVerifier(db, db, 0)
		admin, err := db.UserByRollNo(ctx, cfg.AdminRollNo)
		if err != nil {
			return nil, nil, err
		}
		if admin != nil && admin.Type == model.UserAdmin && cfg.AdminPassword != "" {
			cred, err := db.CredentialFor(ctx, admin.ID)
			if err != nil {
				return nil, nil, err
			}
			if cred == nil {
				if err := v.SetPassword(ctx, admin.ID, cfg.AdminPassword); err != nil {
					return nil, nil, err
				}
				log.Info("bootstrapped admin password", zap.String("roll_no", admin.RollNo))
			}
		}
		return v, v, nil
	default:
		return nil, nil, fmt.Errorf("unknown AUTH_MODE %q", cfg.AuthMode)
	}
}

func mirror(log *zap.Logger) func(model.AuditLog) error {
	return func(e model.AuditLog) error {
		log.Info(e.Action,
			zap.String("id", e.ID),
			zap.String("details", e.Details),
			zap.String("timestamp", e.Timestamp))
		return nil
	}
}

func prune(ctx context.Context, tb *httpmiddleware.TokenBucket) {
	t := time.NewTicker(5 * time.Minute)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			tb.Prune()
		case <-ctx.Done():
			return
		}
	}
}
