package main

import (
	"context"
	"log"
	"os"
	"path/filepath"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	apiHandler "github.com/fastygo/storefront-session/api/handler"
	"github.com/fastygo/storefront-session/internal/activity"
	"github.com/fastygo/storefront-session/internal/config"
	"github.com/fastygo/storefront-session/internal/infrastructure/identityapi"
	"github.com/fastygo/storefront-session/internal/infrastructure/monitor"
	pgInfra "github.com/fastygo/storefront-session/internal/infrastructure/postgres"
	redisInfra "github.com/fastygo/storefront-session/internal/infrastructure/redis"
	"github.com/fastygo/storefront-session/internal/middleware"
	"github.com/fastygo/storefront-session/internal/router"
	"github.com/fastygo/storefront-session/internal/scheduler"
	"github.com/fastygo/storefront-session/internal/services/shutdown"
	"github.com/fastygo/storefront-session/internal/sessionstore"
	"github.com/fastygo/storefront-session/pkg/clock"
	"github.com/fastygo/storefront-session/pkg/httpcontext"
	"github.com/fastygo/storefront-session/pkg/logger"
	"github.com/fastygo/storefront-session/repository"
	boltRepo "github.com/fastygo/storefront-session/repository/bolt"
	"github.com/fastygo/storefront-session/repository/memory"
	pgRepo "github.com/fastygo/storefront-session/repository/postgres"
	redisRepo "github.com/fastygo/storefront-session/repository/redis"
	sessionUC "github.com/fastygo/storefront-session/usecase/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:    cfg.Logger.Level,
		Encoding: cfg.Logger.Encoding,
	})
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer zapLogger.Sync()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	coordinator := shutdown.New(cfg.Context.ShutdownTimeout, zapLogger)
	coordinator.Listen(cancel)

	durable, err := openDurable(appCtx, cfg, coordinator, zapLogger)
	if err != nil {
		zapLogger.Fatal("durable session store unavailable",
			zap.String("driver", cfg.Session.DurableDriver),
			zap.Error(err))
	}
	coordinator.Register("durable_store", func(context.Context) error {
		return durable.Close()
	})

	identity := identityapi.NewClient(cfg.Identity, identityapi.Options{Logger: zapLogger.Named("identity")})

	mon := monitor.New([]monitor.Target{
		{Name: "durable_store", Pinger: durable},
		{Name: "identity", Pinger: identity},
	}, cfg.Session.HealthInterval, zapLogger)
	mon.Start()
	coordinator.Register("monitor", func(context.Context) error {
		mon.Stop()
		return nil
	})

	cron := scheduler.NewCron(zapLogger)
	cron.Start()
	coordinator.Register("scheduler", func(context.Context) error {
		cron.Stop()
		return nil
	})

	hub := activity.NewHub()
	store := sessionstore.NewAdapter(memory.NewStore(), durable, zapLogger.Named("store"))
	sessions := sessionUC.New(sessionUC.Config{
		IdleTTL:       cfg.Session.IdleTimeout,
		RememberTTL:   cfg.Session.RememberFor,
		CheckInterval: cfg.Session.CheckInterval,
	}, sessionUC.Dependencies{
		Identity:  identity,
		Store:     store,
		Activity:  hub,
		Scheduler: cron,
		Clock:     clock.System(),
		Logger:    zapLogger.Named("session"),
	})
	if err := sessions.Watch(appCtx, durable); err != nil {
		zapLogger.Fatal("session change feed unavailable", zap.Error(err))
	}
	restored := sessions.Start(appCtx)
	zapLogger.Info("session initialized",
		zap.String("state", restored.StateName),
		zap.String("session_id", restored.SessionID))
	coordinator.Register("session", func(context.Context) error {
		sessions.Close()
		return nil
	})

	ctxAdapter := httpcontext.NewAdapter(cfg.Context.RequestTimeout, func() string {
		return sessions.Current().SessionID
	})

	handlers := router.Handlers{
		Session: apiHandler.NewSessionHandler(sessions, hub, ctxAdapter, zapLogger),
		Health:  apiHandler.NewHealthHandler(mon, cfg.Session.DurableDriver, ctxAdapter, zapLogger),
	}
	r := router.New(handlers, router.Middlewares{
		Authenticated: middleware.RequireAuthenticated(sessions, zapLogger),
		Activity:      middleware.Activity(hub, zapLogger),
	})

	server := &fasthttp.Server{
		Handler:      r.Handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		Name:         cfg.AppName,
	}

	go func() {
		zapLogger.Info("server started", zap.String("address", cfg.Address()))
		if err := server.ListenAndServe(cfg.Address()); err != nil {
			zapLogger.Fatal("server crashed", zap.Error(err))
		}
	}()

	coordinator.Register("http_server", func(context.Context) error {
		return server.Shutdown()
	})

	<-appCtx.Done()

	if err := coordinator.Shutdown(context.Background()); err != nil {
		zapLogger.Error("graceful shutdown error", zap.Error(err))
	}
}

// openDurable connects the configured shared store. Connection pools are registered
// with the coordinator after the store so they close last.
func openDurable(ctx context.Context, cfg *config.Config, coordinator *shutdown.Coordinator, zapLogger *zap.Logger) (repository.DurableStore, error) {
	switch cfg.Session.DurableDriver {
	case config.DriverMemory:
		return memory.NewShared().Open(), nil

	case config.DriverRedis:
		client, err := redisInfra.NewClient(ctx, cfg.Redis, zapLogger)
		if err != nil {
			return nil, err
		}
		coordinator.Register("redis", func(context.Context) error {
			return client.Close()
		})
		return redisRepo.NewSessionStore(client, cfg.Redis.KeyPrefix, cfg.Session.Profile, zapLogger.Named("redis")), nil

	case config.DriverPostgres:
		if err := pgInfra.RunMigrations(cfg, zapLogger); err != nil {
			return nil, err
		}
		pool, err := pgInfra.NewPool(ctx, cfg.Database, zapLogger)
		if err != nil {
			return nil, err
		}
		coordinator.Register("postgres", func(context.Context) error {
			pool.Close()
			return nil
		})
		return pgRepo.NewSessionStore(pool, cfg.Session.Profile, zapLogger.Named("postgres")), nil

	default:
		if err := os.MkdirAll(filepath.Dir(cfg.Bolt.Path), 0o755); err != nil {
			return nil, err
		}
		store, err := boltRepo.Open(cfg.Bolt.Path, boltRepo.Options{
			Bucket:      cfg.Bolt.Bucket,
			LockTimeout: cfg.Bolt.LockTimeout,
			Logger:      zapLogger.Named("bolt"),
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}
