package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"tableside/internal/auth"
	"tableside/internal/catalog"
	"tableside/internal/config"
	"tableside/internal/infrastructure/database"
	"tableside/internal/infrastructure/logger"
	"tableside/internal/infrastructure/rabbitmq"
	"tableside/internal/infrastructure/redis"
	"tableside/internal/maintenance"
	"tableside/internal/notify"
	"tableside/internal/order"
	"tableside/internal/ratelimit"
	"tableside/internal/seed"
	"tableside/internal/server"
	"tableside/internal/session"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("loading .env: %v", err)
	}

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	zapLogger, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("creating logger: %v", err)
	}
	defer zapLogger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.Database)
	if err != nil {
		zapLogger.Fatal("connecting to database", zap.Error(err))
	}
	defer db.Close()
	zapLogger.Info("database connected", zap.String("driver", cfg.Database.Driver))

	if err := database.Migrate(ctx, db); err != nil {
		zapLogger.Fatal("migrating database", zap.Error(err))
	}

	if cfg.Seed.File != "" {
		fixtures, err := seed.LoadFixtures(cfg.Seed.File)
		if err != nil {
			zapLogger.Fatal("loading seed file", zap.Error(err))
		}
		if _, err := seed.Apply(ctx, db, fixtures, zapLogger); err != nil {
			zapLogger.Fatal("applying seed", zap.Error(err))
		}
	}

	authModule := auth.NewModule(db, cfg.Auth, zapLogger)
	catalogModule := catalog.NewModule(db, zapLogger)

	bus := notify.NewBus(notify.Options{
		QueueSize:    cfg.Bus.QueueSize,
		ClientBuffer: cfg.Bus.ClientBuffer,
		JoinRate:     rate.Limit(cfg.Bus.JoinRate),
		JoinBurst:    cfg.Bus.JoinBurst,
	}, authModule.Tokens, zapLogger)

	if cfg.Redis.Enabled {
		relay, err := redis.NewRelay(ctx, cfg.Redis, zapLogger)
		if err != nil {
			zapLogger.Fatal("connecting to redis", zap.Error(err))
		}
		defer relay.Close()
		bus.SetRelay(relay)
	}

	if cfg.AMQP.Enabled {
		feed, err := rabbitmq.Dial(cfg.AMQP, zapLogger)
		if err != nil {
			zapLogger.Fatal("connecting to rabbitmq", zap.Error(err))
		}
		defer feed.Close()
		bus.AddSink(feed)
	}

	if err := bus.Start(ctx); err != nil {
		zapLogger.Fatal("starting notification bus", zap.Error(err))
	}

	sessionModule := session.NewModule(db, cfg, authModule.Tokens, bus, zapLogger)
	orderModule := order.NewModule(db, cfg, sessionModule.Registry, catalogModule.Service, bus, zapLogger)

	sweeper := maintenance.NewSweeper(sessionModule.Registry, cfg.Session.PendingTTL, cfg.Session.SweepSchedule, zapLogger)
	if err := sweeper.Start(ctx); err != nil {
		zapLogger.Fatal("starting sweeper", zap.Error(err))
	}

	trustedProxies, err := ratelimit.ParsePrefixes(cfg.Server.TrustedProxies)
	if err != nil {
		zapLogger.Fatal("parsing trusted proxies", zap.Error(err))
	}

	router := server.NewRouter(server.Handlers{
		DB:         db,
		Auth:       authModule.Controller,
		Middleware: authModule.Middleware,
		Catalog:    catalogModule.Controller,
		Sessions:   sessionModule.Controller,
		Orders:     orderModule.Controller,
		WebSocket:  notify.NewWebSocketHandler(bus, cfg.CORS.AllowedOrigins, zapLogger),
	}, server.RouterOptions{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		RequestRate:    cfg.Server.RequestRate,
		TrustedProxies: trustedProxies,
	}, zapLogger)

	srv := server.New(cfg.Server.Port, router, zapLogger)

	go func() {
		if err := srv.Start(); err != nil {
			zapLogger.Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	zapLogger.Info("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("server shutdown failed", zap.Error(err))
	}
	sweeper.Stop(shutdownCtx)
	if err := bus.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("notification bus shutdown failed", zap.Error(err))
	}

	zapLogger.Info("server stopped gracefully")
}
