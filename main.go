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
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/vthuan-dev/bufforder-sub001/internal/api"
	"github.com/vthuan-dev/bufforder-sub001/internal/auth"
	"github.com/vthuan-dev/bufforder-sub001/internal/chat"
	"github.com/vthuan-dev/bufforder-sub001/internal/config"
	"github.com/vthuan-dev/bufforder-sub001/internal/database"
	"github.com/vthuan-dev/bufforder-sub001/internal/logger"
	"github.com/vthuan-dev/bufforder-sub001/internal/presence"
	"github.com/vthuan-dev/bufforder-sub001/internal/realtime"
	"github.com/vthuan-dev/bufforder-sub001/internal/retention"
	"github.com/vthuan-dev/bufforder-sub001/internal/storage"
	"github.com/vthuan-dev/bufforder-sub001/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if envErr != nil {
		log.Debug().Msg("no .env file found")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := st.Close(closeCtx); err != nil {
			log.Warn().Err(err).Msg("failed to close store")
		}
	}()

	images, err := storage.New(cfg, log)
	if err != nil {
		return fmt.Errorf("init image storage: %w", err)
	}

	jwtManager := auth.NewJWTManager(cfg)
	hub := realtime.NewHub(log)
	broadcaster := realtime.NewBroadcaster(hub, log)
	tracker := presence.NewTracker(st, broadcaster, log)
	svc := chat.NewService(st, log,
		chat.WithNotifier(broadcaster),
		chat.WithPresence(tracker),
		chat.WithPageSizes(cfg.Chat.HistoryPageSize, cfg.Chat.MaxPageSize),
	)
	gateway := realtime.NewGateway(hub, jwtManager, svc, tracker, realtime.Options{
		EventsPerSecond: cfg.Chat.EventsPerSecond,
		EventBurst:      cfg.Chat.EventBurst,
		SendBuffer:      cfg.Chat.SendBuffer,
		AllowedOrigins:  cfg.GetCORSOrigins(),
	}, log)

	sweeper := retention.NewSweeper(st, retention.Config{
		TTL:      cfg.Chat.UserMessageTTL,
		Interval: cfg.Chat.SweepInterval,
		Cron:     cfg.Chat.SweepCron,
	}, log)
	if cfg.Chat.SweepEnabled {
		sweeper.Start(ctx)
	} else {
		log.Warn().Msg("retention sweeper disabled")
	}
	defer sweeper.Stop()

	if cfg.Server.GinMode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	api.SetupRoutes(router, api.Deps{
		Config:  cfg,
		JWT:     jwtManager,
		Chat:    svc,
		Images:  images,
		Store:   st,
		Gateway: gateway.ServeWS,
		Log:     log,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("store", cfg.Database.Driver).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	sweeper.Stop()
	// Hijacked websocket connections are not tracked by srv.Shutdown, so the
	// gateway is drained after the listener stops accepting.
	httpErr := srv.Shutdown(shutdownCtx)
	if err := gateway.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("realtime gateway shutdown incomplete")
	}
	if httpErr != nil {
		return fmt.Errorf("http shutdown: %w", httpErr)
	}
	log.Info().Msg("server stopped")
	return nil
}

// openStore connects the configured backend and prepares its schema.
func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (store.Store, error) {
	switch cfg.Database.Driver {
	case config.DriverMongo:
		db, err := database.NewMongoConnection(ctx, cfg, log)
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		if err := database.EnsureIndexes(ctx, db); err != nil {
			_ = db.Close(context.Background())
			return nil, fmt.Errorf("ensure mongo indexes: %w", err)
		}
		return store.NewMongoStore(db), nil
	default:
		db, err := database.NewConnection(ctx, cfg, log)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := database.RunMigrations(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		return store.NewPostgresStore(db), nil
	}
}
