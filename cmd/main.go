package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/starkspartacus/ecompetition-sub002/config"
	"github.com/starkspartacus/ecompetition-sub002/db"
	"github.com/starkspartacus/ecompetition-sub002/handlers"
	"github.com/starkspartacus/ecompetition-sub002/metrics"
	"github.com/starkspartacus/ecompetition-sub002/notifications"
	"github.com/starkspartacus/ecompetition-sub002/realtime"
	"github.com/starkspartacus/ecompetition-sub002/repositories"
	api "github.com/starkspartacus/ecompetition-sub002/routes"
	"github.com/starkspartacus/ecompetition-sub002/scheduler"
	"github.com/starkspartacus/ecompetition-sub002/services"
	"github.com/starkspartacus/ecompetition-sub002/storage"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	level, _ := cfg.SlogLevel()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	logger.Info("configuration loaded",
		slog.Int("port", cfg.ServerPort),
		slog.String("storage_driver", cfg.StorageDriver))

	if err := run(cfg, logger); err != nil {
		logger.Error("application stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("application exited")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	uploader, err := openUploader(ctx, cfg, logger)
	if err != nil {
		return err
	}

	aggregator := metrics.New(cfg.MetricsCap, nil)
	hub := realtime.NewHub(logger)

	notifiers := []notifications.Notifier{hub}
	if cfg.RabbitMQURL != "" {
		publisher, err := notifications.DialAMQP(cfg.RabbitMQURL, logger)
		if err != nil {
			return err
		}
		defer publisher.Close()
		notifiers = append(notifiers, publisher)
	}
	sesCfg := notifications.SESConfig{
		Region:          cfg.SES.Region,
		AccessKeyID:     cfg.SES.AccessKeyID,
		SecretAccessKey: cfg.SES.SecretAccessKey,
		Sender:          cfg.SES.Sender,
	}
	if sesCfg.Enabled() {
		sender, err := notifications.NewSESSender(ctx, sesCfg)
		if err != nil {
			return fmt.Errorf("failed to initialize SES sender: %w", err)
		}
		notifiers = append(notifiers, notifications.NewEmailNotifier(sender))
		logger.Info("SES email notifications enabled")
	}
	fanout := notifications.NewFanout(notifiers...)
	logger.Info("notifiers initialized", slog.Int("count", fanout.Len()))
	notifier := notifications.NewAsync(fanout, logger)
	defer notifier.Wait()

	userService := services.NewUserService(store, uploader, logger)
	competitionService := services.NewCompetitionService(store, notifier, aggregator, logger)
	participationService := services.NewParticipationService(store, notifier, logger)
	rosterService := services.NewRosterService(store, logger)
	logger.Info("services initialized")

	sched, err := scheduler.New(logger)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	if _, err := sched.AddSweep(ctx, cfg.SweepCron, competitionService); err != nil {
		return fmt.Errorf("failed to register status sweep: %w", err)
	}

	router := chi.NewRouter()
	api.SetupRoutes(router, api.Handlers{
		Auth:          handlers.NewAuthHandler(userService, cfg.JWTSecretKey, cfg.TokenTTL()),
		User:          handlers.NewUserHandler(userService),
		Competition:   handlers.NewCompetitionHandler(competitionService, participationService),
		Participation: handlers.NewParticipationHandler(participationService),
		Team:          handlers.NewTeamHandler(rosterService),
		WebSocket:     handlers.NewWebSocketHandler(hub, competitionService, cfg.AllowedOrigins, logger),
		Admin:         handlers.NewAdminHandler(competitionService, aggregator),
	}, api.Options{
		JWTSecret:      []byte(cfg.JWTSecretKey),
		AllowedOrigins: cfg.AllowedOrigins,
		Metrics:        aggregator,
		Logger:         logger,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		sched.Start()
		<-gctx.Done()
		return sched.Stop()
	})
	g.Go(func() error {
		logger.Info("starting server", slog.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			server.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		logger.Info("server shutdown complete")
		return nil
	})

	return g.Wait()
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repositories.Store, func(), error) {
	switch cfg.StorageDriver {
	case config.DriverPostgres:
		dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.Migrate(dbConn); err != nil {
			dbConn.Close()
			return nil, nil, fmt.Errorf("failed to apply migrations: %w", err)
		}
		closeFn := func() {
			if err := dbConn.Close(); err != nil {
				logger.Error("failed to close database connection", slog.Any("error", err))
			} else {
				logger.Info("database connection closed")
			}
		}
		return repositories.NewPostgresStore(dbConn), closeFn, nil

	case config.DriverMongo:
		client, err := db.ConnectMongo(cfg.MongoURI, 10*time.Second)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to mongodb: %w", err)
		}
		closeFn := func() {
			disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := client.Disconnect(disconnectCtx); err != nil {
				logger.Error("failed to disconnect from mongodb", slog.Any("error", err))
			}
		}
		store, err := repositories.NewMongoStore(ctx, client.Database(cfg.MongoDatabase))
		if err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("failed to prepare mongodb collections: %w", err)
		}
		return store, closeFn, nil

	default:
		logger.Warn("using in-memory storage; data is lost on restart")
		return repositories.NewMemoryStore(), func() {}, nil
	}
}

func openUploader(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.FileUploader, error) {
	r2 := storage.R2Config{
		AccountID:       cfg.R2.AccountID,
		AccessKeyID:     cfg.R2.AccessKeyID,
		SecretAccessKey: cfg.R2.SecretAccessKey,
		BucketName:      cfg.R2.BucketName,
		PublicBaseURL:   cfg.R2.PublicBaseURL,
	}
	if !r2.Enabled() {
		logger.Info("R2 not configured; photo uploads disabled")
		return nil, nil
	}
	uploader, err := storage.NewR2Uploader(ctx, r2)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Cloudflare R2 uploader: %w", err)
	}
	logger.Info("Cloudflare R2 uploader initialized")
	return uploader, nil
}
