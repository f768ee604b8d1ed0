package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Misakaka10086/IoT-Platform/common/database"
	"github.com/Misakaka10086/IoT-Platform/common/logging"
	"github.com/Misakaka10086/IoT-Platform/common/messaging"
	natsclient "github.com/Misakaka10086/IoT-Platform/common/messaging/nats"
	"github.com/Misakaka10086/IoT-Platform/common/middleware"
	"github.com/Misakaka10086/IoT-Platform/internal/emqx"
	"github.com/Misakaka10086/IoT-Platform/internal/handlers"
	"github.com/Misakaka10086/IoT-Platform/internal/mqttsource"
	"github.com/Misakaka10086/IoT-Platform/internal/notify"
	"github.com/Misakaka10086/IoT-Platform/internal/presence"
	"github.com/Misakaka10086/IoT-Platform/internal/repository"
	"github.com/Misakaka10086/IoT-Platform/internal/scheduler"
	"github.com/Misakaka10086/IoT-Platform/internal/schema"
	"github.com/Misakaka10086/IoT-Platform/internal/server"
	"github.com/Misakaka10086/IoT-Platform/internal/service"
	"github.com/Misakaka10086/IoT-Platform/internal/stream"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook receiver and live stream",
	RunE: func(cmd *cobra.Command, _ []string) error {
		skipMigrations, _ := cmd.Flags().GetBool("skip-migrations")

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, skipMigrations)
	},
}

func init() {
	serveCmd.Flags().Bool("skip-migrations", false, "do not apply pending migrations on startup")
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context, skipMigrations bool) error {
	logger := newLogger()
	logging.SetDefault(logger)

	slog.Info("Starting devicehub",
		slog.Int("port", cfg.Server.Port),
		slog.String("log_level", cfg.Logging.Level),
		slog.String("log_format", cfg.Logging.Format),
	)

	// PostgreSQL is the record of truth; everything else degrades.
	if !skipMigrations {
		if err := schema.Up(cfg.Database.MigrationsPath, cfg.Database.Postgres.ConnString()); err != nil {
			return err
		}
		slog.Info("Database schema is current", slog.String("source", cfg.Database.MigrationsPath))
	}

	repo, err := repository.NewPostgresRepository(ctx, cfg.Database.Postgres.ConnString(), cfg.Database.MaxConns)
	if err != nil {
		return err
	}
	defer repo.Close()

	timeouts := database.Timeouts{Query: cfg.Database.QueryTimeout, Write: cfg.Database.WriteTimeout}
	hub := stream.NewHub(cfg.Stream, logger)
	defer hub.Close()

	// With a broker, notifications go out on NATS and the relay feeds the
	// hub, so every instance's subscribers see every event. Without one the
	// fanout publishes to the local hub only.
	var (
		pub       notify.Publisher = hub
		msgClient messaging.Client
	)
	if cfg.NATS.Enabled {
		natsCfg := natsclient.DefaultConfig()
		natsCfg.URL = cfg.NATS.URL
		natsCfg.MaxReconnects = cfg.NATS.MaxReconnects
		natsCfg.ReconnectWait = cfg.NATS.ReconnectWait
		natsCfg.Token = cfg.NATS.Token

		client, err := natsclient.NewClient(natsCfg, logger.Logger)
		if err != nil {
			slog.Warn("NATS unavailable, publishing to local subscribers only", logging.Error(err))
		} else {
			defer client.Drain()
			msgClient = client
			pub = notify.NewBrokerPublisher(client)

			relay := stream.NewRelay(client, hub, logger)
			if err := relay.Start(); err != nil {
				return fmt.Errorf("failed to start stream relay: %w", err)
			}
			defer relay.Stop()
			slog.Info("Connected to NATS", slog.String("url", cfg.NATS.URL))
		}
	} else {
		slog.Info("NATS disabled, publishing to local subscribers only")
	}

	opts := []service.Option{service.WithTimeouts(timeouts), service.WithLogger(logger)}
	handlerOpts := []handlers.Option{
		handlers.WithLogger(logger),
		handlers.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
		handlers.WithBrokerAPI(emqx.NewClient(cfg.EMQX.APIKey, cfg.EMQX.SecretKey, cfg.EMQX.Timeout)),
	}
	if msgClient != nil {
		handlerOpts = append(handlerOpts, handlers.WithMessaging(msgClient))
	}

	if cfg.Redis.Enabled {
		rdb, err := presence.Connect(ctx, cfg.Redis.URL, cfg.Redis.PoolSize)
		if err != nil {
			slog.Warn("Redis unavailable, presence cache disabled", logging.Error(err))
		} else {
			defer rdb.Close()
			cache := presence.NewCache(rdb, cfg.Redis.Key)
			opts = append(opts, service.WithPresence(cache))
			handlerOpts = append(handlerOpts, handlers.WithPresence(cache))
			hub.WithSnapshot(cache.All)
			slog.Info("Presence cache enabled", slog.String("key", cfg.Redis.Key))
		}
	}

	controller := service.NewController(repo, notify.New(pub), opts...)

	if cfg.Sweeper.Enabled {
		sweeper := scheduler.NewSweeper(repo, controller, cfg.Sweeper.Interval, cfg.Sweeper.Threshold, logger)
		go sweeper.Start(ctx)
		defer sweeper.Stop()
	}

	if cfg.MQTT.Enabled {
		src := mqttsource.New(cfg.MQTT, controller, logger)
		if err := src.Start(); err != nil {
			slog.Warn("MQTT feed unavailable", logging.Error(err))
		} else {
			defer src.Stop()
		}
	}

	h := handlers.New(controller, repo, handlerOpts...)
	router := server.NewRouter(h,
		stream.Handler(hub, stream.NewVerifier(cfg.Stream.JWTSecret)),
		middleware.DefaultCORSConfig(cfg.Server.CORSAllowedOrigins),
		logger.Logger)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("devicehub listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	slog.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	slog.Info("Server stopped")
	return nil
}
