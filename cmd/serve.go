package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Qompa-Fi/banking-service/internal/api"
	"github.com/Qompa-Fi/banking-service/internal/app"
	"github.com/Qompa-Fi/banking-service/internal/config"
	"github.com/Qompa-Fi/banking-service/internal/domain"
	"github.com/Qompa-Fi/banking-service/internal/store"
	"github.com/Qompa-Fi/banking-service/pkg/logger"
	"github.com/Qompa-Fi/banking-service/pkg/middleware"
	"github.com/Qompa-Fi/banking-service/pkg/prometeoclient"
	"github.com/Qompa-Fi/banking-service/pkg/rabbitmq"
	"github.com/Qompa-Fi/banking-service/pkg/security"
	"github.com/Qompa-Fi/banking-service/pkg/userclient"
)

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the user events consumer and the catalog scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configPath)
		},
	}
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := logger.New(cfg.LogLevel, cfg.LogPretty)
	boot := log.With().Str("component", "bootstrap").Logger()
	boot.Info().Str("port", cfg.ServerPort).Str("auth_mode", cfg.AuthMode).Msg("starting banking-service")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	credentialsCipher, err := security.NewCipher(cfg.CredentialsEncryptionKey, security.PurposeCredentials)
	if err != nil {
		return fmt.Errorf("credentials cipher: %w", err)
	}
	sessionCipher, err := security.NewCipher(cfg.SessionEncryptionKey, security.PurposeSession)
	if err != nil {
		return fmt.Errorf("session cipher: %w", err)
	}

	var directories store.DirectoryRepository
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		boot.Warn().Msg("DATABASE_URL not set; directories are kept in memory and lost on restart")
		directories = store.NewInMemoryDirectoryRepository()
	} else {
		dbpool, err := connectDatabase(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer dbpool.Close()
		if err := store.Migrate(ctx, dbpool); err != nil {
			return err
		}
		boot.Info().Msg("database connected")
		directories = store.NewPostgresDirectoryRepository(dbpool)
	}

	redisClient := connectRedis(ctx, cfg.RedisURL, boot)
	if redisClient != nil {
		defer redisClient.Close()
	}

	var providerCache store.ProviderCache = store.NewInMemoryProviderCache()
	if redisClient != nil {
		providerCache = store.NewRedisProviderCache(redisClient, log)
	}
	// A nil client turns the session cache into a no-op: every request logs in.
	sessions := store.NewRedisSessionCache(redisClient, sessionCipher, log)

	prometeo := prometeoclient.NewClient(cfg.PrometeoAPIURL, cfg.PrometeoAPIKey, log,
		prometeoclient.WithRetryPolicy(prometeoclient.RetryPolicy{
			InitialBackoff: prometeoclient.DefaultRetryPolicy.InitialBackoff,
			MaxBackoff:     cfg.RetryMaxBackoff(),
			MaxAttempts:    cfg.RetryMaxAttempts,
		}),
	)

	catalog := app.NewProviderCatalog(prometeo, providerCache, app.CatalogOptions{
		Country:     cfg.ProviderCatalogCountry,
		CodeFilters: cfg.ProviderCodeFilterList(),
		TTL:         cfg.ProviderCatalogTTL(),
	}, log)

	var events rabbitmq.Publisher
	producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL, log)
	if err != nil {
		boot.Warn().Err(err).Msg("rabbitmq producer unavailable; using fallback")
		events = &rabbitmq.EventProducerFallback{Logger: log}
	} else {
		defer producer.Close()
		boot.Info().Msg("rabbitmq producer connected")
		events = producer
	}

	service := app.NewBankingService(app.Dependencies{
		Directories: directories,
		Sessions:    sessions,
		API:         prometeo,
		Users:       userclient.NewClient(cfg.UserServiceURL, log),
		Providers:   catalog,
		Events:      events,
		Credentials: credentialsCipher,
		SessionTTL:  cfg.SessionCacheTTL(),
		Logger:      log,
	})

	startUserEventsConsumer(ctx, cfg, service, log)

	scheduler := app.NewScheduler(app.CatalogRefresherFunc(catalog.Warm), cfg.ProviderRefreshSchedule, log)
	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("scheduler start failed: %w", err)
	}
	defer scheduler.Stop()
	go scheduler.RefreshCatalog()

	var auth func(http.Handler) http.Handler
	if cfg.AuthMode == "header" {
		boot.Warn().Msg("AUTH_MODE=header trusts X-Internal-User-Id; only use behind the internal gateway")
		auth = middleware.HeaderAuthMiddleware()
	} else {
		auth = middleware.ClerkAuthMiddleware(middleware.NewJWKSKeySource(cfg.ClerkJWKSURL, 10*time.Minute), log)
	}

	var limiter *middleware.RedisRateLimiter
	if redisClient != nil {
		limiter = middleware.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix)
	} else {
		boot.Warn().Msg("redis unavailable; rate limiting disabled")
	}

	router := api.NewRouter(service, api.RouterOptions{
		Auth:           auth,
		RateLimit:      middleware.RateLimitMiddleware(limiter, cfg.RateLimitPerMinute, log),
		AllowedOrigins: cfg.AllowedOrigins(),
		Logger:         log,
	})

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("component", "http").Str("addr", server.Addr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	case <-ctx.Done():
	}

	boot.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		boot.Error().Err(err).Msg("graceful shutdown failed")
		return err
	}
	boot.Info().Msg("server stopped")
	return nil
}

func connectDatabase(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("database url parse failed: %w", err)
	}
	poolConfig.MaxConns = 20
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := dbpool.Ping(pingCtx); err != nil {
		dbpool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return dbpool, nil
}

// connectRedis returns nil when Redis is not configured or not reachable. The
// result is an interface so a missing client stays an untyped nil.
func connectRedis(ctx context.Context, redisURL string, boot zerolog.Logger) redis.UniversalClient {
	if redisURL == "" {
		boot.Warn().Msg("redis url missing; session caching and rate limiting disabled")
		return nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		boot.Warn().Err(err).Msg("redis url parse failed; session caching and rate limiting disabled")
		return nil
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		boot.Warn().Err(err).Msg("redis ping failed; session caching and rate limiting disabled")
		client.Close()
		return nil
	}
	boot.Info().Msg("redis connected")
	return client
}

func startUserEventsConsumer(ctx context.Context, cfg config.Config, service *app.BankingService, log zerolog.Logger) {
	consumer, err := rabbitmq.NewConsumer(cfg.RabbitMQURL, log)
	if err != nil {
		log.Warn().Str("component", "bootstrap").Err(err).Msg("rabbitmq consumer unavailable; user deletions will not purge directories")
		return
	}
	handler := app.NewUserEventHandler(service, log)

	go func() {
		defer consumer.Close()
		err := consumer.Consume(ctx, domain.UserEventsExchange, cfg.UserEventsQueue, domain.UserDeletedRoutingKey, handler.HandleUserDeleted)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Str("component", "user_events").Err(err).Msg("user events consumer stopped")
		}
	}()
}
