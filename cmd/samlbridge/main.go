package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/samlbridge/pkg/config"
	"github.com/platinummonkey/samlbridge/pkg/httputil"
	"github.com/platinummonkey/samlbridge/pkg/identity"
	"github.com/platinummonkey/samlbridge/pkg/login"
	"github.com/platinummonkey/samlbridge/pkg/middleware"
	"github.com/platinummonkey/samlbridge/pkg/observability"
	"github.com/platinummonkey/samlbridge/pkg/replay"
	"github.com/platinummonkey/samlbridge/pkg/saml"
	"github.com/platinummonkey/samlbridge/pkg/token"
)

// maxCallbackBytes bounds the SAML response form post.
const maxCallbackBytes = 1 << 20

func main() {
	startup := logrus.New()
	startup.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.LoadConfig()
	if err != nil {
		startup.WithError(err).Fatal("Failed to load configuration")
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	ctx := context.Background()

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		startup.WithError(err).Fatal("Failed to initialize OpenTelemetry")
	}

	validator, err := saml.NewValidator(cfg.SAML)
	if err != nil {
		startup.WithError(err).Fatal("Failed to build SAML validator")
	}

	var db *sql.DB
	var store identity.Store
	switch cfg.Store.Type {
	case "postgres":
		db, err = sql.Open("postgres", cfg.Store.PostgresURL)
		if err != nil {
			startup.WithError(err).Fatal("Failed to open Postgres connection")
		}
		if err := db.PingContext(ctx); err != nil {
			startup.WithError(err).Fatal("Failed to reach Postgres")
		}
		pg := identity.NewPostgresStore(db)
		if err := pg.Migrate(ctx); err != nil {
			startup.WithError(err).Fatal("Failed to run user store migration")
		}
		store = pg
		logger.Info("User store: postgres")
	default:
		store = identity.NewMemoryStore()
		logger.Info("User store: memory")
	}

	var redisClient *redis.Client
	var replays replay.Cache
	if cfg.Store.RedisURL != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Store.RedisURL,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			startup.WithError(err).Fatal("Failed to connect to Redis")
		}
		replays = replay.NewRedisCache(redisClient, cfg.Store.ReplayTTL)
		logger.Info("Replay cache: redis")
	} else {
		replays = replay.NewLRUCache(cfg.Store.ReplayTTL)
		logger.Info("Replay cache: in-memory")
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	resolver := identity.NewResolver(store, identity.WithProvisionHook(func(user *identity.User) {
		logger.WithField("subject_id", user.SubjectID).Info("Provisioned new user")
		metrics.UsersProvisionedTotal.Inc()
	}))

	issuerOpts := []token.Option{token.WithTTL(cfg.Token.TTL)}
	if cfg.Token.Audience != "" {
		issuerOpts = append(issuerOpts, token.WithAudience(cfg.Token.Audience))
	}
	issuer, err := token.NewIssuer(cfg.Token.Secret, cfg.Token.Issuer, issuerOpts...)
	if err != nil {
		startup.WithError(err).Fatal("Failed to build token issuer")
	}

	handlers, err := login.NewHandlers(validator, resolver, issuer, replays, logger, metrics, login.Config{
		AppRedirectURL: cfg.App.RedirectURL,
		CallbackPath:   cfg.App.CallbackPath,
	})
	if err != nil {
		startup.WithError(err).Fatal("Failed to build login handlers")
	}

	router := mux.NewRouter()
	handlers.RegisterRoutes(router)

	authMW := middleware.NewAuthMiddleware(issuer)
	router.Handle("/userinfo", authMW.Handler(http.HandlerFunc(handlers.UserInfo))).Methods(http.MethodGet)

	chain := httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(logger),
		httputil.RecoveryMiddleware(logger),
		httputil.MaxBytesMiddleware(maxCallbackBytes),
		observability.HTTPMetricsMiddleware(metrics),
	)
	var handler http.Handler = chain(router)
	if cfg.Observability.OTelEnabled {
		handler = otelhttp.NewHandler(handler, "samlbridge")
	}

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics on a separate port for probes and scrapes.
	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db, redisClient))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: healthMux,
	}

	if db != nil {
		go reportDBStats(db, metrics)
	}

	go func() {
		logger.Infof("Health server listening on %s", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("Health server failed")
		}
	}()

	go func() {
		logger.Infof("Bridge listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			startup.WithError(err).Fatal("Server failed")
		}
	}()

	shutdown := observability.NewShutdownManager(logger, server, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return healthServer.Shutdown(ctx)
	})
	if db != nil {
		shutdown.RegisterShutdownFunc(func(context.Context) error {
			return db.Close()
		})
	}
	if redisClient != nil {
		shutdown.RegisterShutdownFunc(func(context.Context) error {
			return redisClient.Close()
		})
	}
	if providers != nil {
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			return observability.ShutdownOTel(ctx, providers, logger)
		})
	}

	if err := shutdown.WaitForShutdown(); err != nil {
		startup.WithError(err).Fatal("Shutdown failed")
	}
}

// reportDBStats exports connection pool gauges every 15 seconds.
func reportDBStats(db *sql.DB, metrics *observability.Metrics) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		stats := db.Stats()
		metrics.DBConnectionsActive.Set(float64(stats.InUse))
		metrics.DBConnectionsIdle.Set(float64(stats.Idle))
	}
}
