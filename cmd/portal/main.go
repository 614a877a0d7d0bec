package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/dspops/portal/internal/agreements"
	"github.com/dspops/portal/internal/app"
	"github.com/dspops/portal/internal/audit"
	audithttp "github.com/dspops/portal/internal/audit/http"
	"github.com/dspops/portal/internal/gate"
	"github.com/dspops/portal/internal/identity"
	"github.com/dspops/portal/internal/legal"
	"github.com/dspops/portal/internal/observability"
	"github.com/dspops/portal/internal/platform/cache"
	"github.com/dspops/portal/internal/platform/db"
	"github.com/dspops/portal/internal/profiles"
	"github.com/dspops/portal/internal/rbac"
	"github.com/dspops/portal/internal/roles"
	"github.com/dspops/portal/internal/shared"
	"github.com/dspops/portal/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	library, err := legal.Load()
	if err != nil {
		logger.Error("load legal documents", slog.Any("error", err))
		os.Exit(1)
	}

	verifier, err := identity.NewVerifier(cfg.JWTSecret, cfg.JWTAudience)
	if err != nil {
		logger.Error("init token verifier", slog.Any("error", err))
		os.Exit(1)
	}
	events := identity.NewEvents(redisClient, logger)
	provider := identity.NewProvider(verifier, identity.NewRedisRevocations(redisClient), events, logger).
		WithSightings(identity.NewRedisSightings(redisClient))

	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	profileService := profiles.NewService(
		profiles.NewRepository(dbpool),
		newRoleCache(cfg, redisClient),
		auditLogger,
		logger,
	).WithObserver(metrics)

	if err := events.Listen(ctx, func(ctx context.Context, ev identity.Event) {
		switch ev.Kind {
		case identity.EventSignedIn, identity.EventSignedOut:
		default:
			return
		}
		if err := profileService.InvalidateRoles(ctx, ev.UserID); err != nil {
			logger.Warn("invalidate roles on identity change", slog.Any("error", err),
				slog.String("kind", string(ev.Kind)), slog.String("user_id", ev.UserID.String()))
		}
	}); err != nil {
		logger.Warn("subscribe identity events", slog.Any("error", err))
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	agreementService := agreements.NewService(
		agreements.NewRepository(dbpool, dbpool),
		jobs.NewAgreementNotifier(jobClient),
		metrics,
		logger,
	)
	legalGate := gate.New(profileService, agreementService, library, metrics, logger)

	rbacMiddleware := rbac.Middleware{Roles: profileService, Resolver: roles.Default, Logger: logger}

	router := app.NewRouter(app.RouterParams{
		Logger:              logger,
		Config:              cfg,
		Metrics:             metrics,
		Identity:            provider,
		IdentityHandler:     identity.NewHandler(logger, provider),
		ProfilesHandler:     profiles.NewHandler(logger, profileService, rbacMiddleware, idempotencyStore),
		CapabilitiesHandler: rbac.NewCapabilitiesHandler(logger, rbacMiddleware),
		LegalHandler:        legal.NewHandler(library),
		Gate:                legalGate,
		GateHandler:         gate.NewHandler(logger, legalGate),
		Navigation:          app.NewNavigationHandler(logger, rbacMiddleware, nil),
		AuditHandler:        audithttp.NewHandler(logger, audit.NewService(audit.NewRepository(dbpool)), rbacMiddleware),
		JobHandler:          jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("base_path", cfg.PortalBasePath))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

func newRoleCache(cfg *app.Config, client *redis.Client) profiles.RoleCache {
	if cfg.RoleCacheBackend == "memory" {
		return profiles.NewMemoryRoleCache(cfg.RoleCacheSize, cfg.RoleCacheTTL)
	}
	return profiles.NewRedisRoleCache(client, cfg.RoleCacheTTL)
}
