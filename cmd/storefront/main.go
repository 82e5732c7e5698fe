package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"github.com/caravelhq/storefront/pkg/api"
	"github.com/caravelhq/storefront/pkg/audit"
	"github.com/caravelhq/storefront/pkg/auth"
	"github.com/caravelhq/storefront/pkg/catalog"
	"github.com/caravelhq/storefront/pkg/config"
	"github.com/caravelhq/storefront/pkg/membership"
	"github.com/caravelhq/storefront/pkg/middleware"
	"github.com/caravelhq/storefront/pkg/observability"
	"github.com/caravelhq/storefront/pkg/permissions"
	"github.com/caravelhq/storefront/pkg/scope"
	"github.com/caravelhq/storefront/pkg/storage/postgres"
	"github.com/caravelhq/storefront/pkg/tenant"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "storefront: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Connect(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := postgres.Migrate(ctx, db, logger); err != nil {
		return err
	}

	// Entity registration happens once, before any request; tenant-scoped
	// queries against unregistered entities fail.
	scopeReg := scope.NewRegistry()
	tenant.RegisterScope(scopeReg)
	membership.RegisterScope(scopeReg)
	catalog.RegisterScope(scopeReg)
	audit.RegisterScope(scopeReg)
	scopeReg.Seal()

	// Role-to-permission baselines: compiled defaults, optionally overlaid
	// from a YAML file that hot-reloads on change.
	roleMap := permissions.DefaultRoleMap()
	if cfg.Roles.FilePath != "" {
		roleMap, err = permissions.LoadRoleFile(cfg.Roles.FilePath)
		if err != nil {
			return fmt.Errorf("failed to load role file: %w", err)
		}
	}
	roleReg := permissions.NewRegistry(roleMap)
	if cfg.Roles.FilePath != "" && cfg.Roles.Watch {
		stopWatch, err := roleReg.Watch(cfg.Roles.FilePath, func(err error) {
			logger.WithError(err).Error("role file reload failed")
		})
		if err != nil {
			return fmt.Errorf("failed to watch role file: %w", err)
		}
		defer stopWatch()
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to ping redis: %w", err)
		}
	}

	permCache, err := permissions.NewSetCache(rdb, cfg.Auth.CacheL1Size, cfg.Auth.CacheTTL)
	if err != nil {
		return fmt.Errorf("failed to create permission cache: %w", err)
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	metrics.CollectDBStats(db)

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.OTel.Enabled,
		Endpoint:       cfg.OTel.Endpoint,
		ServiceName:    cfg.OTel.ServiceName,
		ServiceVersion: cfg.OTel.ServiceVersion,
		Insecure:       cfg.OTel.Insecure,
	}, logger)
	if err != nil {
		return err
	}
	defer otelProviders.Shutdown(context.Background())

	keyring := make(map[string][]byte, len(cfg.Auth.Keys))
	for kid, secret := range cfg.Auth.Keys {
		keyring[kid] = []byte(secret)
	}
	issuer, err := auth.NewIssuer(keyring, cfg.Auth.ActiveKeyID, cfg.Auth.Issuer, cfg.Auth.AccessTTL)
	if err != nil {
		return err
	}

	memberStore := membership.NewStore(db, scopeReg)
	memberSvc := membership.NewService(memberStore, roleReg, permCache)
	companyStore := tenant.NewStore(db, scopeReg)
	catalogStore := catalog.NewStore(db, scopeReg)
	tokenStore := auth.NewTokenStore(db)
	auditLog := audit.NewDBLogger(db, logger)
	auditStore := audit.NewStore(db, scopeReg)
	verifier := auth.NewBcryptVerifier(db)

	authSvc := auth.NewService(verifier, memberStore, issuer, tokenStore, auditLog, metrics, logger, cfg.Auth.RefreshTTL)

	authMW := middleware.NewAuthMiddleware(issuer, memberStore, logger)
	tenantMW := middleware.NewTenantMiddleware(memberStore, auditLog, logger)
	authzMW := middleware.NewAuthzMiddleware(memberSvc, auditLog, metrics)

	// Nightly janitor: rotated/expired token purge and audit retention.
	janitor := cron.New()
	_, err = janitor.AddFunc("13 3 * * *", func() {
		jctx := context.Background()
		if n, err := tokenStore.PurgeExpired(jctx, cfg.Auth.PurgeGrace); err != nil {
			logger.WithError(err).Error("refresh token purge failed")
		} else if n > 0 {
			logger.WithField("purged", n).Info("purged expired refresh tokens")
		}
		if n, err := auditStore.PurgeOlderThan(jctx, cfg.Audit.Retention); err != nil {
			logger.WithError(err).Error("audit purge failed")
		} else if n > 0 {
			logger.WithField("purged", n).Info("purged old audit events")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule janitor: %w", err)
	}
	janitor.Start()
	defer janitor.Stop()

	server := api.NewServer(cfg.Server, logger, metrics, authSvc, memberSvc, companyStore,
		catalogStore, auditLog, auditStore, authMW, tenantMW, authzMW)

	// Metrics and health on a separate listener, never exposed with the API.
	health := observability.NewHealthChecker(db, rdb)
	opsMux := http.NewServeMux()
	opsMux.Handle("/metrics", metrics.Handler())
	opsMux.Handle("/healthz", health.Handler())
	opsSrv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler: opsMux,
	}
	go func() {
		if err := opsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("ops server failed")
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("api server shutdown failed")
	}
	if err := opsSrv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("ops server shutdown failed")
	}
	return nil
}
