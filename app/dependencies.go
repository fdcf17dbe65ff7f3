package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/upb/accreditation-api/config"
	"github.com/upb/accreditation-api/middleware"
	"github.com/upb/accreditation-api/oidc"
	"github.com/upb/accreditation-api/repositories/postgres"
	"github.com/upb/accreditation-api/services/ratelimit"
)

const (
	redisPingTimeout = 3 * time.Second
	warmupTimeout    = 10 * time.Second

	fetchLimitPrefix = "accreditation:ratelimit"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Logger *zap.Logger
	DB     *postgres.DB  // nil when DATABASE_URL is unset
	Redis  *redis.Client // nil when the fetch limiter is in-process

	// Token verification
	FetchLimiter ratelimit.Limiter
	Resolver     *oidc.JWKSResolver
	Verifier     *oidc.Verifier

	// Access gate
	AuthMiddleware *middleware.AuthMiddleware
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := deps.initFetchLimiter(ctx); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	deps.initAuth()

	logger.Info("dependencies initialized",
		zap.String("issuer", cfg.OIDC.IssuerURL),
		zap.String("jwks_url", deps.Resolver.Endpoint()),
		zap.Bool("database", deps.DB != nil),
		zap.Bool("shared_rate_limit", deps.Redis != nil),
	)

	return deps, nil
}

func (d *Dependencies) initDatabase(ctx context.Context) error {
	if !d.Config.Database.Enabled() {
		d.Logger.Info("database not configured, readiness check skips it")
		return nil
	}

	db, err := postgres.NewDB(ctx, d.Config.Database, d.Logger)
	if err != nil {
		return err
	}
	d.DB = db
	return nil
}

// initFetchLimiter shares the JWKS fetch budget through Redis when configured,
// otherwise every process gets its own in-memory window
func (d *Dependencies) initFetchLimiter(ctx context.Context) error {
	window := ratelimit.PerMinute(d.Config.RateLimit.JWKSFetchesPerMinute)

	if d.Config.RateLimit.RedisURL == "" {
		d.FetchLimiter = ratelimit.NewSlidingWindow(window)
		return nil
	}

	opts, err := redis.ParseURL(d.Config.RateLimit.RedisURL)
	if err != nil {
		return fmt.Errorf("invalid redis url: %w", err)
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	d.Redis = rdb
	d.FetchLimiter = ratelimit.NewRedisWindow(rdb, fetchLimitPrefix, window)
	d.Logger.Info("jwks fetch limit shared through redis",
		zap.String("addr", opts.Addr),
		zap.Int("fetches_per_minute", window.Limit))
	return nil
}

func (d *Dependencies) initAuth() {
	cfg := d.Config.OIDC

	d.Resolver = oidc.NewJWKSResolver(cfg.JWKSEndpoint(),
		oidc.WithHTTPClient(&http.Client{}),
		oidc.WithCacheTTL(cfg.CacheTTL),
		oidc.WithFetchTimeout(cfg.FetchTimeout),
		oidc.WithFetchWindow(ratelimit.PerMinute(d.Config.RateLimit.JWKSFetchesPerMinute)),
		oidc.WithFetchLimiter(d.FetchLimiter),
		oidc.WithLogger(d.Logger.Named("jwks")),
	)

	d.Verifier = oidc.NewVerifier(cfg.IssuerURL, d.Resolver,
		oidc.WithClaimsMapper(oidc.NewPathClaimsMapper(cfg.RolesClaim)),
	)

	d.AuthMiddleware = middleware.NewAuthMiddleware(d.Verifier, middleware.NewAccessPolicies(), d.Logger)
}

// WarmKeys loads the key set once so the first request does not pay for the
// fetch. Failure is logged and left for the first request to retry.
func (d *Dependencies) WarmKeys(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, warmupTimeout)
	defer cancel()

	if err := d.Resolver.Refresh(ctx); err != nil {
		d.Logger.Warn("initial jwks fetch failed",
			zap.String("jwks_url", d.Resolver.Endpoint()),
			zap.String("reason", oidc.Reason(err)),
			zap.Error(err))
		return
	}

	stats := d.Resolver.Stats()
	d.Logger.Info("jwks loaded",
		zap.String("jwks_url", stats.Endpoint),
		zap.Int("keys", stats.KeyCount))
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis: %w", err))
		} else {
			d.Logger.Info("redis connection closed")
		}
	}

	_ = d.Logger.Sync()

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %w", errors.Join(errs...))
	}

	return nil
}
