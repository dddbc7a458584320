package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"resume-tailor/internal/account"
	"resume-tailor/internal/analyses"
	"resume-tailor/internal/auth"
	"resume-tailor/internal/checkout"
	"resume-tailor/internal/profiles"
	"resume-tailor/internal/services/health"
	"resume-tailor/internal/shared/config"
	sharedauth "resume-tailor/internal/shared/auth"
	"resume-tailor/internal/shared/server"
	"resume-tailor/internal/shared/server/middleware"
	"resume-tailor/internal/shared/storage/db"
	"resume-tailor/internal/shared/storage/kv"
	"resume-tailor/internal/shared/storage/object"
	localstore "resume-tailor/internal/shared/storage/object/local"
	s3store "resume-tailor/internal/shared/storage/object/s3"
	"resume-tailor/internal/shared/telemetry"
	"resume-tailor/internal/uploads"
	"resume-tailor/internal/usage"
	"resume-tailor/internal/users"
)

// App holds shared dependencies and the HTTP router.
type App struct {
	Config config.Config
	Router *gin.Engine
	DB     *sql.DB
	Redis  *redis.Client
	KV     kv.Store
	Store  object.ObjectStore

	ProfilesRepo  profiles.Repo
	AnalysesRepo  analyses.Repo
	UsersRepo     users.Repo
	UsageService  *usage.Service
	Analyses      *analyses.Service
	Checkout      *checkout.Service
	Accounts      *account.Service
	Auth          *auth.Service
	GoogleAuth    *auth.GoogleService
	HealthService *health.Service
}

// Options lets callers swap pieces that would otherwise be built from config.
type Options struct {
	// Scorer replaces the HTTP scoring client.
	Scorer analyses.Scorer
	// Gateway replaces the Stripe gateway.
	Gateway checkout.Gateway
	// SkipRouter builds services only, for the worker.
	SkipRouter bool
	// DBOptions overrides the server pool defaults.
	DBOptions *db.Options
}

// Build prepares shared dependencies and wires routes.
func Build(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}

	app := &App{Config: cfg}

	dbOpts := db.DefaultServerOptions()
	if opts.DBOptions != nil {
		dbOpts = *opts.DBOptions
	}
	sqlDB, err := buildDB(ctx, cfg, dbOpts)
	if err != nil {
		return nil, err
	}
	app.DB = sqlDB

	if err := buildKV(ctx, app); err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.Store = store

	if err := buildServices(app, opts); err != nil {
		return nil, err
	}

	var dbPing, redisPing health.Pinger
	if app.DB != nil {
		dbPing = app.DB
	}
	if app.Redis != nil {
		client := app.Redis
		redisPing = health.PingFunc(func(ctx context.Context) error { return client.Ping(ctx).Err() })
	}
	app.HealthService = health.NewService(map[string]health.Pinger{"db": dbPing, "redis": redisPing})

	if !opts.SkipRouter {
		app.Router = server.NewRouter(server.RouterDeps{
			Config:          cfg,
			Verifier:        app.Auth,
			Health:          app.HealthService,
			RateLimiter:     middleware.NewRateLimiter(nil),
			AnalysisHandler: analyses.NewHandler(app.Analyses),
			AccountHandler:  account.NewHandler(app.Accounts),
			AuthHandler:     auth.NewHandler(app.Auth),
			CheckoutHandler: checkout.NewHandler(app.Checkout),
			UploadsHandler:  uploads.NewHandler(),
			UsageHandler:    usage.NewHandler(app.UsageService),
			UserHandler:     users.NewHandler(users.NewService(app.UsersRepo)),
			GoogleAuth:      app.GoogleAuth,
		})
	}
	return app, nil
}

// Close releases pooled connections.
func (a *App) Close() {
	if a.DB != nil {
		_ = a.DB.Close()
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
}

func buildDB(ctx context.Context, cfg config.Config, defaults db.Options) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.db_missing", map[string]any{"fallback": "memory"})
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(defaults))
	if err != nil {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.db_connect_failed", map[string]any{"fallback": "memory", "error": err.Error()})
			return nil, nil
		}
		return nil, err
	}
	return sqlDB, nil
}

func buildKV(ctx context.Context, app *App) error {
	if strings.TrimSpace(app.Config.RedisURL) == "" {
		if !isDevLike(app.Config.Env) {
			telemetry.Warn("bootstrap.redis_missing", map[string]any{"fallback": "memory"})
		}
		app.KV = kv.NewMemory()
		return nil
	}
	store, client, err := kv.NewRedis(ctx, app.Config.RedisURL)
	if err != nil {
		if isDevLike(app.Config.Env) {
			telemetry.Warn("bootstrap.redis_connect_failed", map[string]any{"fallback": "memory", "error": err.Error()})
			app.KV = kv.NewMemory()
			return nil
		}
		return err
	}
	app.KV = store
	app.Redis = client
	return nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.AWSRegion) == "" || strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, fmt.Errorf("OBJECT_STORE=s3 requires AWS_REGION and S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}

func buildServices(app *App, opts Options) error {
	cfg := app.Config

	if app.DB != nil {
		app.ProfilesRepo = &profiles.PGRepo{DB: app.DB}
		app.AnalysesRepo = &analyses.PGRepo{DB: app.DB}
		app.UsersRepo = &users.PGRepo{DB: app.DB}
	} else {
		app.ProfilesRepo = profiles.NewMemoryRepo()
		app.AnalysesRepo = analyses.NewMemoryRepo()
		app.UsersRepo = users.NewMemoryRepo()
	}

	app.UsageService = usage.NewService(app.ProfilesRepo, app.KV)
	if cfg.GuestCreditTotal > 0 {
		app.UsageService.GuestLimit = cfg.GuestCreditTotal
	}

	scorer := opts.Scorer
	if scorer == nil {
		if strings.TrimSpace(cfg.ScoringURL) == "" && !isDevLike(cfg.Env) && !opts.SkipRouter {
			return fmt.Errorf("SCORING_URL is required")
		}
		scorer = analyses.NewHTTPScorer(analyses.ScorerConfig{
			BaseURL:      cfg.ScoringURL,
			APIKey:       cfg.ScoringAPIKey,
			Timeout:      cfg.ScoringTimeout,
			MinRequests:  cfg.BreakerMinReqs,
			FailureRatio: cfg.BreakerFailRatio,
			OpenTimeout:  cfg.BreakerOpenPeriod,
		})
	}
	app.Analyses = &analyses.Service{
		Repo:    app.AnalysesRepo,
		Scorer:  scorer,
		Usage:   app.UsageService,
		Archive: analyses.NewArchive(app.Store),
		Cache:   app.KV,
	}

	gateway := opts.Gateway
	if gateway == nil && strings.TrimSpace(cfg.StripeSecretKey) != "" {
		gateway = checkout.NewStripeGateway(cfg.StripeSecretKey, cfg.StripeWebhookSecret, nil)
	}
	var (
		events checkout.EventStore
		claims checkout.ClaimStore
	)
	if app.DB != nil {
		pg := &checkout.PGStore{DB: app.DB}
		events, claims = pg, pg
	} else {
		mem := checkout.NewMemoryStore()
		events, claims = mem, mem
	}
	app.Checkout = &checkout.Service{
		Gateway:  gateway,
		Profiles: app.ProfilesRepo,
		Events:   events,
		Claims:   claims,
		Config: checkout.Config{
			PublishableKey: cfg.StripePublishableKey,
			PriceMonthly:   cfg.StripePriceMonthly,
			PriceAnnual:    cfg.StripePriceAnnual,
			UIMode:         cfg.CheckoutUIMode,
			FrontendURL:    cfg.FrontendURL,
		},
	}

	signer, err := sharedauth.NewSigner(cfg.JWTSecret, cfg.Env, 0)
	if err != nil {
		return err
	}
	app.Auth = auth.NewService(app.UsersRepo, signer, kv.Namespace(app.KV, "app:"), app.ProfilesRepo)
	app.GoogleAuth = auth.NewGoogleService(
		cfg.GoogleClientID,
		cfg.GoogleClientSecret,
		cfg.GoogleRedirectURL,
		cfg.UIRedirectURL,
		app.Auth,
		kv.Namespace(app.KV, "app:"),
	)

	app.Accounts = &account.Service{
		Profiles: app.ProfilesRepo,
		Usage:    app.UsageService,
		Analyses: app.AnalysesRepo,
		Checkout: app.Checkout,
	}
	return nil
}
