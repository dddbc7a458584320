package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"resume-tailor/internal/account"
	"resume-tailor/internal/analyses"
	"resume-tailor/internal/auth"
	"resume-tailor/internal/checkout"
	"resume-tailor/internal/services/health"
	"resume-tailor/internal/shared/config"
	"resume-tailor/internal/shared/metrics"
	"resume-tailor/internal/shared/server/middleware"
	"resume-tailor/internal/shared/server/respond"
	"resume-tailor/internal/uploads"
	"resume-tailor/internal/usage"
	"resume-tailor/internal/users"
)

const (
	apiPrefix = "/api"

	rateGroupAnalyze = "ANALYZE"
	rateGroupAuth    = "AUTH"
)

// RouterDeps carries the handlers mounted by NewRouter. Nil handlers are
// skipped so partial apps can be built in tests.
type RouterDeps struct {
	Config          config.Config
	Verifier        middleware.TokenVerifier
	Health          *health.Service
	RateLimiter     *middleware.RateLimiter
	AnalysisHandler *analyses.Handler
	AccountHandler  *account.Handler
	AuthHandler     *auth.Handler
	CheckoutHandler *checkout.Handler
	UploadsHandler  *uploads.Handler
	UsageHandler    *usage.Handler
	UserHandler     *users.Handler
	GoogleAuth      *auth.GoogleService
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	cfg := deps.Config
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(cfg.CORSAllowOrigin),
		middleware.Auth(middleware.AuthConfig{
			Verifier: deps.Verifier,
			PublicPrefixes: []string{
				apiPrefix + "/health",
				apiPrefix + "/auth/",
				apiPrefix + "/stripe/webhook",
				apiPrefix + "/checkout/config",
				"/metrics",
			},
		}),
		middleware.RateLimit(middleware.RateLimitConfig{
			Rules:    rateRules(cfg),
			GroupFor: rateGroup,
			Limiter:  deps.RateLimiter,
		}),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group(apiPrefix)
	healthSvc := deps.Health
	if healthSvc == nil {
		healthSvc = health.NewService(nil)
	}
	api.GET("/health", func(c *gin.Context) {
		body, ok := healthSvc.Status(c.Request.Context())
		status := http.StatusOK
		if !ok {
			status = http.StatusServiceUnavailable
		}
		respond.JSON(c, status, body)
	})

	if deps.AuthHandler != nil {
		deps.AuthHandler.RegisterRoutes(api)
	}
	if deps.GoogleAuth != nil {
		deps.GoogleAuth.RegisterRoutes(api)
	}
	if deps.CheckoutHandler != nil {
		deps.CheckoutHandler.RegisterWebhook(api)
		deps.CheckoutHandler.RegisterRoutes(api)
	}
	if deps.UserHandler != nil {
		deps.UserHandler.RegisterRoutes(api)
	}
	if deps.AnalysisHandler != nil {
		deps.AnalysisHandler.RegisterRoutes(api)
	}
	if deps.UploadsHandler != nil {
		deps.UploadsHandler.RegisterRoutes(api)
	}
	if deps.AccountHandler != nil {
		deps.AccountHandler.RegisterRoutes(api)
	}
	if deps.UsageHandler != nil {
		deps.UsageHandler.RegisterRoutes(api)
		if cfg.Env == "dev" {
			deps.UsageHandler.RegisterDevRoutes(api.Group("/dev"))
		}
	}

	return r
}

func rateRules(cfg config.Config) map[string]middleware.RateLimitRule {
	if cfg.RateLimitPerSecond <= 0 {
		return nil
	}
	return map[string]middleware.RateLimitRule{
		rateGroupAnalyze: {Rate: cfg.RateLimitPerSecond, Burst: max(1, cfg.RateLimitBurst)},
		rateGroupAuth:    {Rate: cfg.RateLimitPerSecond * 2, Burst: max(1, cfg.RateLimitBurst*2)},
	}
}

// rateGroup limits the expensive and abuse-prone routes; everything else
// falls into the unlimited default group.
func rateGroup(c *gin.Context) string {
	path := c.Request.URL.Path
	switch {
	case path == apiPrefix+"/analyze", path == apiPrefix+"/parse-resume":
		return rateGroupAnalyze
	case strings.HasPrefix(path, apiPrefix+"/auth/"):
		return rateGroupAuth
	default:
		return ""
	}
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
