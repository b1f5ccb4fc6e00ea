package handler

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/skilldex-dev/skilldex/internal/health"
	"github.com/skilldex-dev/skilldex/internal/kv"
	"go.uber.org/zap"
)

// RouterConfig collects everything the HTTP surface needs.
type RouterConfig struct {
	Skills *SkillHandler
	Auth   *AuthHandler
	Authn  *Authenticator
	KV     *kv.Store
	Health *health.Checker
	Logger *zap.Logger

	// SearchLimit and DownloadLimit override the per-endpoint budgets.
	SearchLimit   RateLimit
	DownloadLimit RateLimit
	AuthLimit     RateLimit
}

// NewRouter assembles the gin engine: correlation ids, metrics, CORS for the
// read surface, per-endpoint rate limits, and the route groups.
func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(CorrelationID())
	r.Use(PrometheusMiddleware())

	// The read surface is browser-consumable from anywhere; everything else
	// stays same-origin.
	r.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodOptions},
		AllowHeaders: []string{"Content-Type", "User-Agent"},
		MaxAge:       12 * time.Hour,
	}))

	if cfg.KV != nil {
		r.Use(pathRateLimits(cfg))
	}

	cfg.Skills.Register(r, cfg.Authn)
	cfg.Auth.Register(r, cfg.Authn)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/readyz", func(c *gin.Context) {
		statuses, healthy := cfg.Health.Check(c.Request.Context())
		code := http.StatusOK
		if !healthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"healthy": healthy, "checks": statuses})
	})
	r.GET("/metrics", MetricsHandler())

	return r
}

// pathRateLimits applies the per-endpoint budgets by route prefix.
func pathRateLimits(cfg RouterConfig) gin.HandlerFunc {
	search := RateLimiter(cfg.KV, "search", cfg.SearchLimit, cfg.Logger)
	download := RateLimiter(cfg.KV, "download", cfg.DownloadLimit, cfg.Logger)
	auth := RateLimiter(cfg.KV, "auth", cfg.AuthLimit, cfg.Logger)

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		switch {
		case path == "/registry/search":
			search(c)
		case len(path) > 7 && path[:7] == "/skills":
			download(c)
		case len(path) > 5 && path[:5] == "/auth":
			auth(c)
		default:
			c.Next()
		}
	}
}
