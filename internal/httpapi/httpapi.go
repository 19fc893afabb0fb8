// Package httpapi binds C1-C9 to the external interfaces of §6: the ingest,
// goals, webhook, cron, script, and debug-rollup endpoints, wired onto a
// chi router with the ambient middleware stack (request ID, CORS, coarse
// IP rate limiting, Prometheus exposition, liveness/readiness probes).
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/lanternmetrics/ingest-core/internal/apikey"
	"github.com/lanternmetrics/ingest-core/internal/config"
	"github.com/lanternmetrics/ingest-core/internal/crypto"
	"github.com/lanternmetrics/ingest-core/internal/ingest"
	"github.com/lanternmetrics/ingest-core/internal/normalize"
	"github.com/lanternmetrics/ingest-core/internal/ratelimit"
	"github.com/lanternmetrics/ingest-core/internal/rebuild"
	"github.com/lanternmetrics/ingest-core/internal/repository"
	"github.com/lanternmetrics/ingest-core/internal/retention"
	"github.com/lanternmetrics/ingest-core/internal/webhook"
)

// Deps collects everything the handlers in this package need. It is built
// once in cmd/ingestd and handed to NewRouter.
type Deps struct {
	Cfg       *config.Config
	Repos     *repository.Repositories
	Pipeline  *ingest.Pipeline
	Resolver  *apikey.Resolver
	Processor *webhook.Processor
	Rebuilder *rebuild.Rebuilder
	GC        *retention.GC
	Limiter   *ratelimit.SiteIPLimiter
	Log       zerolog.Logger
}

// NewDeps wires the full dependency graph from cfg, repos, and an
// already-built zerolog.Logger, mirroring the construction order of the
// teacher's main.go (config → database → repositories → services).
func NewDeps(cfg *config.Config, repos *repository.Repositories, logger zerolog.Logger) *Deps {
	geo := normalize.NewGeoResolver(cfg.GeoIPDBPath)
	pipeline := ingest.NewPipeline(repos, geo)

	var encryptor *crypto.Encryptor
	if len(cfg.RevenueProviderKey) > 0 {
		encryptor, _ = crypto.NewEncryptor(cfg.RevenueProviderKey)
	}

	return &Deps{
		Cfg:       cfg,
		Repos:     repos,
		Pipeline:  pipeline,
		Resolver:  apikey.NewResolver(repos.Sites),
		Processor: webhook.NewProcessor(repos, encryptor),
		Rebuilder: rebuild.New(repos),
		GC: retention.New(repos, logger,
			cfg.RetentionRawEventMaxAge, cfg.RetentionRawEventMaxAge,
			cfg.RetentionRollupDailyAge, cfg.RetentionRollupHourlyAge,
			cfg.RetentionBatchSize,
		),
		Limiter: ratelimit.NewSiteIPLimiter(
			time.Minute, cfg.RateLimitPerIPPerMinute,
			time.Minute, cfg.RateLimitPerKeyPerMinute,
		),
		Log: logger,
	}
}

// NewRouter builds the full chi router for ingestd.
func NewRouter(d *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RequestSize(64 * 1024))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.Cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "x-ingest-server-key", "Authorization", "x-idempotency-key"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	// Coarse, cheap per-IP flood protection ahead of any site-scoped logic;
	// the precise two-window rule lives in internal/ratelimit.
	r.Use(httprate.LimitByIP(600, time.Minute))

	r.Get("/healthz", handleLivez)
	r.Get("/readyz", handleReadyz(d.Repos.DB))
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/js/script.js", handleScript)

	r.Post("/api/v1/ingest", d.handleIngest)
	r.Post("/api/v1/goals", d.handleGoals)

	r.Post("/api/webhooks/{provider}/{websiteId}", d.handleWebhook)

	r.Group(func(cr chi.Router) {
		cr.Use(d.cronAuth)
		cr.Get("/api/cron/retention", d.handleCronRetention)
		cr.Post("/api/cron/retention", d.handleCronRetention)
		cr.Get("/api/cron/rollup-rebuild", d.handleCronRebuild)
		cr.Post("/api/cron/rollup-rebuild", d.handleCronRebuild)
		cr.Get("/internal/rollups/{siteId}", d.handleDebugRollups)
	})

	return r
}

// cronAuth gates a route group behind apikey.MatchesCronSecret.
func (d *Deps) cronAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !apikey.MatchesCronSecret(r, d.Cfg.CronSecret) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing or incorrect cron secret")
			return
		}
		next.ServeHTTP(w, r)
	})
}
