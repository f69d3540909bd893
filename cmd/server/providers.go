package main

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ab/release-server/internal/api"
	"github.com/ab/release-server/internal/audit"
	"github.com/ab/release-server/internal/config"
	"github.com/ab/release-server/internal/logging"
	"github.com/ab/release-server/internal/storage"
	"github.com/ab/release-server/internal/version"
)

func provideLogger(cfg config.Config) (*zap.Logger, func(), error) {
	logger, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		return nil, nil, err
	}
	return logger, func() { _ = logger.Sync() }, nil
}

func provideStorage(cfg config.Config) (*storage.Storage, error) {
	return storage.New(cfg.UploadDir)
}

func provideLoader(cfg config.Config) *version.Loader {
	return version.NewLoader(cfg.DescriptorPath)
}

// provideAudit opens the audit database, or returns nil when auditing is
// disabled.
func provideAudit(cfg config.Config, logger *zap.Logger) (*audit.DB, func(), error) {
	if cfg.AuditDB == "" {
		return nil, func() {}, nil
	}
	d, err := audit.New(cfg.AuditDB, logger.Named("audit"))
	if err != nil {
		return nil, nil, err
	}
	return d, func() { d.Close() }, nil
}

func provideMetrics() *api.Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return api.NewMetrics(reg)
}

// provideRateLimiter returns nil when rate limiting is disabled.
func provideRateLimiter(cfg config.Config, logger *zap.Logger) *api.RateLimiter {
	rl := cfg.RateLimit
	if !rl.Enabled {
		return nil
	}
	limiter := api.NewRateLimiter(
		rate.Limit(rl.PerSecond), rl.Burst,
		rate.Limit(rl.DownloadPerSecond), rl.DownloadBurst,
	)
	limiter.TrustProxy = cfg.TrustProxy
	limiter.Logger = logger.Named("ratelimit")
	return limiter
}

func provideHandler(cfg config.Config, store *storage.Storage, loader *version.Loader, auditDB *audit.DB, m *api.Metrics, logger *zap.Logger) *api.Handler {
	h := &api.Handler{
		Storage:    store,
		Versions:   loader,
		Metrics:    m,
		Logger:     logger,
		TrustProxy: cfg.TrustProxy,
	}
	if auditDB != nil {
		h.Audit = auditDB
	}
	return h
}

func newServer(cfg config.Config, h *api.Handler, rl *api.RateLimiter, auditDB *audit.DB, logger *zap.Logger) *Server {
	handler := h.Routes(cfg.ContextPath)
	if rl != nil {
		handler = rl.Middleware(handler)
	}
	handler = api.RequestLogger(logger, cfg.TrustProxy)(handler)
	handler = securityHeaders(handler)

	return &Server{
		cfg: cfg,
		http: &http.Server{
			Addr:              cfg.Addr(),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       2 * time.Minute,
		},
		audit:   auditDB,
		limiter: rl,
		logger:  logger,
	}
}
