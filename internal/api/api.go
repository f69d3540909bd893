package api

import (
	"context"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/ab/release-server/internal/audit"
	"github.com/ab/release-server/internal/storage"
	"github.com/ab/release-server/internal/version"
)

// FileStore abstracts file lookup for testability.
type FileStore interface {
	Lookup(name string) storage.Result
	Open(f *storage.File) (*os.File, error)
}

// DescriptorSource loads the current version descriptor.
type DescriptorSource interface {
	Load() (version.Descriptor, error)
}

// AuditRecorder stores download attempts.
type AuditRecorder interface {
	Record(ctx context.Context, e audit.Entry) error
}

type Handler struct {
	Storage  FileStore
	Versions DescriptorSource
	Audit    AuditRecorder // nil = auditing disabled
	Metrics  *Metrics      // nil = no metrics
	Logger   *zap.Logger
	Now      func() time.Time

	// TrustProxy takes the audited client address from X-Forwarded-For.
	TrustProxy bool
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("GET /download/file", h.Metrics.instrument("download", h.handleDownload))
	mux.Handle("GET /jt808/get_version.json", h.Metrics.instrument("version", h.handleGetVersion))
	mux.Handle("GET /jt808/{$}", h.Metrics.instrument("index", h.handleIndex))
}

// Routes mounts the application routes below contextPath ("" for the root)
// and exposes /metrics at the top level when metrics are enabled.
func (h *Handler) Routes(contextPath string) http.Handler {
	app := http.NewServeMux()
	h.RegisterRoutes(app)

	root := http.NewServeMux()
	if contextPath == "" {
		root.Handle("/", app)
	} else {
		root.Handle(contextPath+"/", http.StripPrefix(contextPath, app))
	}
	if h.Metrics != nil {
		root.Handle("GET /metrics", h.Metrics.Handler())
	}
	return root
}

func (h *Handler) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}
