package api

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/ab/release-server/internal/audit"
	"github.com/ab/release-server/internal/storage"
)

// handleDownload serves GET /download/file?filename=<name>. Misses and
// rejected names both get a bare 404; failures get a bare 500.
func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("filename")
	log := h.logger().With(zap.String("filename", name))

	res := h.Storage.Lookup(name)
	switch res.Outcome {
	case storage.NotFound:
		log.Info("download not found", zap.Error(res.Err))
		h.recordDownload(r, name, storage.NotFound, 0)
		w.WriteHeader(http.StatusNotFound)
		return
	case storage.Error:
		log.Error("download lookup failed", zap.Error(res.Err))
		h.recordDownload(r, name, storage.Error, 0)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	f, err := h.Storage.Open(res.File)
	if err != nil {
		log.Error("download open failed", zap.Error(err))
		h.recordDownload(r, name, storage.Error, 0)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil || !stat.Mode().IsRegular() {
		log.Error("download stat failed", zap.Error(err))
		h.recordDownload(r, name, storage.Error, 0)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", res.File.MIMEType)
	w.Header().Set("Content-Length", strconv.FormatInt(stat.Size(), 10))
	w.Header().Set("Content-Disposition", contentDisposition(res.File.DisplayName))
	w.WriteHeader(http.StatusOK)

	var n int64
	if r.Method != http.MethodHead {
		n, err = io.Copy(w, f)
		if err != nil {
			log.Warn("download interrupted", zap.Int64("bytes", n), zap.Error(err))
		}
	}
	log.Info("download served", zap.String("path", res.File.Path), zap.Int64("bytes", n))
	h.recordDownload(r, name, storage.Found, n)
}

const auditTimeout = 5 * time.Second

// recordDownload runs after the response has been written. The audit write
// is detached from the request so a client hanging up does not drop the row.
func (h *Handler) recordDownload(r *http.Request, name string, outcome storage.Outcome, n int64) {
	h.Metrics.observeDownload(outcome, n)
	if h.Audit == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), auditTimeout)
	defer cancel()
	err := h.Audit.Record(ctx, audit.Entry{
		Name:       name,
		Outcome:    string(outcome),
		Bytes:      n,
		RemoteAddr: clientIP(r, h.TrustProxy),
		CreatedAt:  h.now(),
	})
	if err != nil {
		h.logger().Warn("audit record failed", zap.Error(err))
	}
}

// contentDisposition builds an attachment header for name. Quotes and
// backslashes are escaped and control characters dropped; non-ASCII names
// also get an RFC 5987 filename* parameter.
func contentDisposition(name string) string {
	var b strings.Builder
	ascii := true
	for _, c := range name {
		switch {
		case c < 0x20 || c == 0x7f || c == utf8.RuneError:
			continue
		case c == '"' || c == '\\':
			b.WriteByte('\\')
			b.WriteRune(c)
		default:
			if c > 0x7e {
				ascii = false
			}
			b.WriteRune(c)
		}
	}
	v := `attachment; filename="` + b.String() + `"`
	if !ascii {
		v += "; filename*=UTF-8''" + url.PathEscape(name)
	}
	return v
}
