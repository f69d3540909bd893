package api

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimiter provides per-IP rate limiting with a separate, tighter limit
// for file downloads.
type RateLimiter struct {
	general  sync.Map // IP -> *rate.Limiter
	download sync.Map // IP -> *rate.Limiter

	generalRate   rate.Limit
	generalBurst  int
	downloadRate  rate.Limit
	downloadBurst int

	// TrustProxy keys limiters on X-Forwarded-For instead of the peer
	// address. Only enable it behind a proxy that sets the header.
	TrustProxy bool
	// Now is the limiter clock; nil means time.Now.
	Now    func() time.Time
	Logger *zap.Logger
}

func NewRateLimiter(general rate.Limit, generalBurst int, download rate.Limit, downloadBurst int) *RateLimiter {
	return &RateLimiter{
		generalRate:   general,
		generalBurst:  generalBurst,
		downloadRate:  download,
		downloadBurst: downloadBurst,
	}
}

func (rl *RateLimiter) now() time.Time {
	if rl.Now != nil {
		return rl.Now()
	}
	return time.Now()
}

func (rl *RateLimiter) logger() *zap.Logger {
	if rl.Logger == nil {
		return zap.NewNop()
	}
	return rl.Logger
}

func (rl *RateLimiter) limiterFor(store *sync.Map, r rate.Limit, burst int, ip string) *rate.Limiter {
	if v, ok := store.Load(ip); ok {
		return v.(*rate.Limiter)
	}
	l := rate.NewLimiter(r, burst)
	actual, _ := store.LoadOrStore(ip, l)
	return actual.(*rate.Limiter)
}

// Len reports the number of live limiters across both tiers.
func (rl *RateLimiter) Len() int {
	n := 0
	for _, store := range []*sync.Map{&rl.general, &rl.download} {
		store.Range(func(_, _ any) bool {
			n++
			return true
		})
	}
	return n
}

// Sweep drops every limiter whose bucket has refilled to its burst. Such a
// limiter behaves exactly like the fresh one created on the next request.
func (rl *RateLimiter) Sweep() int {
	now := rl.now()
	n := 0
	for _, store := range []*sync.Map{&rl.general, &rl.download} {
		store.Range(func(k, v any) bool {
			lim := v.(*rate.Limiter)
			if lim.TokensAt(now) >= float64(lim.Burst()) && store.CompareAndDelete(k, v) {
				n++
			}
			return true
		})
	}
	return n
}

// StartSweeper runs Sweep on every tick until ctx is cancelled. The returned
// channel is closed when the worker exits.
func (rl *RateLimiter) StartSweeper(ctx context.Context, every time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ti := time.NewTicker(every)
		defer ti.Stop()
		for {
			select {
			case <-ti.C:
				n := rl.Sweep()
				rl.logger().Debug("rate limiters swept", zap.Int("evicted", n), zap.Int("live", rl.Len()))
			case <-ctx.Done():
				rl.logger().Info("rate limiter sweeper stopped")
				return
			}
		}
	}()
	return done
}

func isDownloadPath(path string) bool {
	return strings.HasSuffix(path, "/download/file")
}

// clientIP returns the peer address of r. With trustProxy set it returns
// the last X-Forwarded-For hop instead, which is the one the proxy added.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			hops := strings.Split(fwd, ",")
			if ip := strings.TrimSpace(hops[len(hops)-1]); ip != "" {
				return ip
			}
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// Middleware returns an http.Handler that enforces rate limits.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r, rl.TrustProxy)
		var lim *rate.Limiter
		if isDownloadPath(r.URL.Path) {
			lim = rl.limiterFor(&rl.download, rl.downloadRate, rl.downloadBurst, ip)
		} else {
			lim = rl.limiterFor(&rl.general, rl.generalRate, rl.generalBurst, ip)
		}
		now := rl.now()
		if !lim.AllowN(now, 1) {
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, newResult(CodeTooManyRequests, nil, now))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the status code and body size written downstream.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += int64(n)
	return n, err
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

func (s *statusRecorder) code() int {
	if s.status == 0 {
		return http.StatusOK
	}
	return s.status
}

// RequestLogger tags every request with an X-Request-ID (reusing the
// caller's when present) and logs one line per completed request.
// trustProxy selects the logged remote address as in clientIP.
func RequestLogger(logger *zap.Logger, trustProxy bool) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if id == "" || len(id) > 128 {
				id = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", id)

			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			logger.Info("request",
				zap.String("request_id", id),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.code()),
				zap.Int64("bytes", rec.bytes),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote", clientIP(r, trustProxy)),
			)
		})
	}
}
