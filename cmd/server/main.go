package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ab/release-server/internal/api"
	"github.com/ab/release-server/internal/audit"
	"github.com/ab/release-server/internal/config"
	"github.com/ab/release-server/internal/mimetype"
)

const (
	shutdownTimeout = 10 * time.Second
	pruneInterval   = time.Hour
	sweepInterval   = time.Minute
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.Load(args, os.LookupEnv, os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if err := mimetype.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	srv, cleanup, err := initServer(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		srv.logger.Error("server stopped", zap.Error(err))
		return 1
	}
	return 0
}

// Server owns the HTTP listener and the background workers.
type Server struct {
	cfg     config.Config
	http    *http.Server
	audit   *audit.DB
	limiter *api.RateLimiter
	logger  *zap.Logger
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully and stops the background workers.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var workers []<-chan struct{}
	if s.audit != nil {
		workers = append(workers, s.audit.StartRetention(workerCtx, pruneInterval, s.cfg.AuditRetention))
	}
	if s.limiter != nil {
		workers = append(workers, s.limiter.StartSweeper(workerCtx, sweepInterval))
	}

	errc := make(chan error, 1)
	go func() { errc <- s.http.Serve(ln) }()
	s.logger.Info("server running",
		zap.String("addr", ln.Addr().String()),
		zap.String("context_path", s.cfg.ContextPath),
		zap.String("uploads", s.cfg.UploadDir),
		zap.String("descriptor", s.cfg.DescriptorPath),
		zap.Bool("trust_proxy", s.cfg.TrustProxy),
	)

	var err error
	select {
	case err = <-errc:
	case <-ctx.Done():
		s.logger.Info("shutting down")
		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()
		err = s.http.Shutdown(shutdownCtx)
		if serveErr := <-errc; err == nil {
			err = serveErr
		}
	}

	cancel()
	for _, done := range workers {
		<-done
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
		next.ServeHTTP(w, r)
	})
}
