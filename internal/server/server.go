package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"canonstore/internal/auth"
	"canonstore/internal/config"
	"canonstore/internal/metrics"
	"canonstore/internal/scheduler"
)

const (
	allowRemoteEnvKey = "CANONSTORE_ALLOW_REMOTE"
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 2 * time.Minute
	writeTimeout      = 5 * time.Minute
	idleTimeout       = 60 * time.Second
	shutdownTimeout   = 15 * time.Second
	uploadConcurrency = 8
)

// Limits bounds request bodies.
type Limits struct {
	MaxFileBytes       int64
	MaxFormBytes       int64
	MultipartMaxMemory int64
}

func (l Limits) withDefaults() Limits {
	if l.MaxFileBytes <= 0 {
		l.MaxFileBytes = config.DefaultMaxFileBytes
	}
	if l.MaxFormBytes <= 0 {
		l.MaxFormBytes = config.DefaultMaxFormBytes
	}
	if l.MultipartMaxMemory <= 0 {
		l.MultipartMaxMemory = config.DefaultMultipartMaxMemory
	}
	return l
}

// Options carries the optional collaborators of a Server.
type Options struct {
	Tokens         *auth.TokenManager
	AdminTokenHash string
	Metrics        *metrics.Metrics
	Sweeper        *scheduler.Scheduler[SweepResult]
	Limits         Limits
	Logger         *slog.Logger
}

// Server wraps HTTP handlers for the canonstore API.
type Server struct {
	addr           string
	service        *StorageService
	tokens         *auth.TokenManager
	adminTokenHash string
	openWrites     bool
	metrics        *metrics.Metrics
	sweeper        *scheduler.Scheduler[SweepResult]
	limits         Limits
	logger         *slog.Logger
	uploadLimiter  chan struct{}
}

// New creates a new server instance.
func New(addr string, service *StorageService, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		addr:           addr,
		service:        service,
		tokens:         opts.Tokens,
		adminTokenHash: strings.TrimSpace(opts.AdminTokenHash),
		openWrites:     !opts.Tokens.Enabled() && isLoopbackAddr(addr),
		metrics:        opts.Metrics,
		sweeper:        opts.Sweeper,
		limits:         opts.Limits.withDefaults(),
		logger:         logger.With("component", "server"),
		uploadLimiter:  make(chan struct{}, uploadConcurrency),
	}
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return withRequestID(s.withRequestLogging(s.routes()))
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.log().Info("starting server", "addr", s.addr, "open_writes", s.openWrites, "tokens", s.tokens.Enabled())
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAddr converts a base API URL into a listen address.
func ListenAddr(apiURL string) (string, error) {
	if apiURL == "" {
		return "", fmt.Errorf("api url is required")
	}
	if u, err := url.Parse(apiURL); err == nil && u.Host != "" {
		host := u.Hostname()
		if !isAllowedListenHost(host) {
			return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
		}
		return u.Host, nil
	}

	host, _, err := net.SplitHostPort(apiURL)
	if err == nil && !isAllowedListenHost(host) {
		return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
	}

	return apiURL, nil
}

func isAllowedListenHost(host string) bool {
	if host == "" {
		return true
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv(allowRemoteEnvKey)), "true") {
		return true
	}
	return isLoopbackHost(host)
}

func isLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// isLoopbackAddr reports whether a listen address only accepts local connections.
// An empty host listens on every interface.
func isLoopbackAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	return host != "" && isLoopbackHost(host)
}

func (s *Server) acquireLimiter(limiter chan struct{}, w http.ResponseWriter, r *http.Request, name string) bool {
	if limiter == nil {
		return true
	}
	select {
	case limiter <- struct{}{}:
		return true
	default:
		err := apiError{
			status:  http.StatusTooManyRequests,
			code:    "resource_exhausted",
			errCode: ErrCodeResourceExhausted,
			err:     fmt.Errorf("too many concurrent %s requests", name),
		}
		s.writeErrorReq(w, r, http.StatusTooManyRequests, err)
		return false
	}
}

func (s *Server) releaseLimiter(limiter chan struct{}) {
	if limiter == nil {
		return
	}
	select {
	case <-limiter:
	default:
	}
}

func (s *Server) withLimiter(w http.ResponseWriter, r *http.Request, limiter chan struct{}, name string, fn func()) {
	if !s.acquireLimiter(limiter, w, r, name) {
		return
	}
	defer s.releaseLimiter(limiter)
	fn()
}

func (s *Server) log() *slog.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return slog.Default()
}
