package serve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Config holds HTTP server configuration.
type Config struct {
	// Addr is the TCP address to listen on. Default: ":8080"
	Addr string

	// ReadTimeout and WriteTimeout bound a single request.
	// Defaults: 15s and 60s
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// GracefulTimeout is the maximum duration to wait for active requests
	// to complete during graceful shutdown.
	// Default: 30 seconds
	GracefulTimeout time.Duration

	// TLSCertFile and TLSKeyFile enable HTTPS when both are set.
	TLSCertFile string
	TLSKeyFile  string

	// Logger receives server lifecycle logs. Default: slog.Default()
	Logger *slog.Logger
}

// DefaultConfig returns default serve configuration.
func DefaultConfig() *Config {
	return &Config{
		Addr:            ":8080",
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    60 * time.Second,
		GracefulTimeout: 30 * time.Second,
		Logger:          slog.Default(),
	}
}

// Option is a functional option for configuring a Server.
type Option func(*Config)

// WithAddr sets the listen address. Use ":0" to pick a free port.
func WithAddr(addr string) Option {
	return func(c *Config) {
		c.Addr = addr
	}
}

// WithTimeouts sets the per-request read and write timeouts.
func WithTimeouts(read, write time.Duration) Option {
	return func(c *Config) {
		c.ReadTimeout = read
		c.WriteTimeout = write
	}
}

// WithGracefulShutdown sets the maximum duration to wait for active
// requests during shutdown.
func WithGracefulShutdown(timeout time.Duration) Option {
	return func(c *Config) {
		c.GracefulTimeout = timeout
	}
}

// WithTLS serves HTTPS with the given PEM files. If either path is empty,
// TLS stays disabled.
func WithTLS(certFile, keyFile string) Option {
	return func(c *Config) {
		c.TLSCertFile = certFile
		c.TLSKeyFile = keyFile
	}
}

// WithLogger sets the logger for server lifecycle events.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// Server wraps an http.Server with lifecycle management.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
	config     *Config
}

// NewServer listens on the configured address and prepares handler for
// serving. Serve must be called to accept connections.
func NewServer(handler http.Handler, opts ...Option) (*Server, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", cfg.Addr, err)
	}

	return &Server{
		httpServer: &http.Server{
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		listener: listener,
		config:   cfg,
	}, nil
}

// Serve accepts connections and blocks until shutdown. It shuts down
// gracefully on SIGINT/SIGTERM or when ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.config.TLSCertFile != "" && s.config.TLSKeyFile != "" {
			err = s.httpServer.ServeTLS(s.listener, s.config.TLSCertFile, s.config.TLSKeyFile)
		} else {
			err = s.httpServer.Serve(s.listener)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()
	s.config.Logger.Info("http server listening", "addr", s.Addr())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-ctx.Done():
		s.GracefulStop()
		return ctx.Err()
	case sig := <-sigCh:
		s.config.Logger.Info("received signal, shutting down gracefully", "signal", sig.String())
		s.GracefulStop()
		return nil
	case err := <-errCh:
		return err
	}
}

// GracefulStop stops accepting connections and waits for active requests
// within the configured timeout, then closes the remaining connections.
func (s *Server) GracefulStop() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.GracefulTimeout)
	defer cancel()
	// the listener is not tracked by httpServer until Serve runs
	defer s.listener.Close()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.config.Logger.Warn("graceful shutdown timeout, forcing stop", "error", err)
		_ = s.httpServer.Close()
		return
	}
	s.config.Logger.Info("server stopped gracefully")
}

// Addr returns the address the server is listening on. This is useful when
// listening on port 0.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}
