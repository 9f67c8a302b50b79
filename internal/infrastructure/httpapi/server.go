package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"AnnounceRelay/pkg/logger"
)

// Server is a thin wrapper over chi + stdlib http.Server
type Server struct {
	addr   string
	srv    *http.Server
	logger *slog.Logger
}

// NewServer mounts the API onto a fresh chi router.
func NewServer(addr string, api *API, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(AccessLog(log.With("component", "http"), 5*time.Second))
	r.Use(middleware.Recoverer)
	api.Mount(r)

	return &Server{
		addr:   addr,
		logger: log,
		srv: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			ErrorLog:          logger.New(log, "http"),
		},
	}
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Run listens until Shutdown is called or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.srv.BaseContext = func(net.Listener) context.Context { return ctx }
	s.logger.Info("http listening", "addr", ln.Addr().String())

	err = s.srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
