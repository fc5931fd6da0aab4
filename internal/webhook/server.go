// Package webhook receives booking-platform deliveries over HTTP and hands
// them to the engine queue. It also serves health, metrics and pprof.
package webhook

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"aquabot/internal/record"
	"aquabot/internal/runtime/supervisor"
	logx "aquabot/pkg/logx"
)

// Sink accepts decoded deliveries without blocking.
type Sink interface {
	Enqueue(ev record.Event) error
}

type Server struct {
	log    logx.Logger
	sink   Sink
	tracer trace.Tracer

	handler atomic.Pointer[gin.Engine]

	mu   sync.Mutex
	cfg  Config
	srv  *http.Server
	sup  *supervisor.Supervisor
	addr string
}

func New(cfg Config, sink Sink, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{
		log:    log.With(logx.String("comp", "webhook")),
		sink:   sink,
		tracer: otel.Tracer("aquabot/webhook"),
		cfg:    cfg.withDefaults(),
	}
}

// Handler returns the routes for the current config.
func (s *Server) Handler() http.Handler {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()
	return s.routes(cfg)
}

// Addr is the bound address while running.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked(ctx)
}

func (s *Server) startLocked(ctx context.Context) error {
	if s.srv != nil {
		return nil
	}
	cfg := s.cfg
	if cfg.Pprof.Enabled && cfg.Pprof.Token == "" && !isLoopbackAddr(cfg.Addr) {
		return errors.New("webhook: pprof on a non-loopback address requires a token")
	}

	// Bind up front so a busy port fails Start instead of the restart loop.
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return err
	}
	s.handler.Store(s.routes(cfg))
	srv := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s.handler.Load().ServeHTTP(w, r)
		}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
	s.srv, s.addr = srv, ln.Addr().String()

	sup := supervisor.NewSupervisor(context.WithoutCancel(ctx), supervisor.WithLogger(s.log))
	s.sup = sup
	first := ln
	sup.GoRestart("webhook.http", func(context.Context) error {
		l := first
		first = nil
		if l == nil {
			var err error
			if l, err = net.Listen("tcp", cfg.Addr); err != nil {
				return err
			}
		}
		err := srv.Serve(l)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}, supervisor.WithRestartBackoff(500*time.Millisecond, 10*time.Second))

	s.log.Info("webhook listening", logx.String("addr", s.addr), logx.String("path", cfg.Path))
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked(ctx)
}

func (s *Server) stopLocked(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	srv, sup := s.srv, s.sup
	s.srv, s.sup, s.addr = nil, nil, ""

	err := srv.Shutdown(ctx)
	if sup != nil {
		sup.Cancel()
		if werr := sup.Wait(ctx); werr != nil && err == nil {
			err = werr
		}
	}
	s.log.Info("webhook stopped")
	return err
}

// Apply swaps the config. Transport changes restart the listener; the rest
// only rebuilds the routes.
func (s *Server) Apply(ctx context.Context, cfg Config) error {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.cfg
	s.cfg = cfg
	if s.srv == nil {
		return nil
	}
	if !needsRestart(old, cfg) {
		s.handler.Store(s.routes(cfg))
		return nil
	}
	if err := s.stopLocked(ctx); err != nil {
		s.log.Warn("webhook stop before restart", logx.Err(err))
	}
	return s.startLocked(ctx)
}
