package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	rtsup "wablast/internal/runtime/supervisor"
	"wablast/internal/services/broadcast"
	logx "wablast/pkg/logx"
)

type Config struct {
	Addr string
}

// Controller is the broadcast surface the HTTP layer drives.
type Controller interface {
	Start(job broadcast.Job) (int, error)
	Stop()
	Status() broadcast.Status
	Logs() []broadcast.Entry
	ClearLogs()
}

// Session is the connection surface the HTTP layer reads.
type Session interface {
	Connected() bool
	Challenge() string
}

type Server struct {
	cfg  Config
	log  logx.Logger
	ctrl Controller
	sess Session

	mu  sync.Mutex
	ln  net.Listener
	srv *http.Server
	sup *rtsup.Supervisor
}

func New(cfg Config, ctrl Controller, sess Session, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{cfg: cfg, log: log, ctrl: ctrl, sess: sess}
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Get("/api/qr", s.handleQR)
	r.Post("/api/start", s.handleStart)
	r.Post("/api/stop", s.handleStop)
	r.Get("/api/logs", s.handleLogs)
	r.Get("/api/status", s.handleStatus)
	r.Post("/api/clear-logs", s.handleClearLogs)
	return r
}

func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return nil
	}

	addr := s.cfg.Addr
	if addr == "" {
		addr = "127.0.0.1:8080"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:      s.router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.ln = ln
	s.srv = srv
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log))

	s.sup.Go("httpapi.serve", func(context.Context) error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	s.log.Info("http api listening", logx.String("addr", ln.Addr().String()))
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	sup := s.sup
	s.srv = nil
	s.ln = nil
	s.sup = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	err := srv.Shutdown(ctx)
	if sup != nil {
		_ = sup.Stop(ctx)
	}
	return err
}
