package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	logx "rpcextractor/pkg/logx"
)

// Server exposes GET /metrics on the configured bind address.
type Server struct {
	mu   sync.Mutex
	log  logx.Logger
	srv  *http.Server
	ln   net.Listener
	addr string
}

func NewServer(addr string, rec *Recorder, log logx.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", rec.Handler())

	return &Server{
		log: log,
		srv: &http.Server{
			Addr:        addr,
			Handler:     mux,
			ReadTimeout: 10 * time.Second,
		},
		addr: addr,
	}
}

// Start binds and begins serving. A failed bind is a startup-fatal condition
// and is returned to the caller instead of being retried.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.addr = ln.Addr().String()

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Warn("metrics server error", logx.String("addr", s.addr), logx.Err(err))
		}
	}()
	s.log.Info("metrics server listening", logx.String("addr", s.addr))
	return nil
}

// Addr returns the bound address (useful when configured with port 0).
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
	}
	if err := s.srv.Shutdown(ctx); err != nil {
		s.log.Warn("metrics server shutdown", logx.Err(err))
	}
}
