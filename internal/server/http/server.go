package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rzbill/flocheck/internal/harness"
	"github.com/rzbill/flocheck/internal/runtime"
	"github.com/rzbill/flocheck/internal/server/http/controllers"
	"github.com/rzbill/flocheck/pkg/log"
)

type Server struct {
	rt     *runtime.Runtime
	srv    *http.Server
	logger log.Logger
	run    atomic.Pointer[harness.Handle]

	mu  sync.Mutex
	lis net.Listener
}

func New(rt *runtime.Runtime, logger log.Logger) *Server {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	mux := http.NewServeMux()
	s := &Server{rt: rt, logger: logger.WithComponent("http")}
	s.srv = &http.Server{
		Handler:           cors(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          log.ToStdLogger(s.logger, log.WarnLevel),
	}
	controllers.NewControllerRegistry(rt, s.currentRun, logger).RegisterAllRoutes(mux)
	return s
}

// SetRun publishes h on /v1/run.
func (s *Server) SetRun(h *harness.Handle) { s.run.Store(h) }

func (s *Server) currentRun() *harness.Handle { return s.run.Load() }

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.lis = l
	s.mu.Unlock()
	s.logger.Info("http listening", log.Str("addr", l.Addr().String()))
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(cctx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
