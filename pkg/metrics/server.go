package metrics

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/kalifun/tracilink/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Server serves a registry over HTTP, plus a /health endpoint.
type Server struct {
	listen   string
	path     string
	gatherer prometheus.Gatherer
	logger   *logrus.Entry

	mu     sync.Mutex
	server *http.Server
	addr   net.Addr
	done   chan struct{}
}

func NewServer(listen, path string, gatherer prometheus.Gatherer) *Server {
	if path == "" {
		path = "/metrics"
	}
	return &Server{
		listen:   listen,
		path:     path,
		gatherer: gatherer,
		logger:   logrus.WithField("component", "metrics-server"),
	}
}

func (s *Server) ID() string {
	return "metrics-server"
}

// Addr is the bound address once started.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return errors.TransportAlreadyRunning.Args(s.ID())
	}

	mux := http.NewServeMux()
	mux.Handle(s.path, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return errors.ConfigurationError.Wrap(err, "metrics listen address "+s.listen)
	}
	s.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	s.addr = ln.Addr()
	s.done = make(chan struct{})

	go func(srv *http.Server, done chan struct{}) {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).Error("Metrics server failed")
		}
	}(s.server, s.done)

	s.logger.WithFields(logrus.Fields{"addr": s.addr.String(), "path": s.path}).Info("Metrics server started")
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server == nil {
		return errors.TransportNotRunning.Args(s.ID())
	}
	err := s.server.Shutdown(ctx)
	<-s.done
	s.server = nil
	s.logger.Info("Metrics server stopped")
	return err
}
