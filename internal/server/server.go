package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const landingPage = `<html>
<head><title>Jenkins Exporter</title></head>
<body>
<h1>Jenkins Exporter</h1>
<p><a href="/metrics">Metrics</a></p>
</body>
</html>
`

// Scraper produces a collector bound to one scrape's context.
type Scraper interface {
	ForScrape(ctx context.Context) prometheus.Collector
}

type Config struct {
	Address         string
	ShutdownTimeout time.Duration
}

type Server struct {
	logger     *zap.Logger
	config     *Config
	scraper    Scraper
	shared     *prometheus.Registry
	httpServer *http.Server
}

// NewRegistry returns the long-lived registry holding process level metrics
// and the given collectors.
func NewRegistry(cs ...prometheus.Collector) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	cs = append([]prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	}, cs...)
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}
	return reg, nil
}

func NewServer(cfg *Config, scraper Scraper, shared *prometheus.Registry, logger *zap.Logger) *Server {
	config := *cfg
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 30 * time.Second
	}

	s := &Server{
		logger:  logger,
		config:  &config,
		scraper: scraper,
		shared:  shared,
	}
	s.httpServer = &http.Server{
		Addr:              config.Address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(landingPage))
	})
	return mux
}

// handleMetrics gathers the shared registry first, so the scrape duration
// summary on a page covers the scrapes before it.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(s.scraper.ForScrape(r.Context())); err != nil {
		s.logger.Error("Failed to register scrape collector", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	promhttp.HandlerFor(prometheus.Gatherers{s.shared, reg}, promhttp.HandlerOpts{
		ErrorLog:      zap.NewStdLog(s.logger),
		ErrorHandling: promhttp.ContinueOnError,
	}).ServeHTTP(w, r)
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("Starting metrics server", zap.String("address", s.config.Address))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server failed: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
