package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/alisaviation/carbonintensity/internal/config"
	"github.com/alisaviation/carbonintensity/internal/logger"
	"github.com/alisaviation/carbonintensity/internal/metrics"
	"github.com/alisaviation/carbonintensity/internal/middleware"
	"github.com/alisaviation/carbonintensity/internal/models"
)

const shutdownTimeout = 5 * time.Second

type IntensityFetcher interface {
	FetchIntensity(ctx context.Context, zone string) (float64, int)
}

type DelayInjector interface {
	InjectedDelay() time.Duration
}

type PageRenderer interface {
	Render(value float64) ([]byte, error)
}

type Server struct {
	config   config.Server
	metrics  *metrics.Registry
	faults   DelayInjector
	upstream IntensityFetcher
	renderer PageRenderer
}

func NewServer(conf config.Server, reg *metrics.Registry, faults DelayInjector, upstream IntensityFetcher, renderer PageRenderer) *Server {
	return &Server{
		config:   conf,
		metrics:  reg,
		faults:   faults,
		upstream: upstream,
		renderer: renderer,
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(logger.RequestResponseLogger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.Latency(s.metrics))
	r.Use(chiMiddleware.Compress(5, "text/html"))

	r.Get(models.EndpointCarbonIntensity, s.CarbonIntensity)
	r.Method(http.MethodGet, models.EndpointMetrics, s.metrics.Handler())
	r.NotFound(http.NotFound)

	return r
}

// Run serves until ctx is cancelled, then shuts the listener down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.ServerAddress,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Log.Info("Server starts", zap.String("address", s.config.ServerAddress))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Log.Info("Server stops", zap.String("address", s.config.ServerAddress))
	return nil
}

// CarbonIntensity always answers 200. Upstream failures only show up in metrics and as a 0 reading.
func (s *Server) CarbonIntensity(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	time.Sleep(s.faults.InjectedDelay())

	// once headers are out the request is accounted for even if the client goes away
	ctx := context.WithoutCancel(r.Context())
	value, status := s.upstream.FetchIntensity(ctx, s.config.Zone)
	s.metrics.Increment(strconv.Itoa(http.StatusOK), models.EndpointCarbonIntensity)

	page, err := s.renderer.Render(value)
	if err != nil {
		logger.Log.Error("Error rendering page", zap.Float64("value", value), zap.Error(err))
		return
	}
	if _, err := w.Write(page); err != nil {
		logger.Log.Debug("Error writing page", zap.Int("upstream_status", status), zap.Error(err))
	}
}
