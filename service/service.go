package service

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"
)

// Service groups the HTTP surfaces of the application: health checks,
// Prometheus metrics and the execution API with its streaming endpoint.
type Service struct {
	log     zerolog.Logger
	Healthz *HealthzServer
	Metrics *MetricsServer
	API     *APIServer
}

// Config holds the listen addresses for each server.
type Config struct {
	Log         zerolog.Logger
	HealthzAddr string
	MetricsAddr string
	APIAddr     string
	API         APIConfig
}

func New(cfg Config) *Service {
	cfg.API.Log = cfg.Log
	return &Service{
		log:     cfg.Log.With().Str("component", "service").Logger(),
		Healthz: &HealthzServer{log: cfg.Log},
		Metrics: &MetricsServer{},
		API:     NewAPIServer(cfg.API),
	}
}

func (s *Service) Start(ctx context.Context, cfg Config) {
	s.log.Info().Msg("service starting")

	go func() {
		s.log.Info().Str("addr", cfg.HealthzAddr).Msg("starting healthz server")
		if err := s.Healthz.Start(ctx, cfg.HealthzAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("error starting healthz server")
		}
	}()

	go func() {
		s.log.Info().Str("addr", cfg.MetricsAddr).Msg("starting metrics server")
		if err := s.Metrics.Start(ctx, cfg.MetricsAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("error starting metrics server")
		}
	}()

	go func() {
		s.log.Info().Str("addr", cfg.APIAddr).Msg("starting api server")
		if err := s.API.Start(ctx, cfg.APIAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("error starting api server")
		}
	}()

	s.log.Info().Msg("service started")
}

func (s *Service) Shutdown() {
	s.log.Info().Msg("service shutting down")

	_ = s.Healthz.Shutdown()
	s.log.Info().Msg("healthz stopped")

	_ = s.Metrics.Shutdown()
	s.log.Info().Msg("metrics stopped")

	_ = s.API.Shutdown()
	s.log.Info().Msg("api stopped")

	s.log.Info().Msg("service stopped")
}
