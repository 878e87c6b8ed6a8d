package api

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	httpapi "github.com/kvdb/kvdb/internal/api/http"
	"github.com/kvdb/kvdb/internal/config"
	"github.com/kvdb/kvdb/internal/keystore"
	"github.com/kvdb/kvdb/internal/logger"
	"github.com/kvdb/kvdb/internal/metrics"
	"github.com/kvdb/kvdb/internal/ratelimit"
	"github.com/kvdb/kvdb/internal/storage"
	"github.com/kvdb/kvdb/internal/sweeper"
)

// Server owns the key table, the HTTP server, and the expiration sweeper
type Server struct {
	table      storage.Table
	keys       *keystore.Accessor
	httpServer *httpapi.Server
	sweeper    *sweeper.Sweeper
	log        zerolog.Logger
	ready      bool
	mu         sync.RWMutex
}

// NewServer wires the key API over table. collector may be nil to disable
// metrics. The server takes ownership of table and closes it on Stop.
func NewServer(cfg *config.Config, table storage.Table, collector *metrics.Collector) (*Server, error) {
	var (
		keyMetrics   *metrics.KeyStoreMetrics
		sweepMetrics *metrics.SweeperMetrics
		apiMetrics   *metrics.APIMetrics
	)
	if collector != nil {
		keyMetrics = metrics.NewKeyStoreMetrics(collector)
		sweepMetrics = metrics.NewSweeperMetrics(collector)
		apiMetrics = metrics.NewAPIMetrics(collector)
	}

	limits := keystore.Limits{
		MaxKeyLength:   cfg.Limits.MaxKeyLength,
		MaxValueLength: cfg.Limits.MaxValueLength,
	}
	keys, err := keystore.NewAccessor(table, limits, keystore.WithMetrics(keyMetrics))
	if err != nil {
		return nil, err
	}

	s := &Server{
		table: table,
		keys:  keys,
		log:   logger.WithComponent("api"),
	}

	if cfg.Expiration.SweeperEnabled() {
		retention, err := sweeper.ParseRetention(cfg.Expiration.DeleteUnusedAfter)
		if err != nil {
			return nil, fmt.Errorf("DELETE_UNUSED_KEYS_AFTER: %w", err)
		}
		s.sweeper, err = sweeper.New(table, retention, cfg.Expiration.Interval(), sweeper.WithMetrics(sweepMetrics))
		if err != nil {
			return nil, err
		}
	}

	s.httpServer = httpapi.NewServer(cfg.Server.ListenOn, httpapi.Dependencies{
		Keys:        keys,
		Limiter:     ratelimit.New(cfg.RateLimit.PerSecond, cfg.RateLimit.BurstSize),
		Metrics:     apiMetrics,
		CORSOrigins: cfg.Server.CORSOrigins,
	})

	return s, nil
}

// Start starts the HTTP server and, when configured, the sweeper
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ready {
		return nil
	}

	s.log.Info().Msg("Starting API server")

	if err := s.httpServer.Start(ctx); err != nil {
		return err
	}

	if s.sweeper != nil {
		if err := s.sweeper.Start(ctx); err != nil {
			_ = s.httpServer.Stop(ctx)
			return err
		}
	} else {
		s.log.Info().Msg("Key expiration disabled")
	}

	s.ready = true
	s.log.Info().Str("addr", s.httpServer.Addr()).Msg("API server started")

	return nil
}

// Stop stops accepting requests, waits for a running sweep, and closes the
// table
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready {
		return nil
	}

	s.log.Info().Msg("Stopping API server")

	if err := s.httpServer.Stop(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Error stopping HTTP server")
	}

	if s.sweeper != nil {
		if err := s.sweeper.Stop(ctx); err != nil {
			s.log.Warn().Err(err).Msg("Error stopping sweeper")
		}
	}

	if err := s.table.Close(); err != nil {
		s.log.Warn().Err(err).Msg("Error closing storage")
	}

	s.ready = false
	s.log.Info().Msg("API server stopped")

	return nil
}

// Ready returns true if the server is ready
func (s *Server) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready && s.httpServer.Ready()
}

// Addr returns the address the HTTP server is bound to
func (s *Server) Addr() string {
	return s.httpServer.Addr()
}

// Keys returns the key accessor
func (s *Server) Keys() *keystore.Accessor {
	return s.keys
}

// Sweeper returns the expiration sweeper, or nil when expiration is disabled
func (s *Server) Sweeper() *sweeper.Sweeper {
	return s.sweeper
}
