package sweeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kvdb/kvdb/internal/logger"
	"github.com/kvdb/kvdb/internal/metrics"
	"github.com/kvdb/kvdb/internal/tracing"
)

// ErrSweepInProgress is returned by SweepOnce when another sweep is running
var ErrSweepInProgress = errors.New("sweep already in progress")

// Pruner deletes every key whose last activity is strictly before cutoff
type Pruner interface {
	DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// State is the sweeper's current activity
type State int32

const (
	StateIdle State = iota
	StateSweeping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSweeping:
		return "sweeping"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Sweeper periodically removes keys that have been inactive for longer than
// the retention window. Sweeps never overlap.
type Sweeper struct {
	pruner    Pruner
	retention Retention
	interval  time.Duration
	now       func() time.Time
	metrics   *metrics.SweeperMetrics
	tracer    trace.Tracer
	log       zerolog.Logger

	state   atomic.Int32
	started atomic.Bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	stopOnce sync.Once
}

// Option configures a Sweeper
type Option func(*Sweeper)

// WithClock overrides the time source used to compute cutoffs
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		s.now = now
	}
}

// WithMetrics attaches sweep metrics
func WithMetrics(m *metrics.SweeperMetrics) Option {
	return func(s *Sweeper) {
		s.metrics = m
	}
}

// New creates a sweeper. interval must be positive.
func New(pruner Pruner, retention Retention, interval time.Duration, opts ...Option) (*Sweeper, error) {
	if pruner == nil {
		return nil, fmt.Errorf("sweeper requires a pruner")
	}
	if retention.IsZero() {
		return nil, fmt.Errorf("sweeper requires a retention window")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("sweep interval must be positive, got %s", interval)
	}

	s := &Sweeper{
		pruner:    pruner,
		retention: retention,
		interval:  interval,
		now:       time.Now,
		tracer:    otel.Tracer(tracing.TracerSweeper),
		log:       logger.WithComponent("sweeper"),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start runs one sweep immediately and then one per interval until Stop is
// called or ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return fmt.Errorf("sweeper already started")
	}

	s.log.Info().
		Str("retention", s.retention.String()).
		Dur("interval", s.interval).
		Msg("Sweeper started")

	go s.run(ctx)
	return nil
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweepAndLog(ctx)

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("Sweeper stopped due to context cancellation")
			return
		case <-s.stopCh:
			s.log.Info().Msg("Sweeper stopped")
			return
		case <-ticker.C:
			s.sweepAndLog(ctx)
		}
	}
}

func (s *Sweeper) sweepAndLog(ctx context.Context) {
	// A sweep that has begun runs to completion even if shutdown starts.
	if _, err := s.SweepOnce(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, ErrSweepInProgress) {
		s.log.Error().Err(err).Msg("Failed to sweep inactive keys")
	}
}

// SweepOnce deletes every key whose last activity precedes now minus the
// retention window and returns how many were removed.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateSweeping)) {
		return 0, ErrSweepInProgress
	}
	defer s.state.Store(int32(StateIdle))

	start := time.Now()
	cutoff := s.retention.Cutoff(s.now())

	ctx, span := s.tracer.Start(ctx, "sweeper.sweep",
		trace.WithAttributes(attribute.String(tracing.AttrSweepCutoff, cutoff.Format(time.RFC3339Nano))),
	)
	defer span.End()

	deleted, err := s.pruner.DeleteInactiveBefore(ctx, cutoff)
	duration := time.Since(start)
	s.metrics.RecordSweep(deleted, duration, err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("failed to delete keys inactive before %s: %w", cutoff.Format(time.RFC3339), err)
	}

	span.SetAttributes(attribute.Int64(tracing.AttrSweepDeleted, deleted))

	event := s.log.Debug()
	if deleted > 0 {
		event = s.log.Info()
	}
	event.
		Int64("deleted", deleted).
		Time("cutoff", cutoff).
		Dur("duration", duration).
		Msg("Swept inactive keys")

	return deleted, nil
}

// Stop signals the loop to exit and waits for any in-flight sweep to finish
func (s *Sweeper) Stop(ctx context.Context) error {
	if !s.started.Load() {
		return nil
	}

	s.stopOnce.Do(func() {
		close(s.stopCh)
	})

	select {
	case <-s.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timed out waiting for sweeper to stop: %w", ctx.Err())
	}
}

// State returns the current sweeper state
func (s *Sweeper) State() State {
	return State(s.state.Load())
}

// Retention returns the configured retention window
func (s *Sweeper) Retention() Retention {
	return s.retention
}

// Interval returns the configured sweep interval
func (s *Sweeper) Interval() time.Duration {
	return s.interval
}
