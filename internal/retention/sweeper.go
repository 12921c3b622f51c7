// Package retention hides aged end-user messages from the end-user's view.
// Staff keep seeing them; nothing is physically deleted.
package retention

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/rs/zerolog"

	"github.com/vthuan-dev/bufforder-sub001/internal/metrics"
)

// Store is the slice of the chat store the sweeper works on.
type Store interface {
	ApplyUserRetention(ctx context.Context, cutoff, now time.Time) (hidden, refreshed int64, err error)
}

type Config struct {
	// TTL is how long a user message stays visible to its author.
	TTL time.Duration
	// Interval between sweeps. Ignored when Cron is set.
	Interval time.Duration
	// Cron optionally schedules sweeps with a cron expression.
	Cron string
}

// Result summarizes one sweep cycle.
type Result struct {
	Hidden           int64
	ThreadsRefreshed int64
}

type Sweeper struct {
	store     Store
	cfg       Config
	now       func() time.Time
	log       zerolog.Logger
	sweepMu   sync.Mutex
	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

func NewSweeper(store Store, cfg Config, log zerolog.Logger) *Sweeper {
	return &Sweeper{
		store: store,
		cfg:   cfg,
		now:   time.Now,
		log:   log.With().Str("component", "retention-sweeper").Logger(),
		done:  make(chan struct{}),
	}
}

// Start sweeps once right away and then on schedule in the background.
// Only the first call has any effect.
func (s *Sweeper) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		s.wg.Add(1)
		go s.run(ctx)
		s.log.Info().
			Dur("ttl", s.cfg.TTL).
			Dur("interval", s.cfg.Interval).
			Str("cron", s.cfg.Cron).
			Msg("retention sweeper started")
	})
}

// Stop ends the loop and waits for an in-flight sweep. Safe to call more
// than once.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
		s.log.Info().Msg("retention sweeper stopped")
	})
}

func (s *Sweeper) run(ctx context.Context) {
	defer s.wg.Done()

	_, _ = s.SweepOnce(ctx)
	for {
		timer := time.NewTimer(s.nextWait())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.done:
			timer.Stop()
			return
		case <-timer.C:
			_, _ = s.SweepOnce(ctx)
		}
	}
}

func (s *Sweeper) nextWait() time.Duration {
	if s.cfg.Cron == "" {
		return s.cfg.Interval
	}
	now := s.now()
	next, err := gronx.NextTickAfter(s.cfg.Cron, now, false)
	if err != nil {
		s.log.Error().Err(err).Str("cron", s.cfg.Cron).Msg("next cron tick failed, using interval")
		return s.cfg.Interval
	}
	return next.Sub(now)
}

// SweepOnce runs a single cycle. Errors are logged and returned; the
// background loop ignores them and tries again on the next tick.
func (s *Sweeper) SweepOnce(ctx context.Context) (Result, error) {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	start := time.Now()
	now := s.now()
	cutoff := now.Add(-s.cfg.TTL)

	hidden, changed, err := s.store.ApplyUserRetention(ctx, cutoff, now)
	if err != nil {
		err = fmt.Errorf("apply user retention: %w", err)
		s.fail(err, start)
		return Result{}, err
	}
	res := Result{Hidden: hidden, ThreadsRefreshed: changed}

	metrics.RecordSweep(hidden, time.Since(start), nil)
	ev := s.log.Debug()
	if hidden > 0 {
		ev = s.log.Info()
	}
	ev.Int64("hidden", hidden).
		Int64("threads_refreshed", changed).
		Time("cutoff", cutoff).
		Msg("retention sweep completed")
	return res, nil
}

func (s *Sweeper) fail(err error, start time.Time) {
	metrics.RecordSweep(0, time.Since(start), err)
	s.log.Error().Err(err).Msg("retention sweep failed")
}
