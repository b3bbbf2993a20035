// Package sweeper expires pending reservations whose hold has lapsed and
// returns their stock to the ledger.
package sweeper

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/benjaminabbitt/medreserve/medreserve"
	"github.com/benjaminabbitt/medreserve/reservation"
)

const (
	DefaultInterval = 30 * time.Second
	DefaultBatch    = 100
)

// Expirer is the slice of the reservation manager the sweeper drives.
type Expirer interface {
	ListDue(ctx context.Context, limit int) ([]reservation.Reservation, error)
	Expire(ctx context.Context, id string) (reservation.Reservation, error)
}

// Result counts the outcome of one sweep.
type Result struct {
	Expired int
	// Skipped counts reservations that left pending between listing and expiry.
	Skipped int
	Failed  int
}

type Sweeper struct {
	expirer  Expirer
	interval time.Duration
	batch    int
	logger   *zap.Logger
}

type Option func(*Sweeper)

func WithInterval(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithBatch(n int) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.batch = n
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Sweeper) { s.logger = logger }
}

func New(expirer Expirer, opts ...Option) *Sweeper {
	s := &Sweeper{
		expirer:  expirer,
		interval: DefaultInterval,
		batch:    DefaultBatch,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("expiry sweeper started", zap.Duration("interval", s.interval), zap.Int("batch", s.batch))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("expiry sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("sweep failed", zap.Error(err))
			}
		}
	}
}

// SweepOnce expires one batch of lapsed reservations. Reservations that a
// concurrent confirm or cancel already moved are skipped.
func (s *Sweeper) SweepOnce(ctx context.Context) (Result, error) {
	due, err := s.expirer.ListDue(ctx, s.batch)
	if err != nil {
		return Result{}, err
	}

	var res Result
	for _, r := range due {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		_, err := s.expirer.Expire(ctx, r.ID)
		switch {
		case err == nil:
			res.Expired++
		case medreserve.IsTransitionRejected(err):
			res.Skipped++
		default:
			res.Failed++
			s.logger.Warn("reservation expiry failed", zap.String("reservation_id", r.ID), zap.Error(err))
		}
	}
	if len(due) > 0 {
		s.logger.Info("sweep finished",
			zap.Int("expired", res.Expired),
			zap.Int("skipped", res.Skipped),
			zap.Int("failed", res.Failed),
		)
	}
	return res, nil
}
