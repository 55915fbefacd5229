package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/floroz/gavel-auctioneer/internal/domain/closing"
	"github.com/floroz/gavel-auctioneer/internal/domain/items"
	"github.com/floroz/gavel-auctioneer/internal/metrics"
	"github.com/floroz/gavel-auctioneer/pkg/clock"
)

const (
	DefaultSweepPeriod      = time.Hour
	DefaultSweepBatchSize   = 100
	DefaultSweepConcurrency = 4
)

// SweepConfig tunes the reconciliation pass
type SweepConfig struct {
	Period      time.Duration
	BatchSize   int
	Concurrency int
}

func (c SweepConfig) withDefaults() SweepConfig {
	if c.Period <= 0 {
		c.Period = DefaultSweepPeriod
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultSweepBatchSize
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultSweepConcurrency
	}
	return c
}

// Report summarizes one sweep pass
type Report struct {
	Overdue       int
	Resolved      int
	NoBids        int
	AlreadyClosed int
	Failed        int
}

// Sweeper closes every open item whose deadline has passed, on a fixed period
type Sweeper struct {
	lister OverdueLister
	closer Closer
	clock  clock.Clock
	logger *slog.Logger
	cfg    SweepConfig

	cron    *cron.Cron
	running sync.Mutex
}

func NewSweeper(lister OverdueLister, closer Closer, clk clock.Clock, cfg SweepConfig, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		lister: lister,
		closer: closer,
		clock:  clk,
		logger: logger,
		cfg:    cfg.withDefaults(),
	}
}

// Start runs one pass immediately and then one every period until Stop.
// Passes never overlap; a tick that arrives while a pass is running is skipped.
func (s *Sweeper) Start(ctx context.Context) {
	s.cron = cron.New()
	s.cron.Schedule(cron.Every(s.cfg.Period), cron.FuncJob(func() { s.tick(ctx) }))
	s.cron.Start()
	go s.tick(ctx)

	s.logger.Info("Sweep reconciler started", "period", s.cfg.Period)
}

// Stop halts the schedule and waits for a running pass to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.running.Lock()
	defer s.running.Unlock()
	s.logger.Info("Sweep reconciler stopped")
}

func (s *Sweeper) tick(ctx context.Context) {
	if !s.running.TryLock() {
		s.logger.Warn("Previous sweep still running, skipping")
		return
	}
	defer s.running.Unlock()

	if ctx.Err() != nil {
		return
	}
	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error("Sweep failed", "error", err)
	}
}

// RunOnce closes the items that are overdue as of now. A failure on one item
// is logged and counted; it stays open and is retried on the next pass. The
// returned error is only set when the overdue items could not be listed.
func (s *Sweeper) RunOnce(ctx context.Context) (Report, error) {
	timer := prometheus.NewTimer(metrics.SweepDuration)
	defer timer.ObserveDuration()

	var (
		report Report
		mu     sync.Mutex
		after  *items.OverdueCursor
	)
	now := s.clock.Now()

	for {
		batch, err := s.lister.ListOpenOverdueItems(ctx, now, after, s.cfg.BatchSize)
		if err != nil {
			return report, err
		}
		if len(batch) == 0 {
			break
		}
		// Items that fail stay open; the cursor steps past them so the next
		// page holds only items not yet attempted in this pass.
		after = items.CursorAfter(batch[len(batch)-1])
		report.Overdue += len(batch)

		g := new(errgroup.Group)
		g.SetLimit(s.cfg.Concurrency)
		for _, item := range batch {
			itemID := item.ID
			g.Go(func() error {
				res, err := s.closer.Close(ctx, itemID, closing.TriggerSweep)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					report.Failed++
					if !errors.Is(err, closing.ErrNotYetDue) {
						s.logger.Error("Failed to close overdue item", "item_id", itemID, "error", err)
					}
					return nil
				}
				switch res.Outcome {
				case closing.OutcomeResolved:
					report.Resolved++
				case closing.OutcomeResolvedNoBids:
					report.NoBids++
				case closing.OutcomeAlreadyClosed:
					report.AlreadyClosed++
				}
				return nil
			})
		}
		_ = g.Wait()

		if len(batch) < s.cfg.BatchSize || ctx.Err() != nil {
			break
		}
	}

	metrics.SweepOverdueItems.Set(float64(report.Overdue))
	if report.Overdue > 0 {
		s.logger.Info("Sweep completed",
			"overdue", report.Overdue,
			"resolved", report.Resolved,
			"no_bids", report.NoBids,
			"already_closed", report.AlreadyClosed,
			"failed", report.Failed,
		)
	}
	return report, nil
}
