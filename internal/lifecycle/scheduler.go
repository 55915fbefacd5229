package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/floroz/gavel-auctioneer/internal/domain/closing"
	"github.com/floroz/gavel-auctioneer/internal/metrics"
	"github.com/floroz/gavel-auctioneer/pkg/clock"
)

// Scheduler fires the Closer once per item at its deadline. Timers live only
// in this process and are lost on restart.
type Scheduler struct {
	ctx     context.Context
	closer  Closer
	clock   clock.Clock
	logger  *slog.Logger
	timeout time.Duration

	mu      sync.Mutex
	timers  map[uuid.UUID]clock.Timer
	stopped bool
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler whose closings run under ctx. timeout
// bounds each closing call; zero means no bound.
func NewScheduler(ctx context.Context, closer Closer, clk clock.Clock, timeout time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		ctx:     ctx,
		closer:  closer,
		clock:   clk,
		logger:  logger,
		timeout: timeout,
		timers:  make(map[uuid.UUID]clock.Timer),
	}
}

// Arm schedules the closing of itemID at deadline. A second Arm for the same
// item is ignored, and a deadline already in the past fires right away.
func (s *Scheduler) Arm(itemID uuid.UUID, deadline time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	if _, ok := s.timers[itemID]; ok {
		return
	}

	delay := deadline.Sub(s.clock.Now())
	if delay < 0 {
		delay = 0
	}
	s.timers[itemID] = s.clock.AfterFunc(delay, func() { s.fire(itemID) })
	metrics.ArmedTimers.Inc()

	s.logger.Debug("Closing timer armed", "item_id", itemID, "deadline", deadline)
}

// Armed returns the number of timers waiting to fire.
func (s *Scheduler) Armed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels pending timers and waits for closings already in flight.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for id, t := range s.timers {
		t.Stop()
		metrics.ArmedTimers.Dec()
		delete(s.timers, id)
	}
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Scheduler) fire(itemID uuid.UUID) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	delete(s.timers, itemID)
	metrics.ArmedTimers.Dec()
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	ctx := s.ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	_, err := s.closer.Close(ctx, itemID, closing.TriggerTimer)
	switch {
	case err == nil:
	case errors.Is(err, closing.ErrNotYetDue):
		s.logger.Warn("Closing timer fired early, leaving item to the sweep", "item_id", itemID)
	default:
		s.logger.Error("Scheduled closing failed, leaving item to the sweep", "item_id", itemID, "error", err)
	}
}
