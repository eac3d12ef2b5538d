package services

import (
	"context"
	"sync"
	"time"

	"github.com/arnold/gutgoals-api/internal/goals"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Notifier hears about goals added by the scheduler.
type Notifier interface {
	GoalsReplenished(ctx context.Context, userID uuid.UUID, active []goals.Goal, added int)
}

type pendingRun struct {
	at    time.Time
	timer *time.Timer
}

// Scheduler processes a user's replacement queue when its earliest entry
// matures, instead of waiting for the next client refresh. It keeps at
// most one timer per user.
type Scheduler struct {
	goals     *goals.Manager
	notifiers []Notifier
	log       *zap.Logger
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	pending map[uuid.UUID]*pendingRun
	stopped bool
	wg      sync.WaitGroup
}

func NewScheduler(m *goals.Manager, log *zap.Logger, notifiers ...Notifier) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		goals:     m,
		notifiers: notifiers,
		log:       log,
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
		pending:   make(map[uuid.UUID]*pendingRun),
	}
}

// Schedule arms a run for userID at at. An already armed earlier run wins.
func (s *Scheduler) Schedule(userID uuid.UUID, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	if p, ok := s.pending[userID]; ok {
		if !p.at.After(at) {
			return
		}
		p.timer.Stop()
	}

	delay := at.Sub(s.now())
	if delay < 0 {
		delay = 0
	}
	p := &pendingRun{at: at}
	p.timer = time.AfterFunc(delay, func() { s.fire(userID, p) })
	s.pending[userID] = p
}

// ScheduleFromQueue arms a run at the user's next maturation, if any.
func (s *Scheduler) ScheduleFromQueue(ctx context.Context, userID uuid.UUID) error {
	at, ok, err := s.goals.For(userID).NextMaturation(ctx)
	if err != nil {
		return err
	}
	if ok {
		s.Schedule(userID, at)
	}
	return nil
}

// Resume re-arms timers for users whose queues survived a restart.
func (s *Scheduler) Resume(ctx context.Context, userIDs []uuid.UUID) {
	for _, id := range userIDs {
		if err := s.ScheduleFromQueue(ctx, id); err != nil {
			s.log.Warn("Failed to resume goal schedule", zap.Stringer("user_id", id), zap.Error(err))
		}
	}
}

// Pending reports whether a run is armed for userID and when.
func (s *Scheduler) Pending(userID uuid.UUID) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[userID]
	if !ok {
		return time.Time{}, false
	}
	return p.at, true
}

// Stop cancels armed timers and waits for running ones.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for id, p := range s.pending {
		p.timer.Stop()
		delete(s.pending, id)
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) fire(userID uuid.UUID, p *pendingRun) {
	s.mu.Lock()
	if s.stopped || s.pending[userID] != p {
		s.mu.Unlock()
		return
	}
	delete(s.pending, userID)
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	store := s.goals.For(userID)
	active, added, err := store.Replenish(s.ctx)
	if err != nil {
		s.log.Error("Scheduled goal replenish failed", zap.Stringer("user_id", userID), zap.Error(err))
		return
	}

	if added > 0 {
		for _, n := range s.notifiers {
			n.GoalsReplenished(s.ctx, userID, active, added)
		}
	}

	if err := s.ScheduleFromQueue(s.ctx, userID); err != nil {
		s.log.Warn("Failed to re-arm goal schedule", zap.Stringer("user_id", userID), zap.Error(err))
	}
}
