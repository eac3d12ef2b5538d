package goals

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/arnold/gutgoals-api/internal/kv"
	"go.uber.org/zap"
)

// Persisted keys.
const (
	CurrentGoalsKey      = "current_goals"
	DeletedGoalsQueueKey = "deleted_goals_queue"
)

// QueueEntry records one dismissed goal waiting out the cooldown.
// DeletionTime is in epoch milliseconds.
type QueueEntry struct {
	GoalID       string `json:"goalId"`
	DeletionTime int64  `json:"deletionTime"`
}

func (e QueueEntry) DeletedAt() time.Time {
	return time.UnixMilli(e.DeletionTime)
}

// Store owns one user's active goal set and replacement queue. All
// operations hold the store lock for their whole read-modify-write.
type Store struct {
	mu sync.Mutex
	kv kv.Store

	now              func() time.Time
	rng              Rand
	log              *zap.Logger
	cooldown         time.Duration
	activeCount      int
	retainUnconsumed bool
	observer         Observer
}

func NewStore(store kv.Store, opts ...Option) *Store {
	s := &Store{
		kv:          store,
		now:         time.Now,
		log:         zap.NewNop(),
		cooldown:    DefaultCooldown,
		activeCount: DefaultActiveCount,
		observer:    nopObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return s
}

func (s *Store) Cooldown() time.Duration {
	return s.cooldown
}

// Initialize returns the active set, drawing a fresh one when it is empty.
// An unreadable set is reported as empty and left untouched.
func (s *Store) Initialize(ctx context.Context) ([]Goal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.loadGoals(ctx)
	if err != nil {
		s.log.Error("Failed to get current goals", zap.Error(err))
		return []Goal{}, nil
	}
	if len(current) > 0 {
		return current, nil
	}

	target := s.activeCount
	if target > len(masterCatalog) {
		target = len(masterCatalog)
	}
	chosen := make(map[string]struct{}, target)
	for len(chosen) < target {
		chosen[s.pick(nil).ID] = struct{}{}
	}

	current = make([]Goal, 0, target)
	for _, g := range masterCatalog {
		if _, ok := chosen[g.ID]; ok {
			current = append(current, g)
		}
	}

	if err := s.saveGoals(ctx, current); err != nil {
		s.log.Error("Failed to save goals", zap.Error(err))
	}
	return current, nil
}

// DeleteAndQueueReplacement removes goalID from the active set and queues
// a replacement. The queue entry is written even when goalID was not active.
func (s *Store) DeleteAndQueueReplacement(ctx context.Context, goalID string) ([]Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.loadGoals(ctx)
	if err != nil {
		return nil, fmt.Errorf("goals: delete %s: %w", goalID, err)
	}

	remaining := make([]Goal, 0, len(current))
	for _, g := range current {
		if g.ID != goalID {
			remaining = append(remaining, g)
		}
	}
	if err := s.saveGoals(ctx, remaining); err != nil {
		return nil, fmt.Errorf("goals: delete %s: %w", goalID, err)
	}

	queue, err := s.loadQueue(ctx)
	if err != nil {
		return nil, fmt.Errorf("goals: delete %s: %w", goalID, err)
	}
	queue = append(queue, QueueEntry{GoalID: goalID, DeletionTime: s.now().UnixMilli()})
	if err := s.saveQueue(ctx, queue); err != nil {
		return nil, fmt.Errorf("goals: delete %s: %w", goalID, err)
	}

	s.observer.GoalDismissed()
	s.log.Debug("Goal dismissed", zap.String("goal_id", goalID), zap.Int("queued", len(queue)))
	return remaining, nil
}

// ProcessReplacementQueue backfills open slots with one new goal per
// matured queue entry, then drops matured entries from the queue.
func (s *Store) ProcessReplacementQueue(ctx context.Context) ([]Goal, error) {
	current, _, err := s.Replenish(ctx)
	return current, err
}

// Replenish is ProcessReplacementQueue that also reports how many goals
// were added.
func (s *Store) Replenish(ctx context.Context) ([]Goal, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	queue, err := s.loadQueue(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("goals: process queue: %w", err)
	}
	current, err := s.loadGoals(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("goals: process queue: %w", err)
	}

	now := s.now().UnixMilli()
	cooldown := s.cooldown.Milliseconds()

	var eligible, young []QueueEntry
	for _, e := range queue {
		if now-e.DeletionTime >= cooldown {
			eligible = append(eligible, e)
		} else {
			young = append(young, e)
		}
	}

	added := 0
	if slots := s.activeCount - len(current); slots > 0 {
		n := min(slots, len(eligible))
		for i := 0; i < n; i++ {
			current = append(current, s.pick(ids(current)))
		}
		added = n
	}

	if added > 0 {
		if err := s.saveGoals(ctx, current); err != nil {
			return nil, 0, fmt.Errorf("goals: process queue: %w", err)
		}
		s.observer.GoalsBackfilled(added)
	}

	remaining := young
	if s.retainUnconsumed && added < len(eligible) {
		remaining = append(append([]QueueEntry{}, eligible[added:]...), young...)
	}

	if len(remaining) != len(queue) {
		if err := s.saveQueue(ctx, remaining); err != nil {
			return nil, 0, fmt.Errorf("goals: process queue: %w", err)
		}
		if dropped := len(eligible) - added - (len(remaining) - len(young)); dropped > 0 {
			s.observer.QueueEntriesDropped(dropped)
			s.log.Warn("Matured queue entries dropped without a replacement",
				zap.Int("dropped", dropped), zap.Int("open_slots", s.activeCount-len(current)))
		}
	}

	if added > 0 {
		s.log.Info("Goals backfilled", zap.Int("added", added), zap.Int("queued", len(remaining)))
	}
	return current, added, nil
}

// ClearAll removes the active set and the queue. Failures are logged only.
func (s *Store) ClearAll(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Remove(ctx, CurrentGoalsKey); err != nil {
		s.log.Error("Failed to clear all goals", zap.Error(err))
		return
	}
	if err := s.kv.Remove(ctx, DeletedGoalsQueueKey); err != nil {
		s.log.Error("Failed to clear all goals", zap.Error(err))
	}
}

// Queue returns the pending replacement entries in insertion order.
func (s *Store) Queue(ctx context.Context) ([]QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	queue, err := s.loadQueue(ctx)
	if err != nil {
		return nil, fmt.Errorf("goals: queue: %w", err)
	}
	if queue == nil {
		queue = []QueueEntry{}
	}
	return queue, nil
}

// NextMaturation reports the earliest time a queued entry that has not yet
// matured crosses the cooldown. ok is false when no such entry exists.
func (s *Store) NextMaturation(ctx context.Context) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	queue, err := s.loadQueue(ctx)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("goals: next maturation: %w", err)
	}

	now := s.now()
	var next time.Time
	found := false
	for _, e := range queue {
		at := e.DeletedAt().Add(s.cooldown)
		if !at.After(now) {
			continue
		}
		if !found || at.Before(next) {
			next, found = at, true
		}
	}
	return next, found, nil
}

// pick draws uniformly from catalog goals not in excluded, or from the
// whole catalog when every goal is excluded.
func (s *Store) pick(excluded []string) Goal {
	available := make([]Goal, 0, len(masterCatalog))
	for _, g := range masterCatalog {
		if !contains(excluded, g.ID) {
			available = append(available, g)
		}
	}
	if len(available) == 0 {
		return masterCatalog[s.rng.Intn(len(masterCatalog))]
	}
	return available[s.rng.Intn(len(available))]
}

// loadGoals reads the active set. A set written before goals had a
// subtitle field is deleted and reported as empty; a null subtitle still
// counts as present.
func (s *Store) loadGoals(ctx context.Context) ([]Goal, error) {
	raw, ok, err := s.kv.Get(ctx, CurrentGoalsKey)
	if err != nil {
		return nil, err
	}
	if !ok || raw == "" {
		return []Goal{}, nil
	}

	var fields []map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fmt.Errorf("decode %s: %w", CurrentGoalsKey, err)
	}
	if len(fields) > 0 && !hasField(fields[0], "subtitle") {
		s.log.Info("Discarding goals stored in legacy format")
		if err := s.kv.Remove(ctx, CurrentGoalsKey); err != nil {
			return nil, err
		}
		return []Goal{}, nil
	}

	var goals []Goal
	if err := json.Unmarshal([]byte(raw), &goals); err != nil {
		return nil, fmt.Errorf("decode %s: %w", CurrentGoalsKey, err)
	}
	if goals == nil {
		goals = []Goal{}
	}
	return goals, nil
}

func (s *Store) saveGoals(ctx context.Context, goals []Goal) error {
	data, err := json.Marshal(goals)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, CurrentGoalsKey, string(data))
}

func (s *Store) loadQueue(ctx context.Context) ([]QueueEntry, error) {
	raw, ok, err := s.kv.Get(ctx, DeletedGoalsQueueKey)
	if err != nil {
		return nil, err
	}
	if !ok || raw == "" {
		return nil, nil
	}
	var queue []QueueEntry
	if err := json.Unmarshal([]byte(raw), &queue); err != nil {
		return nil, fmt.Errorf("decode %s: %w", DeletedGoalsQueueKey, err)
	}
	return queue, nil
}

func (s *Store) saveQueue(ctx context.Context, queue []QueueEntry) error {
	if queue == nil {
		queue = []QueueEntry{}
	}
	data, err := json.Marshal(queue)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, DeletedGoalsQueueKey, string(data))
}

func hasField(obj map[string]json.RawMessage, name string) bool {
	_, ok := obj[name]
	return ok
}
