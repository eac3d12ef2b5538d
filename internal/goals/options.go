package goals

import (
	"math/rand"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultActiveCount = 3
	DefaultCooldown    = 24 * time.Hour
)

// Rand is the source of uniform indexes used to draw goals. *rand.Rand
// satisfies it.
type Rand interface {
	Intn(n int) int
}

// Observer is told about rotation events. The metrics package implements it.
type Observer interface {
	GoalDismissed()
	GoalsBackfilled(n int)
	QueueEntriesDropped(n int)
}

type nopObserver struct{}

func (nopObserver) GoalDismissed()          {}
func (nopObserver) GoalsBackfilled(int)     {}
func (nopObserver) QueueEntriesDropped(int) {}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithRand sets the random source. A source shared between stores of a
// Manager must be safe for concurrent use.
func WithRand(r Rand) Option {
	return func(s *Store) { s.rng = r }
}

func WithSeed(seed int64) Option {
	return func(s *Store) { s.rng = rand.New(rand.NewSource(seed)) }
}

func WithLogger(log *zap.Logger) Option {
	return func(s *Store) { s.log = log }
}

func WithCooldown(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.cooldown = d
		}
	}
}

func WithActiveCount(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.activeCount = n
		}
	}
}

// WithRetainUnconsumed keeps matured queue entries that did not produce a
// replacement, so they can fill a slot on a later pass. Off by default:
// every matured entry is dropped once the queue is processed.
func WithRetainUnconsumed(retain bool) Option {
	return func(s *Store) { s.retainUnconsumed = retain }
}

func WithObserver(o Observer) Option {
	return func(s *Store) {
		if o != nil {
			s.observer = o
		}
	}
}
