// Package history keeps a user's analysed stool logs and derives the
// weekly health score shown next to the goals.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/arnold/gutgoals-api/internal/goals"
	"github.com/arnold/gutgoals-api/internal/kv"
)

const (
	LogsKey          = "poop_logs"
	LastTimestampKey = "last_poop_timestamp"
)

var ErrClearFailed = errors.New("failed to clear user data")

// UserDataKeys lists every key written on behalf of a user.
var UserDataKeys = []string{
	LastTimestampKey,
	LogsKey,
	goals.CurrentGoalsKey,
	goals.DeletedGoalsQueueKey,
}

type Entry struct {
	Appearance      string    `json:"appearance"`
	Color           string    `json:"color"`
	HealthScore     int       `json:"health_score"`
	Analysis        string    `json:"analysis"`
	Recommendations []string  `json:"recommendations"`
	Timestamp       time.Time `json:"timestamp"`
}

// UnmarshalJSON also accepts entries written with the older "score" field.
func (e *Entry) UnmarshalJSON(data []byte) error {
	type plain Entry
	aux := struct {
		*plain
		Score int `json:"score"`
	}{plain: (*plain)(e)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if e.HealthScore == 0 {
		e.HealthScore = aux.Score
	}
	return nil
}

// Log reads and writes one user's history. It holds no lock of its own; use
// ForUser to run it under the user's lock.
type Log struct {
	kv  kv.Store
	now func() time.Time
}

func New(store kv.Store, now func() time.Time) *Log {
	if now == nil {
		now = time.Now
	}
	return &Log{kv: store, now: now}
}

func (l *Log) List(ctx context.Context) ([]Entry, error) {
	raw, ok, err := l.kv.Get(ctx, LogsKey)
	if err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	if !ok || raw == "" {
		return []Entry{}, nil
	}
	var entries []Entry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("history: decode %s: %w", LogsKey, err)
	}
	return entries, nil
}

// Append stores e, stamping it with the current time if it has none.
func (l *Log) Append(ctx context.Context, e Entry) (Entry, error) {
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now().UTC()
	}

	entries, err := l.List(ctx)
	if err != nil {
		return Entry{}, err
	}
	entries = append(entries, e)

	data, err := json.Marshal(entries)
	if err != nil {
		return Entry{}, fmt.Errorf("history: encode: %w", err)
	}
	if err := l.kv.Set(ctx, LogsKey, string(data)); err != nil {
		return Entry{}, fmt.Errorf("history: append: %w", err)
	}
	if err := l.kv.Set(ctx, LastTimestampKey, e.Timestamp.Format(time.RFC3339Nano)); err != nil {
		return Entry{}, fmt.Errorf("history: append: %w", err)
	}
	return e, nil
}

func (l *Log) LastLoggedAt(ctx context.Context) (time.Time, bool, error) {
	raw, ok, err := l.kv.Get(ctx, LastTimestampKey)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("history: last timestamp: %w", err)
	}
	if !ok || raw == "" {
		return time.Time{}, false, nil
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("history: parse %s: %w", LastTimestampKey, err)
	}
	return ts, true, nil
}

// WeeklyScore averages the scores logged after local midnight seven days
// ago. ok is false when nothing was logged in that window.
func (l *Log) WeeklyScore(ctx context.Context) (int, bool, error) {
	entries, err := l.List(ctx)
	if err != nil {
		return 0, false, err
	}

	now := l.now()
	since := time.Date(now.Year(), now.Month(), now.Day()-7, 0, 0, 0, 0, now.Location())

	total, n := 0, 0
	for _, e := range entries {
		if e.Timestamp.After(since) {
			total += e.HealthScore
			n++
		}
	}
	if n == 0 {
		return 0, false, nil
	}
	return int(math.Round(float64(total) / float64(n))), true, nil
}

// ClearAllUserData removes every user key in one call.
func ClearAllUserData(ctx context.Context, store kv.Store) error {
	if err := store.RemoveMany(ctx, UserDataKeys...); err != nil {
		return fmt.Errorf("%w: %w", ErrClearFailed, err)
	}
	return nil
}

// ForUser runs fn with userID's log while holding the user's lock in m.
func ForUser(m *goals.Manager, userID uuid.UUID, now func() time.Time, fn func(l *Log) error) error {
	return m.WithUser(userID, func(store kv.Store) error {
		return fn(New(store, now))
	})
}

// ClearUser is ClearAllUserData for userID, run under the user's lock so an
// in-flight goal update cannot write its keys back afterwards.
func ClearUser(ctx context.Context, m *goals.Manager, userID uuid.UUID) error {
	return m.WithUser(userID, func(store kv.Store) error {
		return ClearAllUserData(ctx, store)
	})
}
