package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"firebase.google.com/go/v4/messaging"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/arnold/gutgoals-api/internal/database"
	"github.com/arnold/gutgoals-api/internal/goals"
	"github.com/arnold/gutgoals-api/internal/kv"
	"github.com/arnold/gutgoals-api/internal/models"
)

type replenishEvent struct {
	userID uuid.UUID
	active []goals.Goal
	added  int
}

type chanNotifier chan replenishEvent

func (c chanNotifier) GoalsReplenished(_ context.Context, userID uuid.UUID, active []goals.Goal, added int) {
	c <- replenishEvent{userID: userID, active: active, added: added}
}

type messengerMock struct {
	mu   sync.Mutex
	sent []*messaging.Message
	err  error
}

func (m *messengerMock) Send(_ context.Context, msg *messaging.Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.sent = append(m.sent, msg)
	return "msg-id", nil
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"), logger.Silent)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// ─── Scheduler ──────────────────────────────────────────────────────────────

func TestScheduler_ReplenishesAfterCooldown(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := goals.NewManager(kv.NewMemory(), goals.WithCooldown(50*time.Millisecond))
	events := make(chanNotifier, 1)
	s := NewScheduler(m, zap.NewNop(), events)
	defer s.Stop()

	userID := uuid.New()
	ctx := context.Background()
	initial, err := m.For(userID).Initialize(ctx)
	require.NoError(t, err)
	_, err = m.For(userID).DeleteAndQueueReplacement(ctx, initial[0].ID)
	require.NoError(t, err)

	require.NoError(t, s.ScheduleFromQueue(ctx, userID))
	_, armed := s.Pending(userID)
	assert.True(t, armed)

	select {
	case ev := <-events:
		assert.Equal(t, userID, ev.userID)
		assert.Equal(t, 1, ev.added)
		assert.Len(t, ev.active, 3)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not replenish goals")
	}

	q, err := m.For(userID).Queue(ctx)
	require.NoError(t, err)
	assert.Empty(t, q)
}

func TestScheduler_EarlierRunWins(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewScheduler(goals.NewManager(kv.NewMemory()), zap.NewNop())
	defer s.Stop()

	userID := uuid.New()
	soon := time.Now().Add(time.Hour)
	later := soon.Add(time.Hour)

	s.Schedule(userID, later)
	s.Schedule(userID, soon)
	s.Schedule(userID, later)

	at, ok := s.Pending(userID)
	require.True(t, ok)
	assert.True(t, soon.Equal(at))
}

func TestScheduler_EmptyQueueArmsNothing(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewScheduler(goals.NewManager(kv.NewMemory()), zap.NewNop())
	defer s.Stop()

	userID := uuid.New()
	require.NoError(t, s.ScheduleFromQueue(context.Background(), userID))
	_, ok := s.Pending(userID)
	assert.False(t, ok)
}

func TestScheduler_StopCancelsTimers(t *testing.T) {
	defer goleak.VerifyNone(t)

	events := make(chanNotifier, 1)
	s := NewScheduler(goals.NewManager(kv.NewMemory()), zap.NewNop(), events)

	userID := uuid.New()
	s.Schedule(userID, time.Now().Add(20*time.Millisecond))
	s.Stop()

	_, ok := s.Pending(userID)
	assert.False(t, ok)

	s.Schedule(userID, time.Now())
	_, ok = s.Pending(userID)
	assert.False(t, ok)

	select {
	case <-events:
		t.Fatal("stopped scheduler fired")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestScheduler_Resume(t *testing.T) {
	defer goleak.VerifyNone(t)

	backend := kv.NewMemory()
	m := goals.NewManager(backend)
	userID := uuid.New()
	_, err := m.For(userID).DeleteAndQueueReplacement(context.Background(), "3")
	require.NoError(t, err)

	s := NewScheduler(m, zap.NewNop())
	defer s.Stop()
	s.Resume(context.Background(), []uuid.UUID{userID, uuid.New()})

	at, ok := s.Pending(userID)
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(goals.DefaultCooldown), at, time.Minute)
}

// ─── Push ───────────────────────────────────────────────────────────────────

func TestPush_DisabledWithoutServiceAccount(t *testing.T) {
	p := NewPush(context.Background(), "", nil, zap.NewNop())
	assert.False(t, p.Enabled())
	assert.NoError(t, p.SendToUser(context.Background(), uuid.New(), "t", "b", nil))
}

func TestPush_GoalsReplenished(t *testing.T) {
	db := openTestDB(t)
	withToken := models.User{Email: "a@example.com", FCMToken: "device-1"}
	withoutToken := models.User{Email: "b@example.com"}
	require.NoError(t, db.Create(&withToken).Error)
	require.NoError(t, db.Create(&withoutToken).Error)

	client := &messengerMock{}
	p := NewPushWithClient(client, db, zap.NewNop())
	newest, err := goals.Lookup("6")
	require.NoError(t, err)
	active := []goals.Goal{{ID: "1"}, {ID: "2"}, newest}

	p.GoalsReplenished(context.Background(), withToken.ID, active, 1)
	p.GoalsReplenished(context.Background(), withoutToken.ID, active, 1)
	p.GoalsReplenished(context.Background(), withToken.ID, active, 0)

	require.Len(t, client.sent, 1)
	msg := client.sent[0]
	assert.Equal(t, "device-1", msg.Token)
	assert.Equal(t, "New goal unlocked", msg.Notification.Title)
	assert.Contains(t, msg.Notification.Body, newest.Title)
	assert.Equal(t, "6", msg.Data["goalId"])
}

func TestPush_SendFailure(t *testing.T) {
	db := openTestDB(t)
	user := models.User{Email: "a@example.com", FCMToken: "device-1"}
	require.NoError(t, db.Create(&user).Error)

	cause := errors.New("unavailable")
	p := NewPushWithClient(&messengerMock{err: cause}, db, zap.NewNop())

	err := p.SendToUser(context.Background(), user.ID, "t", "b", nil)
	assert.ErrorIs(t, err, cause)
}
