package services

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/arnold/gutgoals-api/internal/goals"
	"github.com/arnold/gutgoals-api/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"gorm.io/gorm"
)

// Messenger is the part of the FCM client PushService uses.
type Messenger interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// PushService handles sending push notifications via Firebase Cloud Messaging
type PushService struct {
	client Messenger
	db     *gorm.DB
	log    *zap.Logger
}

// NewPush initializes the Firebase push notification service.
// Push stays disabled, without an error, when no service account is
// configured or Firebase cannot be initialized.
func NewPush(ctx context.Context, serviceAccountPath string, db *gorm.DB, log *zap.Logger) *PushService {
	p := &PushService{db: db, log: log}

	if serviceAccountPath == "" {
		log.Info("FCM: no service account configured, push notifications disabled")
		return p
	}

	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(serviceAccountPath))
	if err != nil {
		log.Warn("FCM: failed to initialize Firebase app", zap.Error(err))
		return p
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		log.Warn("FCM: failed to get messaging client", zap.Error(err))
		return p
	}

	p.client = client
	log.Info("FCM: push notifications enabled")
	return p
}

// NewPushWithClient is used when the messaging client is built elsewhere.
func NewPushWithClient(client Messenger, db *gorm.DB, log *zap.Logger) *PushService {
	return &PushService{client: client, db: db, log: log}
}

func (p *PushService) Enabled() bool {
	return p.client != nil
}

// SendToUser sends a push notification to a user by their ID.
// No-op if push is not configured or user has no FCM token.
func (p *PushService) SendToUser(ctx context.Context, userID uuid.UUID, title, body string, data map[string]string) error {
	if p.client == nil {
		return nil
	}

	var user models.User
	if err := p.db.WithContext(ctx).Select("fcm_token").First(&user, "id = ?", userID).Error; err != nil {
		return fmt.Errorf("push: load user %s: %w", userID, err)
	}

	if user.FCMToken == "" {
		return nil
	}

	msg := &messaging.Message{
		Token: user.FCMToken,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
	}

	if _, err := p.client.Send(ctx, msg); err != nil {
		return fmt.Errorf("push: send to %s: %w", userID, err)
	}
	return nil
}

// GoalsReplenished tells the user a new goal replaced one they dismissed.
func (p *PushService) GoalsReplenished(ctx context.Context, userID uuid.UUID, active []goals.Goal, added int) {
	if added <= 0 || len(active) == 0 {
		return
	}
	newest := active[len(active)-1]

	err := p.SendToUser(ctx, userID, "New goal unlocked", newest.Icon+" "+newest.Title, map[string]string{
		"type":   "goals_replenished",
		"goalId": newest.ID,
	})
	if err != nil {
		p.log.Warn("FCM: failed to notify user", zap.Stringer("user_id", userID), zap.Error(err))
	}
}
