package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/lumenloft/doorman/internal/models"
	"github.com/lumenloft/doorman/internal/platform/telegram"
	"github.com/lumenloft/doorman/pkg/logctx"
	"github.com/lumenloft/doorman/pkg/tool"
)

// MessageSender delivers one text to one user.
type MessageSender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Queue is the durable notification outbox. Sweep side effects enqueue here
// so a transition commits even when the messaging platform is down; the
// drain retries unsent rows on every pass.
type Queue struct {
	db  *gorm.DB
	log *zap.SugaredLogger
	tg  MessageSender
}

func NewQueue(db *gorm.DB, log *zap.SugaredLogger, tg MessageSender) *Queue {
	return &Queue{db: db, log: log, tg: tg}
}

func (q *Queue) Enqueue(ctx context.Context, userID int64, typ models.NotificationType, metadata map[string]any) error {
	n := &models.Notification{
		ID:       tool.GenerateUUIDV7(),
		UserID:   userID,
		Type:     typ,
		Metadata: datatypes.JSONMap(metadata),
	}
	if err := q.db.WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

// Drain sends up to limit unsent notifications, oldest first. A user who
// blocked the bot gets their row marked sent anyway; retrying is pointless.
func (q *Queue) Drain(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	var pending []*models.Notification
	err := q.db.WithContext(ctx).
		Where("sent = false").
		Order("created_at ASC").
		Limit(limit).
		Find(&pending).Error
	if err != nil {
		return 0, fmt.Errorf("load pending notifications: %w", err)
	}

	log := logctx.FromCtx(ctx, q.log)
	sent := 0
	for _, n := range pending {
		err := q.tg.SendMessage(ctx, n.UserID, renderMessage(n))
		var forbidden *telegram.ForbiddenError
		switch {
		case err == nil:
			sent++
		case errors.As(err, &forbidden):
			log.Infow("notification dropped, user unreachable",
				"user_id", n.UserID, "type", n.Type)
		default:
			log.Warnw("notification send failed",
				"user_id", n.UserID, "type", n.Type, "err", err)
			continue
		}

		now := time.Now().UTC()
		if err := q.db.WithContext(ctx).Model(&models.Notification{}).
			Where("id = ?", n.ID).
			Updates(map[string]any{"sent": true, "sent_at": now}).Error; err != nil {
			log.Errorw("mark notification sent failed", "id", n.ID, "err", err)
		}
	}
	return sent, nil
}

func renderMessage(n *models.Notification) string {
	switch n.Type {
	case models.NotificationTypePaymentReceived:
		return "Payment received. Your access is active, welcome aboard!"
	case models.NotificationTypeGraceStarted:
		until, _ := n.Metadata["grace_until"].(string)
		if until != "" {
			return fmt.Sprintf("Your subscription has expired. You keep access until %s. Renew now to stay in the group.", until)
		}
		return "Your subscription has expired. Renew within the next two days to keep your access."
	case models.NotificationTypeExpired:
		return "Your subscription has ended and group access was removed. You can rejoin any time by renewing."
	case models.NotificationTypeReminder:
		if days, ok := n.Metadata["days_left"].(float64); ok && days >= 1 {
			return fmt.Sprintf("Heads up: your subscription ends in %d day(s). Renew to keep uninterrupted access.", int(days))
		}
		return "Heads up: your subscription is about to end. Renew to keep uninterrupted access."
	default:
		return "You have an update on your subscription."
	}
}
