package ledger

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/lumenloft/doorman/internal/models"
	"github.com/lumenloft/doorman/pkg/types"
)

// Revocation bookkeeping. An expired row leaves the open set, so a failed
// platform revocation would otherwise be invisible to the next sweep. The
// flag keeps it findable until the revocation lands.

func (s *Service) MarkRevokePending(ctx context.Context, subID string) error {
	err := s.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("id = ?", subID).
		Update("extra", gorm.Expr("extra || '{\"revoke_pending\": true}'::jsonb")).Error
	if err != nil {
		return fmt.Errorf("mark revoke pending: %w", err)
	}
	return nil
}

func (s *Service) ClearRevokePending(ctx context.Context, subID string) error {
	err := s.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("id = ?", subID).
		Update("extra", gorm.Expr("extra - 'revoke_pending'")).Error
	if err != nil {
		return fmt.Errorf("clear revoke pending: %w", err)
	}
	return nil
}

// FindRevokePending lists expired rows whose access revocation has not
// succeeded yet.
func (s *Service) FindRevokePending(ctx context.Context) ([]*models.Subscription, error) {
	var subs []*models.Subscription
	err := s.db.WithContext(ctx).
		Where("status = ? AND extra->>'revoke_pending' = 'true'", types.SubscriptionStatusExpired).
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("find pending revocations: %w", err)
	}
	return subs, nil
}
