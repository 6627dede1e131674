package whitelist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lumenloft/doorman/internal/models"
	"github.com/lumenloft/doorman/pkg/logctx"
)

// Service manages revocation exemptions. An active entry shields the user
// from the sweep's access revocation; it never grants access by itself.
type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func New(db *gorm.DB, log *zap.SugaredLogger) *Service {
	return &Service{db: db, log: log}
}

// IsExempt reports whether the user holds an unrevoked entry.
func (s *Service) IsExempt(ctx context.Context, telegramID int64) (bool, error) {
	var entry models.WhitelistEntry
	err := s.db.WithContext(ctx).First(&entry, telegramID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("check whitelist: %w", err)
	}
	return entry.Active(), nil
}

// Grant creates or re-activates an entry. Re-granting a revoked entry clears
// the revocation.
func (s *Service) Grant(ctx context.Context, telegramID int64, source string, note *string) error {
	if source == "" {
		source = "manual"
	}
	entry := &models.WhitelistEntry{
		TelegramID: telegramID,
		Source:     source,
		Note:       note,
		GrantedAt:  time.Now().UTC(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "telegram_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"source":     source,
			"note":       note,
			"granted_at": entry.GrantedAt,
			"revoked_at": nil,
		}),
	}).Create(entry).Error
	if err != nil {
		return fmt.Errorf("grant whitelist entry %d: %w", telegramID, err)
	}
	logctx.FromCtx(ctx, s.log).Infow("whitelist entry granted",
		"telegram_id", telegramID, "source", source)
	return nil
}

// Revoke disables the entry. Revoking an unknown id is a no-op.
func (s *Service) Revoke(ctx context.Context, telegramID int64) error {
	err := s.db.WithContext(ctx).Model(&models.WhitelistEntry{}).
		Where("telegram_id = ? AND revoked_at IS NULL", telegramID).
		Update("revoked_at", time.Now().UTC()).Error
	if err != nil {
		return fmt.Errorf("revoke whitelist entry %d: %w", telegramID, err)
	}
	return nil
}

// Burn consumes a one-shot entry when the user joins through it. Returns
// whether an active entry was consumed.
func (s *Service) Burn(ctx context.Context, telegramID int64) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.WhitelistEntry{}).
		Where("telegram_id = ? AND revoked_at IS NULL AND source = ?", telegramID, "one_shot").
		Update("revoked_at", time.Now().UTC())
	if res.Error != nil {
		return false, fmt.Errorf("burn whitelist entry %d: %w", telegramID, res.Error)
	}
	if res.RowsAffected > 0 {
		logctx.FromCtx(ctx, s.log).Infow("whitelist entry burned", "telegram_id", telegramID)
	}
	return res.RowsAffected > 0, nil
}

// List returns entries for the admin surface, active first, newest first.
func (s *Service) List(ctx context.Context, includeRevoked bool, limit, offset int) ([]*models.WhitelistEntry, int64, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := s.db.WithContext(ctx).Model(&models.WhitelistEntry{})
	if !includeRevoked {
		q = q.Where("revoked_at IS NULL")
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count whitelist: %w", err)
	}
	var entries []*models.WhitelistEntry
	err := q.Order("revoked_at IS NOT NULL, granted_at DESC").
		Limit(limit).Offset(offset).
		Find(&entries).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list whitelist: %w", err)
	}
	return entries, total, nil
}

var Module = fx.Options(
	fx.Provide(New),
)
