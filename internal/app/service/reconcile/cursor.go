package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lumenloft/doorman/internal/models"
	cfgpkg "github.com/lumenloft/doorman/pkg/config"
)

// CursorStore persists the singleton scan-progress marker.
type CursorStore interface {
	// Get loads the cursor, seeding it one lookback window back on first use.
	Get(ctx context.Context) (*models.ReconcileCursor, error)
	// Advance moves the cursor forward. Never rewinds: a stale position
	// submitted after a concurrent advance is dropped.
	Advance(ctx context.Context, at time.Time, txID *string) error
}

type gormCursorStore struct {
	db       *gorm.DB
	lookback time.Duration
}

func NewCursorStore(db *gorm.DB, cfg *cfgpkg.Config) CursorStore {
	return &gormCursorStore{db: db, lookback: cfg.ReconcileLookback()}
}

func (s *gormCursorStore) Get(ctx context.Context) (*models.ReconcileCursor, error) {
	var cur models.ReconcileCursor
	err := s.db.WithContext(ctx).First(&cur, models.ReconcileCursorID).Error
	if err == nil {
		return &cur, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load reconcile cursor: %w", err)
	}

	seed := &models.ReconcileCursor{
		ID:       models.ReconcileCursorID,
		LastTxAt: time.Now().UTC().Add(-s.lookback),
	}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(seed).Error
	if err != nil {
		return nil, fmt.Errorf("seed reconcile cursor: %w", err)
	}
	// Re-read: a concurrent seeder may have won the conflict.
	if err := s.db.WithContext(ctx).First(&cur, models.ReconcileCursorID).Error; err != nil {
		return nil, fmt.Errorf("reload reconcile cursor: %w", err)
	}
	return &cur, nil
}

func (s *gormCursorStore) Advance(ctx context.Context, at time.Time, txID *string) error {
	err := s.db.WithContext(ctx).Model(&models.ReconcileCursor{}).
		Where("id = ? AND last_tx_at <= ?", models.ReconcileCursorID, at).
		Updates(map[string]any{
			"last_tx_at": at,
			"last_tx_id": txID,
		}).Error
	if err != nil {
		return fmt.Errorf("advance reconcile cursor: %w", err)
	}
	return nil
}
