package payment

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lumenloft/doorman/internal/models"
	"github.com/lumenloft/doorman/pkg/logctx"
	"github.com/lumenloft/doorman/pkg/metrics"
	"github.com/lumenloft/doorman/pkg/tool"
)

// Source tags which ingestion path proposed the payment.
type Source string

const (
	SourceLive      Source = "live"
	SourceReconcile Source = "reconcile"
)

// RecordResult is the outcome of an idempotent insert. A duplicate is a
// normal result, not an error: Payment then carries the pre-existing row so
// callers can still finalize access for a re-delivered real payment.
type RecordResult struct {
	Inserted bool
	Payment  *models.Payment
}

type Store struct {
	db  *gorm.DB
	log *zap.SugaredLogger
	m   *metrics.Metrics
}

func NewStore(db *gorm.DB, log *zap.SugaredLogger, m *metrics.Metrics) *Store {
	return &Store{db: db, log: log, m: m}
}

// Record inserts the payment fact exactly once. Both ingestion paths (live
// webhook, reconciliation scan) race through here; ON CONFLICT DO NOTHING on
// the natural-key unique indexes resolves the race at the storage layer, so
// there is no check-then-insert window.
func (s *Store) Record(ctx context.Context, p *models.Payment, source Source) (*RecordResult, error) {
	if p.ChargeID == nil && p.ExternalTxID == nil {
		return nil, fmt.Errorf("payment for user %d has no natural key", p.UserID)
	}
	if p.ID == "" {
		p.ID = tool.GenerateUUIDV7()
	}

	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(p)
	if res.Error != nil {
		return nil, fmt.Errorf("insert payment: %w", res.Error)
	}

	if res.RowsAffected > 0 {
		s.m.PaymentsRecorded.WithLabelValues(string(source), "inserted").Inc()
		return &RecordResult{Inserted: true, Payment: p}, nil
	}

	existing, err := s.findByNaturalKey(ctx, p)
	if err != nil {
		return nil, err
	}
	logctx.FromCtx(ctx, s.log).Infow("duplicate payment absorbed",
		"user_id", p.UserID, "charge_id", p.ChargeID, "external_tx_id", p.ExternalTxID)
	s.m.PaymentsRecorded.WithLabelValues(string(source), "duplicate").Inc()
	return &RecordResult{Inserted: false, Payment: existing}, nil
}

func (s *Store) findByNaturalKey(ctx context.Context, p *models.Payment) (*models.Payment, error) {
	q := s.db.WithContext(ctx)
	switch {
	case p.ChargeID != nil && p.ExternalTxID != nil:
		q = q.Where("charge_id = ? OR external_tx_id = ?", *p.ChargeID, *p.ExternalTxID)
	case p.ChargeID != nil:
		q = q.Where("charge_id = ?", *p.ChargeID)
	default:
		q = q.Where("external_tx_id = ?", *p.ExternalTxID)
	}
	var existing models.Payment
	if err := q.First(&existing).Error; err != nil {
		return nil, fmt.Errorf("load existing payment: %w", err)
	}
	return &existing, nil
}

// HasExternalTxID reports whether the ledger-assigned id is already
// recorded; the reconciler uses it to skip known transactions before
// attempting the insert path.
func (s *Store) HasExternalTxID(ctx context.Context, txID string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Payment{}).
		Where("external_tx_id = ?", txID).Count(&count).Error; err != nil {
		return false, fmt.Errorf("check external tx id: %w", err)
	}
	return count > 0, nil
}
