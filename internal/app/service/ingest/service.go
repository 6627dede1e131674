package ingest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lumenloft/doorman/internal/app/service/finalizer"
	"github.com/lumenloft/doorman/internal/app/service/funnel"
	"github.com/lumenloft/doorman/internal/app/service/ledger"
	"github.com/lumenloft/doorman/internal/app/service/payment"
	"github.com/lumenloft/doorman/internal/models"
	"github.com/lumenloft/doorman/pkg/logctx"
	"github.com/lumenloft/doorman/pkg/types"
)

// Service is the live ingestion path: validated payment events flow through
// the idempotent insert, the ledger extension, and the async access
// finalization. A crash between any two steps is safe to re-run from the
// top: the insert dedups, the ledger ignores re-applied payments, and the
// finalizer is retryable by construction.
type Service struct {
	db     *gorm.DB
	log    *zap.SugaredLogger
	store  *payment.Store
	led    *ledger.Service
	fin    *finalizer.Service
	events *funnel.Service
}

func New(db *gorm.DB, log *zap.SugaredLogger, store *payment.Store, led *ledger.Service, fin *finalizer.Service, events *funnel.Service) *Service {
	return &Service{db: db, log: log, store: store, led: led, fin: fin, events: events}
}

// Submit processes one payment event end to end. Duplicate deliveries of a
// real payment still launch finalization: the user paid, access must follow.
func (s *Service) Submit(ctx context.Context, evt *types.PaymentEvent) error {
	log := logctx.FromCtx(ctx, s.log).With("user_id", evt.UserID)

	if err := s.upsertUser(ctx, evt); err != nil {
		return err
	}

	p := paymentFromEvent(evt)
	res, err := s.store.Record(ctx, p, payment.SourceLive)
	if err != nil {
		return fmt.Errorf("record payment: %w", err)
	}

	tr, err := s.led.Apply(ctx, res.Payment, res.Inserted)
	if err != nil {
		return err
	}

	if res.Inserted {
		log.Infow("payment accepted",
			"payment_id", res.Payment.ID, "kind", evt.Kind, "expires_at", tr.ExpiresAt)
		s.events.LogUser(ctx, evt.UserID, "payment_success", map[string]any{
			"payment_id": res.Payment.ID,
			"amount":     evt.Amount,
			"kind":       string(evt.Kind),
		})
	} else {
		s.events.LogUser(ctx, evt.UserID, "payment_duplicate", map[string]any{
			"payment_id": res.Payment.ID,
		})
	}

	s.fin.Launch(evt.UserID)
	return nil
}

func paymentFromEvent(evt *types.PaymentEvent) *models.Payment {
	p := &models.Payment{
		UserID:       evt.UserID,
		ChargeID:     evt.ChargeID,
		ExternalTxID: evt.ExternalTxID,
		Amount:       evt.Amount,
		Kind:         evt.Kind,
		IsRecurring:  evt.Kind.Recurring(),
	}
	if evt.InvoicePayload != "" {
		payload := evt.InvoicePayload
		p.InvoicePayload = &payload
	}
	if evt.RecurringExpiry != nil {
		hint := time.Unix(*evt.RecurringExpiry, 0).UTC()
		p.ExpiryHint = &hint
	}
	return p
}

func (s *Service) upsertUser(ctx context.Context, evt *types.PaymentEvent) error {
	now := time.Now().UTC()
	user := &models.User{
		UserID:     evt.UserID,
		Status:     models.UserStatusActive,
		LastSeenAt: now,
	}
	if evt.Username != "" {
		user.Username = &evt.Username
	}
	if evt.FirstName != "" {
		user.FirstName = &evt.FirstName
	}
	if evt.LastName != "" {
		user.LastName = &evt.LastName
	}
	if evt.LanguageCode != "" {
		user.LanguageCode = evt.LanguageCode
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"username":     gorm.Expr("COALESCE(EXCLUDED.username, users.username)"),
			"first_name":   gorm.Expr("COALESCE(EXCLUDED.first_name, users.first_name)"),
			"last_name":    gorm.Expr("COALESCE(EXCLUDED.last_name, users.last_name)"),
			"last_seen_at": now,
		}),
	}).Create(user).Error
	if err != nil {
		return fmt.Errorf("upsert user %d: %w", evt.UserID, err)
	}
	return nil
}

var Module = fx.Options(
	fx.Provide(New),
)
