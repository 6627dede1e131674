package subscription

import (
	"context"

	"go.uber.org/zap"

	"github.com/lumenloft/doorman/internal/app/service/finalizer"
	"github.com/lumenloft/doorman/internal/app/service/funnel"
	"github.com/lumenloft/doorman/internal/app/service/ledger"
	"github.com/lumenloft/doorman/internal/platform/telegram"
	cfgpkg "github.com/lumenloft/doorman/pkg/config"
	"github.com/lumenloft/doorman/pkg/logctx"
	"github.com/lumenloft/doorman/pkg/types"
)

// Service is the user-facing subscription surface: status reads, cancellation
// and the self-service entry path. It composes the ledger (state), the
// finalizer (access) and the platform client (stop-charges).
type Service struct {
	cfg    *cfgpkg.Config
	log    *zap.SugaredLogger
	led    *ledger.Service
	fin    *finalizer.Service
	tg     telegram.Client
	events *funnel.Service
}

func New(cfg *cfgpkg.Config, log *zap.SugaredLogger, led *ledger.Service,
	fin *finalizer.Service, tg telegram.Client, events *funnel.Service) *Service {
	return &Service{cfg: cfg, log: log, led: led, fin: fin, tg: tg, events: events}
}

func (s *Service) GetStatus(ctx context.Context, userID int64) (*types.SubscriptionInfo, error) {
	return s.led.GetStatus(ctx, userID)
}

// Cancel disables auto-renew. The stored window is untouched; the platform
// stop-charges call is best-effort because the ledger decision is already
// durable and a missed call only means one more charge that reconciliation
// will ingest normally.
func (s *Service) Cancel(ctx context.Context, userID int64) (*types.SubscriptionInfo, error) {
	sub, err := s.led.Cancel(ctx, userID)
	if err != nil {
		return nil, err
	}

	if sub.IsRecurring && sub.RecurringChargeID != nil {
		if err := s.tg.EditUserStarSubscription(ctx, userID, *sub.RecurringChargeID, true); err != nil {
			logctx.FromCtx(ctx, s.log).Warnw("stop-charges call failed",
				"user_id", userID, "err", err)
		}
	}
	s.events.LogUser(ctx, userID, "subscription_cancelled", nil)

	info := sub.Info()
	if sub.CancelledAt != nil && sub.Status.Open() {
		info.Status = types.SubscriptionStatusCancelled
	}
	return info, nil
}

// Enter is the self-service recovery path for users with valid access.
func (s *Service) Enter(ctx context.Context, userID int64) (*finalizer.EnterResult, error) {
	return s.fin.Enter(ctx, userID)
}

// Start registers the pending row shown to a user who opened the offer.
func (s *Service) Start(ctx context.Context, userID int64) error {
	if err := s.led.EnsurePending(ctx, userID); err != nil {
		return err
	}
	s.events.LogUser(ctx, userID, "offer_shown", nil)
	return nil
}
