package reconcile

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lumenloft/doorman/internal/app/service/ledger"
	"github.com/lumenloft/doorman/internal/app/service/payment"
	"github.com/lumenloft/doorman/internal/models"
	"github.com/lumenloft/doorman/internal/platform/lease"
	"github.com/lumenloft/doorman/internal/platform/telegram"
	cfgpkg "github.com/lumenloft/doorman/pkg/config"
	"github.com/lumenloft/doorman/pkg/logctx"
	"github.com/lumenloft/doorman/pkg/metrics"
	"github.com/lumenloft/doorman/pkg/types"
)

const leaseName = "reconcile"

// TransactionSource is the slice of the platform client the engine reads.
type TransactionSource interface {
	GetStarTransactions(ctx context.Context, offset, limit int) ([]telegram.StarTransaction, error)
}

// PaymentRecorder is the idempotent insert the engine funnels findings into.
type PaymentRecorder interface {
	Record(ctx context.Context, p *models.Payment, source payment.Source) (*payment.RecordResult, error)
	HasExternalTxID(ctx context.Context, txID string) (bool, error)
}

// Applier folds a recorded payment into the subscription ledger.
type Applier interface {
	Apply(ctx context.Context, p *models.Payment, inserted bool) (*ledger.Transition, error)
}

// Launcher starts async access finalization for a user.
type Launcher interface {
	Launch(userID int64) bool
}

// Result summarizes one reconciliation run.
type Result struct {
	Scanned        int        `json:"scanned"`
	PaymentsFound  int        `json:"payments_found"`
	CursorAdvanced bool       `json:"cursor_advanced"`
	CursorAt       *time.Time `json:"cursor_at,omitempty"`
	// LeaseHeld is true when another instance was already running the scan.
	LeaseHeld bool `json:"lease_held,omitempty"`
}

// Engine replays the provider's transaction ledger over a sliding window and
// feeds anything missed by the live path through the normal ingestion funnel.
// The lookback overlap means every transaction is seen at least twice across
// runs; the idempotent insert absorbs the overlap.
type Engine struct {
	cfg    *cfgpkg.Config
	log    *zap.SugaredLogger
	m      *metrics.Metrics
	source TransactionSource
	store  PaymentRecorder
	led    Applier
	fin    Launcher
	cursor CursorStore
	locker lease.Locker
}

func NewEngine(cfg *cfgpkg.Config, log *zap.SugaredLogger, m *metrics.Metrics,
	source TransactionSource, store PaymentRecorder, led Applier, fin Launcher,
	cursor CursorStore, locker lease.Locker) *Engine {
	return &Engine{
		cfg: cfg, log: log, m: m,
		source: source, store: store, led: led, fin: fin,
		cursor: cursor, locker: locker,
	}
}

// Run executes one full scan under the job lease. The cursor is written only
// after every page in the window has been processed without error; a failed
// run leaves it untouched so the next run re-covers the same ground.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	log := logctx.FromCtx(ctx, e.log)

	release, ok, err := e.locker.Acquire(ctx, leaseName, e.cfg.Reconcile.LeaseTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		log.Infow("reconcile skipped, lease held elsewhere")
		e.m.ReconcileRuns.WithLabelValues("lease_held").Inc()
		return &Result{LeaseHeld: true}, nil
	}
	defer release()

	cur, err := e.cursor.Get(ctx)
	if err != nil {
		e.m.ReconcileRuns.WithLabelValues("aborted").Inc()
		return nil, err
	}

	windowStart := cur.LastTxAt.Add(-e.cfg.ReconcileLookback())
	res := &Result{}
	maxTxAt := cur.LastTxAt
	var maxTxID *string

	pageSize := e.cfg.Reconcile.PageSize
	for offset := 0; ; offset += pageSize {
		txs, err := e.source.GetStarTransactions(ctx, offset, pageSize)
		if err != nil {
			log.Errorw("reconcile page fetch failed", "offset", offset, "err", err)
			e.m.ReconcileRuns.WithLabelValues("aborted").Inc()
			return res, fmt.Errorf("fetch transactions at offset %d: %w", offset, err)
		}
		if len(txs) == 0 {
			break
		}

		for i := range txs {
			tx := &txs[i]
			res.Scanned++
			if tx.Date.Before(windowStart) {
				continue
			}
			if tx.Date.After(maxTxAt) {
				maxTxAt = tx.Date
				id := tx.ID
				maxTxID = &id
			}
			if tx.SourceUserID == nil || tx.Amount <= 0 {
				// Outgoing transfers and refunds carry no payer.
				continue
			}

			found, err := e.processTransaction(ctx, tx)
			if err != nil {
				e.m.ReconcileRuns.WithLabelValues("aborted").Inc()
				return res, err
			}
			if found {
				res.PaymentsFound++
			}
		}

		if len(txs) < pageSize {
			break
		}
	}

	if maxTxAt.After(cur.LastTxAt) {
		if err := e.cursor.Advance(ctx, maxTxAt, maxTxID); err != nil {
			e.m.ReconcileRuns.WithLabelValues("aborted").Inc()
			return res, err
		}
		res.CursorAdvanced = true
		res.CursorAt = &maxTxAt
	}

	e.m.ReconcileRuns.WithLabelValues("ok").Inc()
	e.m.ReconcilePaymentsFound.Add(float64(res.PaymentsFound))
	e.m.ReconcileCursorAge.Set(time.Since(maxTxAt).Seconds())
	log.Infow("reconcile run finished",
		"scanned", res.Scanned, "found", res.PaymentsFound,
		"cursor_advanced", res.CursorAdvanced)
	return res, nil
}

// processTransaction records one ledger entry through the normal ingestion
// funnel. Returns true when the payment was new, meaning the live path had
// missed it.
func (e *Engine) processTransaction(ctx context.Context, tx *telegram.StarTransaction) (bool, error) {
	known, err := e.store.HasExternalTxID(ctx, tx.ID)
	if err != nil {
		return false, err
	}
	if known {
		return false, nil
	}

	p := &models.Payment{
		UserID:       *tx.SourceUserID,
		ExternalTxID: &tx.ID,
		Amount:       tx.Amount,
		// Everything the live path misses is a background charge; first
		// payments always arrive through the interactive flow.
		Kind:        types.PaymentKindRecurringRenewal,
		IsRecurring: true,
		CreatedAt:   tx.Date,
	}

	rec, err := e.store.Record(ctx, p, payment.SourceReconcile)
	if err != nil {
		return false, err
	}
	if !rec.Inserted {
		return false, nil
	}

	if _, err := e.led.Apply(ctx, rec.Payment, true); err != nil {
		return false, err
	}
	logctx.FromCtx(ctx, e.log).Infow("reconcile recovered payment",
		"user_id", p.UserID, "external_tx_id", tx.ID, "amount", tx.Amount, "tx_date", tx.Date)
	e.fin.Launch(p.UserID)
	return true, nil
}
