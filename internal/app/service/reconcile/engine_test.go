package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lumenloft/doorman/internal/app/service/ledger"
	"github.com/lumenloft/doorman/internal/app/service/payment"
	"github.com/lumenloft/doorman/internal/models"
	"github.com/lumenloft/doorman/internal/platform/telegram"
	cfgpkg "github.com/lumenloft/doorman/pkg/config"
	"github.com/lumenloft/doorman/pkg/metrics"
)

type stubSource struct {
	pages   [][]telegram.StarTransaction
	pageErr map[int]error
	calls   int
}

func (s *stubSource) GetStarTransactions(ctx context.Context, offset, limit int) ([]telegram.StarTransaction, error) {
	page := s.calls
	s.calls++
	if err, ok := s.pageErr[page]; ok {
		return nil, err
	}
	if page >= len(s.pages) {
		return nil, nil
	}
	return s.pages[page], nil
}

type stubRecorder struct {
	known     map[string]bool
	recordErr error
	records   []*models.Payment
}

func (s *stubRecorder) HasExternalTxID(ctx context.Context, txID string) (bool, error) {
	return s.known[txID], nil
}

func (s *stubRecorder) Record(ctx context.Context, p *models.Payment, source payment.Source) (*payment.RecordResult, error) {
	if s.recordErr != nil {
		return nil, s.recordErr
	}
	s.records = append(s.records, p)
	if s.known[*p.ExternalTxID] {
		return &payment.RecordResult{Inserted: false, Payment: p}, nil
	}
	if s.known == nil {
		s.known = map[string]bool{}
	}
	s.known[*p.ExternalTxID] = true
	return &payment.RecordResult{Inserted: true, Payment: p}, nil
}

type stubApplier struct {
	applied []int64
}

func (s *stubApplier) Apply(ctx context.Context, p *models.Payment, inserted bool) (*ledger.Transition, error) {
	s.applied = append(s.applied, p.UserID)
	return &ledger.Transition{UserID: p.UserID, Applied: inserted}, nil
}

type stubLauncher struct {
	launched []int64
}

func (s *stubLauncher) Launch(userID int64) bool {
	s.launched = append(s.launched, userID)
	return true
}

type stubCursor struct {
	cur        models.ReconcileCursor
	advancedTo *time.Time
}

func (s *stubCursor) Get(ctx context.Context) (*models.ReconcileCursor, error) {
	c := s.cur
	return &c, nil
}

func (s *stubCursor) Advance(ctx context.Context, at time.Time, txID *string) error {
	s.advancedTo = &at
	return nil
}

type stubLocker struct {
	held     bool
	released bool
}

func (s *stubLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (func(), bool, error) {
	if s.held {
		return nil, false, nil
	}
	return func() { s.released = true }, true, nil
}

func testConfig() *cfgpkg.Config {
	cfg := &cfgpkg.Config{}
	cfg.Reconcile.WindowDays = 3
	cfg.Reconcile.PageSize = 2
	cfg.Reconcile.LeaseTTL = 10 * time.Minute
	return cfg
}

func newTestEngine(source TransactionSource, store PaymentRecorder, led Applier,
	fin Launcher, cursor CursorStore, locker *stubLocker) *Engine {
	return NewEngine(testConfig(), zap.NewNop().Sugar(), metrics.New("test"),
		source, store, led, fin, cursor, locker)
}

func userTx(id string, userID int64, date time.Time, amount int64) telegram.StarTransaction {
	return telegram.StarTransaction{ID: id, Amount: amount, Date: date, SourceUserID: &userID}
}

func TestRun_LeaseHeldSkips(t *testing.T) {
	source := &stubSource{}
	engine := newTestEngine(source, &stubRecorder{}, &stubApplier{}, &stubLauncher{},
		&stubCursor{}, &stubLocker{held: true})

	res, err := engine.Run(context.Background())
	require.NoError(t, err)
	require.True(t, res.LeaseHeld)
	require.Zero(t, source.calls)
}

func TestRun_RecoversMissedPayments(t *testing.T) {
	now := time.Now().UTC()
	cursorAt := now.Add(-time.Hour)
	outgoing := telegram.StarTransaction{ID: "out-1", Amount: -100, Date: now.Add(-30 * time.Minute)}

	source := &stubSource{pages: [][]telegram.StarTransaction{
		{
			userTx("tx-new-1", 101, now.Add(-40*time.Minute), 449),
			userTx("tx-dup", 102, now.Add(-20*time.Minute), 449),
		},
		{
			outgoing,
			// Before the window, ignored entirely.
			userTx("tx-ancient", 103, now.Add(-30*24*time.Hour), 449),
		},
	}}
	recorder := &stubRecorder{known: map[string]bool{"tx-dup": true}}
	applier := &stubApplier{}
	launcher := &stubLauncher{}
	cursor := &stubCursor{cur: models.ReconcileCursor{ID: 1, LastTxAt: cursorAt}}
	locker := &stubLocker{}

	engine := newTestEngine(source, recorder, applier, launcher, cursor, locker)

	res, err := engine.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, res.Scanned)
	require.Equal(t, 1, res.PaymentsFound)
	require.Equal(t, []int64{101}, applier.applied)
	require.Equal(t, []int64{101}, launcher.launched)

	// The duplicate still moved the cursor: it is the newest in-window entry.
	require.True(t, res.CursorAdvanced)
	require.NotNil(t, cursor.advancedTo)
	require.True(t, cursor.advancedTo.Equal(now.Add(-20*time.Minute)))
	require.True(t, locker.released)
}

func TestRun_RecoveredPaymentShape(t *testing.T) {
	now := time.Now().UTC()
	txDate := now.Add(-10 * time.Minute)
	source := &stubSource{pages: [][]telegram.StarTransaction{
		{userTx("tx-1", 55, txDate, 449)},
	}}
	recorder := &stubRecorder{}
	engine := newTestEngine(source, recorder, &stubApplier{}, &stubLauncher{},
		&stubCursor{cur: models.ReconcileCursor{ID: 1, LastTxAt: now.Add(-time.Hour)}}, &stubLocker{})

	_, err := engine.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, recorder.records, 1)

	p := recorder.records[0]
	require.Equal(t, int64(55), p.UserID)
	require.Equal(t, "tx-1", *p.ExternalTxID)
	require.Nil(t, p.ChargeID)
	require.True(t, p.IsRecurring)
	require.True(t, p.CreatedAt.Equal(txDate))
}

func TestRun_PageErrorAbortsWithoutCursorAdvance(t *testing.T) {
	now := time.Now().UTC()
	source := &stubSource{
		pages: [][]telegram.StarTransaction{
			{
				userTx("tx-1", 101, now.Add(-40*time.Minute), 449),
				userTx("tx-2", 102, now.Add(-30*time.Minute), 449),
			},
		},
		pageErr: map[int]error{1: errors.New("upstream timeout")},
	}
	cursor := &stubCursor{cur: models.ReconcileCursor{ID: 1, LastTxAt: now.Add(-time.Hour)}}
	engine := newTestEngine(source, &stubRecorder{}, &stubApplier{}, &stubLauncher{},
		cursor, &stubLocker{})

	_, err := engine.Run(context.Background())
	require.Error(t, err)
	require.Nil(t, cursor.advancedTo, "a failed run must not move the cursor")
}

func TestRun_RecordErrorAbortsWithoutCursorAdvance(t *testing.T) {
	now := time.Now().UTC()
	source := &stubSource{pages: [][]telegram.StarTransaction{
		{userTx("tx-1", 101, now.Add(-10*time.Minute), 449)},
	}}
	cursor := &stubCursor{cur: models.ReconcileCursor{ID: 1, LastTxAt: now.Add(-time.Hour)}}
	engine := newTestEngine(source, &stubRecorder{recordErr: errors.New("db down")},
		&stubApplier{}, &stubLauncher{}, cursor, &stubLocker{})

	_, err := engine.Run(context.Background())
	require.Error(t, err)
	require.Nil(t, cursor.advancedTo)
}

func TestRun_SecondRunConverges(t *testing.T) {
	now := time.Now().UTC()
	page := []telegram.StarTransaction{
		userTx("tx-1", 101, now.Add(-10*time.Minute), 449),
	}
	recorder := &stubRecorder{}
	launcher := &stubLauncher{}
	cursor := &stubCursor{cur: models.ReconcileCursor{ID: 1, LastTxAt: now.Add(-time.Hour)}}

	first := newTestEngine(&stubSource{pages: [][]telegram.StarTransaction{page}},
		recorder, &stubApplier{}, launcher, cursor, &stubLocker{})
	res, err := first.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.PaymentsFound)

	second := newTestEngine(&stubSource{pages: [][]telegram.StarTransaction{page}},
		recorder, &stubApplier{}, launcher, cursor, &stubLocker{})
	res, err = second.Run(context.Background())
	require.NoError(t, err)
	require.Zero(t, res.PaymentsFound, "overlap rescan must be absorbed as a known transaction")
	require.Equal(t, []int64{101}, launcher.launched, "no second finalization for an absorbed duplicate")
}
