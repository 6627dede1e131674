package reconcile

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/lumenloft/doorman/internal/app/service/finalizer"
	"github.com/lumenloft/doorman/internal/app/service/ledger"
	"github.com/lumenloft/doorman/internal/app/service/payment"
	"github.com/lumenloft/doorman/internal/platform/lease"
	"github.com/lumenloft/doorman/internal/platform/telegram"
	cfgpkg "github.com/lumenloft/doorman/pkg/config"
	"github.com/lumenloft/doorman/pkg/metrics"
)

func newEngine(cfg *cfgpkg.Config, log *zap.SugaredLogger, m *metrics.Metrics,
	tg telegram.Client, store *payment.Store, led *ledger.Service, fin *finalizer.Service,
	cursor CursorStore, locker lease.Locker) *Engine {
	return NewEngine(cfg, log, m, tg, store, led, fin, cursor, locker)
}

var Module = fx.Options(
	fx.Provide(NewCursorStore),
	fx.Provide(newEngine),
)
