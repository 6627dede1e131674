package finalizer

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/lumenloft/doorman/internal/app/service/funnel"
	"github.com/lumenloft/doorman/internal/app/service/ledger"
	"github.com/lumenloft/doorman/internal/app/service/whitelist"
	"github.com/lumenloft/doorman/internal/platform/telegram"
	cfgpkg "github.com/lumenloft/doorman/pkg/config"
	"github.com/lumenloft/doorman/pkg/metrics"
)

func newService(cfg *cfgpkg.Config, log *zap.SugaredLogger, m *metrics.Metrics, tg telegram.Client, led *ledger.Service, wl *whitelist.Service, ev *funnel.Service) *Service {
	return New(cfg, log, m, tg, led, wl, ev)
}

var Module = fx.Options(
	fx.Provide(newService),
)
