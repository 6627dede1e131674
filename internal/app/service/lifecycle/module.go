package lifecycle

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/lumenloft/doorman/internal/app/service/ledger"
	"github.com/lumenloft/doorman/internal/app/service/whitelist"
	"github.com/lumenloft/doorman/internal/platform/lease"
	"github.com/lumenloft/doorman/internal/platform/telegram"
	cfgpkg "github.com/lumenloft/doorman/pkg/config"
)

func newQueue(db *gorm.DB, log *zap.SugaredLogger, tg telegram.Client) *Queue {
	return NewQueue(db, log, tg)
}

func newService(cfg *cfgpkg.Config, log *zap.SugaredLogger,
	led *ledger.Service, wl *whitelist.Service, tg telegram.Client,
	queue *Queue, locker lease.Locker) *Service {
	return New(cfg, log, led, wl, tg, queue, locker)
}

var Module = fx.Options(
	fx.Provide(newQueue),
	fx.Provide(newService),
)
