package app

import (
	"time"

	"go.uber.org/fx"

	"github.com/lumenloft/doorman/internal/app/api/server"
	"github.com/lumenloft/doorman/internal/app/service/finalizer"
	"github.com/lumenloft/doorman/internal/app/service/funnel"
	"github.com/lumenloft/doorman/internal/app/service/ingest"
	"github.com/lumenloft/doorman/internal/app/service/ledger"
	"github.com/lumenloft/doorman/internal/app/service/lifecycle"
	"github.com/lumenloft/doorman/internal/app/service/payment"
	"github.com/lumenloft/doorman/internal/app/service/reconcile"
	"github.com/lumenloft/doorman/internal/app/service/statistics"
	"github.com/lumenloft/doorman/internal/app/service/subscription"
	"github.com/lumenloft/doorman/internal/app/service/whitelist"
	"github.com/lumenloft/doorman/internal/platform/db"
	"github.com/lumenloft/doorman/internal/platform/lease"
	"github.com/lumenloft/doorman/internal/platform/telegram"
	"github.com/lumenloft/doorman/pkg/config"
	"github.com/lumenloft/doorman/pkg/logger"
	"github.com/lumenloft/doorman/pkg/metrics"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

var Module = fx.Options(
	logger.Module,
	config.Module,
	metrics.Module,
	db.Module,
	lease.Module,
	telegram.Module,
	server.Module,
	payment.Module,
	ledger.Module,
	funnel.Module,
	finalizer.Module,
	ingest.Module,
	subscription.Module,
	reconcile.Module,
	lifecycle.Module,
	whitelist.Module,
	statistics.Module,
)
