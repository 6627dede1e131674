package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/lumenloft/doorman/docs"
	"github.com/lumenloft/doorman/internal/app/api/handlers"
	mw "github.com/lumenloft/doorman/internal/app/api/middleware"
	"github.com/lumenloft/doorman/internal/app/service/ingest"
	"github.com/lumenloft/doorman/internal/app/service/lifecycle"
	"github.com/lumenloft/doorman/internal/app/service/payment"
	"github.com/lumenloft/doorman/internal/app/service/reconcile"
	"github.com/lumenloft/doorman/internal/app/service/statistics"
	subsvc "github.com/lumenloft/doorman/internal/app/service/subscription"
	"github.com/lumenloft/doorman/internal/app/service/whitelist"
	cfgpkg "github.com/lumenloft/doorman/pkg/config"
	"github.com/lumenloft/doorman/pkg/metrics"
)

func newEngine(m *metrics.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	// Request tracing and metrics run globally; request logger & access log
	// are attached per group in registerRoutes
	r.Use(mw.TraceMiddleware())
	r.Use(m.GinMiddleware())
	return r
}

type routeDeps struct {
	fx.In

	Log       *zap.SugaredLogger
	Cfg       *cfgpkg.Config
	Ingest    *ingest.Service
	Sub       *subsvc.Service
	Store     *payment.Store
	Stats     *statistics.Service
	Whitelist *whitelist.Service
	Engine    *reconcile.Engine
	Cursor    reconcile.CursorStore
	Sweeper   *lifecycle.Service
	Queue     *lifecycle.Queue
}

func registerRoutes(r *gin.Engine, d routeDeps) {
	// Public group: request logger + access log
	pub := r.Group("/")
	pub.Use(mw.RequestLoggerMiddleware(d.Log), mw.AccessLogMiddleware())
	handlers.RegisterHealthRoutes(pub)
	// Swagger UI
	docs.SwaggerInfo.BasePath = "/"
	pub.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	apiV1 := r.Group("/api/v1")
	apiV1.Use(mw.RequestLoggerMiddleware(d.Log), mw.AccessLogMiddleware())

	// Bot-facing surfaces
	handlers.RegisterPaymentRoutes(apiV1.Group("/payment"), d.Log, d.Ingest)
	handlers.RegisterSubscriptionRoutes(apiV1.Group("/subscriptions"), d.Sub)

	// Operator surfaces behind admin auth
	auth := mw.AdminAuthMiddleware(d.Cfg)
	handlers.RegisterAdminRoutes(apiV1.Group("/admin", auth), d.Store, d.Stats, d.Whitelist, d.Cursor)
	handlers.RegisterJobRoutes(apiV1.Group("/jobs", auth), d.Engine, d.Sweeper, d.Queue)
}

func runServer(lc fx.Lifecycle, log *zap.SugaredLogger, cfg *cfgpkg.Config, r *gin.Engine) {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting HTTP server", "addr", addr)
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Errorf("server error: %v", err)
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("stopping HTTP server")
			shutdownCtx, cancel := context.WithTimeout(ctx, 120*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

var Module = fx.Options(
	fx.Provide(newEngine),
	fx.Invoke(registerRoutes),
	fx.Invoke(runServer),
)
