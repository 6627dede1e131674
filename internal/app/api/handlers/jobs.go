package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lumenloft/doorman/internal/app/service/lifecycle"
	"github.com/lumenloft/doorman/internal/app/service/reconcile"
	"github.com/lumenloft/doorman/pkg/response"
)

// Job triggers. The scheduler (cron, systemd timer) drives these endpoints;
// each job takes its own lease so overlapping triggers are harmless.

type Reconciler interface {
	Run(ctx context.Context) (*reconcile.Result, error)
}

type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (*lifecycle.SweepResult, error)
	SendReminders(ctx context.Context, now time.Time) (int, error)
}

type NotificationDrainer interface {
	Drain(ctx context.Context, limit int) (int, error)
}

// @Summary      Run reconciliation (Job)
// @Description  Replays the provider transaction ledger over the sliding window and ingests anything the live path missed.
// @Tags         Jobs
// @Produce      json
// @Success      200  {object}  handlers.RespReconcileResult
// @Router       /api/v1/jobs/reconcile [post]
func ApiRunReconcile(engine Reconciler) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := engine.Run(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Run lifecycle sweep (Job)
// @Description  Moves expired subscriptions to grace and closed grace windows to expired, revoking access for non-whitelisted users.
// @Tags         Jobs
// @Produce      json
// @Success      200  {object}  handlers.RespSweepResult
// @Router       /api/v1/jobs/sweep [post]
func ApiRunSweep(sweeper Sweeper) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := sweeper.Sweep(c.Request.Context(), time.Now().UTC())
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Queue expiry reminders (Job)
// @Tags         Jobs
// @Produce      json
// @Success      200  {object}  handlers.RespCount
// @Router       /api/v1/jobs/reminders [post]
func ApiSendReminders(sweeper Sweeper) gin.HandlerFunc {
	return func(c *gin.Context) {
		queued, err := sweeper.SendReminders(c.Request.Context(), time.Now().UTC())
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(map[string]int{"queued": queued}))
	}
}

// @Summary      Drain notification queue (Job)
// @Tags         Jobs
// @Produce      json
// @Param        limit query int false "Max notifications to send" default(100)
// @Success      200  {object}  handlers.RespCount
// @Router       /api/v1/jobs/notifications [post]
func ApiDrainNotifications(queue NotificationDrainer) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 100
		if v := c.Query("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				limit = n
			}
		}
		sent, err := queue.Drain(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(map[string]int{"sent": sent}))
	}
}

func RegisterJobRoutes(r gin.IRouter, engine Reconciler, sweeper Sweeper, queue NotificationDrainer) {
	r.POST("/reconcile", ApiRunReconcile(engine))
	r.POST("/sweep", ApiRunSweep(sweeper))
	r.POST("/reminders", ApiSendReminders(sweeper))
	r.POST("/notifications", ApiDrainNotifications(queue))
}
