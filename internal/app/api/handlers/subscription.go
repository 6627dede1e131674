package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/lumenloft/doorman/internal/app/service/finalizer"
	"github.com/lumenloft/doorman/internal/app/service/ledger"
	"github.com/lumenloft/doorman/pkg/response"
	"github.com/lumenloft/doorman/pkg/types"
)

// SubscriptionManager is the user-facing subscription surface.
type SubscriptionManager interface {
	GetStatus(ctx context.Context, userID int64) (*types.SubscriptionInfo, error)
	Cancel(ctx context.Context, userID int64) (*types.SubscriptionInfo, error)
	Enter(ctx context.Context, userID int64) (*finalizer.EnterResult, error)
	Start(ctx context.Context, userID int64) error
}

func userIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "invalid user_id"))
		return 0, false
	}
	return id, true
}

// @Summary      Get subscription status
// @Description  Returns the user's current subscription state. A cancelled-but-running window is reported as cancelled.
// @Tags         Subscription
// @Produce      json
// @Param        user_id path int true "Telegram user id"
// @Success      200  {object}  handlers.RespSubscriptionInfo
// @Router       /api/v1/subscriptions/{user_id} [get]
func ApiGetSubscriptionStatus(mgr SubscriptionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := userIDParam(c)
		if !ok {
			return
		}
		info, err := mgr.GetStatus(c.Request.Context(), userID)
		if err != nil {
			if errors.Is(err, ledger.ErrNotFound) {
				c.JSON(http.StatusOK, response.OKT(&types.SubscriptionInfo{
					Status: types.SubscriptionStatusExpired,
				}))
				return
			}
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(info))
	}
}

// @Summary      Start subscription flow
// @Description  Registers a pending subscription for a user who opened the offer. Idempotent.
// @Tags         Subscription
// @Produce      json
// @Param        user_id path int true "Telegram user id"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/subscriptions/{user_id}/start [post]
func ApiStartSubscription(mgr SubscriptionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := userIDParam(c)
		if !ok {
			return
		}
		if err := mgr.Start(c.Request.Context(), userID); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT[any](nil))
	}
}

// @Summary      Cancel subscription
// @Description  Disables auto-renew. Access persists until the paid window ends.
// @Tags         Subscription
// @Produce      json
// @Param        user_id path int true "Telegram user id"
// @Success      200  {object}  handlers.RespSubscriptionInfo
// @Router       /api/v1/subscriptions/{user_id}/cancel [post]
func ApiCancelSubscription(mgr SubscriptionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := userIDParam(c)
		if !ok {
			return
		}
		info, err := mgr.Cancel(c.Request.Context(), userID)
		if err != nil {
			if errors.Is(err, ledger.ErrNotFound) {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "no active subscription"))
				return
			}
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(info))
	}
}

// @Summary      Enter group
// @Description  Self-service recovery: approves a pending join request, or mints a short-lived single-use invite link when no request is pending.
// @Tags         Subscription
// @Produce      json
// @Param        user_id path int true "Telegram user id"
// @Success      200  {object}  handlers.RespEnterResult
// @Router       /api/v1/subscriptions/{user_id}/enter [post]
func ApiEnterGroup(mgr SubscriptionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := userIDParam(c)
		if !ok {
			return
		}
		res, err := mgr.Enter(c.Request.Context(), userID)
		if err != nil {
			if errors.Is(err, finalizer.ErrNoAccess) {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "no valid subscription"))
				return
			}
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

func RegisterSubscriptionRoutes(r gin.IRouter, mgr SubscriptionManager) {
	r.GET("/:user_id", ApiGetSubscriptionStatus(mgr))
	r.POST("/:user_id/start", ApiStartSubscription(mgr))
	r.POST("/:user_id/cancel", ApiCancelSubscription(mgr))
	r.POST("/:user_id/enter", ApiEnterGroup(mgr))
}
