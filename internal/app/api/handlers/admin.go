package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/lumenloft/doorman/internal/app/service/payment"
	"github.com/lumenloft/doorman/internal/app/service/statistics"
	"github.com/lumenloft/doorman/internal/models"
	"github.com/lumenloft/doorman/pkg/response"
	"github.com/lumenloft/doorman/pkg/types"
)

// PaymentScanner is the admin payment listing.
type PaymentScanner interface {
	ScanPayments(ctx context.Context, req *payment.ScanPaymentsRequest) (*payment.ScanPaymentsResponse, error)
}

// WhitelistManager manages revocation exemptions.
type WhitelistManager interface {
	Grant(ctx context.Context, telegramID int64, source string, note *string) error
	Revoke(ctx context.Context, telegramID int64) error
	List(ctx context.Context, includeRevoked bool, limit, offset int) ([]*models.WhitelistEntry, int64, error)
}

// CursorReader exposes the reconciliation cursor for inspection.
type CursorReader interface {
	Get(ctx context.Context) (*models.ReconcileCursor, error)
}

type ListPaymentsRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	From      int                   `json:"from"`
	Size      int                   `json:"size"`
	SortBy    string                `json:"sort_by"`
	SortOrder string                `json:"sort_order"`
}

type PaymentItem struct {
	ID             string            `json:"id"`
	UserID         int64             `json:"user_id"`
	ChargeID       *string           `json:"charge_id"`
	ExternalTxID   *string           `json:"external_tx_id"`
	Amount         int64             `json:"amount"`
	Kind           types.PaymentKind `json:"kind"`
	IsRecurring    bool              `json:"is_recurring"`
	SubscriptionID *string           `json:"subscription_id"`
	CreatedAt      time.Time         `json:"created_at"`
}

func toPaymentItem(m *models.Payment) *PaymentItem {
	return &PaymentItem{
		ID:             m.ID,
		UserID:         m.UserID,
		ChargeID:       m.ChargeID,
		ExternalTxID:   m.ExternalTxID,
		Amount:         m.Amount,
		Kind:           m.Kind,
		IsRecurring:    m.IsRecurring,
		SubscriptionID: m.SubscriptionID,
		CreatedAt:      m.CreatedAt,
	}
}

type ListPaymentsResponse struct {
	Items []*PaymentItem `json:"items"`
	Total int64          `json:"total"`
}

// @Summary      List Payments (Admin)
// @Description  Retrieves a paginated and filterable list of recorded payments.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body ListPaymentsRequest true "List payments request with filters, pagination, and sorting"
// @Success      200  {object}  handlers.RespListPayments
// @Router       /api/v1/admin/list_payments [post]
func ApiListPayments(scanner PaymentScanner) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ListPaymentsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		scanReq := &payment.ScanPaymentsRequest{Filters: req.Filters, From: req.From, Size: req.Size, SortBy: req.SortBy, SortOrder: req.SortOrder}
		res, err := scanner.ScanPayments(c.Request.Context(), scanReq)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		items := lo.Map(res.Items, func(it *models.Payment, _ int) *PaymentItem { return toPaymentItem(it) })
		c.JSON(http.StatusOK, response.OKT(&ListPaymentsResponse{Items: items, Total: res.Total}))
	}
}

// @Summary      Get Statistics (Admin)
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body statistics.StatisticRequest true "Statistic request parameters"
// @Success      200  {object}  handlers.RespStatistic
// @Router       /api/v1/admin/get_statistic [post]
func ApiGetStatistic(svc *statistics.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req statistics.StatisticRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := svc.GetStatistic(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Dashboard overview (Admin)
// @Tags         Admin
// @Produce      json
// @Success      200  {object}  handlers.RespOverview
// @Router       /api/v1/admin/overview [get]
func ApiGetOverview(svc *statistics.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := svc.GetOverview(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

type WhitelistGrantRequest struct {
	TelegramID int64   `json:"telegram_id" binding:"required"`
	Source     string  `json:"source"`
	Note       *string `json:"note"`
}

// @Summary      Grant whitelist entry (Admin)
// @Description  Exempts the user from lifecycle access revocation.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body WhitelistGrantRequest true "Grant request"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/admin/whitelist/grant [post]
func ApiWhitelistGrant(wl WhitelistManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req WhitelistGrantRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		if err := wl.Grant(c.Request.Context(), req.TelegramID, req.Source, req.Note); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT[any](nil))
	}
}

type WhitelistRevokeRequest struct {
	TelegramID int64 `json:"telegram_id" binding:"required"`
}

// @Summary      Revoke whitelist entry (Admin)
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body WhitelistRevokeRequest true "Revoke request"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/admin/whitelist/revoke [post]
func ApiWhitelistRevoke(wl WhitelistManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req WhitelistRevokeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		if err := wl.Revoke(c.Request.Context(), req.TelegramID); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT[any](nil))
	}
}

type WhitelistListRequest struct {
	IncludeRevoked bool `json:"include_revoked"`
	From           int  `json:"from"`
	Size           int  `json:"size"`
}

type WhitelistListResponse struct {
	Items []*models.WhitelistEntry `json:"items"`
	Total int64                    `json:"total"`
}

// @Summary      List whitelist entries (Admin)
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body WhitelistListRequest true "List request"
// @Success      200  {object}  handlers.RespWhitelistList
// @Router       /api/v1/admin/whitelist/list [post]
func ApiWhitelistList(wl WhitelistManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req WhitelistListRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		items, total, err := wl.List(c.Request.Context(), req.IncludeRevoked, req.Size, req.From)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(&WhitelistListResponse{Items: items, Total: total}))
	}
}

// @Summary      Get reconciliation cursor (Admin)
// @Tags         Admin
// @Produce      json
// @Success      200  {object}  handlers.RespReconcileCursor
// @Router       /api/v1/admin/reconcile_cursor [get]
func ApiGetReconcileCursor(cursor CursorReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		cur, err := cursor.Get(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(cur))
	}
}

func RegisterAdminRoutes(r gin.IRouter, scanner PaymentScanner, stats *statistics.Service, wl WhitelistManager, cursor CursorReader) {
	r.POST("/list_payments", ApiListPayments(scanner))
	r.POST("/get_statistic", ApiGetStatistic(stats))
	r.GET("/overview", ApiGetOverview(stats))
	r.POST("/whitelist/grant", ApiWhitelistGrant(wl))
	r.POST("/whitelist/revoke", ApiWhitelistRevoke(wl))
	r.POST("/whitelist/list", ApiWhitelistList(wl))
	r.GET("/reconcile_cursor", ApiGetReconcileCursor(cursor))
}
