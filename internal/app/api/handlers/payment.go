package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lumenloft/doorman/pkg/logctx"
	"github.com/lumenloft/doorman/pkg/response"
	"github.com/lumenloft/doorman/pkg/types"
)

// PaymentSubmitter runs the full ingestion pipeline for one event.
type PaymentSubmitter interface {
	Submit(ctx context.Context, evt *types.PaymentEvent) error
}

// @Summary      Submit payment event
// @Description  Accepts a validated payment event from the bot transport. The event is acknowledged immediately and processed asynchronously; duplicate deliveries are absorbed.
// @Tags         Payment
// @Accept       json
// @Produce      json
// @Param        payload body types.PaymentEvent true "Payment event"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/payment/events [post]
func ApiSubmitPaymentEvent(log *zap.SugaredLogger, submitter PaymentSubmitter) gin.HandlerFunc {
	return func(c *gin.Context) {
		var evt types.PaymentEvent
		if err := c.ShouldBindJSON(&evt); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		if evt.ChargeID == nil && evt.ExternalTxID == nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "missing charge_id or external_tx_id"))
			return
		}

		logctx.FromCtx(c, log).Infow("payment event accepted",
			"user_id", evt.UserID, "kind", evt.Kind)

		// Ack now; the pipeline is idempotent so a crash mid-processing only
		// costs a redelivery.
		traceID := c.GetString("traceID")
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if traceID != "" {
				ctx = context.WithValue(ctx, "traceID", traceID) //nolint:staticcheck
			}
			if err := submitter.Submit(ctx, &evt); err != nil {
				log.Errorw("payment event processing failed",
					"user_id", evt.UserID, "err", err)
			}
		}()
		c.JSON(http.StatusOK, response.OKT[any](nil))
	}
}

func RegisterPaymentRoutes(r gin.IRouter, log *zap.SugaredLogger, submitter PaymentSubmitter) {
	r.POST("/events", ApiSubmitPaymentEvent(log, submitter))
}
