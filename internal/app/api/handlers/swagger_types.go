package handlers

import (
	"github.com/lumenloft/doorman/internal/app/service/finalizer"
	"github.com/lumenloft/doorman/internal/app/service/lifecycle"
	"github.com/lumenloft/doorman/internal/app/service/reconcile"
	"github.com/lumenloft/doorman/internal/app/service/statistics"
	"github.com/lumenloft/doorman/internal/models"
	"github.com/lumenloft/doorman/pkg/response"
	"github.com/lumenloft/doorman/pkg/types"
)

// RespOK is a generic OK envelope for endpoints returning no specific data.
type RespOK struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    interface{}              `json:"data"`
}

// RespSubscriptionInfo wraps SubscriptionInfo in the standard envelope.
type RespSubscriptionInfo struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    types.SubscriptionInfo   `json:"data"`
}

// RespEnterResult wraps the enter outcome in the standard envelope.
type RespEnterResult struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    finalizer.EnterResult    `json:"data"`
}

// RespReconcileResult wraps a reconciliation run summary.
type RespReconcileResult struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    reconcile.Result         `json:"data"`
}

// RespSweepResult wraps a sweep run summary.
type RespSweepResult struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    lifecycle.SweepResult    `json:"data"`
}

// RespCount wraps simple counter payloads such as {"sent": 3}.
type RespCount struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    map[string]int           `json:"data"`
}

// RespListPayments wraps ListPaymentsResponse in the standard envelope.
type RespListPayments struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    ListPaymentsResponse     `json:"data"`
}

// RespStatistic wraps StatisticResponse in the standard envelope.
type RespStatistic struct {
	Code    response.APIResponseCode     `json:"code"`
	Message string                       `json:"message"`
	Data    statistics.StatisticResponse `json:"data"`
}

// RespOverview wraps the dashboard overview block.
type RespOverview struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    statistics.Overview      `json:"data"`
}

// RespWhitelistList wraps WhitelistListResponse in the standard envelope.
type RespWhitelistList struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    WhitelistListResponse    `json:"data"`
}

// RespReconcileCursor wraps the cursor row.
type RespReconcileCursor struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    models.ReconcileCursor   `json:"data"`
}
