package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lumenloft/doorman/internal/app/service/finalizer"
	"github.com/lumenloft/doorman/internal/app/service/ledger"
	"github.com/lumenloft/doorman/pkg/response"
	"github.com/lumenloft/doorman/pkg/types"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubSubmitter struct {
	got chan *types.PaymentEvent
	err error
}

func (s *stubSubmitter) Submit(ctx context.Context, evt *types.PaymentEvent) error {
	if s.got != nil {
		s.got <- evt
	}
	return s.err
}

func postJSON(t *testing.T, r *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) (response.APIResponseCode, json.RawMessage) {
	t.Helper()
	var env struct {
		Code response.APIResponseCode `json:"code"`
		Data json.RawMessage          `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env.Code, env.Data
}

func TestSubmitPaymentEvent_AcceptsAndProcessesAsync(t *testing.T) {
	submitter := &stubSubmitter{got: make(chan *types.PaymentEvent, 1)}
	r := gin.New()
	RegisterPaymentRoutes(r.Group("/api/v1/payment"), zap.NewNop().Sugar(), submitter)

	chargeID := "ch-1"
	w := postJSON(t, r, "/api/v1/payment/events", types.PaymentEvent{
		UserID:   42,
		ChargeID: &chargeID,
		Amount:   499,
		Kind:     types.PaymentKindOneTime,
	})

	require.Equal(t, http.StatusOK, w.Code)
	code, _ := decodeEnvelope(t, w)
	require.Equal(t, response.APIResponseCodeOK, code)

	select {
	case evt := <-submitter.got:
		require.Equal(t, int64(42), evt.UserID)
		require.Equal(t, "ch-1", *evt.ChargeID)
	case <-time.After(time.Second):
		t.Fatal("event was not handed to the pipeline")
	}
}

func TestSubmitPaymentEvent_RejectsInvalid(t *testing.T) {
	chargeID := "ch-1"
	tests := []struct {
		name string
		body types.PaymentEvent
	}{
		{"missing user", types.PaymentEvent{ChargeID: &chargeID, Amount: 499, Kind: types.PaymentKindOneTime}},
		{"missing amount", types.PaymentEvent{UserID: 42, ChargeID: &chargeID, Kind: types.PaymentKindOneTime}},
		{"no natural key", types.PaymentEvent{UserID: 42, Amount: 499, Kind: types.PaymentKindOneTime}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			submitter := &stubSubmitter{got: make(chan *types.PaymentEvent, 1)}
			r := gin.New()
			RegisterPaymentRoutes(r.Group("/api/v1/payment"), zap.NewNop().Sugar(), submitter)

			w := postJSON(t, r, "/api/v1/payment/events", tt.body)
			code, _ := decodeEnvelope(t, w)
			require.Equal(t, response.APIResponseCodeBadRequest, code)
			require.Empty(t, submitter.got)
		})
	}
}

type stubSubManager struct {
	info      *types.SubscriptionInfo
	statusErr error
	cancelErr error
	enter     *finalizer.EnterResult
	enterErr  error
}

func (s *stubSubManager) GetStatus(ctx context.Context, userID int64) (*types.SubscriptionInfo, error) {
	return s.info, s.statusErr
}

func (s *stubSubManager) Cancel(ctx context.Context, userID int64) (*types.SubscriptionInfo, error) {
	return s.info, s.cancelErr
}

func (s *stubSubManager) Enter(ctx context.Context, userID int64) (*finalizer.EnterResult, error) {
	return s.enter, s.enterErr
}

func (s *stubSubManager) Start(ctx context.Context, userID int64) error { return nil }

func subRouter(mgr SubscriptionManager) *gin.Engine {
	r := gin.New()
	RegisterSubscriptionRoutes(r.Group("/api/v1/subscriptions"), mgr)
	return r
}

func TestGetSubscriptionStatus(t *testing.T) {
	expiresAt := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	r := subRouter(&stubSubManager{info: &types.SubscriptionInfo{
		Status:    types.SubscriptionStatusActive,
		ExpiresAt: &expiresAt,
	}})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions/42", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	code, data := decodeEnvelope(t, w)
	require.Equal(t, response.APIResponseCodeOK, code)

	var info types.SubscriptionInfo
	require.NoError(t, json.Unmarshal(data, &info))
	require.Equal(t, types.SubscriptionStatusActive, info.Status)
}

func TestGetSubscriptionStatus_UnknownUserReadsExpired(t *testing.T) {
	r := subRouter(&stubSubManager{statusErr: ledger.ErrNotFound})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions/42", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	code, data := decodeEnvelope(t, w)
	require.Equal(t, response.APIResponseCodeOK, code)

	var info types.SubscriptionInfo
	require.NoError(t, json.Unmarshal(data, &info))
	require.Equal(t, types.SubscriptionStatusExpired, info.Status)
}

func TestGetSubscriptionStatus_InvalidUserID(t *testing.T) {
	r := subRouter(&stubSubManager{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions/not-a-number", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	code, _ := decodeEnvelope(t, w)
	require.Equal(t, response.APIResponseCodeBadRequest, code)
}

func TestCancelSubscription_NoOpenRow(t *testing.T) {
	r := subRouter(&stubSubManager{cancelErr: ledger.ErrNotFound})

	w := postJSON(t, r, "/api/v1/subscriptions/42/cancel", nil)
	code, _ := decodeEnvelope(t, w)
	require.Equal(t, response.APIResponseCodeBadRequest, code)
}

func TestEnterGroup(t *testing.T) {
	r := subRouter(&stubSubManager{enter: &finalizer.EnterResult{InviteLink: "https://t.me/+abcdef"}})

	w := postJSON(t, r, "/api/v1/subscriptions/42/enter", nil)
	code, data := decodeEnvelope(t, w)
	require.Equal(t, response.APIResponseCodeOK, code)

	var res finalizer.EnterResult
	require.NoError(t, json.Unmarshal(data, &res))
	require.Equal(t, "https://t.me/+abcdef", res.InviteLink)
}

func TestEnterGroup_NoAccess(t *testing.T) {
	r := subRouter(&stubSubManager{enterErr: finalizer.ErrNoAccess})

	w := postJSON(t, r, "/api/v1/subscriptions/42/enter", nil)
	code, _ := decodeEnvelope(t, w)
	require.Equal(t, response.APIResponseCodeBadRequest, code)
}
