package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	cfgpkg "github.com/lumenloft/doorman/pkg/config"
)

func newTestAPI(t *testing.T, handler http.HandlerFunc) *BotAPI {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &cfgpkg.Config{}
	cfg.Telegram.APIBase = srv.URL
	cfg.Telegram.BotToken = "test-token"
	return NewBotAPI(cfg)
}

func respond(w http.ResponseWriter, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func TestApproveJoinRequest_OK(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/bottest-token/approveChatJoinRequest", r.URL.Path)
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		require.EqualValues(t, -100123, payload["chat_id"])
		require.EqualValues(t, 42, payload["user_id"])
		respond(w, map[string]any{"ok": true, "result": true})
	})

	require.NoError(t, api.ApproveJoinRequest(context.Background(), -100123, 42))
}

func TestCall_MapsRateLimit(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		respond(w, map[string]any{
			"ok":          false,
			"error_code":  429,
			"description": "Too Many Requests: retry after 7",
			"parameters":  map[string]any{"retry_after": 7},
		})
	})

	err := api.ApproveJoinRequest(context.Background(), -100123, 42)
	var ra *RetryAfterError
	require.True(t, errors.As(err, &ra))
	require.Equal(t, 7*time.Second, ra.After)
	require.True(t, Retryable(err))
}

func TestCall_MapsMissingJoinRequest(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		respond(w, map[string]any{
			"ok":          false,
			"error_code":  400,
			"description": "Bad Request: HIDE_REQUESTER_MISSING",
		})
	})

	err := api.ApproveJoinRequest(context.Background(), -100123, 42)
	require.ErrorIs(t, err, ErrNoJoinRequest)
	require.False(t, Retryable(err))
}

func TestCall_MapsForbidden(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		respond(w, map[string]any{
			"ok":          false,
			"error_code":  403,
			"description": "Forbidden: bot was blocked by the user",
		})
	})

	err := api.SendMessage(context.Background(), 42, "hello")
	var forbidden *ForbiddenError
	require.True(t, errors.As(err, &forbidden))
	require.False(t, Retryable(err))
}

func TestCall_ServerErrorIsRetryable(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		respond(w, map[string]any{
			"ok":          false,
			"error_code":  502,
			"description": "Bad Gateway",
		})
	})

	err := api.ApproveJoinRequest(context.Background(), -100123, 42)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, 502, apiErr.Code)
	require.True(t, Retryable(err))
}

func TestGetStarTransactions_ParsesLedger(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/bottest-token/getStarTransactions", r.URL.Path)
		respond(w, map[string]any{
			"ok": true,
			"result": map[string]any{
				"transactions": []map[string]any{
					{
						"id":     "tx-1",
						"amount": 449,
						"date":   1735689600,
						"source": map[string]any{"type": "user", "user": map[string]any{"id": 42}},
					},
					{
						// Outgoing transfer, no source user.
						"id":     "tx-2",
						"amount": 100,
						"date":   1735689700,
					},
				},
			},
		})
	})

	txs, err := api.GetStarTransactions(context.Background(), 0, 100)
	require.NoError(t, err)
	require.Len(t, txs, 2)

	require.Equal(t, "tx-1", txs[0].ID)
	require.EqualValues(t, 449, txs[0].Amount)
	require.Equal(t, time.Unix(1735689600, 0).UTC(), txs[0].Date)
	require.NotNil(t, txs[0].SourceUserID)
	require.EqualValues(t, 42, *txs[0].SourceUserID)

	require.Nil(t, txs[1].SourceUserID)
}

func TestCreateInviteLink(t *testing.T) {
	expireAt := time.Now().Add(5 * time.Minute)
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		require.EqualValues(t, expireAt.Unix(), payload["expire_date"])
		require.EqualValues(t, 1, payload["member_limit"])
		respond(w, map[string]any{
			"ok":     true,
			"result": map[string]any{"invite_link": "https://t.me/+abcdef"},
		})
	})

	link, err := api.CreateInviteLink(context.Background(), -100123, expireAt)
	require.NoError(t, err)
	require.Equal(t, "https://t.me/+abcdef", link)
}

func TestRetryable_TransportError(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {})
	// Point at a closed listener to force a transport error.
	api.base = "http://127.0.0.1:1"

	err := api.ApproveJoinRequest(context.Background(), -100123, 42)
	require.Error(t, err)
	require.True(t, Retryable(err))
}
