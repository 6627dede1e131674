package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/fx"

	cfgpkg "github.com/lumenloft/doorman/pkg/config"
)

// StarTransaction is one entry of the platform's Stars ledger.
type StarTransaction struct {
	ID     string
	Amount int64
	Date   time.Time
	// SourceUserID is set for incoming (user-paid) transactions only.
	SourceUserID *int64
}

// Client is the outbound surface of the hosting platform consumed by the
// core: access grants/revocation, the authoritative transaction ledger,
// notifications and invite links.
type Client interface {
	// ApproveJoinRequest confirms a pending join request (grant access).
	ApproveJoinRequest(ctx context.Context, chatID, userID int64) error
	// BanChatMember removes the user from the group (revoke access).
	BanChatMember(ctx context.Context, chatID, userID int64) error
	SendMessage(ctx context.Context, chatID int64, text string) error
	// GetStarTransactions pages through the platform ledger, newest first by
	// provider-assigned offset.
	GetStarTransactions(ctx context.Context, offset, limit int) ([]StarTransaction, error)
	// CreateInviteLink mints a single-use link valid until expireAt.
	CreateInviteLink(ctx context.Context, chatID int64, expireAt time.Time) (string, error)
	// EditUserStarSubscription stops or resumes future recurring charges.
	EditUserStarSubscription(ctx context.Context, userID int64, chargeID string, canceled bool) error
}

// BotAPI is the production Client over the HTTP Bot API. The pack offers no
// HTTP client library for this; plain net/http matches how platform SDKs in
// the ecosystem are built.
type BotAPI struct {
	base  string
	token string
	http  *http.Client
}

func NewBotAPI(cfg *cfgpkg.Config) *BotAPI {
	return &BotAPI{
		base:  strings.TrimRight(cfg.Telegram.APIBase, "/"),
		token: cfg.Telegram.BotToken,
		http:  &http.Client{Timeout: 30 * time.Second},
	}
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

func (b *BotAPI) call(ctx context.Context, method string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", method, err)
	}
	url := fmt.Sprintf("%s/bot%s/%s", b.base, b.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.http.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", method, err)
	}

	var ar apiResponse
	if err := json.Unmarshal(raw, &ar); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if !ar.OK {
		return mapAPIError(&ar)
	}
	if out != nil {
		if err := json.Unmarshal(ar.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}
	return nil
}

func mapAPIError(ar *apiResponse) error {
	switch {
	case ar.ErrorCode == http.StatusTooManyRequests:
		after := time.Second
		if ar.Parameters != nil && ar.Parameters.RetryAfter > 0 {
			after = time.Duration(ar.Parameters.RetryAfter) * time.Second
		}
		return &RetryAfterError{After: after}
	case ar.ErrorCode == http.StatusForbidden:
		return &ForbiddenError{Description: ar.Description}
	case ar.ErrorCode == http.StatusBadRequest &&
		strings.Contains(ar.Description, "HIDE_REQUESTER_MISSING"):
		return ErrNoJoinRequest
	default:
		return &APIError{Code: ar.ErrorCode, Description: ar.Description}
	}
}

func (b *BotAPI) ApproveJoinRequest(ctx context.Context, chatID, userID int64) error {
	return b.call(ctx, "approveChatJoinRequest", map[string]any{
		"chat_id": chatID,
		"user_id": userID,
	}, nil)
}

func (b *BotAPI) BanChatMember(ctx context.Context, chatID, userID int64) error {
	return b.call(ctx, "banChatMember", map[string]any{
		"chat_id": chatID,
		"user_id": userID,
	}, nil)
}

func (b *BotAPI) SendMessage(ctx context.Context, chatID int64, text string) error {
	return b.call(ctx, "sendMessage", map[string]any{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "HTML",
	}, nil)
}

type starTransactionWire struct {
	ID     string `json:"id"`
	Amount int64  `json:"amount"`
	Date   int64  `json:"date"`
	Source *struct {
		Type string `json:"type"`
		User *struct {
			ID int64 `json:"id"`
		} `json:"user"`
	} `json:"source"`
}

func (b *BotAPI) GetStarTransactions(ctx context.Context, offset, limit int) ([]StarTransaction, error) {
	var result struct {
		Transactions []starTransactionWire `json:"transactions"`
	}
	err := b.call(ctx, "getStarTransactions", map[string]any{
		"offset": offset,
		"limit":  limit,
	}, &result)
	if err != nil {
		return nil, err
	}
	txs := make([]StarTransaction, 0, len(result.Transactions))
	for _, w := range result.Transactions {
		tx := StarTransaction{
			ID:     w.ID,
			Amount: w.Amount,
			Date:   time.Unix(w.Date, 0).UTC(),
		}
		if w.Source != nil && w.Source.User != nil {
			id := w.Source.User.ID
			tx.SourceUserID = &id
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

func (b *BotAPI) CreateInviteLink(ctx context.Context, chatID int64, expireAt time.Time) (string, error) {
	var result struct {
		InviteLink string `json:"invite_link"`
	}
	err := b.call(ctx, "createChatInviteLink", map[string]any{
		"chat_id":      chatID,
		"expire_date":  expireAt.Unix(),
		"member_limit": 1,
	}, &result)
	if err != nil {
		return "", err
	}
	return result.InviteLink, nil
}

func (b *BotAPI) EditUserStarSubscription(ctx context.Context, userID int64, chargeID string, canceled bool) error {
	return b.call(ctx, "editUserStarSubscription", map[string]any{
		"user_id":                    userID,
		"telegram_payment_charge_id": chargeID,
		"is_canceled":                canceled,
	}, nil)
}

var Module = fx.Options(
	fx.Provide(func(cfg *cfgpkg.Config) Client { return NewBotAPI(cfg) }),
)
