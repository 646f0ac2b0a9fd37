package gateway

import (
	"bytes"
	"context"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"

	"cna-finance/internal/model"
)

type adjustBody struct {
	UserID int64           `json:"user_id"`
	Amount decimal.Decimal `json:"amount"`
}

func (c *Client) ListUsers(ctx context.Context) ([]model.RemoteUser, error) {
	return c.fetchUsers(ctx, "/admin/users")
}

// SearchUsers asks the backend for a case-insensitive partial match on name.
func (c *Client) SearchUsers(ctx context.Context, nameFragment string) ([]model.RemoteUser, error) {
	return c.fetchUsers(ctx, "/admin/search-users?name="+url.QueryEscape(nameFragment))
}

func (c *Client) fetchUsers(ctx context.Context, path string) ([]model.RemoteUser, error) {
	if c.Token() == "" {
		return []model.RemoteUser{}, &Error{Kind: ErrAdminAuth, Message: MsgAdminAuth}
	}

	resp, err := c.do(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return []model.RemoteUser{}, &Error{Kind: ErrRequest, Message: MsgSearchFailed, Err: err}
	}
	if resp.unauthorized() {
		return []model.RemoteUser{}, &Error{Kind: ErrAdminAuth, Status: resp.status, Message: resp.messageOr(MsgAdminAuth)}
	}
	if !resp.ok() {
		return []model.RemoteUser{}, &Error{Kind: ErrRequest, Status: resp.status, Message: resp.messageOr(MsgSearchFailed)}
	}

	trimmed := bytes.TrimSpace(resp.body)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return []model.RemoteUser{}, &Error{Kind: ErrMalformedResponse, Status: resp.status, Message: MsgMalformed}
	}
	users := make([]model.RemoteUser, 0)
	if err := decode(trimmed, &users); err != nil {
		return []model.RemoteUser{}, &Error{Kind: ErrMalformedResponse, Status: resp.status, Message: MsgMalformed, Err: err}
	}
	return users, nil
}

// AdjustBalance applies a signed delta to userID's balance and returns the
// balance the server computed.
func (c *Client) AdjustBalance(ctx context.Context, userID int64, delta decimal.Decimal, idempotencyKey string) (decimal.Decimal, error) {
	if delta.IsZero() {
		return decimal.Decimal{}, &Error{Kind: ErrAdjustment, Message: MsgInvalidDelta}
	}
	if c.Token() == "" {
		return decimal.Decimal{}, &Error{Kind: ErrAdjustment, Message: MsgAdminAuth, Err: ErrAdminAuth}
	}

	resp, err := c.do(ctx, http.MethodPost, "/admin/update-balance", adjustBody{UserID: userID, Amount: delta}, idempotencyKey)
	if err != nil {
		return decimal.Decimal{}, &Error{Kind: ErrAdjustment, Message: MsgAdjustFailed, Err: err}
	}
	if resp.unauthorized() {
		return decimal.Decimal{}, &Error{Kind: ErrAdjustment, Status: resp.status, Message: resp.messageOr(MsgAdminAuth), Err: ErrAdminAuth}
	}
	if !resp.ok() {
		return decimal.Decimal{}, &Error{Kind: ErrAdjustment, Status: resp.status, Message: resp.messageOr(MsgAdjustFailed)}
	}

	var body balanceBody
	if err := decode(resp.body, &body); err != nil {
		return decimal.Decimal{}, &Error{Kind: ErrAdjustment, Status: resp.status, Message: MsgAdjustFailed, Err: err}
	}
	balance, ok := body.balance()
	if !ok {
		return decimal.Decimal{}, &Error{Kind: ErrAdjustment, Status: resp.status, Message: MsgAdjustFailed, Err: ErrMalformedResponse}
	}
	return balance, nil
}
