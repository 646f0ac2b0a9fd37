package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"cna-finance/internal/model"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type paymentBody struct {
	UserID int64           `json:"user_id"`
	Value  decimal.Decimal `json:"value"`
}

type balanceBody struct {
	NewBalance       decimal.NullDecimal `json:"new_balance"`
	RemainingBalance decimal.NullDecimal `json:"remaining_balance"`
}

func (b balanceBody) balance() (decimal.Decimal, bool) {
	if b.NewBalance.Valid {
		return b.NewBalance.Decimal, true
	}
	if b.RemainingBalance.Valid {
		return b.RemainingBalance.Decimal, true
	}
	return decimal.Decimal{}, false
}

func (c *Client) Login(ctx context.Context, username, password string) (model.Identity, error) {
	resp, err := c.do(ctx, http.MethodPost, "/login", credentials{Username: username, Password: password}, "")
	if err != nil {
		return model.Identity{}, &Error{Kind: ErrAuth, Message: MsgLoginFailed, Err: err}
	}
	if !resp.ok() {
		return model.Identity{}, &Error{Kind: ErrAuth, Status: resp.status, Message: resp.messageOr(MsgLoginFailed)}
	}

	var id model.Identity
	if err := decode(resp.body, &id); err != nil {
		return model.Identity{}, &Error{Kind: ErrAuth, Status: resp.status, Message: MsgLoginFailed, Err: err}
	}
	return id, nil
}

func (c *Client) Register(ctx context.Context, username, password string) error {
	resp, err := c.do(ctx, http.MethodPost, "/register", credentials{Username: username, Password: password}, "")
	if err != nil {
		return &Error{Kind: ErrRegistration, Message: MsgRegisterFailed, Err: err}
	}
	if !resp.ok() {
		return &Error{Kind: ErrRegistration, Status: resp.status, Message: resp.messageOr(MsgRegisterFailed)}
	}
	return nil
}

// FetchUser returns the server's current view of a user.
func (c *Client) FetchUser(ctx context.Context, userID int64) (model.Identity, error) {
	resp, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/user/%d", userID), nil, "")
	if err != nil {
		return model.Identity{}, &Error{Kind: ErrSync, Message: MsgSyncFailed, Err: err}
	}
	if resp.status == http.StatusUnauthorized {
		return model.Identity{}, expired(ErrSync, resp.status)
	}
	if !resp.ok() {
		return model.Identity{}, &Error{Kind: ErrSync, Status: resp.status, Message: resp.messageOr(MsgSyncFailed)}
	}

	var id model.Identity
	if err := decode(resp.body, &id); err != nil {
		return model.Identity{}, &Error{Kind: ErrSync, Status: resp.status, Message: MsgSyncFailed, Err: err}
	}
	return id, nil
}

func (c *Client) FetchUserBalance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	id, err := c.FetchUser(ctx, userID)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return id.Balance, nil
}

// SubmitPayment debits amount from the user's balance and returns the new
// balance. amount must be positive; this is checked before any request.
func (c *Client) SubmitPayment(ctx context.Context, userID int64, amount decimal.Decimal, idempotencyKey string) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Decimal{}, &Error{Kind: ErrPayment, Message: MsgInvalidAmount}
	}

	resp, err := c.do(ctx, http.MethodPost, "/user/pay", paymentBody{UserID: userID, Value: amount}, idempotencyKey)
	if err != nil {
		return decimal.Decimal{}, &Error{Kind: ErrPayment, Message: MsgPaymentFailed, Err: err}
	}
	if resp.status == http.StatusUnauthorized {
		return decimal.Decimal{}, expired(ErrPayment, resp.status)
	}
	if !resp.ok() {
		return decimal.Decimal{}, &Error{Kind: ErrPayment, Status: resp.status, Message: resp.messageOr(MsgPaymentFailed)}
	}

	var body balanceBody
	if err := decode(resp.body, &body); err != nil {
		return decimal.Decimal{}, &Error{Kind: ErrPayment, Status: resp.status, Message: MsgPaymentFailed, Err: err}
	}
	balance, ok := body.balance()
	if !ok {
		return decimal.Decimal{}, &Error{Kind: ErrPayment, Status: resp.status, Message: MsgPaymentFailed, Err: ErrMalformedResponse}
	}
	return balance, nil
}

// expired reports a bearer token the server stopped accepting. The error
// matches both kind and ErrSessionExpired; the caller is expected to end the
// session.
func expired(kind error, status int) *Error {
	return &Error{Kind: kind, Status: status, Message: MsgSessionExpired, Err: ErrSessionExpired}
}
