package admin

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"cna-finance/internal/gateway"
	"cna-finance/internal/model"
)

// Variant selects how the admin finds the account to adjust.
type Variant string

const (
	// VariantSearch narrows a server-side name search and adjusts one
	// selected user in a focused panel.
	VariantSearch Variant = "search"
	// VariantList shows every user with an inline amount per row,
	// optionally filtered client-side.
	VariantList Variant = "list"
)

type Direction int

const (
	Add Direction = iota
	Remove
)

func (d Direction) String() string {
	if d == Add {
		return "add"
	}
	return "remove"
}

const (
	MsgNoResults     = "Nenhum usuário encontrado."
	MsgSelectAndFill = "Selecione um usuário e insira um valor válido."
)

var (
	ErrInvalidAmount = errors.New("invalid adjustment amount")
	ErrUnknownUser   = errors.New("user not in current view")
)

type Gateway interface {
	ListUsers(ctx context.Context) ([]model.RemoteUser, error)
	SearchUsers(ctx context.Context, nameFragment string) ([]model.RemoteUser, error)
	AdjustBalance(ctx context.Context, userID int64, delta decimal.Decimal, idempotencyKey string) (decimal.Decimal, error)
}

// Result describes what the screen should show after an admin action.
type Result struct {
	Message     string
	Err         error
	NoResults   bool
	NeedsReauth bool
	Balance     decimal.Decimal
}

// Dashboard holds the admin view's ephemeral copy of remote accounts and the
// amounts typed per row.
type Dashboard struct {
	gw      Gateway
	variant Variant
	log     *zap.Logger
	newKey  func() string

	mu       sync.Mutex
	users    []model.RemoteUser
	selected *model.RemoteUser
	pending  map[int64]string
	filter   string
	banner   string
}

func NewDashboard(gw Gateway, variant Variant, log *zap.Logger) *Dashboard {
	if variant != VariantSearch {
		variant = VariantList
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Dashboard{
		gw:      gw,
		variant: variant,
		log:     log,
		newKey:  uuid.NewString,
		pending: make(map[int64]string),
	}
}

func (d *Dashboard) Variant() Variant { return d.variant }

// Refresh reloads the full user list.
func (d *Dashboard) Refresh(ctx context.Context) Result {
	users, err := d.gw.ListUsers(ctx)
	return d.replace(users, err, gateway.MsgSearchFailed)
}

// Search runs a server-side partial name match. A blank term is ignored.
func (d *Dashboard) Search(ctx context.Context, term string) Result {
	term = strings.TrimSpace(term)
	if term == "" {
		return Result{}
	}
	users, err := d.gw.SearchUsers(ctx, term)
	res := d.replace(users, err, gateway.MsgSearchFailed)

	d.mu.Lock()
	d.selected = nil
	d.mu.Unlock()
	return res
}

func (d *Dashboard) replace(users []model.RemoteUser, err error, fallback string) Result {
	d.mu.Lock()
	defer d.mu.Unlock()

	if users == nil {
		users = []model.RemoteUser{}
	}
	d.users = users
	d.prunePendingLocked()

	if err != nil {
		res := Result{Err: err, Message: gateway.Message(err, fallback)}
		if errors.Is(err, gateway.ErrAdminAuth) {
			res.NeedsReauth = true
		}
		if errors.Is(err, gateway.ErrMalformedResponse) {
			d.banner = res.Message
		}
		d.log.Warn("admin: user fetch failed", zap.Error(err))
		return res
	}

	d.banner = ""
	if len(users) == 0 {
		return Result{NoResults: true, Message: MsgNoResults}
	}
	return Result{}
}

// prunePendingLocked drops typed amounts for rows that are no longer shown.
func (d *Dashboard) prunePendingLocked() {
	visible := make(map[int64]struct{}, len(d.users))
	for _, u := range d.users {
		visible[u.ID] = struct{}{}
	}
	for id := range d.pending {
		if _, ok := visible[id]; !ok {
			delete(d.pending, id)
		}
	}
}

// Banner is the persistent error shown above the list, if any.
func (d *Dashboard) Banner() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.banner
}

func (d *Dashboard) Users() []model.RemoteUser {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]model.RemoteUser(nil), d.users...)
}

func (d *Dashboard) SetFilter(filter string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.filter = strings.TrimSpace(filter)
}

// Visible returns the users matching the client-side filter, in server order.
func (d *Dashboard) Visible() []model.RemoteUser {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.filter == "" {
		return append([]model.RemoteUser(nil), d.users...)
	}
	needle := strings.ToLower(d.filter)
	out := make([]model.RemoteUser, 0, len(d.users))
	for _, u := range d.users {
		if strings.Contains(strings.ToLower(u.Username), needle) {
			out = append(out, u)
		}
	}
	return out
}

func (d *Dashboard) Select(userID int64) (model.RemoteUser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range d.users {
		if u.ID == userID {
			sel := u
			d.selected = &sel
			return sel, nil
		}
	}
	return model.RemoteUser{}, ErrUnknownUser
}

func (d *Dashboard) Deselect() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.selected = nil
}

func (d *Dashboard) Selected() (model.RemoteUser, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.selected == nil {
		return model.RemoteUser{}, false
	}
	return *d.selected, true
}

func (d *Dashboard) SetPending(userID int64, amountText string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending[userID] = amountText
}

func (d *Dashboard) Pending(userID int64) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.pending[userID]
	return v, ok
}

// PendingIDs lists the rows that currently hold a typed amount.
func (d *Dashboard) PendingIDs() []int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]int64, 0, len(d.pending))
	for id := range d.pending {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ApplyPending submits the amount typed on userID's row.
func (d *Dashboard) ApplyPending(ctx context.Context, userID int64, dir Direction) Result {
	text, _ := d.Pending(userID)
	return d.ApplyAdjustment(ctx, userID, text, dir)
}

// ApplyAdjustment credits or debits userID by amountText. Invalid amounts are
// rejected without a request. On success the displayed balance comes from the
// server, the row's pending amount is cleared, and the list variant reloads.
func (d *Dashboard) ApplyAdjustment(ctx context.Context, userID int64, amountText string, dir Direction) Result {
	amount, err := model.ParseAmount(amountText)
	if err != nil {
		return Result{Err: ErrInvalidAmount, Message: MsgSelectAndFill}
	}
	delta := amount
	if dir == Remove {
		delta = amount.Neg()
	}

	balance, err := d.gw.AdjustBalance(ctx, userID, delta, d.newKey())
	if err != nil {
		d.log.Info("admin: adjustment rejected", zap.Int64("userID", userID), zap.String("delta", delta.String()), zap.Error(err))
		return Result{
			Err:         err,
			Message:     gateway.Message(err, gateway.MsgAdjustFailed),
			NeedsReauth: errors.Is(err, gateway.ErrAdminAuth),
		}
	}

	username := d.patch(userID, balance)
	res := Result{
		Balance: balance,
		Message: fmt.Sprintf("Sucesso! Novo saldo de %s: %s", username, model.FormatMoney(balance)),
	}

	if d.variant == VariantList {
		users, err := d.gw.ListUsers(ctx)
		if err != nil {
			// The adjustment went through; keep showing the patched rows.
			d.log.Warn("admin: reload after adjustment failed", zap.Error(err))
			res.NeedsReauth = errors.Is(err, gateway.ErrAdminAuth)
		} else {
			d.replace(users, nil, "")
		}
	}
	return res
}

func (d *Dashboard) patch(userID int64, balance decimal.Decimal) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.pending, userID)
	username := fmt.Sprintf("#%d", userID)
	for i := range d.users {
		if d.users[i].ID == userID {
			d.users[i].Balance = balance
			username = d.users[i].Username
		}
	}
	if d.selected != nil && d.selected.ID == userID {
		d.selected.Balance = balance
		username = d.selected.Username
	}
	return username
}
