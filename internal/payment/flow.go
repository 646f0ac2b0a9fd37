package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"cna-finance/internal/gateway"
	"cna-finance/internal/model"
	"cna-finance/internal/session"
)

type State int

const (
	Idle State = iota
	Validating
	Submitting
	Success
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Validating:
		return "validating"
	case Submitting:
		return "submitting"
	case Success:
		return "success"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

const (
	MsgInsufficientFunds = "Saldo insuficiente"
	MsgNoSession         = "Sessão encerrada. Faça login novamente."
)

var ErrBusy = errors.New("payment already in progress")

type Payer interface {
	SubmitPayment(ctx context.Context, userID int64, amount decimal.Decimal, idempotencyKey string) (decimal.Decimal, error)
}

type SessionStore interface {
	Current() (model.Session, bool)
	Ticket() (session.Ticket, bool)
	UpdateBalanceFor(ticket session.Ticket, balance decimal.Decimal) (bool, error)
}

// Outcome is the terminal result of one Submit.
type Outcome struct {
	State   State
	Message string
	Balance decimal.Decimal
	Err     error
}

// Flow is the user's payment form: an amount input plus the
// Idle → Validating → Submitting → Success|Failed → Idle machine.
// It never retries on its own; every submission gets a fresh idempotency key.
type Flow struct {
	payer  Payer
	store  SessionStore
	log    *zap.Logger
	newKey func() string

	mu     sync.Mutex
	state  State
	amount string
	last   Outcome

	// OnTransition, when set, observes every state change.
	OnTransition func(State)
}

func NewFlow(payer Payer, store SessionStore, log *zap.Logger) *Flow {
	if log == nil {
		log = zap.NewNop()
	}
	return &Flow{payer: payer, store: store, log: log, newKey: uuid.NewString}
}

func (f *Flow) SetAmount(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.amount = text
}

func (f *Flow) Amount() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.amount
}

func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Last returns the outcome of the most recent completed Submit.
func (f *Flow) Last() Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

// Submit validates the current amount against the cached balance and, if it
// passes, sends exactly one payment. It returns ErrBusy when a submission is
// already running.
func (f *Flow) Submit(ctx context.Context) (Outcome, error) {
	f.mu.Lock()
	if f.state != Idle {
		f.mu.Unlock()
		return Outcome{}, ErrBusy
	}
	f.state = Validating
	text := f.amount
	cb := f.OnTransition
	f.mu.Unlock()
	if cb != nil {
		cb(Validating)
	}

	sess, ok := f.store.Current()
	ticket, hasTicket := f.store.Ticket()
	if !ok || !hasTicket {
		return f.finish(f.failure(MsgNoSession, session.ErrNoSession)), nil
	}

	amount, err := model.ParseAmount(text)
	if err != nil {
		return f.finish(f.failure(gateway.MsgInvalidAmount, nil)), nil
	}
	if amount.GreaterThan(sess.Balance) {
		return f.finish(f.failure(MsgInsufficientFunds, nil)), nil
	}

	f.transition(Submitting)
	balance, err := f.payer.SubmitPayment(ctx, sess.ID, amount, f.newKey())
	if err != nil {
		f.log.Info("payment rejected", zap.Int64("userID", sess.ID), zap.Error(err))
		return f.finish(Outcome{State: Failed, Message: gateway.Message(err, gateway.MsgPaymentFailed), Err: err}), nil
	}

	if _, err := f.store.UpdateBalanceFor(ticket, balance); err != nil {
		f.log.Warn("payment succeeded for a session that is no longer current", zap.Int64("userID", sess.ID))
	}

	f.mu.Lock()
	f.amount = ""
	f.mu.Unlock()

	return f.finish(Outcome{
		State:   Success,
		Message: fmt.Sprintf("%s pagos com sucesso!", model.FormatMoney(amount)),
		Balance: balance,
	}), nil
}

func (f *Flow) failure(msg string, cause error) Outcome {
	return Outcome{
		State:   Failed,
		Message: msg,
		Err:     &gateway.Error{Kind: gateway.ErrPayment, Message: msg, Err: cause},
	}
}

func (f *Flow) finish(out Outcome) Outcome {
	f.transition(out.State)
	f.mu.Lock()
	f.last = out
	f.mu.Unlock()
	f.transition(Idle)
	return out
}

func (f *Flow) transition(s State) {
	f.mu.Lock()
	f.state = s
	cb := f.OnTransition
	f.mu.Unlock()
	if cb != nil {
		cb(s)
	}
}
