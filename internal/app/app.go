// Package app wires the client together: one session, the screens it
// unlocks, and the background work bound to the dashboard's lifetime.
package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"cna-finance/internal/admin"
	"cna-finance/internal/gateway"
	"cna-finance/internal/model"
	"cna-finance/internal/payment"
	"cna-finance/internal/reconcile"
	"cna-finance/internal/session"
	"cna-finance/internal/view"
)

const MsgMissingFields = "Preencha todos os campos"

type Gateway interface {
	Login(ctx context.Context, username, password string) (model.Identity, error)
	Register(ctx context.Context, username, password string) error
	SetToken(token string)
	reconcile.BalanceFetcher
	payment.Payer
	admin.Gateway
}

// Subscriber delivers server nudges until its context ends.
type Subscriber interface {
	Run(ctx context.Context, nudge func())
}

type Options struct {
	Gateway      Gateway
	Sessions     *session.Store
	PollInterval time.Duration
	AdminVariant admin.Variant
	// NewSubscriber opens the push channel for a session. Nil disables push.
	NewSubscriber func(sess model.Session) (Subscriber, error)
	Logger        *zap.Logger
}

type App struct {
	gw            Gateway
	sessions      *session.Store
	router        *view.Router
	payment       *payment.Flow
	pollInterval  time.Duration
	adminVariant  admin.Variant
	newSubscriber func(model.Session) (Subscriber, error)
	log           *zap.Logger

	mu     sync.Mutex
	admin  *admin.Dashboard
	loop   *reconcile.Loop
	cancel context.CancelFunc
	wg     sync.WaitGroup
	notice string

	// OnBalance, when set, observes every balance the reconciliation loop
	// applies. It runs on the loop's goroutine.
	OnBalance func(decimal.Decimal)
}

func New(opts Options) *App {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	a := &App{
		gw:            opts.Gateway,
		sessions:      opts.Sessions,
		router:        view.NewRouter(),
		pollInterval:  opts.PollInterval,
		adminVariant:  opts.AdminVariant,
		newSubscriber: opts.NewSubscriber,
		log:           log,
	}
	a.payment = payment.NewFlow(opts.Gateway, opts.Sessions, log.Named("payment"))
	a.admin = admin.NewDashboard(opts.Gateway, opts.AdminVariant, log.Named("admin"))
	return a
}

// Restore resumes the persisted session, if any, and hands its token to the
// gateway.
func (a *App) Restore() (model.Session, bool) {
	sess, ok := a.sessions.Restore()
	if ok {
		a.gw.SetToken(sess.Token)
	}
	return sess, ok
}

func (a *App) Session() (model.Session, bool) { return a.sessions.Current() }

func (a *App) Router() *view.Router { return a.router }

func (a *App) Payment() *payment.Flow { return a.payment }

func (a *App) Admin() *admin.Dashboard {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.admin
}

// View is the screen to show now.
func (a *App) View() view.View {
	if sess, ok := a.sessions.Current(); ok {
		return a.router.Current(&sess)
	}
	return a.router.Current(nil)
}

func (a *App) Login(ctx context.Context, username, password string) (model.Session, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return model.Session{}, &gateway.Error{Kind: gateway.ErrAuth, Message: MsgMissingFields}
	}

	identity, err := a.gw.Login(ctx, strings.TrimSpace(username), password)
	if err != nil {
		return model.Session{}, err
	}
	sess, err := a.sessions.Establish(identity)
	if err != nil {
		return model.Session{}, &gateway.Error{Kind: gateway.ErrAuth, Message: gateway.MsgLoginFailed, Err: err}
	}
	a.gw.SetToken(sess.Token)
	a.router.SelectTab(view.TabUser)
	a.TakeNotice()
	a.log.Info("logged in", zap.Int64("user_id", sess.ID), zap.String("role", string(sess.Role)))
	return sess, nil
}

// Register creates an account and sends the user back to the login screen.
// No session is created.
func (a *App) Register(ctx context.Context, username, password string) error {
	if strings.TrimSpace(username) == "" || password == "" {
		return &gateway.Error{Kind: gateway.ErrRegistration, Message: MsgMissingFields}
	}
	if err := a.gw.Register(ctx, strings.TrimSpace(username), password); err != nil {
		return err
	}
	a.router.ShowLogin()
	return nil
}

// Logout is the only way a session ends: background work stops first so
// nothing can write a balance after the session is gone.
func (a *App) Logout() {
	a.LeaveDashboard()
	a.sessions.Clear()
	a.gw.SetToken("")
	a.router.Reset()
	a.payment.SetAmount("")

	a.mu.Lock()
	a.admin = admin.NewDashboard(a.gw, a.adminVariant, a.log.Named("admin"))
	a.mu.Unlock()
	a.log.Info("logged out")
}

// EnterDashboard starts reconciliation, and the push nudge when configured,
// scoped to the dashboard. Calling it again while running is a no-op.
func (a *App) EnterDashboard(ctx context.Context) {
	sess, ok := a.sessions.Current()
	if !ok {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		return
	}

	scope, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	loop := reconcile.New(a.gw, a.sessions, a.pollInterval, a.log.Named("reconcile"))
	loop.OnChange = a.OnBalance
	loop.OnError = func(err error) {
		if errors.Is(err, gateway.ErrSessionExpired) {
			// Logout waits for the loop, so it cannot run on the loop's goroutine.
			go a.expire(sess.Token)
		}
	}
	a.loop = loop

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		loop.Run(scope)
	}()

	if a.newSubscriber == nil || sess.Token == "" {
		return
	}
	sub, err := a.newSubscriber(sess)
	if err != nil {
		a.log.Warn("push disabled", zap.Error(err))
		return
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		sub.Run(scope, loop.Trigger)
	}()
}

// Refresh asks for an immediate balance read if the dashboard is running.
func (a *App) Refresh() {
	a.mu.Lock()
	loop := a.loop
	a.mu.Unlock()
	if loop != nil {
		loop.Trigger()
	}
}

// LeaveDashboard stops background work and waits for it to finish.
func (a *App) LeaveDashboard() {
	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.loop = nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	a.wg.Wait()
}

// Pay submits the amount typed in the payment form. A rejected bearer token
// ends the session.
func (a *App) Pay(ctx context.Context, amountText string) (payment.Outcome, error) {
	a.payment.SetAmount(amountText)
	out, err := a.payment.Submit(ctx)
	if errors.Is(out.Err, gateway.ErrSessionExpired) {
		a.log.Warn("session token rejected on payment")
		a.Logout()
	}
	return out, err
}

// expire logs out when the session holding token is still the current one.
// A session started after the token was rejected is left alone.
func (a *App) expire(token string) {
	sess, ok := a.sessions.Current()
	if !ok || sess.Token != token {
		return
	}
	a.log.Warn("session token rejected; logging out", zap.Int64("user_id", sess.ID))
	a.mu.Lock()
	a.notice = gateway.MsgSessionExpired
	a.mu.Unlock()
	a.Logout()
}

// TakeNotice returns, once, the message explaining a logout that happened in
// the background.
func (a *App) TakeNotice() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := a.notice
	a.notice = ""
	return n
}

// AdminResult reacts to an admin action. A rejected admin credential ends
// the session so the user can log in again.
func (a *App) AdminResult(r admin.Result) admin.Result {
	if r.NeedsReauth {
		a.Logout()
	}
	return r
}
