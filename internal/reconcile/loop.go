package reconcile

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"cna-finance/internal/session"
)

type BalanceFetcher interface {
	FetchUserBalance(ctx context.Context, userID int64) (decimal.Decimal, error)
}

type SessionStore interface {
	Ticket() (session.Ticket, bool)
	ApplyFetched(ticket session.Ticket, balance decimal.Decimal) (bool, error)
}

// Loop keeps the cached balance close to the server value while the
// dashboard is shown. At most one fetch is in flight; ticks that arrive
// while one is running are skipped.
type Loop struct {
	fetcher  BalanceFetcher
	store    SessionStore
	interval time.Duration
	log      *zap.Logger

	trigger  chan struct{}
	inflight atomic.Bool
	wg       sync.WaitGroup

	// OnChange, when set, is called after a different balance was applied.
	OnChange func(balance decimal.Decimal)

	// OnError, when set, sees every failed fetch made while the loop runs.
	// It runs on the fetch goroutine and must not wait for the loop to stop.
	OnError func(err error)
}

func New(fetcher BalanceFetcher, store SessionStore, interval time.Duration, log *zap.Logger) *Loop {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Loop{
		fetcher:  fetcher,
		store:    store,
		interval: interval,
		log:      log,
		trigger:  make(chan struct{}, 1),
	}
}

// Run fetches immediately, then on every interval and on Trigger, until ctx
// is done. It returns only after the in-flight fetch has finished.
func (l *Loop) Run(ctx context.Context) {
	defer l.wg.Wait()

	l.tick(ctx)
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.tick(ctx)
		case <-l.trigger:
			l.tick(ctx)
		}
	}
}

// Trigger requests an out-of-band refresh. Requests made while one is
// already pending collapse into it.
func (l *Loop) Trigger() {
	select {
	case l.trigger <- struct{}{}:
	default:
	}
}

// InFlight reports whether a fetch is currently running.
func (l *Loop) InFlight() bool {
	return l.inflight.Load()
}

func (l *Loop) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if !l.inflight.CompareAndSwap(false, true) {
		l.log.Debug("reconcile: fetch in flight, skipping tick")
		return
	}
	ticket, ok := l.store.Ticket()
	if !ok {
		l.inflight.Store(false)
		return
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer l.inflight.Store(false)
		l.refresh(ctx, ticket)
	}()
}

func (l *Loop) refresh(ctx context.Context, ticket session.Ticket) {
	balance, err := l.fetcher.FetchUserBalance(ctx, ticket.UserID)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		l.log.Warn("reconcile: fetch failed", zap.Int64("userID", ticket.UserID), zap.Error(err))
		if l.OnError != nil {
			l.OnError(err)
		}
		return
	}
	if ctx.Err() != nil {
		l.log.Debug("reconcile: discarding response after cancel", zap.Int64("userID", ticket.UserID))
		return
	}

	changed, err := l.store.ApplyFetched(ticket, balance)
	if err != nil {
		l.log.Debug("reconcile: discarding stale response", zap.Int64("userID", ticket.UserID), zap.Error(err))
		return
	}
	if changed {
		l.log.Info("reconcile: balance updated", zap.Int64("userID", ticket.UserID), zap.String("balance", balance.StringFixed(2)))
		if l.OnChange != nil {
			l.OnChange(balance)
		}
	}
}
