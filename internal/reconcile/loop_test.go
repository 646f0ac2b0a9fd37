package reconcile

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"cna-finance/internal/model"
	"cna-finance/internal/session"
)

type fakeFetcher struct {
	calls   int32
	balance decimal.Decimal
	err     error
	// when set, each fetch waits for a value on release before returning
	release chan struct{}
	started chan struct{}
}

func (f *fakeFetcher) FetchUserBalance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	return f.balance, f.err
}

func (f *fakeFetcher) Calls() int { return int(atomic.LoadInt32(&f.calls)) }

func newStore(t *testing.T) *session.Store {
	t.Helper()
	st := session.New(session.NewMemoryStorage(), nil)
	_, err := st.Establish(model.Identity{ID: 1, Username: "alice", Role: model.RoleUser, Balance: decimal.NewFromInt(100)})
	if err != nil {
		t.Fatalf("Establish: %v", err)
	}
	return st
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

func TestLoop_FetchesImmediatelyAndApplies(t *testing.T) {
	st := newStore(t)
	f := &fakeFetcher{balance: decimal.NewFromInt(120)}
	l := New(f, st, time.Hour, nil)

	var changed atomic.Int32
	l.OnChange = func(decimal.Decimal) { changed.Add(1) }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { l.Run(ctx); close(done) }()

	waitFor(t, func() bool {
		cur, _ := st.Current()
		return cur.Balance.Equal(decimal.NewFromInt(120))
	})
	cancel()
	<-done
	if changed.Load() != 1 {
		t.Fatalf("expected one change notification, got %d", changed.Load())
	}
}

func TestLoop_TriggerRefetches(t *testing.T) {
	st := newStore(t)
	f := &fakeFetcher{balance: decimal.NewFromInt(100)}
	l := New(f, st, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { l.Run(ctx); close(done) }()

	waitFor(t, func() bool { return f.Calls() == 1 && !l.InFlight() })
	l.Trigger()
	waitFor(t, func() bool { return f.Calls() == 2 })
	cancel()
	<-done
}

func TestLoop_SkipsTicksWhileInFlight(t *testing.T) {
	st := newStore(t)
	f := &fakeFetcher{balance: decimal.NewFromInt(100), release: make(chan struct{}), started: make(chan struct{}, 8)}
	l := New(f, st, time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { l.Run(ctx); close(done) }()

	<-f.started
	// Many ticks elapse and triggers arrive while the first fetch hangs.
	for i := 0; i < 5; i++ {
		l.Trigger()
		time.Sleep(5 * time.Millisecond)
	}
	if f.Calls() != 1 {
		t.Fatalf("expected a single in-flight fetch, got %d", f.Calls())
	}

	cancel()
	close(f.release)
	<-done
}

func TestLoop_DiscardsResponseAfterLogout(t *testing.T) {
	st := newStore(t)
	f := &fakeFetcher{balance: decimal.NewFromInt(999), release: make(chan struct{}), started: make(chan struct{}, 1)}
	l := New(f, st, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { l.Run(ctx); close(done) }()

	<-f.started
	st.Clear()
	close(f.release)
	waitFor(t, func() bool { return !l.InFlight() })

	if _, ok := st.Current(); ok {
		t.Fatalf("late response must not recreate the session")
	}
	cancel()
	<-done
}

func TestLoop_DiscardsResponseForNewSession(t *testing.T) {
	st := newStore(t)
	f := &fakeFetcher{balance: decimal.NewFromInt(999), release: make(chan struct{}), started: make(chan struct{}, 1)}
	l := New(f, st, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { l.Run(ctx); close(done) }()

	<-f.started
	st.Clear()
	if _, err := st.Establish(model.Identity{ID: 2, Username: "bob", Role: model.RoleUser, Balance: decimal.NewFromInt(5)}); err != nil {
		t.Fatalf("Establish: %v", err)
	}
	close(f.release)
	waitFor(t, func() bool { return !l.InFlight() })

	cur, _ := st.Current()
	if cur.ID != 2 || !cur.Balance.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("stale response leaked into new session: %+v", cur)
	}
	cancel()
	<-done
}

func TestLoop_DiscardsResponseOlderThanPayment(t *testing.T) {
	st := newStore(t)
	f := &fakeFetcher{balance: decimal.NewFromInt(100), release: make(chan struct{}), started: make(chan struct{}, 1)}
	l := New(f, st, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { l.Run(ctx); close(done) }()

	<-f.started
	// A payment completes while the read is still in flight.
	ticket, _ := st.Ticket()
	if _, err := st.UpdateBalanceFor(ticket, decimal.NewFromInt(70)); err != nil {
		t.Fatalf("UpdateBalanceFor: %v", err)
	}
	close(f.release)
	waitFor(t, func() bool { return !l.InFlight() })

	cur, _ := st.Current()
	if !cur.Balance.Equal(decimal.NewFromInt(70)) {
		t.Fatalf("pre-payment read overwrote the payment result: %s", cur.Balance)
	}
	cancel()
	<-done
}

func TestLoop_FetchErrorsAreSwallowed(t *testing.T) {
	st := newStore(t)
	f := &fakeFetcher{err: errors.New("boom")}
	l := New(f, st, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { l.Run(ctx); close(done) }()

	waitFor(t, func() bool { return f.Calls() == 1 && !l.InFlight() })
	l.Trigger()
	waitFor(t, func() bool { return f.Calls() == 2 })
	cancel()
	<-done

	cur, ok := st.Current()
	if !ok || !cur.Balance.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected session untouched, got %+v", cur)
	}
}

func TestLoop_ReportsFetchErrors(t *testing.T) {
	st := newStore(t)
	boom := errors.New("boom")
	f := &fakeFetcher{err: boom}
	l := New(f, st, time.Hour, nil)

	reported := make(chan error, 1)
	l.OnError = func(err error) {
		select {
		case reported <- err:
		default:
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { l.Run(ctx); close(done) }()

	select {
	case err := <-reported:
		if !errors.Is(err, boom) {
			t.Fatalf("unexpected error %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("fetch error was not reported")
	}
	cancel()
	<-done
}

func TestLoop_RunWaitsForInFlightFetch(t *testing.T) {
	st := newStore(t)
	f := &fakeFetcher{balance: decimal.NewFromInt(1), release: make(chan struct{}), started: make(chan struct{}, 1)}
	l := New(f, st, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { l.Run(ctx); close(done) }()

	<-f.started
	cancel()

	select {
	case <-done:
		t.Fatalf("Run returned before the in-flight fetch finished")
	case <-time.After(20 * time.Millisecond):
	}

	close(f.release)
	<-done

	cur, _ := st.Current()
	if !cur.Balance.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("response after cancel must be discarded, got %s", cur.Balance)
	}
}
