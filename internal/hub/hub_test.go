package hub

import (
	"encoding/json"
	"errors"
	"testing"
)

type testWriter struct {
	messages [][]byte
	fail     bool
	closed   bool
}

func (w *testWriter) Write(message []byte) error {
	w.messages = append(w.messages, message)
	if w.fail {
		return errors.New("write failed")
	}
	return nil
}

func (w *testWriter) Close() error {
	w.closed = true
	return nil
}

func TestHub_BalanceChangedReachesOnlyThatUser(t *testing.T) {
	h := New()
	alice := &testWriter{}
	bob := &testWriter{}
	h.Register(&Connection{UserID: 1, Writer: alice})
	h.Register(&Connection{UserID: 2, Writer: bob})

	h.BalanceChanged(1)

	if len(alice.messages) != 1 || len(bob.messages) != 0 {
		t.Fatalf("unexpected fan-out alice=%d bob=%d", len(alice.messages), len(bob.messages))
	}
	var ev Event
	if err := json.Unmarshal(alice.messages[0], &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.Type != EventBalanceChanged || ev.UserID != 1 {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	h := New()
	w := &testWriter{}
	c := &Connection{UserID: 7, Writer: w}

	h.Register(c)
	if h.Connections(7) != 1 {
		t.Fatalf("expected 1 connection")
	}
	h.Unregister(c)
	h.BalanceChanged(7)
	if len(w.messages) != 0 || h.Connections(7) != 0 {
		t.Fatalf("expected no delivery after unregister")
	}
}

func TestHub_RemovesFailedConnections(t *testing.T) {
	h := New()
	w := &testWriter{fail: true}
	h.Register(&Connection{UserID: 3, Writer: w})

	h.BalanceChanged(3)
	h.BalanceChanged(3)
	if len(w.messages) != 1 || !w.closed {
		t.Fatalf("expected failed connection closed after first write, writes=%d closed=%v", len(w.messages), w.closed)
	}
}
