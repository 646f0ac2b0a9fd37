// Package notify listens for server push nudges and turns them into
// reconciliation triggers. A nudge never carries a balance.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	eventBalanceChanged = "balance-changed"
	defaultRedialDelay  = 5 * time.Second
)

var ErrNoToken = errors.New("notify: no token")

type event struct {
	Type   string `json:"type"`
	UserID int64  `json:"user_id"`
}

// Subscriber holds one websocket to the backend and redials after drops.
type Subscriber struct {
	url         string
	userID      int64
	dialer      *websocket.Dialer
	redialDelay time.Duration
	log         *zap.Logger
}

type Options struct {
	APIBase     string
	Token       string
	UserID      int64
	RedialDelay time.Duration
	Logger      *zap.Logger
}

func New(opts Options) (*Subscriber, error) {
	if opts.Token == "" {
		return nil, ErrNoToken
	}
	wsURL, err := socketURL(opts.APIBase, opts.Token)
	if err != nil {
		return nil, err
	}
	s := &Subscriber{
		url:         wsURL,
		userID:      opts.UserID,
		dialer:      websocket.DefaultDialer,
		redialDelay: opts.RedialDelay,
		log:         opts.Logger,
	}
	if s.redialDelay <= 0 {
		s.redialDelay = defaultRedialDelay
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s, nil
}

// socketURL maps http(s)://host/api to ws(s)://host/api/ws?token=...
func socketURL(apiBase, token string) (string, error) {
	u, err := url.Parse(strings.TrimRight(apiBase, "/"))
	if err != nil {
		return "", fmt.Errorf("notify: parse api base: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("notify: unsupported scheme %q", u.Scheme)
	}
	u.Path += "/ws"
	u.RawQuery = url.Values{"token": {token}}.Encode()
	return u.String(), nil
}

// Run calls nudge for every balance-changed event until ctx is done.
func (s *Subscriber) Run(ctx context.Context, nudge func()) {
	for {
		err := s.listen(ctx, nudge)
		if ctx.Err() != nil {
			return
		}
		s.log.Debug("push connection dropped", zap.Error(err))

		t := time.NewTimer(s.redialDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

func (s *Subscriber) listen(ctx context.Context, nudge func()) error {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var ev event
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}
		if ev.Type != eventBalanceChanged {
			continue
		}
		if s.userID != 0 && ev.UserID != s.userID {
			continue
		}
		nudge()
	}
}
