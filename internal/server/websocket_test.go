package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"cna-finance/internal/auth"
	"cna-finance/internal/hub"
	"cna-finance/internal/model"
	"cna-finance/internal/store"
)

func TestWebSocketBalanceChanged(t *testing.T) {
	gin.SetMode(gin.TestMode)
	st := store.NewWithOptions(store.Options{InitialBalance: decimal.NewFromInt(100), BcryptCost: bcrypt.MinCost})
	h := hub.New()
	r := NewRouter(Deps{Store: st, Hub: h, TokenConfig: testTokenCfg})

	alice, _ := st.CreateUser("alice", "pw", model.RoleUser)
	tok, err := auth.CreateToken(alice.ID, model.RoleUser, testTokenCfg)
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}

	srv := httptest.NewServer(r)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws?token=" + tok
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for h.Connections(alice.ID) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("connection never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/user/pay", strings.NewReader(`{"user_id":1,"value":10}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev hub.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if ev.Type != hub.EventBalanceChanged || ev.UserID != alice.ID {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestWebSocketRejectsBadToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := NewRouter(Deps{Store: store.New(), TokenConfig: testTokenCfg})
	srv := httptest.NewServer(r)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws?token=bogus"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatalf("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 response, got %+v", resp)
	}
}
