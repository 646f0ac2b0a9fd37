package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"cna-finance/internal/auth"
	"cna-finance/internal/gateway"
	"cna-finance/internal/model"
	"cna-finance/internal/store"
)

var testTokenCfg = auth.TokenConfig{Secret: "secret", Expiry: time.Hour, Issuer: "test"}

type fixture struct {
	store  *store.Store
	router *gin.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	st := store.NewWithOptions(store.Options{
		InitialBalance: decimal.NewFromInt(100),
		BcryptCost:     bcrypt.MinCost,
	})
	if _, err := st.EnsureAdmin("admin", "admin-pw"); err != nil {
		t.Fatalf("EnsureAdmin: %v", err)
	}
	return &fixture{store: st, router: NewRouter(Deps{Store: st, TokenConfig: testTokenCfg})}
}

func (f *fixture) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
	return body.Error
}

func TestRegisterAndLogin(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/register", map[string]string{"username": "alice", "password": "pw", "role": "admin"}, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	w = f.do(t, http.MethodPost, "/api/register", map[string]string{"username": "alice", "password": "x"}, "")
	if w.Code != http.StatusBadRequest || errorBody(t, w) != "Este usuário já existe" {
		t.Fatalf("expected duplicate rejection, got %d: %s", w.Code, w.Body.String())
	}

	w = f.do(t, http.MethodPost, "/api/login", map[string]string{"username": "alice", "password": "pw"}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var id model.Identity
	if err := json.Unmarshal(w.Body.Bytes(), &id); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if id.Role != model.RoleUser {
		t.Fatalf("registration must never grant admin, got %q", id.Role)
	}
	if id.Token == "" || !id.Balance.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("unexpected identity %+v", id)
	}

	w = f.do(t, http.MethodPost, "/api/login", map[string]string{"username": "alice", "password": "nope"}, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestUserRoutesRequireMatchingToken(t *testing.T) {
	f := newFixture(t)
	alice, _ := f.store.CreateUser("alice", "pw", model.RoleUser)
	bob, _ := f.store.CreateUser("bob", "pw", model.RoleUser)
	bobToken, _ := auth.CreateToken(bob.ID, model.RoleUser, testTokenCfg)

	if w := f.do(t, http.MethodGet, "/api/user/1", nil, ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	w := f.do(t, http.MethodPost, "/api/user/pay", map[string]any{"user_id": alice.ID, "value": 5}, bobToken)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 paying from another account, got %d", w.Code)
	}
	if got, _ := f.store.GetUser(alice.ID); !got.Balance.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("balance must not move, got %s", got.Balance)
	}
}

func TestPay(t *testing.T) {
	f := newFixture(t)
	alice, _ := f.store.CreateUser("alice", "pw", model.RoleUser)
	tok, _ := auth.CreateToken(alice.ID, model.RoleUser, testTokenCfg)

	w := f.do(t, http.MethodPost, "/api/user/pay", map[string]any{"user_id": alice.ID, "value": 30.5}, tok)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		NewBalance decimal.Decimal `json:"new_balance"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !resp.NewBalance.Equal(decimal.RequireFromString("69.5")) {
		t.Fatalf("expected 69.5, got %s", resp.NewBalance)
	}

	w = f.do(t, http.MethodPost, "/api/user/pay", map[string]any{"user_id": alice.ID, "value": 1000}, tok)
	if w.Code != http.StatusBadRequest || errorBody(t, w) != "Saldo insuficiente" {
		t.Fatalf("expected insufficient funds, got %d: %s", w.Code, w.Body.String())
	}

	w = f.do(t, http.MethodGet, "/api/user/1", nil, tok)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 reading the admin account, got %d", w.Code)
	}
}

func TestAdminRoutes(t *testing.T) {
	f := newFixture(t)
	alice, _ := f.store.CreateUser("alice", "pw", model.RoleUser)
	userToken, _ := auth.CreateToken(alice.ID, model.RoleUser, testTokenCfg)
	admin, _ := f.store.Authenticate("admin", "admin-pw")
	adminToken, _ := auth.CreateToken(admin.ID, model.RoleAdmin, testTokenCfg)

	if w := f.do(t, http.MethodGet, "/api/admin/users", nil, userToken); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for user token, got %d", w.Code)
	}

	w := f.do(t, http.MethodGet, "/api/admin/search-users?name=ALI", nil, adminToken)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var found []model.RemoteUser
	if err := json.Unmarshal(w.Body.Bytes(), &found); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(found) != 1 || found[0].ID != alice.ID {
		t.Fatalf("unexpected search result %+v", found)
	}

	w = f.do(t, http.MethodPost, "/api/admin/update-balance", map[string]any{"user_id": alice.ID, "amount": -40}, adminToken)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got, _ := f.store.GetUser(alice.ID); !got.Balance.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("expected 60, got %s", got.Balance)
	}

	w = f.do(t, http.MethodPost, "/api/admin/update-balance", map[string]any{"user_id": 999, "amount": 1}, adminToken)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown user, got %d", w.Code)
	}
}

func TestGatewayAgainstRouter(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	ctx := context.Background()
	gw := gateway.New(gateway.Options{BaseURL: srv.URL + "/api", Timeout: 5 * time.Second})

	if err := gw.Register(ctx, "carol", "pw"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	err := gw.Register(ctx, "carol", "pw")
	if !errors.Is(err, gateway.ErrRegistration) || err.Error() != "Este usuário já existe" {
		t.Fatalf("expected duplicate registration error, got %v", err)
	}

	id, err := gw.Login(ctx, "carol", "pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	gw.SetToken(id.Token)

	bal, err := gw.SubmitPayment(ctx, id.ID, decimal.NewFromInt(25), gw.NewIdempotencyKey())
	if err != nil || !bal.Equal(decimal.NewFromInt(75)) {
		t.Fatalf("SubmitPayment: %s %v", bal, err)
	}
	_, err = gw.SubmitPayment(ctx, id.ID, decimal.NewFromInt(500), gw.NewIdempotencyKey())
	if !errors.Is(err, gateway.ErrPayment) || err.Error() != "Saldo insuficiente" {
		t.Fatalf("expected insufficient funds, got %v", err)
	}

	fetched, err := gw.FetchUserBalance(ctx, id.ID)
	if err != nil || !fetched.Equal(decimal.NewFromInt(75)) {
		t.Fatalf("FetchUserBalance: %s %v", fetched, err)
	}

	if _, err := gw.ListUsers(ctx); !errors.Is(err, gateway.ErrAdminAuth) {
		t.Fatalf("expected admin auth error for plain user, got %v", err)
	}

	adminID, err := gw.Login(ctx, "admin", "admin-pw")
	if err != nil {
		t.Fatalf("admin Login: %v", err)
	}
	gw.SetToken(adminID.Token)

	users, err := gw.SearchUsers(ctx, "car")
	if err != nil || len(users) != 1 {
		t.Fatalf("SearchUsers: %+v %v", users, err)
	}
	newBal, err := gw.AdjustBalance(ctx, id.ID, decimal.NewFromInt(-10), gw.NewIdempotencyKey())
	if err != nil || !newBal.Equal(decimal.NewFromInt(65)) {
		t.Fatalf("AdjustBalance: %s %v", newBal, err)
	}
	all, err := gw.ListUsers(ctx)
	if err != nil || len(all) != 2 {
		t.Fatalf("ListUsers: %+v %v", all, err)
	}
}
