package model

import "github.com/shopspring/decimal"

func init() {
	// Balances travel as JSON numbers on the wire and in the session file.
	decimal.MarshalJSONWithoutQuotes = true
}

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Identity is the payload returned by the backend on login and user lookup.
type Identity struct {
	ID       int64           `json:"id"`
	Username string          `json:"username"`
	Role     Role            `json:"role"`
	Balance  decimal.Decimal `json:"balance"`
	Token    string          `json:"token,omitempty"`
}

// Session is the locally cached identity and balance of the logged-in user.
// Balance is a cache of the server value and is only ever replaced wholesale.
type Session struct {
	ID       int64           `json:"id"`
	Username string          `json:"username"`
	Role     Role            `json:"role"`
	Balance  decimal.Decimal `json:"balance"`
	Token    string          `json:"token,omitempty"`
}

func (s Session) IsAdmin() bool { return s.Role == RoleAdmin }

func SessionFromIdentity(id Identity) Session {
	return Session{
		ID:       id.ID,
		Username: id.Username,
		Role:     id.Role,
		Balance:  id.Balance,
		Token:    id.Token,
	}
}

// RemoteUser is an admin's ephemeral view of another account.
type RemoteUser struct {
	ID       int64           `json:"id"`
	Username string          `json:"username"`
	Role     Role            `json:"role,omitempty"`
	Balance  decimal.Decimal `json:"balance"`
}

// User is the development backend's account record.
type User struct {
	ID           int64           `json:"id"`
	Username     string          `json:"username"`
	PasswordHash string          `json:"passwordHash"`
	Role         Role            `json:"role"`
	Balance      decimal.Decimal `json:"balance"`
	CreatedAt    int64           `json:"createdAt"`
	UpdatedAt    int64           `json:"updatedAt"`
}

func (u User) Identity() Identity {
	return Identity{ID: u.ID, Username: u.Username, Role: u.Role, Balance: u.Balance}
}

func (u User) Remote() RemoteUser {
	return RemoteUser{ID: u.ID, Username: u.Username, Role: u.Role, Balance: u.Balance}
}

// Transaction records a balance movement on the development backend.
type Transaction struct {
	ID        string          `json:"id"`
	UserID    int64           `json:"userId"`
	Amount    decimal.Decimal `json:"amount"`
	Type      string          `json:"type"`
	CreatedAt int64           `json:"createdAt"`
}

const (
	TxPayment     = "pagamento"
	TxAdminAdjust = "ajuste_admin"
)
