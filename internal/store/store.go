package store

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"cna-finance/internal/model"
)

var (
	ErrMissingFields      = errors.New("missing username or password")
	ErrUserExists         = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInsufficientFunds  = errors.New("insufficient funds")
)

// Store is the development backend's ledger: accounts, balances and the
// movements applied to them.
type Store struct {
	mu sync.RWMutex

	stateFile    string
	persistMu    sync.Mutex
	snapshotSeq  uint64
	persistedSeq uint64

	usersByID    map[int64]model.User
	idByUsername map[string]int64
	ledger       *ledger
	replays      *replayCache
	ids          *idSequence
	initial      decimal.Decimal
	bcryptCost   int
	now          func() time.Time
	log          *zap.Logger
}

type Options struct {
	StateFile      string
	InitialBalance decimal.Decimal
	BcryptCost     int
	Now            func() time.Time
	Logger         *zap.Logger
}

func New() *Store {
	return NewWithOptions(Options{})
}

func NewWithOptions(opts Options) *Store {
	s := &Store{
		usersByID:    make(map[int64]model.User),
		idByUsername: make(map[string]int64),
		ledger:       newLedger(),
		replays:      newReplayCache(defaultReplayCapacity),
		ids:          newIDSequence(),
		initial:      opts.InitialBalance,
		bcryptCost:   opts.BcryptCost,
		now:          opts.Now,
		log:          opts.Logger,
		stateFile:    opts.StateFile,
	}
	if s.bcryptCost == 0 {
		s.bcryptCost = bcrypt.DefaultCost
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}

	if s.stateFile != "" {
		if err := s.loadFromFile(s.stateFile); err != nil {
			s.log.Warn("state load failed", zap.String("path", s.stateFile), zap.Error(err))
		}
	}

	return s
}

// CreateUser registers an account. The role is decided by the caller; the
// public registration route always passes model.RoleUser.
func (s *Store) CreateUser(username, password string, role model.Role) (model.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return model.User{}, ErrMissingFields
	}
	if !role.Valid() {
		role = model.RoleUser
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return model.User{}, err
	}

	s.mu.Lock()
	if _, exists := s.idByUsername[username]; exists {
		s.mu.Unlock()
		return model.User{}, ErrUserExists
	}
	now := s.now().UnixMilli()
	u := model.User{
		ID:           s.ids.next(),
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
		Balance:      s.initial,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.usersByID[u.ID] = u
	s.idByUsername[username] = u.ID
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(snapshot)
	return u, nil
}

// EnsureAdmin creates the admin account or resets an existing one's password
// and role so the configured credentials always work.
func (s *Store) EnsureAdmin(username, password string) (model.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return model.User{}, ErrMissingFields
	}

	s.mu.RLock()
	id, exists := s.idByUsername[username]
	s.mu.RUnlock()
	if !exists {
		return s.CreateUser(username, password, model.RoleAdmin)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return model.User{}, err
	}

	s.mu.Lock()
	u := s.usersByID[id]
	u.PasswordHash = string(hash)
	u.Role = model.RoleAdmin
	u.UpdatedAt = s.now().UnixMilli()
	s.usersByID[id] = u
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(snapshot)
	return u, nil
}

func (s *Store) Authenticate(username, password string) (model.User, error) {
	s.mu.RLock()
	id, ok := s.idByUsername[strings.TrimSpace(username)]
	u := s.usersByID[id]
	s.mu.RUnlock()
	if !ok {
		return model.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return model.User{}, ErrInvalidCredentials
	}
	return u, nil
}

func (s *Store) GetUser(id int64) (model.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.usersByID[id]
	return u, ok
}

// ListUsers returns every account ordered by id.
func (s *Store) ListUsers() []model.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedLocked(func(model.User) bool { return true })
}

// SearchUsers matches usernames containing term, case-insensitively. An
// empty term matches nothing.
func (s *Store) SearchUsers(term string) []model.User {
	needle := strings.ToLower(strings.TrimSpace(term))
	if needle == "" {
		return []model.User{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedLocked(func(u model.User) bool {
		return strings.Contains(strings.ToLower(u.Username), needle)
	})
}

func (s *Store) sortedLocked(keep func(model.User) bool) []model.User {
	result := make([]model.User, 0, len(s.usersByID))
	for _, u := range s.usersByID {
		if keep(u) {
			result = append(result, u)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Pay debits amount from the user. A repeated idempotency key returns the
// first outcome without debiting again.
func (s *Store) Pay(userID int64, amount decimal.Decimal, key string) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return s.mutate(opPay, userID, key, func(u *model.User) (decimal.Decimal, error) {
		if u.Balance.LessThan(amount) {
			return decimal.Zero, ErrInsufficientFunds
		}
		u.Balance = u.Balance.Sub(amount)
		return amount.Neg(), nil
	})
}

// AdjustBalance applies a signed admin delta. The balance never drops below
// zero; a removal larger than the balance empties it.
func (s *Store) AdjustBalance(userID int64, delta decimal.Decimal, key string) (decimal.Decimal, error) {
	if delta.IsZero() {
		return decimal.Zero, ErrInvalidAmount
	}
	return s.mutate(opAdjust, userID, key, func(u *model.User) (decimal.Decimal, error) {
		next := u.Balance.Add(delta)
		if next.IsNegative() {
			next = decimal.Zero
		}
		applied := next.Sub(u.Balance)
		u.Balance = next
		return applied, nil
	})
}

func (s *Store) mutate(op string, userID int64, key string, apply func(u *model.User) (decimal.Decimal, error)) (decimal.Decimal, error) {
	s.mu.Lock()

	if key != "" {
		if r, ok := s.replays.get(key); ok {
			s.mu.Unlock()
			if r.op != op || r.userID != userID {
				return decimal.Zero, ErrKeyReused
			}
			return r.balance, r.err
		}
	}

	u, ok := s.usersByID[userID]
	if !ok {
		s.mu.Unlock()
		return decimal.Zero, ErrUserNotFound
	}

	applied, err := apply(&u)
	if err != nil {
		s.replays.put(key, replay{op: op, userID: userID, err: err})
		s.mu.Unlock()
		return decimal.Zero, err
	}

	now := s.now().UnixMilli()
	u.UpdatedAt = now
	s.usersByID[userID] = u
	s.ledger.record(userID, applied, txType(op), now)
	s.replays.put(key, replay{op: op, userID: userID, balance: u.Balance})
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(snapshot)
	return u.Balance, nil
}

// transactions returns the movements recorded for a user, oldest first.
func (s *Store) transactions(userID int64) []model.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger.forUser(userID)
}
