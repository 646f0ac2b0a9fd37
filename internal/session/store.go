package session

import (
	"encoding/json"
	"errors"
	"os"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"cna-finance/internal/model"
)

var (
	ErrInvalidIdentity = errors.New("invalid identity")
	ErrNoSession       = errors.New("no session")
	ErrStaleSession    = errors.New("stale session")
	ErrStaleResponse   = errors.New("response older than last write")
)

// Ticket identifies the Session that was current when async work started.
// Results carrying an outdated ticket are dropped.
type Ticket struct {
	Generation uint64
	UserID     int64
	Seq        uint64
}

// Store holds the logged-in Session and mirrors it to durable storage.
// Writes to storage happen under mu so the file always matches memory order.
type Store struct {
	mu         sync.RWMutex
	storage    Storage
	log        *zap.Logger
	current    *model.Session
	generation uint64
	// issued counts tickets handed out; barrier is the last issued count at
	// the time of an authoritative write. Fetches ticketed at or before the
	// barrier may carry a pre-write balance.
	issued  uint64
	barrier uint64
}

func New(storage Storage, log *zap.Logger) *Store {
	if storage == nil {
		storage = NewMemoryStorage()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{storage: storage, log: log}
}

// Restore loads a previously persisted Session. A missing or malformed
// record leaves the store logged out.
func (s *Store) Restore() (model.Session, bool) {
	data, err := s.storage.Load()
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.Warn("session restore: load failed", zap.Error(err))
		}
		return model.Session{}, false
	}

	var sess model.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		s.log.Warn("session restore: malformed record", zap.Error(err))
		return model.Session{}, false
	}
	if err := validate(sess); err != nil {
		s.log.Warn("session restore: incomplete record", zap.Error(err))
		return model.Session{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.current = &sess
	return sess, true
}

func (s *Store) Establish(identity model.Identity) (model.Session, error) {
	sess := model.SessionFromIdentity(identity)
	if err := validate(sess); err != nil {
		return model.Session{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.current = &sess
	s.persistLocked()
	return sess, nil
}

// UpdateBalance overwrites the cached balance of the current Session.
func (s *Store) UpdateBalance(balance decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ErrNoSession
	}
	s.barrier = s.issued
	s.applyLocked(balance)
	return nil
}

// UpdateBalanceFor applies the result of a write (a payment) if ticket still
// names the current Session. Fetches ticketed before this call can no longer
// apply. It reports whether the cached value changed.
func (s *Store) UpdateBalanceFor(ticket Ticket, balance decimal.Decimal) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.currentLocked(ticket) {
		return false, ErrStaleSession
	}
	s.barrier = s.issued
	return s.applyLocked(balance), nil
}

// ApplyFetched applies a balance read from the server. The read is dropped
// when the Session changed or a write landed after the ticket was taken.
func (s *Store) ApplyFetched(ticket Ticket, balance decimal.Decimal) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.currentLocked(ticket) {
		return false, ErrStaleSession
	}
	if ticket.Seq <= s.barrier {
		return false, ErrStaleResponse
	}
	return s.applyLocked(balance), nil
}

func (s *Store) currentLocked(ticket Ticket) bool {
	return s.current != nil && s.generation == ticket.Generation && s.current.ID == ticket.UserID
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.current = nil
	if err := s.storage.Remove(); err != nil {
		s.log.Warn("session clear: remove failed", zap.Error(err))
	}
}

func (s *Store) Current() (model.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return model.Session{}, false
	}
	return *s.current, true
}

// Ticket captures the identity of the current Session for later checks.
func (s *Store) Ticket() (Ticket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Ticket{}, false
	}
	s.issued++
	return Ticket{Generation: s.generation, UserID: s.current.ID, Seq: s.issued}, true
}

func (s *Store) applyLocked(balance decimal.Decimal) bool {
	if s.current.Balance.Equal(balance) {
		return false
	}
	s.current.Balance = balance
	s.persistLocked()
	return true
}

func (s *Store) persistLocked() {
	data, err := json.Marshal(s.current)
	if err != nil {
		s.log.Warn("session persist: marshal failed", zap.Error(err))
		return
	}
	if err := s.storage.Save(data); err != nil {
		s.log.Warn("session persist: save failed", zap.Error(err))
	}
}

func validate(sess model.Session) error {
	if sess.ID == 0 || sess.Username == "" || !sess.Role.Valid() {
		return ErrInvalidIdentity
	}
	return nil
}
