package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"cna-finance/internal/model"
)

const stateVersion = 1

type persistedState struct {
	Version      int                 `json:"version"`
	Users        []model.User        `json:"users"`
	Transactions []model.Transaction `json:"transactions"`
	SavedAt      int64               `json:"savedAt"`
}

type stateSnapshot struct {
	seq   uint64
	state persistedState
}

func (s *Store) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(data) == 0 {
		return nil
	}

	var file persistedState
	if err := json.Unmarshal(data, &file); err != nil {
		return err
	}
	if file.Version != stateVersion {
		return errors.New("unsupported state version")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range file.Users {
		if u.ID <= 0 || u.Username == "" {
			continue
		}
		s.usersByID[u.ID] = u
		s.idByUsername[u.Username] = u.ID
		s.ids.observe(u.ID)
	}
	for _, tx := range file.Transactions {
		if _, ok := s.usersByID[tx.UserID]; !ok {
			continue
		}
		s.ledger.byUser[tx.UserID] = append(s.ledger.byUser[tx.UserID], tx)
	}
	return nil
}

// snapshotLocked captures the state to persist. Callers hold s.mu for writing.
func (s *Store) snapshotLocked() *stateSnapshot {
	if s.stateFile == "" {
		return nil
	}
	s.snapshotSeq++

	users := make([]model.User, 0, len(s.usersByID))
	for _, u := range s.usersByID {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })

	txs := s.ledger.all()
	sort.SliceStable(txs, func(i, j int) bool { return txs[i].CreatedAt < txs[j].CreatedAt })

	return &stateSnapshot{
		seq: s.snapshotSeq,
		state: persistedState{
			Version:      stateVersion,
			Users:        users,
			Transactions: txs,
			SavedAt:      s.now().UnixMilli(),
		},
	}
}

// persist writes snap unless a newer snapshot already reached disk.
func (s *Store) persist(snap *stateSnapshot) {
	if snap == nil {
		return
	}

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	if snap.seq <= s.persistedSeq {
		return
	}
	if err := writeFileAtomic(s.stateFile, snap.state); err != nil {
		s.log.Warn("state persist failed", zap.String("path", s.stateFile), zap.Error(err))
		return
	}
	s.persistedSeq = snap.seq
}

func writeFileAtomic(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	return os.Rename(tmpName, path)
}
