package store

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"cna-finance/internal/model"
)

const (
	opPay    = "pay"
	opAdjust = "adjust"
)

func txType(op string) string {
	if op == opPay {
		return model.TxPayment
	}
	return model.TxAdminAdjust
}

// ledger keeps balance movements per user. Callers hold Store.mu.
type ledger struct {
	byUser map[int64][]model.Transaction
}

func newLedger() *ledger {
	return &ledger{byUser: make(map[int64][]model.Transaction)}
}

func (l *ledger) record(userID int64, amount decimal.Decimal, typ string, nowMillis int64) model.Transaction {
	tx := model.Transaction{
		ID:        uuid.NewString(),
		UserID:    userID,
		Amount:    amount,
		Type:      typ,
		CreatedAt: nowMillis,
	}
	l.byUser[userID] = append(l.byUser[userID], tx)
	return tx
}

func (l *ledger) forUser(userID int64) []model.Transaction {
	list := l.byUser[userID]
	out := make([]model.Transaction, len(list))
	copy(out, list)
	return out
}

func (l *ledger) all() []model.Transaction {
	var out []model.Transaction
	for _, list := range l.byUser {
		out = append(out, list...)
	}
	return out
}
