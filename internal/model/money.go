package model

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

const CurrencySymbol = "CNA$"

var ErrInvalidAmount = errors.New("invalid amount")

// FormatMoney renders a balance the way every screen shows it: "CNA$ 100.00".
func FormatMoney(d decimal.Decimal) string {
	return CurrencySymbol + " " + d.StringFixed(2)
}

// ParseAmount parses user input such as "30", "30.5" or "30,50".
// Only strictly positive amounts are accepted.
func ParseAmount(text string) (decimal.Decimal, error) {
	raw := strings.TrimSpace(text)
	if raw == "" {
		return decimal.Decimal{}, ErrInvalidAmount
	}
	if !strings.Contains(raw, ".") {
		raw = strings.Replace(raw, ",", ".", 1)
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, ErrInvalidAmount
	}
	if !amount.IsPositive() {
		return decimal.Decimal{}, ErrInvalidAmount
	}
	return amount, nil
}
