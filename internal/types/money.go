// README: Common money value object used across modules.
package types

import (
	"github.com/shopspring/decimal"
)

const DefaultCurrency = "TWD"

// moneyPrecision is the number of decimal places kept for fares and offers.
const moneyPrecision int32 = 2

type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

func NewMoney(amount decimal.Decimal, currency string) Money {
	if currency == "" {
		currency = DefaultCurrency
	}
	return Money{Amount: amount.Round(moneyPrecision), Currency: currency}
}

// ParseMoney accepts a decimal string such as "150" or "149.50".
func ParseMoney(amount, currency string) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, err
	}
	return NewMoney(d, currency), nil
}

func (m Money) IsPositive() bool {
	return m.Amount.IsPositive()
}

func (m Money) SameCurrency(o Money) bool {
	return m.Currency == o.Currency
}

// Cmp compares amounts only; callers keep offers in one currency per auction.
func (m Money) Cmp(o Money) int {
	return m.Amount.Cmp(o.Amount)
}

func (m Money) String() string {
	return m.Amount.StringFixed(moneyPrecision) + " " + m.Currency
}
