// README: Common money value object used across modules.
package types

import "fmt"

// DefaultCurrency is applied when a stored amount has no currency attached.
const DefaultCurrency = "INR"

// Money is an amount in minor units (paise, cents).
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func (m Money) IsZero() bool {
	return m.Amount == 0
}

func (m Money) String() string {
	cur := m.Currency
	if cur == "" {
		cur = DefaultCurrency
	}
	return fmt.Sprintf("%d.%02d %s", m.Amount/100, abs(m.Amount%100), cur)
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
