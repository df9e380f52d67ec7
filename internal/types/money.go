// README: Common money value object used across modules.
package types

import "fmt"

// Money is an amount in minor units (cents).
type Money struct {
	Amount   int64
	Currency string
}

func (m Money) Add(o Money) Money {
	cur := m.Currency
	if cur == "" {
		cur = o.Currency
	}
	return Money{Amount: m.Amount + o.Amount, Currency: cur}
}

func (m Money) String() string {
	return fmt.Sprintf("%d.%02d %s", m.Amount/100, m.Amount%100, m.Currency)
}
