package reserve

import "time"

// Deposit is the immutable record of an external fiat inflow converted into
// an internal balance credit. Created once, never mutated.
type Deposit struct {
	ID              string
	InstitutionCode string
	Amount          int64
	Currency        string
	Reference       string
	CreatedBy       string
	CreatedAt       time.Time
	BalanceAfter    int64
}
