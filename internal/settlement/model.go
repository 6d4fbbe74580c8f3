package settlement

import "time"

// Transfer statuses. A transfer transitions exactly once from submitted to a
// terminal state within the same processing attempt.
const (
	StatusSubmitted = "submitted"
	StatusSettled   = "settled"
	StatusFailed    = "failed"
)

// FailureInsufficientBalance is the recorded business outcome when the
// sender's balance cannot cover the requested amount.
const FailureInsufficientBalance = "insufficient_balance"

// Transfer is one value movement request between two distinct approved
// institutions.
type Transfer struct {
	ID              string
	SenderCode      string
	RecipientCode   string
	Amount          int64
	Currency        string
	Note            string
	Status          string
	FailureReason   string
	SettlementLayer string
	SettlementTxID  string
	SubmittedAt     time.Time
	SettledAt       *time.Time
}

// Event is the proof-of-settlement record tied 1:1 to a settled transfer.
// Append-only, like the journal.
type Event struct {
	ID         int64
	TransferID string
	Layer      string
	TxID       string
	Status     string
	SettledAt  time.Time
}
