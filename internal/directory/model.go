package directory

import "time"

// Institution lifecycle statuses. Institutions are never deleted.
const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusSuspended = "suspended"
)

// Institution is a regulated participant in the network, identified by its
// public code (e.g. EUPG-1A2B3C4D) and gated by status.
type Institution struct {
	Code      string
	LegalName string
	CVRNumber string
	Country   string
	Status    string
	CreatedAt time.Time
	Wallet    Wallet
}

// Wallet is the per-institution account wrapper. The pseudonymous id is the
// stable opaque reference used in ledger entries and privacy-constrained
// views; the freeze flag is independent of the institution status.
type Wallet struct {
	Address        string
	PseudonymousID string
	IsFrozen       bool
}

// AdminAction is the append-only audit record of a governance operation.
type AdminAction struct {
	ID         int64
	ActionType string
	Actor      string
	TargetCode string
	Reason     string
	Metadata   map[string]any
	Timestamp  time.Time
}
