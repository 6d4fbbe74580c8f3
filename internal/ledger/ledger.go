package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Side marks an entry as a debit (value leaves the account) or a credit
// (value arrives).
type Side string

const (
	SideDebit  Side = "debit"
	SideCredit Side = "credit"
)

// EntryType distinguishes the origin of a journal entry.
type EntryType string

const (
	EntryTypeTransfer       EntryType = "transfer"
	EntryTypeReserveDeposit EntryType = "reserve_deposit"
)

// SystemReserveAccountRef is the well-known counterparty reference used for
// reserve deposit mints. It is a reserved account name, never an onboarded
// institution.
const SystemReserveAccountRef = "EUPAYGRID_RESERVE_POOL"

var (
	// ErrMalformedEntry indicates an entry that violates the journal's
	// structural rules and must never be appended.
	ErrMalformedEntry = errors.New("malformed ledger entry")

	// ErrUnbalancedPair indicates transfer legs that do not form a valid
	// debit/credit pair.
	ErrUnbalancedPair = errors.New("unbalanced transfer entry pair")
)

// Entry is one debit or credit leg of the immutable double-entry journal.
// Exactly one of TransferID and ReserveDepositID is set. Sequence is assigned
// by the store on append and is the authoritative ordering for replay.
type Entry struct {
	Sequence         int64
	TransferID       string
	ReserveDepositID string
	InstitutionID    string
	AccountRef       string
	CounterpartyRef  string
	Type             EntryType
	Side             Side
	Currency         string
	Amount           int64
	Description      string
	CreatedAt        time.Time
}

// Validate checks the structural rules a single entry must satisfy before it
// may enter the journal.
func (e Entry) Validate() error {
	if e.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrMalformedEntry)
	}
	if e.Side != SideDebit && e.Side != SideCredit {
		return fmt.Errorf("%w: unknown side %q", ErrMalformedEntry, e.Side)
	}
	if e.InstitutionID == "" {
		return fmt.Errorf("%w: institution id is required", ErrMalformedEntry)
	}
	if e.AccountRef == "" {
		return fmt.Errorf("%w: account ref is required", ErrMalformedEntry)
	}
	if e.Currency == "" {
		return fmt.Errorf("%w: currency is required", ErrMalformedEntry)
	}
	switch e.Type {
	case EntryTypeTransfer:
		if e.TransferID == "" || e.ReserveDepositID != "" {
			return fmt.Errorf("%w: transfer entry must reference exactly one transfer", ErrMalformedEntry)
		}
	case EntryTypeReserveDeposit:
		if e.ReserveDepositID == "" || e.TransferID != "" {
			return fmt.Errorf("%w: reserve entry must reference exactly one deposit", ErrMalformedEntry)
		}
	default:
		return fmt.Errorf("%w: unknown entry type %q", ErrMalformedEntry, e.Type)
	}
	return nil
}

// ValidateTransferPair checks that two legs settle the same transfer: one
// debit and one credit, equal amount and currency, referencing each other as
// counterparties.
func ValidateTransferPair(debit, credit Entry) error {
	if debit.Side != SideDebit || credit.Side != SideCredit {
		return fmt.Errorf("%w: expected one debit and one credit leg", ErrUnbalancedPair)
	}
	if debit.TransferID == "" || debit.TransferID != credit.TransferID {
		return fmt.Errorf("%w: legs must reference the same transfer", ErrUnbalancedPair)
	}
	if debit.Amount != credit.Amount {
		return fmt.Errorf("%w: leg amounts differ", ErrUnbalancedPair)
	}
	if debit.Currency != credit.Currency {
		return fmt.Errorf("%w: leg currencies differ", ErrUnbalancedPair)
	}
	if debit.CounterpartyRef != credit.AccountRef || credit.CounterpartyRef != debit.AccountRef {
		return fmt.Errorf("%w: legs must reference each other as counterparties", ErrUnbalancedPair)
	}
	return nil
}

// Store is the append-only journal. There is deliberately no update or delete
// operation: immutability is structural, not a policy. Append assigns and
// returns sequence numbers in insertion order.
type Store interface {
	Append(ctx context.Context, entries []Entry) ([]int64, error)
	ReadAll(ctx context.Context) ([]Entry, error)
	List(ctx context.Context, limit int) ([]Entry, error)
}

// validateBatch applies single-entry validation plus the pairing rule:
// transfer legs may only be appended as a complete debit/credit pair in one
// call, so a settlement can never be half-written.
func validateBatch(entries []Entry) error {
	if len(entries) == 0 {
		return fmt.Errorf("%w: empty append", ErrMalformedEntry)
	}
	transferLegs := make([]Entry, 0, 2)
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return err
		}
		if e.Type == EntryTypeTransfer {
			transferLegs = append(transferLegs, e)
		}
	}
	if len(transferLegs) == 0 {
		return nil
	}
	if len(transferLegs) != 2 {
		return fmt.Errorf("%w: a settlement appends exactly two legs", ErrUnbalancedPair)
	}
	debit, credit := transferLegs[0], transferLegs[1]
	if debit.Side == SideCredit {
		debit, credit = credit, debit
	}
	return ValidateTransferPair(debit, credit)
}
