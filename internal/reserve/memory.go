package reserve

import (
	"context"
	"fmt"
	"time"

	"github.com/eupaygrid/eupaygrid/internal/directory"
	"github.com/eupaygrid/eupaygrid/internal/ledger"
	"github.com/eupaygrid/eupaygrid/internal/outbox"
	"github.com/eupaygrid/eupaygrid/internal/projection"
)

type memoryStore struct {
	journal ledger.Store
	proj    projection.Projector
	events  outbox.Store
	actions directory.Repository
	locks   *projection.KeyLock
}

// NewMemoryStore builds the dev/test reserve store around the shared core
// components. It must share the journal, projection and locks with the
// settlement store so both paths serialize on the same balance rows.
func NewMemoryStore(journal ledger.Store, proj projection.Projector, events outbox.Store, actions directory.Repository, locks *projection.KeyLock) Store {
	return &memoryStore{journal: journal, proj: proj, events: events, actions: actions, locks: locks}
}

func (s *memoryStore) Record(ctx context.Context, institution directory.Institution, deposit Deposit) (Deposit, error) {
	unlock := s.locks.Lock(institution.Code)
	defer unlock()

	entry := MintEntry(institution, deposit)
	if _, err := s.journal.Append(ctx, []ledger.Entry{entry}); err != nil {
		return Deposit{}, err
	}
	balance, err := s.proj.Apply(ctx, entry)
	if err != nil {
		return Deposit{}, err
	}
	deposit.BalanceAfter = balance

	if err := s.actions.AppendAction(ctx, AuditAction(institution, deposit)); err != nil {
		return Deposit{}, err
	}
	if _, err := s.events.Append(ctx, "reserve_deposit.recorded", Payload(deposit)); err != nil {
		return Deposit{}, err
	}
	return deposit, nil
}

// MintEntry builds the single credit leg of a reserve mint. There is no
// matching debit: the inflow is backed by an off-ledger fiat assertion, with
// the well-known reserve pool as counterparty.
func MintEntry(institution directory.Institution, deposit Deposit) ledger.Entry {
	return ledger.Entry{
		ReserveDepositID: deposit.ID,
		InstitutionID:    institution.Code,
		AccountRef:       institution.Wallet.PseudonymousID,
		CounterpartyRef:  ledger.SystemReserveAccountRef,
		Type:             ledger.EntryTypeReserveDeposit,
		Side:             ledger.SideCredit,
		Currency:         deposit.Currency,
		Amount:           deposit.Amount,
		Description:      fmt.Sprintf("Reserve deposit %s", deposit.Reference),
	}
}

// AuditAction builds the audit record written with each recorded deposit.
func AuditAction(institution directory.Institution, deposit Deposit) directory.AdminAction {
	return directory.AdminAction{
		ActionType: "reserve_deposit_recorded",
		Actor:      deposit.CreatedBy,
		TargetCode: institution.Code,
		Reason:     fmt.Sprintf("Reserve deposit reference %s", deposit.Reference),
		Metadata: map[string]any{
			"institution_id": institution.Code,
			"amount":         deposit.Amount,
			"currency":       deposit.Currency,
			"reference":      deposit.Reference,
		},
	}
}

// Payload builds the outbox event payload for a recorded deposit.
func Payload(deposit Deposit) map[string]any {
	return map[string]any{
		"deposit_id":     deposit.ID,
		"institution_id": deposit.InstitutionCode,
		"amount":         deposit.Amount,
		"currency":       deposit.Currency,
		"reference":      deposit.Reference,
		"balance":        deposit.BalanceAfter,
		"timestamp":      time.Now().UTC().Format(time.RFC3339Nano),
	}
}
