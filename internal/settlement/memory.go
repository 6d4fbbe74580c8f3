package settlement

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/eupaygrid/eupaygrid/internal/directory"
	"github.com/eupaygrid/eupaygrid/internal/ledger"
	"github.com/eupaygrid/eupaygrid/internal/outbox"
	"github.com/eupaygrid/eupaygrid/internal/projection"
)

// memoryStore implements Store over the in-memory journal and projection.
// The per-institution key locks make the balance check and the balance
// update one observable step, which is what prevents two concurrent
// transfers from both spending the same funds.
type memoryStore struct {
	journal ledger.Store
	proj    projection.Projector
	events  outbox.Store
	dir     directory.Repository
	locks   *projection.KeyLock
	backend Backend

	mu         sync.RWMutex
	transfers  map[string]Transfer
	order      []string
	settlement []Event
	nextEvtID  int64
}

// NewMemoryStore builds the dev/test settlement store around shared core
// components.
func NewMemoryStore(journal ledger.Store, proj projection.Projector, events outbox.Store, dir directory.Repository, locks *projection.KeyLock, backend Backend) Store {
	return &memoryStore{
		journal:   journal,
		proj:      proj,
		events:    events,
		dir:       dir,
		locks:     locks,
		backend:   backend,
		transfers: make(map[string]Transfer),
		nextEvtID: 1,
	}
}

func (s *memoryStore) Settle(ctx context.Context, sender, recipient directory.Institution, transfer Transfer) (Transfer, error) {
	unlock := s.locks.Lock(sender.Code, recipient.Code)
	defer unlock()

	balance, err := s.proj.Balance(ctx, sender.Code, transfer.Currency)
	if err != nil {
		return Transfer{}, err
	}
	if balance < transfer.Amount {
		return s.fail(ctx, sender, recipient, transfer, FailureInsufficientBalance)
	}

	txID, err := s.backend.RecordSettlement(ctx, transfer)
	if err != nil {
		return s.fail(ctx, sender, recipient, transfer, fmt.Sprintf("settlement backend: %v", err))
	}

	debit := ledger.Entry{
		TransferID:      transfer.ID,
		InstitutionID:   sender.Code,
		AccountRef:      sender.Wallet.PseudonymousID,
		CounterpartyRef: recipient.Wallet.PseudonymousID,
		Type:            ledger.EntryTypeTransfer,
		Side:            ledger.SideDebit,
		Currency:        transfer.Currency,
		Amount:          transfer.Amount,
		Description:     "Outgoing institutional transfer",
	}
	credit := ledger.Entry{
		TransferID:      transfer.ID,
		InstitutionID:   recipient.Code,
		AccountRef:      recipient.Wallet.PseudonymousID,
		CounterpartyRef: sender.Wallet.PseudonymousID,
		Type:            ledger.EntryTypeTransfer,
		Side:            ledger.SideCredit,
		Currency:        transfer.Currency,
		Amount:          transfer.Amount,
		Description:     "Incoming institutional transfer",
	}
	if _, err := s.journal.Append(ctx, []ledger.Entry{debit, credit}); err != nil {
		return Transfer{}, err
	}
	if _, err := s.proj.Apply(ctx, debit); err != nil {
		return Transfer{}, err
	}
	if _, err := s.proj.Apply(ctx, credit); err != nil {
		return Transfer{}, err
	}

	settledAt := time.Now().UTC()
	transfer.Status = StatusSettled
	transfer.SettlementLayer = s.backend.Name()
	transfer.SettlementTxID = txID
	transfer.SettledAt = &settledAt

	s.mu.Lock()
	s.transfers[transfer.ID] = transfer
	s.order = append(s.order, transfer.ID)
	s.settlement = append(s.settlement, Event{
		ID:         s.nextEvtID,
		TransferID: transfer.ID,
		Layer:      transfer.SettlementLayer,
		TxID:       txID,
		Status:     "recorded",
		SettledAt:  settledAt,
	})
	s.nextEvtID++
	s.mu.Unlock()

	if _, err := s.events.Append(ctx, "transfer.settled", transferPayload(transfer, sender, recipient)); err != nil {
		return Transfer{}, err
	}
	return transfer, nil
}

// fail records the transfer with a terminal failed status. Balances and the
// journal are untouched; the failed row plus its outbox event are the only
// writes.
func (s *memoryStore) fail(ctx context.Context, sender, recipient directory.Institution, transfer Transfer, reason string) (Transfer, error) {
	transfer.Status = StatusFailed
	transfer.FailureReason = reason

	s.mu.Lock()
	s.transfers[transfer.ID] = transfer
	s.order = append(s.order, transfer.ID)
	s.mu.Unlock()

	if _, err := s.events.Append(ctx, "transfer.failed", transferPayload(transfer, sender, recipient)); err != nil {
		return Transfer{}, err
	}
	return transfer, nil
}

func (s *memoryStore) Get(_ context.Context, id string) (Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.transfers[id]
	if !ok {
		return Transfer{}, ErrTransferNotFound
	}
	return t, nil
}

func (s *memoryStore) List(ctx context.Context, query, status string, limit int) ([]Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]Transfer, 0, len(s.order))
	for _, id := range s.order {
		t := s.transfers[id]
		if status != "" && t.Status != status {
			continue
		}
		if q != "" && !matchesTransfer(t, q) && !s.matchesCounterparty(ctx, t, q) {
			continue
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryStore) Events(_ context.Context, limit int) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.settlement) {
		limit = len(s.settlement)
	}
	out := make([]Event, 0, limit)
	for i := len(s.settlement) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.settlement[i])
	}
	return out, nil
}

func matchesTransfer(t Transfer, q string) bool {
	for _, field := range []string{t.SenderCode, t.RecipientCode, t.Note, t.SettlementTxID} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}

// matchesCounterparty extends the search to the counterparties' directory
// metadata, so a legal name or CVR query also finds their transfers.
func (s *memoryStore) matchesCounterparty(ctx context.Context, t Transfer, q string) bool {
	for _, code := range []string{t.SenderCode, t.RecipientCode} {
		inst, err := s.dir.GetByCode(ctx, code)
		if err != nil {
			continue
		}
		if strings.Contains(strings.ToLower(inst.LegalName), q) ||
			strings.Contains(strings.ToLower(inst.CVRNumber), q) {
			return true
		}
	}
	return false
}

func transferPayload(t Transfer, sender, recipient directory.Institution) map[string]any {
	payload := map[string]any{
		"transfer_id":               t.ID,
		"sender_institution_id":     sender.Code,
		"recipient_institution_id":  recipient.Code,
		"sender_pseudonymous_id":    sender.Wallet.PseudonymousID,
		"recipient_pseudonymous_id": recipient.Wallet.PseudonymousID,
		"amount":                    t.Amount,
		"currency":                  t.Currency,
		"status":                    t.Status,
		"timestamp":                 time.Now().UTC().Format(time.RFC3339Nano),
	}
	if t.Status == StatusFailed {
		payload["failure_reason"] = t.FailureReason
	} else {
		payload["settlement_layer"] = t.SettlementLayer
		payload["settlement_tx_id"] = t.SettlementTxID
		if t.SettledAt != nil {
			payload["settled_at"] = t.SettledAt.Format(time.RFC3339Nano)
		}
	}
	return payload
}
