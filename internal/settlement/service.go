package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/eupaygrid/eupaygrid/internal/currency"
	"github.com/eupaygrid/eupaygrid/internal/directory"
	"github.com/eupaygrid/eupaygrid/internal/projection"
)

var (
	// ErrInvalidAmount rejects non-positive transfer amounts.
	ErrInvalidAmount = errors.New("amount must be greater than zero")

	// ErrSelfTransfer rejects a transfer where sender and recipient are the
	// same institution. The request is never recorded.
	ErrSelfTransfer = errors.New("sender and recipient must be different institutions")

	// ErrNotEligible rejects a transfer involving an institution that is not
	// in the approved status.
	ErrNotEligible = errors.New("institution is not eligible for settlement")

	// ErrSenderFrozen rejects a transfer initiated from a frozen wallet.
	// Frozen wallets may still receive.
	ErrSenderFrozen = errors.New("sender wallet is frozen and cannot initiate transfers")
)

// Service is the settlement orchestrator. It validates eligibility against
// the institution directory, then hands the atomic unit to the store. All
// precondition failures here are validation rejections: no transfer row is
// created for them. Only insufficient balance and a settlement backend
// failure produce a recorded failed transfer.
type Service struct {
	dir        *directory.Service
	store      Store
	gate       *projection.Gate
	currencies []string
}

// NewService wires the orchestrator.
func NewService(dir *directory.Service, store Store, gate *projection.Gate, currencies []string) *Service {
	return &Service{dir: dir, store: store, gate: gate, currencies: currencies}
}

// SubmitInput captures a transfer request.
type SubmitInput struct {
	SenderCode    string
	RecipientCode string
	Amount        int64
	Currency      string
	Note          string
}

// Submit validates and settles one transfer. The returned transfer always
// carries a terminal status; there is no pending state once Submit returns.
func (s *Service) Submit(ctx context.Context, input SubmitInput) (Transfer, error) {
	if input.Amount <= 0 {
		return Transfer{}, ErrInvalidAmount
	}
	normalizedCurrency, err := currency.Normalize(input.Currency, s.currencies)
	if err != nil {
		return Transfer{}, err
	}

	senderCode := directory.NormalizeCode(input.SenderCode)
	recipientCode := directory.NormalizeCode(input.RecipientCode)
	if senderCode == recipientCode {
		return Transfer{}, ErrSelfTransfer
	}

	sender, err := s.dir.Get(ctx, senderCode)
	if err != nil {
		return Transfer{}, fmt.Errorf("sender: %w", err)
	}
	recipient, err := s.dir.Get(ctx, recipientCode)
	if err != nil {
		return Transfer{}, fmt.Errorf("recipient: %w", err)
	}
	if sender.Status != directory.StatusApproved {
		return Transfer{}, fmt.Errorf("%w: sender %s is %s", ErrNotEligible, sender.Code, sender.Status)
	}
	if recipient.Status != directory.StatusApproved {
		return Transfer{}, fmt.Errorf("%w: recipient %s is %s", ErrNotEligible, recipient.Code, recipient.Status)
	}
	if sender.Wallet.IsFrozen {
		return Transfer{}, ErrSenderFrozen
	}

	transfer := Transfer{
		ID:            uuid.NewString(),
		SenderCode:    sender.Code,
		RecipientCode: recipient.Code,
		Amount:        input.Amount,
		Currency:      normalizedCurrency,
		Note:          input.Note,
		Status:        StatusSubmitted,
		SubmittedAt:   time.Now().UTC(),
	}

	done := s.gate.Enter()
	defer done()
	return s.store.Settle(ctx, sender, recipient, transfer)
}

// Get returns a transfer by id.
func (s *Service) Get(ctx context.Context, id string) (Transfer, error) {
	return s.store.Get(ctx, id)
}

// List searches transfers, newest first.
func (s *Service) List(ctx context.Context, query, status string, limit int) ([]Transfer, error) {
	return s.store.List(ctx, query, status, limit)
}

// Events returns recorded settlement proofs, newest first.
func (s *Service) Events(ctx context.Context, limit int) ([]Event, error) {
	return s.store.Events(ctx, limit)
}
