package reserve

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/eupaygrid/eupaygrid/internal/currency"
	"github.com/eupaygrid/eupaygrid/internal/directory"
	"github.com/eupaygrid/eupaygrid/internal/projection"
)

var (
	// ErrInvalidAmount rejects non-positive deposit amounts.
	ErrInvalidAmount = errors.New("amount must be greater than zero")

	// ErrReferenceRequired rejects a deposit without an external reference.
	ErrReferenceRequired = errors.New("reference is required")

	// ErrNotApproved rejects deposits for institutions that are not approved.
	ErrNotApproved = errors.New("institution must be approved before reserve deposits")
)

// Service is the reserve intake: it mints balance from an external reserve
// deposit through the same ledger and projection machinery the settlement
// path uses.
type Service struct {
	dir        *directory.Service
	store      Store
	gate       *projection.Gate
	currencies []string
}

// NewService wires the reserve intake.
func NewService(dir *directory.Service, store Store, gate *projection.Gate, currencies []string) *Service {
	return &Service{dir: dir, store: store, gate: gate, currencies: currencies}
}

// RecordInput captures an external reserve inflow.
type RecordInput struct {
	InstitutionCode string
	Amount          int64
	Currency        string
	Reference       string
	Actor           string
}

// Record validates and persists one reserve deposit.
func (s *Service) Record(ctx context.Context, input RecordInput) (Deposit, error) {
	if input.Amount <= 0 {
		return Deposit{}, ErrInvalidAmount
	}
	normalizedCurrency, err := currency.Normalize(input.Currency, s.currencies)
	if err != nil {
		return Deposit{}, err
	}
	reference := strings.TrimSpace(input.Reference)
	if reference == "" {
		return Deposit{}, ErrReferenceRequired
	}

	institution, err := s.dir.Get(ctx, input.InstitutionCode)
	if err != nil {
		return Deposit{}, err
	}
	if institution.Status != directory.StatusApproved {
		return Deposit{}, fmt.Errorf("%w: %s is %s", ErrNotApproved, institution.Code, institution.Status)
	}

	actor := strings.TrimSpace(input.Actor)
	if actor == "" {
		actor = "system"
	}
	deposit := Deposit{
		ID:              uuid.NewString(),
		InstitutionCode: institution.Code,
		Amount:          input.Amount,
		Currency:        normalizedCurrency,
		Reference:       reference,
		CreatedBy:       actor,
		CreatedAt:       time.Now().UTC(),
	}

	done := s.gate.Enter()
	defer done()
	return s.store.Record(ctx, institution, deposit)
}
