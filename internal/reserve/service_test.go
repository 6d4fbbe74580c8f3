package reserve

import (
	"context"
	"errors"
	"testing"

	"github.com/eupaygrid/eupaygrid/internal/currency"
	"github.com/eupaygrid/eupaygrid/internal/directory"
	"github.com/eupaygrid/eupaygrid/internal/ledger"
	"github.com/eupaygrid/eupaygrid/internal/outbox"
	"github.com/eupaygrid/eupaygrid/internal/projection"
)

type testEnv struct {
	dir     *directory.Service
	svc     *Service
	journal ledger.Store
	proj    projection.Projector
	events  outbox.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	journal := ledger.NewInMemory()
	proj := projection.NewInMemory()
	events := outbox.NewInMemory()
	repo := directory.NewMemoryRepository()
	dir := directory.NewService(repo)
	store := NewMemoryStore(journal, proj, events, repo, projection.NewKeyLock())

	return &testEnv{
		dir:     dir,
		svc:     NewService(dir, store, projection.NewGate(), []string{"EUR"}),
		journal: journal,
		proj:    proj,
		events:  events,
	}
}

func (e *testEnv) institution(t *testing.T, approve bool) directory.Institution {
	t.Helper()
	ctx := context.Background()

	inst, err := e.dir.Create(ctx, directory.CreateInput{LegalName: "Nordbank A/S", CVRNumber: "12345678", Country: "DK"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if approve {
		inst, err = e.dir.Approve(ctx, inst.Code, "regulator", "KYC complete")
		if err != nil {
			t.Fatalf("approve: %v", err)
		}
	}
	return inst
}

func TestRecordMintsBalance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	inst := env.institution(t, true)

	deposit, err := env.svc.Record(ctx, RecordInput{
		InstitutionCode: inst.Code,
		Amount:          2500,
		Currency:        "eur",
		Reference:       "SEPA-REF-001",
		Actor:           "treasury",
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	if deposit.BalanceAfter != 2500 {
		t.Fatalf("balance after = %d, want 2500", deposit.BalanceAfter)
	}
	if deposit.Currency != "EUR" {
		t.Fatalf("currency not normalized: %q", deposit.Currency)
	}
	if deposit.CreatedBy != "treasury" {
		t.Fatalf("created by %q", deposit.CreatedBy)
	}

	balance, err := env.proj.Balance(ctx, inst.Code, "EUR")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 2500 {
		t.Fatalf("projected balance = %d, want 2500", balance)
	}

	entries, err := env.journal.ReadAll(ctx)
	if err != nil {
		t.Fatalf("read journal: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected a single mint entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Side != ledger.SideCredit || entry.Type != ledger.EntryTypeReserveDeposit {
		t.Fatalf("unexpected mint entry: %+v", entry)
	}
	if entry.CounterpartyRef != ledger.SystemReserveAccountRef {
		t.Fatalf("mint counterparty %q", entry.CounterpartyRef)
	}
	if entry.AccountRef != inst.Wallet.PseudonymousID {
		t.Fatalf("mint account ref %q", entry.AccountRef)
	}
}

func TestRecordWritesAuditAndOutbox(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	inst := env.institution(t, true)

	if _, err := env.svc.Record(ctx, RecordInput{
		InstitutionCode: inst.Code,
		Amount:          100,
		Currency:        "EUR",
		Reference:       "SEPA-REF-002",
	}); err != nil {
		t.Fatalf("record: %v", err)
	}

	actions, err := env.dir.ListActions(ctx, 1)
	if err != nil {
		t.Fatalf("list actions: %v", err)
	}
	if len(actions) != 1 || actions[0].ActionType != "reserve_deposit_recorded" {
		t.Fatalf("expected reserve_deposit_recorded action, got %+v", actions)
	}
	if actions[0].Actor != "system" {
		t.Fatalf("missing actor not defaulted to system: %q", actions[0].Actor)
	}

	latest, err := env.events.Latest(ctx, 1)
	if err != nil {
		t.Fatalf("outbox latest: %v", err)
	}
	if len(latest) != 1 || latest[0].Type != "reserve_deposit.recorded" {
		t.Fatalf("expected reserve_deposit.recorded event, got %+v", latest)
	}
}

func TestRecordValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	approved := env.institution(t, true)

	cases := []struct {
		name  string
		input RecordInput
		want  error
	}{
		{"zero amount", RecordInput{InstitutionCode: approved.Code, Amount: 0, Currency: "EUR", Reference: "r"}, ErrInvalidAmount},
		{"missing reference", RecordInput{InstitutionCode: approved.Code, Amount: 100, Currency: "EUR", Reference: "  "}, ErrReferenceRequired},
		{"bad currency", RecordInput{InstitutionCode: approved.Code, Amount: 100, Currency: "e1", Reference: "r"}, currency.ErrInvalid},
		{"disallowed currency", RecordInput{InstitutionCode: approved.Code, Amount: 100, Currency: "USD", Reference: "r"}, currency.ErrNotAllowed},
		{"unknown institution", RecordInput{InstitutionCode: "EUPG-DEADBEEF", Amount: 100, Currency: "EUR", Reference: "r"}, directory.ErrNotFound},
	}
	for _, tc := range cases {
		if _, err := env.svc.Record(ctx, tc.input); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}

	entries, _ := env.journal.ReadAll(ctx)
	if len(entries) != 0 {
		t.Fatalf("rejected deposits wrote %d journal entries", len(entries))
	}
}

func TestRecordRequiresApprovedInstitution(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	pending := env.institution(t, false)

	if _, err := env.svc.Record(ctx, RecordInput{
		InstitutionCode: pending.Code, Amount: 100, Currency: "EUR", Reference: "r",
	}); !errors.Is(err, ErrNotApproved) {
		t.Fatalf("expected ErrNotApproved, got %v", err)
	}
}

func TestDepositsAccumulate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	inst := env.institution(t, true)

	for i, amount := range []int64{100, 250, 650} {
		if _, err := env.svc.Record(ctx, RecordInput{
			InstitutionCode: inst.Code, Amount: amount, Currency: "EUR", Reference: "SEPA",
		}); err != nil {
			t.Fatalf("deposit %d: %v", i, err)
		}
	}

	balance, _ := env.proj.Balance(ctx, inst.Code, "EUR")
	if balance != 1000 {
		t.Fatalf("accumulated balance = %d, want 1000", balance)
	}
}
