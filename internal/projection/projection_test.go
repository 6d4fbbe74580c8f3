package projection

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/eupaygrid/eupaygrid/internal/ledger"
)

func credit(inst string, amount int64) ledger.Entry {
	return ledger.Entry{
		InstitutionID: inst,
		Side:          ledger.SideCredit,
		Currency:      "EUR",
		Amount:        amount,
	}
}

func debit(inst string, amount int64) ledger.Entry {
	return ledger.Entry{
		InstitutionID: inst,
		Side:          ledger.SideDebit,
		Currency:      "EUR",
		Amount:        amount,
	}
}

func TestApplyCreditsAndDebits(t *testing.T) {
	proj := NewInMemory()
	ctx := context.Background()

	balance, err := proj.Apply(ctx, credit("A", 1000))
	if err != nil {
		t.Fatalf("apply credit: %v", err)
	}
	if balance != 1000 {
		t.Fatalf("expected balance 1000, got %d", balance)
	}

	balance, err = proj.Apply(ctx, debit("A", 400))
	if err != nil {
		t.Fatalf("apply debit: %v", err)
	}
	if balance != 600 {
		t.Fatalf("expected balance 600, got %d", balance)
	}
}

func TestApplyRejectsNegativeBalance(t *testing.T) {
	proj := NewInMemory()
	ctx := context.Background()

	if _, err := proj.Apply(ctx, credit("A", 100)); err != nil {
		t.Fatalf("apply credit: %v", err)
	}
	if _, err := proj.Apply(ctx, debit("A", 101)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	balance, _ := proj.Balance(ctx, "A", "EUR")
	if balance != 100 {
		t.Fatalf("failed apply changed the balance to %d", balance)
	}
}

func TestBalancesAreCurrencyScoped(t *testing.T) {
	proj := NewInMemory()
	ctx := context.Background()

	usd := credit("A", 500)
	usd.Currency = "USD"
	if _, err := proj.Apply(ctx, usd); err != nil {
		t.Fatalf("apply usd: %v", err)
	}
	if _, err := proj.Apply(ctx, credit("A", 200)); err != nil {
		t.Fatalf("apply eur: %v", err)
	}

	if balance, _ := proj.Balance(ctx, "A", "USD"); balance != 500 {
		t.Fatalf("expected USD balance 500, got %d", balance)
	}
	if balance, _ := proj.Balance(ctx, "A", "EUR"); balance != 200 {
		t.Fatalf("expected EUR balance 200, got %d", balance)
	}
}

func TestFold(t *testing.T) {
	entries := []ledger.Entry{credit("A", 1000), debit("A", 400), credit("B", 400)}
	snapshot, err := Fold(entries)
	if err != nil {
		t.Fatalf("fold: %v", err)
	}
	if snapshot[Key{InstitutionID: "A", Currency: "EUR"}] != 600 {
		t.Fatalf("unexpected snapshot for A: %v", snapshot)
	}
	if snapshot[Key{InstitutionID: "B", Currency: "EUR"}] != 400 {
		t.Fatalf("unexpected snapshot for B: %v", snapshot)
	}
}

func TestFoldRejectsNegativeIntermediate(t *testing.T) {
	entries := []ledger.Entry{credit("A", 100), debit("A", 200), credit("A", 500)}
	if _, err := Fold(entries); !errors.Is(err, ErrCorruptHistory) {
		t.Fatalf("expected ErrCorruptHistory, got %v", err)
	}
}

func TestReplaceAll(t *testing.T) {
	proj := NewInMemory()
	ctx := context.Background()

	if _, err := proj.Apply(ctx, credit("A", 999)); err != nil {
		t.Fatalf("apply: %v", err)
	}
	snapshot := Snapshot{
		{InstitutionID: "B", Currency: "EUR"}: 42,
	}
	if err := proj.ReplaceAll(ctx, snapshot); err != nil {
		t.Fatalf("replace all: %v", err)
	}

	if balance, _ := proj.Balance(ctx, "A", "EUR"); balance != 0 {
		t.Fatalf("stale balance for A survived replace: %d", balance)
	}
	if balance, _ := proj.Balance(ctx, "B", "EUR"); balance != 42 {
		t.Fatalf("expected balance 42 for B, got %d", balance)
	}
}

func TestRowsOrdering(t *testing.T) {
	proj := NewInMemory()
	ctx := context.Background()

	proj.Apply(ctx, credit("B", 100))
	proj.Apply(ctx, credit("A", 100))
	proj.Apply(ctx, credit("C", 300))

	rows, err := proj.Rows(ctx, 0)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0].InstitutionID != "C" || rows[1].InstitutionID != "A" || rows[2].InstitutionID != "B" {
		t.Fatalf("unexpected order: %s %s %s", rows[0].InstitutionID, rows[1].InstitutionID, rows[2].InstitutionID)
	}
}

func TestKeyLockAllowsDuplicateIDs(t *testing.T) {
	locks := NewKeyLock()
	unlock := locks.Lock("A", "A")
	unlock()

	// Re-acquiring after release must not deadlock.
	unlock = locks.Lock("A")
	unlock()
}

func TestKeyLockSerializesSharedKeys(t *testing.T) {
	locks := NewKeyLock()
	var counter int

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("B", "A")
			counter++
			unlock()
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Fatalf("expected 50 increments, got %d", counter)
	}
}

func TestGateExclusiveFailsFast(t *testing.T) {
	gate := NewGate()

	release, err := gate.Exclusive()
	if err != nil {
		t.Fatalf("first exclusive claim: %v", err)
	}
	if _, err := gate.Exclusive(); !errors.Is(err, ErrReplayInProgress) {
		t.Fatalf("expected ErrReplayInProgress, got %v", err)
	}
	release()

	release, err = gate.Exclusive()
	if err != nil {
		t.Fatalf("exclusive claim after release: %v", err)
	}
	release()
}

func TestGateBlocksCommitsDuringReplay(t *testing.T) {
	gate := NewGate()

	release, err := gate.Exclusive()
	if err != nil {
		t.Fatalf("exclusive: %v", err)
	}

	entered := make(chan struct{})
	go func() {
		done := gate.Enter()
		close(entered)
		done()
	}()

	select {
	case <-entered:
		t.Fatalf("live commit entered while replay held the gate")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	<-entered
}
