package currency

import (
	"errors"
	"testing"
)

func TestNormalize(t *testing.T) {
	allowed := []string{"EUR", "DKK"}

	got, err := Normalize(" eur ", allowed)
	if err != nil {
		t.Fatalf("normalize eur: %v", err)
	}
	if got != "EUR" {
		t.Fatalf("got %q, want EUR", got)
	}

	if _, err := Normalize("e1", allowed); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for digits, got %v", err)
	}
	if _, err := Normalize("EU", allowed); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for short code, got %v", err)
	}
	if _, err := Normalize("VERYLONGCCY", allowed); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for long code, got %v", err)
	}
	if _, err := Normalize("USD", allowed); !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("expected ErrNotAllowed, got %v", err)
	}
}
