package routes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/eupaygrid/eupaygrid/internal/config"
	"github.com/eupaygrid/eupaygrid/internal/logging"
)

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()

	app := fiber.New()
	cfg := config.Config{
		AppName:           "EuPayGrid",
		AppEnv:            "development",
		AllowedCurrencies: []string{"EUR"},
		SettlementLayer:   "simulated-solana",
	}
	if _, err := Setup(app, Deps{Cfg: cfg, Logger: logging.Discard()}); err != nil {
		t.Fatalf("setup routes: %v", err)
	}
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	req.Header.Set("X-Actor", "test-operator")

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	// Fiber error responses are plain text; only JSON bodies are decoded.
	decoded := map[string]any{}
	if len(raw) > 0 && json.Valid(raw) {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("decode response %q: %v", string(raw), err)
		}
	}
	return resp.StatusCode, decoded
}

func onboardApproved(t *testing.T, app *fiber.App, name, cvr string) string {
	t.Helper()

	status, body := doJSON(t, app, http.MethodPost, "/api/v1/institutions", map[string]any{
		"legal_name": name,
		"cvr_number": cvr,
		"country":    "DK",
	})
	if status != http.StatusCreated {
		t.Fatalf("onboard %s: status %d (%v)", name, status, body)
	}
	code, _ := body["institution_id"].(string)
	if code == "" {
		t.Fatalf("onboard %s: no institution_id in %v", name, body)
	}

	status, body = doJSON(t, app, http.MethodPost, "/api/v1/institutions/"+code+"/approve", map[string]any{
		"reason": "KYC complete",
	})
	if status != http.StatusOK {
		t.Fatalf("approve %s: status %d (%v)", name, status, body)
	}
	return code
}

func deposit(t *testing.T, app *fiber.App, code string, amount int64) {
	t.Helper()

	status, body := doJSON(t, app, http.MethodPost, "/api/v1/reserves/deposit", map[string]any{
		"institution_id": code,
		"amount":         amount,
		"currency":       "EUR",
		"reference":      fmt.Sprintf("SEED-%s", code),
	})
	if status != http.StatusCreated {
		t.Fatalf("deposit for %s: status %d (%v)", code, status, body)
	}
}

func TestTransferLifecycleOverHTTP(t *testing.T) {
	app := newTestApp(t)

	sender := onboardApproved(t, app, "Nordbank A/S", "11111111")
	recipient := onboardApproved(t, app, "Suedkasse GmbH", "22222222")
	deposit(t, app, sender, 1000)

	status, body := doJSON(t, app, http.MethodPost, "/api/v1/transfers", map[string]any{
		"sender_institution_id":    sender,
		"recipient_institution_id": recipient,
		"amount":                   400,
		"currency":                 "EUR",
		"note":                     "invoice 42",
	})
	if status != http.StatusCreated {
		t.Fatalf("transfer: status %d (%v)", status, body)
	}
	if body["status"] != "settled" {
		t.Fatalf("transfer status %v", body["status"])
	}
	transferID, _ := body["id"].(string)

	status, body = doJSON(t, app, http.MethodGet, "/api/v1/transfers/"+transferID, nil)
	if status != http.StatusOK || body["status"] != "settled" {
		t.Fatalf("get transfer: status %d (%v)", status, body)
	}

	status, body = doJSON(t, app, http.MethodGet, "/api/v1/balances", nil)
	if status != http.StatusOK {
		t.Fatalf("balances: status %d", status)
	}
	balances, _ := body["balances"].([]any)
	if len(balances) != 2 {
		t.Fatalf("expected 2 balance rows, got %v", body)
	}

	status, body = doJSON(t, app, http.MethodGet, "/api/v1/ledger/entries", nil)
	if status != http.StatusOK {
		t.Fatalf("ledger entries: status %d", status)
	}
	if count, _ := body["count"].(float64); count != 3 {
		t.Fatalf("expected 3 ledger entries, got %v", body["count"])
	}
}

func TestTransferFailedOutcomeOverHTTP(t *testing.T) {
	app := newTestApp(t)

	sender := onboardApproved(t, app, "Nordbank A/S", "11111111")
	recipient := onboardApproved(t, app, "Suedkasse GmbH", "22222222")
	deposit(t, app, sender, 100)

	status, body := doJSON(t, app, http.MethodPost, "/api/v1/transfers", map[string]any{
		"sender_institution_id":    sender,
		"recipient_institution_id": recipient,
		"amount":                   500,
		"currency":                 "EUR",
	})
	if status != http.StatusCreated {
		t.Fatalf("transfer: status %d (%v)", status, body)
	}
	if body["status"] != "failed" || body["failure_reason"] != "insufficient_balance" {
		t.Fatalf("unexpected failed outcome: %v", body)
	}
}

func TestTransferValidationOverHTTP(t *testing.T) {
	app := newTestApp(t)

	sender := onboardApproved(t, app, "Nordbank A/S", "11111111")
	deposit(t, app, sender, 100)

	// Self transfer is a rejection, not a recorded outcome.
	status, _ := doJSON(t, app, http.MethodPost, "/api/v1/transfers", map[string]any{
		"sender_institution_id":    sender,
		"recipient_institution_id": sender,
		"amount":                   50,
		"currency":                 "EUR",
	})
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("self transfer: status %d", status)
	}

	// Unknown counterparty.
	status, _ = doJSON(t, app, http.MethodPost, "/api/v1/transfers", map[string]any{
		"sender_institution_id":    sender,
		"recipient_institution_id": "EUPG-DEADBEEF",
		"amount":                   50,
		"currency":                 "EUR",
	})
	if status != http.StatusNotFound {
		t.Fatalf("unknown recipient: status %d", status)
	}

	status, body := doJSON(t, app, http.MethodGet, "/api/v1/transfers", nil)
	if status != http.StatusOK {
		t.Fatalf("list transfers: status %d", status)
	}
	if count, _ := body["count"].(float64); count != 0 {
		t.Fatalf("rejections recorded transfers: %v", body)
	}
}

func TestReplayOverHTTP(t *testing.T) {
	app := newTestApp(t)

	sender := onboardApproved(t, app, "Nordbank A/S", "11111111")
	recipient := onboardApproved(t, app, "Suedkasse GmbH", "22222222")
	deposit(t, app, sender, 1000)

	status, body := doJSON(t, app, http.MethodPost, "/api/v1/transfers", map[string]any{
		"sender_institution_id":    sender,
		"recipient_institution_id": recipient,
		"amount":                   250,
		"currency":                 "EUR",
	})
	if status != http.StatusCreated {
		t.Fatalf("transfer: status %d (%v)", status, body)
	}

	status, body = doJSON(t, app, http.MethodPost, "/api/v1/ledger/replay", nil)
	if status != http.StatusOK {
		t.Fatalf("replay: status %d (%v)", status, body)
	}
	if entries, _ := body["ledger_entries"].(float64); entries != 3 {
		t.Fatalf("replay summary entries %v", body["ledger_entries"])
	}
	if rows, _ := body["balance_rows"].(float64); rows != 2 {
		t.Fatalf("replay summary rows %v", body["balance_rows"])
	}

	// Balances are unchanged by a replay over intact history.
	status, body = doJSON(t, app, http.MethodGet, "/api/v1/balances?currency=EUR", nil)
	if status != http.StatusOK {
		t.Fatalf("balances: status %d", status)
	}
	for _, raw := range body["balances"].([]any) {
		row := raw.(map[string]any)
		switch row["institution_id"] {
		case sender:
			if row["available"].(float64) != 750 {
				t.Fatalf("sender balance after replay: %v", row["available"])
			}
		case recipient:
			if row["available"].(float64) != 250 {
				t.Fatalf("recipient balance after replay: %v", row["available"])
			}
		}
	}
}

func TestGovernanceAndAuditOverHTTP(t *testing.T) {
	app := newTestApp(t)

	code := onboardApproved(t, app, "Nordbank A/S", "11111111")

	status, body := doJSON(t, app, http.MethodPost, "/api/v1/institutions/"+code+"/freeze", map[string]any{
		"reason": "AML review",
	})
	if status != http.StatusOK {
		t.Fatalf("freeze: status %d (%v)", status, body)
	}
	if body["is_frozen"] != true {
		t.Fatalf("freeze response: %v", body)
	}

	// Missing reason is rejected.
	status, _ = doJSON(t, app, http.MethodPost, "/api/v1/institutions/"+code+"/unfreeze", nil)
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("unfreeze without reason: status %d", status)
	}

	status, body = doJSON(t, app, http.MethodGet, "/api/v1/admin/actions", nil)
	if status != http.StatusOK {
		t.Fatalf("actions: status %d", status)
	}
	actions, _ := body["actions"].([]any)
	if len(actions) != 3 {
		t.Fatalf("expected 3 audit actions, got %d", len(actions))
	}
	newest := actions[0].(map[string]any)
	if newest["action_type"] != "wallet_frozen" || newest["actor"] != "test-operator" {
		t.Fatalf("unexpected newest action: %v", newest)
	}
}

func TestInstitutionCodeStableAcrossRequests(t *testing.T) {
	app := newTestApp(t)

	// Governance retains the path param as a repository key, so the code must
	// survive later traffic reusing the request buffers.
	code := onboardApproved(t, app, "Nordbank A/S", "11111111")
	deposit(t, app, code, 500)

	status, body := doJSON(t, app, http.MethodGet, "/api/v1/institutions/"+code, nil)
	if status != http.StatusOK {
		t.Fatalf("get after later requests: status %d (%v)", status, body)
	}
	if body["institution_id"] != code {
		t.Fatalf("institution code changed to %v", body["institution_id"])
	}

	status, body = doJSON(t, app, http.MethodGet, "/api/v1/institutions?status=approved", nil)
	if status != http.StatusOK {
		t.Fatalf("list: status %d", status)
	}
	if count, _ := body["count"].(float64); count != 1 {
		t.Fatalf("expected institution listed under its code, got %v", body)
	}
}

func TestOutboxMirrorOverHTTP(t *testing.T) {
	app := newTestApp(t)

	sender := onboardApproved(t, app, "Nordbank A/S", "11111111")
	deposit(t, app, sender, 100)

	status, body := doJSON(t, app, http.MethodGet, "/api/v1/events", nil)
	if status != http.StatusOK {
		t.Fatalf("events: status %d", status)
	}
	events, _ := body["events"].([]any)
	if len(events) != 1 {
		t.Fatalf("expected 1 outbox event, got %v", body)
	}
	newest := events[0].(map[string]any)
	if newest["event_type"] != "reserve_deposit.recorded" {
		t.Fatalf("unexpected event: %v", newest)
	}
}
