package routes

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/eupaygrid/eupaygrid/internal/ledger"
	"github.com/eupaygrid/eupaygrid/internal/projection"
	"github.com/eupaygrid/eupaygrid/internal/replay"
)

// RegisterLedgerRoutes adds the journal read view and the replay trigger.
// The read view is privacy constrained: it exposes pseudonymous account
// references, never legal names.
func RegisterLedgerRoutes(api fiber.Router, journal ledger.Store, replaySvc *replay.Service) {
	api.Get("/ledger/entries", func(c *fiber.Ctx) error {
		limit := c.QueryInt("limit", 100)
		entries, err := journal.List(c.UserContext(), limit)
		if err != nil {
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
		out := make([]fiber.Map, 0, len(entries))
		for _, e := range entries {
			row := fiber.Map{
				"sequence":         e.Sequence,
				"account_ref":      e.AccountRef,
				"counterparty_ref": e.CounterpartyRef,
				"entry_type":       string(e.Type),
				"side":             string(e.Side),
				"currency":         e.Currency,
				"amount":           e.Amount,
				"description":      e.Description,
				"created_at":       e.CreatedAt,
			}
			if e.TransferID != "" {
				row["transfer_id"] = e.TransferID
			}
			if e.ReserveDepositID != "" {
				row["reserve_deposit_id"] = e.ReserveDepositID
			}
			out = append(out, row)
		}
		return c.Status(http.StatusOK).JSON(fiber.Map{"entries": out, "count": len(out)})
	})

	api.Post("/ledger/replay", func(c *fiber.Ctx) error {
		summary, err := replaySvc.Run(c.UserContext())
		if err != nil {
			if errors.Is(err, projection.ErrReplayInProgress) {
				return fiber.NewError(http.StatusConflict, err.Error())
			}
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"ledger_entries": summary.LedgerEntries,
			"balance_rows":   summary.BalanceRows,
			"duration_ms":    summary.Duration.Milliseconds(),
		})
	})
}
