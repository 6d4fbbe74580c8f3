package routes

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/eupaygrid/eupaygrid/internal/directory"
	"github.com/eupaygrid/eupaygrid/internal/projection"
)

// RegisterBalanceRoutes adds the network balance view: the projection joined
// with institution metadata from the directory.
func RegisterBalanceRoutes(api fiber.Router, proj projection.Projector, dir *directory.Service) {
	api.Get("/balances", func(c *fiber.Ctx) error {
		limit := c.QueryInt("limit", 100)
		currencyFilter := strings.ToUpper(strings.TrimSpace(c.Query("currency")))

		rows, err := proj.Rows(c.UserContext(), limit)
		if err != nil {
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}

		out := make([]fiber.Map, 0, len(rows))
		for _, row := range rows {
			if currencyFilter != "" && row.Currency != currencyFilter {
				continue
			}
			entry := fiber.Map{
				"institution_id": row.InstitutionID,
				"currency":       row.Currency,
				"available":      row.Available,
				"updated_at":     row.UpdatedAt,
			}
			if inst, err := dir.Get(c.UserContext(), row.InstitutionID); err == nil {
				entry["legal_name"] = inst.LegalName
				entry["status"] = inst.Status
				entry["pseudonymous_id"] = inst.Wallet.PseudonymousID
			}
			out = append(out, entry)
		}
		return c.Status(http.StatusOK).JSON(fiber.Map{"balances": out, "count": len(out)})
	})
}
