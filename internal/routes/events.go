package routes

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/eupaygrid/eupaygrid/internal/outbox"
)

// RegisterEventRoutes adds a read-only mirror over the outbox so operators
// and downstream consumers can inspect recent integration events.
func RegisterEventRoutes(api fiber.Router, events outbox.Store) {
	api.Get("/events", func(c *fiber.Ctx) error {
		limit := c.QueryInt("limit", 100)
		latest, err := events.Latest(c.UserContext(), limit)
		if err != nil {
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
		return c.Status(http.StatusOK).JSON(fiber.Map{"events": latest, "count": len(latest)})
	})
}
