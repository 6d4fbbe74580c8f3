package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
)

const (
	actorHeader = "X-Actor"

	// ActorKey is the Locals key under which the acting identity is stored.
	ActorKey = "actor"
)

// Actor resolves the acting identity from the X-Actor header and stores it in
// the request locals. Requests without the header act as "system".
func Actor() fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Header values alias the request buffer and the actor outlives the
		// request in audit records, so copy before storing.
		actor := strings.TrimSpace(utils.CopyString(c.Get(actorHeader)))
		if actor == "" {
			actor = "system"
		}
		c.Locals(ActorKey, actor)
		return c.Next()
	}
}

// ActorFrom reads the acting identity stored by Actor.
func ActorFrom(c *fiber.Ctx) string {
	if actor, ok := c.Locals(ActorKey).(string); ok && actor != "" {
		return actor
	}
	return "system"
}
