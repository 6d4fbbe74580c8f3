package reserve

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/eupaygrid/eupaygrid/internal/currency"
	"github.com/eupaygrid/eupaygrid/internal/directory"
	"github.com/eupaygrid/eupaygrid/internal/middleware"
	"github.com/eupaygrid/eupaygrid/internal/projection"
)

// Handler exposes the reserve deposit endpoint.
type Handler struct {
	service *Service
}

// NewHandler builds a reserve HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type depositRequest struct {
	InstitutionID string `json:"institution_id"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Reference     string `json:"reference"`
}

// Record credits an institution's balance from a verified external reserve
// inflow.
func (h *Handler) Record(c *fiber.Ctx) error {
	var req depositRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	deposit, err := h.service.Record(c.UserContext(), RecordInput{
		InstitutionCode: req.InstitutionID,
		Amount:          req.Amount,
		Currency:        req.Currency,
		Reference:       req.Reference,
		Actor:           middleware.ActorFrom(c),
	})
	if err != nil {
		switch {
		case errors.Is(err, directory.ErrNotFound):
			return fiber.NewError(http.StatusNotFound, err.Error())
		case errors.Is(err, projection.ErrReplayInProgress):
			return fiber.NewError(http.StatusConflict, err.Error())
		case errors.Is(err, ErrInvalidAmount),
			errors.Is(err, ErrReferenceRequired),
			errors.Is(err, ErrNotApproved),
			errors.Is(err, currency.ErrInvalid),
			errors.Is(err, currency.ErrNotAllowed):
			return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"id":             deposit.ID,
		"institution_id": deposit.InstitutionCode,
		"amount":         deposit.Amount,
		"currency":       deposit.Currency,
		"reference":      deposit.Reference,
		"created_by":     deposit.CreatedBy,
		"created_at":     deposit.CreatedAt,
		"balance_after":  deposit.BalanceAfter,
	})
}
