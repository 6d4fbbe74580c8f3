package settlement

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/eupaygrid/eupaygrid/internal/currency"
	"github.com/eupaygrid/eupaygrid/internal/directory"
	"github.com/eupaygrid/eupaygrid/internal/projection"
)

// Handler exposes the transfer endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a settlement HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type submitRequest struct {
	SenderInstitutionID    string `json:"sender_institution_id"`
	RecipientInstitutionID string `json:"recipient_institution_id"`
	Amount                 int64  `json:"amount"`
	Currency               string `json:"currency"`
	Note                   string `json:"note"`
}

type transferResponse struct {
	ID                     string     `json:"id"`
	SenderInstitutionID    string     `json:"sender_institution_id"`
	RecipientInstitutionID string     `json:"recipient_institution_id"`
	Amount                 int64      `json:"amount"`
	Currency               string     `json:"currency"`
	Note                   string     `json:"note,omitempty"`
	Status                 string     `json:"status"`
	FailureReason          string     `json:"failure_reason,omitempty"`
	SettlementLayer        string     `json:"settlement_layer,omitempty"`
	SettlementTxID         string     `json:"settlement_tx_id,omitempty"`
	SubmittedAt            time.Time  `json:"submitted_at"`
	SettledAt              *time.Time `json:"settled_at,omitempty"`
}

func toTransferResponse(t Transfer) transferResponse {
	return transferResponse{
		ID:                     t.ID,
		SenderInstitutionID:    t.SenderCode,
		RecipientInstitutionID: t.RecipientCode,
		Amount:                 t.Amount,
		Currency:               t.Currency,
		Note:                   t.Note,
		Status:                 t.Status,
		FailureReason:          t.FailureReason,
		SettlementLayer:        t.SettlementLayer,
		SettlementTxID:         t.SettlementTxID,
		SubmittedAt:            t.SubmittedAt,
		SettledAt:              t.SettledAt,
	}
}

// Submit accepts a transfer request and settles it synchronously. A transfer
// that fails on insufficient balance or a backend error is still a recorded
// outcome, so it returns 201 with status=failed rather than an HTTP error.
func (h *Handler) Submit(c *fiber.Ctx) error {
	var req submitRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	transfer, err := h.service.Submit(c.UserContext(), SubmitInput{
		SenderCode:    req.SenderInstitutionID,
		RecipientCode: req.RecipientInstitutionID,
		Amount:        req.Amount,
		Currency:      req.Currency,
		Note:          req.Note,
	})
	if err != nil {
		switch {
		case errors.Is(err, directory.ErrNotFound):
			return fiber.NewError(http.StatusNotFound, err.Error())
		case errors.Is(err, projection.ErrReplayInProgress):
			return fiber.NewError(http.StatusConflict, err.Error())
		case errors.Is(err, ErrInvalidAmount),
			errors.Is(err, ErrSelfTransfer),
			errors.Is(err, ErrNotEligible),
			errors.Is(err, ErrSenderFrozen),
			errors.Is(err, currency.ErrInvalid),
			errors.Is(err, currency.ErrNotAllowed):
			return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}

	return c.Status(http.StatusCreated).JSON(toTransferResponse(transfer))
}

// Get returns a single transfer by id.
func (h *Handler) Get(c *fiber.Ctx) error {
	transfer, err := h.service.Get(c.UserContext(), c.Params("transferId"))
	if err != nil {
		if errors.Is(err, ErrTransferNotFound) {
			return fiber.NewError(http.StatusNotFound, "transfer not found")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(toTransferResponse(transfer))
}

// List searches transfers, newest first.
func (h *Handler) List(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	transfers, err := h.service.List(c.UserContext(), c.Query("q"), c.Query("status"), limit)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	out := make([]transferResponse, 0, len(transfers))
	for _, t := range transfers {
		out = append(out, toTransferResponse(t))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"transfers": out, "count": len(out)})
}

// Events returns settlement proof records, newest first.
func (h *Handler) Events(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	events, err := h.service.Events(c.UserContext(), limit)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	out := make([]fiber.Map, 0, len(events))
	for _, e := range events {
		out = append(out, fiber.Map{
			"id":               e.ID,
			"transfer_id":      e.TransferID,
			"settlement_layer": e.Layer,
			"settlement_tx_id": e.TxID,
			"status":           e.Status,
			"settled_at":       e.SettledAt,
		})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"events": out, "count": len(out)})
}
