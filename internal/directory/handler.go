package directory

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/eupaygrid/eupaygrid/internal/middleware"
)

// Handler exposes institution onboarding and governance endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a directory HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	LegalName string `json:"legal_name"`
	CVRNumber string `json:"cvr_number"`
	Country   string `json:"country"`
	Reason    string `json:"reason"`
}

type governanceRequest struct {
	Reason string `json:"reason"`
}

type institutionResponse struct {
	InstitutionID  string    `json:"institution_id"`
	LegalName      string    `json:"legal_name"`
	CVRNumber      string    `json:"cvr_number"`
	Country        string    `json:"country"`
	Status         string    `json:"status"`
	WalletAddress  string    `json:"wallet_address"`
	PseudonymousID string    `json:"pseudonymous_id"`
	IsFrozen       bool      `json:"is_frozen"`
	CreatedAt      time.Time `json:"created_at"`
}

func toInstitutionResponse(inst Institution) institutionResponse {
	return institutionResponse{
		InstitutionID:  inst.Code,
		LegalName:      inst.LegalName,
		CVRNumber:      inst.CVRNumber,
		Country:        inst.Country,
		Status:         inst.Status,
		WalletAddress:  inst.Wallet.Address,
		PseudonymousID: inst.Wallet.PseudonymousID,
		IsFrozen:       inst.Wallet.IsFrozen,
		CreatedAt:      inst.CreatedAt,
	}
}

// Create onboards a new institution in pending status.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	inst, err := h.service.Create(c.UserContext(), CreateInput{
		LegalName: req.LegalName,
		CVRNumber: req.CVRNumber,
		Country:   req.Country,
		Actor:     middleware.ActorFrom(c),
		Reason:    req.Reason,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrCVRExists), errors.Is(err, ErrCodeExists):
			return fiber.NewError(http.StatusConflict, err.Error())
		default:
			return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
		}
	}
	return c.Status(http.StatusCreated).JSON(toInstitutionResponse(inst))
}

// Get fetches one institution by code.
func (h *Handler) Get(c *fiber.Ctx) error {
	inst, err := h.service.Get(c.UserContext(), c.Params("institutionId"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, "institution not found")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(toInstitutionResponse(inst))
}

// List searches institutions.
func (h *Handler) List(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 100)
	insts, err := h.service.List(c.UserContext(), c.Query("q"), c.Query("status"), limit)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	out := make([]institutionResponse, 0, len(insts))
	for _, inst := range insts {
		out = append(out, toInstitutionResponse(inst))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"institutions": out, "count": len(out)})
}

// Approve marks an institution as approved for settlement.
func (h *Handler) Approve(c *fiber.Ctx) error {
	return h.governance(c, h.service.Approve)
}

// Suspend suspends an institution from settlement.
func (h *Handler) Suspend(c *fiber.Ctx) error {
	return h.governance(c, h.service.Suspend)
}

// Freeze blocks an institution's wallet from initiating transfers.
func (h *Handler) Freeze(c *fiber.Ctx) error {
	return h.governance(c, h.service.Freeze)
}

// Unfreeze lifts a wallet freeze.
func (h *Handler) Unfreeze(c *fiber.Ctx) error {
	return h.governance(c, h.service.Unfreeze)
}

func (h *Handler) governance(c *fiber.Ctx, op func(ctx context.Context, code, actor, reason string) (Institution, error)) error {
	// Governance calls may omit the body entirely; a missing reason is
	// rejected downstream with ErrReasonRequired.
	var req governanceRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}

	// Fiber param strings alias the request buffer; the repository retains
	// the code as a map key, so it must be copied before it outlives the
	// handler.
	code := utils.CopyString(c.Params("institutionId"))

	inst, err := op(c.UserContext(), code, middleware.ActorFrom(c), req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return fiber.NewError(http.StatusNotFound, "institution not found")
		case errors.Is(err, ErrReasonRequired):
			return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.Status(http.StatusOK).JSON(toInstitutionResponse(inst))
}

// Actions returns the governance audit log, newest first.
func (h *Handler) Actions(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 100)
	actions, err := h.service.ListActions(c.UserContext(), limit)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	out := make([]fiber.Map, 0, len(actions))
	for _, a := range actions {
		out = append(out, fiber.Map{
			"id":          a.ID,
			"action_type": a.ActionType,
			"actor":       a.Actor,
			"target_id":   a.TargetCode,
			"reason":      a.Reason,
			"metadata":    a.Metadata,
			"timestamp":   a.Timestamp,
		})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"actions": out, "count": len(out)})
}
