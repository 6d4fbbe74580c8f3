package directory

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrReasonRequired indicates a governance call without a reason; every
// governance action must be explainable in the audit log.
var ErrReasonRequired = errors.New("a reason is required for governance actions")

// Service manages the institution directory and governance gate. It never
// touches balances or the ledger; the settlement path only reads from it.
type Service struct {
	repo Repository
}

// NewService creates a directory service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CreateInput captures the data required to onboard an institution.
type CreateInput struct {
	LegalName string
	CVRNumber string
	Country   string
	Actor     string
	Reason    string
}

// Create onboards a pending institution with its wallet. Approval is a
// separate governance step.
func (s *Service) Create(ctx context.Context, input CreateInput) (Institution, error) {
	if strings.TrimSpace(input.LegalName) == "" {
		return Institution{}, errors.New("legal_name is required")
	}
	if strings.TrimSpace(input.CVRNumber) == "" {
		return Institution{}, errors.New("cvr_number is required")
	}
	if strings.TrimSpace(input.Country) == "" {
		return Institution{}, errors.New("country is required")
	}

	code := generateInstitutionCode()
	inst := Institution{
		Code:      code,
		LegalName: strings.TrimSpace(input.LegalName),
		CVRNumber: strings.TrimSpace(input.CVRNumber),
		Country:   strings.ToUpper(strings.TrimSpace(input.Country)),
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
		Wallet: Wallet{
			Address:        generateWalletAddress(),
			PseudonymousID: PseudonymousID(code),
		},
	}

	action := AdminAction{
		ActionType: "institution_created",
		Actor:      actorOrSystem(input.Actor),
		TargetCode: code,
		Reason:     reasonOr(input.Reason, "Institution onboarding"),
		Metadata:   map[string]any{"institution_id": code, "country": inst.Country},
	}
	return s.repo.Create(ctx, inst, action)
}

// Get fetches an institution by its public code.
func (s *Service) Get(ctx context.Context, code string) (Institution, error) {
	return s.repo.GetByCode(ctx, NormalizeCode(code))
}

// List searches institutions.
func (s *Service) List(ctx context.Context, query, status string, limit int) ([]Institution, error) {
	return s.repo.List(ctx, query, status, limit)
}

// Approve moves an institution into the approved status.
func (s *Service) Approve(ctx context.Context, code, actor, reason string) (Institution, error) {
	return s.setStatus(ctx, code, StatusApproved, actor, reason)
}

// Suspend moves an institution into the suspended status.
func (s *Service) Suspend(ctx context.Context, code, actor, reason string) (Institution, error) {
	return s.setStatus(ctx, code, StatusSuspended, actor, reason)
}

func (s *Service) setStatus(ctx context.Context, code, status, actor, reason string) (Institution, error) {
	if strings.TrimSpace(reason) == "" {
		return Institution{}, ErrReasonRequired
	}
	normalized := NormalizeCode(code)
	action := AdminAction{
		ActionType: "institution_" + status,
		Actor:      actorOrSystem(actor),
		TargetCode: normalized,
		Reason:     strings.TrimSpace(reason),
		Metadata:   map[string]any{"institution_id": normalized},
	}
	return s.repo.SetStatus(ctx, normalized, status, action)
}

// Freeze blocks a wallet from initiating transfers. Frozen wallets may still
// receive.
func (s *Service) Freeze(ctx context.Context, code, actor, reason string) (Institution, error) {
	return s.setFrozen(ctx, code, true, actor, reason)
}

// Unfreeze lifts a wallet freeze.
func (s *Service) Unfreeze(ctx context.Context, code, actor, reason string) (Institution, error) {
	return s.setFrozen(ctx, code, false, actor, reason)
}

func (s *Service) setFrozen(ctx context.Context, code string, frozen bool, actor, reason string) (Institution, error) {
	if strings.TrimSpace(reason) == "" {
		return Institution{}, ErrReasonRequired
	}
	normalized := NormalizeCode(code)
	actionType := "wallet_frozen"
	if !frozen {
		actionType = "wallet_unfrozen"
	}
	action := AdminAction{
		ActionType: actionType,
		Actor:      actorOrSystem(actor),
		TargetCode: normalized,
		Reason:     strings.TrimSpace(reason),
		Metadata:   map[string]any{"institution_id": normalized, "is_frozen": frozen},
	}
	return s.repo.SetFrozen(ctx, normalized, frozen, action)
}

// RecordAction appends an audit record produced by a non-governance unit
// (e.g. reserve intake).
func (s *Service) RecordAction(ctx context.Context, action AdminAction) error {
	return s.repo.AppendAction(ctx, action)
}

// ListActions returns the governance audit log, newest first.
func (s *Service) ListActions(ctx context.Context, limit int) ([]AdminAction, error) {
	return s.repo.ListActions(ctx, limit)
}

// NormalizeCode canonicalizes an institution code for lookups.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// PseudonymousID derives the stable opaque account reference for a code.
func PseudonymousID(code string) string {
	digest := sha256.Sum256([]byte(code))
	return "INST-" + strings.ToUpper(hex.EncodeToString(digest[:])[:10])
}

func generateInstitutionCode() string {
	return "EUPG-" + strings.ToUpper(randomHex(4))
}

func generateWalletAddress() string {
	return "wl_" + randomHex(16)
}

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("read random bytes: %v", err))
	}
	return hex.EncodeToString(buf)
}

func actorOrSystem(actor string) string {
	if strings.TrimSpace(actor) == "" {
		return "system"
	}
	return strings.TrimSpace(actor)
}

func reasonOr(reason, fallback string) string {
	if strings.TrimSpace(reason) == "" {
		return fallback
	}
	return strings.TrimSpace(reason)
}
