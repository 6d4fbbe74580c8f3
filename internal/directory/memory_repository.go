package directory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

type memoryRepository struct {
	mu           sync.RWMutex
	institutions map[string]Institution
	actions      []AdminAction
	nextActionID int64
}

// NewMemoryRepository constructs an in-memory repository for dev mode and
// tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{institutions: make(map[string]Institution), nextActionID: 1}
}

func (r *memoryRepository) Create(_ context.Context, inst Institution, action AdminAction) (Institution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.institutions {
		if existing.CVRNumber == inst.CVRNumber {
			return Institution{}, ErrCVRExists
		}
	}
	if _, exists := r.institutions[inst.Code]; exists {
		return Institution{}, ErrCodeExists
	}
	r.institutions[inst.Code] = inst
	r.appendActionLocked(action)
	return inst, nil
}

func (r *memoryRepository) GetByCode(_ context.Context, code string) (Institution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.institutions[code]
	if !ok {
		return Institution{}, ErrNotFound
	}
	return inst, nil
}

func (r *memoryRepository) List(_ context.Context, query, status string, limit int) ([]Institution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]Institution, 0, len(r.institutions))
	for _, inst := range r.institutions {
		if status != "" && inst.Status != status {
			continue
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(inst.LegalName), q) &&
			!strings.Contains(strings.ToLower(inst.CVRNumber), q) &&
			!strings.Contains(strings.ToLower(inst.Code), q) {
			continue
		}
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryRepository) SetStatus(_ context.Context, code, status string, action AdminAction) (Institution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, ok := r.institutions[code]
	if !ok {
		return Institution{}, ErrNotFound
	}
	inst.Status = status
	r.institutions[code] = inst
	r.appendActionLocked(action)
	return inst, nil
}

func (r *memoryRepository) SetFrozen(_ context.Context, code string, frozen bool, action AdminAction) (Institution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, ok := r.institutions[code]
	if !ok {
		return Institution{}, ErrNotFound
	}
	inst.Wallet.IsFrozen = frozen
	r.institutions[code] = inst
	r.appendActionLocked(action)
	return inst, nil
}

func (r *memoryRepository) AppendAction(_ context.Context, action AdminAction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appendActionLocked(action)
	return nil
}

func (r *memoryRepository) ListActions(_ context.Context, limit int) ([]AdminAction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if limit <= 0 || limit > len(r.actions) {
		limit = len(r.actions)
	}
	out := make([]AdminAction, 0, limit)
	for i := len(r.actions) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.actions[i])
	}
	return out, nil
}

func (r *memoryRepository) appendActionLocked(action AdminAction) {
	action.ID = r.nextActionID
	r.nextActionID++
	if action.Timestamp.IsZero() {
		action.Timestamp = time.Now().UTC()
	}
	r.actions = append(r.actions, action)
}
