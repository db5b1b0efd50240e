package entitle

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"soundscape/model"
)

// MemoryRepository is an in-process Repository for tests and the preview
// command.
type MemoryRepository struct {
	mu           sync.Mutex
	purchases    map[string]model.Purchase
	claims       map[string]model.Claim
	entitlements map[string]model.Entitlement // key: device id hash
	nextClaimID  int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		purchases:    make(map[string]model.Purchase),
		claims:       make(map[string]model.Claim),
		entitlements: make(map[string]model.Entitlement),
	}
}

func (r *MemoryRepository) UpsertPurchase(_ context.Context, p model.Purchase) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.purchases[p.SessionID]; ok {
		p.CreatedAt = existing.CreatedAt
	}
	r.purchases[p.SessionID] = p
	return nil
}

func (r *MemoryRepository) Purchase(_ context.Context, sessionID string) (model.Purchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.purchases[sessionID]
	if !ok {
		return model.Purchase{}, ErrPurchaseNotFound
	}
	return p, nil
}

func (r *MemoryRepository) Claim(_ context.Context, sessionID, deviceIDHash string, credits int) (model.Entitlement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, claimed := r.claims[sessionID]; claimed {
		return model.Entitlement{}, ErrAlreadyClaimed
	}

	ent, ok := r.entitlements[deviceIDHash]
	if !ok {
		ent = model.Entitlement{
			ID:           uuid.NewString(),
			DeviceIDHash: deviceIDHash,
			CreatedAt:    time.Now().UTC(),
		}
	}
	ent.CreditsRemaining += credits
	ent.UpdatedAt = time.Now().UTC()
	r.entitlements[deviceIDHash] = ent

	r.nextClaimID++
	r.claims[sessionID] = model.Claim{
		ID:            r.nextClaimID,
		SessionID:     sessionID,
		EntitlementID: ent.ID,
		CreatedAt:     time.Now().UTC(),
	}
	return ent, nil
}

func (r *MemoryRepository) ClaimRecord(_ context.Context, sessionID string) (model.Claim, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.claims[sessionID]
	if !ok {
		return model.Claim{}, ErrPurchaseNotFound
	}
	return c, nil
}

func (r *MemoryRepository) Entitlement(_ context.Context, deviceIDHash string) (model.Entitlement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ent, ok := r.entitlements[deviceIDHash]
	if !ok {
		return model.Entitlement{}, ErrPurchaseNotFound
	}
	return ent, nil
}
