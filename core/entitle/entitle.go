// Package entitle converts confirmed purchases into device-scoped credit
// entitlements, exactly once per checkout session.
package entitle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"soundscape/logger"
	"soundscape/model"
)

var (
	// ErrPurchaseNotFound means no purchase record exists for the session.
	ErrPurchaseNotFound = errors.New("purchase not found")
	// ErrPurchaseNotPaid means the payment processor has not confirmed the
	// session yet.
	ErrPurchaseNotPaid = errors.New("purchase not paid")
	// ErrAlreadyClaimed means another device already converted this session
	// into credits.
	ErrAlreadyClaimed = errors.New("purchase already claimed")
	// ErrUnknownPack rejects checkout requests for packs not on the menu.
	ErrUnknownPack = errors.New("unknown credit pack")
)

// packCredits is the credit pack menu.
var packCredits = map[string]int{
	"trial":   1,
	"starter": 5,
	"creator": 10,
	"studio":  25,
}

// PackCredits returns the credit amount for a pack name.
func PackCredits(pack string) (int, error) {
	n, ok := packCredits[pack]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownPack, pack)
	}
	return n, nil
}

// Packs lists the pack names in ascending credit order.
func Packs() []string {
	return []string{"trial", "starter", "creator", "studio"}
}

// HashDeviceID derives the storage key for a device. Raw device ids never
// reach the database.
func HashDeviceID(deviceID string) string {
	sum := sha256.Sum256([]byte(deviceID))
	return hex.EncodeToString(sum[:])
}

// Repository persists purchases, claims and entitlements. Claim must be
// atomic: the claim insert (unique per session) and the credit increment
// either both happen or neither does.
type Repository interface {
	// UpsertPurchase inserts or updates a purchase keyed on its session id.
	// Webhook delivery is at-least-once, so repeated upserts of the same
	// session must converge instead of erroring.
	UpsertPurchase(ctx context.Context, p model.Purchase) error
	// Purchase returns a purchase by session id, or ErrPurchaseNotFound.
	Purchase(ctx context.Context, sessionID string) (model.Purchase, error)
	// Claim records the session as claimed and credits the device's
	// entitlement (created on first claim) in one transaction. A session
	// already claimed returns the existing claim with ErrAlreadyClaimed.
	Claim(ctx context.Context, sessionID, deviceIDHash string, credits int) (model.Entitlement, error)
	// ClaimRecord returns an existing claim by session id, or
	// ErrPurchaseNotFound when none exists.
	ClaimRecord(ctx context.Context, sessionID string) (model.Claim, error)
	// Entitlement returns a device's entitlement by its hash, or
	// ErrPurchaseNotFound when the device has never claimed.
	Entitlement(ctx context.Context, deviceIDHash string) (model.Entitlement, error)
}

// Service wraps a repository with the claim rules.
type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// RecordPurchase upserts the purchase state reported by the payment
// processor.
func (s *Service) RecordPurchase(ctx context.Context, sessionID, pack string, status model.PurchaseStatus, email string) error {
	credits, err := PackCredits(pack)
	if err != nil {
		return err
	}
	p := model.Purchase{
		SessionID:     sessionID,
		Pack:          pack,
		Credits:       credits,
		Status:        status,
		CustomerEmail: email,
		CreatedAt:     s.now().UTC(),
		UpdatedAt:     s.now().UTC(),
	}
	if err := s.repo.UpsertPurchase(ctx, p); err != nil {
		return fmt.Errorf("failed to record purchase: %w", err)
	}
	logger.Info("purchase recorded",
		logger.String("session_id", sessionID),
		logger.String("pack", pack),
		logger.String("status", string(status)))
	return nil
}

// Claim converts a paid session into credits for the device. Claiming the
// same session again from the same device is an idempotent success; from a
// different device it is ErrAlreadyClaimed.
func (s *Service) Claim(ctx context.Context, sessionID, deviceID string) (model.Entitlement, error) {
	p, err := s.repo.Purchase(ctx, sessionID)
	if err != nil {
		return model.Entitlement{}, err
	}
	if p.Status != model.PurchasePaid {
		return model.Entitlement{}, ErrPurchaseNotPaid
	}

	hash := HashDeviceID(deviceID)
	ent, err := s.repo.Claim(ctx, sessionID, hash, p.Credits)
	if errors.Is(err, ErrAlreadyClaimed) {
		existing, recErr := s.repo.ClaimRecord(ctx, sessionID)
		if recErr != nil {
			return model.Entitlement{}, err
		}
		own, entErr := s.repo.Entitlement(ctx, hash)
		if entErr == nil && existing.EntitlementID == own.ID {
			return own, nil
		}
		return model.Entitlement{}, ErrAlreadyClaimed
	}
	if err != nil {
		return model.Entitlement{}, err
	}

	logger.Info("purchase claimed",
		logger.String("session_id", sessionID),
		logger.Int("credits", p.Credits))
	return ent, nil
}

// Entitlement returns the device's entitlement, if any.
func (s *Service) Entitlement(ctx context.Context, deviceID string) (model.Entitlement, error) {
	return s.repo.Entitlement(ctx, HashDeviceID(deviceID))
}
