package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"soundscape/core/entitle"
	"soundscape/db"
	"soundscape/model"
)

// gormEntitleRepository implements entitle.Repository. Purchases and claims
// are GORM models; the entitlements table is shared with the ledger, so its
// credit mutations go through raw SQL inside the same transaction.
type gormEntitleRepository struct {
	db *gorm.DB
}

// NewGormEntitleRepository creates an entitlement repository over the shared
// GORM connection.
func NewGormEntitleRepository() entitle.Repository {
	return &gormEntitleRepository{db: db.GormDB}
}

func (r *gormEntitleRepository) UpsertPurchase(ctx context.Context, p model.Purchase) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"pack", "credits", "status", "customer_email", "updated_at"}),
	}).Create(&p).Error
	if err != nil {
		return fmt.Errorf("failed to upsert purchase: %w", err)
	}
	return nil
}

func (r *gormEntitleRepository) Purchase(ctx context.Context, sessionID string) (model.Purchase, error) {
	var p model.Purchase
	err := r.db.WithContext(ctx).First(&p, "session_id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Purchase{}, entitle.ErrPurchaseNotFound
	}
	if err != nil {
		return model.Purchase{}, fmt.Errorf("failed to load purchase: %w", err)
	}
	return p, nil
}

func (r *gormEntitleRepository) Claim(ctx context.Context, sessionID, deviceIDHash string, credits int) (model.Entitlement, error) {
	var ent model.Entitlement

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()

		// get-or-create the device entitlement; the unique hash makes the
		// insert race-safe
		insert := tx.Exec(
			`INSERT INTO entitlements (id, device_id_hash, credits_remaining, created_at, updated_at)
			 VALUES (?, ?, 0, ?, ?)
			 ON DUPLICATE KEY UPDATE device_id_hash = device_id_hash`,
			uuid.NewString(), deviceIDHash, now, now)
		if insert.Error != nil {
			return fmt.Errorf("failed to ensure entitlement: %w", insert.Error)
		}
		if err := tx.Raw(
			`SELECT id, device_id_hash, credits_remaining, created_at, updated_at
			 FROM entitlements WHERE device_id_hash = ? FOR UPDATE`, deviceIDHash).
			Scan(&ent).Error; err != nil {
			return fmt.Errorf("failed to load entitlement: %w", err)
		}

		// the unique session id on claims is the exactly-once guarantee
		claim := model.Claim{SessionID: sessionID, EntitlementID: ent.ID, CreatedAt: now}
		if err := tx.Create(&claim).Error; err != nil {
			if isDuplicateKey(err) || errors.Is(err, gorm.ErrDuplicatedKey) {
				return entitle.ErrAlreadyClaimed
			}
			return fmt.Errorf("failed to record claim: %w", err)
		}

		if err := tx.Exec(
			`UPDATE entitlements SET credits_remaining = credits_remaining + ?, updated_at = ? WHERE id = ?`,
			credits, now, ent.ID).Error; err != nil {
			return fmt.Errorf("failed to credit entitlement: %w", err)
		}
		ent.CreditsRemaining += credits
		ent.UpdatedAt = now
		return nil
	})
	if err != nil {
		return model.Entitlement{}, err
	}
	return ent, nil
}

func (r *gormEntitleRepository) ClaimRecord(ctx context.Context, sessionID string) (model.Claim, error) {
	var c model.Claim
	err := r.db.WithContext(ctx).First(&c, "session_id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Claim{}, entitle.ErrPurchaseNotFound
	}
	if err != nil {
		return model.Claim{}, fmt.Errorf("failed to load claim: %w", err)
	}
	return c, nil
}

func (r *gormEntitleRepository) Entitlement(ctx context.Context, deviceIDHash string) (model.Entitlement, error) {
	var ent model.Entitlement
	result := r.db.WithContext(ctx).Raw(
		`SELECT id, device_id_hash, credits_remaining, created_at, updated_at
		 FROM entitlements WHERE device_id_hash = ?`, deviceIDHash).Scan(&ent)
	if result.Error != nil {
		return model.Entitlement{}, fmt.Errorf("failed to load entitlement: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return model.Entitlement{}, entitle.ErrPurchaseNotFound
	}
	return ent, nil
}
