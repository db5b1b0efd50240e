package model

import "time"

// PurchaseStatus tracks whether the payment processor confirmed a session.
type PurchaseStatus string

const (
	PurchasePending PurchaseStatus = "pending"
	PurchasePaid    PurchaseStatus = "paid"
)

// Purchase mirrors one checkout session of the payment processor. Webhook
// delivery is at-least-once, so writes are idempotent upserts keyed on
// SessionID.
type Purchase struct {
	SessionID     string         `json:"sessionId" gorm:"column:session_id;primaryKey;size:191"`
	Pack          string         `json:"pack" gorm:"size:32"`
	Credits       int            `json:"credits"`
	Status        PurchaseStatus `json:"status" gorm:"size:16"`
	CustomerEmail string         `json:"customerEmail,omitempty" gorm:"size:255"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// TableName overrides the GORM default.
func (Purchase) TableName() string { return "purchases" }

// Claim is the join record proving a paid purchase was converted into
// entitlement credits. The unique session id prevents a purchase from being
// claimed twice even under concurrent requests.
type Claim struct {
	ID            int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	SessionID     string    `json:"sessionId" gorm:"column:session_id;uniqueIndex;size:191"`
	EntitlementID string    `json:"entitlementId" gorm:"size:36"`
	CreatedAt     time.Time `json:"createdAt"`
}

// TableName overrides the GORM default.
func (Claim) TableName() string { return "claims" }
