package model

import "time"

// Entitlement is a device-scoped credit balance. CreditsRemaining only
// decreases through export reservations and only increases through claimed
// purchases (or a compensating credit when a reservation is canceled).
type Entitlement struct {
	ID               string    `json:"id"`
	DeviceIDHash     string    `json:"-"` // sha256 hex of the raw device id
	CreditsRemaining int       `json:"creditsRemaining"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}
