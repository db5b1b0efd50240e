package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidDuration rejects export lengths outside the fixed menu.
	ErrInvalidDuration = errors.New("invalid export duration")
	// ErrJobNotFound means the referenced job does not exist.
	ErrJobNotFound = errors.New("export job not found")
	// ErrStatusConflict means the job is in a terminal state that does not
	// permit the requested transition.
	ErrStatusConflict = errors.New("export job status conflict")
	// ErrDuplicateKey is returned by repositories when a concurrent request
	// already created a reservation with the same (device, idempotency key).
	ErrDuplicateKey = errors.New("duplicate idempotency key")
)

// InsufficientCreditsError carries the balance and the attempted cost so the
// API layer can tell the client exactly what is missing.
type InsufficientCreditsError struct {
	Balance int
	Cost    int
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: have %d, need %d", e.Balance, e.Cost)
}

// IsInsufficientCredits reports whether err is an insufficient-credits
// failure and returns its details.
func IsInsufficientCredits(err error) (*InsufficientCreditsError, bool) {
	var ice *InsufficientCreditsError
	if errors.As(err, &ice) {
		return ice, true
	}
	return nil, false
}
