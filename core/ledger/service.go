// Package ledger owns export credits: reservation on start, debit on
// completion, compensating credit on cancel. Correctness here is what makes
// a paid export either happen exactly once or cost nothing.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"soundscape/logger"
	"soundscape/model"
)

// AllowedDurations is the fixed export length menu, in minutes.
var AllowedDurations = []int{5, 15, 30, 60}

// CostFor prices an export: one credit per started 5 minutes, minimum one.
func CostFor(durationMinutes int) int {
	cost := (durationMinutes + 4) / 5
	if cost < 1 {
		cost = 1
	}
	return cost
}

// ValidDuration reports whether the requested length is on the menu.
func ValidDuration(durationMinutes int) bool {
	for _, d := range AllowedDurations {
		if d == durationMinutes {
			return true
		}
	}
	return false
}

// Repository persists entitlement balances and export jobs. Reserve must be
// atomic: the credit check, the debit and the job insert either all happen
// or none do, even under concurrent requests for the same device.
type Repository interface {
	// Reserve debits job.CreditsCost from the device's balance and inserts
	// the job in one transaction. Returns *InsufficientCreditsError when the
	// balance is short and ErrDuplicateKey when (device, idempotency key)
	// already exists.
	Reserve(ctx context.Context, job model.ExportJob) error
	// FindByIdempotencyKey returns the job previously created for
	// (deviceID, key), or ErrJobNotFound.
	FindByIdempotencyKey(ctx context.Context, deviceID, key string) (model.ExportJob, error)
	// Job returns a job by id, or ErrJobNotFound.
	Job(ctx context.Context, jobID string) (model.ExportJob, error)
	// Complete transitions reserved -> completed. On any other current
	// status it returns the job unchanged with ErrStatusConflict.
	Complete(ctx context.Context, jobID string, at time.Time) (model.ExportJob, error)
	// CancelAndRefund transitions reserved -> canceled and credits the cost
	// back to the device, atomically. Same conflict contract as Complete.
	CancelAndRefund(ctx context.Context, jobID string, at time.Time) (model.ExportJob, error)
	// Balance returns the device's remaining credits; unknown devices have
	// zero.
	Balance(ctx context.Context, deviceID string) (int, error)
}

// Service wraps a repository with the ledger's business rules.
type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Start reserves credits for an export. Retrying with the same idempotency
// key returns the original reservation instead of debiting again.
func (s *Service) Start(ctx context.Context, deviceID, idempotencyKey, seed string, durationMinutes int) (model.ExportJob, error) {
	if !ValidDuration(durationMinutes) {
		return model.ExportJob{}, fmt.Errorf("%w: %d minutes", ErrInvalidDuration, durationMinutes)
	}

	if idempotencyKey != "" {
		existing, err := s.repo.FindByIdempotencyKey(ctx, deviceID, idempotencyKey)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, ErrJobNotFound) {
			return model.ExportJob{}, fmt.Errorf("failed to look up idempotency key: %w", err)
		}
	}

	job := model.ExportJob{
		ID:              uuid.NewString(),
		DeviceID:        deviceID,
		IdempotencyKey:  idempotencyKey,
		DurationMinutes: durationMinutes,
		Seed:            seed,
		CreditsCost:     CostFor(durationMinutes),
		Status:          model.JobReserved,
		CreatedAt:       s.now().UTC(),
	}

	err := s.repo.Reserve(ctx, job)
	if errors.Is(err, ErrDuplicateKey) {
		// lost a race against an identical retry; its reservation is ours
		return s.repo.FindByIdempotencyKey(ctx, deviceID, idempotencyKey)
	}
	if err != nil {
		return model.ExportJob{}, err
	}

	logger.Info("export credits reserved",
		logger.String("job_id", job.ID),
		logger.Int("duration_min", durationMinutes),
		logger.Int("cost", job.CreditsCost))
	return job, nil
}

// Complete marks a reservation consumed. Completing an already-completed job
// is a successful no-op; completing a canceled job is a conflict.
func (s *Service) Complete(ctx context.Context, jobID string) (model.ExportJob, error) {
	job, err := s.repo.Complete(ctx, jobID, s.now().UTC())
	if errors.Is(err, ErrStatusConflict) && job.Status == model.JobCompleted {
		return job, nil
	}
	if err != nil {
		return job, err
	}
	logger.Info("export job completed", logger.String("job_id", jobID))
	return job, nil
}

// Cancel releases a reservation and credits the cost back. Canceling an
// already-canceled job is a successful no-op; canceling a completed job is a
// conflict (the credits were consumed).
func (s *Service) Cancel(ctx context.Context, jobID string) (model.ExportJob, error) {
	job, err := s.repo.CancelAndRefund(ctx, jobID, s.now().UTC())
	if errors.Is(err, ErrStatusConflict) && job.Status == model.JobCanceled {
		return job, nil
	}
	if err != nil {
		return job, err
	}
	logger.Info("export job canceled, credits restored",
		logger.String("job_id", jobID), logger.Int("refund", job.CreditsCost))
	return job, nil
}

// Job returns a single job.
func (s *Service) Job(ctx context.Context, jobID string) (model.ExportJob, error) {
	return s.repo.Job(ctx, jobID)
}

// Balance returns the device's remaining credits.
func (s *Service) Balance(ctx context.Context, deviceID string) (int, error) {
	return s.repo.Balance(ctx, deviceID)
}
