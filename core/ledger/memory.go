package ledger

import (
	"context"
	"sync"
	"time"

	"soundscape/model"
)

// MemoryRepository is an in-process Repository used by tests and the preview
// command. A single mutex stands in for the database transaction.
type MemoryRepository struct {
	mu       sync.Mutex
	balances map[string]int
	jobs     map[string]model.ExportJob
	byKey    map[string]string // deviceID+"\x00"+key -> jobID
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		balances: make(map[string]int),
		jobs:     make(map[string]model.ExportJob),
		byKey:    make(map[string]string),
	}
}

// Credit adds credits to a device, standing in for a claimed purchase.
func (r *MemoryRepository) Credit(deviceID string, n int) {
	r.mu.Lock()
	r.balances[deviceID] += n
	r.mu.Unlock()
}

func keyOf(deviceID, key string) string { return deviceID + "\x00" + key }

func (r *MemoryRepository) Reserve(_ context.Context, job model.ExportJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if job.IdempotencyKey != "" {
		if _, exists := r.byKey[keyOf(job.DeviceID, job.IdempotencyKey)]; exists {
			return ErrDuplicateKey
		}
	}
	balance := r.balances[job.DeviceID]
	if balance < job.CreditsCost {
		return &InsufficientCreditsError{Balance: balance, Cost: job.CreditsCost}
	}

	r.balances[job.DeviceID] = balance - job.CreditsCost
	r.jobs[job.ID] = job
	if job.IdempotencyKey != "" {
		r.byKey[keyOf(job.DeviceID, job.IdempotencyKey)] = job.ID
	}
	return nil
}

func (r *MemoryRepository) FindByIdempotencyKey(_ context.Context, deviceID, key string) (model.ExportJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byKey[keyOf(deviceID, key)]
	if !ok {
		return model.ExportJob{}, ErrJobNotFound
	}
	return r.jobs[id], nil
}

func (r *MemoryRepository) Job(_ context.Context, jobID string) (model.ExportJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return model.ExportJob{}, ErrJobNotFound
	}
	return job, nil
}

func (r *MemoryRepository) Complete(_ context.Context, jobID string, at time.Time) (model.ExportJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return model.ExportJob{}, ErrJobNotFound
	}
	if job.Status != model.JobReserved {
		return job, ErrStatusConflict
	}
	job.Status = model.JobCompleted
	job.CompletedAt = &at
	r.jobs[jobID] = job
	return job, nil
}

func (r *MemoryRepository) CancelAndRefund(_ context.Context, jobID string, at time.Time) (model.ExportJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return model.ExportJob{}, ErrJobNotFound
	}
	if job.Status != model.JobReserved {
		return job, ErrStatusConflict
	}
	job.Status = model.JobCanceled
	job.CompletedAt = &at
	r.jobs[jobID] = job
	r.balances[job.DeviceID] += job.CreditsCost
	return job, nil
}

func (r *MemoryRepository) Balance(_ context.Context, deviceID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.balances[deviceID], nil
}
