package model

import "time"

// JobStatus is the lifecycle state of an export job.
// reserved -> completed and reserved -> canceled are the only legal
// transitions; both targets are terminal.
type JobStatus string

const (
	JobReserved  JobStatus = "reserved"
	JobCompleted JobStatus = "completed"
	JobCanceled  JobStatus = "canceled"
)

// ExportJob is a provisional credit debit tied to one export.
// (DeviceID, IdempotencyKey) is unique so retried start requests map back to
// the original reservation instead of debiting again.
type ExportJob struct {
	ID              string     `json:"id"`
	DeviceID        string     `json:"-"`
	IdempotencyKey  string     `json:"-"`
	DurationMinutes int        `json:"durationMinutes"`
	Seed            string     `json:"seed"`
	CreditsCost     int        `json:"creditsCost"`
	Status          JobStatus  `json:"status"`
	CreatedAt       time.Time  `json:"createdAt"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
}
