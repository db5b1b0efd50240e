package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"soundscape/core/ledger"
	"soundscape/db"
	"soundscape/logger"
	"soundscape/model"
)

// mysqlLedgerRepository implements ledger.Repository on MySQL. Reservation
// and refund are single transactions built around conditional UPDATEs, so
// two concurrent requests can never double-spend or double-refund.
type mysqlLedgerRepository struct {
	DB *sql.DB
}

// NewMySQLLedgerRepository creates a ledger repository over the shared
// connection.
func NewMySQLLedgerRepository() ledger.Repository {
	return &mysqlLedgerRepository{DB: db.DB}
}

func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}

func (r *mysqlLedgerRepository) Reserve(ctx context.Context, job model.ExportJob) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin reservation: %w", err)
	}
	defer tx.Rollback()

	// The guard in the WHERE clause is the whole credit check: zero rows
	// means the balance was short (or the device never claimed anything).
	res, err := tx.ExecContext(ctx,
		`UPDATE entitlements SET credits_remaining = credits_remaining - ?, updated_at = ?
		 WHERE device_id_hash = ? AND credits_remaining >= ?`,
		job.CreditsCost, time.Now().UTC(), job.DeviceID, job.CreditsCost)
	if err != nil {
		return fmt.Errorf("failed to debit credits: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read debit result: %w", err)
	}
	if affected == 0 {
		var balance int
		err := tx.QueryRowContext(ctx,
			`SELECT COALESCE((SELECT credits_remaining FROM entitlements WHERE device_id_hash = ?), 0)`,
			job.DeviceID).Scan(&balance)
		if err != nil {
			return fmt.Errorf("failed to read balance: %w", err)
		}
		return &ledger.InsufficientCreditsError{Balance: balance, Cost: job.CreditsCost}
	}

	var idemKey sql.NullString
	if job.IdempotencyKey != "" {
		idemKey = sql.NullString{String: job.IdempotencyKey, Valid: true}
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO export_jobs (id, device_id, idempotency_key, duration_minutes, seed, credits_cost, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.DeviceID, idemKey, job.DurationMinutes, job.Seed, job.CreditsCost, job.Status, job.CreatedAt)
	if err != nil {
		if isDuplicateKey(err) {
			return ledger.ErrDuplicateKey
		}
		return fmt.Errorf("failed to insert export job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reservation: %w", err)
	}
	return nil
}

func (r *mysqlLedgerRepository) FindByIdempotencyKey(ctx context.Context, deviceID, key string) (model.ExportJob, error) {
	return r.scanJob(r.DB.QueryRowContext(ctx,
		jobSelect+` WHERE device_id = ? AND idempotency_key = ?`, deviceID, key))
}

func (r *mysqlLedgerRepository) Job(ctx context.Context, jobID string) (model.ExportJob, error) {
	return r.scanJob(r.DB.QueryRowContext(ctx, jobSelect+` WHERE id = ?`, jobID))
}

func (r *mysqlLedgerRepository) Complete(ctx context.Context, jobID string, at time.Time) (model.ExportJob, error) {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE export_jobs SET status = ?, completed_at = ? WHERE id = ? AND status = ?`,
		model.JobCompleted, at, jobID, model.JobReserved)
	if err != nil {
		return model.ExportJob{}, fmt.Errorf("failed to complete job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return model.ExportJob{}, fmt.Errorf("failed to read completion result: %w", err)
	}

	job, jerr := r.Job(ctx, jobID)
	if jerr != nil {
		return model.ExportJob{}, jerr
	}
	if affected == 0 {
		return job, ledger.ErrStatusConflict
	}
	return job, nil
}

func (r *mysqlLedgerRepository) CancelAndRefund(ctx context.Context, jobID string, at time.Time) (model.ExportJob, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return model.ExportJob{}, fmt.Errorf("failed to begin cancellation: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE export_jobs SET status = ?, completed_at = ? WHERE id = ? AND status = ?`,
		model.JobCanceled, at, jobID, model.JobReserved)
	if err != nil {
		return model.ExportJob{}, fmt.Errorf("failed to cancel job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return model.ExportJob{}, fmt.Errorf("failed to read cancellation result: %w", err)
	}

	job, jerr := r.scanJob(tx.QueryRowContext(ctx, jobSelect+` WHERE id = ?`, jobID))
	if jerr != nil {
		return model.ExportJob{}, jerr
	}
	if affected == 0 {
		// already terminal; nothing to refund
		return job, ledger.ErrStatusConflict
	}

	// The conditional transition above fired exactly once, so this refund
	// can too.
	_, err = tx.ExecContext(ctx,
		`UPDATE entitlements SET credits_remaining = credits_remaining + ?, updated_at = ? WHERE device_id_hash = ?`,
		job.CreditsCost, time.Now().UTC(), job.DeviceID)
	if err != nil {
		return model.ExportJob{}, fmt.Errorf("failed to refund credits: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.ExportJob{}, fmt.Errorf("failed to commit cancellation: %w", err)
	}
	logger.Debug("reservation refunded",
		logger.String("job_id", jobID), logger.Int("credits", job.CreditsCost))
	return job, nil
}

func (r *mysqlLedgerRepository) Balance(ctx context.Context, deviceID string) (int, error) {
	var balance int
	err := r.DB.QueryRowContext(ctx,
		`SELECT credits_remaining FROM entitlements WHERE device_id_hash = ?`, deviceID).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}
	return balance, nil
}

const jobSelect = `SELECT id, device_id, idempotency_key, duration_minutes, seed, credits_cost, status, created_at, completed_at FROM export_jobs`

func (r *mysqlLedgerRepository) scanJob(row *sql.Row) (model.ExportJob, error) {
	var job model.ExportJob
	var idemKey sql.NullString
	var completedAt sql.NullTime
	err := row.Scan(&job.ID, &job.DeviceID, &idemKey, &job.DurationMinutes,
		&job.Seed, &job.CreditsCost, &job.Status, &job.CreatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return model.ExportJob{}, ledger.ErrJobNotFound
	}
	if err != nil {
		return model.ExportJob{}, fmt.Errorf("failed to scan export job: %w", err)
	}
	job.IdempotencyKey = idemKey.String
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	return job, nil
}
