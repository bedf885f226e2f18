package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"playerhooks/internal/models"
)

// QueuedJob is a claimed row of the delivery queue.
type QueuedJob struct {
	Seq int64
	Job models.DeliveryJob
}

// EnqueueJob stores job to become due at runAt.
func (db *DB) EnqueueJob(ctx context.Context, job models.DeliveryJob, runAt time.Time) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx,
		"INSERT INTO delivery_jobs (job_id, payload, run_at) VALUES (?, ?, ?)",
		job.ID, string(payload), runAt.UnixMilli(),
	)
	return err
}

// ClaimDueJobs leases up to limit due jobs until now+lease so concurrent pollers skip them.
func (db *DB) ClaimDueJobs(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]QueuedJob, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx,
		`SELECT seq, payload FROM delivery_jobs
		WHERE run_at <= ? AND locked_until <= ?
		ORDER BY run_at, seq LIMIT ?`,
		now.UnixMilli(), now.UnixMilli(), limit,
	)
	if err != nil {
		return nil, err
	}

	var claimed []QueuedJob
	for rows.Next() {
		var (
			q   QueuedJob
			raw string
		)
		if err := rows.Scan(&q.Seq, &raw); err != nil {
			rows.Close()
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &q.Job); err != nil {
			rows.Close()
			return nil, fmt.Errorf("decode job %d: %w", q.Seq, err)
		}
		claimed = append(claimed, q)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	until := now.Add(lease).UnixMilli()
	for _, q := range claimed {
		if _, err := tx.ExecContext(ctx, "UPDATE delivery_jobs SET locked_until = ? WHERE seq = ?", until, q.Seq); err != nil {
			return nil, err
		}
	}
	return claimed, tx.Commit()
}

// CompleteJob removes a processed job row.
func (db *DB) CompleteJob(ctx context.Context, seq int64) error {
	_, err := db.ExecContext(ctx, "DELETE FROM delivery_jobs WHERE seq = ?", seq)
	return err
}

// CountJobs returns the number of queued rows, due or not.
func (db *DB) CountJobs(ctx context.Context) (int64, error) {
	var n int64
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM delivery_jobs").Scan(&n)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return n, err
}
