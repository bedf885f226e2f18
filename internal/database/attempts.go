package database

import (
	"context"
	"time"

	"playerhooks/internal/models"
	"playerhooks/internal/topics"
)

// RecordAttempt appends a delivery attempt to the audit log.
func (db *DB) RecordAttempt(ctx context.Context, a models.DeliveryAttempt) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO delivery_attempts
		(job_id, event_id, topic, url, attempt, status_code, outcome, error, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.JobID, a.EventID, string(a.Topic), a.URL, a.Attempt, a.StatusCode, a.Outcome, a.Error, a.DurationMS, a.CreatedAt,
	)
	return err
}

// ListAttempts returns attempts created in [from, to), oldest first.
func (db *DB) ListAttempts(ctx context.Context, from, to time.Time) ([]models.DeliveryAttempt, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, job_id, event_id, topic, url, attempt, status_code, outcome, error, duration_ms, created_at
		FROM delivery_attempts WHERE created_at >= ? AND created_at < ? ORDER BY id`,
		from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DeliveryAttempt
	for rows.Next() {
		var (
			a     models.DeliveryAttempt
			topic string
		)
		if err := rows.Scan(&a.ID, &a.JobID, &a.EventID, &topic, &a.URL, &a.Attempt,
			&a.StatusCode, &a.Outcome, &a.Error, &a.DurationMS, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Topic = topics.Topic(topic)
		out = append(out, a)
	}
	return out, rows.Err()
}

// DeleteAttemptsBefore removes audit rows older than cutoff.
func (db *DB) DeleteAttemptsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, "DELETE FROM delivery_attempts WHERE created_at < ?", cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
