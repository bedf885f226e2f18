package database

import (
	"context"
	"database/sql"
	"time"

	"playerhooks/internal/models"
)

// TransitionApproval records status for userID and reports whether it differs from
// the previously recorded decision.
func (db *DB) TransitionApproval(ctx context.Context, userID int64, status models.ApprovalStatus) (bool, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	var prev string
	err = tx.QueryRowContext(ctx, "SELECT status FROM approval_states WHERE user_id = ?", userID).Scan(&prev)
	if err != nil && err != sql.ErrNoRows {
		return false, err
	}
	if prev == string(status) {
		return false, nil
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO approval_states (user_id, status, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at`,
		userID, string(status), time.Now().UTC(),
	)
	if err != nil {
		return false, err
	}
	return true, tx.Commit()
}
