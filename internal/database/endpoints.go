package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"playerhooks/internal/models"
	"playerhooks/internal/topics"
)

// ListEndpoints returns all endpoints in insertion order.
func (db *DB) ListEndpoints(ctx context.Context) ([]models.Endpoint, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT id, url, secret, topics, enabled, created_at FROM webhook_endpoints ORDER BY id",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	endpoints := make([]models.Endpoint, 0)
	for rows.Next() {
		var (
			ep  models.Endpoint
			raw string
		)
		if err := rows.Scan(&ep.ID, &ep.URL, &ep.Secret, &raw, &ep.Enabled, &ep.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &ep.Topics); err != nil {
			return nil, fmt.Errorf("decode topics of endpoint %d: %w", ep.ID, err)
		}
		if ep.Topics == nil {
			ep.Topics = []topics.Topic{}
		}
		endpoints = append(endpoints, ep)
	}
	return endpoints, rows.Err()
}

// InsertEndpoint persists ep and fills its ID.
func (db *DB) InsertEndpoint(ctx context.Context, ep *models.Endpoint) error {
	list := ep.Topics
	if list == nil {
		list = []topics.Topic{}
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return err
	}
	if ep.CreatedAt.IsZero() {
		ep.CreatedAt = time.Now().UTC()
	}

	res, err := db.ExecContext(ctx,
		`INSERT INTO webhook_endpoints (url, secret, topics, enabled, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		ep.URL, ep.Secret, string(raw), ep.Enabled, ep.CreatedAt,
	)
	if err != nil {
		return err
	}
	ep.ID, err = res.LastInsertId()
	return err
}

// DeleteEndpointAt removes the endpoint at the given position of ListEndpoints.
// It reports whether a row was deleted.
func (db *DB) DeleteEndpointAt(ctx context.Context, index int) (bool, error) {
	if index < 0 {
		return false, nil
	}
	res, err := db.ExecContext(ctx,
		`DELETE FROM webhook_endpoints
		WHERE id = (SELECT id FROM webhook_endpoints ORDER BY id LIMIT 1 OFFSET ?)`,
		index,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
