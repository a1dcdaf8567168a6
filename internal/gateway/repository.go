package gateway

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository defines gateway persistence.
type Repository interface {
	Get(ctx context.Context, id string) (*Gateway, error)
	List(ctx context.Context) ([]Gateway, error)

	// Upsert creates the gateway or replaces its topics and description.
	// The online flag is left untouched on update.
	Upsert(ctx context.Context, g *Gateway) (created bool, err error)

	// Delete removes the gateway and, by cascade, its devices.
	Delete(ctx context.Context, id string) error

	// SubscribeTopics returns distinct subscribe topics, sorted.
	SubscribeTopics(ctx context.Context) ([]string, error)

	// SetOnline sets the online flag and stamps updated_at. changed reports
	// whether the flag flipped.
	SetOnline(ctx context.Context, id string, online bool, at time.Time) (changed bool, err error)

	// MarkStale flips online gateways last heard before cutoff to offline,
	// leaving updated_at alone, and returns their identifiers.
	MarkStale(ctx context.Context, cutoff time.Time) ([]string, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const gatewayColumns = `gateway_id, subscribe_topic, publish_topic, description, online, created_at, updated_at`

// Get retrieves a gateway by identifier.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Gateway, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+gatewayColumns+` FROM gateways WHERE gateway_id = ?`, id)
	g, err := scanGateway(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGatewayNotFound
		}
		return nil, fmt.Errorf("querying gateway: %w", err)
	}
	return g, nil
}

// List retrieves all gateways ordered by identifier.
func (r *SQLiteRepository) List(ctx context.Context) ([]Gateway, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+gatewayColumns+` FROM gateways ORDER BY gateway_id`)
	if err != nil {
		return nil, fmt.Errorf("querying gateways: %w", err)
	}
	defer rows.Close()

	var gateways []Gateway
	for rows.Next() {
		g, err := scanGateway(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning gateway: %w", err)
		}
		gateways = append(gateways, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating gateways: %w", err)
	}
	return gateways, nil
}

// Upsert inserts or updates a gateway, reporting whether it was new.
func (r *SQLiteRepository) Upsert(ctx context.Context, g *Gateway) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM gateways WHERE gateway_id = ?`, g.GatewayID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking gateway: %w", err)
	}

	now := formatTime(time.Now())
	_, err = tx.ExecContext(ctx, `
		INSERT INTO gateways (gateway_id, subscribe_topic, publish_topic, description, online, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT (gateway_id) DO UPDATE SET
			subscribe_topic = excluded.subscribe_topic,
			publish_topic   = excluded.publish_topic,
			description     = excluded.description`,
		g.GatewayID, g.SubscribeTopic, g.PublishTopic, g.Description, now, now,
	)
	if err != nil {
		return false, fmt.Errorf("upserting gateway: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing gateway: %w", err)
	}
	return exists == 0, nil
}

// Delete removes a gateway.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM gateways WHERE gateway_id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting gateway: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrGatewayNotFound
	}
	return nil
}

// SubscribeTopics returns the de-duplicated subscribe topics.
func (r *SQLiteRepository) SubscribeTopics(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT subscribe_topic FROM gateways ORDER BY subscribe_topic`)
	if err != nil {
		return nil, fmt.Errorf("querying subscribe topics: %w", err)
	}
	defer rows.Close()

	var topics []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scanning topic: %w", err)
		}
		topics = append(topics, t)
	}
	return topics, rows.Err()
}

// SetOnline updates presence and last-heard time.
func (r *SQLiteRepository) SetOnline(ctx context.Context, id string, online bool, at time.Time) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	var was int
	err = tx.QueryRowContext(ctx, `SELECT online FROM gateways WHERE gateway_id = ?`, id).Scan(&was)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, ErrGatewayNotFound
		}
		return false, fmt.Errorf("reading gateway presence: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE gateways SET online = ?, updated_at = ? WHERE gateway_id = ?`,
		boolToInt(online), formatTime(at), id)
	if err != nil {
		return false, fmt.Errorf("updating gateway presence: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing gateway presence: %w", err)
	}
	return was != boolToInt(online), nil
}

// MarkStale flips quiet gateways offline in one transaction.
func (r *SQLiteRepository) MarkStale(ctx context.Context, cutoff time.Time) ([]string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	rows, err := tx.QueryContext(ctx,
		`SELECT gateway_id FROM gateways WHERE online = 1 AND updated_at < ? ORDER BY gateway_id`,
		formatTime(cutoff))
	if err != nil {
		return nil, fmt.Errorf("querying stale gateways: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning stale gateway: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating stale gateways: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `UPDATE gateways SET online = 0 WHERE gateway_id = ?`, id); err != nil {
			return nil, fmt.Errorf("marking %s offline: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing stale gateways: %w", err)
	}
	return ids, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGateway(scanner rowScanner) (*Gateway, error) {
	var (
		g                    Gateway
		online               int
		createdAt, updatedAt string
	)
	err := scanner.Scan(&g.GatewayID, &g.SubscribeTopic, &g.PublishTopic, &g.Description,
		&online, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	g.Online = online == 1

	var parseErr error
	if g.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt); parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	if g.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt); parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}
	return &g, nil
}

// formatTime renders timestamps as UTC RFC3339 so they compare lexically.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
