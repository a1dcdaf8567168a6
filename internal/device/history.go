package device

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// HistoryEntry is one immutable device_status row: the device's state
// right after a change.
type HistoryEntry struct {
	ID          int64     `json:"id"`
	DeviceID    string    `json:"device_id"`
	CurrentTemp *float64  `json:"current_temp,omitempty"`
	SetTemp     *float64  `json:"set_temp,omitempty"`
	Status      RunStatus `json:"status"`
	Mode        Mode      `json:"mode"`
	FanSpeed    FanSpeed  `json:"fan_speed"`
	Online      bool      `json:"online"`
	Source      string    `json:"source"`
	CreatedAt   time.Time `json:"created_at"`
}

// HistoryRepository reads device status history. Rows are written by
// Repository.ApplyStatus and SetOnlineByGateway and are only removed when
// their device is deleted.
type HistoryRepository interface {
	// GetHistory returns up to limit entries, newest first.
	GetHistory(ctx context.Context, deviceID string, limit int) ([]HistoryEntry, error)
}

// SQLiteHistoryRepository implements HistoryRepository using SQLite.
type SQLiteHistoryRepository struct {
	db *sql.DB
}

// NewSQLiteHistoryRepository creates a new SQLite history repository.
func NewSQLiteHistoryRepository(db *sql.DB) *SQLiteHistoryRepository {
	return &SQLiteHistoryRepository{db: db}
}

// GetHistory orders by row id, which is monotonic, so entries written within
// the same second keep their insertion order.
func (r *SQLiteHistoryRepository) GetHistory(ctx context.Context, deviceID string, limit int) ([]HistoryEntry, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device id is required")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, device_id, current_temp, set_temp, status, mode, fan_speed, online, source, created_at
		FROM device_status
		WHERE device_id = ?
		ORDER BY id DESC
		LIMIT ?`,
		deviceID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying device history: %w", err)
	}
	defer rows.Close()

	entries := make([]HistoryEntry, 0, limit)
	for rows.Next() {
		var e HistoryEntry
		var currentTemp, setTemp sql.NullFloat64
		var status, mode, createdAt string
		var fanSpeed, online int

		if err := rows.Scan(&e.ID, &e.DeviceID, &currentTemp, &setTemp, &status, &mode,
			&fanSpeed, &online, &e.Source, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning device history: %w", err)
		}
		if currentTemp.Valid {
			e.CurrentTemp = &currentTemp.Float64
		}
		if setTemp.Valid {
			e.SetTemp = &setTemp.Float64
		}
		e.Status = RunStatus(status)
		e.Mode = Mode(mode)
		e.FanSpeed = FanSpeed(fanSpeed)
		e.Online = online != 0

		e.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device history: %w", err)
	}
	return entries, nil
}

func insertHistory(ctx context.Context, tx *sql.Tx, d *Device, source string, at time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO device_status (device_id, current_temp, set_temp, status, mode, fan_speed, online, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, nullableFloat(d.CurrentTemp), nullableFloat(d.SetTemp),
		string(d.Status), string(d.Mode), int(d.FanSpeed), boolToInt(d.Online),
		source, formatTime(at),
	)
	if err != nil {
		return fmt.Errorf("inserting device history: %w", err)
	}
	return nil
}
