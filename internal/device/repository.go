package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// History sources recorded on device_status rows.
const (
	SourceReport   = "report"
	SourcePresence = "presence"
	SourceSweep    = "sweep"
)

// Repository defines device persistence. Implementations must be safe for
// concurrent use.
type Repository interface {
	// GetByID returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	// GetByAddress looks a device up by its gateway-local address.
	GetByAddress(ctx context.Context, gatewayID, address string) (*Device, error)

	// GetOrCreate atomically returns the device at (gatewayID, address),
	// creating a provisional one if absent. created reports which happened.
	GetOrCreate(ctx context.Context, gatewayID, address string) (dev *Device, created bool, err error)

	List(ctx context.Context) ([]Device, error)
	ListByGateway(ctx context.Context, gatewayID string) ([]Device, error)

	// ListByLocation matches every non-empty field of loc; empty fields are wildcards.
	ListByLocation(ctx context.Context, loc Location) ([]Device, error)

	// Create inserts a fully specified device (admin path).
	Create(ctx context.Context, d *Device) error

	// UpdateMetadata replaces name, location and lifecycle.
	UpdateMetadata(ctx context.Context, id, name string, loc Location, lifecycle Lifecycle) (*Device, error)

	Delete(ctx context.Context, id string) error

	// ApplyStatus merges u into the device, stamps last_updated and, when an
	// observable field changed, appends a history row in the same transaction.
	ApplyStatus(ctx context.Context, id string, u StatusUpdate, at time.Time) (dev *Device, changed bool, err error)

	// SetOnlineByGateway flips the online flag of every device behind a
	// gateway, recording history for devices that actually changed.
	SetOnlineByGateway(ctx context.Context, gatewayID string, online bool, source string, at time.Time) (int64, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const deviceColumns = `id, gateway_id, address, name, lifecycle,
	company, department, building, floor, room,
	current_temp, set_temp, status, mode, fan_speed, online,
	last_updated, created_at, updated_at`

// GetByID retrieves a device by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+deviceColumns+` FROM devices WHERE id = ?`, id)
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return d, nil
}

// GetByAddress retrieves a device by gateway and address.
func (r *SQLiteRepository) GetByAddress(ctx context.Context, gatewayID, address string) (*Device, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE gateway_id = ? AND address = ?`,
		gatewayID, address)
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by address: %w", err)
	}
	return d, nil
}

// GetOrCreate relies on the UNIQUE(gateway_id, address) constraint: the
// insert is a no-op when a concurrent caller won, and the follow-up select
// returns whichever row exists.
func (r *SQLiteRepository) GetOrCreate(ctx context.Context, gatewayID, address string) (*Device, bool, error) {
	if err := ValidateAddress(address); err != nil {
		return nil, false, err
	}

	now := formatTime(time.Now())
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO devices (id, gateway_id, address, name, lifecycle, online, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT (gateway_id, address) DO NOTHING`,
		GenerateID(), gatewayID, address, UnnamedDevice, string(LifecycleProvisional), now, now,
	)
	if err != nil {
		if isForeignKeyError(err) {
			return nil, false, fmt.Errorf("%w: %s", ErrGatewayNotFound, gatewayID)
		}
		return nil, false, fmt.Errorf("inserting device: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("checking rows affected: %w", err)
	}

	d, err := r.GetByAddress(ctx, gatewayID, address)
	if err != nil {
		return nil, false, err
	}
	return d, affected == 1, nil
}

// List retrieves all devices.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	return r.queryDevices(ctx, `SELECT `+deviceColumns+` FROM devices ORDER BY gateway_id, address`)
}

// ListByGateway retrieves all devices behind a gateway.
func (r *SQLiteRepository) ListByGateway(ctx context.Context, gatewayID string) ([]Device, error) {
	return r.queryDevices(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE gateway_id = ? ORDER BY address`, gatewayID)
}

// ListByLocation retrieves devices matching the non-empty fields of loc.
func (r *SQLiteRepository) ListByLocation(ctx context.Context, loc Location) ([]Device, error) {
	var where []string
	var args []any
	for _, f := range []struct{ col, val string }{
		{"company", loc.Company},
		{"department", loc.Department},
		{"building", loc.Building},
		{"floor", loc.Floor},
		{"room", loc.Room},
	} {
		if f.val != "" {
			where = append(where, f.col+" = ?")
			args = append(args, f.val)
		}
	}

	query := `SELECT ` + deviceColumns + ` FROM devices`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY building, floor, room, gateway_id, address`
	return r.queryDevices(ctx, query, args...)
}

// Create inserts a new device.
func (r *SQLiteRepository) Create(ctx context.Context, d *Device) error {
	now := time.Now().UTC().Truncate(time.Second)
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO devices (`+deviceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.GatewayID, d.Address, d.Name, string(d.Lifecycle),
		d.Location.Company, d.Location.Department, d.Location.Building, d.Location.Floor, d.Location.Room,
		nullableFloat(d.CurrentTemp), nullableFloat(d.SetTemp),
		string(d.Status), string(d.Mode), int(d.FanSpeed), boolToInt(d.Online),
		nullableTime(d.LastUpdated), formatTime(d.CreatedAt), formatTime(d.UpdatedAt),
	)
	if err != nil {
		switch {
		case isUniqueConstraintError(err):
			return ErrDeviceExists
		case isForeignKeyError(err):
			return fmt.Errorf("%w: %s", ErrGatewayNotFound, d.GatewayID)
		}
		return fmt.Errorf("inserting device: %w", err)
	}
	return nil
}

// UpdateMetadata replaces the operator-managed fields of a device.
func (r *SQLiteRepository) UpdateMetadata(ctx context.Context, id, name string, loc Location, lifecycle Lifecycle) (*Device, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE devices
		SET name = ?, company = ?, department = ?, building = ?, floor = ?, room = ?,
			lifecycle = ?, updated_at = ?
		WHERE id = ?`,
		name, loc.Company, loc.Department, loc.Building, loc.Floor, loc.Room,
		string(lifecycle), formatTime(time.Now()), id,
	)
	if err != nil {
		return nil, fmt.Errorf("updating device metadata: %w", err)
	}
	if err := expectOneRow(result); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// Delete removes a device. Its history rows go with it.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM devices WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}
	return expectOneRow(result)
}

// ApplyStatus performs the read-merge-write inside one transaction. The
// connection is opened with _txlock=immediate, so the transaction holds the
// write lock from its first statement and a concurrent writer cannot
// interleave between the read and the write.
func (r *SQLiteRepository) ApplyStatus(ctx context.Context, id string, u StatusUpdate, at time.Time) (*Device, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	d, err := scanDevice(tx.QueryRowContext(ctx, `SELECT `+deviceColumns+` FROM devices WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, ErrDeviceNotFound
		}
		return nil, false, fmt.Errorf("reading device: %w", err)
	}

	changed := u.merge(d)
	at = at.UTC().Truncate(time.Second)
	d.LastUpdated = &at
	d.UpdatedAt = at

	_, err = tx.ExecContext(ctx, `
		UPDATE devices
		SET current_temp = ?, set_temp = ?, status = ?, mode = ?, fan_speed = ?, online = ?,
			last_updated = ?, updated_at = ?
		WHERE id = ?`,
		nullableFloat(d.CurrentTemp), nullableFloat(d.SetTemp),
		string(d.Status), string(d.Mode), int(d.FanSpeed), boolToInt(d.Online),
		formatTime(at), formatTime(at), id,
	)
	if err != nil {
		return nil, false, fmt.Errorf("updating device status: %w", err)
	}

	if changed {
		source := u.Source
		if source == "" {
			source = SourceReport
		}
		if err := insertHistory(ctx, tx, d, source, at); err != nil {
			return nil, false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("committing status: %w", err)
	}
	return d, changed, nil
}

// SetOnlineByGateway cascades a gateway presence change to its devices.
func (r *SQLiteRepository) SetOnlineByGateway(ctx context.Context, gatewayID string, online bool, source string, at time.Time) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	ts := formatTime(at)
	flag := boolToInt(online)

	// Snapshot the post-change state of the devices that are about to flip.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO device_status (device_id, current_temp, set_temp, status, mode, fan_speed, online, source, created_at)
		SELECT id, current_temp, set_temp, status, mode, fan_speed, ?, ?, ?
		FROM devices
		WHERE gateway_id = ? AND online != ?
		ORDER BY address`,
		flag, source, ts, gatewayID, flag,
	)
	if err != nil {
		return 0, fmt.Errorf("recording presence history: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE devices SET online = ?, updated_at = ?
		WHERE gateway_id = ? AND online != ?`,
		flag, ts, gatewayID, flag,
	)
	if err != nil {
		return 0, fmt.Errorf("updating device presence: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing presence: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) queryDevices(ctx context.Context, query string, args ...any) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(scanner rowScanner) (*Device, error) {
	var d Device
	var lifecycle, status, mode string
	var fanSpeed, online int
	var currentTemp, setTemp sql.NullFloat64
	var lastUpdated sql.NullString
	var createdAt, updatedAt string

	err := scanner.Scan(
		&d.ID, &d.GatewayID, &d.Address, &d.Name, &lifecycle,
		&d.Location.Company, &d.Location.Department, &d.Location.Building, &d.Location.Floor, &d.Location.Room,
		&currentTemp, &setTemp, &status, &mode, &fanSpeed, &online,
		&lastUpdated, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.Lifecycle = Lifecycle(lifecycle)
	d.Status = RunStatus(status)
	d.Mode = Mode(mode)
	d.FanSpeed = FanSpeed(fanSpeed)
	d.Online = online != 0
	if currentTemp.Valid {
		d.CurrentTemp = &currentTemp.Float64
	}
	if setTemp.Valid {
		d.SetTemp = &setTemp.Float64
	}
	if lastUpdated.Valid {
		if t, err := time.Parse(time.RFC3339, lastUpdated.String); err == nil {
			d.LastUpdated = &t
		}
	}

	var parseErr error
	if d.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt); parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	if d.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt); parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}
	return &d, nil
}

func expectOneRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// formatTime renders timestamps as UTC RFC3339 so they sort lexically.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func nullableFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
