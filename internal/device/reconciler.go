package device

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Logger defines the logging interface used by the Reconciler.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// CodeTable decodes gateway-scoped raw codes. It is satisfied by
// *codetable.Set.
type CodeTable interface {
	HasGateway(gatewayID string) bool
	DecodeStatus(gatewayID, code string) (RunStatus, error)
	DecodeMode(gatewayID, code string) (Mode, error)
}

// SnapshotSink receives every device state that produced a history row.
// Implementations must not block.
type SnapshotSink interface {
	WriteSnapshot(d *Device, source string, at time.Time)
}

// Result is the outcome of reconciling one reported unit.
type Result struct {
	Device  *Device
	Created bool
	Changed bool
}

// Reconciler applies decoded gateway reports to the device set, creating
// devices the first time an address is seen.
//
// All methods are safe for concurrent use; atomicity comes from the
// Repository.
type Reconciler struct {
	repo   Repository
	codes  CodeTable
	sink   SnapshotSink
	logger Logger
	now    func() time.Time
}

// NewReconciler creates a Reconciler over repo, decoding with codes.
func NewReconciler(repo Repository, codes CodeTable) *Reconciler {
	return &Reconciler{
		repo:   repo,
		codes:  codes,
		logger: noopLogger{},
		now:    time.Now,
	}
}

// SetLogger sets the logger for the reconciler.
func (r *Reconciler) SetLogger(logger Logger) {
	r.logger = logger
}

// SetSnapshotSink registers a sink for changed device states (nil disables).
func (r *Reconciler) SetSnapshotSink(sink SnapshotSink) {
	r.sink = sink
}

// ReconcileDevice returns the device at (gatewayID, address), creating a
// provisional, online device with a placeholder name if it does not exist.
func (r *Reconciler) ReconcileDevice(ctx context.Context, gatewayID, address string) (*Device, bool, error) {
	d, created, err := r.repo.GetOrCreate(ctx, gatewayID, address)
	if err != nil {
		return nil, false, fmt.Errorf("reconciling %s/%s: %w", gatewayID, address, err)
	}
	if created {
		r.logger.Info("device auto-created", "id", d.ID, "gateway_id", gatewayID, "address", address)
	}
	return d, created, nil
}

// Decode turns raw codes into a StatusUpdate using the gateway's code table.
//
// An unknown gateway fails the whole update with ErrNoCodeTable. An unknown
// status or mode code, or a fan speed outside the lookup table, only drops
// that field.
func (r *Reconciler) Decode(gatewayID string, raw RawStatus) (StatusUpdate, error) {
	if r.codes == nil || !r.codes.HasGateway(gatewayID) {
		return StatusUpdate{}, fmt.Errorf("%w: %s", ErrNoCodeTable, gatewayID)
	}

	u := StatusUpdate{
		SetTemp:     raw.SetTemp,
		CurrentTemp: raw.CurrentTemp,
		Online:      decodePresence(raw.Presence),
		Source:      SourceReport,
	}

	if raw.OnOffCode != nil {
		st, err := r.codes.DecodeStatus(gatewayID, *raw.OnOffCode)
		if err != nil {
			r.logger.Warn("skipping status field", "gateway_id", gatewayID, "code", *raw.OnOffCode, "error", err)
		} else {
			u.Status = &st
		}
	}

	if raw.ModeCode != nil {
		m, err := r.codes.DecodeMode(gatewayID, *raw.ModeCode)
		if err != nil {
			r.logger.Warn("skipping mode field", "gateway_id", gatewayID, "code", *raw.ModeCode, "error", err)
		} else {
			u.Mode = &m
		}
	}

	if raw.FanSpeed != nil {
		fs, err := DecodeFanSpeed(*raw.FanSpeed)
		if err != nil {
			r.logger.Warn("skipping fan speed field", "gateway_id", gatewayID, "value", *raw.FanSpeed, "error", err)
		} else {
			u.FanSpeed = &fs
		}
	}

	return u, nil
}

// decodePresence maps the optional "acs" indicator. A decoded report means
// the unit is reachable unless it explicitly says otherwise.
func decodePresence(acs *string) *bool {
	online := true
	if acs != nil {
		switch strings.ToLower(strings.TrimSpace(*acs)) {
		case "0", "offline", "false", "off":
			online = false
		}
	}
	return &online
}

// ApplyStatus decodes raw and applies it to an existing device.
// Returns ErrDeviceNotFound if (gatewayID, address) is unknown.
func (r *Reconciler) ApplyStatus(ctx context.Context, gatewayID, address string, raw RawStatus) (*Device, bool, error) {
	u, err := r.Decode(gatewayID, raw)
	if err != nil {
		return nil, false, err
	}

	d, err := r.repo.GetByAddress(ctx, gatewayID, address)
	if err != nil {
		return nil, false, err
	}
	return r.apply(ctx, d.ID, u)
}

// ReconcileAndApply is the ingest entry point: decode, get-or-create, apply.
// Decoding runs first so a report from a gateway without a code table never
// creates a device.
func (r *Reconciler) ReconcileAndApply(ctx context.Context, gatewayID, address string, raw RawStatus) (Result, error) {
	u, err := r.Decode(gatewayID, raw)
	if err != nil {
		return Result{}, err
	}

	d, created, err := r.ReconcileDevice(ctx, gatewayID, address)
	if err != nil {
		return Result{}, err
	}

	updated, changed, err := r.apply(ctx, d.ID, u)
	if err != nil {
		return Result{}, err
	}
	return Result{Device: updated, Created: created, Changed: changed}, nil
}

func (r *Reconciler) apply(ctx context.Context, id string, u StatusUpdate) (*Device, bool, error) {
	at := r.now()
	d, changed, err := r.repo.ApplyStatus(ctx, id, u, at)
	if err != nil {
		return nil, false, fmt.Errorf("applying status to %s: %w", id, err)
	}

	if changed {
		r.logger.Debug("device status changed", "id", d.ID, "gateway_id", d.GatewayID, "address", d.Address,
			"status", d.Status, "mode", d.Mode, "fan_speed", d.FanSpeed)
		if r.sink != nil {
			r.sink.WriteSnapshot(d.Clone(), u.Source, at)
		}
	}
	return d, changed, nil
}

// SetGatewayDevicesOnline cascades a gateway presence change to its devices.
func (r *Reconciler) SetGatewayDevicesOnline(ctx context.Context, gatewayID string, online bool, source string) (int64, error) {
	n, err := r.repo.SetOnlineByGateway(ctx, gatewayID, online, source, r.now())
	if err != nil {
		return 0, fmt.Errorf("cascading presence to %s devices: %w", gatewayID, err)
	}
	if n > 0 {
		r.logger.Info("device presence cascaded", "gateway_id", gatewayID, "online", online, "devices", n, "source", source)
	}
	return n, nil
}

// Enrich supplies operator metadata and promotes the device to active.
// An empty name keeps the current one.
func (r *Reconciler) Enrich(ctx context.Context, id, name string, loc Location) (*Device, error) {
	current, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(name) == "" {
		name = current.Name
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if err := ValidateLocation(loc); err != nil {
		return nil, err
	}

	d, err := r.repo.UpdateMetadata(ctx, id, strings.TrimSpace(name), loc, LifecycleActive)
	if err != nil {
		return nil, err
	}
	r.logger.Info("device enriched", "id", id, "name", d.Name, "building", loc.Building, "room", loc.Room)
	return d, nil
}

// CreateDevice registers a device through the admin path with full metadata.
// Missing operating fields get their idle defaults.
func (r *Reconciler) CreateDevice(ctx context.Context, d *Device) error {
	if d.ID == "" {
		d.ID = GenerateID()
	}
	if d.Lifecycle == "" {
		d.Lifecycle = LifecycleActive
	}
	if d.Status == "" {
		d.Status = StatusStopped
	}
	if d.Mode == "" {
		d.Mode = ModeAuto
	}
	if err := ValidateDevice(d); err != nil {
		return err
	}
	if err := r.repo.Create(ctx, d); err != nil {
		return err
	}
	r.logger.Info("device created", "id", d.ID, "gateway_id", d.GatewayID, "address", d.Address, "name", d.Name)
	return nil
}

// GetDevice retrieves a device by ID.
func (r *Reconciler) GetDevice(ctx context.Context, id string) (*Device, error) {
	return r.repo.GetByID(ctx, id)
}

// ListDevices retrieves all devices.
func (r *Reconciler) ListDevices(ctx context.Context) ([]Device, error) {
	return r.repo.List(ctx)
}

// ListByGateway retrieves the devices behind one gateway.
func (r *Reconciler) ListByGateway(ctx context.Context, gatewayID string) ([]Device, error) {
	return r.repo.ListByGateway(ctx, gatewayID)
}

// ListByLocation retrieves devices matching the non-empty fields of loc.
func (r *Reconciler) ListByLocation(ctx context.Context, loc Location) ([]Device, error) {
	return r.repo.ListByLocation(ctx, loc)
}

// DeleteDevice removes a device and its history.
func (r *Reconciler) DeleteDevice(ctx context.Context, id string) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}
	r.logger.Info("device deleted", "id", id)
	return nil
}
