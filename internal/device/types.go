package device

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// UnnamedDevice is the placeholder name given to auto-created devices.
const UnnamedDevice = "unnamed device"

// Device is one controllable HVAC unit behind a gateway.
// This matches the devices table in migrations/20261017_090000_initial_schema.up.sql.
type Device struct {
	// Identity
	ID        string `json:"id"`
	GatewayID string `json:"gateway_id"`
	Address   string `json:"address"`
	Name      string `json:"name"`

	Lifecycle Lifecycle `json:"lifecycle"`
	Location  Location  `json:"location"`

	// Last known operating state
	CurrentTemp *float64  `json:"current_temp,omitempty"`
	SetTemp     *float64  `json:"set_temp,omitempty"`
	Status      RunStatus `json:"status"`
	Mode        Mode      `json:"mode"`
	FanSpeed    FanSpeed  `json:"fan_speed"`
	Online      bool      `json:"online"`

	LastUpdated *time.Time `json:"last_updated,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Location is the organisational placement of a device. Empty fields mean
// "not assigned".
type Location struct {
	Company    string `json:"company,omitempty"`
	Department string `json:"department,omitempty"`
	Building   string `json:"building,omitempty"`
	Floor      string `json:"floor,omitempty"`
	Room       string `json:"room,omitempty"`
}

// IsZero reports whether no location field is set.
func (l Location) IsZero() bool {
	return l == Location{}
}

// Lifecycle distinguishes auto-created devices from operator-completed ones.
type Lifecycle string

// Lifecycle constants.
const (
	LifecycleProvisional Lifecycle = "provisional"
	LifecycleActive      Lifecycle = "active"
)

// RunStatus is the run state reported by a unit.
type RunStatus string

// RunStatus constants.
const (
	StatusRunning RunStatus = "running"
	StatusStopped RunStatus = "stopped"
	StatusFault   RunStatus = "fault"
)

// AllRunStatuses returns all valid run status values.
func AllRunStatuses() []RunStatus {
	return []RunStatus{StatusRunning, StatusStopped, StatusFault}
}

// ParseRunStatus validates s as a run status.
func ParseRunStatus(s string) (RunStatus, error) {
	st := RunStatus(strings.ToLower(strings.TrimSpace(s)))
	for _, v := range AllRunStatuses() {
		if st == v {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// Mode is the operating mode of a unit.
type Mode string

// Mode constants.
const (
	ModeAuto       Mode = "auto"
	ModeCooling    Mode = "cooling"
	ModeHeating    Mode = "heating"
	ModeFan        Mode = "fan"
	ModeDehumidify Mode = "dehumidify"
)

// AllModes returns all valid mode values.
func AllModes() []Mode {
	return []Mode{ModeAuto, ModeCooling, ModeHeating, ModeFan, ModeDehumidify}
}

// ParseMode validates s as an operating mode.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	for _, v := range AllModes() {
		if m == v {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// FanSpeed is the fan setting of a unit. The wire values are a lookup
// table, not a scale: auto=0, high=1, medium=2, low=4, gentle=6.
type FanSpeed int

// FanSpeed constants.
const (
	FanAuto   FanSpeed = 0
	FanHigh   FanSpeed = 1
	FanMedium FanSpeed = 2
	FanLow    FanSpeed = 4
	FanGentle FanSpeed = 6
)

var fanSpeedNames = map[FanSpeed]string{
	FanAuto:   "auto",
	FanHigh:   "high",
	FanMedium: "medium",
	FanLow:    "low",
	FanGentle: "gentle",
}

// AllFanSpeeds returns all valid fan speeds in wire order.
func AllFanSpeeds() []FanSpeed {
	return []FanSpeed{FanAuto, FanHigh, FanMedium, FanLow, FanGentle}
}

// DecodeFanSpeed maps a wire value to a FanSpeed. Values outside the table
// are rejected, never rounded.
func DecodeFanSpeed(v int) (FanSpeed, error) {
	f := FanSpeed(v)
	if _, ok := fanSpeedNames[f]; !ok {
		return 0, fmt.Errorf("%w: %d", ErrInvalidFanSpeed, v)
	}
	return f, nil
}

// Encode returns the wire value.
func (f FanSpeed) Encode() int {
	return int(f)
}

// Valid reports whether f is one of the defined fan speeds.
func (f FanSpeed) Valid() bool {
	_, ok := fanSpeedNames[f]
	return ok
}

func (f FanSpeed) String() string {
	if name, ok := fanSpeedNames[f]; ok {
		return name
	}
	return "FanSpeed(" + strconv.Itoa(int(f)) + ")"
}

// ParseFanSpeed accepts either a name ("medium") or a wire value ("2").
func ParseFanSpeed(s string) (FanSpeed, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		return DecodeFanSpeed(n)
	}
	for f, name := range fanSpeedNames {
		if name == s {
			return f, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidFanSpeed, s)
}

// RawStatus is one unit's report before code-table decoding. Nil fields
// were absent from the message.
type RawStatus struct {
	// OnOffCode is the raw status code ("o" on the wire).
	OnOffCode *string

	// ModeCode is the raw mode code ("w").
	ModeCode *string

	SetTemp     *float64
	CurrentTemp *float64
	FanSpeed    *int

	// Presence is the optional online indicator ("acs").
	Presence *string
}

// StatusUpdate is a decoded, partial status change. Nil fields are left
// untouched on the device.
type StatusUpdate struct {
	Status      *RunStatus
	Mode        *Mode
	SetTemp     *float64
	CurrentTemp *float64
	FanSpeed    *FanSpeed
	Online      *bool

	// Source is recorded on the history row (SourceReport, SourcePresence, ...).
	Source string
}

// IsEmpty reports whether the update carries no field.
func (u StatusUpdate) IsEmpty() bool {
	return u.Status == nil && u.Mode == nil && u.SetTemp == nil &&
		u.CurrentTemp == nil && u.FanSpeed == nil && u.Online == nil
}

// merge applies u to d and reports whether an observable field changed.
func (u StatusUpdate) merge(d *Device) bool {
	changed := false
	if u.Status != nil && *u.Status != d.Status {
		d.Status = *u.Status
		changed = true
	}
	if u.Mode != nil && *u.Mode != d.Mode {
		d.Mode = *u.Mode
		changed = true
	}
	if u.FanSpeed != nil && *u.FanSpeed != d.FanSpeed {
		d.FanSpeed = *u.FanSpeed
		changed = true
	}
	if u.Online != nil && *u.Online != d.Online {
		d.Online = *u.Online
		changed = true
	}
	if u.SetTemp != nil && !floatPtrEqual(d.SetTemp, u.SetTemp) {
		v := *u.SetTemp
		d.SetTemp = &v
		changed = true
	}
	if u.CurrentTemp != nil && !floatPtrEqual(d.CurrentTemp, u.CurrentTemp) {
		v := *u.CurrentTemp
		d.CurrentTemp = &v
		changed = true
	}
	return changed
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Clone returns a copy of d that shares no pointers with it.
func (d *Device) Clone() *Device {
	if d == nil {
		return nil
	}
	cpy := *d
	if d.CurrentTemp != nil {
		v := *d.CurrentTemp
		cpy.CurrentTemp = &v
	}
	if d.SetTemp != nil {
		v := *d.SetTemp
		cpy.SetTemp = &v
	}
	if d.LastUpdated != nil {
		v := *d.LastUpdated
		cpy.LastUpdated = &v
	}
	return &cpy
}
