package command

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/nerrad567/hvac-link-core/internal/codetable"
	"github.com/nerrad567/hvac-link-core/internal/device"
	"github.com/nerrad567/hvac-link-core/internal/protocol"
)

// Set-point bounds accepted from operators, in °C.
const (
	MinSetTemperature = 5.0
	MaxSetTemperature = 40.0
)

// Intent is a logical control request. Nil fields are left unchanged on
// the unit.
type Intent struct {
	Power          *bool            `json:"power,omitempty"`
	SetTemperature *float64         `json:"set_temperature,omitempty"`
	Mode           *device.Mode     `json:"mode,omitempty"`
	FanSpeed       *device.FanSpeed `json:"fan_speed,omitempty"`
}

// IsEmpty reports whether the intent carries no setting.
func (i Intent) IsEmpty() bool {
	return i.Power == nil && i.SetTemperature == nil && i.Mode == nil && i.FanSpeed == nil
}

// Validate checks the intent before anything is encoded or published.
func (i Intent) Validate() error {
	if i.IsEmpty() {
		return fmt.Errorf("%w: no setting given", ErrInvalidIntent)
	}
	if t := i.SetTemperature; t != nil {
		if math.IsNaN(*t) || math.IsInf(*t, 0) {
			return fmt.Errorf("%w: set temperature is not a number", ErrInvalidIntent)
		}
		if *t < MinSetTemperature || *t > MaxSetTemperature {
			return fmt.Errorf("%w: set temperature %.1f outside %.0f-%.0f", ErrInvalidIntent, *t, MinSetTemperature, MaxSetTemperature)
		}
	}
	if i.Mode != nil {
		if _, err := device.ParseMode(string(*i.Mode)); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidIntent, err)
		}
	}
	if i.FanSpeed != nil && !i.FanSpeed.Valid() {
		return fmt.Errorf("%w: %w: %d", ErrInvalidIntent, device.ErrInvalidFanSpeed, int(*i.FanSpeed))
	}
	return nil
}

// ParseIntent builds an intent from operator strings. Empty strings leave
// the field unset. Power accepts on/off/true/false/1/0.
func ParseIntent(power, temperature, mode, fan string) (Intent, error) {
	var in Intent

	if p := strings.ToLower(strings.TrimSpace(power)); p != "" {
		var on bool
		switch p {
		case "on", "true", "1":
			on = true
		case "off", "false", "0":
			on = false
		default:
			return Intent{}, fmt.Errorf("%w: power %q", ErrInvalidIntent, power)
		}
		in.Power = &on
	}

	if t := strings.TrimSpace(temperature); t != "" {
		v, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return Intent{}, fmt.Errorf("%w: set temperature %q is not a number", ErrInvalidIntent, temperature)
		}
		in.SetTemperature = &v
	}

	if strings.TrimSpace(mode) != "" {
		m, err := device.ParseMode(mode)
		if err != nil {
			return Intent{}, fmt.Errorf("%w: %w", ErrInvalidIntent, err)
		}
		in.Mode = &m
	}

	if strings.TrimSpace(fan) != "" {
		f, err := device.ParseFanSpeed(fan)
		if err != nil {
			return Intent{}, fmt.Errorf("%w: %w", ErrInvalidIntent, err)
		}
		in.FanSpeed = &f
	}

	return in, in.Validate()
}

// Encoder translates power and mode through a gateway's code table.
// Satisfied by *codetable.Set.
type Encoder interface {
	HasGateway(gatewayID string) bool
	EncodePower(gatewayID string, on bool) (int, error)
	EncodeMode(gatewayID string, m device.Mode) (int, error)
}

// encode builds the control_write for one gateway group. Temperature and
// fan speed pass through as numbers, but the gateway must still have a code
// table: an unknown gateway fails every intent.
func encode(codes Encoder, serial int64, gatewayID string, addrs []string, in Intent) (protocol.ControlWrite, error) {
	cw := protocol.ControlWrite{
		Serial:    serial,
		GatewayID: gatewayID,
		Addrs:     addrs,
	}
	if codes == nil || !codes.HasGateway(gatewayID) {
		return cw, fmt.Errorf("%w: %s", codetable.ErrUnknownGateway, gatewayID)
	}
	if in.Power != nil {
		v, err := codes.EncodePower(gatewayID, *in.Power)
		if err != nil {
			return cw, fmt.Errorf("encode power: %w", err)
		}
		cw.OnOff = &v
	}
	if in.SetTemperature != nil {
		t := *in.SetTemperature
		cw.TempSet = &t
	}
	if in.Mode != nil {
		v, err := codes.EncodeMode(gatewayID, *in.Mode)
		if err != nil {
			return cw, fmt.Errorf("encode mode: %w", err)
		}
		cw.WorkMode = &v
	}
	if in.FanSpeed != nil {
		v := in.FanSpeed.Encode()
		cw.FanSpeed = &v
	}
	return cw, nil
}
