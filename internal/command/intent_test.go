package command

import (
	"errors"
	"math"
	"testing"

	"github.com/nerrad567/hvac-link-core/internal/codetable"
	"github.com/nerrad567/hvac-link-core/internal/device"
)

func ptr[T any](v T) *T { return &v }

func TestIntentValidate(t *testing.T) {
	tests := []struct {
		name    string
		intent  Intent
		wantErr bool
	}{
		{"power only", Intent{Power: ptr(true)}, false},
		{"all fields", Intent{Power: ptr(false), SetTemperature: ptr(22.5), Mode: ptr(device.ModeHeating), FanSpeed: ptr(device.FanLow)}, false},
		{"empty", Intent{}, true},
		{"nan temperature", Intent{SetTemperature: ptr(math.NaN())}, true},
		{"infinite temperature", Intent{SetTemperature: ptr(math.Inf(1))}, true},
		{"too cold", Intent{SetTemperature: ptr(4.9)}, true},
		{"too hot", Intent{SetTemperature: ptr(40.5)}, true},
		{"bounds inclusive", Intent{SetTemperature: ptr(MaxSetTemperature)}, false},
		{"bad mode", Intent{Mode: ptr(device.Mode("turbo"))}, true},
		{"bad fan speed", Intent{FanSpeed: ptr(device.FanSpeed(3))}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.intent.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidIntent) {
					t.Errorf("Validate() error = %v, want ErrInvalidIntent", err)
				}
				return
			}
			if err != nil {
				t.Errorf("Validate() unexpected error: %v", err)
			}
		})
	}
}

func TestIntentValidateFanSpeedIsTyped(t *testing.T) {
	err := Intent{FanSpeed: ptr(device.FanSpeed(5))}.Validate()
	if !errors.Is(err, device.ErrInvalidFanSpeed) {
		t.Errorf("error = %v, want ErrInvalidFanSpeed in chain", err)
	}
}

func TestParseIntent(t *testing.T) {
	in, err := ParseIntent("on", "21.5", "Cooling", "medium")
	if err != nil {
		t.Fatalf("ParseIntent() error: %v", err)
	}
	if in.Power == nil || !*in.Power {
		t.Errorf("Power = %v, want true", in.Power)
	}
	if in.SetTemperature == nil || *in.SetTemperature != 21.5 {
		t.Errorf("SetTemperature = %v, want 21.5", in.SetTemperature)
	}
	if in.Mode == nil || *in.Mode != device.ModeCooling {
		t.Errorf("Mode = %v, want cooling", in.Mode)
	}
	if in.FanSpeed == nil || *in.FanSpeed != device.FanMedium {
		t.Errorf("FanSpeed = %v, want medium", in.FanSpeed)
	}

	in, err = ParseIntent("off", "", "", "")
	if err != nil {
		t.Fatalf("ParseIntent(off) error: %v", err)
	}
	if in.Power == nil || *in.Power || in.SetTemperature != nil || in.Mode != nil || in.FanSpeed != nil {
		t.Errorf("ParseIntent(off) = %+v", in)
	}
}

func TestParseIntentRejects(t *testing.T) {
	tests := []struct {
		name                   string
		power, temp, mode, fan string
	}{
		{"nothing", "", "", "", ""},
		{"bad power", "maybe", "", "", ""},
		{"non-numeric temperature", "", "warm", "", ""},
		{"out of range temperature", "", "80", "", ""},
		{"bad mode", "", "", "turbo", ""},
		{"bad fan", "", "", "", "3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseIntent(tt.power, tt.temp, tt.mode, tt.fan)
			if !errors.Is(err, ErrInvalidIntent) {
				t.Errorf("ParseIntent() error = %v, want ErrInvalidIntent", err)
			}
		})
	}
}

func TestEncode(t *testing.T) {
	codes := codetable.NewSet()
	codes.Put("GW1", codetable.Standard())

	in := Intent{
		Power:          ptr(true),
		SetTemperature: ptr(23.0),
		Mode:           ptr(device.ModeHeating),
		FanSpeed:       ptr(device.FanGentle),
	}
	cw, err := encode(codes, 11, "GW1", []string{"1-1"}, in)
	if err != nil {
		t.Fatalf("encode() error: %v", err)
	}
	if *cw.OnOff != 1 || *cw.TempSet != 23.0 || *cw.WorkMode != 2 || *cw.FanSpeed != 6 {
		t.Errorf("encode() = onOff %d tempSet %v workMode %d fanSpeed %d", *cw.OnOff, *cw.TempSet, *cw.WorkMode, *cw.FanSpeed)
	}

	off, err := encode(codes, 12, "GW1", []string{"1-1"}, Intent{Power: ptr(false)})
	if err != nil {
		t.Fatalf("encode(off) error: %v", err)
	}
	if *off.OnOff != 0 || off.TempSet != nil || off.WorkMode != nil || off.FanSpeed != nil {
		t.Errorf("encode(off) = %+v", off)
	}

	_, err = encode(codes, 13, "GW2", []string{"1-1"}, Intent{Power: ptr(true)})
	if !errors.Is(err, codetable.ErrUnknownGateway) {
		t.Errorf("encode() unknown gateway error = %v, want ErrUnknownGateway", err)
	}

	// Pass-through fields still need a known gateway.
	_, err = encode(codes, 14, "GW2", []string{"1-1"}, Intent{SetTemperature: ptr(20.0), FanSpeed: ptr(device.FanAuto)})
	if !errors.Is(err, codetable.ErrUnknownGateway) {
		t.Errorf("encode() pass-through fields on unknown gateway error = %v, want ErrUnknownGateway", err)
	}
	if _, err := encode(codes, 15, "GW1", []string{"1-1"}, Intent{SetTemperature: ptr(20.0)}); err != nil {
		t.Errorf("encode() temperature only error: %v", err)
	}
}
