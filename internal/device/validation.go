package device

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	maxNameLength     = 100
	maxAddressLength  = 64
	maxLocationLength = 100
)

// ValidateDevice checks a device before it is persisted through the admin path.
// Returns an error describing the first validation failure found.
func ValidateDevice(d *Device) error {
	if d == nil {
		return fmt.Errorf("%w: device is nil", ErrInvalidDevice)
	}
	if strings.TrimSpace(d.GatewayID) == "" {
		return fmt.Errorf("%w: gateway_id is required", ErrInvalidDevice)
	}
	if err := ValidateAddress(d.Address); err != nil {
		return err
	}
	if err := ValidateName(d.Name); err != nil {
		return err
	}
	if err := ValidateLocation(d.Location); err != nil {
		return err
	}
	if d.Lifecycle != LifecycleProvisional && d.Lifecycle != LifecycleActive {
		return fmt.Errorf("%w: lifecycle %q", ErrInvalidDevice, d.Lifecycle)
	}
	if _, err := ParseRunStatus(string(d.Status)); err != nil {
		return err
	}
	if _, err := ParseMode(string(d.Mode)); err != nil {
		return err
	}
	if !d.FanSpeed.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidFanSpeed, d.FanSpeed)
	}
	return nil
}

// ValidateName checks if a device name is valid.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidDevice)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidDevice, maxNameLength)
	}
	return nil
}

// ValidateAddress checks a gateway-local device address.
func ValidateAddress(addr string) error {
	if strings.TrimSpace(addr) == "" {
		return fmt.Errorf("%w: address cannot be empty", ErrInvalidDevice)
	}
	if len(addr) > maxAddressLength {
		return fmt.Errorf("%w: address exceeds %d characters", ErrInvalidDevice, maxAddressLength)
	}
	return nil
}

// ValidateLocation bounds the free-text location fields.
func ValidateLocation(loc Location) error {
	for field, v := range map[string]string{
		"company":    loc.Company,
		"department": loc.Department,
		"building":   loc.Building,
		"floor":      loc.Floor,
		"room":       loc.Room,
	} {
		if len(v) > maxLocationLength {
			return fmt.Errorf("%w: %s exceeds %d characters", ErrInvalidDevice, field, maxLocationLength)
		}
	}
	return nil
}

// GenerateID creates a new UUID for a device.
func GenerateID() string {
	return uuid.New().String()
}
