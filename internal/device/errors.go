package device

import "errors"

// Domain errors for the device package.
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device ID or (gateway, address) pair does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when creating a device whose ID or (gateway, address) is taken.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidDevice is returned when device validation fails.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrInvalidFanSpeed is returned for fan speed values outside {0,1,2,4,6}.
	ErrInvalidFanSpeed = errors.New("device: invalid fan speed")

	// ErrInvalidMode is returned for unrecognised operating modes.
	ErrInvalidMode = errors.New("device: invalid mode")

	// ErrInvalidStatus is returned for unrecognised run statuses.
	ErrInvalidStatus = errors.New("device: invalid status")

	// ErrGatewayNotFound is returned when a device references a gateway that is not registered.
	ErrGatewayNotFound = errors.New("device: gateway not found")

	// ErrNoCodeTable is returned when a report arrives for a gateway with no code table.
	ErrNoCodeTable = errors.New("device: no code table for gateway")
)
