package gateway

import "errors"

var (
	// ErrGatewayNotFound is returned when a gateway identifier is not registered.
	ErrGatewayNotFound = errors.New("gateway: not found")

	// ErrInvalidGateway is returned when gateway fields fail validation.
	ErrInvalidGateway = errors.New("gateway: invalid")
)
