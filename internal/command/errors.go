package command

import "errors"

var (
	// ErrInvalidIntent is returned when a control intent fails validation.
	// Nothing is published.
	ErrInvalidIntent = errors.New("command: invalid intent")

	// ErrNoTargets is returned when a dispatch names no devices.
	ErrNoTargets = errors.New("command: no target devices")
)
