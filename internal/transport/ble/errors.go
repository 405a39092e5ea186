package ble

import (
	"errors"
	"fmt"

	"github.com/nerrad567/poweredup/internal/hub"
)

// Domain errors for the ble package.
var (
	// ErrAdapterUnavailable is returned when the host Bluetooth adapter
	// cannot be enabled.
	ErrAdapterUnavailable = errors.New("ble: adapter unavailable")

	// ErrNoHubFound is returned when a scan ends without a matching hub.
	ErrNoHubFound = errors.New("ble: no hub found")

	// ErrCharacteristicNotFound is returned when a connected device does
	// not expose the LPF2 service and characteristic.
	ErrCharacteristicNotFound = errors.New("ble: LPF2 characteristic not found")

	// ErrClosed is returned when writing to a closed connection. It wraps
	// hub.ErrDisconnected.
	ErrClosed = fmt.Errorf("ble: connection closed: %w", hub.ErrDisconnected)
)
