package poweredup

import "errors"

// Domain errors for the bridge.
var (
	// ErrSessionRequired is returned by NewBridge without a hub session.
	ErrSessionRequired = errors.New("bridge: hub session is required")

	// ErrHubIDRequired is returned by NewBridge without a hub id.
	ErrHubIDRequired = errors.New("bridge: hub id is required")
)
