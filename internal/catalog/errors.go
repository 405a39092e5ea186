package catalog

import "errors"

var (
	// ErrPortNotFound is returned when no record exists for a hub port.
	ErrPortNotFound = errors.New("catalog: port not found")

	// ErrHubNotFound is returned when a hub has never been saved.
	ErrHubNotFound = errors.New("catalog: hub not found")

	// ErrInvalidHubID is returned for an empty hub id.
	ErrInvalidHubID = errors.New("catalog: hub id is required")
)
