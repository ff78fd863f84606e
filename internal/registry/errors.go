package registry

import "errors"

// Domain-specific errors for the registry package.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrHubNotFound is returned when a hub ID has no registry.
	ErrHubNotFound = errors.New("registry: hub not found")

	// ErrSensorNotFound is returned when a sensor ID is not in the registry.
	ErrSensorNotFound = errors.New("registry: sensor not found")
)
