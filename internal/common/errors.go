package common

import (
	"errors"
	"fmt"
)

// Error kinds for the extraction pipeline. Callers classify failures by
// errors.Is against these sentinels; the concrete cause is wrapped with %w.
var (
	// ErrRasterization means the source document could not be rendered.
	// Fatal to the whole job, no partial commit.
	ErrRasterization = errors.New("rasterization failed")

	// ErrSchemaValidation means an external capability returned structured
	// data that does not conform to the requested schema. Fatal to the
	// current round; the job-level retry policy may re-run the attempt.
	ErrSchemaValidation = errors.New("schema validation failed")

	// ErrCapabilityUnavailable means a capability call timed out or the
	// connection failed. Fatal to the current round.
	ErrCapabilityUnavailable = errors.New("capability unavailable")

	// ErrPersistence means a commit write failed. Fatal to the job.
	ErrPersistence = errors.New("persistence failed")

	// ErrNotFound is returned when an invoice id has no row.
	ErrNotFound = errors.New("invoice not found")

	// ErrInvalidTransition is returned when a lifecycle transition is not
	// allowed from the invoice's current status.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// WrapError annotates err with a message, preserving the wrapped chain.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
