package domain

import "errors"

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates the resource already exists
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates authentication failed or missing
	ErrUnauthorized = errors.New("unauthorized")

	// ErrSourcesDoNotMatch indicates a merge was attempted on two source
	// records that no match rule groups together
	ErrSourcesDoNotMatch = errors.New("sources do not match")

	// ErrUnknownStage indicates an unrecognized pipeline stage name
	ErrUnknownStage = errors.New("unknown pipeline stage")

	// ErrLeaseExpired indicates a worker's claim on a job has lapsed
	ErrLeaseExpired = errors.New("job lease expired")

	// ErrServiceUnavailable indicates an external model service could not be reached
	ErrServiceUnavailable = errors.New("service unavailable")
)
