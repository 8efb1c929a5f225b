package mya

import "errors"

var (
	// ErrSourceUnavailable indicates the external archiver tool or endpoint
	// could not be reached or exited with an error status.
	ErrSourceUnavailable = errors.New("archiver source unavailable")

	// ErrMalformedResponse indicates archiver output that could not be parsed
	// into the expected tabular shape.
	ErrMalformedResponse = errors.New("malformed archiver response")

	// ErrUnsupportedIntervalUnit indicates a sample interval spec with an
	// unrecognized unit suffix.
	ErrUnsupportedIntervalUnit = errors.New("unsupported sample interval unit")
)
