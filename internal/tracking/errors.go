package tracking

import "errors"

var (
	// ErrNotFound is returned when an experiment, run or metric does not exist.
	ErrNotFound = errors.New("tracking: not found")

	// ErrAlreadyExists is returned when creating an experiment whose name is taken.
	ErrAlreadyExists = errors.New("tracking: already exists")

	// ErrParamOverwrite is returned when a parameter key is logged twice on a run.
	ErrParamOverwrite = errors.New("tracking: parameter already logged")

	// ErrRunNotActive is returned when writing to a run that has been closed.
	ErrRunNotActive = errors.New("tracking: run is not active")

	// ErrInvalidKey is returned for parameter, metric or tag keys that cannot
	// be stored safely.
	ErrInvalidKey = errors.New("tracking: invalid key")

	// ErrUnsupportedURI is returned when a tracking or artifact URI uses an
	// unknown scheme.
	ErrUnsupportedURI = errors.New("tracking: unsupported uri")
)
