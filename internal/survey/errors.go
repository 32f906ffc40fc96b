package survey

import "errors"

var (
	// ErrInvalidInput reports malformed scalar parameters or positions.
	// The caller should correct the input and retry.
	ErrInvalidInput = errors.New("invalid input")

	// ErrIllConditionedGeometry reports station geometry that cannot fix
	// a position: too few stations, colinear stations, or a singular
	// normal matrix during iteration. More or better-spread stations are
	// needed.
	ErrIllConditionedGeometry = errors.New("ill-conditioned station geometry")
)
