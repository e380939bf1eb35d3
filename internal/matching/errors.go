package matching

import (
	"errors"
	"fmt"
)

// ErrValidation is wrapped by every input validation error. Validation
// errors are returned before any data is read.
var ErrValidation = errors.New("validation error")

// Validation errors.
var (
	ErrInvalidContext  = fmt.Errorf("%w: context must be pulse or zone", ErrValidation)
	ErrInvalidLimit    = fmt.Errorf("%w: limit must not be negative", ErrValidation)
	ErrInvalidOffset   = fmt.Errorf("%w: offset must not be negative", ErrValidation)
	ErrInvalidUserID   = fmt.Errorf("%w: user id must be a UUID", ErrValidation)
	ErrInvalidTargetID = fmt.Errorf("%w: target id must be a UUID other than the user id", ErrValidation)
)

// Lookup errors.
var (
	ErrUserNotFound   = errors.New("user not found")
	ErrTargetNotFound = errors.New("target not found")
)

// ErrCandidatePoolUnavailable is returned when the candidate pool or its
// privacy data cannot be read. The call produced no ranking and may be retried.
var ErrCandidatePoolUnavailable = errors.New("candidate pool unavailable")
