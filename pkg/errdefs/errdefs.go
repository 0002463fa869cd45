package errdefs

import (
	"errors"
	"fmt"
)

// Sentinel error kinds returned by the public API surface. Callers classify
// failures with errors.Is; operations wrap these with context via %w.
var (
	ErrBrokerUnavailable = errors.New("broker unavailable")
	ErrStoreFailure      = errors.New("store failure")
	ErrUnknownWordlist   = errors.New("unknown wordlist")
	ErrInvalidInput      = errors.New("invalid input")
	ErrNoActiveWorkers   = errors.New("no active workers")
	ErrFuzzerTimeout     = errors.New("fuzzer timeout")
	ErrFuzzerFailure     = errors.New("fuzzer failure")
	ErrMalformedResult   = errors.New("malformed result")
	ErrDuplicateID       = errors.New("duplicate id")
	ErrNotFound          = errors.New("not found")
)

// Wrap annotates a sentinel kind with a formatted message while keeping the
// kind matchable with errors.Is.
func Wrap(kind error, format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), kind)
}

// IsBrokerUnavailable reports whether err is a broker connectivity failure
func IsBrokerUnavailable(err error) bool { return errors.Is(err, ErrBrokerUnavailable) }

// IsInvalidInput reports whether err was caused by rejected caller input
func IsInvalidInput(err error) bool { return errors.Is(err, ErrInvalidInput) }

// IsDuplicateID reports whether err is an identifier collision
func IsDuplicateID(err error) bool { return errors.Is(err, ErrDuplicateID) }

// IsNotFound reports whether err refers to a missing entity
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
