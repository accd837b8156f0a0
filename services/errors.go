package services

import (
	"errors"
	"fmt"
)

// Domain error kinds. Controllers translate these to HTTP statuses; callers
// inside the services package match with errors.Is.
var (
	// ErrGuardViolation: a transition was attempted from a state that does not
	// permit it (fixing a decision twice, accepting a deprecated assignment).
	ErrGuardViolation = errors.New("guard violation")
	// ErrEligibility: the acting party lacks the required role or holds a
	// competing interest.
	ErrEligibility = errors.New("not eligible")
	// ErrAlreadyExists: idempotency guard on creation (already invited).
	ErrAlreadyExists = errors.New("already exists")
	// ErrDeadlineExpired: the governing deadline has passed with no active
	// extension. Recoverable only via an explicit extension or restart.
	ErrDeadlineExpired = errors.New("deadline expired")
	// ErrNotFound: the referenced entity is absent or already terminal.
	ErrNotFound = errors.New("not found")
)

// DomainError carries a kind from the taxonomy above plus a caller-facing
// message.
type DomainError struct {
	Kind error
	Msg  string
}

func (e *DomainError) Error() string { return e.Msg }
func (e *DomainError) Unwrap() error { return e.Kind }

func guardViolation(format string, args ...any) error {
	return &DomainError{Kind: ErrGuardViolation, Msg: fmt.Sprintf(format, args...)}
}

func notEligible(format string, args ...any) error {
	return &DomainError{Kind: ErrEligibility, Msg: fmt.Sprintf(format, args...)}
}

func alreadyExists(format string, args ...any) error {
	return &DomainError{Kind: ErrAlreadyExists, Msg: fmt.Sprintf(format, args...)}
}

func deadlineExpired(format string, args ...any) error {
	return &DomainError{Kind: ErrDeadlineExpired, Msg: fmt.Sprintf(format, args...)}
}

func notFound(format string, args ...any) error {
	return &DomainError{Kind: ErrNotFound, Msg: fmt.Sprintf(format, args...)}
}
