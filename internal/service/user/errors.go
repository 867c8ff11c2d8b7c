package user

import (
	"errors"
	"strings"
)

var (
	ErrNotFound     = errors.New("user not found")
	ErrInvalidEmail = errors.New("invalid email format")
	ErrEmailExists  = errors.New("email already exists")
	ErrValidation   = errors.New("validation failed")
)

// ValidationError lists the field problems that rejected a request.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return ErrValidation.Error()
	}
	return ErrValidation.Error() + ": " + strings.Join(e.Errors, ", ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalidAge() *ValidationError {
	return &ValidationError{Errors: []string{AgeNotNumber}}
}

// Outcome classifies the result of a service call for transport adapters.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeNotFound
	OutcomeValidation
	OutcomeConflict
	OutcomeFault
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeValidation:
		return "validation"
	case OutcomeConflict:
		return "conflict"
	default:
		return "fault"
	}
}

// Classify maps an error returned by Service onto an Outcome.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidEmail):
		return OutcomeValidation
	case errors.Is(err, ErrEmailExists):
		return OutcomeConflict
	default:
		return OutcomeFault
	}
}

// Messages returns the per-field messages carried by a validation error, if any.
func Messages(err error) []string {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return append([]string(nil), verr.Errors...)
	}
	return nil
}
