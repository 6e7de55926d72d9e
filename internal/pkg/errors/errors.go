package errors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrInvalid     = errors.New("invalid")
	ErrConflict    = errors.New("conflict")
	ErrTooMany     = errors.New("too many requests")
	ErrUnavailable = errors.New("provider unavailable")
	ErrRejected    = errors.New("provider rejected")
	ErrInternal    = errors.New("internal")

	// ErrCollectionNotFound marks a collection that was never ingested. It
	// also matches ErrNotFound.
	ErrCollectionNotFound = fmt.Errorf("collection %w", ErrNotFound)
)

// FieldError describes one rejected input field. It matches ErrInvalid.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func NewFieldError(field, reason string) *FieldError {
	return &FieldError{Field: field, Reason: reason}
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *FieldError) Unwrap() error {
	return ErrInvalid
}

// FieldErrors collects every FieldError in err's tree, including joined errors.
func FieldErrors(err error) []*FieldError {
	var out []*FieldError
	var walk func(error)
	walk = func(e error) {
		if e == nil {
			return
		}
		if fe, ok := e.(*FieldError); ok {
			out = append(out, fe)
			return
		}
		switch u := e.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				walk(inner)
			}
		case interface{ Unwrap() error }:
			walk(u.Unwrap())
		}
	}
	walk(err)
	return out
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsCollectionNotFound(err error) bool {
	return errors.Is(err, ErrCollectionNotFound)
}

func IsInvalid(err error) bool {
	return errors.Is(err, ErrInvalid)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

func IsRejected(err error) bool {
	return errors.Is(err, ErrRejected)
}

func IsInternal(err error) bool {
	return errors.Is(err, ErrInternal)
}
