package backend

import (
	"errors"
	"fmt"
)

// ErrorKind classifies access-function failures so the retry layer can skip
// attempts that cannot succeed.
type ErrorKind int

const (
	// KindTransient covers network failures and 5xx responses.
	KindTransient ErrorKind = iota
	// KindPermanent covers 4xx responses: auth, not-found, conflicts.
	KindPermanent
	// KindValidation covers malformed input or an unexpected response shape.
	KindValidation
)

// Error is the tagged failure every access function returns.
type Error struct {
	Kind    ErrorKind
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Op
}

func (e *Error) Unwrap() error { return e.Err }

// IsRetryable reports whether an error is worth another attempt. Anything
// not tagged by this package is assumed transient.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == KindTransient
	}
	return true
}
