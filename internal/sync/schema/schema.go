// Package schema defines the wire shapes the sync engine exchanges with the
// backend, in three flavors per entity: insert-input (what a form produces,
// native time.Time), insert/update (wire shape, RFC 3339 strings) and fetch
// (server response, parsed back). Validation is pure and synchronous.
package schema

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// ErrValidation is returned for any malformed value. The detailed diagnostic
// is logged, never surfaced, so callers cannot depend on its shape.
var ErrValidation = errors.New("validation failed")

var validate = validator.New(validator.WithRequiredStructEnabled())

var log = zap.NewNop()

// SetLogger routes validation diagnostics to the given logger.
func SetLogger(l *zap.Logger) {
	if l != nil {
		log = l
	}
}

// Validate checks a single value against its struct tags. On failure it logs
// the field-level diagnostic and returns ErrValidation; no partial result is
// ever produced.
func Validate(v any) error {
	if err := validate.Struct(v); err != nil {
		logDiagnostic(v, err)
		return ErrValidation
	}
	return nil
}

// ValidateSlice checks every element and fails atomically on the first
// malformed one.
func ValidateSlice[T any](values []T) error {
	for i := range values {
		if err := validate.Struct(values[i]); err != nil {
			logDiagnostic(values[i], err)
			return ErrValidation
		}
	}
	return nil
}

func logDiagnostic(v any, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fe.Namespace()+" failed "+fe.Tag())
		}
		log.Warn("validation failed",
			zap.String("type", typeName(v)),
			zap.Strings("fields", fields),
		)
		return
	}
	log.Warn("validation failed", zap.String("type", typeName(v)), zap.Error(err))
}

func typeName(v any) string {
	return fmt.Sprintf("%T", v)
}
