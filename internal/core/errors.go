package core

import (
	"net/http"

	"github.com/cockroachdb/errors"
)

// Error kinds. Concrete errors are marked with one of these and
// callers test with errors.Is.
var (
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("not found")
	ErrIllegalTransition = errors.New("illegal transition")
	ErrMissingVariable   = errors.New("missing template variable")
)

// ErrTooManyImports is returned when all import slots are occupied and the
// wait timeout expires. Clients should retry after a short delay.
var ErrTooManyImports = errors.New("too many concurrent imports, please try again later")

// ValidationErrorf builds an error of kind ErrValidation.
func ValidationErrorf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrValidation)
}

// NotFoundErrorf builds an error of kind ErrNotFound.
func NotFoundErrorf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrNotFound)
}

// IllegalTransitionErrorf builds an error of kind ErrIllegalTransition.
func IllegalTransitionErrorf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrIllegalTransition)
}

// MissingVariableErrorf builds an error of kind ErrMissingVariable.
func MissingVariableErrorf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrMissingVariable)
}

// withHint attaches user-facing guidance to err.
func withHint(err error, hint string) error {
	return errors.WithHint(err, hint)
}

// Hint returns the first user-facing hint attached to err, if any.
func Hint(err error) string {
	if hints := errors.GetAllHints(err); len(hints) > 0 {
		return hints[0]
	}
	return ""
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsIllegalTransition reports whether err is an illegal transition error.
func IsIllegalTransition(err error) bool { return errors.Is(err, ErrIllegalTransition) }

// IsMissingVariable reports whether err is a missing template variable error.
func IsMissingVariable(err error) bool { return errors.Is(err, ErrMissingVariable) }

// HTTPStatus maps an error kind to the HTTP status the REST layer returns.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrIllegalTransition):
		return http.StatusConflict
	case errors.Is(err, ErrMissingVariable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrTooManyImports):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
