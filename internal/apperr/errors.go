package apperr

import "errors"

// Error kinds shared by stores, the service and the HTTP layer. Callers wrap
// them with fmt.Errorf("...: %w", ErrX) and match with errors.Is.
var (
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation failed")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrConflict        = errors.New("conflict")
	ErrUnauthorized    = errors.New("unauthorized")
)

// Kind reports which taxonomy entry err belongs to, or nil for internal errors.
func Kind(err error) error {
	for _, kind := range []error{ErrNotFound, ErrValidation, ErrInvalidArgument, ErrConflict, ErrUnauthorized} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
