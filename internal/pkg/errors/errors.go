package errors

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalid           = errors.New("invalid")
	ErrConflict          = errors.New("conflict")
	ErrTooMany           = errors.New("too many requests")
	ErrInternal          = errors.New("internal")
	ErrConfiguration     = errors.New("configuration error")
	ErrExternalService   = errors.New("external service error")
	ErrIngestion         = errors.New("ingestion error")
	ErrSynthesis         = errors.New("synthesis error")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}
