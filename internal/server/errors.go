package server

import (
	"errors"
	"fmt"
	"net/http"
)

// Messages reported inside a result record rather than as an HTTP error.
const (
	msgBadScheme   = "URLs must use HTTP or HTTPS"
	msgCannotFetch = "Cannot fetch url"
)

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// ErrBodyTooLarge indicates a posted manifest exceeded the size limit
type ErrBodyTooLarge struct {
	Limit int64
}

func (e *ErrBodyTooLarge) Error() string {
	return fmt.Sprintf("request body exceeds %d bytes", e.Limit)
}

// ErrCheckFailed indicates the validator itself could not run
type ErrCheckFailed struct {
	Cause error
}

func (e *ErrCheckFailed) Error() string {
	return fmt.Sprintf("validation could not be performed: %v", e.Cause)
}

func (e *ErrCheckFailed) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		validationErr *ErrValidation
		tooLargeErr   *ErrBodyTooLarge
	)
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.As(err, &tooLargeErr):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}
