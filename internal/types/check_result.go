// Package types provides the data records exchanged between the validator, the CLI and the HTTP service.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"github.com/jonathan/iiif-validator/internal/schemas"
)

// NoError is the error text reported when validation raised nothing.
const NoError = "None"

// CheckResult is the JSON record produced for one validation.
//
// Warnings is only set by the 2.x reader path and ErrorList only by the 3.0 schema
// path; omitzero drops whichever the path left nil, while an empty non-nil
// Warnings slice still serialises as [].
type CheckResult struct {
	Received  string                `json:"received"`
	Okay      int                   `json:"okay"`
	Warnings  []string              `json:"warnings,omitzero"`
	Error     string                `json:"error"`
	URL       *string               `json:"url"`
	ErrorList []schemas.ErrorDetail `json:"errorList,omitzero"`
}

// Passed reports whether the manifest validated.
func (r *CheckResult) Passed() bool {
	return r.Okay == 1
}

// Failure builds a result for a manifest that could not be checked.
func Failure(received, message string, url *string) *CheckResult {
	return &CheckResult{
		Received: received,
		Okay:     0,
		Error:    message,
		URL:      url,
	}
}

// Okay converts a pass/fail flag into the 0/1 form used on the wire.
func Okay(passed bool) int {
	if passed {
		return 1
	}
	return 0
}
