package manifest

import (
	"errors"
	"fmt"
)

// ErrUnsupportedVersion is returned when the reader has no rules for the requested version.
var ErrUnsupportedVersion = errors.New("unsupported presentation version")

// ParseError represents manifest text that is not valid JSON.
type ParseError struct {
	Message string
	Cause   error
}

func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("parse error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("parse error: %s", e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

// StructuralError represents a fatal problem with a resource in the manifest.
// Path locates the resource, e.g. "manifest.sequences[0].canvases[2]".
type StructuralError struct {
	Path    string
	Message string
	Cause   error
}

func (e *StructuralError) Error() string {
	msg := e.Message
	if e.Path != "" {
		msg = fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *StructuralError) Unwrap() error {
	return e.Cause
}
