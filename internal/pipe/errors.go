package pipe

import (
	"errors"
	"fmt"
)

var (
	// ErrNotValidPackage reports a subdirectory without a main file of a
	// recognized extension or without a README.
	ErrNotValidPackage = errors.New("not a valid pipe package")

	ErrDuplicateURL  = errors.New("pipe url already in catalog")
	ErrDuplicateName = errors.New("a pipe with this name already exists")
	ErrNotInCatalog  = errors.New("pipe url not in catalog")
)

// ValidationError is returned for a malformed repository reference.
type ValidationError struct {
	Input  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid repository reference %q: %s", e.Input, e.Reason)
}

// ParseError is returned when a remote payload does not have the expected
// shape or content.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unexpected response from %s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
