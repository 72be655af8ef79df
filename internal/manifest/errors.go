package manifest

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every *Error matches exactly one of these with errors.Is.
var (
	ErrLoadingFailure    = errors.New("manifest loading failure")
	ErrParsingFailure    = errors.New("manifest parsing failure")
	ErrResolutionFailure = errors.New("url resolution failure")
)

// Numeric error codes reported alongside each kind.
const (
	CodeParsingFailure    = 10
	CodeLoadingFailure    = 11
	CodeResolutionFailure = 19
)

// Error is the payload carried by failure events.
type Error struct {
	Code    int
	Kind    error
	Message string
	URL     string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil && !strings.Contains(e.Message, e.Err.Error()) {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes both the kind and the underlying cause.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// NewLoadingError reports a transport failure for url.
func NewLoadingError(url string, err error) *Error {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	return &Error{
		Code:    CodeLoadingFailure,
		Kind:    ErrLoadingFailure,
		Message: fmt.Sprintf("Failed loading manifest: %s, %s", url, detail),
		URL:     url,
		Err:     err,
	}
}

// NewParsingError reports that url could not be turned into a manifest.
func NewParsingError(url string, err error) *Error {
	return &Error{
		Code:    CodeParsingFailure,
		Kind:    ErrParsingFailure,
		Message: "parsing failed for " + url,
		URL:     url,
		Err:     err,
	}
}

// NewResolutionError reports that no candidate origin could be selected.
func NewResolutionError() *Error {
	return &Error{
		Code:    CodeResolutionFailure,
		Kind:    ErrResolutionFailure,
		Message: "Failed to resolve a valid URL",
	}
}
