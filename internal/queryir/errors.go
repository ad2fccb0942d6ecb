package queryir

import (
	"errors"
	"fmt"
)

// Compile error codes (Q100-Q199)
const (
	ErrUnknownEntity       = "Q100" // root or target entity type not declared
	ErrUnknownField        = "Q101" // field does not resolve to a declared attribute
	ErrUnsupportedCriteria = "Q102" // criteria not supported by the scalar family
	ErrMalformedPath       = "Q103" // dotted path traverses a scalar or is empty
	ErrUnknownRelation     = "Q104" // relation filter names a non-relation attribute
	ErrInvalidValue        = "Q105" // value has the wrong type for the family
	ErrInvalidPage         = "Q106" // page start/limit out of range
	ErrUnsupportedOrdering = "Q107" // ordering through a to-many relation or non-scalar
	ErrMalformedFilter     = "Q108" // object form could not be decoded
	ErrIdentityRequired    = "Q109" // nested batch under a type without identity
)

// CompileError is a request error detected before any query executes.
// Path locates the offending node ("where.books.genre", "select.books").
type CompileError struct {
	Code    string `json:"code"`
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (e *CompileError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Path, e.Message)
}

// NewCompileError creates a CompileError with a formatted message.
func NewCompileError(code, path, format string, args ...any) *CompileError {
	return &CompileError{Code: code, Path: path, Message: fmt.Sprintf(format, args...)}
}

// IsCompileError reports whether err is or wraps a *CompileError.
func IsCompileError(err error) bool {
	var ce *CompileError
	return errors.As(err, &ce)
}

// CompileErrorCode returns the code of a wrapped *CompileError, or "".
func CompileErrorCode(err error) string {
	var ce *CompileError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

func joinPath(base, elem string) string {
	if base == "" {
		return elem
	}
	return base + "." + elem
}
