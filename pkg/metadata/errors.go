package metadata

import (
	"errors"
	"fmt"
)

// StoreError represents a domain error from metadata operations.
//
// These are structural errors (object not found, name collision, wrong type)
// as opposed to infrastructure errors (badger I/O failure), which propagate
// unchanged and abort the enclosing transaction.
//
// ErrInvariant errors indicate a defect. They must abort the transaction and
// must not be retried.
type StoreError struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// Path is the object path related to the error (if applicable)
	Path string
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.Path != "" {
		return e.Message + ": " + e.Path
	}
	return e.Message
}

// ErrorCode represents the category of a StoreError.
type ErrorCode int

const (
	// ErrNotFound indicates the requested object, path, parent or store doesn't exist
	ErrNotFound ErrorCode = iota

	// ErrAlreadyExists indicates a name collision on create or rename
	ErrAlreadyExists

	// ErrNotDirectory indicates operation expected a directory but got a file or anchor
	ErrNotDirectory

	// ErrNotExpectedType indicates the object has the wrong type for the operation
	// (e.g. content branches on a directory)
	ErrNotExpectedType

	// ErrExpelled indicates the object exists but is excluded from local sync
	ErrExpelled

	// ErrInvalidArgument indicates structurally invalid parameters
	// (e.g. empty name, moving a directory under itself)
	ErrInvalidArgument

	// ErrInvariant indicates an internal invariant was violated
	ErrInvariant

	// ErrIOError indicates the durable store or physical storage failed
	ErrIOError
)

func (c ErrorCode) String() string {
	switch c {
	case ErrNotFound:
		return "not found"
	case ErrAlreadyExists:
		return "already exists"
	case ErrNotDirectory:
		return "not a directory"
	case ErrNotExpectedType:
		return "not expected type"
	case ErrExpelled:
		return "expelled"
	case ErrInvalidArgument:
		return "invalid argument"
	case ErrInvariant:
		return "invariant violation"
	case ErrIOError:
		return "i/o error"
	default:
		return "unknown"
	}
}

// NewError builds a StoreError with a formatted message.
func NewError(code ErrorCode, format string, args ...any) *StoreError {
	return &StoreError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// NewPathError builds a StoreError attached to a path.
func NewPathError(code ErrorCode, path Path, format string, args ...any) *StoreError {
	return &StoreError{Code: code, Message: fmt.Sprintf(format, args...), Path: path.String()}
}

// Invariant builds an ErrInvariant error.
func Invariant(format string, args ...any) *StoreError {
	return NewError(ErrInvariant, format, args...)
}

// CodeOf returns the StoreError code carried by err, if any.
func CodeOf(err error) (ErrorCode, bool) {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Code, true
	}
	return 0, false
}

func hasCode(err error, code ErrorCode) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}

// IsNotFound reports whether err is an ErrNotFound StoreError.
func IsNotFound(err error) bool { return hasCode(err, ErrNotFound) }

// IsAlreadyExists reports whether err is an ErrAlreadyExists StoreError.
func IsAlreadyExists(err error) bool { return hasCode(err, ErrAlreadyExists) }

// IsNotDirectory reports whether err is an ErrNotDirectory StoreError.
func IsNotDirectory(err error) bool { return hasCode(err, ErrNotDirectory) }

// IsNotExpectedType reports whether err is an ErrNotExpectedType StoreError.
func IsNotExpectedType(err error) bool { return hasCode(err, ErrNotExpectedType) }

// IsExpelled reports whether err is an ErrExpelled StoreError.
func IsExpelled(err error) bool { return hasCode(err, ErrExpelled) }

// IsInvariant reports whether err is an ErrInvariant StoreError.
func IsInvariant(err error) bool { return hasCode(err, ErrInvariant) }
