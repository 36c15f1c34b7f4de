// Package errors provides structured error handling for csvload.
//
// Every failure surfaced by the ingestion engine is an *Error whose Type places
// it in one of the categories callers branch on: configuration, resource,
// security, archive entry lookup and type casting.
package errors

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeInternal represents internal engine errors
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeConfig represents malformed request parameters
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypePermission represents access disabled by policy (local files, network)
	ErrorTypePermission ErrorType = "permission"
	// ErrorTypeResource represents an unreachable location or a non-success status
	ErrorTypeResource ErrorType = "resource"
	// ErrorTypeTimeout represents a connect or read timeout while fetching
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeNotFound represents a location that does not exist
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeData represents malformed content (unterminated quote, corrupt archive)
	ErrorTypeData ErrorType = "data"
	// ErrorTypeSecurity represents a redirect that changes the protocol class
	ErrorTypeSecurity ErrorType = "security"
	// ErrorTypeEntryNotFound represents an archive selector matching no entry
	ErrorTypeEntryNotFound ErrorType = "entry_not_found"
	// ErrorTypeTypeCast represents a raw value that cannot be cast to its column type
	ErrorTypeTypeCast ErrorType = "type_cast"
)

// Error represents a structured error with context
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack
type StackFrame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Detail returns a detail value and whether it was set
func (e *Error) Detail(key string) (interface{}, bool) {
	if e.Details == nil {
		return nil, false
	}
	v, ok := e.Details[key]
	return v, ok
}

// New creates a new error with the given type and message
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf creates a new error with a formatted message
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	// If already our error type, preserve the stack
	var existingErr *Error
	if errors.As(err, &existingErr) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existingErr.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// TypeOf returns the type of the outermost *Error in the chain, or "" if none
func TypeOf(err error) ErrorType {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Type
}

// IsType checks if any *Error in the chain has the given type
func IsType(err error, errType ErrorType) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Type == errType {
			return true
		}
		err = e.Cause
	}
	return false
}

// IsConfiguration reports whether err is a ConfigurationError (invalid request or disabled access)
func IsConfiguration(err error) bool {
	return IsType(err, ErrorTypeConfig) || IsType(err, ErrorTypePermission)
}

// IsResource reports whether err is a ResourceError
func IsResource(err error) bool {
	return IsType(err, ErrorTypeResource) || IsType(err, ErrorTypeTimeout) ||
		IsType(err, ErrorTypeNotFound) || IsType(err, ErrorTypeData)
}

// IsSecurityViolation reports whether err is a redirect protocol-class violation
func IsSecurityViolation(err error) bool {
	return IsType(err, ErrorTypeSecurity)
}

// IsEntryNotFound reports whether err is an archive entry lookup failure
func IsEntryNotFound(err error) bool {
	return IsType(err, ErrorTypeEntryNotFound)
}

// IsTypeCast reports whether err is a type cast failure
func IsTypeCast(err error) bool {
	return IsType(err, ErrorTypeTypeCast)
}

// IsRetryable returns true if the error is transient
func IsRetryable(err error) bool {
	switch TypeOf(err) {
	case ErrorTypeTimeout, ErrorTypeResource:
		return true
	default:
		return false
	}
}

// captureStack captures the current call stack
func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
