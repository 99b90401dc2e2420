// Package errors provides a structured error system for routefs with error codes, categories, and context.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"syscall"
	"time"
)

// ErrorCode represents a structured error code for routefs operations.
type ErrorCode string

const (
	// Routing Errors
	ErrCodeRouteInvalid  ErrorCode = "ROUTE_INVALID"
	ErrCodeNoMatch       ErrorCode = "NO_MATCH"
	ErrCodeHandlerStatus ErrorCode = "HANDLER_STATUS"
	ErrCodeHandlerPanic  ErrorCode = "HANDLER_PANIC"

	// Filesystem Errors
	ErrCodeNotFound       ErrorCode = "NOT_FOUND"
	ErrCodeBadDescriptor  ErrorCode = "BAD_DESCRIPTOR"
	ErrCodeMountFailed    ErrorCode = "MOUNT_FAILED"
	ErrCodeUnmountFailed  ErrorCode = "UNMOUNT_FAILED"
	ErrCodeAlreadyMounted ErrorCode = "ALREADY_MOUNTED"
	ErrCodeNotMounted     ErrorCode = "NOT_MOUNTED"
	ErrCodePathInvalid    ErrorCode = "PATH_INVALID"

	// Configuration Errors
	ErrCodeInvalidConfig    ErrorCode = "INVALID_CONFIG"
	ErrCodeConfigLoad       ErrorCode = "CONFIG_LOAD"
	ErrCodeConfigValidation ErrorCode = "CONFIG_VALIDATION"

	// Storage Errors
	ErrCodeStorageRead ErrorCode = "STORAGE_READ"

	// Internal System Errors
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// ErrorCategory represents the general category of an error.
type ErrorCategory string

const (
	CategoryRouting       ErrorCategory = "routing"
	CategoryFilesystem    ErrorCategory = "filesystem"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryStorage       ErrorCategory = "storage"
	CategoryInternal      ErrorCategory = "internal"
)

// Error represents a structured error with context and metadata.
type Error struct {
	Code     ErrorCode         `json:"code"`
	Category ErrorCategory     `json:"category"`
	Message  string            `json:"message"`
	Context  map[string]string `json:"context,omitempty"`
	Cause    error             `json:"-"`

	Timestamp time.Time `json:"timestamp"`
	Component string    `json:"component,omitempty"`
	Operation string    `json:"operation,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	var msg string
	if e.Component != "" {
		if e.Operation != "" {
			msg = fmt.Sprintf("[%s:%s] %s: %s", e.Component, e.Operation, e.Code, e.Message)
		} else {
			msg = fmt.Sprintf("[%s] %s: %s", e.Component, e.Code, e.Message)
		}
	} else {
		msg = fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause error for error wrapping compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target error (for errors.Is compatibility).
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// String returns a detailed string representation for logging.
func (e *Error) String() string {
	parts := []string{
		fmt.Sprintf("Code=%s", e.Code),
		fmt.Sprintf("Category=%s", e.Category),
		fmt.Sprintf("Message=%q", e.Message),
	}
	if e.Component != "" {
		parts = append(parts, fmt.Sprintf("Component=%s", e.Component))
	}
	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("Operation=%s", e.Operation))
	}
	if len(e.Context) > 0 {
		ctx, _ := json.Marshal(e.Context)
		parts = append(parts, fmt.Sprintf("Context=%s", ctx))
	}
	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause=%q", e.Cause.Error()))
	}
	return fmt.Sprintf("Error{%s}", strings.Join(parts, ", "))
}

// NewError creates a new error with default values.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:      code,
		Category:  GetCategory(code),
		Message:   message,
		Context:   make(map[string]string),
		Timestamp: time.Now(),
	}
}

// Wrap creates a new error with the given cause.
func Wrap(cause error, code ErrorCode, message string) *Error {
	return NewError(code, message).WithCause(cause)
}

// GetCategory determines the category based on the error code.
func GetCategory(code ErrorCode) ErrorCategory {
	switch code {
	case ErrCodeRouteInvalid, ErrCodeNoMatch, ErrCodeHandlerStatus, ErrCodeHandlerPanic:
		return CategoryRouting
	case ErrCodeNotFound, ErrCodeBadDescriptor, ErrCodeMountFailed, ErrCodeUnmountFailed,
		ErrCodeAlreadyMounted, ErrCodeNotMounted, ErrCodePathInvalid:
		return CategoryFilesystem
	case ErrCodeInvalidConfig, ErrCodeConfigLoad, ErrCodeConfigValidation:
		return CategoryConfiguration
	case ErrCodeStorageRead:
		return CategoryStorage
	default:
		return CategoryInternal
	}
}

// WithContext adds contextual information to an error
func (e *Error) WithContext(key, value string) *Error {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// WithComponent sets the component for an error
func (e *Error) WithComponent(component string) *Error {
	e.Component = component
	return e
}

// WithOperation sets the operation for an error
func (e *Error) WithOperation(operation string) *Error {
	e.Operation = operation
	return e
}

// WithCause sets the underlying cause
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// Errno returns the negative POSIX status a kernel reply carries for this error.
func (e *Error) Errno() int {
	switch e.Code {
	case ErrCodeNotFound, ErrCodeNoMatch:
		return -int(syscall.ENOENT)
	case ErrCodeBadDescriptor:
		return -int(syscall.EBADF)
	case ErrCodePathInvalid:
		return -int(syscall.EINVAL)
	default:
		return -int(syscall.EIO)
	}
}

// HasCode reports whether err is, or wraps, an *Error with the given code.
func HasCode(err error, code ErrorCode) bool {
	var e *Error
	for err != nil {
		if !stderrors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Cause
	}
	return false
}

// StatusOf maps any error to a kernel status; nil maps to zero.
func StatusOf(err error) int {
	if err == nil {
		return 0
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Errno()
	}
	var errno syscall.Errno
	if stderrors.As(err, &errno) {
		return -int(errno)
	}
	return -int(syscall.EIO)
}
