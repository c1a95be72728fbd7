package apperr

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Category classifies an error by the subsystem it came from
type Category string

const (
	CategoryNetwork        Category = "network"
	CategoryAuthentication Category = "authentication"
	CategoryValidation     Category = "validation"
	CategoryStorage        Category = "storage"
	CategorySync           Category = "sync"
	CategoryUI             Category = "ui"
	CategoryUnknown        Category = "unknown"
)

// Severity ranks how much an error degrades the application
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// ErrOffline marks an operation skipped because the remote is unreachable
var ErrOffline = errors.New("remote is offline")

// Error is a classified error
type Error struct {
	Category    Category
	Severity    Severity
	Recoverable bool
	Op          string
	Err         error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Category, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Category, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps err with a category, severity and operation name
func New(category Category, severity Severity, op string, err error) *Error {
	return &Error{
		Category:    category,
		Severity:    severity,
		Recoverable: severity < SeverityCritical,
		Op:          op,
		Err:         err,
	}
}

// Network wraps a remote connectivity failure
func Network(op string, err error) *Error {
	return New(CategoryNetwork, SeverityMedium, op, err)
}

// Sync wraps a remote write or read failure
func Sync(op string, err error) *Error {
	return New(CategorySync, SeverityMedium, op, err)
}

// Storage wraps a local durable storage failure
func Storage(op string, err error) *Error {
	return New(CategoryStorage, SeverityHigh, op, err)
}

// Validation wraps rejected input
func Validation(op string, err error) *Error {
	return New(CategoryValidation, SeverityLow, op, err)
}

// Auth wraps a session failure
func Auth(op string, err error) *Error {
	return New(CategoryAuthentication, SeverityHigh, op, err)
}

// Classify returns err as an *Error, inferring a category for plain errors
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}

	var netErr net.Error
	switch {
	case errors.Is(err, ErrOffline):
		return New(CategoryNetwork, SeverityLow, "", err)
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr):
		return New(CategoryNetwork, SeverityMedium, "", err)
	case errors.Is(err, context.Canceled):
		return New(CategoryUnknown, SeverityLow, "", err)
	default:
		return New(CategoryUnknown, SeverityHigh, "", err)
	}
}

// IsOffline reports whether err is an offline network failure
func IsOffline(err error) bool {
	return errors.Is(err, ErrOffline)
}

// UserMessage returns the text shown to the user for err
func UserMessage(err error) string {
	ae := Classify(err)
	if ae == nil {
		return ""
	}

	switch ae.Category {
	case CategoryNetwork:
		return "You appear to be offline. Changes are saved on this device."
	case CategoryAuthentication:
		return "Your session has expired. Please sign in again."
	case CategoryValidation:
		return "Some data was invalid and could not be saved."
	case CategoryStorage:
		return "Local storage is unavailable. Recent changes may not persist."
	case CategorySync:
		return "Sync failed. Changes are saved on this device and will retry."
	default:
		return "Something went wrong. Please try again."
	}
}
