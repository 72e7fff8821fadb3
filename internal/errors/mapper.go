package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Classify maps a raw socket or filesystem error into the taxonomy.
// The reconnect loop and the session error field only ever see
// classified errors.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	// Propagate context errors as-is
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("timed out: %w", ErrTransient)
	}

	// Already classified
	switch {
	case errors.Is(err, ErrDecode),
		errors.Is(err, ErrDuplicateEvent),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrNotConnected),
		errors.Is(err, ErrTransient),
		errors.Is(err, ErrConnectionClosed),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrInternal):
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%v: %w", err, ErrTransient)
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "connection refused"),
		strings.Contains(errStr, "connection reset"),
		strings.Contains(errStr, "broken pipe"),
		strings.Contains(errStr, "unreachable"),
		strings.Contains(errStr, "timeout"),
		strings.Contains(errStr, "temporary"):
		return fmt.Errorf("%v: %w", err, ErrTransient)

	case strings.Contains(errStr, "use of closed network connection"),
		strings.Contains(errStr, "websocket: close"),
		strings.Contains(errStr, "eof"):
		return fmt.Errorf("%v: %w", err, ErrConnectionClosed)

	case strings.Contains(errStr, "not found"),
		strings.Contains(errStr, "does not exist"):
		return fmt.Errorf("%v: %w", err, ErrNotFound)

	default:
		return fmt.Errorf("%v: %w", err, ErrInternal)
	}
}

// IsRetryable reports whether the reconnect loop should keep going after err.
// A closed connection is retryable: the peer may simply have restarted.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrConnectionClosed)
}

// Category returns the taxonomy name for an error, for logs and snapshots.
func Category(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDecode):
		return "ErrDecode"
	case errors.Is(err, ErrDuplicateEvent):
		return "ErrDuplicateEvent"
	case errors.Is(err, ErrInvalidInput):
		return "ErrInvalidInput"
	case errors.Is(err, ErrNotConnected):
		return "ErrNotConnected"
	case errors.Is(err, ErrTransient):
		return "ErrTransient"
	case errors.Is(err, ErrConnectionClosed):
		return "ErrConnectionClosed"
	case errors.Is(err, ErrNotFound):
		return "ErrNotFound"
	case errors.Is(err, ErrInternal):
		return "ErrInternal"
	default:
		return "Unknown"
	}
}

// Wrap wraps an error with context, preserving its category.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// IsCategory checks if error belongs to a specific category
func IsCategory(err error, category error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, category)
}

// Decode wraps a message as a decode error
func Decode(message string) error {
	return fmt.Errorf("%s: %w", message, ErrDecode)
}

// InvalidInput wraps a message as invalid input
func InvalidInput(message string) error {
	return fmt.Errorf("%s: %w", message, ErrInvalidInput)
}

// NotConnected wraps a message as a not-connected rejection
func NotConnected(message string) error {
	return fmt.Errorf("%s: %w", message, ErrNotConnected)
}

// Transient wraps a message as transient
func Transient(message string) error {
	return fmt.Errorf("%s: %w", message, ErrTransient)
}

// NotFound wraps a message as not found
func NotFound(message string) error {
	return fmt.Errorf("%s: %w", message, ErrNotFound)
}

// Internal wraps a message as internal
func Internal(message string) error {
	return fmt.Errorf("%s: %w", message, ErrInternal)
}
