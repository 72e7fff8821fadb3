package errors

import (
	"errors"
)

// Sentinel errors for different categories
var (
	// ErrDecode - malformed inbound payload (drop it, record it, never crash ingestion)
	ErrDecode = errors.New("decode error")

	// ErrDuplicateEvent - event id already ingested (ignore silently)
	ErrDuplicateEvent = errors.New("duplicate event")

	// ErrInvalidInput - invalid or empty argument (no-op at the call site, nothing hits the wire)
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotConnected - outbound intent while the session is not connected (no-op, nothing hits the wire)
	ErrNotConnected = errors.New("not connected")

	// ErrTransient - retryable connection-level failure (feeds the reconnect loop)
	ErrTransient = errors.New("transient error")

	// ErrConnectionClosed - the underlying channel is gone (send rejected, surfaced to the session error)
	ErrConnectionClosed = errors.New("connection closed")

	// ErrNotFound - resource not found (unknown conversation, missing transcript)
	ErrNotFound = errors.New("not found")

	// ErrInternal - internal error (generic message, keep the session alive)
	ErrInternal = errors.New("internal error")
)
