// Package transport owns the physical connection to the agent backend and
// translates its lifecycle into a small callback surface. The backend pushes
// one event per inbound envelope and accepts intents as outbound envelopes;
// the wire codec behind the Socket interface is pluggable.
package transport

import (
	"context"
	"encoding/json"
	"net/url"
)

// Wire event names of the backend protocol.
const (
	InboundEvent  = "oh_event"
	OutboundEvent = "oh_action"
)

// Envelope is one named event on the wire.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Socket is one live bidirectional connection. Receive blocks until the next
// inbound envelope arrives or the connection dies; Close unblocks it.
type Socket interface {
	Emit(ctx context.Context, event string, payload interface{}) error
	Receive(ctx context.Context) (Envelope, error)
	Close() error
}

// Dialer opens Sockets. The query carries conversation routing parameters.
type Dialer interface {
	Dial(ctx context.Context, endpoint string, query url.Values) (Socket, error)
}

// Status is the adapter's own view of the connection, reported on every
// transition. Reconnecting means a retry is pending; Disconnected means no
// retry will follow.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// Callbacks is the notification surface of the Client. Nil fields are
// skipped. Callbacks are invoked from the client's own goroutines; receivers
// are expected to hand off to their own execution context.
type Callbacks struct {
	// OnConnect fires when a connection is established, first time or after
	// a reconnect.
	OnConnect func(conversationID string)

	// OnDisconnect fires when the connection is torn down and no retry will
	// follow. reason is nil for a caller-initiated disconnect.
	OnDisconnect func(reason error)

	// OnRawEvent delivers inbound event payloads in receipt order.
	OnRawEvent func(payload []byte)

	// OnError reports connection-level failures (dial, read, send).
	OnError func(err error)

	// OnStatus reports every status transition.
	OnStatus func(status Status)
}

// CursorFunc supplies the highest ingested event id; a backend that supports
// replay uses it to resend what a reconnect gap missed. Zero means "from the
// start".
type CursorFunc func() int64
