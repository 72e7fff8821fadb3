package session

import (
	"context"
	"time"

	"github.com/harunnryd/kaiwa/internal/event"
	"github.com/harunnryd/kaiwa/internal/message"
)

// ConnState is the store's view of the connection. It is driven by adapter
// callbacks, never written by readers.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// Adapter is the transport capability the store drives. The concrete client
// in internal/transport satisfies it; tests substitute a stub.
type Adapter interface {
	Connect(endpoint, conversationID string) error
	Disconnect()
	Send(ctx context.Context, action string, args map[string]interface{}) error
}

// EventSink receives every ingested event in ingest order, together with the
// raw payload it was decoded from. A failing sink is logged and skipped; it
// never interrupts ingestion.
type EventSink interface {
	Append(evt *event.Event, raw []byte) error
}

// Flags aggregates what the agent is currently doing, derived from
// agent_state_changed observations and run actions.
type Flags struct {
	Thinking             bool
	Executing            bool
	AwaitingConfirmation bool
}

// TerminalEntry is one executed command in the session's terminal history.
type TerminalEntry struct {
	Command   string
	ExitCode  int
	Output    string
	Timestamp time.Time
}

// PageSnapshot is the last reported browser state for one page, keyed by URL
// (or by event id when the backend omitted the URL).
type PageSnapshot struct {
	URL       string
	HTML      string
	DOM       interface{}
	UpdatedAt time.Time
}

// ChangeKind discriminates store change notifications.
type ChangeKind int

const (
	ChangeEvent ChangeKind = iota + 1
	ChangeMessage
	ChangeState
	ChangeFlags
	ChangeError
)

// Change is one notification on a subscriber channel. Only the field matching
// Kind is meaningful; Err is "" when a previously recorded error was cleared.
type Change struct {
	Kind    ChangeKind
	Event   *event.Event
	Message *message.Message
	State   ConnState
	Flags   Flags
	Err     string
}

// Snapshot is a consistent copy of everything the presentation layer reads.
// Events are ordered newest first; Messages and Terminal oldest first.
type Snapshot struct {
	ConversationID string
	State          ConnState
	Connected      bool
	Error          string
	Flags          Flags

	LastEventID int64
	EventCount  int
	Events      []*event.Event
	Messages    []message.Message
	Files       map[string]string
	Terminal    []TerminalEntry
	Pages       map[string]PageSnapshot
}
