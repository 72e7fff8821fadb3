// Package message models one chat-timeline entry: a relayed event worth
// showing, or input the local user just submitted.
package message

import (
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Sender identifies who a timeline entry speaks for.
type Sender string

const (
	SenderAgent  Sender = "agent"
	SenderUser   Sender = "user"
	SenderSystem Sender = "system"
)

// ErrorMarker prefixes the text of system entries that report a failure.
const ErrorMarker = "[error] "

// Message is one timeline entry. ID is process-local (not wire-stable) and
// entries are never mutated after they are published.
type Message struct {
	ID        string
	Text      string
	Sender    Sender
	Timestamp time.Time
	ImageURLs []string
	Thought   string
}

// New creates a timeline entry stamped with a fresh ULID.
func New(sender Sender, text string) Message {
	return Message{
		ID:        ulid.Make().String(),
		Text:      text,
		Sender:    sender,
		Timestamp: time.Now(),
	}
}

// NewError creates the system entry for a failure report. The marker prefix
// is what IsError keys on.
func NewError(text string) Message {
	return New(SenderSystem, ErrorMarker+text)
}

// IsError reports whether the entry is a system-authored failure report.
func (m Message) IsError() bool {
	return m.Sender == SenderSystem && strings.HasPrefix(m.Text, ErrorMarker)
}

func (m Message) IsFromAgent() bool {
	return m.Sender == SenderAgent
}

func (m Message) IsFromUser() bool {
	return m.Sender == SenderUser
}

func (m Message) IsFromSystem() bool {
	return m.Sender == SenderSystem
}
