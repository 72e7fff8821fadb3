// Package event models a single occurrence reported by the agent backend:
// either an action (something the agent or user asked to happen) or an
// observation (the backend's report of an outcome or of unsolicited state).
// Decoding is strict about the envelope and lenient about the payload maps;
// derived accessors never fail, they yield absent values.
package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/harunnryd/kaiwa/internal/errors"
)

// Source identifies who originated an event. The backend may introduce new
// sources; only missing or non-string values are rejected at decode time.
type Source string

const (
	SourceAgent Source = "agent"
	SourceUser  Source = "user"
)

// Kind discriminates the two payload shapes an Event can carry.
type Kind int

const (
	KindAction Kind = iota + 1
	KindObservation
)

// Event is an immutable record of one server-reported occurrence. ID is the
// dedup and ordering key, unique within a session. Exactly one of Action or
// Observation is set.
type Event struct {
	ID        int64
	Timestamp time.Time
	Source    Source
	Message   string
	Cause     *int64

	Action ActionType
	Args   map[string]interface{}

	Observation ObservationType
	Content     string
	Extras      map[string]interface{}
}

// Kind reports whether the event carries an action or an observation payload.
func (e *Event) Kind() Kind {
	if e.Action != "" {
		return KindAction
	}
	return KindObservation
}

// Parse decodes one raw inbound payload. It rejects payloads missing any of
// id, timestamp, source, or message, payloads whose timestamp is not
// ISO-8601, and payloads carrying both or neither of action/observation.
// Optional fields absent from the payload are simply not present.
func Parse(raw []byte) (*Event, error) {
	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, errors.Decode("payload is not a JSON object: " + err.Error())
	}
	return FromMap(payload)
}

// FromMap decodes an already-unmarshaled payload map.
func FromMap(payload map[string]interface{}) (*Event, error) {
	if payload == nil {
		return nil, errors.Decode("payload is nil")
	}

	id, ok := intValue(payload["id"])
	if !ok {
		return nil, errors.Decode(`missing required field "id"`)
	}

	rawTimestamp, ok := payload["timestamp"].(string)
	if !ok {
		return nil, errors.Decode(`missing required field "timestamp"`)
	}
	timestamp, err := parseTimestamp(rawTimestamp)
	if err != nil {
		return nil, errors.Decode(fmt.Sprintf("invalid timestamp %q", rawTimestamp))
	}

	source, ok := payload["source"].(string)
	if !ok || source == "" {
		return nil, errors.Decode(`missing required field "source"`)
	}

	message, ok := payload["message"].(string)
	if !ok {
		return nil, errors.Decode(`missing required field "message"`)
	}

	action, hasAction := payload["action"].(string)
	observation, hasObservation := payload["observation"].(string)
	if hasAction && hasObservation {
		return nil, errors.Decode("payload carries both action and observation")
	}
	if !hasAction && !hasObservation {
		return nil, errors.Decode("payload carries neither action nor observation")
	}

	evt := &Event{
		ID:        id,
		Timestamp: timestamp,
		Source:    Source(source),
		Message:   message,
	}

	if cause, ok := intValue(payload["cause"]); ok {
		evt.Cause = &cause
	}

	if hasAction {
		evt.Action = ActionType(action)
		evt.Args = mapValue(payload["args"])
	} else {
		evt.Observation = ObservationType(observation)
		evt.Extras = mapValue(payload["extras"])
		if content, ok := payload["content"].(string); ok {
			evt.Content = content
		}
	}

	return evt, nil
}

// parseTimestamp accepts RFC 3339 and the zone-less ISO-8601 form some
// backends emit; the latter is read as UTC.
func parseTimestamp(value string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	return time.ParseInLocation("2006-01-02T15:04:05.999999999", value, time.UTC)
}

// intValue converts a decoded JSON value into an int64 when it holds an
// integral number.
func intValue(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case float64:
		i := int64(n)
		if float64(i) != n {
			return 0, false
		}
		return i, true
	case int:
		return int64(n), true
	case int64:
		return n, true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

func mapValue(v interface{}) map[string]interface{} {
	m, ok := v.(map[string]interface{})
	if !ok {
		return map[string]interface{}{}
	}
	return m
}

// stringAt reads a string key from a payload map, tolerating absence.
func stringAt(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}
