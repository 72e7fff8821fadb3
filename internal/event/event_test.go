package event

import (
	"testing"
	"time"

	"github.com/harunnryd/kaiwa/internal/errors"
)

func TestParse_MessageAction(t *testing.T) {
	raw := []byte(`{
		"id": 1,
		"timestamp": "2024-01-01T00:00:00Z",
		"source": "agent",
		"message": "starting",
		"action": "message",
		"args": {"content": "hi", "wait_for_response": true, "image_urls": ["https://x/img.png"]}
	}`)

	evt, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if evt.ID != 1 {
		t.Errorf("id = %d, want 1", evt.ID)
	}
	if evt.Kind() != KindAction {
		t.Errorf("kind = %v, want action", evt.Kind())
	}
	if evt.Action != ActionMessage {
		t.Errorf("action = %q, want message", evt.Action)
	}
	if evt.Source != SourceAgent {
		t.Errorf("source = %q, want agent", evt.Source)
	}
	if evt.MessageContent() != "hi" {
		t.Errorf("content = %q, want hi", evt.MessageContent())
	}
	if !evt.WaitForResponse() {
		t.Error("wait_for_response should be true")
	}
	if urls := evt.ImageURLs(); len(urls) != 1 || urls[0] != "https://x/img.png" {
		t.Errorf("image urls = %v", urls)
	}
	want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if !evt.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", evt.Timestamp, want)
	}
}

func TestParse_RunObservation(t *testing.T) {
	raw := []byte(`{
		"id": 2,
		"timestamp": "2024-01-01T00:00:01Z",
		"source": "agent",
		"message": "ran ls",
		"observation": "run",
		"content": "file.txt",
		"extras": {"command": "ls", "metadata": {"exit_code": 0}}
	}`)

	evt, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if evt.Kind() != KindObservation {
		t.Fatalf("kind = %v, want observation", evt.Kind())
	}
	if evt.Command() != "ls" {
		t.Errorf("command = %q, want ls", evt.Command())
	}
	code, ok := evt.ExitCode()
	if !ok || code != 0 {
		t.Errorf("exit code = %d ok=%v, want 0 true", code, ok)
	}

	run, ok := evt.RunResult()
	if !ok {
		t.Fatal("expected run result projection")
	}
	if run.Command != "ls" || run.ExitCode != 0 || run.Output != "file.txt" {
		t.Errorf("run result = %+v", run)
	}
}

func TestParse_RejectsMissingRequiredFields(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"missing id", `{"timestamp":"2024-01-01T00:00:00Z","source":"agent","message":"m","action":"message"}`},
		{"missing timestamp", `{"id":1,"source":"agent","message":"m","action":"message"}`},
		{"missing source", `{"id":1,"timestamp":"2024-01-01T00:00:00Z","message":"m","action":"message"}`},
		{"missing message", `{"id":1,"timestamp":"2024-01-01T00:00:00Z","source":"agent","action":"message"}`},
		{"id wrong type", `{"id":"1","timestamp":"2024-01-01T00:00:00Z","source":"agent","message":"m","action":"message"}`},
		{"id not integral", `{"id":1.5,"timestamp":"2024-01-01T00:00:00Z","source":"agent","message":"m","action":"message"}`},
		{"timestamp wrong type", `{"id":1,"timestamp":42,"source":"agent","message":"m","action":"message"}`},
		{"timestamp unparseable", `{"id":1,"timestamp":"yesterday","source":"agent","message":"m","action":"message"}`},
		{"empty source", `{"id":1,"timestamp":"2024-01-01T00:00:00Z","source":"","message":"m","action":"message"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse([]byte(tc.raw)); !errors.IsCategory(err, errors.ErrDecode) {
				t.Fatalf("expected decode error, got %v", err)
			}
		})
	}
}

func TestParse_ActionObservationExclusive(t *testing.T) {
	both := `{"id":1,"timestamp":"2024-01-01T00:00:00Z","source":"agent","message":"m","action":"run","observation":"run"}`
	if _, err := Parse([]byte(both)); !errors.IsCategory(err, errors.ErrDecode) {
		t.Fatalf("payload with both shapes must be rejected, got %v", err)
	}

	neither := `{"id":1,"timestamp":"2024-01-01T00:00:00Z","source":"agent","message":"m"}`
	if _, err := Parse([]byte(neither)); !errors.IsCategory(err, errors.ErrDecode) {
		t.Fatalf("payload with neither shape must be rejected, got %v", err)
	}
}

func TestParse_NotJSON(t *testing.T) {
	if _, err := Parse([]byte("not json")); !errors.IsCategory(err, errors.ErrDecode) {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestParse_ZonelessTimestamp(t *testing.T) {
	raw := []byte(`{"id":3,"timestamp":"2024-05-06T07:08:09.123456","source":"agent","message":"m","action":"message","args":{}}`)

	evt, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := time.Date(2024, 5, 6, 7, 8, 9, 123456000, time.UTC)
	if !evt.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", evt.Timestamp, want)
	}
}

func TestParse_Cause(t *testing.T) {
	raw := []byte(`{"id":4,"cause":2,"timestamp":"2024-01-01T00:00:00Z","source":"agent","message":"m","observation":"run","extras":{}}`)

	evt, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if evt.Cause == nil || *evt.Cause != 2 {
		t.Fatalf("cause = %v, want 2", evt.Cause)
	}
}

func TestDerivedAccessors_AbsentFields(t *testing.T) {
	raw := []byte(`{"id":5,"timestamp":"2024-01-01T00:00:00Z","source":"agent","message":"m","observation":"run","extras":{}}`)

	evt, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	// Absent derived fields yield zero values, never an error.
	if evt.Command() != "" {
		t.Errorf("command = %q, want empty", evt.Command())
	}
	if _, ok := evt.ExitCode(); ok {
		t.Error("exit code should be absent")
	}
	if evt.Thought() != "" || evt.WaitForResponse() || evt.ImageURLs() != nil {
		t.Error("action accessors should be absent on an observation")
	}
	if _, ok := evt.AgentState(); ok {
		t.Error("agent state should be absent on a run observation")
	}
	if evt.ErrorID() != "" {
		t.Error("error id should be absent on a run observation")
	}
}

func TestAgentStateObservation(t *testing.T) {
	raw := []byte(`{"id":6,"timestamp":"2024-01-01T00:00:00Z","source":"agent","message":"state","observation":"agent_state_changed","extras":{"agent_state":"running"}}`)

	evt, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	state, ok := evt.AgentState()
	if !ok || state != AgentStateRunning {
		t.Fatalf("state = %q ok=%v, want running", state, ok)
	}
	if !state.Thinking() {
		t.Error("running should be thinking")
	}
	if state.AwaitingConfirmation() {
		t.Error("running is not awaiting confirmation")
	}
}

func TestFileAndBrowseProjections(t *testing.T) {
	fileRaw := []byte(`{"id":7,"timestamp":"2024-01-01T00:00:00Z","source":"agent","message":"wrote","observation":"write","content":"body","extras":{"path":"/a.txt"}}`)
	evt, err := Parse(fileRaw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	file, ok := evt.FileResult()
	if !ok || file.Path != "/a.txt" || file.Content != "body" {
		t.Fatalf("file result = %+v ok=%v", file, ok)
	}

	browseRaw := []byte(`{"id":8,"timestamp":"2024-01-01T00:00:00Z","source":"agent","message":"browsed","observation":"browse","content":"<html/>","extras":{"url":"https://example.com","dom_object":{"tag":"html"}}}`)
	evt, err = Parse(browseRaw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	browse, ok := evt.BrowseResult()
	if !ok || browse.URL != "https://example.com" || browse.HTML != "<html/>" {
		t.Fatalf("browse result = %+v ok=%v", browse, ok)
	}
	if browse.DOM == nil {
		t.Error("dom object should be preserved")
	}
}

func TestUnknownTagsPreserved(t *testing.T) {
	raw := []byte(`{"id":9,"timestamp":"2024-01-01T00:00:00Z","source":"user","message":"m","action":"think","args":{"depth":3}}`)

	evt, err := Parse(raw)
	if err != nil {
		t.Fatalf("unknown action tag must decode: %v", err)
	}
	if evt.Action != ActionType("think") {
		t.Errorf("action = %q", evt.Action)
	}
	if _, ok := evt.Args["depth"]; !ok {
		t.Error("raw args must be preserved for unknown tags")
	}
}

func TestErrorObservation(t *testing.T) {
	raw := []byte(`{"id":10,"timestamp":"2024-01-01T00:00:00Z","source":"agent","message":"boom","observation":"error","content":"agent crashed","extras":{"error_id":"AGENT_DIED"}}`)

	evt, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if evt.ErrorID() != "AGENT_DIED" {
		t.Errorf("error id = %q", evt.ErrorID())
	}
}
