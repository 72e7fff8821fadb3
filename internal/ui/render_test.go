package ui

import (
	"testing"
	"time"

	"github.com/harunnryd/kaiwa/internal/event"
	"github.com/harunnryd/kaiwa/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventSummaryActions(t *testing.T) {
	cases := []struct {
		name string
		evt  *event.Event
		want string
	}{
		{
			name: "message",
			evt:  &event.Event{ID: 1, Action: event.ActionMessage, Args: map[string]interface{}{"content": "hello"}},
			want: "message: hello",
		},
		{
			name: "run",
			evt:  &event.Event{ID: 2, Action: event.ActionRun, Args: map[string]interface{}{"command": "ls -la"}},
			want: "run: ls -la",
		},
		{
			name: "write",
			evt:  &event.Event{ID: 3, Action: event.ActionWrite, Args: map[string]interface{}{"path": "/tmp/a.txt"}},
			want: "write: /tmp/a.txt",
		},
		{
			name: "browse",
			evt:  &event.Event{ID: 4, Action: event.ActionBrowse, Args: map[string]interface{}{"url": "https://example.com"}},
			want: "browse: https://example.com",
		},
		{
			name: "unknown action falls back to the top-level message",
			evt:  &event.Event{ID: 5, Action: event.ActionType("think"), Message: "Pondering"},
			want: "action think: Pondering",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, eventSummary(tc.evt))
		})
	}
}

func TestEventSummaryObservations(t *testing.T) {
	run := &event.Event{
		ID:          10,
		Observation: event.ObservationRun,
		Extras: map[string]interface{}{
			"command":  "make test",
			"metadata": map[string]interface{}{"exit_code": float64(2)},
		},
	}
	assert.Equal(t, `ran "make test" (exit 2)`, eventSummary(run))

	state := &event.Event{
		ID:          11,
		Observation: event.ObservationAgentStateChanged,
		Extras:      map[string]interface{}{"agent_state": "running"},
	}
	assert.Equal(t, "agent state: running", eventSummary(state))

	fail := &event.Event{
		ID:          12,
		Observation: event.ObservationError,
		Message:     "tool crashed",
	}
	assert.Equal(t, "error: tool crashed", eventSummary(fail))

	unknown := &event.Event{
		ID:          13,
		Observation: event.ObservationType("recall"),
		Message:     "memory loaded",
	}
	assert.Equal(t, "observation recall: memory loaded", eventSummary(unknown))
}

func TestFlagLabels(t *testing.T) {
	assert.Empty(t, flagLabels(session.Flags{}))
	assert.Equal(t,
		[]string{"thinking", "executing", "awaiting-confirmation"},
		flagLabels(session.Flags{Thinking: true, Executing: true, AwaitingConfirmation: true}))
	assert.Equal(t, []string{"executing"}, flagLabels(session.Flags{Executing: true}))
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", truncateString("short", 10))
	assert.Equal(t, "exactly-10", truncateString("exactly-10", 10))
	assert.Equal(t, "far too...", truncateString("far too long for ten", 10))
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "0 B", formatSize(0))
	assert.Equal(t, "512 B", formatSize(512))
	assert.Equal(t, "1.0 KiB", formatSize(1024))
	assert.Equal(t, "1.5 KiB", formatSize(1536))
	assert.Equal(t, "2.0 MiB", formatSize(2<<20))
}

func TestEmptyCollectionsRenderPlaceholders(t *testing.T) {
	r := NewRenderer()
	assert.Equal(t, "No stored sessions", r.Sessions(nil))
	assert.Equal(t, "No files tracked", r.Files(nil))
	assert.Equal(t, "No commands recorded", r.History(nil))
}

func TestHistoryIndentsOutput(t *testing.T) {
	r := NewRenderer()
	out := r.History([]session.TerminalEntry{
		{Command: "ls", ExitCode: 0, Output: "a\nb\n", Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
	})
	require.Contains(t, out, "$ ls")
	assert.Contains(t, out, "\n    a\n    b")
}
