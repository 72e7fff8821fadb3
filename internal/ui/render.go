// Package ui renders timeline entries, session state and stored transcripts
// for the terminal.
package ui

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/harunnryd/kaiwa/internal/event"
	"github.com/harunnryd/kaiwa/internal/message"
	"github.com/harunnryd/kaiwa/internal/session"
	"github.com/harunnryd/kaiwa/internal/transcript"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
)

type Renderer struct {
	userStyle    lipgloss.Style
	agentStyle   lipgloss.Style
	systemStyle  lipgloss.Style
	errorStyle   lipgloss.Style
	thoughtStyle lipgloss.Style
	dimStyle     lipgloss.Style
	headerStyle  lipgloss.Style
	oddRowStyle  lipgloss.Style
	evenRowStyle lipgloss.Style
	borderStyle  lipgloss.Style
	stateStyles  map[session.ConnState]lipgloss.Style
}

func NewRenderer() *Renderer {
	purple := lipgloss.Color("99")
	gray := lipgloss.Color("245")
	lightGray := lipgloss.Color("241")
	cyan := lipgloss.Color("39")
	green := lipgloss.Color("42")
	yellow := lipgloss.Color("214")
	red := lipgloss.Color("196")

	return &Renderer{
		userStyle:    lipgloss.NewStyle().Foreground(cyan).Bold(true),
		agentStyle:   lipgloss.NewStyle().Foreground(purple).Bold(true),
		systemStyle:  lipgloss.NewStyle().Foreground(gray),
		errorStyle:   lipgloss.NewStyle().Foreground(red),
		thoughtStyle: lipgloss.NewStyle().Foreground(lightGray).Italic(true),
		dimStyle:     lipgloss.NewStyle().Foreground(lightGray),
		headerStyle: lipgloss.NewStyle().
			Foreground(purple).
			Bold(true).
			Align(lipgloss.Center).
			Padding(0, 1),
		oddRowStyle: lipgloss.NewStyle().
			Foreground(gray).
			Padding(0, 1),
		evenRowStyle: lipgloss.NewStyle().
			Foreground(lightGray).
			Padding(0, 1),
		borderStyle: lipgloss.NewStyle().Foreground(purple),
		stateStyles: map[session.ConnState]lipgloss.Style{
			session.StateDisconnected: lipgloss.NewStyle().Foreground(gray),
			session.StateConnecting:   lipgloss.NewStyle().Foreground(yellow),
			session.StateConnected:    lipgloss.NewStyle().Foreground(green),
			session.StateReconnecting: lipgloss.NewStyle().Foreground(yellow),
		},
	}
}

// Message renders one timeline entry with its timestamp and sender label.
func (r *Renderer) Message(msg message.Message) string {
	stamp := r.dimStyle.Render(msg.Timestamp.Format("15:04:05"))
	label := r.senderStyle(msg).Render(string(msg.Sender))
	text := msg.Text
	if msg.IsError() {
		text = r.errorStyle.Render(text)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s", stamp, label, text)
	if msg.Thought != "" {
		b.WriteString("\n    ")
		b.WriteString(r.thoughtStyle.Render("thought: " + msg.Thought))
	}
	for _, url := range msg.ImageURLs {
		b.WriteString("\n    ")
		b.WriteString(r.dimStyle.Render("image: " + url))
	}
	return b.String()
}

func (r *Renderer) senderStyle(msg message.Message) lipgloss.Style {
	switch {
	case msg.IsFromUser():
		return r.userStyle
	case msg.IsFromAgent():
		return r.agentStyle
	default:
		return r.systemStyle
	}
}

// Status renders a one-line summary of the session snapshot.
func (r *Renderer) Status(snap session.Snapshot) string {
	state, ok := r.stateStyles[snap.State]
	if !ok {
		state = r.dimStyle
	}

	parts := []string{
		"conversation " + snap.ConversationID,
		"state " + state.Render(snap.State.String()),
		fmt.Sprintf("events %d", snap.EventCount),
	}
	if flags := flagLabels(snap.Flags); len(flags) > 0 {
		parts = append(parts, strings.Join(flags, "+"))
	}
	if snap.Error != "" {
		parts = append(parts, r.errorStyle.Render("error: "+snap.Error))
	}
	return strings.Join(parts, " | ")
}

func flagLabels(f session.Flags) []string {
	var labels []string
	if f.Thinking {
		labels = append(labels, "thinking")
	}
	if f.Executing {
		labels = append(labels, "executing")
	}
	if f.AwaitingConfirmation {
		labels = append(labels, "awaiting-confirmation")
	}
	return labels
}

// StateLine renders a connection-state transition notice.
func (r *Renderer) StateLine(state session.ConnState) string {
	style, ok := r.stateStyles[state]
	if !ok {
		style = r.dimStyle
	}
	return r.dimStyle.Render("state: ") + style.Render(state.String())
}

// FlagsLine renders the agent activity flags, "idle" when none are set.
func (r *Renderer) FlagsLine(f session.Flags) string {
	labels := flagLabels(f)
	if len(labels) == 0 {
		return r.dimStyle.Render("agent: idle")
	}
	return r.dimStyle.Render("agent: " + strings.Join(labels, ", "))
}

// ErrorLine renders a session error notice.
func (r *Renderer) ErrorLine(detail string) string {
	return r.errorStyle.Render("error: " + detail)
}

// Event renders one stored event for transcript replay.
func (r *Renderer) Event(evt *event.Event) string {
	stamp := r.dimStyle.Render(evt.Timestamp.Format("2006-01-02 15:04:05"))
	id := r.dimStyle.Render(fmt.Sprintf("#%-4d", evt.ID))
	label := r.agentStyle
	if evt.Source == event.SourceUser {
		label = r.userStyle
	}
	return fmt.Sprintf("%s %s %s %s", stamp, id, label.Render(string(evt.Source)), eventSummary(evt))
}

func eventSummary(evt *event.Event) string {
	if evt.Kind() == event.KindAction {
		switch evt.Action {
		case event.ActionMessage:
			return "message: " + truncateString(evt.MessageContent(), 100)
		case event.ActionRun:
			return "run: " + truncateString(evt.Command(), 100)
		case event.ActionRead, event.ActionWrite, event.ActionEdit:
			return string(evt.Action) + ": " + evt.Path()
		case event.ActionBrowse:
			return "browse: " + evt.URL()
		case event.ActionBrowseInteractive:
			return "browse: interactive script"
		default:
			return "action " + string(evt.Action) + ": " + truncateString(evt.Message, 100)
		}
	}

	switch evt.Observation {
	case event.ObservationRun:
		if rr, ok := evt.RunResult(); ok {
			return fmt.Sprintf("ran %q (exit %d)", truncateString(rr.Command, 60), rr.ExitCode)
		}
	case event.ObservationRead, event.ObservationWrite, event.ObservationEdit:
		if fr, ok := evt.FileResult(); ok {
			return string(evt.Observation) + ": " + fr.Path
		}
	case event.ObservationBrowse:
		if br, ok := evt.BrowseResult(); ok {
			return "browsed " + br.URL
		}
	case event.ObservationAgentStateChanged:
		if st, ok := evt.AgentState(); ok {
			return "agent state: " + string(st)
		}
	case event.ObservationError:
		detail := evt.Content
		if detail == "" {
			detail = evt.Message
		}
		return "error: " + truncateString(detail, 100)
	}
	return "observation " + string(evt.Observation) + ": " + truncateString(evt.Message, 100)
}

// Sessions renders the stored transcript listing as a table.
func (r *Renderer) Sessions(infos []transcript.Info) string {
	if len(infos) == 0 {
		return "No stored sessions"
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(r.borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return r.headerStyle
			case row%2 == 0:
				return r.evenRowStyle
			default:
				return r.oddRowStyle
			}
		}).
		Headers("Conversation", "Events", "Size", "Updated")

	for _, info := range infos {
		t.Row(
			truncateString(info.ConversationID, 36),
			strconv.Itoa(info.Events),
			formatSize(info.SizeBytes),
			info.UpdatedAt.Format("2006-01-02 15:04:05"),
		)
	}
	return t.String()
}

// Files renders the tracked file cache as a table, sorted by path.
func (r *Renderer) Files(files map[string]string) string {
	if len(files) == 0 {
		return "No files tracked"
	}

	paths := make([]string, 0, len(files))
	for path := range files {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(r.borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return r.headerStyle
			case row%2 == 0:
				return r.evenRowStyle
			default:
				return r.oddRowStyle
			}
		}).
		Headers("Path", "Size")

	for _, path := range paths {
		t.Row(truncateString(path, 60), formatSize(int64(len(files[path]))))
	}
	return t.String()
}

// History renders the terminal history, oldest first.
func (r *Renderer) History(entries []session.TerminalEntry) string {
	if len(entries) == 0 {
		return "No commands recorded"
	}

	var b strings.Builder
	for i, entry := range entries {
		if i > 0 {
			b.WriteString("\n")
		}
		stamp := r.dimStyle.Render(entry.Timestamp.Format("15:04:05"))
		exit := fmt.Sprintf("(exit %d)", entry.ExitCode)
		if entry.ExitCode != 0 {
			exit = r.errorStyle.Render(exit)
		}
		fmt.Fprintf(&b, "%s $ %s %s", stamp, entry.Command, exit)
		output := strings.TrimRight(entry.Output, "\n")
		if output != "" {
			for _, line := range strings.Split(output, "\n") {
				b.WriteString("\n    ")
				b.WriteString(line)
			}
		}
	}
	return b.String()
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func formatSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
