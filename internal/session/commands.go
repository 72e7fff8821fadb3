package session

import (
	"context"
	"strings"

	"github.com/harunnryd/kaiwa/internal/errors"
	"github.com/harunnryd/kaiwa/internal/event"
	"github.com/harunnryd/kaiwa/internal/message"
)

// handleGate runs on the loop: intents go out only while Connected, and a
// message send registers its optimistic echo in the same step so ingestion
// can never slip between the two.
func (s *Store) handleGate(p gatePayload) error {
	if s.state != StateConnected {
		return errors.NotConnected("session is " + s.state.String())
	}
	if p.echo != nil {
		s.pending = append(s.pending, pendingEcho{text: p.echo.Text, sentAt: s.now()})
		s.appendMessage(*p.echo)
	}
	return nil
}

// send gates, serializes and forwards one intent. Validation failures and
// not-connected rejections never reach the adapter.
func (s *Store) send(action event.ActionType, args map[string]interface{}, echo *message.Message) error {
	if err := s.do(request{op: opGate, payload: gatePayload{echo: echo}}); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.sendTimeout)
	defer cancel()
	return s.adapter.Send(ctx, string(action), args)
}

// SendMessage forwards a user chat message and echoes it into the local
// timeline immediately. Empty content is rejected without wire traffic.
func (s *Store) SendMessage(content string, imageURLs ...string) error {
	if strings.TrimSpace(content) == "" {
		return errors.InvalidInput("message content is empty")
	}
	args := map[string]interface{}{"content": content}
	if len(imageURLs) > 0 {
		args["image_urls"] = imageURLs
	}
	echo := message.New(message.SenderUser, content)
	echo.ImageURLs = imageURLs
	return s.send(event.ActionMessage, args, &echo)
}

// ExecOption tunes ExecuteCommand.
type ExecOption func(*execOptions)

type execOptions struct {
	securityRisk      bool
	confirmationState string
	thought           string
}

// WithSecurityRisk flags the command for elevated scrutiny backend-side.
func WithSecurityRisk() ExecOption {
	return func(o *execOptions) { o.securityRisk = true }
}

// WithConfirmationState forwards the user's decision on a command the agent
// proposed and is waiting to run.
func WithConfirmationState(state string) ExecOption {
	return func(o *execOptions) { o.confirmationState = state }
}

// WithThought attaches the reasoning that led to the command.
func WithThought(thought string) ExecOption {
	return func(o *execOptions) { o.thought = thought }
}

// ExecuteCommand asks the backend to run a shell command.
func (s *Store) ExecuteCommand(command string, opts ...ExecOption) error {
	if strings.TrimSpace(command) == "" {
		return errors.InvalidInput("command is empty")
	}
	o := execOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	args := map[string]interface{}{
		"command":       command,
		"security_risk": o.securityRisk,
	}
	if o.confirmationState != "" {
		args["confirmation_state"] = o.confirmationState
	}
	if o.thought != "" {
		args["thought"] = o.thought
	}
	return s.send(event.ActionRun, args, nil)
}

// ReadFile asks the backend for the contents at path; the result arrives
// later as a read observation and lands in the file cache.
func (s *Store) ReadFile(path string) error {
	if strings.TrimSpace(path) == "" {
		return errors.InvalidInput("path is empty")
	}
	return s.send(event.ActionRead, map[string]interface{}{"path": path}, nil)
}

// WriteFile asks the backend to replace the contents at path.
func (s *Store) WriteFile(path, content string) error {
	if strings.TrimSpace(path) == "" {
		return errors.InvalidInput("path is empty")
	}
	if content == "" {
		return errors.InvalidInput("content is empty")
	}
	return s.send(event.ActionWrite, map[string]interface{}{
		"path":    path,
		"content": content,
	}, nil)
}

// EditFile asks the backend to substitute oldContent with newContent at path.
func (s *Store) EditFile(path, oldContent, newContent string) error {
	if strings.TrimSpace(path) == "" {
		return errors.InvalidInput("path is empty")
	}
	if oldContent == "" {
		return errors.InvalidInput("old content is empty")
	}
	if newContent == "" {
		return errors.InvalidInput("new content is empty")
	}
	return s.send(event.ActionEdit, map[string]interface{}{
		"path":        path,
		"old_content": oldContent,
		"new_content": newContent,
	}, nil)
}

// BrowseURL asks the backend's browser to open url.
func (s *Store) BrowseURL(url string) error {
	if strings.TrimSpace(url) == "" {
		return errors.InvalidInput("url is empty")
	}
	return s.send(event.ActionBrowse, map[string]interface{}{"url": url}, nil)
}

// BrowseInteractive drives the backend's browser with a script of page
// interactions.
func (s *Store) BrowseInteractive(code string) error {
	if strings.TrimSpace(code) == "" {
		return errors.InvalidInput("code is empty")
	}
	return s.send(event.ActionBrowseInteractive, map[string]interface{}{"code": code}, nil)
}
