package event

// ActionType tags what the agent or user asked to happen. Unknown tags are
// preserved as-is; the raw Args map stays available for them.
type ActionType string

const (
	ActionMessage           ActionType = "message"
	ActionRun               ActionType = "run"
	ActionRead              ActionType = "read"
	ActionWrite             ActionType = "write"
	ActionEdit              ActionType = "edit"
	ActionBrowse            ActionType = "browse"
	ActionBrowseInteractive ActionType = "browse_interactive"
)

// Thought returns the reasoning text attached to an action, or "".
func (e *Event) Thought() string {
	return stringAt(e.Args, "thought")
}

// ImageURLs returns the image attachments of a message action. Entries that
// are not strings are skipped.
func (e *Event) ImageURLs() []string {
	raw, ok := e.Args["image_urls"].([]interface{})
	if !ok {
		return nil
	}
	urls := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			urls = append(urls, s)
		}
	}
	if len(urls) == 0 {
		return nil
	}
	return urls
}

// WaitForResponse reports whether a message action expects an answer.
func (e *Event) WaitForResponse() bool {
	b, _ := e.Args["wait_for_response"].(bool)
	return b
}

// MessageContent returns the text of a message action, or "".
func (e *Event) MessageContent() string {
	return stringAt(e.Args, "content")
}

// Command returns the shell command of a run action or run observation,
// or "".
func (e *Event) Command() string {
	if e.Kind() == KindAction {
		return stringAt(e.Args, "command")
	}
	return stringAt(e.Extras, "command")
}

// Path returns the file path of a read/write/edit action or observation,
// or "".
func (e *Event) Path() string {
	if e.Kind() == KindAction {
		return stringAt(e.Args, "path")
	}
	return stringAt(e.Extras, "path")
}

// URL returns the page URL of a browse action or observation, or "".
func (e *Event) URL() string {
	if e.Kind() == KindAction {
		return stringAt(e.Args, "url")
	}
	return stringAt(e.Extras, "url")
}
