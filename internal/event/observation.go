package event

// ObservationType tags what the backend reported back. Unknown tags are
// preserved as-is; the raw Extras map stays available for them.
type ObservationType string

const (
	ObservationRun               ObservationType = "run"
	ObservationRead              ObservationType = "read"
	ObservationWrite             ObservationType = "write"
	ObservationEdit              ObservationType = "edit"
	ObservationBrowse            ObservationType = "browse"
	ObservationAgentStateChanged ObservationType = "agent_state_changed"
	ObservationError             ObservationType = "error"
)

// RunResult is the concrete shape of a run observation.
type RunResult struct {
	Command  string
	ExitCode int
	Output   string
}

// FileResult is the concrete shape of a read/write/edit observation.
type FileResult struct {
	Path    string
	Content string
}

// BrowseResult is the concrete shape of a browse observation. DOM carries
// whatever structure the backend reported, undecoded.
type BrowseResult struct {
	URL  string
	HTML string
	DOM  interface{}
}

// ExitCode returns the exit code of a run observation. The backend nests it
// under extras.metadata; absence yields (0, false).
func (e *Event) ExitCode() (int, bool) {
	metadata, ok := e.Extras["metadata"].(map[string]interface{})
	if !ok {
		return 0, false
	}
	code, ok := intValue(metadata["exit_code"])
	if !ok {
		return 0, false
	}
	return int(code), true
}

// AgentState returns the state reported by an agent_state_changed
// observation. ok is false for any other event or when the state is absent.
func (e *Event) AgentState() (AgentState, bool) {
	if e.Observation != ObservationAgentStateChanged {
		return "", false
	}
	state := stringAt(e.Extras, "agent_state")
	if state == "" {
		return "", false
	}
	return AgentState(state), true
}

// ErrorID returns the identifier of an error observation, or "".
func (e *Event) ErrorID() string {
	if e.Observation != ObservationError {
		return ""
	}
	return stringAt(e.Extras, "error_id")
}

// RunResult projects a run observation into its concrete shape.
func (e *Event) RunResult() (RunResult, bool) {
	if e.Observation != ObservationRun {
		return RunResult{}, false
	}
	code, _ := e.ExitCode()
	return RunResult{
		Command:  stringAt(e.Extras, "command"),
		ExitCode: code,
		Output:   e.Content,
	}, true
}

// FileResult projects a read/write/edit observation into its concrete shape.
func (e *Event) FileResult() (FileResult, bool) {
	switch e.Observation {
	case ObservationRead, ObservationWrite, ObservationEdit:
	default:
		return FileResult{}, false
	}
	path := stringAt(e.Extras, "path")
	if path == "" {
		return FileResult{}, false
	}
	return FileResult{Path: path, Content: e.Content}, true
}

// BrowseResult projects a browse observation into its concrete shape.
func (e *Event) BrowseResult() (BrowseResult, bool) {
	if e.Observation != ObservationBrowse {
		return BrowseResult{}, false
	}
	return BrowseResult{
		URL:  stringAt(e.Extras, "url"),
		HTML: e.Content,
		DOM:  e.Extras["dom_object"],
	}, true
}
