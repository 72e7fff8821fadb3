package event

// AgentState is the backend's report of what the agent is doing, carried by
// agent_state_changed observations.
type AgentState string

const (
	AgentStateLoading                  AgentState = "loading"
	AgentStateInit                     AgentState = "init"
	AgentStateRunning                  AgentState = "running"
	AgentStateAwaitingUserInput        AgentState = "awaiting_user_input"
	AgentStateAwaitingUserConfirmation AgentState = "awaiting_user_confirmation"
	AgentStateUserConfirmed            AgentState = "user_confirmed"
	AgentStateUserRejected             AgentState = "user_rejected"
	AgentStatePaused                   AgentState = "paused"
	AgentStateStopped                  AgentState = "stopped"
	AgentStateFinished                 AgentState = "finished"
	AgentStateError                    AgentState = "error"
	AgentStateRateLimited              AgentState = "rate_limited"
)

// Thinking reports whether the agent is working on something.
func (s AgentState) Thinking() bool {
	switch s {
	case AgentStateLoading, AgentStateInit, AgentStateRunning:
		return true
	}
	return false
}

// AwaitingConfirmation reports whether the agent is blocked on the user
// approving a pending action.
func (s AgentState) AwaitingConfirmation() bool {
	return s == AgentStateAwaitingUserConfirmation
}

// Active reports whether the agent still holds the turn. A state that is
// neither thinking nor waiting on confirmation settles all activity flags.
func (s AgentState) Active() bool {
	return s.Thinking() || s.AwaitingConfirmation()
}
