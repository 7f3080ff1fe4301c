package events

const (
	// KindTurnStarted identifies the start of a turn.
	KindTurnStarted Kind = "turn_state.started"
	// KindTurnCompleted identifies successful completion of a turn.
	KindTurnCompleted Kind = "turn_state.completed"
	// KindTurnFailed identifies a turn aborted by a collaborator failure.
	KindTurnFailed Kind = "turn_state.failed"
)

// TurnStarted marks the start of a user turn.
type TurnStarted struct {
	Base
	Prompt string `json:"prompt"`
}

// NewTurnStarted creates a turn started event.
func NewTurnStarted(prompt string) TurnStarted {
	return TurnStarted{Base: NewBase(KindTurnStarted), Prompt: prompt}
}

// TurnCompleted marks successful completion of a turn.
type TurnCompleted struct{ Base }

// NewTurnCompleted creates a turn completed event.
func NewTurnCompleted() TurnCompleted {
	return TurnCompleted{Base: NewBase(KindTurnCompleted)}
}

// TurnFailed marks a turn that ended without its final text and audio.
type TurnFailed struct {
	Base
	Reason string `json:"reason"`
}

// NewTurnFailed creates a turn failed event.
func NewTurnFailed(reason string) TurnFailed {
	return TurnFailed{Base: NewBase(KindTurnFailed), Reason: reason}
}
