package ws

// Event is the envelope for everything published to a session group.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Event vocabulary. Server-originated events, roster changes included, are
// delivered to every member of the group so the actor's other devices stay in
// sync; only client-relayed timer alerts exclude the sender.
const (
	EventJoinedSession     = "joined_session"
	EventLeftSession       = "left_session"
	EventParticipantJoined = "participant_joined"
	EventParticipantLeft   = "participant_left"
	EventRotationStarted   = "rotation_started"
	EventRotationPaused    = "rotation_paused"
	EventRotationResumed   = "rotation_resumed"
	EventTurnChanged       = "turn_changed"
	EventTimerAlert        = "timer_alert"
	EventRotationEnded     = "rotation_ended"
	EventSessionEnded      = "session_ended"
	EventError             = "error"
)

type RotationEvent struct {
	SessionID  uint `json:"session_id"`
	RotationID uint `json:"rotation_id"`
	UserID     uint `json:"user_id,omitempty"`
	PassedTo   uint `json:"passed_to,omitempty"`
	TurnNumber int  `json:"turn_number,omitempty"`
	TimedOut   bool `json:"timed_out,omitempty"`
}

type ParticipantEvent struct {
	SessionID uint `json:"session_id"`
	UserID    uint `json:"user_id"`
}

type SessionEvent struct {
	SessionID uint `json:"session_id"`
}

type TimerAlertEvent struct {
	SessionID  uint   `json:"session_id"`
	RotationID uint   `json:"rotation_id"`
	AlertType  string `json:"alert_type,omitempty"`
}

type ErrorEvent struct {
	Message string `json:"message"`
}
