package duel

// Outbound event names on the duel socket.
const (
	EventAuthenticated      = "authenticated"
	EventDuelCreated        = "duel-created"
	EventParticipantJoined  = "participant-joined"
	EventParticipantDropped = "participant-disconnected"
	EventUserReadyChanged   = "user-ready-changed"
	EventDuelStarted        = "duel-started"
	EventCodeChanged        = "participant-code-changed"
	EventSubmissionReceived = "submission-received"
	EventDuelFinished       = "duel-finished"
	EventTypingDuelFinished = "typing-duel-finished"
	EventTypingProgress     = "participant-typing-progress"
	EventAntiCheatWarning   = "anti-cheat-warning"
	EventChatMessage        = "chat-message"
	EventError              = "error"
)

// Event is one outbound message to a participant connection.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Conn is a participant's delivery handle. It is used for delivery only;
// identity always comes from the authenticated user, so a participant can
// reconnect with a fresh Conn and keep their seat.
type Conn interface {
	Send(event Event)
}
