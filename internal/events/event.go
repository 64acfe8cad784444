package events

// Server-to-client event types.
const (
	MessageCreated    = "message_created"
	MessageUpdated    = "message_updated"
	MessageRemoved    = "message_removed"
	SettingsChanged   = "settings_changed"
	ModerationNotice  = "moderation_notice"
	OperationRejected = "operation_rejected"
)

// Client-to-server event types.
const (
	Join           = "join"
	Send           = "send"
	React          = "react"
	Delete         = "delete"
	UpdateSettings = "update_settings"
	ToggleMute     = "toggle_mute"
)

// Event is the wire envelope in both directions.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Removal tells receivers to drop a message from their view.
type Removal struct {
	ID    string `json:"id"`
	Scope string `json:"scope"`
}

type Notice struct {
	Text string `json:"text"`
}

type Rejection struct {
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}
