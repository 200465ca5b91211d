package chat

import "time"

// Message is one entry in a conversation thread.
//
// Invariants:
// - Messages are append-only; they are never updated or deleted.
// - CallID is set only for call_request and call_info messages.

type Message struct {
	ID       string `json:"id" db:"id"`
	ThreadID string `json:"thread_id" db:"thread_id"`
	SenderID string `json:"sender_id" db:"sender_id"`

	Type MessageType `json:"type" db:"type"`

	// Text is the rendered display text, including the call summaries.
	Text string `json:"text" db:"text"`

	CallID  string `json:"call_id,omitempty" db:"call_id"`
	IsVideo bool   `json:"is_video,omitempty" db:"is_video"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type MessageType string

const (
	MessageTypeText        MessageType = "text"
	MessageTypeCallRequest MessageType = "call_request"
	MessageTypeCallInfo    MessageType = "call_info"
)
