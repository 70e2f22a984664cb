package models

import "time"

// MessageKind discriminates plain text bodies from image references.
type MessageKind string

const (
	KindText  MessageKind = "text"
	KindImage MessageKind = "image"
)

// Valid reports whether the kind is one of the known variants.
func (k MessageKind) Valid() bool {
	return k == KindText || k == KindImage
}

// Message represents one immutable message inside a conversation. For
// KindImage the body holds the object-storage URL of the image.
type Message struct {
	ID             int         `db:"id" json:"id"`
	ConversationID int         `db:"conversation_id" json:"conversation_id"`
	SenderID       int         `db:"sender_id" json:"sender_id"`
	ReceiverID     int         `db:"receiver_id" json:"receiver_id"`
	Body           string      `db:"body" json:"body"`
	Kind           MessageKind `db:"kind" json:"kind"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
}

// SocketEvent is the envelope written to websocket clients.
type SocketEvent struct {
	Type    string   `json:"type"`
	Message *Message `json:"message,omitempty"`
	Data    any      `json:"data,omitempty"`
}

// ClientFrame is what websocket clients send to the server.
type ClientFrame struct {
	Type           string `json:"type"`
	ConversationID int    `json:"conversation_id,omitempty"`
	Message        any    `json:"message,omitempty"`
}
