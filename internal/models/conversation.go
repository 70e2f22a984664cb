package models

import "time"

// Conversation links exactly two users. The pair is stored normalized
// (User1ID < User2ID) so lookups are order-independent.
type Conversation struct {
	ID            int       `db:"id" json:"id"`
	User1ID       int       `db:"user1_id" json:"user1_id"`
	User2ID       int       `db:"user2_id" json:"user2_id"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	LastMessageAt time.Time `db:"last_message_at" json:"last_message_at"`
}

// Other returns the participant that is not userID.
func (c Conversation) Other(userID int) int {
	if c.User1ID == userID {
		return c.User2ID
	}
	return c.User1ID
}

// HasParticipant reports whether userID belongs to the conversation.
func (c Conversation) HasParticipant(userID int) bool {
	return c.User1ID == userID || c.User2ID == userID
}

// ConversationView is the API shape of a conversation with participants
// and messages expanded for display.
type ConversationView struct {
	ID            int       `json:"id"`
	Participants  []UserRef `json:"participants"`
	Messages      []Message `json:"messages"`
	CreatedAt     time.Time `json:"created_at"`
	LastMessageAt time.Time `json:"last_message_at"`
}
