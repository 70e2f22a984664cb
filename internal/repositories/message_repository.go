package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository defines interactions for conversation messages.
type MessageRepository interface {
	Create(ctx context.Context, conversationID, senderID, receiverID int, body string, kind models.MessageKind) (models.Message, error)
	ListByConversation(ctx context.Context, conversationID int, limit int) ([]models.Message, error)
	Get(ctx context.Context, messageID int) (models.Message, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, conversation_id, sender_id, receiver_id, body, kind, created_at`

// Create persists a message inside its conversation. The row carries the
// conversation id, so persist and link happen in one statement.
func (r *MessageRepo) Create(ctx context.Context, conversationID, senderID, receiverID int, body string, kind models.MessageKind) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO messages (conversation_id, sender_id, receiver_id, body, kind)
         VALUES ($1, $2, $3, $4, $5)
         RETURNING `+messageColumns,
		conversationID, senderID, receiverID, body, kind).StructScan(&msg)
	return msg, err
}

// ListByConversation returns the conversation's messages oldest first.
// A positive limit keeps only the most recent N, still in chronological
// order.
func (r *MessageRepo) ListByConversation(ctx context.Context, conversationID int, limit int) ([]models.Message, error) {
	var msgs []models.Message
	if limit > 0 {
		err := r.db.SelectContext(ctx, &msgs,
			`SELECT `+messageColumns+` FROM (
                SELECT `+messageColumns+` FROM messages
                WHERE conversation_id=$1
                ORDER BY created_at DESC, id DESC
                LIMIT $2
            ) recent ORDER BY created_at ASC, id ASC`, conversationID, limit)
		return msgs, err
	}
	err := r.db.SelectContext(ctx, &msgs,
		`SELECT `+messageColumns+` FROM messages
         WHERE conversation_id=$1
         ORDER BY created_at ASC, id ASC`, conversationID)
	return msgs, err
}

// Get retrieves a single message.
func (r *MessageRepo) Get(ctx context.Context, messageID int) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg,
		`SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}
