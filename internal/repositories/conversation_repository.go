package repositories

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

var ErrConversationNotFound = errors.New("conversation not found")

// ConversationRepository abstracts conversation persistence.
type ConversationRepository interface {
	Find(ctx context.Context, userA, userB int) (models.Conversation, error)
	FindOrCreate(ctx context.Context, userA, userB int) (models.Conversation, error)
	Get(ctx context.Context, conversationID int) (models.Conversation, error)
	ListByParticipant(ctx context.Context, userID int) ([]models.Conversation, error)
	Touch(ctx context.Context, conversationID int, at time.Time) error
}

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

const conversationColumns = `id, user1_id, user2_id, created_at, last_message_at`

func normalizePair(userA, userB int) (int, int) {
	pair := []int{userA, userB}
	sort.Ints(pair)
	return pair[0], pair[1]
}

// Find returns the conversation for the unordered pair, or
// ErrConversationNotFound.
func (r *ConversationRepo) Find(ctx context.Context, userA, userB int) (models.Conversation, error) {
	user1, user2 := normalizePair(userA, userB)

	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv,
		`SELECT `+conversationColumns+` FROM conversations WHERE user1_id=$1 AND user2_id=$2`, user1, user2)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	return conv, err
}

// FindOrCreate returns the pair's conversation, creating it when absent.
// The UNIQUE(user1_id, user2_id) constraint plus ON CONFLICT DO NOTHING
// keeps concurrent creators from producing a second conversation; the
// loser of the race re-reads the winner's row.
func (r *ConversationRepo) FindOrCreate(ctx context.Context, userA, userB int) (models.Conversation, error) {
	if userA == userB {
		return models.Conversation{}, errors.New("cannot create conversation with self")
	}
	user1, user2 := normalizePair(userA, userB)

	conv, err := r.Find(ctx, userA, userB)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, ErrConversationNotFound) {
		return models.Conversation{}, err
	}

	err = r.db.QueryRowxContext(ctx,
		`INSERT INTO conversations (user1_id, user2_id) VALUES ($1, $2)
         ON CONFLICT (user1_id, user2_id) DO NOTHING
         RETURNING `+conversationColumns, user1, user2).StructScan(&conv)
	if errors.Is(err, sql.ErrNoRows) {
		// Lost the race: another request inserted the row first.
		return r.Find(ctx, userA, userB)
	}
	return conv, err
}

// Get fetches a conversation by id.
func (r *ConversationRepo) Get(ctx context.Context, conversationID int) (models.Conversation, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv,
		`SELECT `+conversationColumns+` FROM conversations WHERE id=$1`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	return conv, err
}

// ListByParticipant returns the user's conversations, most recent
// activity first.
func (r *ConversationRepo) ListByParticipant(ctx context.Context, userID int) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := r.db.SelectContext(ctx, &convs,
		`SELECT `+conversationColumns+` FROM conversations
         WHERE user1_id=$1 OR user2_id=$1
         ORDER BY last_message_at DESC`, userID)
	return convs, err
}

// Touch bumps the conversation's last-activity timestamp after a message
// is appended.
func (r *ConversationRepo) Touch(ctx context.Context, conversationID int, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE conversations SET last_message_at=$2 WHERE id=$1`, conversationID, at)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrConversationNotFound
	}
	return nil
}
