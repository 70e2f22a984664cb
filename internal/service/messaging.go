package service

import (
	"context"
	"errors"
	"log"
	"strings"

	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/presence"
	"messaging-service/internal/repositories"
)

var (
	ErrEmptyBody          = errors.New("message body is required")
	ErrInvalidKind        = errors.New("unknown message kind")
	ErrSelfConversation   = errors.New("cannot message yourself")
	ErrMissingParticipant = errors.New("sender and recipient are required")
)

// Notifier is the push side of the send protocol. Implementations absorb
// delivery failures; by the time Notify runs the message is durable.
type Notifier interface {
	Notify(connID string, event string, message *models.Message)
}

// MessagingService orchestrates conversation lookup, durable persistence
// and best-effort push delivery.
type MessagingService struct {
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	users         repositories.UserRepository
	registry      *presence.Registry
	notifier      Notifier
}

// NewMessagingService constructs a MessagingService.
func NewMessagingService(
	conversations repositories.ConversationRepository,
	messages repositories.MessageRepository,
	users repositories.UserRepository,
	registry *presence.Registry,
	notifier Notifier,
) *MessagingService {
	return &MessagingService{
		conversations: conversations,
		messages:      messages,
		users:         users,
		registry:      registry,
		notifier:      notifier,
	}
}

// Send persists a message to the recipient and pushes it to the
// recipient's connection when one is registered. Persistence always
// completes before the push is attempted; a failed or skipped push never
// affects the returned message or error.
func (s *MessagingService) Send(ctx context.Context, senderID, recipientID int, body string, kind models.MessageKind) (models.Message, error) {
	if senderID == 0 || recipientID == 0 {
		return models.Message{}, ErrMissingParticipant
	}
	if senderID == recipientID {
		return models.Message{}, ErrSelfConversation
	}
	if strings.TrimSpace(body) == "" {
		return models.Message{}, ErrEmptyBody
	}
	if kind == "" {
		kind = models.KindText
	}
	if !kind.Valid() {
		return models.Message{}, ErrInvalidKind
	}

	conv, err := s.conversations.FindOrCreate(ctx, senderID, recipientID)
	if err != nil {
		return models.Message{}, err
	}

	msg, err := s.messages.Create(ctx, conv.ID, senderID, recipientID, body, kind)
	if err != nil {
		return models.Message{}, err
	}

	if err := s.conversations.Touch(ctx, conv.ID, msg.CreatedAt); err != nil {
		// The message is already durable; recency ordering degrades but
		// the send has succeeded.
		log.Printf("conversation touch failed: %v", err)
	}

	observability.IncMessageSent(string(msg.Kind))

	if connID, ok := s.registry.Lookup(recipientID); ok {
		s.notifier.Notify(connID, "newMessage", &msg)
		observability.IncNotifyOutcome("delivered")
	} else {
		observability.IncNotifyOutcome("absent")
	}

	return msg, nil
}

// History returns the messages between two users oldest first. No
// conversation yet means no history: an empty slice, not an error.
func (s *MessagingService) History(ctx context.Context, userID, otherID int, limit int) ([]models.Message, error) {
	conv, err := s.conversations.Find(ctx, userID, otherID)
	if errors.Is(err, repositories.ErrConversationNotFound) {
		return []models.Message{}, nil
	}
	if err != nil {
		return nil, err
	}
	msgs, err := s.messages.ListByConversation(ctx, conv.ID, limit)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	return msgs, nil
}

// EnsureConversation creates the pair's conversation when absent and
// returns it either way.
func (s *MessagingService) EnsureConversation(ctx context.Context, userID, otherID int) (models.Conversation, error) {
	if userID == 0 || otherID == 0 {
		return models.Conversation{}, ErrMissingParticipant
	}
	if userID == otherID {
		return models.Conversation{}, ErrSelfConversation
	}
	return s.conversations.FindOrCreate(ctx, userID, otherID)
}

// Conversations returns the user's conversations with participants and
// messages expanded for display, most recent activity first.
func (s *MessagingService) Conversations(ctx context.Context, userID int) ([]models.ConversationView, error) {
	convs, err := s.conversations.ListByParticipant(ctx, userID)
	if err != nil {
		return nil, err
	}

	participantIDs := make([]int, 0, len(convs)+1)
	seen := map[int]struct{}{}
	for _, conv := range convs {
		for _, id := range []int{conv.User1ID, conv.User2ID} {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				participantIDs = append(participantIDs, id)
			}
		}
	}

	users, err := s.users.BulkGet(ctx, participantIDs)
	if err != nil {
		return nil, err
	}
	userByID := make(map[int]models.UserRef, len(users))
	for _, u := range users {
		userByID[u.ID] = u
	}

	views := make([]models.ConversationView, 0, len(convs))
	for _, conv := range convs {
		msgs, err := s.messages.ListByConversation(ctx, conv.ID, 0)
		if err != nil {
			return nil, err
		}
		if msgs == nil {
			msgs = []models.Message{}
		}
		views = append(views, models.ConversationView{
			ID:            conv.ID,
			Participants:  participantRefs(conv, userByID),
			Messages:      msgs,
			CreatedAt:     conv.CreatedAt,
			LastMessageAt: conv.LastMessageAt,
		})
	}
	return views, nil
}

// View expands a single conversation for display.
func (s *MessagingService) View(ctx context.Context, conversationID int) (models.ConversationView, error) {
	conv, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		return models.ConversationView{}, err
	}

	users, err := s.users.BulkGet(ctx, []int{conv.User1ID, conv.User2ID})
	if err != nil {
		return models.ConversationView{}, err
	}
	userByID := make(map[int]models.UserRef, len(users))
	for _, u := range users {
		userByID[u.ID] = u
	}

	msgs, err := s.messages.ListByConversation(ctx, conv.ID, 0)
	if err != nil {
		return models.ConversationView{}, err
	}
	if msgs == nil {
		msgs = []models.Message{}
	}

	return models.ConversationView{
		ID:            conv.ID,
		Participants:  participantRefs(conv, userByID),
		Messages:      msgs,
		CreatedAt:     conv.CreatedAt,
		LastMessageAt: conv.LastMessageAt,
	}, nil
}

func participantRefs(conv models.Conversation, userByID map[int]models.UserRef) []models.UserRef {
	refs := make([]models.UserRef, 0, 2)
	for _, id := range []int{conv.User1ID, conv.User2ID} {
		if u, ok := userByID[id]; ok {
			refs = append(refs, u)
			continue
		}
		refs = append(refs, models.UserRef{ID: id})
	}
	return refs
}
