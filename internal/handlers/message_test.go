package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/mocks"
	"messaging-service/internal/models"
	"messaging-service/internal/presence"
	"messaging-service/internal/repositories"
	"messaging-service/internal/service"
	"messaging-service/internal/telemetry"
)

type testEnv struct {
	convRepo *mocks.ConversationRepositoryMock
	msgRepo  *mocks.MessageRepositoryMock
	userRepo *mocks.UserRepositoryMock
	notifier *mocks.NotifierMock
	registry *presence.Registry
	router   *gin.Engine
}

func setupRouter(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &testEnv{
		convRepo: new(mocks.ConversationRepositoryMock),
		msgRepo:  new(mocks.MessageRepositoryMock),
		userRepo: new(mocks.UserRepositoryMock),
		notifier: new(mocks.NotifierMock),
		registry: presence.NewRegistry(),
	}

	svc := service.NewMessagingService(env.convRepo, env.msgRepo, env.userRepo, env.registry, env.notifier)
	audit := telemetry.NewAuditEmitter(nil, "", "messaging-service", "test")
	msgHandler := NewMessageHandler(svc, audit)
	convHandler := NewConversationHandler(svc, audit)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", 1)
		c.Next()
	})
	r.POST("/messages/send/:user_id", msgHandler.Send)
	r.GET("/messages/:user_id", msgHandler.History)
	r.GET("/conversations", convHandler.List)
	r.POST("/conversations/start", convHandler.Start)
	env.router = r
	return env
}

func expectView(env *testEnv, conv models.Conversation, msgs []models.Message) {
	env.convRepo.On("Get", mock.Anything, conv.ID).Return(conv, nil).Once()
	env.userRepo.On("BulkGet", mock.Anything, []int{conv.User1ID, conv.User2ID}).Return([]models.UserRef{
		{ID: conv.User1ID, Username: "alice"},
		{ID: conv.User2ID, Username: "bob"},
	}, nil).Once()
	env.msgRepo.On("ListByConversation", mock.Anything, conv.ID, 0).Return(msgs, nil).Once()
}

func TestSendMessageSuccess(t *testing.T) {
	env := setupRouter(t)

	now := time.Now()
	conv := models.Conversation{ID: 9, User1ID: 1, User2ID: 2}
	msg := models.Message{ID: 4, ConversationID: 9, SenderID: 1, ReceiverID: 2, Body: "hello", Kind: models.KindText, CreatedAt: now}

	env.convRepo.On("FindOrCreate", mock.Anything, 1, 2).Return(conv, nil).Once()
	env.msgRepo.On("Create", mock.Anything, 9, 1, 2, "hello", models.KindText).Return(msg, nil).Once()
	env.convRepo.On("Touch", mock.Anything, 9, now).Return(nil).Once()
	expectView(env, conv, []models.Message{msg})

	req := httptest.NewRequest(http.MethodPost, "/messages/send/2", bytes.NewBufferString(`{"message":"hello","kind":"text"}`))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Message      models.Message          `json:"message"`
		Conversation models.ConversationView `json:"conversation"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 4, resp.Message.ID)
	assert.Equal(t, 9, resp.Conversation.ID)
	require.Len(t, resp.Conversation.Participants, 2)
	assert.Equal(t, "alice", resp.Conversation.Participants[0].Username)

	env.convRepo.AssertExpectations(t)
	env.msgRepo.AssertExpectations(t)
}

func TestSendMessageNotifiesPresentRecipient(t *testing.T) {
	env := setupRouter(t)
	env.registry.Register(2, "c7")

	now := time.Now()
	conv := models.Conversation{ID: 9, User1ID: 1, User2ID: 2}
	msg := models.Message{ID: 4, ConversationID: 9, SenderID: 1, ReceiverID: 2, Body: "hello", Kind: models.KindText, CreatedAt: now}

	env.convRepo.On("FindOrCreate", mock.Anything, 1, 2).Return(conv, nil).Once()
	env.msgRepo.On("Create", mock.Anything, 9, 1, 2, "hello", models.KindText).Return(msg, nil).Once()
	env.convRepo.On("Touch", mock.Anything, 9, now).Return(nil).Once()
	env.notifier.On("Notify", "c7", "newMessage", &msg).Once()
	expectView(env, conv, []models.Message{msg})

	req := httptest.NewRequest(http.MethodPost, "/messages/send/2", bytes.NewBufferString(`{"message":"hello"}`))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	env.notifier.AssertExpectations(t)
}

func TestSendMessageSucceedsWhenExpansionFails(t *testing.T) {
	env := setupRouter(t)

	now := time.Now()
	conv := models.Conversation{ID: 9, User1ID: 1, User2ID: 2}
	msg := models.Message{ID: 4, ConversationID: 9, SenderID: 1, ReceiverID: 2, Body: "hello", Kind: models.KindText, CreatedAt: now}

	env.convRepo.On("FindOrCreate", mock.Anything, 1, 2).Return(conv, nil).Once()
	env.msgRepo.On("Create", mock.Anything, 9, 1, 2, "hello", models.KindText).Return(msg, nil).Once()
	env.convRepo.On("Touch", mock.Anything, 9, now).Return(nil).Once()
	env.convRepo.On("Get", mock.Anything, 9).Return(models.Conversation{}, assert.AnError).Once()

	req := httptest.NewRequest(http.MethodPost, "/messages/send/2", bytes.NewBufferString(`{"message":"hello"}`))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	// the send is durable; a failed expansion only drops the
	// conversation key from the response
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Contains(t, resp, "message")
	assert.NotContains(t, resp, "conversation")
}

func TestSendMessageValidation(t *testing.T) {
	env := setupRouter(t)

	// missing body
	req := httptest.NewRequest(http.MethodPost, "/messages/send/2", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// bad recipient id
	req = httptest.NewRequest(http.MethodPost, "/messages/send/abc", bytes.NewBufferString(`{"message":"hi"}`))
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// self send
	req = httptest.NewRequest(http.MethodPost, "/messages/send/1", bytes.NewBufferString(`{"message":"hi"}`))
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// unknown kind
	req = httptest.NewRequest(http.MethodPost, "/messages/send/2", bytes.NewBufferString(`{"message":"hi","kind":"video"}`))
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendMessageStoreError(t *testing.T) {
	env := setupRouter(t)

	conv := models.Conversation{ID: 9, User1ID: 1, User2ID: 2}
	env.convRepo.On("FindOrCreate", mock.Anything, 1, 2).Return(conv, nil).Once()
	env.msgRepo.On("Create", mock.Anything, 9, 1, 2, "hi", models.KindText).Return(models.Message{}, assert.AnError).Once()

	req := httptest.NewRequest(http.MethodPost, "/messages/send/2", bytes.NewBufferString(`{"message":"hi"}`))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	env.notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything, mock.Anything)
}

func TestHistorySuccess(t *testing.T) {
	env := setupRouter(t)

	conv := models.Conversation{ID: 9, User1ID: 1, User2ID: 2}
	env.convRepo.On("Find", mock.Anything, 1, 2).Return(conv, nil).Once()
	env.msgRepo.On("ListByConversation", mock.Anything, 9, 50).Return([]models.Message{
		{ID: 1, Body: "a"}, {ID: 2, Body: "b"},
	}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/messages/2", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Messages []models.Message `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, "a", resp.Messages[0].Body)
}

func TestHistoryEmptyWithoutConversation(t *testing.T) {
	env := setupRouter(t)

	env.convRepo.On("Find", mock.Anything, 1, 3).Return(models.Conversation{}, repositories.ErrConversationNotFound).Once()

	req := httptest.NewRequest(http.MethodGet, "/messages/3", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"messages":[]}`, rec.Body.String())
}

func TestHistoryInvalidLimit(t *testing.T) {
	env := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/messages/2?limit=-1", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
