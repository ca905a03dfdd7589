package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"dm-service/internal/logging"
	"dm-service/internal/mocks"
	"dm-service/internal/models"
	"dm-service/internal/services"
)

const peerID = "22222222-2222-2222-2222-222222222222"

type presenceStub map[string]bool

func (p presenceStub) IsOnline(id string) bool { return p[id] }

type messageFixture struct {
	users    *mocks.UserRepositoryMock
	messages *mocks.MessageRepositoryMock
	notifier *mocks.NotifierMock
	router   *gin.Engine
}

func newMessageFixture(presence presenceStub) messageFixture {
	f := messageFixture{
		users:    new(mocks.UserRepositoryMock),
		messages: new(mocks.MessageRepositoryMock),
		notifier: new(mocks.NotifierMock),
	}
	svc := services.NewMessageService(f.users, f.messages, f.notifier, presence, logging.Nop())
	handler := NewMessageHandler(svc, nil)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(withUser(testUserID))
	r.GET("/api/messages/users", handler.ListUsers)
	r.GET("/api/messages/conversation/:recipientId", handler.Conversation)
	r.POST("/api/messages/send", handler.Send)
	r.GET("/api/messages/unread-count", handler.UnreadCount)
	f.router = r
	return f
}

func (f messageFixture) get(path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func (f messageFixture) post(path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestListUsers(t *testing.T) {
	f := newMessageFixture(presenceStub{peerID: true})
	f.users.On("ListOthers", mock.Anything, testUserID).Return([]models.User{
		{ID: "33333333-3333-3333-3333-333333333333", Username: "aaron"},
		{ID: peerID, Username: "bob"},
	}, nil).Once()

	rec := f.get("/api/messages/users")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Users []rosterEntry `json:"users"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Users, 2)
	assert.Equal(t, peerID, resp.Users[0].ID)
	assert.Equal(t, peerID, resp.Users[0].LegacyID)
	assert.True(t, resp.Users[0].IsOnline)
	assert.False(t, resp.Users[1].IsOnline)
}

func TestSendMessageSuccess(t *testing.T) {
	f := newMessageFixture(nil)
	f.users.On("Exists", mock.Anything, peerID).Return(true, nil).Once()
	f.messages.On("Create", mock.Anything, mock.Anything).
		Return(models.Message{ID: "m1", SenderID: testUserID, RecipientID: peerID, Content: "hi"}, nil).Once()
	f.users.On("GetByID", mock.Anything, testUserID).Return(models.User{ID: testUserID, Username: "alice"}, nil).Once()
	f.notifier.On("NotifyAsync", mock.Anything, peerID, mock.Anything).Once()

	rec := f.post("/api/messages/send", `{"recipientId":"`+peerID+`","content":"hi"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"senderId":"`+testUserID+`"`)
	f.notifier.AssertExpectations(t)
}

func TestSendMessageAcceptsExpandedRecipient(t *testing.T) {
	f := newMessageFixture(nil)
	f.users.On("Exists", mock.Anything, peerID).Return(true, nil).Once()
	f.messages.On("Create", mock.Anything, mock.Anything).Return(models.Message{ID: "m1"}, nil).Once()
	f.users.On("GetByID", mock.Anything, testUserID).Return(models.User{Username: "alice"}, nil).Once()
	f.notifier.On("NotifyAsync", mock.Anything, peerID, mock.Anything).Once()

	rec := f.post("/api/messages/send", `{"recipientId":{"_id":"`+peerID+`","username":"bob"},"content":"hi"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestSendMessageErrors(t *testing.T) {
	f := newMessageFixture(nil)
	f.users.On("Exists", mock.Anything, peerID).Return(false, nil).Once()

	tests := []struct {
		name string
		body string
		code int
	}{
		{"missing recipient", `{"content":"hi"}`, http.StatusBadRequest},
		{"empty content", `{"recipientId":"` + peerID + `","content":"   "}`, http.StatusBadRequest},
		{"self", `{"recipientId":"` + testUserID + `","content":"hi"}`, http.StatusBadRequest},
		{"unknown recipient", `{"recipientId":"` + peerID + `","content":"hi"}`, http.StatusNotFound},
		{"malformed id", `{"recipientId":"nope","content":"hi"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.post("/api/messages/send", tt.body)
			assert.Equal(t, tt.code, rec.Code)
		})
	}

	f.messages.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	f.notifier.AssertNotCalled(t, "NotifyAsync", mock.Anything, mock.Anything, mock.Anything)
}

func TestConversationMarksRead(t *testing.T) {
	f := newMessageFixture(nil)
	f.messages.On("Conversation", mock.Anything, testUserID, peerID, services.ConversationLimit).Return([]models.Message{
		{ID: "m1", SenderID: peerID, RecipientID: testUserID, Content: "hi"},
	}, nil).Once()
	f.messages.On("MarkRead", mock.Anything, testUserID, []string{"m1"}).Return(int64(1), nil).Once()

	rec := f.get("/api/messages/conversation/" + peerID)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"content":"hi"`)
	f.messages.AssertExpectations(t)
}

func TestConversationInvalidRecipient(t *testing.T) {
	f := newMessageFixture(nil)
	for _, id := range []string{"undefined", "null"} {
		rec := f.get("/api/messages/conversation/" + id)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}
}

func TestUnreadCount(t *testing.T) {
	f := newMessageFixture(nil)
	f.messages.On("UnreadCount", mock.Anything, testUserID).Return(3, nil).Once()

	rec := f.get("/api/messages/unread-count")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":3}`, rec.Body.String())
}
