package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"dm-service/internal/models"
	"dm-service/internal/push"
)

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) Create(ctx context.Context, user models.User) (models.User, error) {
	args := m.Called(ctx, user)
	var created models.User
	if val := args.Get(0); val != nil {
		created = val.(models.User)
	}
	return created, args.Error(1)
}

func (m *UserRepositoryMock) GetByID(ctx context.Context, id string) (models.User, error) {
	args := m.Called(ctx, id)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) GetByEmail(ctx context.Context, email string) (models.User, error) {
	args := m.Called(ctx, email)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) Exists(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *UserRepositoryMock) ListOthers(ctx context.Context, id string) ([]models.User, error) {
	args := m.Called(ctx, id)
	var users []models.User
	if val := args.Get(0); val != nil {
		users = val.([]models.User)
	}
	return users, args.Error(1)
}

func (m *UserRepositoryMock) SetOnline(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *UserRepositoryMock) SetOffline(ctx context.Context, id string, lastSeen time.Time) error {
	return m.Called(ctx, id, lastSeen).Error(0)
}

func (m *UserRepositoryMock) GetPushSubscription(ctx context.Context, id string) (*models.PushSubscription, error) {
	args := m.Called(ctx, id)
	var sub *models.PushSubscription
	if val := args.Get(0); val != nil {
		sub = val.(*models.PushSubscription)
	}
	return sub, args.Error(1)
}

func (m *UserRepositoryMock) SetPushSubscription(ctx context.Context, id string, sub models.PushSubscription) error {
	return m.Called(ctx, id, sub).Error(0)
}

func (m *UserRepositoryMock) ClearPushSubscription(ctx context.Context, id string, endpoint string) error {
	return m.Called(ctx, id, endpoint).Error(0)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) Create(ctx context.Context, msg models.Message) (models.Message, error) {
	args := m.Called(ctx, msg)
	var created models.Message
	if val := args.Get(0); val != nil {
		created = val.(models.Message)
	}
	return created, args.Error(1)
}

func (m *MessageRepositoryMock) Conversation(ctx context.Context, userA, userB string, limit int) ([]models.Message, error) {
	args := m.Called(ctx, userA, userB, limit)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) MarkRead(ctx context.Context, recipientID string, ids []string) (int64, error) {
	args := m.Called(ctx, recipientID, ids)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MessageRepositoryMock) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	args := m.Called(ctx, recipientID)
	return args.Int(0), args.Error(1)
}

type VerifierMock struct {
	mock.Mock
}

func (m *VerifierMock) Verify(ctx context.Context, token string) (string, error) {
	args := m.Called(ctx, token)
	return args.String(0), args.Error(1)
}

type NotifierMock struct {
	mock.Mock
}

func (m *NotifierMock) Notify(ctx context.Context, recipientID string, n push.Notification) bool {
	return m.Called(ctx, recipientID, n).Bool(0)
}

func (m *NotifierMock) NotifyAsync(ctx context.Context, recipientID string, n push.Notification) {
	m.Called(ctx, recipientID, n)
}

type PushSenderMock struct {
	mock.Mock
}

func (m *PushSenderMock) Send(ctx context.Context, sub models.PushSubscription, payload []byte) error {
	return m.Called(ctx, sub, payload).Error(0)
}
