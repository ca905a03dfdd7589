package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"dm-service/internal/logging"
)

type publisherMock struct {
	mock.Mock
}

func (m *publisherMock) Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error {
	return m.Called(ctx, routingKey, event, headers).Error(0)
}

func TestEmitPublishesEnvelope(t *testing.T) {
	pub := new(publisherMock)
	emitter := NewAuditEmitter(pub, "audit.dm", "dm-service", "test", logging.Nop())
	user := "u1"

	pub.On("Publish", mock.Anything, "audit.dm", mock.AnythingOfType("telemetry.AuditEnvelope"), map[string]string{"x-request-id": "r1"}).
		Return(nil).Once()

	emitter.Emit(context.Background(), "INFO", "message sent", "r1", &user, map[string]any{"recipient_id": "u2"})

	pub.AssertExpectations(t)
	env := pub.Calls[0].Arguments.Get(2).(AuditEnvelope)
	assert.Equal(t, "audit_log", env.EventType)
	assert.Equal(t, "dm-service", env.Service)
	require.NotNil(t, env.UserID)
	assert.Equal(t, "u1", *env.UserID)
	assert.Equal(t, "u2", env.Payload.Fields["recipient_id"])
}

func TestEmitSwallowsPublishErrors(t *testing.T) {
	pub := new(publisherMock)
	emitter := NewAuditEmitter(pub, "audit.dm", "dm-service", "test", logging.Nop())
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(assert.AnError).Once()

	assert.NotPanics(t, func() {
		emitter.Emit(context.Background(), "ERROR", "boom", "r2", nil, nil)
	})
	pub.AssertExpectations(t)
}

func TestNilEmitterIsSafe(t *testing.T) {
	var emitter *AuditEmitter
	assert.NotPanics(t, func() {
		emitter.Emit(context.Background(), "INFO", "x", "r", nil, nil)
	})
}
