package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"dm-service/internal/mocks"
	"dm-service/internal/models"
	"dm-service/internal/repositories"
)

func setupNotificationRouter(handler *NotificationHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/api/notifications/vapid-public-key", handler.VAPIDPublicKey)
	authed := r.Group("/api/notifications", withUser(testUserID))
	authed.POST("/subscribe", handler.Subscribe)
	authed.POST("/unsubscribe", handler.Unsubscribe)
	RegisterDebugRoutes(r, nil, handler, withUser(testUserID), true)
	return r
}

func TestVAPIDPublicKey(t *testing.T) {
	rec := httptest.NewRecorder()
	setupNotificationRouter(NewNotificationHandler(nil, nil, "pub")).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/notifications/vapid-public-key", nil))
	assert.JSONEq(t, `{"publicKey":"pub"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	setupNotificationRouter(NewNotificationHandler(nil, nil, "")).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/notifications/vapid-public-key", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestSubscribe(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	router := setupNotificationRouter(NewNotificationHandler(users, nil, "pub"))
	sub := models.PushSubscription{Endpoint: "https://push.example/1", Keys: models.PushKeys{P256dh: "k", Auth: "a"}}
	users.On("SetPushSubscription", mock.Anything, testUserID, sub).Return(nil).Once()

	rec := postJSON(router, "/api/notifications/subscribe", `{"subscription":{"endpoint":"https://push.example/1","keys":{"p256dh":"k","auth":"a"}}}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())
	users.AssertExpectations(t)
}

func TestSubscribeRejectsIncompleteDescriptor(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	router := setupNotificationRouter(NewNotificationHandler(users, nil, "pub"))

	for _, body := range []string{`{}`, `{"subscription":{"endpoint":"https://push.example/1"}}`} {
		rec := postJSON(router, "/api/notifications/subscribe", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}
	users.AssertNotCalled(t, "SetPushSubscription", mock.Anything, mock.Anything, mock.Anything)
}

func TestSubscribeUnknownUser(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	router := setupNotificationRouter(NewNotificationHandler(users, nil, "pub"))
	users.On("SetPushSubscription", mock.Anything, testUserID, mock.Anything).Return(repositories.ErrUserNotFound).Once()

	rec := postJSON(router, "/api/notifications/subscribe", `{"subscription":{"endpoint":"e","keys":{"p256dh":"k","auth":"a"}}}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnsubscribe(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	router := setupNotificationRouter(NewNotificationHandler(users, nil, "pub"))
	users.On("ClearPushSubscription", mock.Anything, testUserID, "").Return(nil).Once()

	rec := postJSON(router, "/api/notifications/unsubscribe", ``)
	assert.Equal(t, http.StatusOK, rec.Code)
	users.AssertExpectations(t)
}

func TestSendTestNotification(t *testing.T) {
	notifier := new(mocks.NotifierMock)
	router := setupNotificationRouter(NewNotificationHandler(nil, notifier, "pub"))
	notifier.On("Notify", mock.Anything, testUserID, mock.Anything).Return(false).Once()

	rec := postJSON(router, "/api/notifications/test", ``)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":false}`, rec.Body.String())
}

func TestHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/health", Health)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"OK"`)
}

func TestDebugRoutesDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterDebugRoutes(r, nil, nil, withUser(testUserID), false)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/audit-test", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
