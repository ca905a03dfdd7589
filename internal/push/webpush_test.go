package push

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dm-service/internal/models"
)

func newTestSubscription(t *testing.T, endpoint string) models.PushSubscription {
	t.Helper()
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	auth := make([]byte, 16)
	_, err = rand.Read(auth)
	require.NoError(t, err)

	return models.PushSubscription{
		Endpoint: endpoint,
		Keys: models.PushKeys{
			P256dh: base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()),
			Auth:   base64.RawURLEncoding.EncodeToString(auth),
		},
	}
}

func TestWebPushSenderStatuses(t *testing.T) {
	privateKey, publicKey, err := webpush.GenerateVAPIDKeys()
	require.NoError(t, err)

	tests := []struct {
		name   string
		status int
		check  func(t *testing.T, err error)
	}{
		{"created", http.StatusCreated, func(t *testing.T, err error) { assert.NoError(t, err) }},
		{"gone", http.StatusGone, func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrSubscriptionGone) }},
		{"not found", http.StatusNotFound, func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrSubscriptionGone) }},
		{"server error", http.StatusInternalServerError, func(t *testing.T, err error) {
			var statusErr *StatusError
			require.ErrorAs(t, err, &statusErr)
			assert.Equal(t, http.StatusInternalServerError, statusErr.Code)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotTTL, gotUrgency string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotTTL = r.Header.Get("TTL")
				gotUrgency = r.Header.Get("Urgency")
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			sender := NewWebPushSender(publicKey, privateKey, "mailto:ops@example.com", 24*time.Hour, srv.Client())
			err := sender.Send(context.Background(), newTestSubscription(t, srv.URL+"/push/1"), []byte(`{"title":"hi"}`))

			tt.check(t, err)
			assert.Equal(t, "86400", gotTTL)
			assert.Equal(t, "high", gotUrgency)
		})
	}
}
