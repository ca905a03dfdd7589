package ws

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"dm-service/internal/auth"
	"dm-service/internal/observability"
)

type ConnInfo struct {
	ConnID         string
	DeviceID       string
	IP             string
	RequestID      string
	TraceID        string
	HandshakeToken string
	ConnectedAt    time.Time
}

func newConnInfo(r *http.Request, traceID string) ConnInfo {
	return ConnInfo{
		ConnID:         uuid.NewString(),
		DeviceID:       observability.DeviceIDFromRequest(r),
		IP:             observability.IPFromRequest(r),
		RequestID:      observability.RequestIDFromRequest(r),
		TraceID:        traceID,
		HandshakeToken: auth.TokenFromRequest(r),
		ConnectedAt:    time.Now(),
	}
}
