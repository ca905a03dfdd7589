package ws

import (
	"encoding/json"
	"errors"
	"time"

	"dm-service/internal/models"
)

// Event names on the wire.
const (
	EventAuthenticate   = "authenticate"
	EventAuthenticated  = "authenticated"
	EventAuthError      = "auth-error"
	EventSendMessage    = "send-message"
	EventReceiveMessage = "receive-message"
	EventMessageSent    = "message-sent"
	EventMessageError   = "message-error"
	EventTyping         = "typing"
	EventStopTyping     = "stop-typing"
	EventUserTyping     = "user-typing"
	EventUserStopTyping = "user-stop-typing"
	EventUserStatus     = "user-status"
)

var errMalformedPayload = errors.New("malformed payload")

// Envelope is one text frame: {"event": "...", "data": ...}.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type AuthenticatedPayload struct {
	Success bool   `json:"success"`
	UserID  string `json:"userId"`
}

type ErrorPayload struct {
	Error string `json:"error"`
}

type SendMessagePayload struct {
	RecipientID models.UserRef `json:"recipientId"`
	Content     string         `json:"content"`
}

type ReceiveMessagePayload struct {
	SenderID  string    `json:"senderId"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type MessageSentPayload struct {
	Success bool `json:"success"`
}

type TypingPayload struct {
	UserID string `json:"userId"`
}

type UserStatusPayload struct {
	UserID   string `json:"userId"`
	IsOnline bool   `json:"isOnline"`
}

func encodeFrame(event string, data any) []byte {
	frame, _ := json.Marshal(outbound{Event: event, Data: data})
	return frame
}

// decodeCredential accepts a bare token string, null or nothing.
func decodeCredential(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var token string
	if err := json.Unmarshal(raw, &token); err != nil {
		return "", errMalformedPayload
	}
	return token, nil
}

// decodeUserRef resolves a raw id or an expanded user object to an id.
func decodeUserRef(raw json.RawMessage) (string, error) {
	var ref models.UserRef
	if err := json.Unmarshal(raw, &ref); err != nil {
		return "", errMalformedPayload
	}
	return ref.ID(), nil
}
