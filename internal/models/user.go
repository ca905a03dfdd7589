package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// User is a registered account. IsOnline and LastSeen are written only by the
// websocket lifecycle on connect and disconnect transitions.
type User struct {
	ID           string    `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	IsOnline     bool      `db:"is_online" json:"isOnline"`
	LastSeen     time.Time `db:"last_seen" json:"lastSeen"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

// PushSubscription is the opaque Web Push endpoint descriptor a browser hands
// to the service worker registration.
type PushSubscription struct {
	Endpoint       string   `json:"endpoint"`
	ExpirationTime *int64   `json:"expirationTime,omitempty"`
	Keys           PushKeys `json:"keys"`
}

// PushKeys carries the client encryption material.
type PushKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// Valid reports whether the descriptor has everything needed to deliver.
func (s PushSubscription) Valid() bool {
	return s.Endpoint != "" && s.Keys.P256dh != "" && s.Keys.Auth != ""
}

// Value stores the descriptor as JSONB. lib/pq would send []byte as bytea,
// so the document goes out as text.
func (s PushSubscription) Value() (driver.Value, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan reads the descriptor from a JSONB column.
func (s *PushSubscription) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	case nil:
		*s = PushSubscription{}
		return nil
	default:
		return errors.New("unsupported push subscription source")
	}
}
