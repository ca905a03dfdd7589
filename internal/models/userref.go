package models

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
)

// ErrInvalidUserRef is returned when a payload carries neither an id string
// nor a user object with an id.
var ErrInvalidUserRef = errors.New("invalid user reference")

// UserRef is a user reference as it appears in client payloads: either a bare
// id or an expanded user object. It is resolved to a canonical id at decode time.
type UserRef struct {
	id   string
	user *User
}

// CanonicalID returns the lower-case hyphenated form of a UUID id. Anything
// that does not parse as a UUID is returned unchanged.
func CanonicalID(id string) string {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return id
	}
	return parsed.String()
}

// RawID wraps a bare identifier.
func RawID(id string) UserRef {
	return UserRef{id: CanonicalID(id)}
}

// Expanded wraps a full user record.
func Expanded(u User) UserRef {
	u.ID = CanonicalID(u.ID)
	return UserRef{id: u.ID, user: &u}
}

// ID returns the canonical user id.
func (r UserRef) ID() string {
	return r.id
}

// User returns the expanded record, if the reference carried one.
func (r UserRef) User() (User, bool) {
	if r.user == nil {
		return User{}, false
	}
	return *r.user, true
}

// IsZero reports whether the reference is empty.
func (r UserRef) IsZero() bool {
	return r.id == ""
}

func (r *UserRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*r = UserRef{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*r = RawID(id)
		return nil
	}

	var aux struct {
		ID       string `json:"id"`
		LegacyID string `json:"_id"`
		Username string `json:"username"`
		Email    string `json:"email"`
		IsOnline bool   `json:"isOnline"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return ErrInvalidUserRef
	}
	id := aux.ID
	if id == "" {
		id = aux.LegacyID
	}
	if id == "" {
		return ErrInvalidUserRef
	}
	*r = Expanded(User{ID: id, Username: aux.Username, Email: aux.Email, IsOnline: aux.IsOnline})
	return nil
}

func (r UserRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.id)
}
