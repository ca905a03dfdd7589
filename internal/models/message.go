package models

import "time"

// MaxContentLength bounds message content, counted in characters.
const MaxContentLength = 1000

// Message is a persisted direct message. Read only ever flips false to true.
type Message struct {
	ID          string    `db:"id" json:"id"`
	SenderID    string    `db:"sender_id" json:"senderId"`
	RecipientID string    `db:"recipient_id" json:"recipientId"`
	Content     string    `db:"content" json:"content"`
	Timestamp   time.Time `db:"created_at" json:"timestamp"`
	Read        bool      `db:"read" json:"read"`
}
