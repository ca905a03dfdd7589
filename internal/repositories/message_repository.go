package repositories

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"dm-service/internal/models"
)

// MessageRepository defines interactions for direct messages.
type MessageRepository interface {
	Create(ctx context.Context, msg models.Message) (models.Message, error)
	Conversation(ctx context.Context, userA, userB string, limit int) ([]models.Message, error)
	MarkRead(ctx context.Context, recipientID string, ids []string) (int64, error)
	UnreadCount(ctx context.Context, recipientID string) (int, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Create appends a message.
func (r *MessageRepo) Create(ctx context.Context, msg models.Message) (models.Message, error) {
	var created models.Message
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages (id, sender_id, recipient_id, content, created_at) VALUES ($1, $2, $3, $4, $5) RETURNING id, sender_id, recipient_id, content, created_at, read`,
		msg.ID, msg.SenderID, msg.RecipientID, msg.Content, msg.Timestamp).StructScan(&created)
	if err != nil {
		return models.Message{}, fmt.Errorf("insert message: %w", err)
	}
	return created, nil
}

// Conversation returns the first limit messages exchanged between the pair,
// oldest first.
func (r *MessageRepo) Conversation(ctx context.Context, userA, userB string, limit int) ([]models.Message, error) {
	query := `SELECT id, sender_id, recipient_id, content, created_at, read
        FROM messages
        WHERE (sender_id=$1 AND recipient_id=$2) OR (sender_id=$2 AND recipient_id=$1)
        ORDER BY created_at ASC
        LIMIT $3`
	msgs := []models.Message{}
	err := r.db.SelectContext(ctx, &msgs, query, userA, userB, limit)
	return msgs, err
}

// MarkRead flips read on the given messages addressed to recipientID and
// reports how many actually transitioned.
func (r *MessageRepo) MarkRead(ctx context.Context, recipientID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET read = TRUE WHERE recipient_id=$1 AND read = FALSE AND id = ANY($2)`, recipientID, pq.Array(ids))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// UnreadCount counts unread messages addressed to recipientID.
func (r *MessageRepo) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM messages WHERE recipient_id=$1 AND read = FALSE`, recipientID)
	return count, err
}
