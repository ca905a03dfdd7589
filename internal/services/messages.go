package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"dm-service/internal/logging"
	"dm-service/internal/models"
	"dm-service/internal/push"
	"dm-service/internal/repositories"
)

var (
	ErrRecipientNotFound  = errors.New("recipient not found")
	ErrInvalidRecipientID = errors.New("invalid recipient id")
	ErrInvalidContent     = errors.New("content must be a non-empty string of at most 1000 characters")
	ErrSelfMessage        = errors.New("cannot message yourself")
)

const ConversationLimit = 100

// Presence answers whether a user has a live connection right now.
type Presence interface {
	IsOnline(userID string) bool
}

type UserReader interface {
	GetByID(ctx context.Context, id string) (models.User, error)
	Exists(ctx context.Context, id string) (bool, error)
	ListOthers(ctx context.Context, id string) ([]models.User, error)
}

// MessageService is the durable side of direct messaging.
type MessageService struct {
	users    UserReader
	messages repositories.MessageRepository
	notifier push.Notifier
	presence Presence
	clock    *senderClock
	log      logging.Logger
}

func NewMessageService(users UserReader, messages repositories.MessageRepository, notifier push.Notifier, presence Presence, log logging.Logger) *MessageService {
	return &MessageService{
		users:    users,
		messages: messages,
		notifier: notifier,
		presence: presence,
		clock:    newSenderClock(time.Now),
		log:      log,
	}
}

// Send validates and persists a message, then hands a push notification to
// the dispatcher without waiting for it.
func (s *MessageService) Send(ctx context.Context, senderID, recipientID, content string) (models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" || utf8.RuneCountInString(content) > models.MaxContentLength {
		return models.Message{}, ErrInvalidContent
	}
	parsed, err := uuid.Parse(recipientID)
	if err != nil {
		return models.Message{}, ErrRecipientNotFound
	}
	recipientID = parsed.String()
	if recipientID == senderID {
		return models.Message{}, ErrSelfMessage
	}

	exists, err := s.users.Exists(ctx, recipientID)
	if err != nil {
		return models.Message{}, fmt.Errorf("check recipient: %w", err)
	}
	if !exists {
		return models.Message{}, ErrRecipientNotFound
	}

	msg, err := s.messages.Create(ctx, models.Message{
		ID:          uuid.NewString(),
		SenderID:    senderID,
		RecipientID: recipientID,
		Content:     content,
		Timestamp:   s.clock.next(senderID),
	})
	if err != nil {
		return models.Message{}, err
	}

	senderName := ""
	if sender, err := s.users.GetByID(ctx, senderID); err == nil {
		senderName = sender.Username
	} else {
		s.log.Warn(ctx, "sender lookup for notification failed", "user_id", senderID, "error", err)
	}
	s.notifier.NotifyAsync(ctx, recipientID, push.MessageNotification(senderID, senderName, content))

	return msg, nil
}

// Conversation returns up to ConversationLimit messages between caller and
// other, oldest first, and marks the ones addressed to caller as read. The
// returned messages carry their read state from before the fetch.
func (s *MessageService) Conversation(ctx context.Context, callerID, otherID string) ([]models.Message, error) {
	parsed, err := uuid.Parse(otherID)
	if err != nil {
		return nil, ErrInvalidRecipientID
	}
	otherID = parsed.String()

	msgs, err := s.messages.Conversation(ctx, callerID, otherID, ConversationLimit)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}

	var unread []string
	for _, m := range msgs {
		if m.RecipientID == callerID && !m.Read {
			unread = append(unread, m.ID)
		}
	}
	if len(unread) > 0 {
		marked, err := s.messages.MarkRead(ctx, callerID, unread)
		if err != nil {
			return nil, fmt.Errorf("mark read: %w", err)
		}
		s.log.Debug(ctx, "messages marked read", "user_id", callerID, "count", marked)
	}
	return msgs, nil
}

func (s *MessageService) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.messages.UnreadCount(ctx, userID)
}

// Roster lists every other user, online first, then by username. Online
// state comes from live connections, not the stored flag.
func (s *MessageService) Roster(ctx context.Context, userID string) ([]models.User, error) {
	users, err := s.users.ListOthers(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	for i := range users {
		users[i].IsOnline = s.presence.IsOnline(users[i].ID)
	}
	sort.SliceStable(users, func(i, j int) bool {
		if users[i].IsOnline != users[j].IsOnline {
			return users[i].IsOnline
		}
		return users[i].Username < users[j].Username
	})
	return users, nil
}

// senderClock hands out strictly increasing timestamps per sender at the
// storage precision.
type senderClock struct {
	mu   sync.Mutex
	now  func() time.Time
	last map[string]time.Time
}

func newSenderClock(now func() time.Time) *senderClock {
	return &senderClock{now: now, last: make(map[string]time.Time)}
}

func (c *senderClock) next(senderID string) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts := c.now().UTC().Truncate(time.Microsecond)
	if last, ok := c.last[senderID]; ok && !ts.After(last) {
		ts = last.Add(time.Microsecond)
	}
	c.last[senderID] = ts
	return ts
}
