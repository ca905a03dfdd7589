// Package push delivers best-effort Web Push notifications to a user's
// registered endpoint and retires endpoints the push service reports gone.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"dm-service/internal/logging"
	"dm-service/internal/models"
	"dm-service/internal/observability"
)

var ErrSubscriptionGone = errors.New("push subscription gone")

const (
	defaultIcon = "/icons/icon-192x192.png"
	defaultTag  = "dm-message"
)

// Notification is what callers hand to the dispatcher.
type Notification struct {
	Title string
	Body  string
	Tag   string
	Data  map[string]any
}

// Payload is the JSON document the service worker receives.
type Payload struct {
	Title              string         `json:"title"`
	Body               string         `json:"body"`
	Icon               string         `json:"icon"`
	Badge              string         `json:"badge"`
	Tag                string         `json:"tag"`
	RequireInteraction bool           `json:"requireInteraction"`
	Vibrate            []int          `json:"vibrate"`
	Data               map[string]any `json:"data"`
	Timestamp          int64          `json:"timestamp"`
}

// Sender performs one delivery to a push service.
type Sender interface {
	Send(ctx context.Context, sub models.PushSubscription, payload []byte) error
}

// SubscriptionStore reads and retires stored endpoint descriptors.
type SubscriptionStore interface {
	GetPushSubscription(ctx context.Context, id string) (*models.PushSubscription, error)
	ClearPushSubscription(ctx context.Context, id string, endpoint string) error
}

// Notifier is the surface the message flow depends on.
type Notifier interface {
	Notify(ctx context.Context, recipientID string, n Notification) bool
	NotifyAsync(ctx context.Context, recipientID string, n Notification)
}

type Dispatcher struct {
	store   SubscriptionStore
	sender  Sender
	log     logging.Logger
	timeout time.Duration
	now     func() time.Time

	wg sync.WaitGroup
}

// NewDispatcher builds a dispatcher. A nil sender disables delivery; every
// Notify then reports false.
func NewDispatcher(store SubscriptionStore, sender Sender, timeout time.Duration, log logging.Logger) *Dispatcher {
	if sender == nil {
		log.Warn(context.Background(), "push notifications disabled", "reason", "vapid keys not configured")
	}
	return &Dispatcher{
		store:   store,
		sender:  sender,
		log:     log,
		timeout: timeout,
		now:     time.Now,
	}
}

func (d *Dispatcher) Enabled() bool {
	return d.sender != nil
}

// Notify attempts one delivery and reports whether the push service accepted
// it. Failures never propagate.
func (d *Dispatcher) Notify(ctx context.Context, recipientID string, n Notification) bool {
	if d.sender == nil {
		observability.IncPush("disabled")
		return false
	}

	sub, err := d.store.GetPushSubscription(ctx, recipientID)
	if err != nil {
		d.log.Warn(ctx, "push subscription lookup failed", "user_id", recipientID, "error", err)
		observability.IncPush("failed")
		return false
	}
	if sub == nil || !sub.Valid() {
		d.log.Debug(ctx, "user has no push subscription", "user_id", recipientID)
		observability.IncPush("skipped")
		return false
	}

	body, err := json.Marshal(d.buildPayload(n))
	if err != nil {
		d.log.Error(ctx, "push payload encode failed", "error", err)
		observability.IncPush("failed")
		return false
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	err = d.sender.Send(ctx, *sub, body)
	switch {
	case err == nil:
		d.log.Info(ctx, "push notification sent", "user_id", recipientID)
		observability.IncPush("sent")
		return true
	case errors.Is(err, ErrSubscriptionGone):
		d.log.Info(ctx, "push subscription expired, clearing", "user_id", recipientID)
		observability.IncPush("gone")
		if clearErr := d.store.ClearPushSubscription(context.WithoutCancel(ctx), recipientID, sub.Endpoint); clearErr != nil {
			d.log.Warn(ctx, "clear push subscription failed", "user_id", recipientID, "error", clearErr)
		}
		return false
	default:
		d.log.Warn(ctx, "push notification failed", "user_id", recipientID, "error", err)
		observability.IncPush("failed")
		return false
	}
}

// NotifyAsync runs Notify detached from ctx's cancellation. The outcome is
// only logged.
func (d *Dispatcher) NotifyAsync(ctx context.Context, recipientID string, n Notification) {
	detached := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.log.Error(detached, "push dispatch panicked", "user_id", recipientID, "panic", fmt.Sprint(r))
			}
		}()
		d.Notify(detached, recipientID, n)
	}()
}

// Wait blocks until in-flight async notifications finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) buildPayload(n Notification) Payload {
	tag := n.Tag
	if tag == "" {
		tag = defaultTag
	}
	data := n.Data
	if data == nil {
		data = map[string]any{}
	}
	if _, ok := data["url"]; !ok {
		data["url"] = "/"
	}
	return Payload{
		Title:              n.Title,
		Body:               n.Body,
		Icon:               defaultIcon,
		Badge:              defaultIcon,
		Tag:                tag,
		RequireInteraction: true,
		Vibrate:            []int{200, 100, 200},
		Data:               data,
		Timestamp:          d.now().UnixMilli(),
	}
}

// MessageNotification formats the notification for a new direct message.
func MessageNotification(senderID, senderName, content string) Notification {
	if senderName == "" {
		senderName = "Someone"
	}
	body := []rune(content)
	if len(body) > 100 {
		body = body[:100]
	}
	return Notification{
		Title: "New message from " + senderName,
		Body:  string(body),
		Tag:   "dm-" + senderID,
		Data: map[string]any{
			"url":        "/chat/" + senderID,
			"senderId":   senderID,
			"senderName": senderName,
		},
	}
}
