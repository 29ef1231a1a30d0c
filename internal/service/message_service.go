package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"gitlab.com/yelinaung/sharedbudget/internal/changefeed"
	"gitlab.com/yelinaung/sharedbudget/internal/logger"
	"gitlab.com/yelinaung/sharedbudget/internal/models"
	"gitlab.com/yelinaung/sharedbudget/internal/store"
)

// MessageEvents is notified after a chat message is stored.
type MessageEvents interface {
	PublishMessageSent(ctx context.Context, msg *models.Message) error
}

// MessageService appends to and streams group chat logs.
type MessageService struct {
	store  store.Store
	feed   changefeed.Subscriber
	events MessageEvents
	clock  Clock
}

// NewMessageService creates a MessageService. feed is needed for Subscribe;
// events may be nil.
func NewMessageService(st store.Store, feed changefeed.Subscriber, events MessageEvents, clock Clock) *MessageService {
	return &MessageService{store: st, feed: feed, events: events, clock: clock}
}

// Send appends a text message from uid to the group's chat. The sender has
// read their own message.
func (s *MessageService) Send(ctx context.Context, uid, groupID, text string) (_ *models.Message, err error) {
	ctx, span := startSpan(ctx, "MessageService.Send")
	defer func() { endSpan(span, err) }()

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, models.ErrEmptyMessage
	}
	group, err := loadGroupAsMember(ctx, s.store, groupID, uid)
	if err != nil {
		return nil, err
	}

	senderName := models.UnknownName
	if i := group.MemberIndex(uid); i >= 0 && group.Members[i].Name != "" {
		senderName = group.Members[i].Name
	}

	msg := &models.Message{
		ID:         uuid.NewString(),
		GroupID:    groupID,
		Text:       text,
		Type:       models.MessageTypeText,
		SenderID:   uid,
		SenderName: senderName,
		Timestamp:  s.clock.now(),
		ReadBy:     []string{uid},
	}
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}
	messagesSent.Add(ctx, 1)

	if s.events != nil {
		if err := s.events.PublishMessageSent(ctx, msg); err != nil {
			logger.Log.Warn().Err(err).Str(logFieldGroup, groupID).Msg("Failed to publish message event")
		}
	}

	logger.Log.Debug().
		Str(logFieldUser, logger.HashUserID(uid)).
		Str(logFieldGroup, groupID).
		Str("text", logger.SanitizeMessage(text)).
		Msg("Message sent")
	return msg, nil
}

// List returns the group's chat log in timestamp order.
func (s *MessageService) List(ctx context.Context, uid, groupID string) ([]models.Message, error) {
	if _, err := loadGroupAsMember(ctx, s.store, groupID, uid); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, groupID)
}

// MarkRead adds uid to the readers of every message in the group and returns
// how many messages changed.
func (s *MessageService) MarkRead(ctx context.Context, uid, groupID string) (int, error) {
	if _, err := loadGroupAsMember(ctx, s.store, groupID, uid); err != nil {
		return 0, err
	}
	n, err := s.store.MarkRead(ctx, groupID, uid)
	if err != nil {
		return 0, fmt.Errorf("failed to mark messages read: %w", err)
	}
	return n, nil
}

// UnreadCount counts the group's messages uid has not read.
func (s *MessageService) UnreadCount(ctx context.Context, uid, groupID string) (int, error) {
	msgs, err := s.List(ctx, uid, groupID)
	if err != nil {
		return 0, err
	}
	n := 0
	for i := range msgs {
		if !msgs[i].IsReadBy(uid) {
			n++
		}
	}
	return n, nil
}

// Subscribe calls onUpdate with the full chat log now and after every change
// until the returned unsubscribe function is called or ctx ends. Unsubscribe
// is idempotent and waits for a running onUpdate; do not call it from inside
// onUpdate.
func (s *MessageService) Subscribe(
	ctx context.Context,
	uid, groupID string,
	onUpdate func([]models.Message),
) (func(), error) {
	if s.feed == nil {
		return nil, errors.New("message subscriptions need a change feed")
	}
	if _, err := loadGroupAsMember(ctx, s.store, groupID, uid); err != nil {
		return nil, err
	}

	// Subscribe before the first read so no change can slip in between.
	sub := s.feed.Subscribe(changefeed.TopicMessages, groupID)
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			msgs, err := s.store.ListMessages(ctx, groupID)
			switch {
			case err == nil:
				onUpdate(msgs)
			case ctx.Err() != nil:
				return
			default:
				logger.Log.Warn().Err(err).Str(logFieldGroup, groupID).Msg("Failed to load messages for subscriber")
			}

			select {
			case <-ctx.Done():
				return
			case <-sub.C:
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			sub.Stop()
			<-done
		})
	}, nil
}
