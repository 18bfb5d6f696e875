// Package chat stores direct messages and derives per-counterpart conversation
// summaries from them.
package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"vibeconnect/errs"
	"vibeconnect/events"
	"vibeconnect/models"
	"vibeconnect/utils"
)

// MaxContentLength bounds a single message body, in bytes.
const MaxContentLength = 4000

type Store interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUsers(ctx context.Context, ids []string) ([]models.User, error)

	InsertMessage(ctx context.Context, msg *models.Message) error
	FindMessageByClientID(ctx context.Context, senderID, clientID string) (*models.Message, error)
	ListMessagesBetween(ctx context.Context, a, b string) ([]models.Message, error)
	// ListMessagesFor returns every message sent or received by userID, newest first.
	ListMessagesFor(ctx context.Context, userID string) ([]models.Message, error)
	MarkRead(ctx context.Context, recipientID, senderID string) (int64, error)
}

type Service struct {
	store    Store
	notifier events.Notifier
	retry    *utils.Retrier
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string
}

func NewService(store Store, notifier events.Notifier, retry *utils.Retrier, logger *zap.Logger) *Service {
	return &Service{
		store:    store,
		notifier: notifier,
		retry:    retry,
		logger:   logger.Named("chat"),
		now:      time.Now,
		newID:    utils.GenerateUUID,
	}
}

type SendInput struct {
	SenderID    string
	RecipientID string
	Content     string
	ClientID    string
}

func (s *Service) getUser(ctx context.Context, id string) (*models.User, error) {
	var user *models.User
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		user, err = s.store.GetUser(ctx, id)
		return err
	})
	if errors.Is(err, errs.ErrNotFound) {
		return nil, errs.NotFound("user not found")
	}
	if err != nil {
		return nil, errs.Wrap(err, "failed to load user")
	}
	return user, nil
}

// Send persists a message and pushes it to both participants. A repeated send
// carrying the same client id returns the message stored the first time.
func (s *Service) Send(ctx context.Context, in SendInput) (*models.MessageResponse, error) {
	switch {
	case in.RecipientID == "":
		return nil, errs.InvalidInput("recipient is required")
	case strings.TrimSpace(in.Content) == "":
		return nil, errs.InvalidInput("content is required")
	case len(in.Content) > MaxContentLength:
		return nil, errs.InvalidInput("content must be at most %d bytes", MaxContentLength)
	case in.SenderID == in.RecipientID:
		return nil, errs.InvalidInput("cannot message yourself")
	}

	sender, err := s.getUser(ctx, in.SenderID)
	if err != nil {
		return nil, err
	}
	recipient, err := s.getUser(ctx, in.RecipientID)
	if err != nil {
		return nil, err
	}

	msg := &models.Message{
		ID:          s.newID(),
		SenderID:    sender.ID,
		RecipientID: recipient.ID,
		Content:     in.Content,
		ClientID:    in.ClientID,
		CreatedAt:   s.now().UTC(),
	}
	err = s.retry.Do(ctx, func(ctx context.Context) error {
		return s.store.InsertMessage(ctx, msg)
	})
	if errors.Is(err, errs.ErrDuplicate) && in.ClientID != "" {
		err = s.retry.Do(ctx, func(ctx context.Context) error {
			existing, err := s.store.FindMessageByClientID(ctx, sender.ID, in.ClientID)
			if err == nil {
				msg = existing
			}
			return err
		})
		if err != nil {
			return nil, errs.Wrap(err, "failed to load message")
		}
		s.logger.Debug("duplicate send", zap.String("sender", sender.ID), zap.String("client_id", in.ClientID))
		resp := expand(msg, sender, recipient)
		return &resp, nil
	}
	if err != nil {
		return nil, errs.Wrap(err, "failed to send message")
	}

	resp := expand(msg, sender, recipient)
	s.notifier.Notify(recipient.ID, events.Message, resp)
	s.notifier.Notify(sender.ID, events.Message, resp)
	return &resp, nil
}

// History returns the messages exchanged by userID and peerID, oldest first.
func (s *Service) History(ctx context.Context, userID, peerID string) ([]models.MessageResponse, error) {
	if peerID == "" {
		return nil, errs.InvalidInput("user id is required")
	}
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	peer, err := s.getUser(ctx, peerID)
	if err != nil {
		return nil, err
	}

	var msgs []models.Message
	err = s.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		msgs, err = s.store.ListMessagesBetween(ctx, user.ID, peer.ID)
		return err
	})
	if err != nil {
		return nil, errs.Wrap(err, "failed to load messages")
	}

	users := map[string]*models.User{user.ID: user, peer.ID: peer}
	out := make([]models.MessageResponse, 0, len(msgs))
	for i := range msgs {
		out = append(out, expand(&msgs[i], users[msgs[i].SenderID], users[msgs[i].RecipientID]))
	}
	return out, nil
}

// Conversations returns one summary per counterpart, most recent first.
func (s *Service) Conversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var msgs []models.Message
	err = s.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		msgs, err = s.store.ListMessagesFor(ctx, user.ID)
		return err
	})
	if err != nil {
		return nil, errs.Wrap(err, "failed to load messages")
	}

	latest := make(map[string]*models.Message)
	unread := make(map[string]int)
	var order []string
	for i := range msgs {
		peer := msgs[i].Counterpart(user.ID)
		if _, seen := latest[peer]; !seen {
			latest[peer] = &msgs[i]
			order = append(order, peer)
		}
		if msgs[i].RecipientID == user.ID && !msgs[i].Read {
			unread[peer]++
		}
	}
	if len(order) == 0 {
		return []models.Conversation{}, nil
	}

	var peers []models.User
	err = s.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		peers, err = s.store.GetUsers(ctx, order)
		return err
	})
	if err != nil {
		return nil, errs.Wrap(err, "failed to load users")
	}
	users := map[string]*models.User{user.ID: user}
	for i := range peers {
		users[peers[i].ID] = &peers[i]
	}

	out := make([]models.Conversation, 0, len(order))
	for _, peerID := range order {
		peer, ok := users[peerID]
		if !ok {
			// Counterpart profile was removed; its messages stay but are not listed.
			continue
		}
		msg := latest[peerID]
		out = append(out, models.Conversation{
			User:        peer.ToSummary(),
			LastMessage: expand(msg, users[msg.SenderID], users[msg.RecipientID]),
			Unread:      unread[peerID],
		})
	}
	return out, nil
}

// MarkRead marks every message from peerID to userID as read and returns how
// many changed.
func (s *Service) MarkRead(ctx context.Context, userID, peerID string) (int64, error) {
	if peerID == "" {
		return 0, errs.InvalidInput("user id is required")
	}
	if _, err := s.getUser(ctx, peerID); err != nil {
		return 0, err
	}
	var n int64
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		n, err = s.store.MarkRead(ctx, userID, peerID)
		return err
	})
	if err != nil {
		return 0, errs.Wrap(err, "failed to mark messages read")
	}
	return n, nil
}

func expand(msg *models.Message, sender, recipient *models.User) models.MessageResponse {
	return models.MessageResponse{
		ID:        msg.ID,
		Sender:    sender.ToSummary(),
		Recipient: recipient.ToSummary(),
		Content:   msg.Content,
		ClientID:  msg.ClientID,
		Read:      msg.Read,
		CreatedAt: msg.CreatedAt,
	}
}
