// Package graph owns the friendship state machine. Each user pair is stored as a
// single relationship record, so every transition is one conditional write and
// both users' views change together.
package graph

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"vibeconnect/errs"
	"vibeconnect/events"
	"vibeconnect/models"
	"vibeconnect/utils"
)

// SuggestionLimit caps the suggestion candidate pool.
const SuggestionLimit = 20

type Store interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUsers(ctx context.Context, ids []string) ([]models.User, error)
	ListUsersExcluding(ctx context.Context, exclude []string, limit int) ([]models.User, error)

	GetRelationship(ctx context.Context, a, b string) (*models.Relationship, error)
	CreateRelationship(ctx context.Context, rel models.Relationship) error
	AcceptRelationship(ctx context.Context, requester, target string, at time.Time) error
	DeletePendingRelationship(ctx context.Context, requester, target string) error
	DeleteFriendship(ctx context.Context, a, b string) error
	ListRelationships(ctx context.Context, userID string) ([]models.Relationship, error)
}

// FriendEvent is the payload of incomingFriendRequest and friendRequestAccepted.
type FriendEvent struct {
	From models.UserSummary `json:"from"`
}

type Service struct {
	store    Store
	notifier events.Notifier
	retry    *utils.Retrier
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(store Store, notifier events.Notifier, retry *utils.Retrier, logger *zap.Logger) *Service {
	return &Service{
		store:    store,
		notifier: notifier,
		retry:    retry,
		logger:   logger.Named("graph"),
		now:      time.Now,
	}
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

// pair loads both users of an operation, rejecting self-relations.
func (s *Service) pair(ctx context.Context, actorID, targetID string) (*models.User, *models.User, error) {
	if targetID == "" {
		return nil, nil, errs.InvalidInput("user id is required")
	}
	if actorID == targetID {
		return nil, nil, errs.InvalidInput("cannot target yourself")
	}
	actor, err := s.getUser(ctx, actorID)
	if err != nil {
		return nil, nil, err
	}
	target, err := s.getUser(ctx, targetID)
	if err != nil {
		return nil, nil, err
	}
	return actor, target, nil
}

func (s *Service) relationship(ctx context.Context, a, b string) (*models.Relationship, error) {
	var rel *models.Relationship
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		rel, err = s.store.GetRelationship(ctx, a, b)
		return err
	})
	if errors.Is(err, errs.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Wrap(err, "failed to load relationship")
	}
	return rel, nil
}

// SendRequest records a pending request from actor to target.
func (s *Service) SendRequest(ctx context.Context, actorID, targetID string) error {
	actor, target, err := s.pair(ctx, actorID, targetID)
	if err != nil {
		return err
	}

	rel := models.NewRelationship(actor.ID, target.ID, models.StatePending, s.now())
	err = s.retry.Do(ctx, func(ctx context.Context) error {
		return s.store.CreateRelationship(ctx, rel)
	})
	if errors.Is(err, errs.ErrDuplicate) {
		existing, gerr := s.relationship(ctx, actor.ID, target.ID)
		if gerr != nil {
			return gerr
		}
		switch models.StatusFor(existing, actor.ID) {
		case models.StatusFriends:
			return errs.Conflict("already friends")
		case models.StatusSent:
			return errs.Conflict("friend request already sent")
		case models.StatusReceived:
			return errs.Conflict("this user already sent you a friend request")
		}
		return errs.Conflict("relationship changed concurrently, try again")
	}
	if err != nil {
		return errs.Wrap(err, "failed to send friend request")
	}

	s.logger.Debug("friend request sent", zap.String("from", actor.ID), zap.String("to", target.ID))
	s.notifier.Notify(target.ID, events.IncomingFriendRequest, FriendEvent{From: actor.ToSummary()})
	return nil
}

// AcceptRequest turns target's pending request to actor into a friendship.
func (s *Service) AcceptRequest(ctx context.Context, actorID, targetID string) error {
	actor, target, err := s.pair(ctx, actorID, targetID)
	if err != nil {
		return err
	}

	err = s.retry.Do(ctx, func(ctx context.Context) error {
		return s.store.AcceptRelationship(ctx, target.ID, actor.ID, s.now())
	})
	if errors.Is(err, errs.ErrNotFound) {
		return errs.InvalidState("no pending friend request from this user")
	}
	if err != nil {
		return errs.Wrap(err, "failed to accept friend request")
	}

	s.logger.Debug("friend request accepted", zap.String("by", actor.ID), zap.String("requester", target.ID))
	s.notifier.Notify(target.ID, events.FriendRequestAccepted, FriendEvent{From: actor.ToSummary()})
	return nil
}

// RejectRequest drops target's pending request to actor.
func (s *Service) RejectRequest(ctx context.Context, actorID, targetID string) error {
	actor, target, err := s.pair(ctx, actorID, targetID)
	if err != nil {
		return err
	}
	err = s.retry.Do(ctx, func(ctx context.Context) error {
		return s.store.DeletePendingRelationship(ctx, target.ID, actor.ID)
	})
	if errors.Is(err, errs.ErrNotFound) {
		return errs.InvalidState("no pending friend request from this user")
	}
	return errs.Wrap(err, "failed to reject friend request")
}

// CancelRequest withdraws actor's own pending request to target.
func (s *Service) CancelRequest(ctx context.Context, actorID, targetID string) error {
	actor, target, err := s.pair(ctx, actorID, targetID)
	if err != nil {
		return err
	}
	err = s.retry.Do(ctx, func(ctx context.Context) error {
		return s.store.DeletePendingRelationship(ctx, actor.ID, target.ID)
	})
	if errors.Is(err, errs.ErrNotFound) {
		return errs.InvalidState("no pending friend request to this user")
	}
	return errs.Wrap(err, "failed to cancel friend request")
}

// Unfriend removes a friendship. Unfriending a non-friend succeeds without change.
func (s *Service) Unfriend(ctx context.Context, actorID, targetID string) error {
	actor, target, err := s.pair(ctx, actorID, targetID)
	if err != nil {
		return err
	}
	err = s.retry.Do(ctx, func(ctx context.Context) error {
		return s.store.DeleteFriendship(ctx, actor.ID, target.ID)
	})
	return errs.Wrap(err, "failed to unfriend")
}

func (s *Service) Status(ctx context.Context, actorID, targetID string) (models.FriendStatus, error) {
	actor, target, err := s.pair(ctx, actorID, targetID)
	if err != nil {
		return "", err
	}
	rel, err := s.relationship(ctx, actor.ID, target.ID)
	if err != nil {
		return "", err
	}
	return models.StatusFor(rel, actor.ID), nil
}

func (s *Service) relatedIDs(ctx context.Context, userID string, kinds ...models.RelationKind) ([]string, error) {
	var rels []models.Relationship
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		rels, err = s.store.ListRelationships(ctx, userID)
		return err
	})
	if err != nil {
		return nil, errs.Wrap(err, "failed to list relationships")
	}

	ids := make([]string, 0, len(rels))
	for i := range rels {
		for _, kind := range kinds {
			if kind.Matches(&rels[i], userID) {
				ids = append(ids, rels[i].Other(userID))
				break
			}
		}
	}
	return ids, nil
}

func (s *Service) list(ctx context.Context, userID string, kind models.RelationKind) ([]models.UserSummary, error) {
	if _, err := s.getUser(ctx, userID); err != nil {
		return nil, err
	}
	ids, err := s.relatedIDs(ctx, userID, kind)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []models.UserSummary{}, nil
	}

	var users []models.User
	err = s.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		users, err = s.store.GetUsers(ctx, ids)
		return err
	})
	if err != nil {
		return nil, errs.Wrap(err, "failed to load users")
	}
	return models.Summaries(users), nil
}

func (s *Service) Friends(ctx context.Context, userID string) ([]models.UserSummary, error) {
	return s.list(ctx, userID, models.RelationFriends)
}

func (s *Service) ReceivedRequests(ctx context.Context, userID string) ([]models.UserSummary, error) {
	return s.list(ctx, userID, models.RelationRequestsReceived)
}

func (s *Service) SentRequests(ctx context.Context, userID string) ([]models.UserSummary, error) {
	return s.list(ctx, userID, models.RelationRequestsSent)
}

// FriendIDs returns the ids of userID's friends.
func (s *Service) FriendIDs(ctx context.Context, userID string) ([]string, error) {
	return s.relatedIDs(ctx, userID, models.RelationFriends)
}

// Suggestions returns up to SuggestionLimit users with no relationship to userID.
func (s *Service) Suggestions(ctx context.Context, userID string) ([]models.UserSummary, error) {
	if _, err := s.getUser(ctx, userID); err != nil {
		return nil, err
	}
	related, err := s.relatedIDs(ctx, userID,
		models.RelationFriends, models.RelationRequestsSent, models.RelationRequestsReceived)
	if err != nil {
		return nil, err
	}
	exclude := append(related, userID)

	var users []models.User
	err = s.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		users, err = s.store.ListUsersExcluding(ctx, exclude, SuggestionLimit)
		return err
	})
	if err != nil {
		return nil, errs.Wrap(err, "failed to list suggestions")
	}
	return models.Summaries(users), nil
}

// CanRelay decides whether a client-originated relay event from one user may
// reach another.
func (s *Service) CanRelay(ctx context.Context, fromID, toID, event string) bool {
	if fromID == toID {
		return event != events.FriendRequest && event != events.FriendAccepted
	}
	rel, err := s.relationship(ctx, fromID, toID)
	if err != nil {
		s.logger.Warn("relay check failed", zap.Error(err))
		return false
	}
	status := models.StatusFor(rel, fromID)
	switch event {
	case events.FriendRequest:
		return status == models.StatusSent
	case events.FriendAccepted:
		return status == models.StatusFriends
	default:
		return status == models.StatusFriends
	}
}
