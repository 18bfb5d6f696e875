// Package users manages profile records. Identity itself is issued elsewhere;
// a profile is created the first time its owner saves it.
package users

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"vibeconnect/errs"
	"vibeconnect/models"
	"vibeconnect/utils"
)

const (
	MaxUsernameLength = 32
	MaxBioLength      = 500
)

type Store interface {
	UpsertUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
}

type ProfileInput struct {
	Username    string `json:"username" binding:"required,notblank,max=32"`
	DisplayName string `json:"displayName" binding:"max=64"`
	AvatarURL   string `json:"avatarUrl" binding:"max=512"`
	Bio         string `json:"bio" binding:"max=500"`
}

type Service struct {
	store  Store
	retry  *utils.Retrier
	logger *zap.Logger
	now    func() time.Time
}

func NewService(store Store, retry *utils.Retrier, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		retry:  retry,
		logger: logger.Named("users"),
		now:    time.Now,
	}
}

func (s *Service) Get(ctx context.Context, id string) (*models.User, error) {
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

// Save creates or replaces the profile of userID. Usernames are unique.
func (s *Service) Save(ctx context.Context, userID string, in ProfileInput) (*models.User, error) {
	username := strings.TrimSpace(in.Username)
	switch {
	case userID == "":
		return nil, errs.Unauthenticated("missing user")
	case username == "":
		return nil, errs.InvalidInput("username is required")
	case len(username) > MaxUsernameLength:
		return nil, errs.InvalidInput("username must be at most %d characters", MaxUsernameLength)
	case strings.ContainsAny(username, " \t\n"):
		return nil, errs.InvalidInput("username must not contain whitespace")
	case len(in.Bio) > MaxBioLength:
		return nil, errs.InvalidInput("bio must be at most %d characters", MaxBioLength)
	}

	displayName := strings.TrimSpace(in.DisplayName)
	if displayName == "" {
		displayName = username
	}
	now := s.now().UTC()
	user := &models.User{
		ID:          userID,
		Username:    username,
		DisplayName: displayName,
		AvatarURL:   strings.TrimSpace(in.AvatarURL),
		Bio:         strings.TrimSpace(in.Bio),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.retry.Do(ctx, func(ctx context.Context) error {
		return s.store.UpsertUser(ctx, user)
	})
	if errors.Is(err, errs.ErrDuplicate) {
		return nil, errs.Conflict("username already taken")
	}
	if err != nil {
		return nil, errs.Wrap(err, "failed to save profile")
	}
	s.logger.Debug("profile saved", zap.String("user_id", userID))
	return user, nil
}
