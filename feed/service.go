// Package feed aggregates posts from a user and their friends and handles likes
// and comments.
package feed

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

const (
	MaxPostLength    = 5000
	MaxCommentLength = 1000
)

type Store interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUsers(ctx context.Context, ids []string) ([]models.User, error)

	InsertPost(ctx context.Context, post *models.Post) error
	GetPost(ctx context.Context, id string) (*models.Post, error)
	UpdatePostContent(ctx context.Context, id, content string, at time.Time) error
	DeletePost(ctx context.Context, id string) error
	// ListPostsByAuthors returns posts newest first.
	ListPostsByAuthors(ctx context.Context, authorIDs []string) ([]models.Post, error)
	ToggleLike(ctx context.Context, postID, userID string) (bool, error)
	AppendComment(ctx context.Context, postID string, comment models.Comment) error
	DeleteComment(ctx context.Context, postID, commentID string) error
}

// FriendSource supplies the friend ids a feed is built from.
type FriendSource interface {
	FriendIDs(ctx context.Context, userID string) ([]string, error)
}

type PostEvent struct {
	Post models.PostResponse `json:"post"`
}

type LikeEvent struct {
	PostID string             `json:"postId"`
	User   models.UserSummary `json:"user"`
	Liked  bool               `json:"liked"`
	Likes  []string           `json:"likes"`
}

type CommentEvent struct {
	PostID  string                 `json:"postId"`
	Comment models.CommentResponse `json:"comment"`
}

type Service struct {
	store    Store
	friends  FriendSource
	notifier events.Notifier
	retry    *utils.Retrier
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string
}

func NewService(store Store, friends FriendSource, notifier events.Notifier, retry *utils.Retrier, logger *zap.Logger) *Service {
	return &Service{
		store:    store,
		friends:  friends,
		notifier: notifier,
		retry:    retry,
		logger:   logger.Named("feed"),
		now:      time.Now,
		newID:    utils.GenerateUUID,
	}
}

type CreatePostInput struct {
	AuthorID string
	Content  string
	ImageURL string
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

func (s *Service) getPost(ctx context.Context, id string) (*models.Post, error) {
	if id == "" {
		return nil, errs.InvalidInput("post id is required")
	}
	var post *models.Post
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		post, err = s.store.GetPost(ctx, id)
		return err
	})
	if errors.Is(err, errs.ErrNotFound) {
		return nil, errs.NotFound("post not found")
	}
	if err != nil {
		return nil, errs.Wrap(err, "failed to load post")
	}
	return post, nil
}

// expand resolves the author of the post and of every comment.
func (s *Service) expand(ctx context.Context, posts []models.Post) ([]models.PostResponse, error) {
	seen := make(map[string]bool)
	var ids []string
	add := func(id string) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for i := range posts {
		add(posts[i].AuthorID)
		for _, c := range posts[i].Comments {
			add(c.AuthorID)
		}
	}

	users := make(map[string]models.UserSummary, len(ids))
	if len(ids) > 0 {
		var found []models.User
		err := s.retry.Do(ctx, func(ctx context.Context) error {
			var err error
			found, err = s.store.GetUsers(ctx, ids)
			return err
		})
		if err != nil {
			return nil, errs.Wrap(err, "failed to load users")
		}
		for i := range found {
			users[found[i].ID] = found[i].ToSummary()
		}
	}
	summary := func(id string) models.UserSummary {
		if u, ok := users[id]; ok {
			return u
		}
		return models.UserSummary{ID: id}
	}

	out := make([]models.PostResponse, 0, len(posts))
	for i := range posts {
		p := &posts[i]
		comments := make([]models.CommentResponse, 0, len(p.Comments))
		for _, c := range p.Comments {
			comments = append(comments, models.CommentResponse{
				ID:        c.ID,
				Author:    summary(c.AuthorID),
				Text:      c.Text,
				CreatedAt: c.CreatedAt,
			})
		}
		likes := p.Likes
		if likes == nil {
			likes = []string{}
		}
		out = append(out, models.PostResponse{
			ID:        p.ID,
			Author:    summary(p.AuthorID),
			Content:   p.Content,
			ImageURL:  p.ImageURL,
			Likes:     likes,
			Comments:  comments,
			CreatedAt: p.CreatedAt,
			UpdatedAt: p.UpdatedAt,
		})
	}
	return out, nil
}

func (s *Service) expandOne(ctx context.Context, post *models.Post) (*models.PostResponse, error) {
	out, err := s.expand(ctx, []models.Post{*post})
	if err != nil {
		return nil, err
	}
	return &out[0], nil
}

func (s *Service) listByAuthors(ctx context.Context, authorIDs []string) ([]models.PostResponse, error) {
	var posts []models.Post
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		posts, err = s.store.ListPostsByAuthors(ctx, authorIDs)
		return err
	})
	if err != nil {
		return nil, errs.Wrap(err, "failed to load posts")
	}
	return s.expand(ctx, posts)
}

// Feed returns posts by userID and their friends, newest first.
func (s *Service) Feed(ctx context.Context, userID string) ([]models.PostResponse, error) {
	if _, err := s.getUser(ctx, userID); err != nil {
		return nil, err
	}
	friendIDs, err := s.friends.FriendIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.listByAuthors(ctx, append(friendIDs, userID))
}

func (s *Service) PostsByUser(ctx context.Context, userID string) ([]models.PostResponse, error) {
	if _, err := s.getUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.listByAuthors(ctx, []string{userID})
}

func (s *Service) CreatePost(ctx context.Context, in CreatePostInput) (*models.PostResponse, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" && in.ImageURL == "" {
		return nil, errs.InvalidInput("content or image is required")
	}
	if len(content) > MaxPostLength {
		return nil, errs.InvalidInput("content must be at most %d bytes", MaxPostLength)
	}
	if _, err := s.getUser(ctx, in.AuthorID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	post := &models.Post{
		ID:        s.newID(),
		AuthorID:  in.AuthorID,
		Content:   content,
		ImageURL:  in.ImageURL,
		Likes:     []string{},
		Comments:  []models.Comment{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		return s.store.InsertPost(ctx, post)
	})
	if err != nil {
		return nil, errs.Wrap(err, "failed to create post")
	}

	resp, err := s.expandOne(ctx, post)
	if err != nil {
		return nil, err
	}

	friendIDs, err := s.friends.FriendIDs(ctx, in.AuthorID)
	if err != nil {
		s.logger.Warn("skipping post fanout", zap.String("post", post.ID), zap.Error(err))
		friendIDs = nil
	}
	for _, id := range append(friendIDs, in.AuthorID) {
		s.notifier.Notify(id, events.PostCreated, PostEvent{Post: *resp})
	}
	return resp, nil
}

// ownPost loads a post and checks that userID wrote it.
func (s *Service) ownPost(ctx context.Context, postID, userID string) (*models.Post, error) {
	post, err := s.getPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.AuthorID != userID {
		return nil, errs.Forbidden("not authorized to modify this post")
	}
	return post, nil
}

func (s *Service) UpdatePost(ctx context.Context, postID, userID, content string) (*models.PostResponse, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, errs.InvalidInput("content is required")
	}
	if len(content) > MaxPostLength {
		return nil, errs.InvalidInput("content must be at most %d bytes", MaxPostLength)
	}
	post, err := s.ownPost(ctx, postID, userID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	err = s.retry.Do(ctx, func(ctx context.Context) error {
		return s.store.UpdatePostContent(ctx, post.ID, content, now)
	})
	if errors.Is(err, errs.ErrNotFound) {
		return nil, errs.NotFound("post not found")
	}
	if err != nil {
		return nil, errs.Wrap(err, "failed to update post")
	}
	post.Content = content
	post.UpdatedAt = now
	return s.expandOne(ctx, post)
}

func (s *Service) DeletePost(ctx context.Context, postID, userID string) error {
	post, err := s.ownPost(ctx, postID, userID)
	if err != nil {
		return err
	}
	err = s.retry.Do(ctx, func(ctx context.Context) error {
		return s.store.DeletePost(ctx, post.ID)
	})
	if errors.Is(err, errs.ErrNotFound) {
		return errs.NotFound("post not found")
	}
	return errs.Wrap(err, "failed to delete post")
}

// ToggleLike adds userID to the post's likes, or removes it if already present.
func (s *Service) ToggleLike(ctx context.Context, postID, userID string) (*models.PostResponse, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if _, err := s.getPost(ctx, postID); err != nil {
		return nil, err
	}

	var liked bool
	err = s.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		liked, err = s.store.ToggleLike(ctx, postID, user.ID)
		return err
	})
	if errors.Is(err, errs.ErrNotFound) {
		return nil, errs.NotFound("post not found")
	}
	if err != nil {
		return nil, errs.Wrap(err, "failed to toggle like")
	}

	post, err := s.getPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	resp, err := s.expandOne(ctx, post)
	if err != nil {
		return nil, err
	}

	evt := LikeEvent{PostID: post.ID, User: user.ToSummary(), Liked: liked, Likes: resp.Likes}
	s.notifier.Notify(post.AuthorID, events.PostLiked, evt)
	if user.ID != post.AuthorID {
		s.notifier.Notify(user.ID, events.PostLiked, evt)
	}
	return resp, nil
}

func (s *Service) AddComment(ctx context.Context, postID, userID, text string) (*models.PostResponse, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errs.InvalidInput("text is required")
	}
	if len(text) > MaxCommentLength {
		return nil, errs.InvalidInput("text must be at most %d bytes", MaxCommentLength)
	}
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	post, err := s.getPost(ctx, postID)
	if err != nil {
		return nil, err
	}

	comment := models.Comment{
		ID:        s.newID(),
		AuthorID:  user.ID,
		Text:      text,
		CreatedAt: s.now().UTC(),
	}
	err = s.retry.Do(ctx, func(ctx context.Context) error {
		return s.store.AppendComment(ctx, post.ID, comment)
	})
	if errors.Is(err, errs.ErrNotFound) {
		return nil, errs.NotFound("post not found")
	}
	if err != nil {
		return nil, errs.Wrap(err, "failed to add comment")
	}

	// Recipients are the author, earlier commenters and the actor.
	targets := map[string]bool{post.AuthorID: true, user.ID: true}
	for _, c := range post.Comments {
		targets[c.AuthorID] = true
	}

	post.Comments = append(post.Comments, comment)
	resp, err := s.expandOne(ctx, post)
	if err != nil {
		return nil, err
	}

	evt := CommentEvent{PostID: post.ID, Comment: resp.Comments[len(resp.Comments)-1]}
	for id := range targets {
		s.notifier.Notify(id, events.PostCommented, evt)
	}
	return resp, nil
}

func (s *Service) DeleteComment(ctx context.Context, postID, commentID, userID string) error {
	post, err := s.getPost(ctx, postID)
	if err != nil {
		return err
	}
	comment, ok := post.FindComment(commentID)
	if !ok {
		return errs.NotFound("comment not found")
	}
	if comment.AuthorID != userID {
		return errs.Forbidden("not authorized to delete this comment")
	}

	err = s.retry.Do(ctx, func(ctx context.Context) error {
		return s.store.DeleteComment(ctx, post.ID, commentID)
	})
	if errors.Is(err, errs.ErrNotFound) {
		return errs.NotFound("comment not found")
	}
	return errs.Wrap(err, "failed to delete comment")
}
