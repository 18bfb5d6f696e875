// Package memory is a process-local store. It backs STORE_DRIVER=memory and the
// service tests; every method is atomic under a single mutex.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"vibeconnect/errs"
	"vibeconnect/models"
)

type Store struct {
	mu            sync.RWMutex
	users         map[string]models.User
	relationships map[[2]string]models.Relationship
	messages      []models.Message
	posts         map[string]models.Post
}

func New() *Store {
	return &Store{
		users:         make(map[string]models.User),
		relationships: make(map[[2]string]models.Relationship),
		posts:         make(map[string]models.Post),
	}
}

func pairKey(a, b string) [2]string {
	low, high := models.OrderPair(a, b)
	return [2]string{low, high}
}

// Users

func (s *Store) UpsertUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, u := range s.users {
		if id != user.ID && u.Username == user.Username {
			return errs.ErrDuplicate
		}
	}
	if existing, ok := s.users[user.ID]; ok {
		user.CreatedAt = existing.CreatedAt
	}
	s.users[user.ID] = *user
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &u, nil
}

func (s *Store) GetUsers(ctx context.Context, ids []string) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *Store) ListUsersExcluding(ctx context.Context, exclude []string, limit int) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	skip := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}
	out := make([]models.User, 0)
	for _, u := range s.users {
		if !skip[u.ID] {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Relationships

func (s *Store) GetRelationship(ctx context.Context, a, b string) (*models.Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rel, ok := s.relationships[pairKey(a, b)]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &rel, nil
}

func (s *Store) CreateRelationship(ctx context.Context, rel models.Relationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := [2]string{rel.UserLow, rel.UserHigh}
	if _, ok := s.relationships[key]; ok {
		return errs.ErrDuplicate
	}
	s.relationships[key] = rel
	return nil
}

func (s *Store) AcceptRelationship(ctx context.Context, requester, target string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey(requester, target)
	rel, ok := s.relationships[key]
	if !ok || rel.State != models.StatePending || rel.RequesterID != requester {
		return errs.ErrNotFound
	}
	rel.State = models.StateFriends
	rel.UpdatedAt = at
	s.relationships[key] = rel
	return nil
}

func (s *Store) DeletePendingRelationship(ctx context.Context, requester, target string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey(requester, target)
	rel, ok := s.relationships[key]
	if !ok || rel.State != models.StatePending || rel.RequesterID != requester {
		return errs.ErrNotFound
	}
	delete(s.relationships, key)
	return nil
}

func (s *Store) DeleteFriendship(ctx context.Context, a, b string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey(a, b)
	if rel, ok := s.relationships[key]; ok && rel.State == models.StateFriends {
		delete(s.relationships, key)
	}
	return nil
}

func (s *Store) ListRelationships(ctx context.Context, userID string) ([]models.Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Relationship, 0)
	for _, rel := range s.relationships {
		if rel.UserLow == userID || rel.UserHigh == userID {
			out = append(out, rel)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].Other(userID) < out[j].Other(userID)
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// Messages

func (s *Store) InsertMessage(ctx context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.ID == msg.ID {
			return errs.ErrDuplicate
		}
		if msg.ClientID != "" && m.SenderID == msg.SenderID && m.ClientID == msg.ClientID {
			return errs.ErrDuplicate
		}
	}
	s.messages = append(s.messages, *msg)
	return nil
}

func (s *Store) FindMessageByClientID(ctx context.Context, senderID, clientID string) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.messages {
		if m.SenderID == senderID && m.ClientID == clientID {
			return &m, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (s *Store) ListMessagesBetween(ctx context.Context, a, b string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Message, 0)
	for _, m := range s.messages {
		if m.Involves(a, b) {
			out = append(out, m)
		}
	}
	sortMessagesAsc(out)
	return out, nil
}

func (s *Store) ListMessagesFor(ctx context.Context, userID string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Message, 0)
	for _, m := range s.messages {
		if m.SenderID == userID || m.RecipientID == userID {
			out = append(out, m)
		}
	}
	sortMessagesAsc(out)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *Store) MarkRead(ctx context.Context, recipientID, senderID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for i := range s.messages {
		m := &s.messages[i]
		if m.SenderID == senderID && m.RecipientID == recipientID && !m.Read {
			m.Read = true
			n++
		}
	}
	return n, nil
}

func sortMessagesAsc(msgs []models.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
}

// Posts

func clonePost(p models.Post) models.Post {
	p.Likes = append([]string{}, p.Likes...)
	p.Comments = append([]models.Comment{}, p.Comments...)
	return p
}

func (s *Store) InsertPost(ctx context.Context, post *models.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[post.ID]; ok {
		return errs.ErrDuplicate
	}
	s.posts[post.ID] = clonePost(*post)
	return nil
}

func (s *Store) GetPost(ctx context.Context, id string) (*models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.posts[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	p = clonePost(p)
	return &p, nil
}

func (s *Store) UpdatePostContent(ctx context.Context, id, content string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok {
		return errs.ErrNotFound
	}
	p.Content = content
	p.UpdatedAt = at
	s.posts[id] = p
	return nil
}

func (s *Store) DeletePost(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[id]; !ok {
		return errs.ErrNotFound
	}
	delete(s.posts, id)
	return nil
}

func (s *Store) ListPostsByAuthors(ctx context.Context, authorIDs []string) ([]models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	authors := make(map[string]bool, len(authorIDs))
	for _, id := range authorIDs {
		authors[id] = true
	}
	out := make([]models.Post, 0)
	for _, p := range s.posts {
		if authors[p.AuthorID] {
			out = append(out, clonePost(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) ToggleLike(ctx context.Context, postID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[postID]
	if !ok {
		return false, errs.ErrNotFound
	}
	for i, id := range p.Likes {
		if id == userID {
			p.Likes = append(p.Likes[:i:i], p.Likes[i+1:]...)
			s.posts[postID] = p
			return false, nil
		}
	}
	p.Likes = append(p.Likes[:len(p.Likes):len(p.Likes)], userID)
	s.posts[postID] = p
	return true, nil
}

func (s *Store) AppendComment(ctx context.Context, postID string, comment models.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[postID]
	if !ok {
		return errs.ErrNotFound
	}
	p.Comments = append(p.Comments[:len(p.Comments):len(p.Comments)], comment)
	s.posts[postID] = p
	return nil
}

func (s *Store) DeleteComment(ctx context.Context, postID, commentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[postID]
	if !ok {
		return errs.ErrNotFound
	}
	for i, c := range p.Comments {
		if c.ID == commentID {
			p.Comments = append(p.Comments[:i:i], p.Comments[i+1:]...)
			s.posts[postID] = p
			return nil
		}
	}
	return errs.ErrNotFound
}
