package feed

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"vibeconnect/database/memory"
	"vibeconnect/errs"
	"vibeconnect/events"
	"vibeconnect/graph"
	"vibeconnect/models"
	"vibeconnect/utils"
)

type fixture struct {
	feed     *Service
	graph    *graph.Service
	recorder *events.Recorder
}

func newFixture(t *testing.T, users ...string) *fixture {
	t.Helper()
	store := memory.New()
	for _, id := range users {
		require.NoError(t, store.UpsertUser(context.Background(), &models.User{ID: id, Username: id}))
	}
	recorder := &events.Recorder{}
	logger := zap.NewNop()
	retry := utils.NewRetrier(time.Second, 1, logger)

	graphSvc := graph.NewService(store, recorder, retry, logger)
	feedSvc := NewService(store, graphSvc, recorder, retry, logger)

	clock := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	seq := 0
	feedSvc.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	feedSvc.newID = func() string {
		seq++
		return fmt.Sprintf("id%03d", seq)
	}
	return &fixture{feed: feedSvc, graph: graphSvc, recorder: recorder}
}

func (f *fixture) post(t *testing.T, author, content string) *models.PostResponse {
	t.Helper()
	p, err := f.feed.CreatePost(context.Background(), CreatePostInput{AuthorID: author, Content: content})
	require.NoError(t, err)
	return p
}

func (f *fixture) befriend(t *testing.T, a, b string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.graph.SendRequest(ctx, a, b))
	require.NoError(t, f.graph.AcceptRequest(ctx, b, a))
}

func postContents(posts []models.PostResponse) []string {
	out := make([]string, 0, len(posts))
	for _, p := range posts {
		out = append(out, p.Content)
	}
	return out
}

func TestFeedIncludesFriendsAfterAccept(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "alice", "bob", "carol")

	f.post(t, "alice", "alice 1")
	f.post(t, "bob", "bob 1")
	f.post(t, "carol", "carol 1")

	before, err := f.feed.Feed(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice 1"}, postContents(before))

	f.befriend(t, "alice", "bob")
	f.post(t, "bob", "bob 2")

	after, err := f.feed.Feed(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob 2", "bob 1", "alice 1"}, postContents(after))
	assert.Equal(t, "bob", after[0].Author.ID)
}

func TestCreatePostNotifiesAuthorAndFriends(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")
	f.befriend(t, "alice", "bob")
	f.recorder.Reset()

	p := f.post(t, "alice", "hello")

	assert.Len(t, f.recorder.For("alice", events.PostCreated), 1)
	got := f.recorder.For("bob", events.PostCreated)
	require.Len(t, got, 1)
	assert.Equal(t, p.ID, got[0].Payload.(PostEvent).Post.ID)
	assert.Empty(t, f.recorder.For("carol", events.PostCreated))

	_, err := f.feed.CreatePost(context.Background(), CreatePostInput{AuthorID: "alice", Content: "  "})
	assert.True(t, errs.Is(err, errs.KindInvalidInput))

	withImage, err := f.feed.CreatePost(context.Background(), CreatePostInput{AuthorID: "alice", ImageURL: "/files/a.png"})
	require.NoError(t, err)
	assert.Equal(t, "/files/a.png", withImage.ImageURL)
}

func TestToggleLikeRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "alice", "bob")
	p := f.post(t, "alice", "like me")
	f.recorder.Reset()

	liked, err := f.feed.ToggleLike(ctx, p.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, liked.Likes)

	unliked, err := f.feed.ToggleLike(ctx, p.ID, "bob")
	require.NoError(t, err)
	assert.Empty(t, unliked.Likes)
	assert.Equal(t, p.Likes, unliked.Likes)

	toAuthor := f.recorder.For("alice", events.PostLiked)
	require.Len(t, toAuthor, 2)
	assert.True(t, toAuthor[0].Payload.(LikeEvent).Liked)
	assert.False(t, toAuthor[1].Payload.(LikeEvent).Liked)
	assert.Len(t, f.recorder.For("bob", events.PostLiked), 2)

	_, err = f.feed.ToggleLike(ctx, "missing", "bob")
	assert.True(t, errs.Is(err, errs.KindNotFound))
}

func TestComments(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "alice", "bob", "carol")
	p := f.post(t, "alice", "discuss")

	_, err := f.feed.AddComment(ctx, p.ID, "bob", "")
	assert.True(t, errs.Is(err, errs.KindInvalidInput))

	withBob, err := f.feed.AddComment(ctx, p.ID, "bob", "first")
	require.NoError(t, err)
	require.Len(t, withBob.Comments, 1)
	bobComment := withBob.Comments[0]
	assert.Equal(t, "bob", bobComment.Author.ID)

	f.recorder.Reset()
	withCarol, err := f.feed.AddComment(ctx, p.ID, "carol", "second")
	require.NoError(t, err)
	require.Len(t, withCarol.Comments, 2)
	assert.Equal(t, "second", withCarol.Comments[1].Text)
	for _, user := range []string{"alice", "bob", "carol"} {
		assert.Len(t, f.recorder.For(user, events.PostCommented), 1, user)
	}

	err = f.feed.DeleteComment(ctx, p.ID, bobComment.ID, "carol")
	assert.True(t, errs.Is(err, errs.KindForbidden))
	err = f.feed.DeleteComment(ctx, p.ID, "nope", "bob")
	assert.True(t, errs.Is(err, errs.KindNotFound))

	require.NoError(t, f.feed.DeleteComment(ctx, p.ID, bobComment.ID, "bob"))
	posts, err := f.feed.PostsByUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, posts, 1)
	require.Len(t, posts[0].Comments, 1)
	assert.Equal(t, "carol", posts[0].Comments[0].Author.ID)
}

func TestUpdateAndDeletePost(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "alice", "bob")
	p := f.post(t, "alice", "draft")

	_, err := f.feed.UpdatePost(ctx, p.ID, "bob", "hijack")
	assert.True(t, errs.Is(err, errs.KindForbidden))

	updated, err := f.feed.UpdatePost(ctx, p.ID, "alice", "final")
	require.NoError(t, err)
	assert.Equal(t, "final", updated.Content)
	assert.True(t, updated.UpdatedAt.After(updated.CreatedAt))

	assert.True(t, errs.Is(f.feed.DeletePost(ctx, p.ID, "bob"), errs.KindForbidden))
	require.NoError(t, f.feed.DeletePost(ctx, p.ID, "alice"))
	assert.True(t, errs.Is(f.feed.DeletePost(ctx, p.ID, "alice"), errs.KindNotFound))
}
