package reconcile

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"vibeconnect/models"
)

func newTestTimeline(self, peer string) *Timeline {
	tl := NewTimeline(self, peer)
	n := 0
	tl.newID = func() string {
		n++
		return fmt.Sprintf("cid-%d", n)
	}
	return tl
}

func pushed(id, from, to, content, clientID string) models.MessageResponse {
	return models.MessageResponse{
		ID:        id,
		Sender:    models.UserSummary{ID: from},
		Recipient: models.UserSummary{ID: to},
		Content:   content,
		ClientID:  clientID,
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestOptimisticMessageIsConfirmedOnce(t *testing.T) {
	tl := newTestTimeline("alice", "bob")

	intent := tl.Compose("hi")
	assert.Equal(t, SendIntent{Sender: "alice", Recipient: "bob", Content: "hi", ClientID: "cid-1"}, intent)
	require.Len(t, tl.Pending(), 1)
	assert.Equal(t, "temp-1", tl.Entries()[0].ID)

	assert.Equal(t, Confirmed, tl.Receive(pushed("m1", "alice", "bob", "hi", intent.ClientID)))
	assert.Equal(t, Duplicate, tl.Receive(pushed("m1", "alice", "bob", "hi", intent.ClientID)))

	entries := tl.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "m1", entries[0].ID)
	assert.Equal(t, "hi", entries[0].Content)
	assert.False(t, entries[0].Provisional)
	assert.Empty(t, tl.Pending())
}

func TestContentFallbackWithoutClientID(t *testing.T) {
	tl := newTestTimeline("alice", "bob")
	tl.Compose("hi")

	assert.Equal(t, Confirmed, tl.Receive(pushed("m1", "alice", "bob", "hi", "")))
	entries := tl.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "m1", entries[0].ID)
}

func TestRepeatedTextIsMatchedByClientID(t *testing.T) {
	tl := newTestTimeline("alice", "bob")
	first := tl.Compose("ok")
	second := tl.Compose("ok")

	// The second send is confirmed first.
	assert.Equal(t, Confirmed, tl.Receive(pushed("m2", "alice", "bob", "ok", second.ClientID)))
	pending := tl.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, first.ClientID, pending[0].ClientID)

	assert.Equal(t, Confirmed, tl.Receive(pushed("m1", "alice", "bob", "ok", first.ClientID)))
	assert.Empty(t, tl.Pending())
	assert.Len(t, tl.Entries(), 2)
}

func TestReceiveFromPeerAndOtherConversations(t *testing.T) {
	tl := newTestTimeline("alice", "bob")
	tl.Compose("hi")

	// Same text from the peer never confirms our own provisional entry.
	assert.Equal(t, Appended, tl.Receive(pushed("m1", "bob", "alice", "hi", "")))
	assert.Len(t, tl.Pending(), 1)

	assert.Equal(t, Ignored, tl.Receive(pushed("m2", "carol", "alice", "hello", "")))
	assert.Equal(t, Ignored, tl.Receive(pushed("m3", "alice", "carol", "hi", "")))
	assert.Len(t, tl.Entries(), 2)
}

func TestDuplicateDropsEntryWithSameClientID(t *testing.T) {
	tl := newTestTimeline("alice", "bob")
	tl.Load([]models.MessageResponse{pushed("m1", "alice", "bob", "hi", "cid-1")})
	tl.Compose("hi")

	assert.Equal(t, Duplicate, tl.Receive(pushed("m1", "alice", "bob", "hi", "cid-1")))
	entries := tl.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "m1", entries[0].ID)
}

func TestDuplicateKeepsInFlightEntryWithSameText(t *testing.T) {
	tl := newTestTimeline("alice", "bob")
	first := tl.Compose("hi")
	require.Equal(t, Confirmed, tl.Receive(pushed("m1", "alice", "bob", "hi", first.ClientID)))

	second := tl.Compose("hi")
	assert.Equal(t, Duplicate, tl.Receive(pushed("m1", "alice", "bob", "hi", first.ClientID)))

	pending := tl.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, second.ClientID, pending[0].ClientID)
	assert.Len(t, tl.Entries(), 2)
}

func TestLoadKeepsInFlightEntryWithSameText(t *testing.T) {
	tl := newTestTimeline("alice", "bob")
	sent := tl.Compose("ok")

	tl.Load([]models.MessageResponse{pushed("m0", "alice", "bob", "ok", "cid-yesterday")})

	entries := tl.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "m0", entries[0].ID)
	assert.True(t, entries[1].Provisional)
	pending := tl.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, sent.ClientID, pending[0].ClientID)
}

func TestLoadConfirmsByContentWithoutClientID(t *testing.T) {
	tl := newTestTimeline("alice", "bob")
	tl.Compose("ok")

	tl.Load([]models.MessageResponse{pushed("m0", "alice", "bob", "ok", "")})

	entries := tl.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "m0", entries[0].ID)
	assert.Empty(t, tl.Pending())
}

func TestLoadKeepsUnconfirmedEntries(t *testing.T) {
	tl := newTestTimeline("alice", "bob")
	sent := tl.Compose("delivered")
	tl.Compose("in flight")

	tl.Load([]models.MessageResponse{
		pushed("m0", "bob", "alice", "earlier", ""),
		pushed("m1", "alice", "bob", "delivered", sent.ClientID),
	})

	entries := tl.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "m0", entries[0].ID)
	assert.Equal(t, "m1", entries[1].ID)
	assert.True(t, entries[2].Provisional)
	assert.Equal(t, "in flight", entries[2].Content)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "confirmed", Confirmed.String())
	assert.Equal(t, "outcome(9)", Outcome(9).String())
}
