package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatusFor(t *testing.T) {
	now := time.Now()
	pending := NewRelationship("bob", "alice", StatePending, now)
	friends := NewRelationship("bob", "alice", StateFriends, now)

	assert.Equal(t, "alice", pending.UserLow)
	assert.Equal(t, "bob", pending.UserHigh)

	assert.Equal(t, StatusNone, StatusFor(nil, "alice"))
	assert.Equal(t, StatusSent, StatusFor(&pending, "bob"))
	assert.Equal(t, StatusReceived, StatusFor(&pending, "alice"))
	assert.Equal(t, StatusFriends, StatusFor(&friends, "alice"))
	assert.Equal(t, StatusFriends, StatusFor(&friends, "bob"))
}

func TestRelationKindMatches(t *testing.T) {
	rel := NewRelationship("bob", "alice", StatePending, time.Now())

	assert.True(t, RelationRequestsSent.Matches(&rel, "bob"))
	assert.False(t, RelationRequestsSent.Matches(&rel, "alice"))
	assert.True(t, RelationRequestsReceived.Matches(&rel, "alice"))
	assert.False(t, RelationFriends.Matches(&rel, "alice"))
	assert.Equal(t, "bob", rel.Other("alice"))
}
