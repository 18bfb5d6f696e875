package models

import "time"

type RelationshipState string

const (
	StatePending RelationshipState = "pending"
	StateFriends RelationshipState = "friends"
)

// Relationship is the single edge record for an unordered user pair.
// UserLow < UserHigh always holds; absence of a record means the pair is unrelated.
type Relationship struct {
	UserLow     string            `json:"userLow"`
	UserHigh    string            `json:"userHigh"`
	State       RelationshipState `json:"state"`
	RequesterID string            `json:"requesterId"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// OrderPair returns a and b sorted so the pair has one canonical key.
func OrderPair(a, b string) (string, string) {
	if a > b {
		return b, a
	}
	return a, b
}

func NewRelationship(requester, target string, state RelationshipState, now time.Time) Relationship {
	low, high := OrderPair(requester, target)
	return Relationship{
		UserLow:     low,
		UserHigh:    high,
		State:       state,
		RequesterID: requester,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Other returns the member of the pair that is not userID.
func (r *Relationship) Other(userID string) string {
	if r.UserLow == userID {
		return r.UserHigh
	}
	return r.UserLow
}

// FriendStatus is the pair state as seen from one side.
type FriendStatus string

const (
	StatusNone     FriendStatus = "none"
	StatusFriends  FriendStatus = "friends"
	StatusSent     FriendStatus = "sent"
	StatusReceived FriendStatus = "received"
)

// StatusFor derives the status of the pair from viewer's perspective. A nil
// relationship means none.
func StatusFor(rel *Relationship, viewer string) FriendStatus {
	switch {
	case rel == nil:
		return StatusNone
	case rel.State == StateFriends:
		return StatusFriends
	case rel.RequesterID == viewer:
		return StatusSent
	default:
		return StatusReceived
	}
}

// RelationKind selects one of the derived relationship sets of a user.
type RelationKind string

const (
	RelationFriends          RelationKind = "friends"
	RelationRequestsSent     RelationKind = "sent"
	RelationRequestsReceived RelationKind = "received"
)

// Matches reports whether rel belongs to userID's set of the given kind.
func (k RelationKind) Matches(rel *Relationship, userID string) bool {
	switch k {
	case RelationFriends:
		return rel.State == StateFriends
	case RelationRequestsSent:
		return rel.State == StatePending && rel.RequesterID == userID
	case RelationRequestsReceived:
		return rel.State == StatePending && rel.RequesterID != userID
	}
	return false
}
