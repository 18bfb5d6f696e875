// Package events names the realtime event types and declares the fanout
// collaborator that services publish through.
package events

import "sync"

// Server to client.
const (
	PostCreated           = "postCreated"
	PostLiked             = "postLiked"
	PostCommented         = "postCommented"
	IncomingFriendRequest = "incomingFriendRequest"
	FriendRequestAccepted = "friendRequestAccepted"
	Message               = "message"
	Error                 = "error"
	Pong                  = "pong"
)

// Client to server.
const (
	Join           = "join"
	Ping           = "ping"
	SendMessage    = "sendMessage"
	NewPost        = "newPost"
	NewLike        = "newLike"
	NewComment     = "newComment"
	FriendRequest  = "friendRequest"
	FriendAccepted = "friendAccepted"
)

// RelayTargets maps client relay events to the event delivered to the targets.
var RelayTargets = map[string]string{
	NewPost:        PostCreated,
	NewLike:        PostLiked,
	NewComment:     PostCommented,
	FriendRequest:  IncomingFriendRequest,
	FriendAccepted: FriendRequestAccepted,
}

// Notifier delivers an event to every live connection of a user. Delivery is
// best effort: nothing is queued for users without a connection.
type Notifier interface {
	Notify(userID, event string, payload interface{})
}

// NopNotifier discards every event.
type NopNotifier struct{}

func (NopNotifier) Notify(string, string, interface{}) {}

// Notification is one recorded call to a Notifier.
type Notification struct {
	UserID  string
	Event   string
	Payload interface{}
}

// Recorder is a Notifier that keeps every notification, for tests.
type Recorder struct {
	mu   sync.Mutex
	sent []Notification
}

func (r *Recorder) Notify(userID, event string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, Notification{UserID: userID, Event: event, Payload: payload})
}

func (r *Recorder) Sent() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.sent...)
}

// For returns the notifications delivered to userID with the given event.
func (r *Recorder) For(userID, event string) []Notification {
	var out []Notification
	for _, n := range r.Sent() {
		if n.UserID == userID && n.Event == event {
			out = append(out, n)
		}
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
}
