// Package reconcile merges optimistic, locally composed chat messages with the
// authoritative copies the server pushes back. It is the client half of the chat
// protocol and is used by the websocket test client and by Go clients of the service.
package reconcile

import (
	"fmt"
	"sync"
	"time"

	"vibeconnect/models"
	"vibeconnect/utils"
)

// Entry is one message in a conversation view. Provisional entries have only a
// temporary id until the server confirms them.
type Entry struct {
	ID          string
	ClientID    string
	SenderID    string
	RecipientID string
	Content     string
	CreatedAt   time.Time
	Provisional bool
}

// SendIntent is the sendMessage payload for a composed message.
type SendIntent struct {
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Content   string `json:"content"`
	ClientID  string `json:"clientId"`
}

type Outcome int

const (
	// Appended means the message was new to this view.
	Appended Outcome = iota
	// Confirmed means a provisional entry was replaced by the durable message.
	Confirmed
	// Duplicate means the durable message was already present.
	Duplicate
	// Ignored means the message belongs to another conversation.
	Ignored
)

func (o Outcome) String() string {
	switch o {
	case Appended:
		return "appended"
	case Confirmed:
		return "confirmed"
	case Duplicate:
		return "duplicate"
	case Ignored:
		return "ignored"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Timeline is self's view of the conversation with peer.
type Timeline struct {
	mu      sync.Mutex
	self    string
	peer    string
	entries []Entry
	seq     int
	now     func() time.Time
	newID   func() string
}

func NewTimeline(self, peer string) *Timeline {
	return &Timeline{
		self:  self,
		peer:  peer,
		now:   time.Now,
		newID: utils.GenerateUUID,
	}
}

// Compose inserts a provisional entry and returns the intent to relay to the server.
func (t *Timeline) Compose(content string) SendIntent {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.seq++
	entry := Entry{
		ID:          fmt.Sprintf("temp-%d", t.seq),
		ClientID:    t.newID(),
		SenderID:    t.self,
		RecipientID: t.peer,
		Content:     content,
		CreatedAt:   t.now(),
		Provisional: true,
	}
	t.entries = append(t.entries, entry)

	return SendIntent{
		Sender:    t.self,
		Recipient: t.peer,
		Content:   content,
		ClientID:  entry.ClientID,
	}
}

func (t *Timeline) belongs(msg *models.MessageResponse) bool {
	return (msg.Sender.ID == t.self && msg.Recipient.ID == t.peer) ||
		(msg.Sender.ID == t.peer && msg.Recipient.ID == t.self)
}

// matchProvisional finds the provisional entry msg confirms: first by client id,
// then the oldest own entry with identical direction and content. Content only
// decides when one side carries no client id.
func (t *Timeline) matchProvisional(msg *models.MessageResponse) int {
	if msg.Sender.ID != t.self {
		return -1
	}
	if msg.ClientID != "" {
		for i := range t.entries {
			if t.entries[i].Provisional && t.entries[i].ClientID == msg.ClientID {
				return i
			}
		}
	}
	for i := range t.entries {
		e := &t.entries[i]
		if !e.Provisional || e.SenderID != msg.Sender.ID || e.RecipientID != msg.Recipient.ID || e.Content != msg.Content {
			continue
		}
		if msg.ClientID == "" || e.ClientID == "" {
			return i
		}
	}
	return -1
}

func (t *Timeline) indexOf(id string) int {
	for i := range t.entries {
		if !t.entries[i].Provisional && t.entries[i].ID == id {
			return i
		}
	}
	return -1
}

// Receive merges a message pushed by the server.
func (t *Timeline) Receive(msg models.MessageResponse) Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.receive(&msg)
}

func (t *Timeline) receive(msg *models.MessageResponse) Outcome {
	if !t.belongs(msg) {
		return Ignored
	}

	pending := t.matchProvisional(msg)
	if t.indexOf(msg.ID) >= 0 {
		if pending >= 0 {
			t.entries = append(t.entries[:pending], t.entries[pending+1:]...)
		}
		return Duplicate
	}

	entry := Entry{
		ID:          msg.ID,
		ClientID:    msg.ClientID,
		SenderID:    msg.Sender.ID,
		RecipientID: msg.Recipient.ID,
		Content:     msg.Content,
		CreatedAt:   msg.CreatedAt,
	}
	if pending >= 0 {
		t.entries[pending] = entry
		return Confirmed
	}
	t.entries = append(t.entries, entry)
	return Appended
}

// Load replaces the view with durable history, keeping provisional entries the
// history does not confirm at the end.
func (t *Timeline) Load(history []models.MessageResponse) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var provisional []Entry
	for _, e := range t.entries {
		if e.Provisional {
			provisional = append(provisional, e)
		}
	}
	t.entries = provisional
	confirmed := make([]Entry, 0, len(history))
	for i := range history {
		msg := &history[i]
		if !t.belongs(msg) {
			continue
		}
		if idx := t.matchProvisional(msg); idx >= 0 {
			t.entries = append(t.entries[:idx], t.entries[idx+1:]...)
		}
		confirmed = append(confirmed, Entry{
			ID:          msg.ID,
			ClientID:    msg.ClientID,
			SenderID:    msg.Sender.ID,
			RecipientID: msg.Recipient.ID,
			Content:     msg.Content,
			CreatedAt:   msg.CreatedAt,
		})
	}
	t.entries = append(confirmed, t.entries...)
}

// Entries returns a copy of the current view in display order.
func (t *Timeline) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Entry(nil), t.entries...)
}

// Pending returns the entries still waiting for server confirmation.
func (t *Timeline) Pending() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Entry
	for _, e := range t.entries {
		if e.Provisional {
			out = append(out, e)
		}
	}
	return out
}
