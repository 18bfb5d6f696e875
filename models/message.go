package models

import "time"

type Message struct {
	ID          string    `json:"id" bson:"_id"`
	SenderID    string    `json:"senderId" bson:"sender_id"`
	RecipientID string    `json:"recipientId" bson:"recipient_id"`
	Content     string    `json:"content" bson:"content"`
	ClientID    string    `json:"clientId,omitempty" bson:"client_id,omitempty"`
	Read        bool      `json:"read" bson:"read"`
	CreatedAt   time.Time `json:"createdAt" bson:"created_at"`
}

// Involves reports whether the message was exchanged between a and b, in either direction.
func (m *Message) Involves(a, b string) bool {
	return (m.SenderID == a && m.RecipientID == b) || (m.SenderID == b && m.RecipientID == a)
}

// Counterpart returns the other participant from userID's point of view.
func (m *Message) Counterpart(userID string) string {
	if m.SenderID == userID {
		return m.RecipientID
	}
	return m.SenderID
}

// MessageResponse is a message with both participants expanded to display fields.
type MessageResponse struct {
	ID        string      `json:"id"`
	Sender    UserSummary `json:"sender"`
	Recipient UserSummary `json:"recipient"`
	Content   string      `json:"content"`
	ClientID  string      `json:"clientId,omitempty"`
	Read      bool        `json:"read"`
	CreatedAt time.Time   `json:"createdAt"`
}
