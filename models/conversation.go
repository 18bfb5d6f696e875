package models

// Conversation is the derived per-counterpart summary shown in a chat list.
type Conversation struct {
	User        UserSummary     `json:"user"`
	LastMessage MessageResponse `json:"lastMessage"`
	Unread      int             `json:"unread"`
}
