package models

import "time"

type Comment struct {
	ID        string    `json:"id" bson:"_id"`
	AuthorID  string    `json:"authorId" bson:"author_id"`
	Text      string    `json:"text" bson:"text"`
	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
}

type Post struct {
	ID        string    `json:"id" bson:"_id"`
	AuthorID  string    `json:"authorId" bson:"author_id"`
	Content   string    `json:"content" bson:"content"`
	ImageURL  string    `json:"imageUrl,omitempty" bson:"image_url,omitempty"`
	Likes     []string  `json:"likes" bson:"likes"`
	Comments  []Comment `json:"comments" bson:"comments"`
	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updated_at"`
}

func (p *Post) LikedBy(userID string) bool {
	for _, id := range p.Likes {
		if id == userID {
			return true
		}
	}
	return false
}

func (p *Post) FindComment(commentID string) (*Comment, bool) {
	for i := range p.Comments {
		if p.Comments[i].ID == commentID {
			return &p.Comments[i], true
		}
	}
	return nil, false
}

type CommentResponse struct {
	ID        string      `json:"id"`
	Author    UserSummary `json:"author"`
	Text      string      `json:"text"`
	CreatedAt time.Time   `json:"createdAt"`
}

type PostResponse struct {
	ID        string            `json:"id"`
	Author    UserSummary       `json:"author"`
	Content   string            `json:"content"`
	ImageURL  string            `json:"imageUrl,omitempty"`
	Likes     []string          `json:"likes"`
	Comments  []CommentResponse `json:"comments"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}
