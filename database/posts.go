package database

import (
	"context"
	"database/sql"
	"time"

	"vibeconnect/errs"
	"vibeconnect/models"
)

const postColumns = "id, author_id, content, image_url, created_at, updated_at"

func (s *Store) InsertPost(ctx context.Context, post *models.Post) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO posts (id, author_id, content, image_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, post.ID, post.AuthorID, post.Content, post.ImageURL, post.CreatedAt, post.UpdatedAt)
	return classify(err, "insert post")
}

func (s *Store) GetPost(ctx context.Context, id string) (*models.Post, error) {
	posts, err := s.loadPosts(ctx, "get post", "SELECT "+postColumns+" FROM posts WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(posts) == 0 {
		return nil, errs.ErrNotFound
	}
	return &posts[0], nil
}

func (s *Store) ListPostsByAuthors(ctx context.Context, authorIDs []string) ([]models.Post, error) {
	if len(authorIDs) == 0 {
		return []models.Post{}, nil
	}
	in, args := inClause(authorIDs)
	return s.loadPosts(ctx, "list posts",
		"SELECT "+postColumns+" FROM posts WHERE author_id IN ("+in+") ORDER BY created_at DESC, id DESC", args...)
}

// loadPosts runs a posts query and attaches likes and comments in two more queries.
func (s *Store) loadPosts(ctx context.Context, op, query string, args ...interface{}) ([]models.Post, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err, op)
	}
	posts := make([]models.Post, 0)
	index := make(map[string]int)
	var ids []string
	for rows.Next() {
		var p models.Post
		if err := rows.Scan(&p.ID, &p.AuthorID, &p.Content, &p.ImageURL, &p.CreatedAt, &p.UpdatedAt); err != nil {
			rows.Close()
			return nil, classify(err, op)
		}
		p.Likes = []string{}
		p.Comments = []models.Comment{}
		index[p.ID] = len(posts)
		ids = append(ids, p.ID)
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, classify(err, op)
	}
	rows.Close()
	if len(posts) == 0 {
		return posts, nil
	}

	in, idArgs := inClause(ids)
	likes, err := s.db.QueryContext(ctx,
		"SELECT post_id, user_id FROM post_likes WHERE post_id IN ("+in+") ORDER BY created_at, user_id", idArgs...)
	if err != nil {
		return nil, classify(err, op)
	}
	defer likes.Close()
	for likes.Next() {
		var postID, userID string
		if err := likes.Scan(&postID, &userID); err != nil {
			return nil, classify(err, op)
		}
		p := &posts[index[postID]]
		p.Likes = append(p.Likes, userID)
	}
	if err := likes.Err(); err != nil {
		return nil, classify(err, op)
	}

	comments, err := s.db.QueryContext(ctx,
		"SELECT id, post_id, author_id, text, created_at FROM post_comments WHERE post_id IN ("+in+") ORDER BY created_at, id", idArgs...)
	if err != nil {
		return nil, classify(err, op)
	}
	defer comments.Close()
	for comments.Next() {
		var c models.Comment
		var postID string
		if err := comments.Scan(&c.ID, &postID, &c.AuthorID, &c.Text, &c.CreatedAt); err != nil {
			return nil, classify(err, op)
		}
		p := &posts[index[postID]]
		p.Comments = append(p.Comments, c)
	}
	return posts, classify(comments.Err(), op)
}

func affected(result sql.Result, err error, op string) error {
	if err != nil {
		return classify(err, op)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return classify(err, op)
	}
	if n == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (s *Store) UpdatePostContent(ctx context.Context, id, content string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, "UPDATE posts SET content = ?, updated_at = ? WHERE id = ?", content, at, id)
	return affected(result, err, "update post")
}

func (s *Store) DeletePost(ctx context.Context, id string) error {
	return s.withTx(ctx, "delete post", func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, "DELETE FROM posts WHERE id = ?", id)
		if err := affected(result, err, "delete post"); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM post_likes WHERE post_id = ?", id); err != nil {
			return classify(err, "delete post")
		}
		_, err = tx.ExecContext(ctx, "DELETE FROM post_comments WHERE post_id = ?", id)
		return classify(err, "delete post")
	})
}

// ToggleLike removes userID's like if present and adds it otherwise, under a
// lock on the post row. It reports whether the post is now liked.
func (s *Store) ToggleLike(ctx context.Context, postID, userID string) (bool, error) {
	var liked bool
	err := s.withTx(ctx, "toggle like", func(tx *sql.Tx) error {
		var id string
		err := tx.QueryRowContext(ctx, "SELECT id FROM posts WHERE id = ? FOR UPDATE", postID).Scan(&id)
		if err != nil {
			return classify(err, "toggle like")
		}

		result, err := tx.ExecContext(ctx, "DELETE FROM post_likes WHERE post_id = ? AND user_id = ?", postID, userID)
		if err != nil {
			return classify(err, "toggle like")
		}
		n, err := result.RowsAffected()
		if err != nil {
			return classify(err, "toggle like")
		}
		if n > 0 {
			liked = false
			return nil
		}

		_, err = tx.ExecContext(ctx,
			"INSERT INTO post_likes (post_id, user_id, created_at) VALUES (?, ?, ?)",
			postID, userID, time.Now().UTC())
		liked = true
		return classify(err, "toggle like")
	})
	return liked, err
}

// AppendComment inserts the comment only if the post exists.
func (s *Store) AppendComment(ctx context.Context, postID string, comment models.Comment) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO post_comments (id, post_id, author_id, text, created_at)
		SELECT ?, id, ?, ?, ? FROM posts WHERE id = ?
	`, comment.ID, comment.AuthorID, comment.Text, comment.CreatedAt, postID)
	return affected(result, err, "append comment")
}

func (s *Store) DeleteComment(ctx context.Context, postID, commentID string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM post_comments WHERE id = ? AND post_id = ?", commentID, postID)
	return affected(result, err, "delete comment")
}
