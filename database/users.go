package database

import (
	"context"
	"database/sql"
	"errors"

	"vibeconnect/errs"
	"vibeconnect/models"
)

const userColumns = "id, username, display_name, avatar_url, bio, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Username, &u.DisplayName, &u.AvatarURL, &u.Bio, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// UpsertUser updates the profile in place or inserts it. A username held by
// another user fails with 1062 on either path and surfaces as ErrDuplicate.
func (s *Store) UpsertUser(ctx context.Context, user *models.User) error {
	return s.withTx(ctx, "upsert user", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE users SET username = ?, display_name = ?, avatar_url = ?, bio = ?, updated_at = ?
			WHERE id = ?
		`, user.Username, user.DisplayName, user.AvatarURL, user.Bio, user.UpdatedAt, user.ID)
		switch err := affected(res, err, "update user"); {
		case err == nil:
			return classify(tx.QueryRowContext(ctx,
				"SELECT created_at FROM users WHERE id = ?", user.ID).Scan(&user.CreatedAt), "update user")
		case !errors.Is(err, errs.ErrNotFound):
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO users (id, username, display_name, avatar_url, bio, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, user.ID, user.Username, user.DisplayName, user.AvatarURL, user.Bio, user.CreatedAt, user.UpdatedAt)
		return classify(err, "insert user")
	})
}

func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id))
	if err != nil {
		return nil, classify(err, "get user")
	}
	return &u, nil
}

func (s *Store) queryUsers(ctx context.Context, op, query string, args ...interface{}) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err, op)
	}
	defer rows.Close()

	users := make([]models.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, classify(err, op)
		}
		users = append(users, u)
	}
	return users, classify(rows.Err(), op)
}

func (s *Store) GetUsers(ctx context.Context, ids []string) ([]models.User, error) {
	if len(ids) == 0 {
		return []models.User{}, nil
	}
	in, args := inClause(ids)
	return s.queryUsers(ctx, "get users",
		"SELECT "+userColumns+" FROM users WHERE id IN ("+in+") ORDER BY id", args...)
}

func (s *Store) ListUsersExcluding(ctx context.Context, exclude []string, limit int) ([]models.User, error) {
	if len(exclude) == 0 {
		return s.queryUsers(ctx, "list users",
			"SELECT "+userColumns+" FROM users ORDER BY id LIMIT ?", limit)
	}
	in, args := inClause(exclude)
	args = append(args, limit)
	return s.queryUsers(ctx, "list users",
		"SELECT "+userColumns+" FROM users WHERE id NOT IN ("+in+") ORDER BY id LIMIT ?", args...)
}
