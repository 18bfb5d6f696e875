package database

import (
	"context"
	"database/sql"
	"time"

	"vibeconnect/errs"
	"vibeconnect/models"
)

const relationshipColumns = "user_low, user_high, state, requester_id, created_at, updated_at"

func scanRelationship(row rowScanner) (models.Relationship, error) {
	var r models.Relationship
	err := row.Scan(&r.UserLow, &r.UserHigh, &r.State, &r.RequesterID, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

func (s *Store) GetRelationship(ctx context.Context, a, b string) (*models.Relationship, error) {
	low, high := models.OrderPair(a, b)
	r, err := scanRelationship(s.db.QueryRowContext(ctx,
		"SELECT "+relationshipColumns+" FROM relationships WHERE user_low = ? AND user_high = ?", low, high))
	if err != nil {
		return nil, classify(err, "get relationship")
	}
	return &r, nil
}

// CreateRelationship inserts a new edge. The primary key on the pair turns any
// existing edge, in either direction, into errs.ErrDuplicate.
func (s *Store) CreateRelationship(ctx context.Context, rel models.Relationship) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO relationships (user_low, user_high, state, requester_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rel.UserLow, rel.UserHigh, rel.State, rel.RequesterID, rel.CreatedAt, rel.UpdatedAt)
	return classify(err, "create relationship")
}

// AcceptRelationship promotes requester's pending edge to target into a
// friendship. It returns errs.ErrNotFound when no such request exists.
func (s *Store) AcceptRelationship(ctx context.Context, requester, target string, at time.Time) error {
	low, high := models.OrderPair(requester, target)
	return s.withTx(ctx, "accept relationship", func(tx *sql.Tx) error {
		var state models.RelationshipState
		var requesterID string
		err := tx.QueryRowContext(ctx,
			"SELECT state, requester_id FROM relationships WHERE user_low = ? AND user_high = ? FOR UPDATE",
			low, high,
		).Scan(&state, &requesterID)
		if err != nil {
			return classify(err, "accept relationship")
		}
		if state != models.StatePending || requesterID != requester {
			return errs.ErrNotFound
		}

		_, err = tx.ExecContext(ctx,
			"UPDATE relationships SET state = ?, updated_at = ? WHERE user_low = ? AND user_high = ?",
			models.StateFriends, at, low, high,
		)
		return classify(err, "accept relationship")
	})
}

// DeletePendingRelationship removes requester's pending request to target.
func (s *Store) DeletePendingRelationship(ctx context.Context, requester, target string) error {
	low, high := models.OrderPair(requester, target)
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM relationships WHERE user_low = ? AND user_high = ? AND state = ? AND requester_id = ?",
		low, high, models.StatePending, requester)
	return affected(result, err, "delete pending relationship")
}

// DeleteFriendship removes the pair's friendship if there is one.
func (s *Store) DeleteFriendship(ctx context.Context, a, b string) error {
	low, high := models.OrderPair(a, b)
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM relationships WHERE user_low = ? AND user_high = ? AND state = ?",
		low, high, models.StateFriends)
	return classify(err, "delete friendship")
}

func (s *Store) ListRelationships(ctx context.Context, userID string) ([]models.Relationship, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+relationshipColumns+` FROM relationships
		WHERE user_low = ? OR user_high = ?
		ORDER BY updated_at DESC
	`, userID, userID)
	if err != nil {
		return nil, classify(err, "list relationships")
	}
	defer rows.Close()

	rels := make([]models.Relationship, 0)
	for rows.Next() {
		r, err := scanRelationship(rows)
		if err != nil {
			return nil, classify(err, "list relationships")
		}
		rels = append(rels, r)
	}
	return rels, classify(rows.Err(), "list relationships")
}
