package database

import (
	"context"
	"database/sql"

	"vibeconnect/models"
)

const messageColumns = "id, sender_id, recipient_id, content, client_id, is_read, created_at"

func scanMessage(row rowScanner) (models.Message, error) {
	var m models.Message
	var clientID sql.NullString
	err := row.Scan(&m.ID, &m.SenderID, &m.RecipientID, &m.Content, &clientID, &m.Read, &m.CreatedAt)
	m.ClientID = clientID.String
	return m, err
}

func (s *Store) InsertMessage(ctx context.Context, msg *models.Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, sender_id, recipient_id, content, client_id, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.SenderID, msg.RecipientID, msg.Content, nullString(msg.ClientID), msg.Read, msg.CreatedAt)
	return classify(err, "insert message")
}

func (s *Store) FindMessageByClientID(ctx context.Context, senderID, clientID string) (*models.Message, error) {
	m, err := scanMessage(s.db.QueryRowContext(ctx,
		"SELECT "+messageColumns+" FROM messages WHERE sender_id = ? AND client_id = ?", senderID, clientID))
	if err != nil {
		return nil, classify(err, "find message")
	}
	return &m, nil
}

func (s *Store) queryMessages(ctx context.Context, op, query string, args ...interface{}) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err, op)
	}
	defer rows.Close()

	msgs := make([]models.Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, classify(err, op)
		}
		msgs = append(msgs, m)
	}
	return msgs, classify(rows.Err(), op)
}

func (s *Store) ListMessagesBetween(ctx context.Context, a, b string) ([]models.Message, error) {
	return s.queryMessages(ctx, "list messages", `
		SELECT `+messageColumns+` FROM messages
		WHERE (sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)
		ORDER BY created_at ASC, id ASC
	`, a, b, b, a)
}

func (s *Store) ListMessagesFor(ctx context.Context, userID string) ([]models.Message, error) {
	return s.queryMessages(ctx, "list messages", `
		SELECT `+messageColumns+` FROM messages
		WHERE sender_id = ? OR recipient_id = ?
		ORDER BY created_at DESC, id DESC
	`, userID, userID)
}

func (s *Store) MarkRead(ctx context.Context, recipientID, senderID string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"UPDATE messages SET is_read = TRUE WHERE recipient_id = ? AND sender_id = ? AND is_read = FALSE",
		recipientID, senderID)
	if err != nil {
		return 0, classify(err, "mark read")
	}
	n, err := result.RowsAffected()
	return n, classify(err, "mark read")
}
