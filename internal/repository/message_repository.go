package repository

import (
	"context"
	"fmt"

	"gitlab.com/yelinaung/sharedbudget/internal/database"
	"gitlab.com/yelinaung/sharedbudget/internal/models"
)

// MessageRepository handles group chat database operations.
type MessageRepository struct {
	db database.DB
}

// NewMessageRepository creates a new MessageRepository.
func NewMessageRepository(db database.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// CreateMessage inserts a message. A zero Timestamp is filled in by the database.
func (r *MessageRepository) CreateMessage(ctx context.Context, msg *models.Message) error {
	var ts any
	if !msg.Timestamp.IsZero() {
		ts = msg.Timestamp
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO messages (id, group_id, text, type, sender_id, sender_name, created_at, read_by)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7::timestamptz, NOW()), $8)
		RETURNING created_at
	`, msg.ID, msg.GroupID, msg.Text, msg.Type, msg.SenderID, msg.SenderName, ts, nonNilStrings(msg.ReadBy),
	).Scan(&msg.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// ListMessages returns a group's messages by ascending timestamp.
func (r *MessageRepository) ListMessages(ctx context.Context, groupID string) ([]models.Message, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, group_id, text, type, sender_id, sender_name, created_at, read_by
		FROM messages
		WHERE group_id = $1
		ORDER BY created_at, id
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.GroupID, &m.Text, &m.Type, &m.SenderID, &m.SenderName,
			&m.Timestamp, &m.ReadBy); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// MarkRead adds uid to read_by of every message of the group that lacks it
// and returns how many messages changed.
func (r *MessageRepository) MarkRead(ctx context.Context, groupID, uid string) (int, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE messages SET read_by = array_append(read_by, $2)
		WHERE group_id = $1 AND NOT ($2 = ANY(read_by))
	`, groupID, uid)
	if err != nil {
		return 0, fmt.Errorf("failed to mark messages read: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// DeleteMessages drops a group's chat log and returns how many messages went.
func (r *MessageRepository) DeleteMessages(ctx context.Context, groupID string) (int, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM messages WHERE group_id = $1`, groupID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete messages: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
