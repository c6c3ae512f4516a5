package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresStore implements Store on top of the pgx stdlib driver.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreateConversation(ctx context.Context, p CreateConversationParams) (*Conversation, error) {
	// Upsert keyed on visitor_id: a repeat submission only refreshes the
	// WhatsApp hint, everything else keeps its original value.
	query := `
		INSERT INTO conversations (visitor_id, visitor_name, visitor_email, visitor_whatsapp)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''))
		ON CONFLICT (visitor_id) DO UPDATE
			SET visitor_whatsapp = COALESCE(NULLIF(EXCLUDED.visitor_whatsapp, ''), conversations.visitor_whatsapp)
		RETURNING visitor_id, visitor_name, COALESCE(visitor_email, ''), COALESCE(visitor_whatsapp, ''),
			last_message, last_message_time, unread_count, status, created_at
	`
	c := &Conversation{}
	err := s.db.QueryRowContext(ctx, query,
		p.VisitorID, p.VisitorName, p.VisitorEmail, p.VisitorWhatsApp,
	).Scan(&c.VisitorID, &c.VisitorName, &c.VisitorEmail, &c.VisitorWhatsApp,
		&c.LastMessage, &c.LastMessageTime, &c.UnreadCount, &c.Status, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) GetConversation(ctx context.Context, visitorID string) (*Conversation, error) {
	query := `
		SELECT visitor_id, visitor_name, COALESCE(visitor_email, ''), COALESCE(visitor_whatsapp, ''),
			last_message, last_message_time, unread_count, status, created_at
		FROM conversations WHERE visitor_id = $1
	`
	c := &Conversation{}
	err := s.db.QueryRowContext(ctx, query, visitorID).Scan(
		&c.VisitorID, &c.VisitorName, &c.VisitorEmail, &c.VisitorWhatsApp,
		&c.LastMessage, &c.LastMessageTime, &c.UnreadCount, &c.Status, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *PostgresStore) ListConversations(ctx context.Context, status string) ([]*Conversation, error) {
	query := `
		SELECT visitor_id, visitor_name, COALESCE(visitor_email, ''), COALESCE(visitor_whatsapp, ''),
			last_message, last_message_time, unread_count, status, created_at
		FROM conversations
		WHERE status = $1
		ORDER BY last_message_time DESC
	`
	rows, err := s.db.QueryContext(ctx, query, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conversations []*Conversation
	for rows.Next() {
		c := &Conversation{}
		if err := rows.Scan(&c.VisitorID, &c.VisitorName, &c.VisitorEmail, &c.VisitorWhatsApp,
			&c.LastMessage, &c.LastMessageTime, &c.UnreadCount, &c.Status, &c.CreatedAt); err != nil {
			return nil, err
		}
		conversations = append(conversations, c)
	}
	return conversations, rows.Err()
}

func (s *PostgresStore) AppendMessage(ctx context.Context, conversationID, sender, senderName, text string) (*Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	m := &Message{
		ConversationID: conversationID,
		Sender:         sender,
		SenderName:     senderName,
		Message:        text,
	}
	insert := `
		INSERT INTO messages (conversation_id, sender, sender_name, message)
		VALUES ($1, $2, $3, $4)
		RETURNING id, sent_at, read
	`
	if err := tx.QueryRowContext(ctx, insert, conversationID, sender, senderName, text).
		Scan(&m.ID, &m.Timestamp, &m.Read); err != nil {
		// The FK points at conversations(visitor_id); an insert against an
		// unknown conversation surfaces as a constraint violation.
		if _, lookupErr := s.GetConversation(ctx, conversationID); errors.Is(lookupErr, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("append message: %w", err)
	}

	// Single atomic update: preview, activity time, and the counter bump
	// all land in one statement so concurrent appends cannot lose updates.
	update := `
		UPDATE conversations
		SET last_message = $1,
			last_message_time = $2,
			unread_count = unread_count + CASE WHEN $3 = 'visitor' THEN 1 ELSE 0 END
		WHERE visitor_id = $4
	`
	if _, err := tx.ExecContext(ctx, update, text, m.Timestamp, sender, conversationID); err != nil {
		return nil, fmt.Errorf("update conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, conversationID string) ([]*Message, error) {
	query := `
		SELECT id, conversation_id, sender, sender_name, message, sent_at, read
		FROM messages
		WHERE conversation_id = $1
		ORDER BY sent_at ASC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		m := &Message{}
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Sender, &m.SenderName,
			&m.Message, &m.Timestamp, &m.Read); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (s *PostgresStore) MarkRead(ctx context.Context, conversationID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE conversations SET unread_count = 0 WHERE visitor_id = $1`, conversationID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE messages SET read = TRUE WHERE conversation_id = $1 AND read = FALSE`, conversationID); err != nil {
		return err
	}
	return tx.Commit()
}

// RecountUnread recomputes the counter from the message log and writes it
// back. Used by the periodic reconciliation loop.
func (s *PostgresStore) RecountUnread(ctx context.Context, conversationID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		UPDATE conversations
		SET unread_count = (
			SELECT COUNT(*) FROM messages
			WHERE conversation_id = $1 AND sender = 'visitor' AND read = FALSE
		)
		WHERE visitor_id = $1
		RETURNING unread_count
	`, conversationID).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	return count, err
}
