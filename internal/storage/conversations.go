package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// CreateConversation starts a new conversation owned by owner. An empty title
// falls back to DefaultConversationTitle.
func (s *Store) CreateConversation(ctx context.Context, owner, title string) (Conversation, error) {
	if owner == "" {
		return Conversation{}, errors.New("owner is required")
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultConversationTitle
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return Conversation{}, fmt.Errorf("title longer than %d characters", MaxTitleLength)
	}

	now := s.now()
	c := Conversation{
		ID:        uuid.NewString(),
		Owner:     owner,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, owner, title, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.Owner, c.Title, formatTime(now), formatTime(now),
	)
	if err != nil {
		return Conversation{}, fmt.Errorf("inserting conversation: %w", err)
	}
	return c, nil
}

// GetConversation returns the conversation with id if it belongs to owner.
func (s *Store) GetConversation(ctx context.Context, id, owner string) (Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner, title, created_at, updated_at
		FROM conversations WHERE id = ? AND owner = ?`, id, owner)
	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Conversation{}, ErrNotFound
	}
	return c, err
}

// ListConversations returns owner's conversations, most recently active first.
func (s *Store) ListConversations(ctx context.Context, owner string, limit, offset int) ([]Conversation, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner, title, created_at, updated_at
		FROM conversations WHERE owner = ?
		ORDER BY updated_at DESC, id ASC
		LIMIT ? OFFSET ?`, owner, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// RenameConversation sets a new title. The updated_at timestamp is left alone
// so renaming does not reorder the owner's conversation list.
func (s *Store) RenameConversation(ctx context.Context, id, owner, title string) (Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" || utf8.RuneCountInString(title) > MaxTitleLength {
		return Conversation{}, fmt.Errorf("title must be 1..%d characters", MaxTitleLength)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE conversations SET title = ? WHERE id = ? AND owner = ?`, title, id, owner)
	if err != nil {
		return Conversation{}, fmt.Errorf("renaming conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Conversation{}, err
	}
	if n == 0 {
		return Conversation{}, ErrNotFound
	}
	return s.GetConversation(ctx, id, owner)
}

// RenameIfUntitled sets the title only while the conversation still carries
// the placeholder. It reports whether a rename happened.
func (s *Store) RenameIfUntitled(ctx context.Context, id, owner, title string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET title = ?
		WHERE id = ? AND owner = ? AND title = ?`,
		title, id, owner, DefaultConversationTitle)
	if err != nil {
		return false, fmt.Errorf("renaming conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteConversation removes a conversation and all of its messages.
func (s *Store) DeleteConversation(ctx context.Context, id, owner string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning delete: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ? AND owner = ?`, id, owner)
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	// Explicit cascade; foreign_keys may be off on connections opened elsewhere.
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
		return fmt.Errorf("deleting messages: %w", err)
	}
	return tx.Commit()
}

// AppendMessage adds a message to an owner's conversation and bumps the
// conversation's updated_at in the same transaction. A conversation that does
// not exist and one that belongs to someone else both yield ErrNotFound.
func (s *Store) AppendMessage(ctx context.Context, conversationID, owner string, role Role, content string, record json.RawMessage) (Message, error) {
	if !role.Valid() {
		return Message{}, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	if len(record) > 0 && role != RoleAssistant {
		return Message{}, fmt.Errorf("%w: operation record on %s message", ErrInvalidRole, role)
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return Message{}, ErrContentTooLarge
	}
	if len(record) > 0 && !json.Valid(record) {
		return Message{}, errors.New("operation record is not valid JSON")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Message{}, fmt.Errorf("beginning append: %w", err)
	}
	defer tx.Rollback()

	var updatedAt string
	err = tx.QueryRowContext(ctx,
		`SELECT updated_at FROM conversations WHERE id = ? AND owner = ?`,
		conversationID, owner,
	).Scan(&updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Message{}, ErrNotFound
	}
	if err != nil {
		return Message{}, fmt.Errorf("loading conversation: %w", err)
	}

	now := s.now()
	// Keep creation times non-decreasing within a conversation even if this
	// host's clock is behind the one that wrote the previous message.
	if last, err := parseTime(updatedAt); err == nil && now.Before(last) {
		now = last
	}

	m := Message{
		ID:              uuid.NewString(),
		ConversationID:  conversationID,
		Owner:           owner,
		Role:            role,
		Content:         content,
		OperationRecord: record,
		CreatedAt:       now,
	}
	var rec sql.NullString
	if len(record) > 0 {
		rec = sql.NullString{String: string(record), Valid: true}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, owner, role, content, operation_record, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ConversationID, m.Owner, string(m.Role), m.Content, rec, formatTime(now),
	); err != nil {
		return Message{}, fmt.Errorf("inserting message: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ? AND owner = ?`,
		formatTime(now), conversationID, owner,
	); err != nil {
		return Message{}, fmt.Errorf("touching conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Message{}, fmt.Errorf("committing append: %w", err)
	}
	return m, nil
}

// GetRecentMessages returns up to limit of the newest messages in the
// conversation, oldest first. Missing or foreign conversations produce an
// empty result rather than an error.
func (s *Store) GetRecentMessages(ctx context.Context, conversationID, owner string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, owner, role, content, operation_record, created_at FROM (
			SELECT m.seq, m.id, m.conversation_id, m.owner, m.role, m.content, m.operation_record, m.created_at
			FROM messages m
			JOIN conversations c ON c.id = m.conversation_id
			WHERE m.conversation_id = ? AND c.owner = ? AND m.owner = ?
			ORDER BY m.created_at DESC, m.seq DESC
			LIMIT ?
		) ORDER BY created_at ASC, seq ASC`,
		conversationID, owner, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("loading messages: %w", err)
	}
	defer rows.Close()

	out := []Message{}
	for rows.Next() {
		var m Message
		var role, createdAt string
		var rec sql.NullString
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Owner, &role, &m.Content, &rec, &createdAt); err != nil {
			return nil, err
		}
		m.Role = Role(role)
		if rec.Valid {
			m.OperationRecord = json.RawMessage(rec.String)
		}
		if m.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanConversation(row scanner) (Conversation, error) {
	var c Conversation
	var createdAt, updatedAt string
	if err := row.Scan(&c.ID, &c.Owner, &c.Title, &createdAt, &updatedAt); err != nil {
		return Conversation{}, err
	}
	var err error
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return Conversation{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return Conversation{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return c, nil
}
