package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Store defines the interface for database operations.
// Methods accept context.Context for cancellation and timeouts.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// UpsertConversation inserts a new conversation for an unseen platform
	// chat identifier, or updates the mutable profile fields (display name,
	// handle, kind, last update reference) on the existing record. It never
	// creates a duplicate. The stored row is returned either way.
	UpsertConversation(ctx context.Context, conv *Conversation) (*Conversation, error)

	// AppendMessage inserts a message idempotently keyed on
	// (conversation_id, platform_message_id). The second return value
	// reports whether a row was actually inserted; a repeated delivery of
	// the same platform message identifier returns false with no error.
	AppendMessage(ctx context.Context, msg *Message) (bool, error)

	// MarkMessageRead transitions an outbound message's status to read.
	MarkMessageRead(ctx context.Context, messageID uint) error

	// ListConversations returns conversations in reverse creation order,
	// paginated with a before-ID cursor (0 means from the newest).
	ListConversations(ctx context.Context, limit int, beforeID uint) ([]Conversation, error)

	// ListMessages returns a conversation's messages in reverse creation
	// order, paginated with a before-ID cursor (0 means from the newest).
	ListMessages(ctx context.Context, conversationID uint, limit int, beforeID uint) ([]Message, error)

	// CreateTemplate inserts a new template record.
	CreateTemplate(ctx context.Context, tpl *Template) error

	// GetTemplate retrieves a template by ID. Returns ErrNotFound if absent.
	GetTemplate(ctx context.Context, id uint) (*Template, error)

	// GetTemplateByName retrieves an active template by its unique name.
	// Returns ErrNotFound if absent or inactive.
	GetTemplateByName(ctx context.Context, name string) (*Template, error)

	// UpdateTemplate replaces a template's mutable fields.
	UpdateTemplate(ctx context.Context, tpl *Template) error

	// DeleteTemplate hard-deletes a template.
	DeleteTemplate(ctx context.Context, id uint) error

	// ListTemplates returns all templates in creation order.
	ListTemplates(ctx context.Context) ([]Template, error)

	// SaveStaffRecipient inserts a staff notification recipient.
	SaveStaffRecipient(ctx context.Context, r *StaffRecipient) error

	// ListActiveStaff returns all active staff recipients.
	ListActiveStaff(ctx context.Context) ([]StaffRecipient, error)

	// CreateNotification records one notification for a staff recipient.
	CreateNotification(ctx context.Context, recipientID, conversationID uint, preview string) error

	// ListNotifications returns a recipient's notifications in reverse
	// creation order.
	ListNotifications(ctx context.Context, recipientID uint) ([]Notification, error)
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store implementation backed by sqlx.
// It requires a connected sqlx.DB instance and a logger.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// UpsertConversation inserts or updates a conversation keyed on its platform
// chat identifier.
func (s *sqlxStore) UpsertConversation(ctx context.Context, conv *Conversation) (*Conversation, error) {
	if conv == nil {
		return nil, fmt.Errorf("cannot upsert nil conversation")
	}
	if conv.PlatformChatID == 0 {
		return nil, fmt.Errorf("conversation must have a non-zero platform_chat_id")
	}
	if conv.Kind == "" {
		conv.Kind = "direct"
	}

	now := time.Now().UTC()
	conv.CreatedAt = now
	conv.UpdatedAt = now

	query := `
        INSERT INTO conversations (created_at, updated_at, platform_chat_id, kind, display_name, handle, last_update_id)
        VALUES (:created_at, :updated_at, :platform_chat_id, :kind, :display_name, :handle, :last_update_id)
        ON CONFLICT (platform_chat_id) DO UPDATE SET
            updated_at     = excluded.updated_at,
            kind           = excluded.kind,
            display_name   = excluded.display_name,
            handle         = excluded.handle,
            last_update_id = MAX(conversations.last_update_id, excluded.last_update_id);
    `

	if _, err := s.db.NamedExecContext(ctx, query, conv); err != nil {
		s.logger.ErrorContext(ctx, "Error upserting conversation", "platform_chat_id", conv.PlatformChatID, "error", err)
		return nil, fmt.Errorf("failed to upsert conversation (chat %d): %w", conv.PlatformChatID, err)
	}

	var stored Conversation
	if err := s.db.GetContext(ctx, &stored,
		`SELECT * FROM conversations WHERE platform_chat_id = ?;`, conv.PlatformChatID); err != nil {
		return nil, fmt.Errorf("failed to load conversation after upsert (chat %d): %w", conv.PlatformChatID, err)
	}

	s.logger.DebugContext(ctx, "Conversation upserted", "platform_chat_id", conv.PlatformChatID, "conversation_id", stored.ID)
	return &stored, nil
}

// AppendMessage inserts a message if its (conversation, platform message id)
// pair is unseen and bumps the conversation's running message count. The
// insert and the counter update share one transaction.
func (s *sqlxStore) AppendMessage(ctx context.Context, msg *Message) (bool, error) {
	if msg == nil {
		return false, fmt.Errorf("cannot append nil message")
	}
	if msg.ConversationID == 0 {
		return false, fmt.Errorf("message must have a non-zero conversation_id")
	}
	if msg.PlatformMessageID == 0 {
		return false, fmt.Errorf("message must have a non-zero platform_message_id")
	}
	if msg.Body == "" {
		return false, fmt.Errorf("message must have a non-empty body")
	}
	if msg.Status == "" {
		if msg.Direction == DirectionInbound {
			msg.Status = StatusReceived
		} else {
			msg.Status = StatusSent
		}
	}
	msg.CreatedAt = time.Now().UTC()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
			}
		}
	}()

	query := `
        INSERT INTO messages (created_at, conversation_id, platform_message_id, direction, origin, body, status)
        VALUES (:created_at, :conversation_id, :platform_message_id, :direction, :origin, :body, :status)
        ON CONFLICT (conversation_id, platform_message_id) DO NOTHING;
    `

	result, err := tx.NamedExecContext(ctx, query, msg)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error appending message",
			"conversation_id", msg.ConversationID, "platform_message_id", msg.PlatformMessageID, "error", err)
		return false, fmt.Errorf("failed to append message (conversation %d, platform id %d): %w",
			msg.ConversationID, msg.PlatformMessageID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		// Duplicate delivery of an already-stored platform message.
		s.logger.DebugContext(ctx, "Duplicate message delivery ignored",
			"conversation_id", msg.ConversationID, "platform_message_id", msg.PlatformMessageID)
		return false, nil
	}

	if id, err := result.LastInsertId(); err == nil {
		//nolint:gosec // integer overflow conversion is acceptable here
		msg.ID = uint(id)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET message_count = message_count + 1, updated_at = ? WHERE id = ?;`,
		time.Now().UTC(), msg.ConversationID); err != nil {
		return false, fmt.Errorf("failed to bump conversation message count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil

	s.logger.DebugContext(ctx, "Message appended",
		"conversation_id", msg.ConversationID, "platform_message_id", msg.PlatformMessageID,
		"direction", msg.Direction, "origin", msg.Origin)
	return true, nil
}

// MarkMessageRead transitions a sent or delivered message to read.
func (s *sqlxStore) MarkMessageRead(ctx context.Context, messageID uint) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE messages SET status = ? WHERE id = ? AND status IN (?, ?);`,
		StatusRead, messageID, StatusSent, StatusDelivered)
	if err != nil {
		return fmt.Errorf("failed to mark message %d read: %w", messageID, err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("message %d: %w", messageID, ErrNotFound)
	}
	return nil
}

// ListConversations returns conversations newest-first with a before-ID cursor.
func (s *sqlxStore) ListConversations(ctx context.Context, limit int, beforeID uint) ([]Conversation, error) {
	limit = clampLimit(limit)

	query := `SELECT * FROM conversations WHERE (? = 0 OR id < ?) ORDER BY id DESC LIMIT ?;`

	var conversations []Conversation
	if err := s.db.SelectContext(ctx, &conversations, query, beforeID, beforeID, limit); err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return conversations, nil
}

// ListMessages returns a conversation's messages newest-first with a
// before-ID cursor.
func (s *sqlxStore) ListMessages(ctx context.Context, conversationID uint, limit int, beforeID uint) ([]Message, error) {
	if conversationID == 0 {
		return nil, fmt.Errorf("conversation_id cannot be zero")
	}
	limit = clampLimit(limit)

	query := `
        SELECT * FROM messages
        WHERE conversation_id = ? AND (? = 0 OR id < ?)
        ORDER BY id DESC
        LIMIT ?;
    `

	var messages []Message
	if err := s.db.SelectContext(ctx, &messages, query, conversationID, beforeID, beforeID, limit); err != nil {
		return nil, fmt.Errorf("failed to list messages (conversation %d): %w", conversationID, err)
	}
	return messages, nil
}

// CreateTemplate inserts a new template record.
func (s *sqlxStore) CreateTemplate(ctx context.Context, tpl *Template) error {
	if tpl == nil {
		return fmt.Errorf("cannot create nil template")
	}
	if tpl.Name == "" {
		return fmt.Errorf("template must have a name")
	}

	now := time.Now().UTC()
	tpl.CreatedAt = now
	tpl.UpdatedAt = now

	query := `
        INSERT INTO templates (created_at, updated_at, name, body, category, active)
        VALUES (:created_at, :updated_at, :name, :body, :category, :active);
    `

	result, err := s.db.NamedExecContext(ctx, query, tpl)
	if err != nil {
		return fmt.Errorf("failed to create template %q: %w", tpl.Name, err)
	}
	if id, err := result.LastInsertId(); err == nil {
		//nolint:gosec // integer overflow conversion is acceptable here
		tpl.ID = uint(id)
	}
	return nil
}

// GetTemplate retrieves a template by ID.
func (s *sqlxStore) GetTemplate(ctx context.Context, id uint) (*Template, error) {
	var tpl Template
	err := s.db.GetContext(ctx, &tpl, `SELECT * FROM templates WHERE id = ?;`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("template %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template %d: %w", id, err)
	}
	return &tpl, nil
}

// GetTemplateByName retrieves an active template by name.
func (s *sqlxStore) GetTemplateByName(ctx context.Context, name string) (*Template, error) {
	var tpl Template
	err := s.db.GetContext(ctx, &tpl, `SELECT * FROM templates WHERE name = ? AND active = 1;`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("template %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template %q: %w", name, err)
	}
	return &tpl, nil
}

// UpdateTemplate replaces a template's mutable fields.
func (s *sqlxStore) UpdateTemplate(ctx context.Context, tpl *Template) error {
	if tpl == nil || tpl.ID == 0 {
		return fmt.Errorf("cannot update template without an ID")
	}
	tpl.UpdatedAt = time.Now().UTC()

	query := `
        UPDATE templates
        SET updated_at = :updated_at, name = :name, body = :body, category = :category, active = :active
        WHERE id = :id;
    `

	result, err := s.db.NamedExecContext(ctx, query, tpl)
	if err != nil {
		return fmt.Errorf("failed to update template %d: %w", tpl.ID, err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("template %d: %w", tpl.ID, ErrNotFound)
	}
	return nil
}

// DeleteTemplate hard-deletes a template.
func (s *sqlxStore) DeleteTemplate(ctx context.Context, id uint) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM templates WHERE id = ?;`, id)
	if err != nil {
		return fmt.Errorf("failed to delete template %d: %w", id, err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("template %d: %w", id, ErrNotFound)
	}
	return nil
}

// ListTemplates returns all templates in creation order.
func (s *sqlxStore) ListTemplates(ctx context.Context) ([]Template, error) {
	var templates []Template
	if err := s.db.SelectContext(ctx, &templates, `SELECT * FROM templates ORDER BY id;`); err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	return templates, nil
}

// SaveStaffRecipient inserts a staff notification recipient.
func (s *sqlxStore) SaveStaffRecipient(ctx context.Context, r *StaffRecipient) error {
	if r == nil || r.Name == "" || r.Role == "" {
		return fmt.Errorf("staff recipient must have a name and a role")
	}
	r.CreatedAt = time.Now().UTC()

	query := `
        INSERT INTO staff_recipients (created_at, name, role, active)
        VALUES (:created_at, :name, :role, :active);
    `

	result, err := s.db.NamedExecContext(ctx, query, r)
	if err != nil {
		return fmt.Errorf("failed to save staff recipient %q: %w", r.Name, err)
	}
	if id, err := result.LastInsertId(); err == nil {
		//nolint:gosec // integer overflow conversion is acceptable here
		r.ID = uint(id)
	}
	return nil
}

// ListActiveStaff returns all active staff recipients.
func (s *sqlxStore) ListActiveStaff(ctx context.Context) ([]StaffRecipient, error) {
	var staff []StaffRecipient
	if err := s.db.SelectContext(ctx, &staff, `SELECT * FROM staff_recipients WHERE active = 1 ORDER BY id;`); err != nil {
		return nil, fmt.Errorf("failed to list staff recipients: %w", err)
	}
	return staff, nil
}

// CreateNotification records one notification for a staff recipient.
func (s *sqlxStore) CreateNotification(ctx context.Context, recipientID, conversationID uint, preview string) error {
	if recipientID == 0 || conversationID == 0 {
		return fmt.Errorf("notification must reference a recipient and a conversation")
	}

	query := `
        INSERT INTO notifications (created_at, recipient_id, conversation_id, preview)
        VALUES (?, ?, ?, ?);
    `

	if _, err := s.db.ExecContext(ctx, query, time.Now().UTC(), recipientID, conversationID, preview); err != nil {
		return fmt.Errorf("failed to create notification (recipient %d): %w", recipientID, err)
	}
	return nil
}

// ListNotifications returns a recipient's notifications newest-first.
func (s *sqlxStore) ListNotifications(ctx context.Context, recipientID uint) ([]Notification, error) {
	var notifications []Notification
	query := `SELECT * FROM notifications WHERE recipient_id = ? ORDER BY id DESC;`
	if err := s.db.SelectContext(ctx, &notifications, query, recipientID); err != nil {
		return nil, fmt.Errorf("failed to list notifications (recipient %d): %w", recipientID, err)
	}
	return notifications, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}
