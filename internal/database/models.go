package database

import "time"

// Message direction values (closed set).
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Message origin values (closed set).
const (
	OriginHuman    = "human"
	OriginTemplate = "template"
	OriginAI       = "ai"
)

// Message status values. Inbound messages are stored as received; outbound
// messages start as sent and may transition delivered -> read.
const (
	StatusReceived  = "received"
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
)

// Conversation is one remote chat/contact. The platform chat identifier is
// the external key and never changes; profile fields are updated in place on
// every inbound message, the row itself is never replaced or deleted here.
type Conversation struct {
	ID        uint      `db:"id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`

	PlatformChatID int64  `db:"platform_chat_id"`
	Kind           string `db:"kind"`
	DisplayName    string `db:"display_name"`
	Handle         string `db:"handle"`
	LastUpdateID   int64  `db:"last_update_id"`
	MessageCount   int64  `db:"message_count"`
}

// Message is one inbound or outbound unit of text, immutable once created
// except for its status. (conversation_id, platform_message_id) is unique and
// makes repeated delivery of the same platform message a no-op.
type Message struct {
	ID        uint      `db:"id"`
	CreatedAt time.Time `db:"created_at"`

	ConversationID    uint   `db:"conversation_id"`
	PlatformMessageID int64  `db:"platform_message_id"`
	Direction         string `db:"direction"`
	Origin            string `db:"origin"`
	Body              string `db:"body"`
	Status            string `db:"status"`
}

// Template is a named, versionless message body with {{name}} placeholders.
type Template struct {
	ID        uint      `db:"id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`

	Name     string `db:"name"`
	Body     string `db:"body"`
	Category string `db:"category"`
	Active   bool   `db:"active"`
}

// StaffRecipient is a staff member subscribed to inbound-message
// notifications.
type StaffRecipient struct {
	ID        uint      `db:"id"`
	CreatedAt time.Time `db:"created_at"`

	Name   string `db:"name"`
	Role   string `db:"role"`
	Active bool   `db:"active"`
}

// Notification references a conversation with a truncated preview of the
// inbound message body, one per subscribed staff recipient.
type Notification struct {
	ID        uint      `db:"id"`
	CreatedAt time.Time `db:"created_at"`

	RecipientID    uint   `db:"recipient_id"`
	ConversationID uint   `db:"conversation_id"`
	Preview        string `db:"preview"`
	Read           bool   `db:"read"`
}
