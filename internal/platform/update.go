package platform

import (
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/go-telegram/bot/models"
)

// CommandMarker is the first character that marks a message body as a command.
const CommandMarker = "/"

// UpdateKind is the closed set of inbound update variants the engine handles.
type UpdateKind string

const (
	UpdateKindCommand  UpdateKind = "command"
	UpdateKindText     UpdateKind = "text"
	UpdateKindCallback UpdateKind = "callback"
)

// ChatKind is the closed set of conversation kinds.
type ChatKind string

const (
	ChatKindDirect  ChatKind = "direct"
	ChatKindGroup   ChatKind = "group"
	ChatKindChannel ChatKind = "channel"
)

// Update is the internal shape of a single inbound event, produced at the
// ingress boundary (webhook or poll) and identical for both delivery modes.
type Update struct {
	// ID is the platform-assigned monotonic update identifier. Zero for
	// webhook-delivered updates, which carry no usable client-side offset.
	ID   int64
	Kind UpdateKind

	ChatID    int64
	ChatKind  ChatKind
	ChatTitle string

	SenderID   int64
	SenderName string
	Handle     string

	// MessageID is unique within a chat and is the idempotency key for
	// message persistence.
	MessageID int64

	Text         string
	CallbackData string
	SentAt       time.Time
}

// FromTelegram validates and converts a raw Telegram update into the internal
// Update shape. Updates carrying neither a text message nor a callback query
// are rejected here so nothing downstream has to deal with partial payloads.
func FromTelegram(u *models.Update) (Update, error) {
	if u == nil {
		return Update{}, fmt.Errorf("nil update")
	}

	switch {
	case u.Message != nil:
		msg := u.Message
		if msg.From == nil {
			return Update{}, fmt.Errorf("update %d: message without sender", u.ID)
		}
		if strings.TrimSpace(msg.Text) == "" {
			return Update{}, fmt.Errorf("update %d: message without text", u.ID)
		}

		kind := UpdateKindText
		if strings.HasPrefix(msg.Text, CommandMarker) {
			kind = UpdateKindCommand
		}

		return Update{
			ID:           u.ID,
			Kind:         kind,
			ChatID:       msg.Chat.ID,
			ChatKind:     chatKind(msg.Chat),
			ChatTitle:    chatTitle(msg.Chat),
			SenderID:     msg.From.ID,
			SenderName:   strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName),
			Handle:       msg.From.Username,
			MessageID:    int64(msg.ID),
			Text:         msg.Text,
			SentAt:       time.Unix(int64(msg.Date), 0),
		}, nil

	case u.CallbackQuery != nil:
		cb := u.CallbackQuery
		if cb.ID == "" {
			return Update{}, fmt.Errorf("update %d: callback without query id", u.ID)
		}
		out := Update{
			ID:   u.ID,
			Kind: UpdateKindCallback,
			// The attached message's ID already names the message the button
			// sits on; the press itself needs its own idempotency key, derived
			// from the query ID.
			MessageID:    callbackMessageKey(cb.ID),
			SenderID:     cb.From.ID,
			SenderName:   strings.TrimSpace(cb.From.FirstName + " " + cb.From.LastName),
			Handle:       cb.From.Username,
			CallbackData: cb.Data,
			SentAt:       time.Now(),
		}
		if cb.Message.Message != nil {
			out.ChatID = cb.Message.Message.Chat.ID
			out.ChatKind = chatKind(cb.Message.Message.Chat)
			out.ChatTitle = chatTitle(cb.Message.Message.Chat)
		}
		if out.ChatID == 0 {
			return Update{}, fmt.Errorf("update %d: callback without accessible chat", u.ID)
		}
		return out, nil

	default:
		return Update{}, fmt.Errorf("update %d: unsupported update kind", u.ID)
	}
}

// callbackMessageKey maps a callback query ID onto the numeric message-ID
// space so a redelivered press collides with its first persistence instead of
// with the message the button is attached to.
func callbackMessageKey(queryID string) int64 {
	h := fnv.New64a()
	h.Write([]byte(queryID))
	return int64(h.Sum64())
}

func chatKind(c models.Chat) ChatKind {
	switch string(c.Type) {
	case "group", "supergroup":
		return ChatKindGroup
	case "channel":
		return ChatKindChannel
	default:
		return ChatKindDirect
	}
}

func chatTitle(c models.Chat) string {
	if c.Title != "" {
		return c.Title
	}
	name := strings.TrimSpace(c.FirstName + " " + c.LastName)
	if name != "" {
		return name
	}
	return c.Username
}
