package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/caixaflow/caixabot/internal/ai"
	"github.com/caixaflow/caixabot/internal/config"
	"github.com/caixaflow/caixabot/internal/database"
	"github.com/caixaflow/caixabot/internal/platform"
	"github.com/caixaflow/caixabot/internal/template"
)

const (
	sendTimeout   = 10 * time.Second
	dbSaveTimeout = 5 * time.Second
)

// Processor runs the per-update pipeline: persist the inbound message, route
// it (command handler, business-hours gate, auto-reply or AI responder),
// deliver the reply, and fan out staff notifications. It is shared by the
// polling and webhook ingestion paths.
//
// Persistence failures make HandleUpdate return an error so the sequencer
// does not advance past the update; reply delivery and notification failures
// are logged and swallowed so one bad send never aborts a batch.
type Processor struct {
	log   *slog.Logger
	store database.Store
	now   func() time.Time

	mu        sync.RWMutex
	settings  config.BotSettings
	router    *Router
	client    platform.Client
	responder ai.Responder
}

// NewProcessor creates the pipeline with its initial settings. The platform
// client and responder are swapped on reconfiguration.
func NewProcessor(log *slog.Logger, store database.Store, client platform.Client, responder ai.Responder, settings config.BotSettings) *Processor {
	return &Processor{
		log:       log.With("component", "processor"),
		store:     store,
		now:       time.Now,
		settings:  settings,
		router:    NewRouter(settings.AutoReply),
		client:    client,
		responder: responder,
	}
}

// Reconfigure replaces the settings, client, and responder as a unit.
func (p *Processor) Reconfigure(settings config.BotSettings, client platform.Client, responder ai.Responder) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.settings = settings
	p.router = NewRouter(settings.AutoReply)
	p.client = client
	p.responder = responder
}

// Settings returns the currently active settings value.
func (p *Processor) Settings() config.BotSettings {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.settings
}

// HandleUpdate processes one inbound update end to end. It is idempotent on
// the update's platform message identifier: a repeated delivery persists
// nothing new, sends no second reply, and fans out no second notification.
func (p *Processor) HandleUpdate(ctx context.Context, u platform.Update) error {
	p.mu.RLock()
	settings := p.settings
	router := p.router
	client := p.client
	responder := p.responder
	p.mu.RUnlock()

	log := p.log.With("update_id", u.ID, "chat_id", u.ChatID)

	conv, err := p.persistInbound(ctx, u)
	if err != nil {
		log.ErrorContext(ctx, "Failed to persist inbound update", "error", err)
		return err
	}
	if conv == nil {
		// Duplicate delivery; everything after persistence already ran.
		return nil
	}

	switch u.Kind {
	case platform.UpdateKindCommand:
		command, ok := ParseCommand(u.Text)
		if !ok {
			return nil
		}
		reply, known := router.Reply(command)
		if !known {
			log.InfoContext(ctx, "Unrecognized command", "command", command)
		}
		p.sendReply(ctx, client, conv, reply, database.OriginTemplate)
		return nil

	case platform.UpdateKindText:
		p.replyToText(ctx, settings, client, responder, conv, u)
		p.fanOut(ctx, conv, u.Text)
		return nil

	default:
		// Callbacks are persisted for the conversation history only.
		return nil
	}
}

// persistInbound upserts the conversation and appends the inbound message.
// It returns (nil, nil) when the message was a duplicate delivery.
func (p *Processor) persistInbound(ctx context.Context, u platform.Update) (*database.Conversation, error) {
	ctx, cancel := context.WithTimeout(ctx, dbSaveTimeout)
	defer cancel()

	conv, err := p.store.UpsertConversation(ctx, &database.Conversation{
		PlatformChatID: u.ChatID,
		Kind:           string(u.ChatKind),
		DisplayName:    displayName(u),
		Handle:         u.Handle,
		LastUpdateID:   u.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("upsert conversation: %w", err)
	}

	body := u.Text
	if u.Kind == platform.UpdateKindCallback {
		body = u.CallbackData
	}

	inserted, err := p.store.AppendMessage(ctx, &database.Message{
		ConversationID:    conv.ID,
		PlatformMessageID: u.MessageID,
		Direction:         database.DirectionInbound,
		Origin:            database.OriginHuman,
		Body:              body,
		Status:            database.StatusReceived,
	})
	if err != nil {
		return nil, fmt.Errorf("append inbound message: %w", err)
	}
	if !inserted {
		return nil, nil
	}
	return conv, nil
}

// replyToText applies the business-hours gate and sends the appropriate
// automated reply, if any.
func (p *Processor) replyToText(ctx context.Context, settings config.BotSettings, client platform.Client, responder ai.Responder, conv *database.Conversation, u platform.Update) {
	vars := map[string]string{
		"name":   conv.DisplayName,
		"handle": conv.Handle,
	}

	if !InBusinessHours(p.now(), settings.BusinessHours) {
		reply := template.Render(settings.AutoReply.OutOfHoursReply, vars)
		if reply != "" {
			p.sendReply(ctx, client, conv, reply, database.OriginTemplate)
		}
		return
	}

	if settings.AIReply.Enabled && responder != nil {
		sessionID := "conv-" + strconv.FormatInt(conv.PlatformChatID, 10)
		completion, err := responder.Complete(ctx, sessionID, u.Text, []string{string(u.ChatKind)})
		if err != nil {
			if !errors.Is(err, ai.ErrUpstream) {
				p.log.ErrorContext(ctx, "Unexpected responder error", "error", err)
			}
			p.log.WarnContext(ctx, "AI reply failed, sending fallback", "chat_id", u.ChatID, "error", err)
			p.sendReply(ctx, client, conv, template.Render(settings.AutoReply.FallbackReply, vars), database.OriginTemplate)
			return
		}
		p.sendReply(ctx, client, conv, completion.Text, database.OriginAI)
		return
	}

	if settings.AutoReply.Enabled {
		reply := template.Render(settings.AutoReply.InHoursReply, vars)
		if reply != "" {
			p.sendReply(ctx, client, conv, reply, database.OriginTemplate)
		}
		return
	}

	// Neither auto-reply nor AI reply enabled: the message is persisted and
	// fanned out to staff only.
}

// sendReply delivers a reply and records it as an outbound message. Failures
// are logged; the conversation continues either way.
func (p *Processor) sendReply(ctx context.Context, client platform.Client, conv *database.Conversation, body string, origin string) {
	if client == nil || body == "" {
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	messageID, err := client.SendText(sendCtx, conv.PlatformChatID, body, nil)
	if err != nil {
		p.log.ErrorContext(ctx, "Failed to send reply", "chat_id", conv.PlatformChatID, "error", err)
		return
	}

	saveCtx, cancel := context.WithTimeout(ctx, dbSaveTimeout)
	defer cancel()

	if _, err := p.store.AppendMessage(saveCtx, &database.Message{
		ConversationID:    conv.ID,
		PlatformMessageID: messageID,
		Direction:         database.DirectionOutbound,
		Origin:            origin,
		Body:              body,
		Status:            database.StatusSent,
	}); err != nil {
		p.log.ErrorContext(ctx, "Failed to record outbound message", "chat_id", conv.PlatformChatID, "error", err)
	}
}

func displayName(u platform.Update) string {
	if u.ChatKind == platform.ChatKindDirect && u.SenderName != "" {
		return u.SenderName
	}
	if u.ChatTitle != "" {
		return u.ChatTitle
	}
	return u.Handle
}
