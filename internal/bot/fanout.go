package bot

import (
	"context"
	"unicode/utf8"

	"github.com/caixaflow/caixabot/internal/database"
)

const previewLength = 80

// fanOut creates one notification per active staff recipient for a newly
// stored inbound text message. Each recipient is independent: a failure to
// notify one is logged and swallowed so the others still get theirs.
func (p *Processor) fanOut(ctx context.Context, conv *database.Conversation, body string) {
	if body == "" {
		return
	}

	staff, err := p.store.ListActiveStaff(ctx)
	if err != nil {
		p.log.ErrorContext(ctx, "Failed to list staff recipients for fan-out", "error", err)
		return
	}
	if len(staff) == 0 {
		return
	}

	preview := truncate(body, previewLength)
	notified := 0
	for _, recipient := range staff {
		if err := p.store.CreateNotification(ctx, recipient.ID, conv.ID, preview); err != nil {
			p.log.ErrorContext(ctx, "Failed to create notification",
				"recipient_id", recipient.ID, "conversation_id", conv.ID, "error", err)
			continue
		}
		notified++
	}

	p.log.DebugContext(ctx, "Inbound message fanned out",
		"conversation_id", conv.ID, "recipients", notified)
}

// truncate shortens s to at most max runes, appending an ellipsis when
// anything was cut.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}

	runes := []rune(s)
	return string(runes[:max]) + "…"
}
