package bot

import (
	"strings"

	"github.com/caixaflow/caixabot/internal/config"
	"github.com/caixaflow/caixabot/internal/platform"
)

// The closed set of commands the bot understands.
const (
	CommandStart = "start"
	CommandHelp  = "help"
	CommandInfo  = "info"
)

// Router classifies inbound message text and selects the reply for commands.
// A body whose first character is the command marker is a command; its
// leading token (up to the first whitespace, with any @botname suffix
// stripped) selects the handler. Unrecognized commands receive the generic
// not-recognized reply rather than being silently dropped.
type Router struct {
	replies config.AutoReplyConfig
}

// NewRouter creates a router with the given reply texts.
func NewRouter(replies config.AutoReplyConfig) *Router {
	return &Router{replies: replies}
}

// ParseCommand extracts the command name from a message body. It returns
// false when the body is not command-marked.
func ParseCommand(text string) (string, bool) {
	if !strings.HasPrefix(text, platform.CommandMarker) {
		return "", false
	}

	token := text[len(platform.CommandMarker):]
	if idx := strings.IndexFunc(token, isSpace); idx >= 0 {
		token = token[:idx]
	}
	// Telegram suffixes commands with the bot handle in group chats.
	if idx := strings.Index(token, "@"); idx >= 0 {
		token = token[:idx]
	}

	if token == "" {
		return "", false
	}
	return strings.ToLower(token), true
}

// Reply returns the reply text for a command and whether the command belongs
// to the known set.
func (r *Router) Reply(command string) (string, bool) {
	switch command {
	case CommandStart:
		return r.replies.WelcomeReply, true
	case CommandHelp:
		return r.replies.HelpReply, true
	case CommandInfo:
		return r.replies.InfoReply, true
	default:
		return r.replies.UnknownCmdReply, false
	}
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n'
}
