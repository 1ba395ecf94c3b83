package bot_test

import (
	"testing"

	"github.com/caixaflow/caixabot/internal/bot"
	"github.com/caixaflow/caixabot/internal/config"
)

func TestParseCommand(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		text      string
		command   string
		isCommand bool
	}{
		{
			name:      "plain text",
			text:      "what are your opening hours?",
			isCommand: false,
		},
		{
			name:      "simple command",
			text:      "/start",
			command:   "start",
			isCommand: true,
		},
		{
			name:      "command with arguments",
			text:      "/help me please",
			command:   "help",
			isCommand: true,
		},
		{
			name:      "command with bot handle suffix",
			text:      "/info@caixabot",
			command:   "info",
			isCommand: true,
		},
		{
			name:      "uppercase command is lowered",
			text:      "/START",
			command:   "start",
			isCommand: true,
		},
		{
			name:      "bare marker",
			text:      "/",
			isCommand: false,
		},
		{
			name:      "marker mid-text is not a command",
			text:      "see /start above",
			isCommand: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			command, ok := bot.ParseCommand(tc.text)
			if ok != tc.isCommand {
				t.Fatalf("ParseCommand(%q) ok: got %v, want %v", tc.text, ok, tc.isCommand)
			}
			if command != tc.command {
				t.Errorf("ParseCommand(%q): got %q, want %q", tc.text, command, tc.command)
			}
		})
	}
}

func TestRouterReply(t *testing.T) {
	t.Parallel()

	router := bot.NewRouter(config.AutoReplyConfig{
		WelcomeReply:    "welcome!",
		HelpReply:       "here is how this works",
		InfoReply:       "we are caixaflow",
		UnknownCmdReply: "command not recognized",
	})

	testCases := []struct {
		name    string
		command string
		reply   string
		known   bool
	}{
		{name: "start", command: "start", reply: "welcome!", known: true},
		{name: "help", command: "help", reply: "here is how this works", known: true},
		{name: "info", command: "info", reply: "we are caixaflow", known: true},
		{name: "unknown", command: "frobnicate", reply: "command not recognized", known: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			reply, known := router.Reply(tc.command)
			if known != tc.known {
				t.Fatalf("Reply(%q) known: got %v, want %v", tc.command, known, tc.known)
			}
			if reply != tc.reply {
				t.Errorf("Reply(%q): got %q, want %q", tc.command, reply, tc.reply)
			}
		})
	}
}
