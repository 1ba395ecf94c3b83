package database_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/caixaflow/caixabot/internal/database"
)

func newTestStore(t *testing.T) database.Store {
	t.Helper()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { database.CloseDB(db) })

	return database.NewStore(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestUpsertConversation(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.UpsertConversation(ctx, &database.Conversation{
		PlatformChatID: 501,
		Kind:           "direct",
		DisplayName:    "Ana Silva",
		Handle:         "anasilva",
		LastUpdateID:   10,
	})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if first.ID == 0 {
		t.Fatal("first upsert: conversation has no ID")
	}

	// A second upsert for the same chat updates profile fields in place.
	second, err := store.UpsertConversation(ctx, &database.Conversation{
		PlatformChatID: 501,
		Kind:           "direct",
		DisplayName:    "Ana S.",
		Handle:         "anasilva",
		LastUpdateID:   12,
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("conversation ID changed on upsert: %d -> %d", first.ID, second.ID)
	}
	if second.DisplayName != "Ana S." {
		t.Errorf("display name: got %q, want %q", second.DisplayName, "Ana S.")
	}
	if second.LastUpdateID != 12 {
		t.Errorf("last update id: got %d, want 12", second.LastUpdateID)
	}

	// The last update reference never moves backwards.
	third, err := store.UpsertConversation(ctx, &database.Conversation{
		PlatformChatID: 501,
		Kind:           "direct",
		DisplayName:    "Ana S.",
		Handle:         "anasilva",
		LastUpdateID:   11,
	})
	if err != nil {
		t.Fatalf("third upsert: %v", err)
	}
	if third.LastUpdateID != 12 {
		t.Errorf("last update id after stale upsert: got %d, want 12", third.LastUpdateID)
	}
}

func TestAppendMessageIdempotency(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	conv, err := store.UpsertConversation(ctx, &database.Conversation{PlatformChatID: 501, Kind: "direct"})
	if err != nil {
		t.Fatalf("upsert conversation: %v", err)
	}

	msg := database.Message{
		ConversationID:    conv.ID,
		PlatformMessageID: 900,
		Direction:         database.DirectionInbound,
		Origin:            database.OriginHuman,
		Body:              "hello",
	}

	inserted, err := store.AppendMessage(ctx, &msg)
	if err != nil {
		t.Fatalf("first append: %v", err)
	}
	if !inserted {
		t.Fatal("first append: expected insert")
	}

	duplicate := msg
	duplicate.ID = 0
	inserted, err = store.AppendMessage(ctx, &duplicate)
	if err != nil {
		t.Fatalf("duplicate append: %v", err)
	}
	if inserted {
		t.Fatal("duplicate append: expected no-op")
	}

	// Same platform message ID in a different conversation is a new message.
	other, err := store.UpsertConversation(ctx, &database.Conversation{PlatformChatID: 502, Kind: "direct"})
	if err != nil {
		t.Fatalf("upsert second conversation: %v", err)
	}
	inserted, err = store.AppendMessage(ctx, &database.Message{
		ConversationID:    other.ID,
		PlatformMessageID: 900,
		Direction:         database.DirectionInbound,
		Origin:            database.OriginHuman,
		Body:              "hello again",
	})
	if err != nil {
		t.Fatalf("append to second conversation: %v", err)
	}
	if !inserted {
		t.Fatal("append to second conversation: expected insert")
	}

	// The message counter only counts real inserts.
	conv, err = store.UpsertConversation(ctx, &database.Conversation{PlatformChatID: 501, Kind: "direct"})
	if err != nil {
		t.Fatalf("reload conversation: %v", err)
	}
	if conv.MessageCount != 1 {
		t.Errorf("message count: got %d, want 1", conv.MessageCount)
	}
}

func TestMarkMessageRead(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	conv, err := store.UpsertConversation(ctx, &database.Conversation{PlatformChatID: 501, Kind: "direct"})
	if err != nil {
		t.Fatalf("upsert conversation: %v", err)
	}

	outbound := database.Message{
		ConversationID:    conv.ID,
		PlatformMessageID: 901,
		Direction:         database.DirectionOutbound,
		Origin:            database.OriginTemplate,
		Body:              "welcome",
		Status:            database.StatusSent,
	}
	if _, err := store.AppendMessage(ctx, &outbound); err != nil {
		t.Fatalf("append outbound: %v", err)
	}

	if err := store.MarkMessageRead(ctx, outbound.ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	msgs, err := store.ListMessages(ctx, conv.ID, 10, 0)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Status != database.StatusRead {
		t.Fatalf("message after mark read: got %+v", msgs)
	}

	// Marking an unknown message reports ErrNotFound.
	if err := store.MarkMessageRead(ctx, 9999); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("mark unknown message: got %v, want ErrNotFound", err)
	}
}

func TestListMessagesPagination(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	conv, err := store.UpsertConversation(ctx, &database.Conversation{PlatformChatID: 501, Kind: "direct"})
	if err != nil {
		t.Fatalf("upsert conversation: %v", err)
	}

	for i := int64(1); i <= 5; i++ {
		if _, err := store.AppendMessage(ctx, &database.Message{
			ConversationID:    conv.ID,
			PlatformMessageID: 900 + i,
			Direction:         database.DirectionInbound,
			Origin:            database.OriginHuman,
			Body:              "msg",
		}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	page, err := store.ListMessages(ctx, conv.ID, 2, 0)
	if err != nil {
		t.Fatalf("first page: %v", err)
	}
	if len(page) != 2 || page[0].PlatformMessageID != 905 || page[1].PlatformMessageID != 904 {
		t.Fatalf("first page: got %+v", page)
	}

	next, err := store.ListMessages(ctx, conv.ID, 2, page[1].ID)
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if len(next) != 2 || next[0].PlatformMessageID != 903 || next[1].PlatformMessageID != 902 {
		t.Fatalf("second page: got %+v", next)
	}
}

func TestTemplateCRUD(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	tpl := database.Template{Name: "greeting", Body: "hi {{name}}", Category: "onboarding", Active: true}
	if err := store.CreateTemplate(ctx, &tpl); err != nil {
		t.Fatalf("create: %v", err)
	}
	if tpl.ID == 0 {
		t.Fatal("create: template has no ID")
	}

	byName, err := store.GetTemplateByName(ctx, "greeting")
	if err != nil {
		t.Fatalf("get by name: %v", err)
	}
	if byName.Body != "hi {{name}}" {
		t.Errorf("body: got %q", byName.Body)
	}

	tpl.Active = false
	tpl.Body = "hello {{name}}"
	if err := store.UpdateTemplate(ctx, &tpl); err != nil {
		t.Fatalf("update: %v", err)
	}

	// Inactive templates are invisible to name lookup but not to ID lookup.
	if _, err := store.GetTemplateByName(ctx, "greeting"); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("get inactive by name: got %v, want ErrNotFound", err)
	}
	byID, err := store.GetTemplate(ctx, tpl.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if byID.Body != "hello {{name}}" {
		t.Errorf("updated body: got %q", byID.Body)
	}

	if err := store.DeleteTemplate(ctx, tpl.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.GetTemplate(ctx, tpl.ID); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("get deleted: got %v, want ErrNotFound", err)
	}
	if err := store.DeleteTemplate(ctx, tpl.ID); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("delete deleted: got %v, want ErrNotFound", err)
	}
}

func TestStaffNotifications(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	oncall := database.StaffRecipient{Name: "Oncall", Role: "support", Active: true}
	if err := store.SaveStaffRecipient(ctx, &oncall); err != nil {
		t.Fatalf("save active recipient: %v", err)
	}
	former := database.StaffRecipient{Name: "Former", Role: "support", Active: false}
	if err := store.SaveStaffRecipient(ctx, &former); err != nil {
		t.Fatalf("save inactive recipient: %v", err)
	}

	active, err := store.ListActiveStaff(ctx)
	if err != nil {
		t.Fatalf("list active staff: %v", err)
	}
	if len(active) != 1 || active[0].Name != "Oncall" {
		t.Fatalf("active staff: got %+v", active)
	}

	conv, err := store.UpsertConversation(ctx, &database.Conversation{PlatformChatID: 501, Kind: "direct"})
	if err != nil {
		t.Fatalf("upsert conversation: %v", err)
	}
	if err := store.CreateNotification(ctx, oncall.ID, conv.ID, "hello, I need help"); err != nil {
		t.Fatalf("create notification: %v", err)
	}

	notifications, err := store.ListNotifications(ctx, oncall.ID)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	if len(notifications) != 1 || notifications[0].Preview != "hello, I need help" {
		t.Fatalf("notifications: got %+v", notifications)
	}
}
