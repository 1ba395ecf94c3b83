package platform

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

func newFetchClient(srv *httptest.Server, allowedUpdates []string) *TelegramClient {
	return &TelegramClient{
		http:           srv.Client(),
		pollURL:        srv.URL + "/bot123:abc/getUpdates",
		log:            slog.New(slog.NewTextHandler(io.Discard, nil)),
		allowedUpdates: allowedUpdates,
	}
}

func TestFetchUpdates(t *testing.T) {
	t.Parallel()

	var (
		mu  sync.Mutex
		got getUpdatesRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/bot123:abc/getUpdates" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		mu.Lock()
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		// One text message, one command, and one payload-less update that
		// must be dropped at the boundary.
		io.WriteString(w, `{"ok": true, "result": [
			{"update_id": 10, "message": {"message_id": 1, "date": 1756500000, "text": "hello",
				"chat": {"id": 5, "type": "private"}, "from": {"id": 5, "first_name": "Ana"}}},
			{"update_id": 11},
			{"update_id": 12, "message": {"message_id": 2, "date": 1756500001, "text": "/start",
				"chat": {"id": 5, "type": "private"}, "from": {"id": 5, "first_name": "Ana"}}}
		]}`)
	}))
	defer srv.Close()

	client := newFetchClient(srv, []string{"message", "callback_query"})
	updates, err := client.FetchUpdates(context.Background(), 10)
	if err != nil {
		t.Fatalf("FetchUpdates: %v", err)
	}

	mu.Lock()
	if got.Offset != 10 {
		t.Errorf("request offset: got %d, want 10", got.Offset)
	}
	if len(got.AllowedUpdates) != 2 {
		t.Errorf("request allowed_updates: got %v", got.AllowedUpdates)
	}
	mu.Unlock()

	if len(updates) != 2 {
		t.Fatalf("updates: got %d, want 2 (payload-less update dropped)", len(updates))
	}
	if updates[0].ID != 10 || updates[0].Kind != UpdateKindText {
		t.Errorf("first update: got %+v", updates[0])
	}
	if updates[1].ID != 12 || updates[1].Kind != UpdateKindCommand {
		t.Errorf("second update: got %+v", updates[1])
	}
}

func TestFetchUpdatesErrors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		status   int
		body     string
		expected error
	}{
		{
			name:     "credential rejected",
			status:   http.StatusUnauthorized,
			body:     `{"ok": false, "description": "Unauthorized"}`,
			expected: ErrAuth,
		},
		{
			name:     "bot access revoked",
			status:   http.StatusForbidden,
			body:     `{"ok": false, "description": "Forbidden"}`,
			expected: ErrAuth,
		},
		{
			name:     "platform error response",
			status:   http.StatusBadRequest,
			body:     `{"ok": false, "description": "Bad Request"}`,
			expected: ErrNetwork,
		},
		{
			name:     "garbled response body",
			status:   http.StatusOK,
			body:     `{"ok": tru`,
			expected: ErrNetwork,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				io.WriteString(w, tc.body)
			}))
			defer srv.Close()

			client := newFetchClient(srv, nil)
			_, err := client.FetchUpdates(context.Background(), 0)
			if !errors.Is(err, tc.expected) {
				t.Errorf("FetchUpdates error: got %v, want %v", err, tc.expected)
			}
		})
	}
}

func TestFetchUpdatesConnectionFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	client := newFetchClient(srv, nil)
	srv.Close()

	_, err := client.FetchUpdates(context.Background(), 0)
	if !errors.Is(err, ErrNetwork) {
		t.Errorf("FetchUpdates after connection failure: got %v, want ErrNetwork", err)
	}
}
