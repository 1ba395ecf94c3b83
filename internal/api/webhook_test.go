package api_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/caixaflow/caixabot/internal/api"
	"github.com/caixaflow/caixabot/internal/bot"
	"github.com/caixaflow/caixabot/internal/config"
	"github.com/caixaflow/caixabot/internal/platform"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeEngine records webhook updates and settings replaces.
type fakeEngine struct {
	mu       sync.Mutex
	secret   string
	settings config.BotSettings
	received []platform.Update

	reconfigureErr error
}

func (e *fakeEngine) Settings() config.BotSettings {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.settings
}

func (e *fakeEngine) Reconfigure(_ context.Context, settings config.BotSettings) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.reconfigureErr != nil {
		return e.reconfigureErr
	}
	e.settings = settings
	return nil
}

func (e *fakeEngine) WebhookSecret() string {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.secret
}

func (e *fakeEngine) HandleWebhookUpdate(u platform.Update) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.received = append(e.received, u)
}

func (e *fakeEngine) Phase() bot.Phase { return bot.PhaseStopped }

func (e *fakeEngine) updates() []platform.Update {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]platform.Update(nil), e.received...)
}

const textUpdateJSON = `{
	"update_id": 42,
	"message": {
		"message_id": 7,
		"date": 1756500000,
		"text": "hello",
		"chat": {"id": 5, "type": "private", "first_name": "Ana"},
		"from": {"id": 5, "first_name": "Ana", "username": "anasilva"}
	}
}`

func webhookRequest(t *testing.T, e *echo.Echo, body, secret string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/webhook/telegram", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if secret != "" {
		req.Header.Set("X-Telegram-Bot-Api-Secret-Token", secret)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestWebhookSecretValidation(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name           string
		configured     string
		presented      string
		expectedStatus int
		expectDropped  bool
	}{
		{
			name:           "matching secret accepted",
			configured:     "s3cret",
			presented:      "s3cret",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "missing secret rejected",
			configured:     "s3cret",
			presented:      "",
			expectedStatus: http.StatusUnauthorized,
			expectDropped:  true,
		},
		{
			name:           "mismatched secret rejected",
			configured:     "s3cret",
			presented:      "wrong",
			expectedStatus: http.StatusUnauthorized,
			expectDropped:  true,
		},
		{
			name:           "no secret configured accepts all",
			configured:     "",
			presented:      "",
			expectedStatus: http.StatusOK,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			engine := &fakeEngine{secret: tc.configured}
			e := echo.New()
			api.NewWebhookHandler(discardLogger(), engine).Register(e)

			rec := webhookRequest(t, e, textUpdateJSON, tc.presented)
			if rec.Code != tc.expectedStatus {
				t.Fatalf("status: got %d, want %d", rec.Code, tc.expectedStatus)
			}

			got := len(engine.updates())
			if tc.expectDropped && got != 0 {
				t.Errorf("updates accepted despite rejection: %d", got)
			}
			if !tc.expectDropped && got != 1 {
				t.Errorf("accepted updates: got %d, want 1", got)
			}
		})
	}
}

func TestWebhookPayloadHandling(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name           string
		body           string
		expectedStatus int
		expectedCount  int
	}{
		{
			name:           "valid update is forwarded",
			body:           textUpdateJSON,
			expectedStatus: http.StatusOK,
			expectedCount:  1,
		},
		{
			name:           "malformed json rejected",
			body:           `{"update_id": `,
			expectedStatus: http.StatusBadRequest,
			expectedCount:  0,
		},
		{
			name:           "unsupported update acked and dropped",
			body:           `{"update_id": 43}`,
			expectedStatus: http.StatusOK,
			expectedCount:  0,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			engine := &fakeEngine{}
			e := echo.New()
			api.NewWebhookHandler(discardLogger(), engine).Register(e)

			rec := webhookRequest(t, e, tc.body, "")
			if rec.Code != tc.expectedStatus {
				t.Fatalf("status: got %d, want %d", rec.Code, tc.expectedStatus)
			}
			if got := len(engine.updates()); got != tc.expectedCount {
				t.Errorf("forwarded updates: got %d, want %d", got, tc.expectedCount)
			}
		})
	}
}

func TestWebhookForwardsParsedUpdate(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{}
	e := echo.New()
	api.NewWebhookHandler(discardLogger(), engine).Register(e)

	rec := webhookRequest(t, e, textUpdateJSON, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}

	got := engine.updates()
	if len(got) != 1 {
		t.Fatalf("forwarded updates: got %d, want 1", len(got))
	}
	u := got[0]
	if u.ID != 42 || u.MessageID != 7 || u.Text != "hello" || u.Kind != platform.UpdateKindText {
		t.Errorf("forwarded update: got %+v", u)
	}
}
