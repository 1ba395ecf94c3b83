// Package platform wraps the external chat platform's REST API behind a thin
// client and defines the internal Update shape produced at the ingress
// boundary. The client carries no business logic and no retries; retry
// policy belongs to the polling supervisor.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const apiBaseURL = "https://api.telegram.org"

// Identity describes the bot account as reported by the platform.
type Identity struct {
	ID     int64
	Handle string
	Name   string
}

// SendOptions carries optional formatting for outbound messages.
type SendOptions struct {
	ParseMode string
}

// Client is the contract the ingestion engine uses to talk to the platform.
type Client interface {
	// FetchUpdates returns updates with identifier >= sinceOffset, in the
	// order the platform reports them. An empty result is not an error.
	FetchUpdates(ctx context.Context, sinceOffset int64) ([]Update, error)

	// SendText delivers a text message and returns the platform-assigned
	// message identifier. Fails with ErrDelivery on platform rejection.
	SendText(ctx context.Context, chatID int64, body string, opts *SendOptions) (int64, error)

	// RegisterWebhook subscribes the given URL for push delivery, protected
	// by the shared secret.
	RegisterWebhook(ctx context.Context, url, secret string) error

	// DropWebhook removes any webhook subscription so polling can take over.
	DropWebhook(ctx context.Context) error

	// Identity fetches the bot account identity. Fails with ErrAuth when
	// the credential is rejected.
	Identity(ctx context.Context) (Identity, error)
}

// TelegramClient implements Client on top of the go-telegram/bot API bindings.
// The bindings expose getUpdates only through their own internal polling loop,
// so the fetch call goes straight to the HTTP endpoint; everything else uses
// the bindings.
type TelegramClient struct {
	api            *tgbot.Bot
	http           *http.Client
	pollURL        string
	log            *slog.Logger
	allowedUpdates []string
}

// NewTelegramClient creates a client for the given bot token. No network call
// is made here; credential validity surfaces on the first Identity call.
func NewTelegramClient(token string, allowedUpdates []string, log *slog.Logger) (*TelegramClient, error) {
	api, err := tgbot.New(token, tgbot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram api client: %w", err)
	}

	return &TelegramClient{
		api:            api,
		http:           &http.Client{Timeout: 30 * time.Second},
		pollURL:        apiBaseURL + "/bot" + token + "/getUpdates",
		log:            log.With("component", "platform_client"),
		allowedUpdates: allowedUpdates,
	}, nil
}

type getUpdatesRequest struct {
	Offset         int64    `json:"offset,omitempty"`
	AllowedUpdates []string `json:"allowed_updates,omitempty"`
}

type getUpdatesResponse struct {
	OK          bool             `json:"ok"`
	Description string           `json:"description"`
	Result      []*models.Update `json:"result"`
}

// FetchUpdates performs one getUpdates call. Raw updates that fail boundary
// validation (unsupported kinds, empty payloads) are dropped with a debug log
// rather than surfaced as errors.
func (c *TelegramClient) FetchUpdates(ctx context.Context, sinceOffset int64) ([]Update, error) {
	payload, err := json.Marshal(getUpdatesRequest{
		Offset:         sinceOffset,
		AllowedUpdates: c.allowedUpdates,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode getUpdates request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.pollURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build getUpdates request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: getUpdates: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: getUpdates: status %d", ErrAuth, resp.StatusCode)
	}

	var decoded getUpdatesResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: getUpdates: decoding response: %v", ErrNetwork, err)
	}
	if !decoded.OK {
		return nil, fmt.Errorf("%w: getUpdates: %s", ErrNetwork, decoded.Description)
	}

	updates := make([]Update, 0, len(decoded.Result))
	for _, r := range decoded.Result {
		u, err := FromTelegram(r)
		if err != nil {
			c.log.DebugContext(ctx, "Dropping update at ingress boundary", "error", err)
			continue
		}
		updates = append(updates, u)
	}
	return updates, nil
}

// SendText delivers a text message to the given chat.
func (c *TelegramClient) SendText(ctx context.Context, chatID int64, body string, opts *SendOptions) (int64, error) {
	params := &tgbot.SendMessageParams{
		ChatID: chatID,
		Text:   body,
	}
	if opts != nil && opts.ParseMode != "" {
		params.ParseMode = models.ParseMode(opts.ParseMode)
	}

	msg, err := c.api.SendMessage(ctx, params)
	if err != nil {
		return 0, fmt.Errorf("%w: sendMessage to chat %d: %v", ErrDelivery, chatID, err)
	}
	return int64(msg.ID), nil
}

// RegisterWebhook subscribes url for push delivery.
func (c *TelegramClient) RegisterWebhook(ctx context.Context, url, secret string) error {
	ok, err := c.api.SetWebhook(ctx, &tgbot.SetWebhookParams{
		URL:            url,
		SecretToken:    secret,
		AllowedUpdates: c.allowedUpdates,
	})
	if err != nil {
		return fmt.Errorf("%w: setWebhook: %v", ErrNetwork, err)
	}
	if !ok {
		return fmt.Errorf("%w: setWebhook not confirmed by platform", ErrNetwork)
	}
	c.log.InfoContext(ctx, "Webhook registered", "url", url)
	return nil
}

// DropWebhook removes the webhook subscription. Pending updates are kept so
// the poll loop can pick them up.
func (c *TelegramClient) DropWebhook(ctx context.Context) error {
	if _, err := c.api.DeleteWebhook(ctx, &tgbot.DeleteWebhookParams{DropPendingUpdates: false}); err != nil {
		return fmt.Errorf("%w: deleteWebhook: %v", ErrNetwork, err)
	}
	return nil
}

// Identity fetches the bot account identity from the platform.
func (c *TelegramClient) Identity(ctx context.Context) (Identity, error) {
	me, err := c.api.GetMe(ctx)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: getMe: %v", ErrAuth, err)
	}
	return Identity{
		ID:     me.ID,
		Handle: me.Username,
		Name:   me.FirstName,
	}, nil
}
