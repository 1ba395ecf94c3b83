// Package bot implements the chat-platform ingestion and reply engine:
// update sequencing, the polling supervisor and watchdog, command routing,
// the business-hours gate, and the per-update reply pipeline.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/caixaflow/caixabot/internal/ai"
	"github.com/caixaflow/caixabot/internal/config"
	"github.com/caixaflow/caixabot/internal/database"
	"github.com/caixaflow/caixabot/internal/platform"
)

const reconfigureTimeout = 30 * time.Second

// Service is a long-running component (the HTTP server) the engine
// supervises alongside ingestion.
type Service interface {
	Start() error
	Stop(ctx context.Context) error
}

// ResponderFactory builds an AI responder for the given reply settings, or
// returns nil when AI replies cannot be configured (no credential).
type ResponderFactory func(ctx context.Context, reply config.AIReplyConfig) (ai.Responder, error)

// Bot owns the active ingestion path (one polling supervisor or one passive
// webhook subscription at a time) and the currently applied settings. A
// settings replace is an explicit Reconfigure call that tears the old path
// down before establishing the new one, so stale credentials never silently
// continue to be used.
type Bot struct {
	log          *slog.Logger
	store        database.Store
	processor    *Processor
	newResponder ResponderFactory
	newClient    func(token string, allowedUpdates []string) (platform.Client, error)

	mu         sync.Mutex
	runCtx     context.Context
	settings   config.BotSettings
	client     platform.Client
	supervisor *Supervisor
	seq        *Sequencer
}

// NewBot creates the engine with its initial settings. Ingestion starts when
// Run is called.
func NewBot(log *slog.Logger, store database.Store, processor *Processor, settings config.BotSettings, newResponder ResponderFactory) *Bot {
	return &Bot{
		log:          log.With("component", "bot_orchestrator"),
		store:        store,
		processor:    processor,
		newResponder: newResponder,
		newClient: func(token string, allowedUpdates []string) (platform.Client, error) {
			return platform.NewTelegramClient(token, allowedUpdates, log)
		},
		settings: settings,
		seq:      NewSequencer(),
	}
}

// Run starts the HTTP service and the configured ingestion path, then blocks
// until the context is cancelled. An authentication failure at startup is
// surfaced to the log but does not bring the process down; the administrative
// surface stays up so the operator can fix credentials.
func (b *Bot) Run(ctx context.Context, srv Service) error {
	b.log.Info("Starting bot orchestrator...")

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		go func() {
			<-gCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Stop(shutdownCtx); err != nil {
				b.log.Error("Error stopping HTTP server", "error", err)
			}
		}()

		if err := srv.Start(); err != nil && !errors.Is(err, context.Canceled) {
			// http.ErrServerClosed arrives here on graceful shutdown.
			if gCtx.Err() == nil {
				return fmt.Errorf("http server stopped unexpectedly: %w", err)
			}
		}
		return nil
	})

	g.Go(func() error {
		b.mu.Lock()
		b.runCtx = gCtx
		settings := b.settings
		b.mu.Unlock()

		if err := b.establishIngestion(gCtx, settings); err != nil {
			if errors.Is(err, platform.ErrAuth) {
				b.log.Error("Platform rejected credentials; ingestion disabled until reconfigured", "error", err)
			} else {
				b.log.Error("Failed to establish ingestion; waiting for reconfiguration", "error", err)
			}
		}

		<-gCtx.Done()
		b.log.Info("Shutdown signal received, stopping ingestion...")
		b.teardownIngestion(context.Background())
		return nil
	})

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		b.log.Error("Bot orchestrator stopped due to error", "error", err)
		return err
	}

	b.log.Info("Bot orchestrator stopped gracefully.")
	return nil
}

// Settings returns the currently applied settings.
func (b *Bot) Settings() config.BotSettings {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.settings
}

// WebhookSecret returns the shared secret the webhook ingress must verify.
func (b *Bot) WebhookSecret() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.settings.WebhookSecret
}

// Phase reports the polling supervisor's phase, or Stopped when the engine
// runs in webhook mode.
func (b *Bot) Phase() Phase {
	b.mu.Lock()
	sup := b.supervisor
	b.mu.Unlock()

	if sup == nil {
		return PhaseStopped
	}
	return sup.Phase()
}

// Reconfigure replaces the settings as a whole and re-establishes ingestion
// with the new value. The previous ingestion path is fully stopped first; a
// brief overlap-free gap is preferred over running two paths at once.
func (b *Bot) Reconfigure(ctx context.Context, settings config.BotSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, reconfigureTimeout)
	defer cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	b.teardownIngestionLocked(ctx)
	b.settings = settings

	if err := b.establishIngestionLocked(ctx, settings); err != nil {
		return fmt.Errorf("failed to re-establish ingestion: %w", err)
	}

	b.log.Info("Settings replaced and ingestion re-established", "mode", settings.Mode, "active", settings.Active)
	return nil
}

// HandleWebhookUpdate accepts one webhook-delivered update, acknowledging to
// the caller immediately and processing asynchronously so slow downstream
// handling cannot make the platform consider the webhook unhealthy. Webhook
// delivery carries no client-side offset, so these updates bypass the
// sequencer and rely on message idempotency alone.
func (b *Bot) HandleWebhookUpdate(u platform.Update) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		if err := b.processor.HandleUpdate(ctx, u); err != nil {
			b.log.ErrorContext(ctx, "Webhook update handling failed", "update_id", u.ID, "error", err)
		}
	}()
}

func (b *Bot) establishIngestion(ctx context.Context, settings config.BotSettings) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.establishIngestionLocked(ctx, settings)
}

func (b *Bot) establishIngestionLocked(ctx context.Context, settings config.BotSettings) error {
	if !settings.Active {
		b.log.Info("Bot configuration inactive, ingestion not started")
		b.processor.Reconfigure(settings, nil, nil)
		return nil
	}

	client, err := b.newClient(settings.Token, settings.AllowedUpdates)
	if err != nil {
		return err
	}

	identity, err := client.Identity(ctx)
	if err != nil {
		return err
	}
	b.log.Info("Platform identity confirmed", "bot_id", identity.ID, "handle", identity.Handle)

	var responder ai.Responder
	if settings.AIReply.Enabled && b.newResponder != nil {
		responder, err = b.newResponder(ctx, settings.AIReply)
		if err != nil {
			b.log.Error("Failed to initialize AI responder, continuing without AI replies", "error", err)
			responder = nil
		}
	}

	b.processor.Reconfigure(settings, client, responder)
	b.client = client

	switch settings.Mode {
	case "webhook":
		if err := client.RegisterWebhook(ctx, settings.WebhookURL, settings.WebhookSecret); err != nil {
			return err
		}

	default: // polling
		if err := client.DropWebhook(ctx); err != nil {
			b.log.Warn("Failed to drop webhook before polling", "error", err)
		}

		// The supervisor outlives this call's deadline; it runs on the
		// orchestrator's own context.
		baseCtx := b.runCtx
		if baseCtx == nil {
			baseCtx = context.Background()
		}

		b.seq = NewSequencer()
		b.supervisor = NewSupervisor(b.log, client, b.seq, b.processor.HandleUpdate, SupervisorOptions{
			Interval:         settings.PollInterval,
			FailureThreshold: settings.FailureThreshold,
			RestartBackoff:   settings.RestartBackoff,
		})
		if err := b.supervisor.Start(baseCtx); err != nil {
			return err
		}
	}

	return nil
}

func (b *Bot) teardownIngestion(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.teardownIngestionLocked(ctx)
}

func (b *Bot) teardownIngestionLocked(ctx context.Context) {
	if b.supervisor != nil {
		b.supervisor.Stop()
		b.supervisor = nil
	}

	if b.client != nil && b.settings.Mode == "webhook" {
		if err := b.client.DropWebhook(ctx); err != nil {
			b.log.Warn("Failed to drop webhook during teardown", "error", err)
		}
	}
	b.client = nil
}
