package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/uptrace/bun"

	"github.com/xbora/mio/internal/actions"
	"github.com/xbora/mio/internal/config"
	"github.com/xbora/mio/internal/delivery"
	"github.com/xbora/mio/internal/mail"
	"github.com/xbora/mio/internal/scheduler"
	"github.com/xbora/mio/internal/shares"
	"github.com/xbora/mio/internal/state"
	"github.com/xbora/mio/internal/syncer"
	"github.com/xbora/mio/internal/telegram"
	"github.com/xbora/mio/internal/types"
	"github.com/xbora/mio/internal/vault"
	"github.com/xbora/mio/internal/worker"
)

// app is the fully wired service graph shared by serve and the admin
// commands.
type app struct {
	db *bun.DB

	actionStore *state.ActionStore
	shareReg    *state.ShareRegistry
	users       *state.UserDirectory
	syncLog     *state.SyncLog

	actions *actions.Service
	runner  *scheduler.Runner
	alerter scheduler.Alerter
	syncer  *syncer.Service
	shares  *shares.Service
	queue   *worker.Queue
}

func openApp(ctx context.Context, cfg *config.Config) (*app, error) {
	db, err := state.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	a := &app{db: db}
	if err := a.wire(ctx, cfg); err != nil {
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context, cfg *config.Config) error {
	if err := state.Migrate(ctx, a.db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	var err error
	if a.actionStore, err = state.NewActionStore(a.db); err != nil {
		return err
	}
	if a.shareReg, err = state.NewShareRegistry(a.db); err != nil {
		return err
	}
	if a.users, err = state.NewUserDirectory(a.db); err != nil {
		return err
	}
	if a.syncLog, err = state.NewSyncLog(a.db); err != nil {
		return err
	}

	// Actions
	var actionOpts []actions.Option
	if cfg.Actions.MaxPromptTokens > 0 {
		budget, err := actions.NewPromptBudget(cfg.Actions.TokenizerModel, cfg.Actions.MaxPromptTokens)
		if err != nil {
			return err
		}
		actionOpts = append(actionOpts, actions.WithPromptBudget(budget))
	}
	a.actions = actions.NewService(a.actionStore, actionOpts...)

	// Delivery
	deliveries := delivery.NewRegistry()
	if cfg.Delivery.EmailWebhook != "" {
		deliveries.Register(types.ChannelEmail, delivery.NewEmailWebhook(cfg.Delivery.EmailWebhook, cfg.Delivery.Timeout))
	}
	if cfg.Delivery.SMSWebhook != "" {
		phone := delivery.NewPhoneWebhook(cfg.Delivery.SMSWebhook, cfg.Delivery.SMSFrom, cfg.Delivery.Timeout)
		deliveries.Register(types.ChannelSMS, phone)
		deliveries.Register(types.ChannelWhatsApp, phone)
	}
	if len(deliveries.Channels()) == 0 {
		slog.Warn("no delivery channels configured; due actions will fail")
	}
	a.runner = scheduler.NewRunner(a.actionStore, a.users, deliveries, scheduler.WithWindow(cfg.Scheduler.Window))

	if cfg.Telegram.Token != "" && cfg.Telegram.AlertChatID != 0 {
		n, err := telegram.New(cfg.Telegram.Token, cfg.Telegram.AlertChatID, cfg.Scheduler.Window)
		if err != nil {
			return fmt.Errorf("create telegram notifier: %w", err)
		}
		a.alerter = n
	}

	// Sync
	reader := vault.NewMCPReader(cfg.Vault.MCPURL, cfg.Vault.Timeout)
	client := vault.NewClient(cfg.Vault.APIURL, cfg.Vault.Timeout)
	a.syncer = syncer.NewService(a.shareReg,
		syncer.NewTabularEngine(reader, client, a.syncLog),
		syncer.NewVectorEngine(client, a.syncLog, cfg.Vault.SearchLimit),
	)
	a.queue = worker.NewQueue(int64(cfg.Sync.MaxConcurrent), worker.DefaultRetryPolicy())

	// Shares
	mailer := mail.New(mail.Config{
		APIURL:  cfg.Mail.APIURL,
		APIKey:  cfg.Mail.APIKey,
		From:    cfg.Mail.From,
		Timeout: cfg.Delivery.Timeout,
	})
	a.shares = shares.NewService(a.shareReg, a.users, client, mailer,
		shares.WithPublicURL(cfg.HTTP.PublicURL),
		shares.WithInitialSync(a.queue, a.syncer),
	)
	return nil
}

func (a *app) Close() error {
	return a.db.Close()
}
