package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"autoapply/internal/auth"
	"autoapply/internal/cohort"
	"autoapply/internal/config"
	"autoapply/internal/discovery"
	"autoapply/internal/enroll"
	"autoapply/internal/hh"
	"autoapply/internal/ledger"
	"autoapply/internal/letter"
	"autoapply/internal/notify"
	"autoapply/internal/queue"
	"autoapply/internal/quota"
	"autoapply/internal/reporter"
	"autoapply/internal/scheduler"
	"autoapply/internal/storage"
	"autoapply/internal/worker"
)

const laneDepth = 256

// app holds the wired components shared by all commands.
type app struct {
	cfg   *config.Config
	log   *slog.Logger
	store *storage.SQLite
	auth  *auth.Provider
	pool   *queue.Pool
	bot    *notify.Bot
	sched  *scheduler.Scheduler
	enroll *enroll.Service
}

// newApp loads configuration and wires every component. withBot requires a
// Telegram token; otherwise notifications go to the log when no token is set.
func newApp(withBot bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log := newLogger(cfg.LogLevel)
	pol := cfg.Policy

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create data directory %s: %w", dir, err)
		}
	}
	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.DatabasePath, err)
	}
	a := &app{cfg: cfg, log: log, store: store}

	a.auth = auth.NewProvider(&oauth2.Config{
		ClientID:     cfg.HH.ClientID,
		ClientSecret: cfg.HH.ClientSecret,
		RedirectURL:  cfg.HH.RedirectURL,
		Endpoint:     auth.Endpoint,
	}, store)

	gateway := hh.New(
		&http.Client{Timeout: pol.Timeouts.Gateway},
		a.auth,
		cfg.HH.BaseURL,
		cfg.HH.UserAgent,
		rate.NewLimiter(rate.Limit(cfg.HH.RatePerSecond), 1),
	)

	a.enroll = enroll.New(store, gateway, log)

	letters, err := letter.NewOpenAI(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.BaseURL)
	if err != nil {
		a.close()
		return nil, err
	}

	l := ledger.New(store, log)
	applier, err := worker.New(gateway, letters, l, log, worker.Options{
		GatewayTimeout: pol.Timeouts.Gateway,
		LetterTimeout:  pol.Timeouts.Letter,
		RetryAttempts:  pol.Retry.Attempts,
		RetryBaseDelay: pol.Retry.BaseDelay,
	})
	if err != nil {
		a.close()
		return nil, err
	}

	cohorts, err := cohort.NewResolver(store, pol.Triggers)
	if err != nil {
		a.close()
		return nil, err
	}

	var notifier reporter.Notifier = notify.LogNotifier{Log: log}
	switch {
	case cfg.TelegramBotToken != "":
		if a.bot, err = notify.New(cfg.TelegramBotToken, store, cfg, log); err != nil {
			a.close()
			return nil, err
		}
		notifier = a.bot
	case withBot:
		a.close()
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	a.pool = queue.New(cfg.Workers, laneDepth, log)
	a.sched = scheduler.New(scheduler.Deps{
		Store:      store,
		Policy:     quota.NewPolicy(pol.Caps, pol.PageSize, pol.FreeWindow),
		Cohorts:    cohorts,
		Discoverer: discovery.New(gateway, l, pol.PageSize, log),
		Applier:    applier,
		Dispatcher: a.pool,
		Reporter:   reporter.New(store, notifier, a.auth, log),
		Reconciler: ledger.NewReconciler(store, gateway, log, pol.Timeouts.Gateway),
	}, scheduler.Options{
		DiscoveryConcurrency: pol.DiscoveryConcurrency,
		UserConcurrency:      pol.UserConcurrency,
		StuckAfter:           pol.StuckAfter,
	}, log)

	if a.bot != nil {
		a.bot.SetCommands(a.sched, a.auth, a.enroll)
	}
	return a, nil
}

// start launches the worker pool on ctx.
func (a *app) start(ctx context.Context) {
	a.pool.Start(ctx)
}

// close drains the pool and closes the database.
func (a *app) close() {
	if a.pool != nil {
		a.pool.Stop()
	}
	_ = a.store.Close()
}
