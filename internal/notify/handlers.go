package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"

	"autoapply/internal/auth"
	"autoapply/internal/enroll"
	"autoapply/internal/model"
	"autoapply/internal/scheduler"
	"autoapply/internal/storage"
)

func (b *Bot) handleStart(ctx context.Context, userID int64, username string) {
	err := b.store.CreateUser(ctx, &model.User{ID: userID, Username: username, Notifications: true})
	if err != nil && !errors.Is(err, storage.ErrConflict) {
		b.log.Error("register user", "user_id", userID, "error", err)
		b.reply(userID, "Something went wrong, please try again later.")
		return
	}
	if b.enroll != nil {
		if _, err := b.enroll.EnsureSubscription(ctx, userID); err != nil {
			b.log.Error("ensure subscription", "user_id", userID, "error", err)
			b.reply(userID, "Something went wrong, please try again later.")
			return
		}
	}
	b.reply(userID, `Welcome to autoapply!

I apply to hh.ru vacancies matching your résumés and write a cover letter for each one.

Quick start:
1. /auth to connect your hh.ru account
2. /resume <link> to add your hh.ru résumé
3. /apply to run now

Use /help for the full command reference.`)
}

func (b *Bot) handleHelp(userID int64) {
	b.reply(userID, `/apply - apply to new vacancies now
/status - last run and application counts
/auth - connect your hh.ru account
/code <code> - finish connecting with the code hh.ru showed you
/resume <link> - add or refresh an hh.ru résumé
/notify on|off - run summaries`)
}

func (b *Bot) handleApply(ctx context.Context, userID int64) {
	if b.runner == nil {
		b.reply(userID, "Manual runs are not available.")
		return
	}
	if !b.begin(userID) {
		b.reply(userID, "A run is already in progress.")
		return
	}
	b.reply(userID, "Run started, you will get a summary when it finishes.")

	go func() {
		defer b.end(userID)
		_, err := b.runner.RunUser(ctx, userID, model.RunManual)
		switch {
		case err == nil:
		case errors.Is(err, scheduler.ErrIneligible):
			b.reply(userID, "Your account is not active. Use /start first.")
		default:
			b.log.Error("manual run", "user_id", userID, "error", err)
			b.reply(userID, "The run failed, please try again later.")
		}
	}()
}

func (b *Bot) begin(userID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running[userID] {
		return false
	}
	b.running[userID] = true
	return true
}

func (b *Bot) end(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.running, userID)
}

func (b *Bot) handleStatus(ctx context.Context, userID int64) {
	last, err := b.store.LatestRunResult(ctx, userID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		b.reply(userID, fmt.Sprintf("Error: %v", err))
		return
	}
	stats, err := b.store.AttemptStats(ctx, userID)
	if err != nil {
		b.reply(userID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(userID, FormatStatus(last, stats))
}

func (b *Bot) handleAuth(userID int64) {
	if b.authz == nil {
		b.reply(userID, "Authorization is not configured.")
		return
	}
	b.reply(userID, "Open the link, allow access, then send /code <code>:\n"+b.authz.AuthCodeURL(userID))
}

func (b *Bot) handleCode(ctx context.Context, userID int64, args string) {
	code, err := ParseCode(args)
	if err != nil {
		b.reply(userID, err.Error())
		return
	}
	if b.authz == nil {
		b.reply(userID, "Authorization is not configured.")
		return
	}
	if err := b.authz.Exchange(ctx, userID, code); err != nil {
		b.log.Warn("exchange code", "user_id", userID, "error", err)
		b.reply(userID, "Could not connect your account. Use /auth to get a fresh link.")
		return
	}
	b.reply(userID, "hh.ru account connected.")
}

func (b *Bot) handleResume(ctx context.Context, userID int64, args string) {
	if args == "" {
		b.reply(userID, "usage: /resume https://hh.ru/resume/<id>")
		return
	}
	if b.enroll == nil {
		b.reply(userID, "Adding résumés is not available.")
		return
	}
	r, err := b.enroll.AddResume(ctx, userID, args)
	switch {
	case err == nil:
	case errors.Is(err, enroll.ErrInvalidReference):
		b.reply(userID, "Send a link like https://hh.ru/resume/<id>.")
		return
	case errors.Is(err, auth.ErrAuthorizationRequired):
		b.reply(userID, "Connect your hh.ru account with /auth first.")
		return
	default:
		b.log.Warn("add resume", "user_id", userID, "error", err)
		b.reply(userID, "Could not fetch the résumé. Check that the link is yours and try again.")
		return
	}
	if len(r.PositiveKeywords) == 0 {
		b.reply(userID, fmt.Sprintf("Résumé %s added, but its title has no keywords to search with.", r.ID))
		return
	}
	b.reply(userID, fmt.Sprintf("Résumé %s added.\nKeywords: %s", r.ID, strings.Join(r.PositiveKeywords, ", ")))
}

func (b *Bot) handleNotify(ctx context.Context, userID int64, args string) {
	on, err := ParseToggle(args)
	if err != nil {
		b.reply(userID, err.Error())
		return
	}
	if err := b.store.SetNotifications(ctx, userID, on); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			b.reply(userID, "Use /start first.")
			return
		}
		b.reply(userID, fmt.Sprintf("Error: %v", err))
		return
	}
	if on {
		b.reply(userID, "Run summaries enabled.")
	} else {
		b.reply(userID, "Run summaries disabled.")
	}
}
