// Package notify delivers run summaries over Telegram and serves the thin
// command surface users drive their own runs with.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"autoapply/internal/config"
	"autoapply/internal/model"
	"autoapply/internal/reporter"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Store is the subset of storage the bot reads and writes.
type Store interface {
	CreateUser(ctx context.Context, u *model.User) error
	GetUser(ctx context.Context, id int64) (*model.User, error)
	SetNotifications(ctx context.Context, userID int64, enabled bool) error
	LatestRunResult(ctx context.Context, userID int64) (*model.RunResult, error)
	AttemptStats(ctx context.Context, userID int64) (map[model.AttemptStatus]int, error)
}

// Runner starts a manual run for one user.
type Runner interface {
	RunUser(ctx context.Context, userID int64, runType model.RunType) (reporter.Run, error)
}

// Enroller registers subscriptions and résumés.
type Enroller interface {
	EnsureSubscription(ctx context.Context, userID int64) (bool, error)
	AddResume(ctx context.Context, userID int64, ref string) (*model.Resume, error)
}

// Authorizer links a user to their hh.ru account.
type Authorizer interface {
	AuthCodeURL(userID int64) string
	Exchange(ctx context.Context, userID int64, code string) error
}

// Bot is the Telegram side of the service.
type Bot struct {
	api    telegramAPI
	store  Store
	cfg    *config.Config
	runner Runner
	authz  Authorizer
	enroll Enroller
	log    *slog.Logger

	mu      sync.Mutex
	running map[int64]bool
}

// New creates a Bot with the given Telegram token, storage and config.
func New(token string, store Store, cfg *config.Config, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return newBot(api, store, cfg, log), nil
}

func newBot(api telegramAPI, store Store, cfg *config.Config, log *slog.Logger) *Bot {
	return &Bot{
		api:     api,
		store:   store,
		cfg:     cfg,
		log:     log,
		running: make(map[int64]bool),
	}
}

// SetCommands wires the collaborators behind the commands that act on the
// user's account. The scheduler reports through the bot, so they are set
// after construction.
func (b *Bot) SetCommands(runner Runner, authz Authorizer, enroll Enroller) {
	b.runner = runner
	b.authz = authz
	b.enroll = enroll
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			if !b.cfg.IsUserAllowed(update.Message.From.ID) {
				b.reply(update.Message.Chat.ID, "Access denied.")
				continue
			}
			b.handleCommand(ctx, update.Message)
		}
	}
}

// Notify sends text to the user's private chat. Telegram private chat IDs
// equal user IDs.
func (b *Bot) Notify(_ context.Context, userID int64, text string) error {
	msg := tgbotapi.NewMessage(userID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send message to %d: %w", userID, err)
	}
	// Telegram allows roughly 30 messages per second across chats.
	time.Sleep(35 * time.Millisecond)
	return nil
}

func (b *Bot) reply(chatID int64, text string) {
	if err := b.Notify(context.Background(), chatID, text); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	userID := msg.From.ID

	b.log.Debug("command", "cmd", cmd, "user_id", userID)

	switch cmd {
	case "start":
		b.handleStart(ctx, userID, msg.From.UserName)
	case "help":
		b.handleHelp(userID)
	case "apply":
		b.handleApply(ctx, userID)
	case "status":
		b.handleStatus(ctx, userID)
	case "auth":
		b.handleAuth(userID)
	case "code":
		b.handleCode(ctx, userID, args)
	case "resume":
		b.handleResume(ctx, userID, args)
	case "notify":
		b.handleNotify(ctx, userID, args)
	default:
		b.reply(userID, "Unknown command. Use /help for a list of commands.")
	}
}

// LogNotifier writes notifications to the log. It stands in for the bot
// when no Telegram token is configured.
type LogNotifier struct {
	Log *slog.Logger
}

// Notify logs the message.
func (n LogNotifier) Notify(_ context.Context, userID int64, text string) error {
	n.Log.Info("notification", "user_id", userID, "text", text)
	return nil
}
