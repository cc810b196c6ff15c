package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/runixer/tubegrab/internal/config"
	"github.com/runixer/tubegrab/internal/download"
	"github.com/runixer/tubegrab/internal/i18n"
	"github.com/runixer/tubegrab/internal/session"
	"github.com/runixer/tubegrab/internal/storage"
	"github.com/runixer/tubegrab/internal/telegram"
)

// Downloader runs one download for a chat and reports how it ended.
type Downloader interface {
	Handle(ctx context.Context, req download.Request) download.Outcome
}

type Bot struct {
	api        telegram.BotAPI
	cfg        *config.Config
	userRepo   storage.UserRepository
	sessions   session.Store
	downloader Downloader
	logger     *slog.Logger
	translator *i18n.Translator
	wg         sync.WaitGroup
}

func NewBot(logger *slog.Logger, api telegram.BotAPI, cfg *config.Config, userRepo storage.UserRepository, sessions session.Store, downloader Downloader, translator *i18n.Translator) (*Bot, error) {
	b := &Bot{
		api:        api,
		cfg:        cfg,
		userRepo:   userRepo,
		sessions:   sessions,
		downloader: downloader,
		logger:     logger.With("component", "bot"),
		translator: translator,
	}

	if err := b.setCommands(); err != nil {
		return nil, fmt.Errorf("failed to set bot commands: %w", err)
	}

	return b, nil
}

func (b *Bot) setCommands() error {
	req := telegram.SetMyCommandsRequest{
		Commands: []telegram.BotCommand{
			{Command: "start", Description: b.t("commands.start")},
		},
	}
	return b.api.SetMyCommands(context.Background(), req)
}

func (b *Bot) API() telegram.BotAPI {
	return b.api
}

func (b *Bot) SetWebhook(webhookURL, secretToken string) error {
	req := telegram.SetWebhookRequest{
		URL:         webhookURL,
		SecretToken: secretToken,
	}
	return b.api.SetWebhook(context.Background(), req)
}

// Stop waits for in-flight updates, including running downloads.
func (b *Bot) Stop() {
	b.logger.Info("Waiting for active bot handlers to finish...")
	b.wg.Wait()
	b.logger.Info("Bot stopped.")
}

func (b *Bot) HandleUpdate(ctx context.Context, rawUpdate json.RawMessage, remoteAddr string) {
	var update telegram.Update
	if err := json.Unmarshal(rawUpdate, &update); err != nil {
		b.logger.Error("failed to unmarshal update", "error", err, "remote_addr", remoteAddr)
		return
	}
	b.ProcessUpdate(ctx, &update, remoteAddr)
}

// HandleUpdateAsync starts processing a raw update in a goroutine.
// Used by webhook handler.
func (b *Bot) HandleUpdateAsync(ctx context.Context, rawUpdate json.RawMessage, remoteAddr string) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.HandleUpdate(context.WithoutCancel(ctx), rawUpdate, remoteAddr)
	}()
}

// ProcessUpdateAsync starts processing an update in a goroutine.
// Shutdown does not cancel it: Stop waits instead.
func (b *Bot) ProcessUpdateAsync(ctx context.Context, update *telegram.Update, source string) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.ProcessUpdate(context.WithoutCancel(ctx), update, source)
	}()
}

func (b *Bot) ProcessUpdate(ctx context.Context, update *telegram.Update, source string) {
	user := update.Sender()
	if user == nil {
		recordDropped(dropReasonUnclassified)
		return
	}

	ctxLogger := b.logger.With(
		"update_id", update.UpdateID,
		"user_id", user.ID,
		"username", user.Username,
		"source", source,
	)

	if err := b.userRepo.UpsertUser(storage.User{
		ID:        user.ID,
		Username:  user.Username,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		LastSeen:  time.Now(),
	}); err != nil {
		ctxLogger.Error("failed to upsert user", "error", err)
	}

	if !b.isAllowed(user.ID) {
		ctxLogger.Warn("Unauthorized access")
		recordDropped(dropReasonUnauthorized)
		return
	}

	event, ok := ClassifyUpdate(update)
	if !ok {
		ctxLogger.Debug("update ignored")
		recordDropped(dropReasonUnclassified)
		return
	}

	kind := eventKind(event)
	ctxLogger = ctxLogger.With("chat_id", event.Chat(), "event", kind)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			ctxLogger.Error("panic while handling update", "panic", r, "stack", string(debug.Stack()))
			recordPanic()
			if _, isText := event.(TextEvent); isText {
				b.sendText(ctx, ctxLogger, event.Chat(), b.t("bot.generic_error", b.t("bot.internal_error")))
			}
		}
		recordEvent(kind, time.Since(start).Seconds())
	}()

	switch ev := event.(type) {
	case StartEvent:
		b.onStartCommand(ctx, ctxLogger, ev)
	case ButtonEvent:
		b.onButtonPress(ctx, ctxLogger, ev)
	case TextEvent:
		b.onTextMessage(ctx, ctxLogger, ev)
	}
}

// isAllowed reports whether the user may talk to the bot. An empty list allows everyone.
func (b *Bot) isAllowed(userID int64) bool {
	if len(b.cfg.Bot.AllowedUserIDs) == 0 {
		return true
	}
	return slices.Contains(b.cfg.Bot.AllowedUserIDs, userID)
}

func (b *Bot) onStartCommand(ctx context.Context, logger *slog.Logger, ev StartEvent) {
	logger.Info("Showing menu")
	_, err := b.api.SendMessage(ctx, telegram.SendMessageRequest{
		ChatID: ev.ChatID,
		Text:   b.t("bot.menu_prompt"),
		ReplyMarkup: &telegram.InlineKeyboardMarkup{
			InlineKeyboard: [][]telegram.InlineKeyboardButton{
				{{Text: b.t("bot.download_button"), CallbackData: DownloadRequestData}},
			},
		},
	})
	if err != nil {
		logger.Error("failed to send menu", "error", err)
	}
}

func (b *Bot) onButtonPress(ctx context.Context, logger *slog.Logger, ev ButtonEvent) {
	// Ответ нужен всегда, иначе клиент крутит индикатор загрузки на кнопке.
	if ev.QueryID != "" {
		if err := b.api.AnswerCallbackQuery(ctx, telegram.AnswerCallbackQueryRequest{CallbackQueryID: ev.QueryID}); err != nil {
			logger.Warn("failed to answer callback query", "error", err)
		}
	}

	if ev.Data != DownloadRequestData {
		logger.Debug("unknown button", "data", ev.Data)
		recordDropped(dropReasonUnknownButton)
		return
	}

	b.sessions.Set(ev.ChatID, session.StageAwaitingDownloadURL)
	logger.Info("Awaiting download URL")
	b.sendText(ctx, logger, ev.ChatID, b.t("bot.url_prompt"))
}

// onTextMessage starts a download when the chat is waiting for a URL.
// The stage is left as is, so every further URL starts another run.
func (b *Bot) onTextMessage(ctx context.Context, logger *slog.Logger, ev TextEvent) {
	if b.sessions.Get(ev.ChatID) != session.StageAwaitingDownloadURL {
		logger.Debug("text outside of a conversation, ignored")
		recordDropped(dropReasonNoStage)
		return
	}

	out := b.downloader.Handle(ctx, download.Request{
		URL:         strings.TrimSpace(ev.Text),
		RequesterID: ev.UserID,
		ChatID:      ev.ChatID,
	})
	b.reportOutcome(ctx, logger, ev.ChatID, out)
}

// reportOutcome sends the single failure message for a run. Delivered runs
// have already said everything.
func (b *Bot) reportOutcome(ctx context.Context, logger *slog.Logger, chatID int64, out download.Outcome) {
	var text string
	switch out.Status {
	case download.StatusDelivered:
		return
	case download.StatusFileMissing:
		text = b.t("download.file_not_found")
	case download.StatusUnexpected:
		text = b.t("bot.generic_error", b.t("bot.internal_error"))
	default:
		details := b.t("bot.internal_error")
		if out.Err != nil {
			details = out.Err.Error()
		}
		text = b.t("bot.generic_error", details)
	}
	b.sendText(ctx, logger.With("run_id", out.RunID), chatID, text)
}

func (b *Bot) sendText(ctx context.Context, logger *slog.Logger, chatID int64, text string) {
	if _, err := b.api.SendMessage(ctx, telegram.SendMessageRequest{ChatID: chatID, Text: text}); err != nil {
		logger.Error("failed to send message", "error", err)
	}
}

func (b *Bot) t(key string, args ...interface{}) string {
	return b.translator.Get(b.cfg.Bot.Language, key, args...)
}
