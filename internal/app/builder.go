package app

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/runixer/tubegrab/internal/bot"
	"github.com/runixer/tubegrab/internal/config"
	"github.com/runixer/tubegrab/internal/download"
	"github.com/runixer/tubegrab/internal/extractor"
	"github.com/runixer/tubegrab/internal/i18n"
	"github.com/runixer/tubegrab/internal/session"
	"github.com/runixer/tubegrab/internal/storage"
	"github.com/runixer/tubegrab/internal/telegram"
)

// Services holds everything the dispatcher needs.
// Shared by the main bot and testbot so both run the same wiring.
type Services struct {
	Translator   *i18n.Translator
	Sessions     session.Store
	Orchestrator *download.Orchestrator
	Bot          *bot.Bot
}

// SetupServices creates the download folder and assembles the orchestrator and bot.
//
// The caller is responsible for:
// - Validating cfg beforehand
// - Stopping the bot (Bot.Stop) and closing the store when done
func SetupServices(
	logger *slog.Logger,
	cfg *config.Config,
	store storage.Storage,
	api telegram.BotAPI,
	ext extractor.Extractor,
) (*Services, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if api == nil {
		return nil, fmt.Errorf("telegram client is required")
	}
	if ext == nil {
		return nil, fmt.Errorf("extractor is required")
	}

	if err := os.MkdirAll(cfg.Download.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create download dir: %w", err)
	}

	translator, err := i18n.NewTranslator(cfg.Bot.Language)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize translator: %w", err)
	}

	services := &Services{
		Translator: translator,
		Sessions:   session.NewMemoryStore(),
	}

	services.Orchestrator = download.New(logger, api, ext, store, translator, download.Config{
		Dir:            cfg.Download.Dir,
		Format:         cfg.Download.Format,
		Timeout:        cfg.Download.GetTimeout(),
		MaxUploadBytes: int64(cfg.Telegram.MaxUploadMB) << 20,
		Language:       cfg.Bot.Language,
	})

	services.Bot, err = bot.NewBot(logger, api, cfg, store, services.Sessions, services.Orchestrator, translator)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	logger.Info("Services initialized",
		"download_dir", cfg.Download.Dir,
		"format", cfg.Download.Format,
		"timeout", cfg.Download.GetTimeout().String(),
		"language", cfg.Bot.Language,
	)
	return services, nil
}
