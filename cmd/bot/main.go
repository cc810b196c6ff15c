package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/runixer/tubegrab/internal/app"
	"github.com/runixer/tubegrab/internal/config"
	"github.com/runixer/tubegrab/internal/extractor"
	"github.com/runixer/tubegrab/internal/storage"
	"github.com/runixer/tubegrab/internal/telegram"
	"github.com/runixer/tubegrab/internal/web"
)

var Version = "dev"

var buildInfo = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "tubegrab",
		Name:      "build_info",
		Help:      "Build information with version and Go runtime details",
	},
	[]string{"version", "go_version"},
)

func init() {
	buildInfo.WithLabelValues(Version, runtime.Version()).Set(1)
}

func runHealthcheck(configPath string) int {
	// Config errors are ignored: the port may still come from the environment.
	cfg, err := config.Load(configPath)
	port := "9082"
	if err == nil && cfg.Server.ListenPort != "" {
		port = cfg.Server.ListenPort
	} else if envPort := os.Getenv("TUBEGRAB_SERVER_PORT"); envPort != "" {
		port = envPort
	}

	url := fmt.Sprintf("http://localhost:%s/healthz", port)
	client := &http.Client{
		Timeout: 5 * time.Second,
	}
	resp, err := client.Get(url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Healthcheck failed: %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Healthcheck returned status: %d\n", resp.StatusCode)
		return 1
	}
	return 0
}

// webhookCredentials derives the webhook path and secret from the bot token.
// First half of the SHA-256 is the secret header, second half the URL path.
// The token is already high-entropy, so no salt; derivation is stable across restarts.
func webhookCredentials(token string) (path, secret string) {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[16:]), hex.EncodeToString(hash[:16])
}

func main() {
	// JSON logging at INFO until the config tells otherwise.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if err := app.LoadEnv(); err != nil {
		slog.Warn("failed to load .env, relying on environment variables", "error", err)
	}

	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	healthcheck := flag.Bool("healthcheck", false, "run healthcheck and exit")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("tubegrab", Version)
		os.Exit(0)
	}

	if *healthcheck {
		os.Exit(runHealthcheck(*configPath))
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Nothing touches the network before this point.
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		slog.Warn("unknown log level, defaulting to info", "level", cfg.Log.Level)
		logLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
	logger.Info("Config loaded successfully", "allowed_users", len(cfg.Bot.AllowedUserIDs))

	store, err := storage.NewSQLiteStore(logger, cfg.Database.Path)
	if err != nil {
		logger.Error("failed to create storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := store.Init(); err != nil {
		logger.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}
	logger.Info("Database initialized successfully.")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := extractor.EnsureInstalled(ctx, logger); err != nil {
		logger.Error("yt-dlp is not available", "error", err)
		os.Exit(1)
	}

	api, err := telegram.NewClient(cfg.Telegram.Token, cfg.Telegram.ProxyURL)
	if err != nil {
		logger.Error("failed to create telegram client", "error", err)
		os.Exit(1)
	}
	logger.Info("Telegram client created successfully.")

	services, err := app.SetupServices(logger, cfg, store, api, extractor.NewYTDLP(logger))
	if err != nil {
		logger.Error("failed to set up services", "error", err)
		os.Exit(1)
	}
	b := services.Bot
	defer b.Stop()

	if cfg.Telegram.WebhookURL != "" {
		cfg.Telegram.WebhookPath, cfg.Telegram.WebhookSecret = webhookCredentials(cfg.Telegram.Token)
	}

	webServer, err := web.NewServer(ctx, logger, cfg, store, store, store, b)
	if err != nil {
		logger.Error("failed to create web server", "error", err)
		os.Exit(1)
	}
	srvDone := make(chan struct{})
	go func() {
		defer close(srvDone)
		if err := webServer.Start(ctx); err != nil {
			logger.Error("web server failed", "error", err)
			cancel() // Trigger graceful shutdown instead of os.Exit
		}
	}()

	logger.Info("Starting tubegrab", "version", Version)

	pollingDone := make(chan struct{})

	if cfg.Telegram.WebhookURL != "" {
		webhookURL := cfg.Telegram.WebhookURL + "/telegram/" + cfg.Telegram.WebhookPath
		if err := b.SetWebhook(webhookURL, cfg.Telegram.WebhookSecret); err != nil {
			logger.Error("failed to set webhook", "error", err)
			os.Exit(1)
		}
		logger.Info("Webhook set", "url", cfg.Telegram.WebhookURL)
		close(pollingDone)
	} else {
		logger.Info("Webhook not set, using long polling.")

		// A leftover webhook blocks getUpdates.
		if err := b.SetWebhook("", ""); err != nil {
			logger.Warn("failed to clear webhook", "error", err)
		}

		go func() {
			defer close(pollingDone)
			poll(ctx, logger, b)
		}()
	}

	<-ctx.Done()
	logger.Info("Shutting down...")

	<-pollingDone
	logger.Info("Polling stopped")

	<-srvDone
	logger.Info("Web server stopped")
}

type updateProcessor interface {
	API() telegram.BotAPI
	ProcessUpdateAsync(ctx context.Context, update *telegram.Update, source string)
}

// poll runs the getUpdates loop until ctx is done.
func poll(ctx context.Context, logger *slog.Logger, b updateProcessor) {
	offset := 0
	for {
		select {
		case <-ctx.Done():
			logger.Info("Polling goroutine received shutdown signal")
			return
		default:
		}

		updates, err := b.API().GetUpdates(ctx, telegram.GetUpdatesRequest{
			Offset:         offset,
			Timeout:        25, // below the 30s http client timeout
			AllowedUpdates: []string{"message", "callback_query"},
		})
		if err != nil {
			if ctx.Err() == nil {
				logger.Error("failed to get updates", "error", err)
				select {
				case <-ctx.Done():
				case <-time.After(5 * time.Second):
				}
			}
			continue
		}

		for i := range updates {
			update := &updates[i]
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			// Each update gets its own goroutine so a long download never blocks polling.
			b.ProcessUpdateAsync(ctx, update, "long_polling")
		}
	}
}
