package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/runixer/tubegrab/internal/app"
	"github.com/runixer/tubegrab/internal/bot"
	"github.com/runixer/tubegrab/internal/config"
	"github.com/runixer/tubegrab/internal/extractor"
	"github.com/runixer/tubegrab/internal/storage"
)

const (
	defaultFallbackUserID = 123
	defaultConfigSubPath  = "configs/config.yaml"
	defaultTestDBPath     = "data/tubegrab_test.db"
	defaultOutDir         = "testbot_out"
	placeholderToken      = "testbot_token"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey int

const (
	testbotKey contextKey = iota
	optionsKey
)

// testbotOptions holds all CLI flag values, passed via context.
type testbotOptions struct {
	cfgFile   string
	userID    int64
	dbPath    string
	dbChanged bool
	outDir    string
	verbose   bool
}

// testBot wraps the real dispatcher and orchestrator with a console transport.
type testBot struct {
	logger    *slog.Logger
	store     *storage.SQLiteStore
	cfg       *config.Config
	api       *consoleBotAPI
	bot       *bot.Bot
	storePath string
	tempDir   string
	// install resolves the extractor binary before the first download.
	install func(ctx context.Context) error
}

// newExtractor is swapped in tests.
var newExtractor = func(logger *slog.Logger) extractor.Extractor {
	return extractor.NewYTDLP(logger)
}

var rootCmd = &cobra.Command{
	Use:   "testbot",
	Short: "CLI tool for testing tubegrab bot",
	Long: `Testbot drives the tubegrab conversation and download pipeline from the terminal
without a Telegram connection. Outgoing messages are printed and delivered videos are
copied into the --out directory.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		opts := &testbotOptions{
			cfgFile:   cmd.Flags().Lookup("config").Value.String(),
			dbPath:    cmd.Flags().Lookup("db").Value.String(),
			dbChanged: cmd.Flags().Lookup("db").Changed,
			outDir:    cmd.Flags().Lookup("out").Value.String(),
			verbose:   cmd.Flags().Lookup("verbose").Changed,
		}
		if userIDVal, err := cmd.Flags().GetInt64("user"); err == nil {
			opts.userID = userIDVal
		}

		// Load .env from CWD - fail only if config was explicitly provided
		if err := app.LoadEnv(); err != nil {
			if opts.cfgFile != "" {
				return fmt.Errorf("failed to load .env: %w", err)
			}
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env: %v\n", err)
		}

		if opts.userID == 0 {
			opts.userID = getDefaultUserID()
		}
		if opts.userID == 0 {
			opts.userID = defaultFallbackUserID
		}
		if opts.userID <= 0 {
			return fmt.Errorf("invalid user ID: %d (must be positive)", opts.userID)
		}

		resolvedCfgPath, err := findConfigPath(opts.cfgFile)
		if err != nil && opts.cfgFile != "" {
			return fmt.Errorf("failed to find config: %w", err)
		}

		cfg, err := loadConfig(resolvedCfgPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		// Quiet by default, verbose shows all logs
		var logger *slog.Logger
		if opts.verbose {
			logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: slog.LevelDebug,
			}))
		} else {
			logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
				Level: slog.LevelDebug,
			}))
		}

		tb, err := setupTestBot(cfg, logger, opts, cmd.OutOrStdout())
		if err != nil {
			return fmt.Errorf("failed to setup testbot: %w", err)
		}

		ctx := context.WithValue(cmd.Context(), testbotKey, tb)
		ctx = context.WithValue(ctx, optionsKey, opts)
		cmd.SetContext(ctx)

		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		tb := getTestBot(cmd)
		if tb != nil {
			if err := tb.close(); err != nil {
				return fmt.Errorf("failed to close testbot: %w", err)
			}
		}
		return nil
	},
}

// getTestBot retrieves the testBot instance from context.
func getTestBot(cmd *cobra.Command) *testBot {
	if cmd.Context() == nil {
		return nil
	}
	if tb := cmd.Context().Value(testbotKey); tb != nil {
		return tb.(*testBot)
	}
	return nil
}

// getOptions retrieves the testbotOptions from context.
func getOptions(cmd *cobra.Command) *testbotOptions {
	if cmd.Context() == nil {
		return nil
	}
	if opts := cmd.Context().Value(optionsKey); opts != nil {
		return opts.(*testbotOptions)
	}
	return nil
}

// getUserID retrieves the user ID from options.
func getUserID(cmd *cobra.Command) int64 {
	if opts := getOptions(cmd); opts != nil {
		return opts.userID
	}
	return 0
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to config file (default: auto-detect)")
	rootCmd.PersistentFlags().Int64P("user", "u", 0, "User ID for testing (default: first from TUBEGRAB_ALLOWED_USER_IDS)")
	rootCmd.PersistentFlags().String("db", "", "Database path (default: data/tubegrab_test.db, '--db \"\"' for temp DB)")
	rootCmd.PersistentFlags().String("out", defaultOutDir, "Directory receiving delivered videos")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose debug output (shows all logs)")
}

// setupTestBot initializes the test bot with all dependencies.
func setupTestBot(cfg *config.Config, logger *slog.Logger, opts *testbotOptions, out io.Writer) (*testBot, error) {
	tb := &testBot{
		logger: logger,
		install: func(ctx context.Context) error {
			return extractor.EnsureInstalled(ctx, logger)
		},
	}

	var success bool
	defer func() {
		if !success {
			_ = tb.close()
		}
	}()

	if opts.dbChanged {
		if opts.dbPath == "" {
			// Explicitly empty --db flag: use temp DB
			tb.tempDir = os.TempDir()
			tb.storePath = filepath.Join(tb.tempDir, fmt.Sprintf("tubegrab_test_%s.db", getTempFileSuffix()))
		} else {
			tb.storePath = opts.dbPath
		}
	} else {
		tb.storePath = defaultTestDBPath
		if err := os.MkdirAll(filepath.Dir(tb.storePath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	tb.cfg = cfg
	tb.cfg.Database.Path = tb.storePath
	// No Telegram connection is made, any token passes validation.
	if tb.cfg.Telegram.Token == "" {
		tb.cfg.Telegram.Token = placeholderToken
	}
	if err := tb.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger.Info("Using database", "path", tb.storePath)

	var err error
	tb.store, err = storage.NewSQLiteStore(tb.logger, tb.storePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	if err := tb.store.Init(); err != nil {
		return nil, fmt.Errorf("failed to init store: %w", err)
	}

	tb.api = newConsoleBotAPI(out, opts.outDir)

	services, err := app.SetupServices(tb.logger, tb.cfg, tb.store, tb.api, newExtractor(tb.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to setup services: %w", err)
	}
	tb.bot = services.Bot

	success = true
	return tb, nil
}

// close waits for in-flight updates and releases the store. Safe to call twice.
func (tb *testBot) close() error {
	var errs []error

	if tb.bot != nil {
		tb.bot.Stop()
	}

	if tb.store != nil {
		if err := tb.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store.Close: %w", err))
		}
		tb.store = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %w", errors.Join(errs...))
	}
	return nil
}

// getTempFileSuffix returns a cryptographically secure random suffix for temp file naming.
// Panics if crypto/rand fails, as this indicates a critical system failure.
func getTempFileSuffix() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return hex.EncodeToString(b)
}

// getDefaultUserID returns the first user ID from TUBEGRAB_ALLOWED_USER_IDS env var.
func getDefaultUserID() int64 {
	allowedUsersStr := os.Getenv("TUBEGRAB_ALLOWED_USER_IDS")
	if allowedUsersStr == "" {
		return 0
	}

	for _, part := range strings.Split(allowedUsersStr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		var id int64
		_, err := fmt.Sscanf(part, "%d", &id)
		if err == nil && id > 0 {
			return id
		}
	}

	return 0
}

// loadConfig loads the configuration from file.
func loadConfig(path string) (*config.Config, error) {
	return config.Load(path)
}

// findConfigPath resolves the config file path.
// Searches in order: provided path, CWD/configs/config.yaml, then defaults.
func findConfigPath(providedPath string) (string, error) {
	if providedPath != "" {
		if _, err := os.Stat(providedPath); err == nil {
			return providedPath, nil
		}
		return "", fmt.Errorf("config file not found: %s", providedPath)
	}

	if _, err := os.Stat(defaultConfigSubPath); err == nil {
		return defaultConfigSubPath, nil
	}

	// Config not found - return empty string (will use defaults)
	return "", nil
}

// outputCheckJSON writes data as indented JSON to w.
func outputCheckJSON(w io.Writer, data map[string]interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// Flag retrieval helpers that panic on error (error indicates bug in flag name).

// mustGetString retrieves a string flag value. Panics on error (indicates bug in flag name).
func mustGetString(cmd *cobra.Command, name string) string {
	val, err := cmd.Flags().GetString(name)
	if err != nil {
		panic(fmt.Sprintf("bug: failed to get flag %q: %v", name, err))
	}
	return val
}

// mustGetInt retrieves an int flag value. Panics on error (indicates bug in flag name).
func mustGetInt(cmd *cobra.Command, name string) int {
	val, err := cmd.Flags().GetInt(name)
	if err != nil {
		panic(fmt.Sprintf("bug: failed to get flag %q: %v", name, err))
	}
	return val
}

// mustGetBool retrieves a bool flag value. Panics on error (indicates bug in flag name).
func mustGetBool(cmd *cobra.Command, name string) bool {
	val, err := cmd.Flags().GetBool(name)
	if err != nil {
		panic(fmt.Sprintf("bug: failed to get flag %q: %v", name, err))
	}
	return val
}
