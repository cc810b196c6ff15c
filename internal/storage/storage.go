package storage

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

type User struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
	LastSeen  time.Time
}

// Download statuses as recorded in the journal.
const (
	StatusDelivered          = "delivered"
	StatusExtractionFailed   = "extraction_failed"
	StatusFileMissing        = "file_missing"
	StatusTransmissionFailed = "transmission_failed"
	StatusUnexpected         = "unexpected"
)

// Download is one orchestration run. It is written once, when the run ends.
type Download struct {
	ID         int64
	RunID      string
	UserID     int64
	ChatID     int64
	URL        string
	Title      string
	FileName   string
	SizeBytes  int64
	Status     string
	Error      string
	DurationMs int64
	CreatedAt  time.Time
}

// DownloadStats aggregates the journal.
type DownloadStats struct {
	Total          int            `json:"total"`
	ByStatus       map[string]int `json:"by_status"`
	DistinctUsers  int            `json:"distinct_users"`
	DeliveredBytes int64          `json:"delivered_bytes"`
	AvgDurationMs  float64        `json:"avg_duration_ms"`
}

type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
	dbPath string // Original path without query params, for file size check
}

func NewSQLiteStore(logger *slog.Logger, path string) (*SQLiteStore, error) {
	originalPath := path
	if idx := strings.Index(path, "?"); idx != -1 {
		originalPath = path[:idx]
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// One connection avoids "database is locked" under concurrent journal writes.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, err
	}

	// modernc.org/sqlite ignores the _journal_mode query param, so set it via PRAGMA.
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode=WAL").Scan(&journalMode); err != nil {
		logger.Warn("failed to set WAL journal mode", "error", err)
	} else {
		logger.Info("SQLite journal mode set", "mode", journalMode, "path", originalPath)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		logger.Warn("failed to set busy timeout", "error", err)
	}

	return &SQLiteStore{db: db, logger: logger.With("component", "storage"), dbPath: originalPath}, nil
}

func (s *SQLiteStore) Init() error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY,
		username TEXT,
		first_name TEXT,
		last_name TEXT,
		last_seen TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS downloads (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		user_id INTEGER NOT NULL,
		chat_id INTEGER NOT NULL,
		url TEXT NOT NULL,
		title TEXT,
		file_name TEXT,
		size_bytes INTEGER DEFAULT 0,
		status TEXT NOT NULL,
		error TEXT,
		duration_ms INTEGER DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_downloads_user_id ON downloads(user_id);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_downloads_run_id ON downloads(run_id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Checkpoint forces a WAL checkpoint to flush pending writes to the main database file.
func (s *SQLiteStore) Checkpoint() error {
	var busy, log, checkpointed int
	err := s.db.QueryRow("PRAGMA wal_checkpoint(TRUNCATE)").Scan(&busy, &log, &checkpointed)
	if err != nil {
		return fmt.Errorf("checkpoint query failed: %w", err)
	}

	s.logger.Info("WAL checkpoint result",
		"busy", busy,
		"log_frames", log,
		"checkpointed_frames", checkpointed,
	)

	if busy != 0 {
		return fmt.Errorf("checkpoint blocked by reader (busy=%d)", busy)
	}
	if log > 0 && checkpointed < log {
		return fmt.Errorf("incomplete checkpoint: %d/%d frames", checkpointed, log)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if err := s.Checkpoint(); err != nil {
		s.logger.Warn("failed to checkpoint WAL before close", "error", err)
	}
	return s.db.Close()
}
