package web

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/disk"

	"github.com/runixer/tubegrab/internal/config"
	"github.com/runixer/tubegrab/internal/storage"
)

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 200
)

// getClientIP extracts the real client IP from the request.
// It checks X-Forwarded-For and X-Real-IP headers (set by reverse proxies like traefik),
// falling back to RemoteAddr if no proxy headers are present.
func getClientIP(r *http.Request) string {
	// X-Forwarded-For may contain multiple IPs: "client, proxy1, proxy2"
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xrip := r.Header.Get("X-Real-IP"); xrip != "" {
		return xrip
	}

	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}

// BotInterface is what the webhook needs from the bot.
type BotInterface interface {
	HandleUpdateAsync(ctx context.Context, update json.RawMessage, remoteAddr string)
}

// diskUsageFunc reports usage of the filesystem holding path.
type diskUsageFunc func(path string) (*disk.UsageStat, error)

type Server struct {
	cfg             *config.Config
	userRepo        storage.UserRepository
	downloadRepo    storage.DownloadRepository
	maintenanceRepo storage.MaintenanceRepository
	bot             BotInterface
	logger          *slog.Logger
	diskUsage       diskUsageFunc
	ctx             context.Context // Server's parent context for webhook processing
	wg              sync.WaitGroup
}

func NewServer(ctx context.Context, logger *slog.Logger, cfg *config.Config, userRepo storage.UserRepository, downloadRepo storage.DownloadRepository, maintenanceRepo storage.MaintenanceRepository, bot BotInterface) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	return &Server{
		cfg:             cfg,
		userRepo:        userRepo,
		downloadRepo:    downloadRepo,
		maintenanceRepo: maintenanceRepo,
		bot:             bot,
		logger:          logger.With("component", "web_server"),
		diskUsage:       disk.Usage,
		ctx:             ctx,
	}, nil
}

func (s *Server) Start(ctx context.Context) error {
	if s.cfg.Server.Auth.Enabled && s.cfg.Server.Auth.Password == "" {
		bytes := make([]byte, 6) // 12 hex chars
		if _, err := rand.Read(bytes); err != nil {
			return fmt.Errorf("failed to generate random password: %w", err)
		}
		s.cfg.Server.Auth.Password = hex.EncodeToString(bytes)
		fmt.Printf("\n⚠️  API password not set, generated: %s\n\n", s.cfg.Server.Auth.Password)
		s.logger.Info("API password auto-generated (see console output)")
	}

	server := &http.Server{
		Addr:              ":" + s.cfg.Server.ListenPort,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("web server shutdown failed", "error", err)
		}
	}()

	s.updateMetrics()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.updateMetrics()
			}
		}
	}()

	s.logger.Info("Starting web server", "port", s.cfg.Server.ListenPort)
	err := server.ListenAndServe()
	if err != http.ErrServerClosed {
		return err
	}
	s.wg.Wait()
	return nil
}

// routes builds the handler chain: Logging -> Auth -> Mux.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", instrumentHandler("healthz", s.healthzHandler))
	if s.cfg.Telegram.WebhookPath != "" && s.bot != nil {
		mux.HandleFunc("/telegram/"+s.cfg.Telegram.WebhookPath, instrumentHandler("webhook", s.webhookHandler))
	}
	mux.Handle("/metrics", promhttp.Handler())
	if s.downloadRepo != nil {
		mux.HandleFunc("/api/stats", instrumentHandler("stats", s.statsHandler))
		mux.HandleFunc("/api/downloads", instrumentHandler("downloads", s.downloadsHandler))
	}

	handler := s.basicAuthMiddleware(mux)
	return s.loggingMiddleware(handler)
}

func (s *Server) updateMetrics() {
	if s.userRepo != nil {
		users, err := s.userRepo.GetAllUsers()
		if err != nil {
			s.logger.Error("failed to get users for metrics", "error", err)
		} else {
			for _, user := range users {
				userInfo.WithLabelValues(strconv.FormatInt(user.ID, 10), user.Username, user.FirstName).Set(1)
			}
		}
	}

	if s.maintenanceRepo != nil {
		s.updateStorageMetrics()
		s.runCleanup()
	}

	s.updateDiskMetrics()
}

// updateStorageMetrics updates database size metrics.
func (s *Server) updateStorageMetrics() {
	dbSize, err := s.maintenanceRepo.GetDBSize()
	if err != nil {
		s.logger.Error("failed to get DB size", "error", err)
	} else {
		storage.SetStorageSize(dbSize)
	}

	tableSizes, err := s.maintenanceRepo.GetTableSizes()
	if err != nil {
		s.logger.Error("failed to get table sizes", "error", err)
	} else {
		for _, ts := range tableSizes {
			storage.SetTableSize(ts.Name, ts.Bytes)
		}
	}
}

// runCleanup trims the download journal to download.keep_journal rows per user.
func (s *Server) runCleanup() {
	keep := s.cfg.Download.KeepJournal
	if keep <= 0 {
		return
	}
	start := time.Now()
	deleted, err := s.maintenanceRepo.CleanupDownloads(keep)
	duration := time.Since(start).Seconds()
	if err != nil {
		s.logger.Error("failed to cleanup downloads", "error", err)
		return
	}
	if deleted > 0 {
		s.logger.Info("cleaned up downloads", "deleted", deleted, "duration_s", duration)
	}
}

// updateDiskMetrics reports free space on the volume holding the download folder.
// Files kept after failed uploads accumulate there.
func (s *Server) updateDiskMetrics() {
	dir := s.cfg.Download.Dir
	if dir == "" || s.diskUsage == nil {
		return
	}
	usage, err := s.diskUsage(dir)
	if err != nil {
		s.logger.Warn("failed to get disk usage", "dir", dir, "error", err)
		return
	}
	downloadDiskFree.Set(float64(usage.Free))
	downloadDiskUsedPercent.Set(usage.UsedPercent)
}

func (s *Server) webhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	if s.cfg.Telegram.WebhookSecret != "" {
		token := r.Header.Get("X-Telegram-Bot-Api-Secret-Token")
		if token != s.cfg.Telegram.WebhookSecret {
			s.logger.Warn("Webhook request with invalid secret token", "client_ip", getClientIP(r), "user_agent", r.UserAgent())
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
	}

	// Limit request body to 10MB to prevent DoS
	r.Body = http.MaxBytesReader(w, r.Body, 10*1024*1024)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.logger.Error("failed to read request body", "error", err)
		if strings.Contains(err.Error(), "request body too large") {
			http.Error(w, "Request Entity Too Large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	defer r.Body.Close()

	// Acknowledge the update immediately to prevent Telegram from resending it.
	w.WriteHeader(http.StatusOK)

	// Server context, not the request one: processing outlives the handler.
	s.bot.HandleUpdateAsync(s.ctx, json.RawMessage(body), getClientIP(r))
}

// statsHandler serves GET /api/stats[?user_id=N].
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	stats, err := s.downloadRepo.GetDownloadStats(userID)
	if err != nil {
		s.logger.Error("failed to get download stats", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, stats)
}

// downloadsHandler serves GET /api/downloads?user_id=N[&limit=M].
func (s *Server) downloadsHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if userID == 0 {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	limit := defaultRecentLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(limit, maxRecentLimit)
	}

	downloads, err := s.downloadRepo.GetRecentDownloads(userID, limit)
	if err != nil {
		s.logger.Error("failed to get downloads", "user_id", userID, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if downloads == nil {
		downloads = []storage.Download{}
	}
	s.writeJSON(w, downloads)
}

func parseUserID(r *http.Request) (int64, error) {
	v := r.URL.Query().Get("user_id")
	if v == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid user_id")
	}
	return id, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		// Webhook path is derived from the token, keep it out of logs.
		if strings.HasPrefix(path, "/telegram/") {
			next.ServeHTTP(w, r)
			return
		}

		if path == "/healthz" || path == "/metrics" {
			s.logger.Debug("Received HTTP request",
				"method", r.Method,
				"path", path,
				"client_ip", getClientIP(r),
			)
		} else {
			s.logger.Info("Received HTTP request",
				"method", r.Method,
				"path", path,
				"client_ip", getClientIP(r),
				"user_agent", r.UserAgent(),
			)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Only protect /api/ routes
		if strings.HasPrefix(r.URL.Path, "/api/") {
			if !s.cfg.Server.Auth.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			user, pass, ok := r.BasicAuth()
			if !ok || user != s.cfg.Server.Auth.Username || pass != s.cfg.Server.Auth.Password {
				w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
