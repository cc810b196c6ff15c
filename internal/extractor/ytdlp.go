package extractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/lrstanley/go-ytdlp"
)

// YTDLP extracts media with the yt-dlp binary through go-ytdlp.
type YTDLP struct {
	logger           *slog.Logger
	progressInterval time.Duration
}

// NewYTDLP creates a yt-dlp backed Extractor.
func NewYTDLP(logger *slog.Logger) *YTDLP {
	return &YTDLP{
		logger:           logger.With("component", "extractor"),
		progressInterval: 5 * time.Second,
	}
}

// EnsureInstalled resolves the yt-dlp binary, downloading it into the
// user cache when it is not on PATH.
func EnsureInstalled(ctx context.Context, logger *slog.Logger) error {
	resolved, err := ytdlp.Install(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to resolve yt-dlp: %w", err)
	}
	logger.Info("yt-dlp resolved",
		"executable", resolved.Executable,
		"version", resolved.Version,
		"downloaded", resolved.Downloaded,
	)
	return nil
}

// OutputTemplate is the yt-dlp output template for a request.
func OutputTemplate(dir, prefix string) string {
	return filepath.Join(dir, prefix+"%(title)s.%(ext)s")
}

func (y *YTDLP) Extract(ctx context.Context, req Request) (*Result, error) {
	logger := y.logger.With("url", req.URL, "prefix", req.Prefix)

	dl := ytdlp.New().
		Format(req.Format).
		NoPlaylist().
		ForceOverwrites().
		PrintJSON().
		Output(OutputTemplate(req.Dir, req.Prefix))

	var (
		mu    sync.Mutex
		title string
	)
	dl.ProgressFunc(y.progressInterval, func(update ytdlp.ProgressUpdate) {
		mu.Lock()
		if update.Info != nil && update.Info.Title != nil && title == "" {
			title = *update.Info.Title
		}
		current := title
		mu.Unlock()

		logger.Debug("extraction progress",
			"title", current,
			"downloaded_bytes", update.DownloadedBytes,
			"total_bytes", update.TotalBytes,
			"eta", update.ETA().String(),
		)
	})

	started := time.Now()
	res, err := dl.Run(ctx, req.URL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("extraction aborted: %w", ctx.Err())
		}
		return nil, errors.New(failureReason(res, err))
	}

	mu.Lock()
	out := &Result{Title: title}
	mu.Unlock()
	if info, infoErr := res.GetExtractedInfo(); infoErr == nil && len(info) > 0 {
		if info[0].Title != nil {
			out.Title = *info[0].Title
		}
		if info[0].Filename != nil {
			out.Path = *info[0].Filename
			out.Extension = strings.TrimPrefix(filepath.Ext(out.Path), ".")
		}
	} else if infoErr != nil {
		logger.Warn("extracted info unavailable", "error", infoErr)
	}

	logger.Info("extraction finished",
		"title", out.Title,
		"path", out.Path,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return out, nil
}

// failureReason turns a failed run into a short message, preferring the
// last "ERROR:" line yt-dlp printed.
func failureReason(res *ytdlp.Result, err error) string {
	if res != nil {
		if reason := lastErrorLine(res.Stderr); reason != "" {
			return reason
		}
	}
	return err.Error()
}

func lastErrorLine(stderr string) string {
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if rest, ok := strings.CutPrefix(line, "ERROR:"); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}
