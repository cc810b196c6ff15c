// Package download runs one extract-and-deliver cycle per request.
package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/runixer/tubegrab/internal/extractor"
	"github.com/runixer/tubegrab/internal/i18n"
	"github.com/runixer/tubegrab/internal/storage"
	"github.com/runixer/tubegrab/internal/telegram"
)

// Request is a single download asked for by a user.
type Request struct {
	URL         string
	RequesterID int64
	ChatID      int64
}

// Outcome is the tagged result of a run. Err is nil only for StatusDelivered.
type Outcome struct {
	RunID     string
	Status    Status
	Title     string
	Path      string
	SizeBytes int64
	Err       error
	Duration  time.Duration
}

type Config struct {
	Dir            string
	Format         string
	Timeout        time.Duration // 0 disables the limit
	MaxUploadBytes int64         // 0 disables the check
	Language       string
}

type Orchestrator struct {
	api        telegram.BotAPI
	extractor  extractor.Extractor
	journal    storage.DownloadRepository
	translator *i18n.Translator
	cfg        Config
	logger     *slog.Logger
	newRunID   func() string
}

// New creates an Orchestrator. journal may be nil.
func New(logger *slog.Logger, api telegram.BotAPI, ext extractor.Extractor, journal storage.DownloadRepository, translator *i18n.Translator, cfg Config) *Orchestrator {
	return &Orchestrator{
		api:        api,
		extractor:  ext,
		journal:    journal,
		translator: translator,
		cfg:        cfg,
		logger:     logger.With("component", "download"),
		newRunID:   uuid.NewString,
	}
}

// Handle acknowledges the request, extracts the media, uploads it as a video
// and removes the local file. Failures end the run and are returned in the
// Outcome; the caller decides how to report them. The file is kept on disk
// when the upload fails.
func (o *Orchestrator) Handle(ctx context.Context, req Request) (out Outcome) {
	start := time.Now()
	out.RunID = o.newRunID()

	logger := o.logger.With(
		"run_id", out.RunID,
		"user_id", req.RequesterID,
		"chat_id", req.ChatID,
		"url", req.URL,
	)

	runsInFlight.Inc()
	defer runsInFlight.Dec()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic in download run", "panic", r, "stack", string(debug.Stack()))
			out.Status = StatusUnexpected
			out.Err = &PanicError{Value: r}
		}
		out.Duration = time.Since(start)
		o.finish(logger, req, out)
	}()

	logger.Info("download started")
	o.sendText(ctx, logger, req.ChatID, o.translator.Get(o.cfg.Language, "download.started"))

	err := o.deliver(ctx, logger, req, &out)
	out.Status = Classify(err)
	out.Err = err
	return out
}

func (o *Orchestrator) deliver(ctx context.Context, logger *slog.Logger, req Request, out *Outcome) error {
	prefix := extractor.Prefix(req.RequesterID)

	res, err := o.extract(ctx, req, prefix)
	if err != nil {
		return err
	}
	out.Title = res.Title

	path, ok := extractor.Locate(o.cfg.Dir, prefix, res)
	if !ok {
		logger.Warn("extracted file not found", "title", res.Title, "reported_path", res.Path)
		return ErrFileNotFound
	}
	out.Path = path

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	out.SizeBytes = info.Size()

	if o.cfg.MaxUploadBytes > 0 && info.Size() > o.cfg.MaxUploadBytes {
		return &TransmissionError{
			Path: path,
			Err:  fmt.Errorf("file is %d MB, upload limit is %d MB", toMB(info.Size()), toMB(o.cfg.MaxUploadBytes)),
		}
	}

	if err := o.api.SendChatAction(ctx, telegram.SendChatActionRequest{
		ChatID: req.ChatID,
		Action: telegram.ActionUploadVideo,
	}); err != nil {
		logger.Debug("failed to send chat action", "error", err)
	}

	_, err = o.api.SendVideo(ctx, telegram.SendVideoRequest{
		ChatID:            req.ChatID,
		Path:              path,
		Caption:           o.translator.Get(o.cfg.Language, "download.caption"),
		SupportsStreaming: true,
	})
	if err != nil {
		return &TransmissionError{Path: path, Err: err}
	}

	o.sendText(ctx, logger, req.ChatID, o.translator.Get(o.cfg.Language, "download.completed"))

	if err := os.Remove(path); err != nil {
		logger.Warn("failed to remove delivered file", "path", path, "error", err)
	}
	return nil
}

func (o *Orchestrator) extract(ctx context.Context, req Request, prefix string) (*extractor.Result, error) {
	extractCtx := ctx
	if o.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		extractCtx, cancel = context.WithTimeout(ctx, o.cfg.Timeout)
		defer cancel()
	}

	res, err := o.extractor.Extract(extractCtx, extractor.Request{
		URL:    req.URL,
		Dir:    o.cfg.Dir,
		Prefix: prefix,
		Format: o.cfg.Format,
	})
	if err != nil {
		if errors.Is(extractCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("download timed out after %s", o.cfg.Timeout)
		}
		return nil, &ExtractionError{URL: req.URL, Err: err}
	}
	if res == nil {
		res = &extractor.Result{}
	}
	return res, nil
}

func (o *Orchestrator) finish(logger *slog.Logger, req Request, out Outcome) {
	recordRun(out.Status, out.Duration.Seconds())

	var errText string
	if out.Err != nil {
		errText = out.Err.Error()
	}

	switch out.Status {
	case StatusDelivered:
		deliveredBytes.Add(float64(out.SizeBytes))
		logger.Info("download delivered",
			"title", out.Title,
			"size_bytes", out.SizeBytes,
			"duration_ms", out.Duration.Milliseconds(),
		)
	case StatusTransmissionFailed:
		retainedFiles.Inc()
		logger.Error("download not delivered, file retained",
			"path", out.Path,
			"error", errText,
			"duration_ms", out.Duration.Milliseconds(),
		)
	default:
		logger.Warn("download failed",
			"status", out.Status.String(),
			"error", errText,
			"duration_ms", out.Duration.Milliseconds(),
		)
	}

	if o.journal == nil {
		return
	}
	var fileName string
	if out.Path != "" {
		fileName = filepath.Base(out.Path)
	}
	if _, err := o.journal.AddDownload(storage.Download{
		RunID:      out.RunID,
		UserID:     req.RequesterID,
		ChatID:     req.ChatID,
		URL:        req.URL,
		Title:      out.Title,
		FileName:   fileName,
		SizeBytes:  out.SizeBytes,
		Status:     out.Status.String(),
		Error:      errText,
		DurationMs: out.Duration.Milliseconds(),
	}); err != nil {
		logger.Error("failed to record download", "error", err)
	}
}

func (o *Orchestrator) sendText(ctx context.Context, logger *slog.Logger, chatID int64, text string) {
	if _, err := o.api.SendMessage(ctx, telegram.SendMessageRequest{ChatID: chatID, Text: text}); err != nil {
		logger.Error("failed to send message", "error", err)
	}
}

func toMB(n int64) int64 {
	return (n + 1<<20 - 1) >> 20
}
