package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/runixer/tubegrab/internal/telegram"
)

// outbound is one thing the bot sent.
type outbound struct {
	Kind    string   `json:"kind"` // message, video
	ChatID  int64    `json:"chat_id"`
	Text    string   `json:"text,omitempty"`
	Buttons []string `json:"buttons,omitempty"`
	File    string   `json:"file,omitempty"`
	Size    int64    `json:"size,omitempty"`
}

// consoleBotAPI implements telegram.BotAPI by printing to a writer.
// Uploaded videos are copied into outDir, since the orchestrator removes its own copy.
type consoleBotAPI struct {
	mu         sync.Mutex
	out        io.Writer
	outDir     string
	nextID     int
	transcript []outbound
}

func newConsoleBotAPI(out io.Writer, outDir string) *consoleBotAPI {
	return &consoleBotAPI{out: out, outDir: outDir}
}

func (c *consoleBotAPI) SendMessage(ctx context.Context, req telegram.SendMessageRequest) (*telegram.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := outbound{Kind: "message", ChatID: req.ChatID, Text: req.Text}
	fmt.Fprintf(c.out, "bot> %s\n", req.Text)
	if req.ReplyMarkup != nil {
		for _, row := range req.ReplyMarkup.InlineKeyboard {
			for _, btn := range row {
				fmt.Fprintf(c.out, "     [%s] !%s\n", btn.Text, btn.CallbackData)
				entry.Buttons = append(entry.Buttons, btn.CallbackData)
			}
		}
	}
	c.transcript = append(c.transcript, entry)
	return c.message(req.ChatID, req.Text), nil
}

func (c *consoleBotAPI) SendVideo(ctx context.Context, req telegram.SendVideoRequest) (*telegram.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	dest := req.Path
	if c.outDir != "" {
		if err := os.MkdirAll(c.outDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create output dir: %w", err)
		}
		dest = filepath.Join(c.outDir, filepath.Base(req.Path))
		if err := copyFile(req.Path, dest); err != nil {
			return nil, err
		}
	}

	info, err := os.Stat(dest)
	if err != nil {
		return nil, fmt.Errorf("failed to stat video: %w", err)
	}

	fmt.Fprintf(c.out, "bot> [video] %s (%d bytes) %s\n", dest, info.Size(), req.Caption)
	c.transcript = append(c.transcript, outbound{
		Kind:   "video",
		ChatID: req.ChatID,
		Text:   req.Caption,
		File:   dest,
		Size:   info.Size(),
	})

	msg := c.message(req.ChatID, "")
	msg.Caption = req.Caption
	msg.Video = &telegram.Video{FileName: filepath.Base(dest), FileSize: info.Size()}
	return msg, nil
}

func (c *consoleBotAPI) SendChatAction(ctx context.Context, req telegram.SendChatActionRequest) error {
	return nil
}

func (c *consoleBotAPI) AnswerCallbackQuery(ctx context.Context, req telegram.AnswerCallbackQueryRequest) error {
	return nil
}

func (c *consoleBotAPI) SetMyCommands(ctx context.Context, req telegram.SetMyCommandsRequest) error {
	return nil
}

func (c *consoleBotAPI) SetWebhook(ctx context.Context, req telegram.SetWebhookRequest) error {
	return nil
}

func (c *consoleBotAPI) GetUpdates(ctx context.Context, req telegram.GetUpdatesRequest) ([]telegram.Update, error) {
	return []telegram.Update{}, nil
}

func (c *consoleBotAPI) GetToken() string {
	return placeholderToken
}

// Transcript returns everything sent so far.
func (c *consoleBotAPI) Transcript() []outbound {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]outbound(nil), c.transcript...)
}

// message must be called with mu held.
func (c *consoleBotAPI) message(chatID int64, text string) *telegram.Message {
	c.nextID++
	return &telegram.Message{
		MessageID: c.nextID,
		Chat:      &telegram.Chat{ID: chatID, Type: "private"},
		Text:      text,
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open video: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create copy: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy video: %w", err)
	}
	return out.Close()
}

var _ telegram.BotAPI = (*consoleBotAPI)(nil)
