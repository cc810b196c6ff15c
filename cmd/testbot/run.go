package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/runixer/tubegrab/internal/bot"
	"github.com/runixer/tubegrab/internal/telegram"
)

const testbotSource = "testbot"

// runReport summarizes one scripted conversation.
type runReport struct {
	URL       string     `json:"url"`
	UserID    int64      `json:"user_id"`
	Delivered bool       `json:"delivered"`
	Files     []string   `json:"files,omitempty"`
	Sent      []outbound `json:"sent"`
	Duration  string     `json:"duration"`
}

// conversation feeds synthetic updates from one user into the dispatcher.
// Updates are processed synchronously so output order matches input order.
type conversation struct {
	tb     *testBot
	user   *telegram.User
	nextID int
}

func newConversation(tb *testBot, userID int64) *conversation {
	return &conversation{
		tb:   tb,
		user: &telegram.User{ID: userID, FirstName: "Testbot", Username: "testbot"},
	}
}

func (c *conversation) update() *telegram.Update {
	c.nextID++
	return &telegram.Update{UpdateID: c.nextID}
}

func (c *conversation) chat() *telegram.Chat {
	return &telegram.Chat{ID: c.user.ID, Type: "private"}
}

func (c *conversation) text(ctx context.Context, text string) {
	upd := c.update()
	upd.Message = &telegram.Message{
		MessageID: upd.UpdateID,
		From:      c.user,
		Chat:      c.chat(),
		Date:      int(time.Now().Unix()),
		Text:      text,
	}
	c.tb.bot.ProcessUpdate(ctx, upd, testbotSource)
}

func (c *conversation) press(ctx context.Context, data string) {
	upd := c.update()
	upd.CallbackQuery = &telegram.CallbackQuery{
		ID:   fmt.Sprintf("testbot-%d", upd.UpdateID),
		From: c.user,
		Message: &telegram.Message{
			MessageID: upd.UpdateID,
			Chat:      c.chat(),
		},
		Data: data,
	}
	c.tb.bot.ProcessUpdate(ctx, upd, testbotSource)
}

// runDownload replays /start, the download button and the URL.
func runDownload(ctx context.Context, tb *testBot, userID int64, url string) (*runReport, error) {
	if tb.install != nil {
		if err := tb.install(ctx); err != nil {
			return nil, fmt.Errorf("failed to install extractor: %w", err)
		}
	}

	start := time.Now()
	before := len(tb.api.Transcript())

	conv := newConversation(tb, userID)
	conv.text(ctx, "/start")
	conv.press(ctx, bot.DownloadRequestData)
	conv.text(ctx, url)

	report := &runReport{
		URL:      strings.TrimSpace(url),
		UserID:   userID,
		Sent:     tb.api.Transcript()[before:],
		Duration: time.Since(start).Round(time.Millisecond).String(),
	}
	for _, out := range report.Sent {
		if out.Kind == "video" {
			report.Delivered = true
			report.Files = append(report.Files, out.File)
		}
	}
	return report, nil
}

// chatLoop reads lines from in until EOF or /quit.
// "!data" presses the button with that callback data, anything else is sent as text.
func chatLoop(ctx context.Context, tb *testBot, userID int64, in io.Reader, out io.Writer) error {
	conv := newConversation(tb, userID)
	installed := tb.install == nil

	scanner := bufio.NewScanner(in)
	fmt.Fprint(out, "you> ")
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Text()

		switch {
		case strings.TrimSpace(line) == "/quit":
			return nil
		case strings.HasPrefix(line, "!"):
			conv.press(ctx, strings.TrimPrefix(line, "!"))
		case strings.TrimSpace(line) == "":
		default:
			// Установка yt-dlp только перед первым текстом, /start её не требует
			if !installed && !strings.HasPrefix(line, "/") {
				if err := tb.install(ctx); err != nil {
					return fmt.Errorf("failed to install extractor: %w", err)
				}
				installed = true
			}
			conv.text(ctx, line)
		}
		fmt.Fprint(out, "you> ")
	}
	fmt.Fprintln(out)
	return scanner.Err()
}

var runCmd = &cobra.Command{
	Use:   "run <url>",
	Short: "Run the full download conversation for a URL",
	Long: `Send /start, press the download button and send the URL, exactly as a Telegram
user would. The delivered video is copied into the --out directory.

Exits non-zero when no video was delivered.

Example:
  testbot run "https://www.youtube.com/watch?v=jNQXAC9IVRw" --output json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		isJSON := mustGetString(cmd, "output") == "json"

		tb := getTestBot(cmd)
		if tb == nil {
			return outputCheckError(cmd, "testbot not initialized", isJSON)
		}
		if mustGetBool(cmd, "skip-install") {
			tb.install = nil
		}

		report, err := runDownload(cmd.Context(), tb, getUserID(cmd), args[0])
		if err != nil {
			return outputCheckError(cmd, err.Error(), isJSON)
		}

		if isJSON {
			status := "PASS"
			if !report.Delivered {
				status = "FAIL"
			}
			if err := outputCheckJSON(cmd.OutOrStdout(), map[string]interface{}{
				"status": status,
				"report": report,
			}); err != nil {
				return err
			}
		} else if report.Delivered {
			fmt.Fprintf(cmd.OutOrStdout(), "PASS: delivered %s in %s\n", strings.Join(report.Files, ", "), report.Duration)
		}

		if !report.Delivered {
			return fmt.Errorf("FAIL: no video delivered for %s", report.URL)
		}
		return nil
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the bot interactively",
	Long: `Read lines from stdin and feed them to the bot. A line starting with "!" presses
the inline button with that callback data, /quit exits.

Example:
  testbot chat
  you> /start
  you> !download_request
  you> https://www.youtube.com/watch?v=jNQXAC9IVRw`,
	RunE: func(cmd *cobra.Command, args []string) error {
		tb := getTestBot(cmd)
		if tb == nil {
			return fmt.Errorf("testbot not initialized")
		}
		if mustGetBool(cmd, "skip-install") {
			tb.install = nil
		}
		return chatLoop(cmd.Context(), tb, getUserID(cmd), cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	runCmd.Flags().String("output", "text", "Output format (text|json)")
	runCmd.Flags().Bool("skip-install", false, "Use yt-dlp from PATH without resolving it first")
	chatCmd.Flags().Bool("skip-install", false, "Use yt-dlp from PATH without resolving it first")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(chatCmd)
}
