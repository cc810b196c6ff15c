package bot

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/runixer/tubegrab/internal/download"
	"github.com/runixer/tubegrab/internal/session"
	"github.com/runixer/tubegrab/internal/storage"
	"github.com/runixer/tubegrab/internal/telegram"
	"github.com/runixer/tubegrab/internal/testutil"
)

// fakeDownloader records requests and returns a fixed outcome.
type fakeDownloader struct {
	mu        sync.Mutex
	requests  []download.Request
	outcome   download.Outcome
	panicWith interface{}
}

func (f *fakeDownloader) Handle(_ context.Context, req download.Request) download.Outcome {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	p := f.panicWith
	out := f.outcome
	f.mu.Unlock()
	if p != nil {
		panic(p)
	}
	return out
}

func (f *fakeDownloader) Requests() []download.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]download.Request(nil), f.requests...)
}

type harness struct {
	api        *testutil.MockBotAPI
	store      *testutil.MockStorage
	sessions   *session.MemoryStore
	downloader *fakeDownloader
	bot        *Bot
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		api:        new(testutil.MockBotAPI),
		store:      new(testutil.MockStorage),
		sessions:   session.NewMemoryStore(),
		downloader: &fakeDownloader{outcome: download.Outcome{Status: download.StatusDelivered}},
	}
	h.api.On("SetMyCommands", mock.Anything, mock.Anything).Return(nil)
	h.api.On("SendMessage", mock.Anything, mock.Anything).Return(&telegram.Message{MessageID: 1}, nil)
	h.api.On("AnswerCallbackQuery", mock.Anything, mock.Anything).Return(nil)
	h.store.On("UpsertUser", mock.Anything).Return(nil)

	b, err := NewBot(testutil.TestLogger(), h.api, testutil.TestConfig(t), h.store, h.sessions, h.downloader, testutil.TestTranslator(t))
	require.NoError(t, err)
	h.bot = b
	return h
}

func (h *harness) send(update *telegram.Update) {
	h.bot.ProcessUpdate(context.Background(), update, "test")
}

func TestNewBot_RegistersStartCommand(t *testing.T) {
	h := newHarness(t)

	h.api.AssertCalled(t, "SetMyCommands", mock.Anything, telegram.SetMyCommandsRequest{
		Commands: []telegram.BotCommand{{Command: "start", Description: "Show the main menu"}},
	})
	assert.Same(t, h.api, h.bot.API())
}

func TestNewBot_SetCommandsFailure(t *testing.T) {
	api := new(testutil.MockBotAPI)
	api.On("SetMyCommands", mock.Anything, mock.Anything).Return(errors.New("unauthorized"))

	_, err := NewBot(testutil.TestLogger(), api, testutil.TestConfig(t), new(testutil.MockStorage), session.NewMemoryStore(), &fakeDownloader{}, testutil.TestTranslator(t))
	assert.ErrorContains(t, err, "failed to set bot commands")
}

func TestStartCommand_ShowsMenu(t *testing.T) {
	h := newHarness(t)
	user := testutil.TestUser()

	h.send(testutil.TextUpdate(1, user, "/start"))

	h.api.AssertCalled(t, "SendMessage", mock.Anything, telegram.SendMessageRequest{
		ChatID: user.ID,
		Text:   "Choose an option:",
		ReplyMarkup: &telegram.InlineKeyboardMarkup{
			InlineKeyboard: [][]telegram.InlineKeyboardButton{
				{{Text: "Download from video source", CallbackData: "download_request"}},
			},
		},
	})
	assert.Equal(t, session.StageNone, h.sessions.Get(user.ID))
	h.store.AssertCalled(t, "UpsertUser", mock.MatchedBy(func(u storage.User) bool {
		return u.ID == user.ID && u.Username == "testuser"
	}))
}

func TestDownloadButton_SetsStageAndPrompts(t *testing.T) {
	h := newHarness(t)
	user := testutil.TestUser()

	h.send(testutil.ButtonUpdate(1, user, DownloadRequestData))

	assert.Equal(t, session.StageAwaitingDownloadURL, h.sessions.Get(user.ID))
	assert.Equal(t, []string{"Send the URL of the video you want to download."}, h.api.SentTexts())
	h.api.AssertCalled(t, "AnswerCallbackQuery", mock.Anything, telegram.AnswerCallbackQueryRequest{
		CallbackQueryID: "cb-" + DownloadRequestData,
	})
}

func TestDownloadButton_AnswerFailureStillPrompts(t *testing.T) {
	api := new(testutil.MockBotAPI)
	api.On("SetMyCommands", mock.Anything, mock.Anything).Return(nil)
	api.On("AnswerCallbackQuery", mock.Anything, mock.Anything).Return(errors.New("query is too old"))
	api.On("SendMessage", mock.Anything, mock.Anything).Return(&telegram.Message{}, nil)
	store := new(testutil.MockStorage)
	store.On("UpsertUser", mock.Anything).Return(errors.New("db locked"))
	sessions := session.NewMemoryStore()

	b, err := NewBot(testutil.TestLogger(), api, testutil.TestConfig(t), store, sessions, &fakeDownloader{}, testutil.TestTranslator(t))
	require.NoError(t, err)

	b.ProcessUpdate(context.Background(), testutil.ButtonUpdate(1, testutil.TestUser(), DownloadRequestData), "test")

	assert.Equal(t, session.StageAwaitingDownloadURL, sessions.Get(42))
	assert.Len(t, api.SentTexts(), 1)
}

func TestUnknownButton_Ignored(t *testing.T) {
	h := newHarness(t)
	user := testutil.TestUser()

	h.send(testutil.ButtonUpdate(1, user, "other_feature"))

	assert.Equal(t, session.StageNone, h.sessions.Get(user.ID))
	assert.Empty(t, h.api.SentTexts())
	h.api.AssertCalled(t, "AnswerCallbackQuery", mock.Anything, mock.Anything)
	assert.Empty(t, h.downloader.Requests())
}

func TestText_WithoutStageIsDropped(t *testing.T) {
	h := newHarness(t)

	h.send(testutil.TextUpdate(1, testutil.TestUser(), "https://example.com/v"))

	assert.Empty(t, h.api.SentTexts())
	assert.Empty(t, h.downloader.Requests())
}

func TestText_StartsDownloadWithTrimmedURL(t *testing.T) {
	h := newHarness(t)
	user := testutil.TestUser()
	h.sessions.Set(user.ID, session.StageAwaitingDownloadURL)

	h.send(testutil.TextUpdate(1, user, "  https://example.com/v \n"))

	assert.Equal(t, []download.Request{
		{URL: "https://example.com/v", RequesterID: user.ID, ChatID: user.ID},
	}, h.downloader.Requests())
}

func TestText_StageSurvivesRuns(t *testing.T) {
	h := newHarness(t)
	user := testutil.TestUser()

	h.send(testutil.ButtonUpdate(1, user, DownloadRequestData))
	h.send(testutil.TextUpdate(2, user, "https://example.com/one"))
	h.send(testutil.TextUpdate(3, user, "https://example.com/two"))

	reqs := h.downloader.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "https://example.com/one", reqs[0].URL)
	assert.Equal(t, "https://example.com/two", reqs[1].URL)
	assert.Equal(t, session.StageAwaitingDownloadURL, h.sessions.Get(user.ID))
}

func TestStageIsPerChat(t *testing.T) {
	h := newHarness(t)
	alice := &telegram.User{ID: 1, FirstName: "Alice"}
	bob := &telegram.User{ID: 2, FirstName: "Bob"}

	h.send(testutil.ButtonUpdate(1, alice, DownloadRequestData))
	h.send(testutil.TextUpdate(2, bob, "https://example.com/bob"))
	h.send(testutil.TextUpdate(3, alice, "https://example.com/alice"))

	reqs := h.downloader.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, int64(1), reqs[0].RequesterID)
}

func TestReportOutcome(t *testing.T) {
	tests := []struct {
		name    string
		outcome download.Outcome
		want    []string
	}{
		{
			name:    "delivered",
			outcome: download.Outcome{Status: download.StatusDelivered},
			want:    nil,
		},
		{
			name: "extraction failed",
			outcome: download.Outcome{
				Status: download.StatusExtractionFailed,
				Err:    &download.ExtractionError{URL: "x", Err: errors.New("unsupported URL")},
			},
			want: []string{"An error occurred: unsupported URL"},
		},
		{
			name:    "file missing",
			outcome: download.Outcome{Status: download.StatusFileMissing, Err: download.ErrFileNotFound},
			want:    []string{"Error: file not found after download."},
		},
		{
			name: "transmission failed",
			outcome: download.Outcome{
				Status: download.StatusTransmissionFailed,
				Err:    &download.TransmissionError{Path: "p", Err: errors.New("connection reset")},
			},
			want: []string{"An error occurred: connection reset"},
		},
		{
			name:    "unexpected",
			outcome: download.Outcome{Status: download.StatusUnexpected, Err: &download.PanicError{Value: "nil map"}},
			want:    []string{"An error occurred: internal error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.downloader.outcome = tt.outcome
			user := testutil.TestUser()
			h.sessions.Set(user.ID, session.StageAwaitingDownloadURL)

			h.send(testutil.TextUpdate(1, user, "x"))

			assert.Equal(t, tt.want, h.api.SentTexts())
		})
	}
}

func TestUnauthorizedUser_Ignored(t *testing.T) {
	h := newHarness(t)
	h.bot.cfg.Bot.AllowedUserIDs = []int64{7}
	lc := testutil.NewLogCapture()
	h.bot.logger = lc.Logger()
	user := testutil.TestUser()

	h.send(testutil.TextUpdate(1, user, "/start"))
	h.send(testutil.ButtonUpdate(2, user, DownloadRequestData))

	assert.Empty(t, h.api.SentTexts())
	h.api.AssertNotCalled(t, "AnswerCallbackQuery", mock.Anything, mock.Anything)
	assert.Equal(t, session.StageNone, h.sessions.Get(user.ID))

	testutil.AssertLogContains(t, lc, "warn", "Unauthorized access")
	testutil.AssertLogHasField(t, lc, "user_id", user.ID)
}

func TestAllowedUser_Served(t *testing.T) {
	h := newHarness(t)
	h.bot.cfg.Bot.AllowedUserIDs = []int64{7, 42}

	h.send(testutil.TextUpdate(1, testutil.TestUser(), "/start"))

	assert.Equal(t, []string{"Choose an option:"}, h.api.SentTexts())
}

func TestPanicInDownload_Recovered(t *testing.T) {
	h := newHarness(t)
	h.downloader.panicWith = "boom"
	lc := testutil.NewLogCapture()
	h.bot.logger = lc.Logger()
	user := testutil.TestUser()
	h.sessions.Set(user.ID, session.StageAwaitingDownloadURL)

	assert.NotPanics(t, func() {
		h.send(testutil.TextUpdate(1, user, "https://example.com/v"))
	})
	assert.Equal(t, []string{"An error occurred: internal error"}, h.api.SentTexts())

	entry := testutil.AssertLogContains(t, lc, "error", "panic while handling update")
	assert.Equal(t, "boom", entry.Fields["panic"])
	assert.Equal(t, "text", entry.Fields["event"])
}

func TestHandleUpdateAsync_WebhookPayload(t *testing.T) {
	h := newHarness(t)
	raw, err := json.Marshal(testutil.TextUpdate(5, testutil.TestUser(), "/start"))
	require.NoError(t, err)

	h.bot.HandleUpdateAsync(context.Background(), raw, "127.0.0.1")
	h.bot.Stop()

	assert.Equal(t, []string{"Choose an option:"}, h.api.SentTexts())
}

func TestHandleUpdate_InvalidJSON(t *testing.T) {
	h := newHarness(t)

	h.bot.HandleUpdate(context.Background(), json.RawMessage(`{"update_id":`), "127.0.0.1")

	assert.Empty(t, h.api.SentTexts())
	h.store.AssertNotCalled(t, "UpsertUser", mock.Anything)
}

// blockingDownloader holds every run until release is closed.
type blockingDownloader struct {
	started chan struct{}
	release chan struct{}
	ctxErr  chan error
}

func (d *blockingDownloader) Handle(ctx context.Context, _ download.Request) download.Outcome {
	d.started <- struct{}{}
	<-d.release
	d.ctxErr <- ctx.Err()
	return download.Outcome{Status: download.StatusDelivered}
}

func TestStop_WaitsForRunsAndIgnoresCancellation(t *testing.T) {
	h := newHarness(t)
	d := &blockingDownloader{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
		ctxErr:  make(chan error, 1),
	}
	h.bot.downloader = d
	user := testutil.TestUser()
	h.sessions.Set(user.ID, session.StageAwaitingDownloadURL)

	ctx, cancel := context.WithCancel(context.Background())
	h.bot.ProcessUpdateAsync(ctx, testutil.TextUpdate(1, user, "https://example.com/v"), "test")
	<-d.started
	cancel()

	stopped := make(chan struct{})
	go func() {
		h.bot.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a run was still active")
	case <-time.After(50 * time.Millisecond):
	}

	close(d.release)
	<-stopped
	assert.NoError(t, <-d.ctxErr, "runs must not see shutdown cancellation")
}

func TestSetWebhook(t *testing.T) {
	h := newHarness(t)
	h.api.On("SetWebhook", mock.Anything, mock.Anything).Return(nil)

	require.NoError(t, h.bot.SetWebhook("https://bot.example/telegram/abc", "secret"))

	h.api.AssertCalled(t, "SetWebhook", mock.Anything, telegram.SetWebhookRequest{
		URL:         "https://bot.example/telegram/abc",
		SecretToken: "secret",
	})
}
