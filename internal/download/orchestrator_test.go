package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/runixer/tubegrab/internal/extractor"
	"github.com/runixer/tubegrab/internal/storage"
	"github.com/runixer/tubegrab/internal/telegram"
	"github.com/runixer/tubegrab/internal/testutil"
)

type fixture struct {
	api       *testutil.MockBotAPI
	extractor *testutil.MockExtractor
	store     *storage.SQLiteStore
	dir       string
	orch      *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		api:       new(testutil.MockBotAPI),
		extractor: new(testutil.MockExtractor),
		store:     testutil.TestStore(t),
		dir:       t.TempDir(),
	}
	f.orch = New(testutil.TestLogger(), f.api, f.extractor, f.store, testutil.TestTranslator(t), Config{
		Dir:            f.dir,
		Format:         "best",
		Timeout:        time.Minute,
		MaxUploadBytes: 50 << 20,
		Language:       "en",
	})
	return f
}

func (f *fixture) allowMessages() {
	f.api.On("SendMessage", mock.Anything, mock.Anything).Return(&telegram.Message{MessageID: 1}, nil)
	f.api.On("SendChatAction", mock.Anything, mock.Anything).Return(nil)
}

// extractWrites makes the extractor write {prefix}{title}.{ext} and report it.
func (f *fixture) extractWrites(prefix, title, ext string) *mock.Call {
	path := filepath.Join(f.dir, extractor.FileName(prefix, title, ext))
	return f.extractor.On("Extract", mock.Anything, mock.MatchedBy(func(req extractor.Request) bool {
		return req.Prefix == prefix
	})).Run(func(args mock.Arguments) {
		_ = os.WriteFile(path, []byte("video:"+prefix+title), 0o644)
	}).Return(&extractor.Result{Title: title, Extension: ext, Path: path}, nil)
}

func TestHandle_HappyPath(t *testing.T) {
	f := newFixture(t)
	f.allowMessages()
	f.extractWrites("42_", "MyClip", "mp4")

	expected := filepath.Join(f.dir, "42_MyClip.mp4")
	f.api.On("SendVideo", mock.Anything, mock.MatchedBy(func(req telegram.SendVideoRequest) bool {
		return req.ChatID == 100 && req.Path == expected && req.Caption == "Here is the video you requested!"
	})).Run(func(args mock.Arguments) {
		_, err := os.Stat(expected)
		assert.NoError(t, err, "file must exist while uploading")
	}).Return(&telegram.Message{MessageID: 2}, nil)

	out := f.orch.Handle(context.Background(), Request{URL: "https://example.com/v", RequesterID: 42, ChatID: 100})

	assert.Equal(t, StatusDelivered, out.Status)
	assert.NoError(t, out.Err)
	assert.Equal(t, "MyClip", out.Title)
	assert.NotEmpty(t, out.RunID)
	assert.Equal(t, []string{
		"Downloading...",
		"Download complete! The video has been sent to you.",
	}, f.api.SentTexts())

	_, err := os.Stat(expected)
	assert.True(t, os.IsNotExist(err), "delivered file must be removed")

	f.extractor.AssertCalled(t, "Extract", mock.Anything, extractor.Request{
		URL:    "https://example.com/v",
		Dir:    f.dir,
		Prefix: "42_",
		Format: "best",
	})
	f.api.AssertExpectations(t)

	recent, err := f.store.GetRecentDownloads(42, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, storage.StatusDelivered, recent[0].Status)
	assert.Equal(t, "42_MyClip.mp4", recent[0].FileName)
	assert.Equal(t, out.RunID, recent[0].RunID)
}

func TestHandle_ExtractionFailure(t *testing.T) {
	f := newFixture(t)
	f.allowMessages()
	f.extractor.On("Extract", mock.Anything, mock.Anything).Return(nil, errors.New("unsupported URL"))

	out := f.orch.Handle(context.Background(), Request{URL: "not-a-url", RequesterID: 42, ChatID: 100})

	assert.Equal(t, StatusExtractionFailed, out.Status)
	assert.EqualError(t, out.Err, "unsupported URL")

	var extractErr *ExtractionError
	require.ErrorAs(t, out.Err, &extractErr)
	assert.Equal(t, "not-a-url", extractErr.URL)

	// Only the acknowledgement; the caller reports the failure.
	assert.Equal(t, []string{"Downloading..."}, f.api.SentTexts())
	f.api.AssertNotCalled(t, "SendVideo", mock.Anything, mock.Anything)

	entries, err := os.ReadDir(f.dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	recent, err := f.store.GetRecentDownloads(42, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, storage.StatusExtractionFailed, recent[0].Status)
	assert.Equal(t, "unsupported URL", recent[0].Error)
}

func TestHandle_ExtractionTimeout(t *testing.T) {
	f := newFixture(t)
	f.allowMessages()
	f.orch.cfg.Timeout = 20 * time.Millisecond

	f.extractor.On("Extract", mock.Anything, mock.Anything).Return(nil, context.DeadlineExceeded).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		})

	out := f.orch.Handle(context.Background(), Request{URL: "https://slow.example", RequesterID: 1, ChatID: 1})

	assert.Equal(t, StatusExtractionFailed, out.Status)
	assert.EqualError(t, out.Err, "download timed out after 20ms")
}

func TestHandle_FileMissing(t *testing.T) {
	f := newFixture(t)
	f.allowMessages()
	f.extractor.On("Extract", mock.Anything, mock.Anything).Return(&extractor.Result{
		Title:     "Ghost",
		Extension: "mp4",
		Path:      filepath.Join(f.dir, "42_Ghost.mp4"),
	}, nil)

	out := f.orch.Handle(context.Background(), Request{URL: "https://example.com/v", RequesterID: 42, ChatID: 100})

	assert.Equal(t, StatusFileMissing, out.Status)
	assert.ErrorIs(t, out.Err, ErrFileNotFound)
	assert.Equal(t, []string{"Downloading..."}, f.api.SentTexts())
	f.api.AssertNotCalled(t, "SendVideo", mock.Anything, mock.Anything)
	// No retry.
	f.extractor.AssertNumberOfCalls(t, "Extract", 1)
}

func TestHandle_TransmissionFailureRetainsFile(t *testing.T) {
	f := newFixture(t)
	f.allowMessages()
	f.extractWrites("42_", "MyClip", "mp4")
	f.api.On("SendVideo", mock.Anything, mock.Anything).Return(nil, errors.New("telegram api error: Request Entity Too Large"))

	out := f.orch.Handle(context.Background(), Request{URL: "https://example.com/v", RequesterID: 42, ChatID: 100})

	assert.Equal(t, StatusTransmissionFailed, out.Status)
	assert.EqualError(t, out.Err, "telegram api error: Request Entity Too Large")
	assert.Equal(t, []string{"Downloading..."}, f.api.SentTexts())

	_, err := os.Stat(filepath.Join(f.dir, "42_MyClip.mp4"))
	assert.NoError(t, err, "file must be kept after a failed upload")
}

func TestHandle_OversizeFileNotUploaded(t *testing.T) {
	f := newFixture(t)
	f.allowMessages()
	f.orch.cfg.MaxUploadBytes = 4
	f.extractWrites("42_", "Big", "mp4")

	out := f.orch.Handle(context.Background(), Request{URL: "https://example.com/v", RequesterID: 42, ChatID: 100})

	assert.Equal(t, StatusTransmissionFailed, out.Status)
	assert.Contains(t, out.Err.Error(), "upload limit")
	f.api.AssertNotCalled(t, "SendVideo", mock.Anything, mock.Anything)

	_, err := os.Stat(filepath.Join(f.dir, "42_Big.mp4"))
	assert.NoError(t, err)
}

func TestHandle_RecomputedPathWhenNotReported(t *testing.T) {
	f := newFixture(t)
	f.allowMessages()
	testutil.WriteFile(t, f.dir, "42_Clip.webm", "x")
	f.extractor.On("Extract", mock.Anything, mock.Anything).Return(&extractor.Result{Title: "Clip", Extension: "webm"}, nil)
	f.api.On("SendVideo", mock.Anything, mock.MatchedBy(func(req telegram.SendVideoRequest) bool {
		return filepath.Base(req.Path) == "42_Clip.webm"
	})).Return(&telegram.Message{}, nil)

	out := f.orch.Handle(context.Background(), Request{URL: "u", RequesterID: 42, ChatID: 42})

	assert.Equal(t, StatusDelivered, out.Status)
}

func TestHandle_AcknowledgementFailureDoesNotStopRun(t *testing.T) {
	f := newFixture(t)
	f.api.On("SendMessage", mock.Anything, mock.Anything).Return(nil, errors.New("network down")).Once()
	f.api.On("SendMessage", mock.Anything, mock.Anything).Return(&telegram.Message{}, nil)
	f.api.On("SendChatAction", mock.Anything, mock.Anything).Return(errors.New("ignored"))
	f.extractWrites("7_", "Clip", "mp4")
	f.api.On("SendVideo", mock.Anything, mock.Anything).Return(&telegram.Message{}, nil)

	out := f.orch.Handle(context.Background(), Request{URL: "u", RequesterID: 7, ChatID: 7})

	assert.Equal(t, StatusDelivered, out.Status)
}

func TestHandle_PanicIsRecovered(t *testing.T) {
	f := newFixture(t)
	f.allowMessages()
	f.extractor.On("Extract", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		panic("boom")
	}).Return(nil, nil)

	var out Outcome
	require.NotPanics(t, func() {
		out = f.orch.Handle(context.Background(), Request{URL: "u", RequesterID: 1, ChatID: 1})
	})

	assert.Equal(t, StatusUnexpected, out.Status)
	var panicErr *PanicError
	assert.ErrorAs(t, out.Err, &panicErr)
}

func TestHandle_ConcurrentUsersGetOwnFiles(t *testing.T) {
	f := newFixture(t)
	f.allowMessages()

	const users = 5
	for i := int64(1); i <= users; i++ {
		f.extractWrites(extractor.Prefix(i), "Shared Title", "mp4")
	}

	var mu sync.Mutex
	delivered := make(map[int64]string)
	f.api.On("SendVideo", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		req := args.Get(1).(telegram.SendVideoRequest)
		data, err := os.ReadFile(req.Path)
		require.NoError(t, err)
		mu.Lock()
		delivered[req.ChatID] = string(data)
		mu.Unlock()
	}).Return(&telegram.Message{}, nil)

	var wg sync.WaitGroup
	for i := int64(1); i <= users; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			out := f.orch.Handle(context.Background(), Request{URL: "https://example.com/same", RequesterID: id, ChatID: id})
			assert.Equal(t, StatusDelivered, out.Status)
		}(i)
	}
	wg.Wait()

	require.Len(t, delivered, users)
	for i := int64(1); i <= users; i++ {
		assert.Equal(t, fmt.Sprintf("video:%d_Shared Title", i), delivered[i])
	}
}

func TestHandle_NilJournal(t *testing.T) {
	f := newFixture(t)
	f.orch.journal = nil
	f.allowMessages()
	f.extractor.On("Extract", mock.Anything, mock.Anything).Return(nil, errors.New("unsupported URL"))

	out := f.orch.Handle(context.Background(), Request{URL: "u", RequesterID: 1, ChatID: 1})
	assert.Equal(t, StatusExtractionFailed, out.Status)
}

func TestHandle_RecordsMetrics(t *testing.T) {
	f := newFixture(t)
	f.allowMessages()
	f.extractor.On("Extract", mock.Anything, mock.Anything).Return(&extractor.Result{Title: "None", Extension: "mp4"}, nil)

	before := testutil.ScrapeMetrics(t)
	f.orch.Handle(context.Background(), Request{URL: "u", RequesterID: 1, ChatID: 1})
	after := testutil.ScrapeMetrics(t)

	testutil.AssertMetricIncreased(t, before, after, "tubegrab_download_runs_total",
		map[string]string{"status": storage.StatusFileMissing}, 1)
}
