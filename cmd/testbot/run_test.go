package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/runixer/tubegrab/internal/extractor"
	"github.com/runixer/tubegrab/internal/testutil"
)

// writingExtractor returns a mock that writes "{prefix}Clip.mp4" into the request folder.
func writingExtractor() *testutil.MockExtractor {
	ext := new(testutil.MockExtractor)
	ext.On("Extract", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		req := args.Get(1).(extractor.Request)
		path := filepath.Join(req.Dir, extractor.FileName(req.Prefix, "Clip", "mp4"))
		_ = os.WriteFile(path, []byte("video-bytes"), 0o644)
	}).Return(&extractor.Result{Title: "Clip", Extension: "mp4"}, nil)
	return ext
}

func TestRunDownload_Delivered(t *testing.T) {
	ext := writingExtractor()
	tb, out := newTestBot(t, ext)

	report, err := runDownload(context.Background(), tb, testUserID, "  https://example.com/v  ")
	require.NoError(t, err)

	assert.True(t, report.Delivered)
	assert.Equal(t, "https://example.com/v", report.URL)
	require.Len(t, report.Files, 1)
	assert.Equal(t, "4242_Clip.mp4", filepath.Base(report.Files[0]))

	copied, err := os.ReadFile(report.Files[0])
	require.NoError(t, err)
	assert.Equal(t, "video-bytes", string(copied))

	// Original is removed after a successful send
	assert.NoFileExists(t, filepath.Join(tb.cfg.Download.Dir, "4242_Clip.mp4"))

	var kinds []string
	for _, s := range report.Sent {
		kinds = append(kinds, s.Kind)
	}
	assert.Equal(t, []string{"message", "message", "message", "video", "message"}, kinds)
	assert.Equal(t, []string{"download_request"}, report.Sent[0].Buttons)
	assert.Equal(t, "Downloading...", report.Sent[2].Text)
	assert.Equal(t, "Here is the video you requested!", report.Sent[3].Text)

	assert.Contains(t, out.String(), "!download_request")

	ext.AssertCalled(t, "Extract", mock.Anything, mock.MatchedBy(func(req extractor.Request) bool {
		return req.URL == "https://example.com/v" && req.Prefix == "4242_" && req.Format == "best"
	}))

	stats, err := tb.store.GetDownloadStats(testUserID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.ByStatus["delivered"])
}

func TestRunDownload_ExtractionFails(t *testing.T) {
	ext := new(testutil.MockExtractor)
	ext.On("Extract", mock.Anything, mock.Anything).Return(nil, errors.New("Unsupported URL"))
	tb, _ := newTestBot(t, ext)

	report, err := runDownload(context.Background(), tb, testUserID, "not a url")
	require.NoError(t, err)

	assert.False(t, report.Delivered)
	last := report.Sent[len(report.Sent)-1]
	assert.True(t, strings.HasPrefix(last.Text, "An error occurred: "), last.Text)
	assert.Contains(t, last.Text, "Unsupported URL")
}

func TestRunDownload_InstallFails(t *testing.T) {
	tb, _ := newTestBot(t, new(testutil.MockExtractor))
	tb.install = func(context.Context) error { return errors.New("no network") }

	_, err := runDownload(context.Background(), tb, testUserID, "https://example.com/v")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no network")
	assert.Empty(t, tb.api.Transcript())
}

func TestChatLoop(t *testing.T) {
	ext := writingExtractor()
	tb, out := newTestBot(t, ext)

	input := strings.Join([]string{
		"hello before any button",
		"/start",
		"!unknown",
		"!download_request",
		"https://example.com/v",
		"/quit",
		"never read",
	}, "\n")

	require.NoError(t, chatLoop(context.Background(), tb, testUserID, strings.NewReader(input), out))

	var texts []string
	for _, s := range tb.api.Transcript() {
		texts = append(texts, s.Text)
	}
	assert.Equal(t, []string{
		"Choose an option:",
		"Send the URL of the video you want to download.",
		"Downloading...",
		"Here is the video you requested!",
		"Download complete! The video has been sent to you.",
	}, texts, "text without a stage and unknown buttons produce no reply")

	ext.AssertNumberOfCalls(t, "Extract", 1)
}

func TestChatLoop_InstallsBeforeFirstText(t *testing.T) {
	tb, _ := newTestBot(t, new(testutil.MockExtractor))

	calls := 0
	tb.install = func(context.Context) error {
		calls++
		return nil
	}

	var out bytes.Buffer
	require.NoError(t, chatLoop(context.Background(), tb, testUserID, strings.NewReader("/start\nfirst\nsecond\n"), &out))
	assert.Equal(t, 1, calls)
}
