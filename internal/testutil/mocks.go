// Package testutil provides shared test mocks, fixtures, and helpers.
package testutil

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/runixer/tubegrab/internal/extractor"
	"github.com/runixer/tubegrab/internal/storage"
	"github.com/runixer/tubegrab/internal/telegram"
)

// MockBotAPI implements telegram.BotAPI for tests.
type MockBotAPI struct {
	mock.Mock
}

func (m *MockBotAPI) SendMessage(ctx context.Context, req telegram.SendMessageRequest) (*telegram.Message, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*telegram.Message), args.Error(1)
}

func (m *MockBotAPI) SendVideo(ctx context.Context, req telegram.SendVideoRequest) (*telegram.Message, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*telegram.Message), args.Error(1)
}

func (m *MockBotAPI) SendChatAction(ctx context.Context, req telegram.SendChatActionRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *MockBotAPI) AnswerCallbackQuery(ctx context.Context, req telegram.AnswerCallbackQueryRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *MockBotAPI) SetMyCommands(ctx context.Context, req telegram.SetMyCommandsRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *MockBotAPI) SetWebhook(ctx context.Context, req telegram.SetWebhookRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *MockBotAPI) GetUpdates(ctx context.Context, req telegram.GetUpdatesRequest) ([]telegram.Update, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]telegram.Update), args.Error(1)
}

func (m *MockBotAPI) GetToken() string {
	args := m.Called()
	return args.String(0)
}

// SentTexts returns the text of every SendMessage call in order.
func (m *MockBotAPI) SentTexts() []string {
	var texts []string
	for _, call := range m.Calls {
		if call.Method != "SendMessage" {
			continue
		}
		texts = append(texts, call.Arguments.Get(1).(telegram.SendMessageRequest).Text)
	}
	return texts
}

// SentTextsTo returns the text of every SendMessage call addressed to chatID.
func (m *MockBotAPI) SentTextsTo(chatID int64) []string {
	var texts []string
	for _, call := range m.Calls {
		if call.Method != "SendMessage" {
			continue
		}
		req := call.Arguments.Get(1).(telegram.SendMessageRequest)
		if req.ChatID == chatID {
			texts = append(texts, req.Text)
		}
	}
	return texts
}

// MockExtractor implements extractor.Extractor for tests.
type MockExtractor struct {
	mock.Mock
}

func (m *MockExtractor) Extract(ctx context.Context, req extractor.Request) (*extractor.Result, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*extractor.Result), args.Error(1)
}

// MockStorage implements storage.Storage for tests.
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) UpsertUser(user storage.User) error {
	args := m.Called(user)
	return args.Error(0)
}

func (m *MockStorage) GetAllUsers() ([]storage.User, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]storage.User), args.Error(1)
}

func (m *MockStorage) AddDownload(d storage.Download) (int64, error) {
	args := m.Called(d)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStorage) GetRecentDownloads(userID int64, limit int) ([]storage.Download, error) {
	args := m.Called(userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]storage.Download), args.Error(1)
}

func (m *MockStorage) GetDownloadStats(userID int64) (*storage.DownloadStats, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.DownloadStats), args.Error(1)
}

func (m *MockStorage) GetDBSize() (int64, error) {
	args := m.Called()
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStorage) GetTableSizes() ([]storage.TableSize, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]storage.TableSize), args.Error(1)
}

func (m *MockStorage) CleanupDownloads(keepPerUser int) (int64, error) {
	args := m.Called(keepPerUser)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStorage) Close() error {
	args := m.Called()
	return args.Error(0)
}

var _ storage.Storage = (*MockStorage)(nil)
var _ telegram.BotAPI = (*MockBotAPI)(nil)
var _ extractor.Extractor = (*MockExtractor)(nil)
