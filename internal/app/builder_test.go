package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/runixer/tubegrab/internal/testutil"
)

func TestSetupServices(t *testing.T) {
	cfg := testutil.TestConfig(t)
	cfg.Download.Dir = filepath.Join(t.TempDir(), "nested", "downloads")

	api := new(testutil.MockBotAPI)
	api.On("SetMyCommands", mock.Anything, mock.Anything).Return(nil)

	services, err := SetupServices(testutil.TestLogger(), cfg, testutil.TestStore(t), api, new(testutil.MockExtractor))
	require.NoError(t, err)

	assert.NotNil(t, services.Bot)
	assert.NotNil(t, services.Orchestrator)
	assert.NotNil(t, services.Translator)
	assert.Equal(t, 0, services.Sessions.Len())

	info, err := os.Stat(cfg.Download.Dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestSetupServices_MissingDependencies(t *testing.T) {
	cfg := testutil.TestConfig(t)
	store := testutil.TestStore(t)
	api := new(testutil.MockBotAPI)
	ext := new(testutil.MockExtractor)
	logger := testutil.TestLogger()

	_, err := SetupServices(nil, cfg, store, api, ext)
	assert.ErrorContains(t, err, "logger is required")

	_, err = SetupServices(logger, nil, store, api, ext)
	assert.ErrorContains(t, err, "config is required")

	_, err = SetupServices(logger, cfg, nil, api, ext)
	assert.ErrorContains(t, err, "store is required")

	_, err = SetupServices(logger, cfg, store, nil, ext)
	assert.ErrorContains(t, err, "telegram client is required")

	_, err = SetupServices(logger, cfg, store, api, nil)
	assert.ErrorContains(t, err, "extractor is required")
}

func TestSetupServices_UnknownLanguage(t *testing.T) {
	cfg := testutil.TestConfig(t)
	cfg.Bot.Language = "xx"

	_, err := SetupServices(testutil.TestLogger(), cfg, testutil.TestStore(t), new(testutil.MockBotAPI), new(testutil.MockExtractor))
	assert.ErrorContains(t, err, "failed to initialize translator")
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv(EnvFileVar, "")

	assert.NoError(t, LoadEnv(), "missing .env is not an error")

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("TUBEGRAB_TEST_ENV_VALUE=loaded\n"), 0o600))
	t.Setenv("TUBEGRAB_TEST_ENV_VALUE", "")
	require.NoError(t, os.Unsetenv("TUBEGRAB_TEST_ENV_VALUE"))

	require.NoError(t, LoadEnv())
	assert.Equal(t, "loaded", os.Getenv("TUBEGRAB_TEST_ENV_VALUE"))
}

func TestLoadEnv_ExplicitFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bot.env")
	require.NoError(t, os.WriteFile(path, []byte("TUBEGRAB_TEST_EXPLICIT=yes\n"), 0o600))

	t.Setenv("TUBEGRAB_TEST_EXPLICIT", "")
	require.NoError(t, os.Unsetenv("TUBEGRAB_TEST_EXPLICIT"))
	t.Setenv(EnvFileVar, path)

	require.NoError(t, LoadEnv())
	assert.Equal(t, "yes", os.Getenv("TUBEGRAB_TEST_EXPLICIT"))

	t.Setenv(EnvFileVar, filepath.Join(dir, "missing.env"))
	err := LoadEnv()
	require.Error(t, err, "an explicit file must exist")
	assert.Contains(t, err.Error(), "missing.env")
}
