// Package testapp builds a fully wired app and API server for tests.
package testapp

import (
	"testing"

	"github.com/vrsandeep/mylist-go/internal/api"
	"github.com/vrsandeep/mylist-go/internal/config"
	"github.com/vrsandeep/mylist-go/internal/core"
	"github.com/vrsandeep/mylist-go/internal/fetcher"
	"github.com/vrsandeep/mylist-go/internal/testutil"
)

// TestConfig returns the configuration defaults without reading any file.
func TestConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Site.BaseURL = "https://www.nicovideo.jp"
	cfg.Refresh.DefaultCheckInterval = "15分"
	cfg.Refresh.FetchWorkers = 4
	cfg.Refresh.MergeWorkers = 8
	return cfg
}

// SetupTestApp builds a core.App on a fresh database. The given fetchers
// replace the network-backed strategies.
func SetupTestApp(t *testing.T, fetchers ...fetcher.Fetcher) *core.App {
	t.Helper()
	return SetupTestAppWithConfig(t, TestConfig(), fetchers...)
}

// SetupTestAppWithConfig is SetupTestApp with a caller-supplied configuration,
// usually TestConfig with a few fields changed.
func SetupTestAppWithConfig(t *testing.T, cfg *config.Config, fetchers ...fetcher.Fetcher) *core.App {
	t.Helper()
	app := core.NewWith(cfg, testutil.SetupTestDB(t), fetcher.NewRegistry(fetchers...))
	app.Version = "test"
	go app.WsHub().Run()
	return app
}

// SetupTestServer initializes a full core.App and api.Server for integration testing.
func SetupTestServer(t *testing.T, fetchers ...fetcher.Fetcher) (*api.Server, *core.App) {
	t.Helper()
	app := SetupTestApp(t, fetchers...)
	return api.NewServer(app), app
}

// SetupTestServerWithConfig builds the server on top of SetupTestAppWithConfig.
func SetupTestServerWithConfig(t *testing.T, cfg *config.Config, fetchers ...fetcher.Fetcher) (*api.Server, *core.App) {
	t.Helper()
	app := SetupTestAppWithConfig(t, cfg, fetchers...)
	return api.NewServer(app), app
}
