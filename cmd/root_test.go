package cmd

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/JakeFAU/sitereport/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeApp struct {
	ran        bool
	migrated   bool
	closed     bool
	swept      int64
	migrateErr error
}

func (f *fakeApp) Run(context.Context) error { f.ran = true; return nil }

func (f *fakeApp) Migrate(context.Context) error {
	f.migrated = true
	return f.migrateErr
}

func (f *fakeApp) SweepTempCarts(context.Context) (int64, error) { return f.swept, nil }

func (f *fakeApp) Close() { f.closed = true }

func withFakeApp(t *testing.T, app *fakeApp) *config.Config {
	t.Helper()
	t.Setenv("SITEREPORT_SCRAPE_BACKEND", "local")
	t.Setenv("SITEREPORT_ANALYSIS_API_KEY", "test-key")
	t.Setenv("SITEREPORT_SERVER_PORT", "9090")

	var seen config.Config
	orig := newApp
	newApp = func(_ context.Context, cfg config.Config) (App, error) {
		seen = cfg
		return app, nil
	}
	t.Cleanup(func() {
		newApp = orig
		cfgFile = ""
	})
	return &seen
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestServeLoadsConfigFromEnv(t *testing.T) {
	app := &fakeApp{}
	seen := withFakeApp(t, app)

	_, err := execute(t, "serve")
	require.NoError(t, err)
	assert.True(t, app.ran)
	assert.False(t, app.migrated)
	assert.Equal(t, 9090, seen.Server.Port)
	assert.Equal(t, config.ScrapeBackendLocal, seen.Scrape.Backend)
}

func TestServeMigrateFlag(t *testing.T) {
	app := &fakeApp{migrateErr: errors.New("boom")}
	withFakeApp(t, app)

	_, err := execute(t, "serve", "--migrate")
	require.Error(t, err)
	assert.True(t, app.migrated)
	assert.False(t, app.ran)
	assert.True(t, app.closed)
}

func TestMigrateCommand(t *testing.T) {
	app := &fakeApp{}
	withFakeApp(t, app)

	out, err := execute(t, "migrate")
	require.NoError(t, err)
	assert.True(t, app.migrated)
	assert.True(t, app.closed)
	assert.Contains(t, out, "schema up to date")
}

func TestSweepCommand(t *testing.T) {
	app := &fakeApp{swept: 3}
	withFakeApp(t, app)

	out, err := execute(t, "sweep-carts")
	require.NoError(t, err)
	assert.True(t, app.closed)
	assert.Contains(t, out, "removed 3 expired temp carts")
}

func TestInvalidConfigFailsBeforeBuild(t *testing.T) {
	app := &fakeApp{}
	withFakeApp(t, app)
	t.Setenv("SITEREPORT_ANALYSIS_API_KEY", "")

	_, err := execute(t, "serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "analysis.api_key")
	assert.False(t, app.ran)
}
