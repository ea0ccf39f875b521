package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Server:   ServerConfig{Host: "0.0.0.0", Port: 8080},
		Database: DatabaseConfig{Path: "data/approval.db"},
		Logger:   LoggerConfig{Level: "info", Format: "json"},
		Metrics:  MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "data/approval.db", cfg.Database.Path)
	assert.Equal(t, "json", cfg.Logger.Format)
	assert.False(t, cfg.Dispatcher.Async)
	assert.False(t, cfg.Lark.Enabled)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
  read_timeout: 5s
database:
  path: /var/lib/approval/app.db
dispatcher:
  async: true
lark:
  enabled: true
  app_id: cli_from_file
`), 0o644))

	t.Setenv("LARK_APP_SECRET", "secret-from-env")
	t.Setenv("APPROVAL_SERVER_PORT", "9191")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "/var/lib/approval/app.db", cfg.Database.Path)
	assert.True(t, cfg.Dispatcher.Async)
	assert.Equal(t, "cli_from_file", cfg.Lark.AppID)
	assert.Equal(t, "secret-from-env", cfg.Lark.AppSecret)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("DATABASE_PATH=from-dotenv.db\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("DATABASE_PATH") })

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "from-dotenv.db", cfg.Database.Path)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := Load("does-not-exist.yaml")

	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"port zero", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"empty database path", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"negative pool", func(c *Config) { c.Database.MaxOpenConns = -1 }, "pool sizes"},
		{"unknown log format", func(c *Config) { c.Logger.Format = "xml" }, "logger.format"},
		{"lark without app id", func(c *Config) { c.Lark = LarkConfig{Enabled: true, AppSecret: "s"} }, "lark.app_id"},
		{"lark without secret", func(c *Config) { c.Lark = LarkConfig{Enabled: true, AppID: "a"} }, "lark.app_secret"},
		{"lark disabled without credentials", func(c *Config) { c.Lark = LarkConfig{} }, ""},
		{"relative metrics path", func(c *Config) { c.Metrics.Path = "metrics" }, "metrics.path"},
		{"metrics disabled ignores path", func(c *Config) { c.Metrics = MetricsConfig{} }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
