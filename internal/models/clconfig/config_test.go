package clconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestCreateExampleConfig(t *testing.T) {
	tempFile := filepath.Join(t.TempDir(), "example.yaml")

	name, err := CreateExampleConfig(tempFile)
	require.NoError(t, err)
	assert.Equal(t, tempFile, name)

	data, err := os.ReadFile(tempFile)
	require.NoError(t, err)

	var config Config
	require.NoError(t, yaml.Unmarshal(data, &config))
	assert.Equal(t, "admin", config.User.Login)
	assert.Equal(t, "sqlite", config.Database.Db)
	assert.Equal(t, 5*time.Minute, config.Tracking.ActiveWindow)
	assert.Equal(t, "@every 1m", config.Alerts.Schedule)
	assert.Contains(t, config.Alerts.Webhooks, "ops")
}

func TestLoadConfig(t *testing.T) {
	tempFile := filepath.Join(t.TempDir(), "load.yaml")
	content := `
database:
  db: sqlite
  path: test.db
user:
  login: testadmin
tracking:
  active_window: 10m
  vpn_threshold: 60
  social_domains: [nextdoor, mastodon]
alerts:
  schedule: "@every 30s"
  webhooks:
    ops: http://localhost/hook
competitors:
  reload_cron: "@every 15s"
`
	require.NoError(t, os.WriteFile(tempFile, []byte(content), 0644))

	loaded, err := LoadConfig(tempFile)
	require.NoError(t, err)
	assert.Equal(t, "testadmin", loaded.User.Login)
	assert.Equal(t, 10*time.Minute, loaded.Tracking.ActiveWindow)
	assert.Equal(t, 24*time.Hour, loaded.Tracking.DefaultWindow)
	assert.Equal(t, 60, loaded.Tracking.VpnThreshold)
	assert.Equal(t, 75, loaded.Tracking.ProxyThreshold)
	assert.Equal(t, []string{"nextdoor", "mastodon"}, loaded.Tracking.SocialDomains)
	assert.Equal(t, "@every 30s", loaded.Alerts.Schedule)
	assert.Equal(t, "http://localhost/hook", loaded.Alerts.Webhooks["ops"])
	assert.Equal(t, "@every 15s", loaded.Competitors.ReloadCron)

	_, err = LoadConfig("nonexistent.yaml")
	assert.Error(t, err)
}

func TestLoadConfigRejectsUnknownDatabase(t *testing.T) {
	tempFile := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(tempFile, []byte("database:\n  db: postgres\n"), 0644))

	_, err := LoadConfig(tempFile)
	assert.Error(t, err)
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	c := &Config{Tracking: TrackingConfig{RetentionDays: 7, RateLimit: "10-S"}}
	c.ApplyDefaults()

	assert.Equal(t, 7, c.Tracking.RetentionDays)
	assert.Equal(t, "10-S", c.Tracking.RateLimit)
	assert.Equal(t, 500*time.Millisecond, c.Tracking.LookupTimeout)
	assert.Equal(t, uint32(5), c.Geoip.BreakerFailures)
	assert.Equal(t, "haultrack:alerts", c.Alerts.RedisChannel)
	assert.Equal(t, "@every 1m", c.Competitors.ReloadCron)
}

func TestLoadConfigRequiresDatabaseLocation(t *testing.T) {
	tempFile := filepath.Join(t.TempDir(), "nodsn.yaml")
	require.NoError(t, os.WriteFile(tempFile, []byte("database:\n  db: mysql\n"), 0644))

	_, err := LoadConfig(tempFile)
	assert.Error(t, err)
}

func TestHashPassword(t *testing.T) {
	tempFile := filepath.Join(t.TempDir(), "pass.yaml")

	short := &Config{User: UserConfig{Login: "admin", Pass: "short"}}
	assert.Error(t, HashPassword(tempFile, short))

	assert.Error(t, HashPassword(tempFile, &Config{User: UserConfig{Login: "admin"}}))

	conf := &Config{
		Database: DatabaseConfig{Db: "sqlite", Path: "test.db"},
		User:     UserConfig{Login: "admin", Pass: "admin1234"},
	}
	require.NoError(t, HashPassword(tempFile, conf))
	assert.Empty(t, conf.User.Pass)
	assert.NotEmpty(t, conf.User.Hash)

	loaded, err := LoadConfig(tempFile)
	require.NoError(t, err)
	assert.Empty(t, loaded.User.Pass)
	assert.Equal(t, conf.User.Hash, loaded.User.Hash)

	// déjà hashé : rien à faire
	require.NoError(t, HashPassword(tempFile, loaded))
	assert.Equal(t, conf.User.Hash, loaded.User.Hash)
}
