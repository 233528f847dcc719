package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promobot/internal/broadcast"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestParseJSONKeepsDefaults(t *testing.T) {
	p := writeFile(t, t.TempDir(), "bot.json", `{
		"telegram": {"token": "123:abc", "channel": "@kedai"},
		"broadcast": {"rate_per_sec": 2}
	}`)

	cfg, err := NewConfigManager(p).Parse()
	require.NoError(t, err)
	assert.Equal(t, "@kedai", cfg.Telegram.Channel)
	assert.Equal(t, "10s", cfg.Telegram.PollTimeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "./log.txt", cfg.Logging.File.Path)
	assert.Equal(t, "./config.json", cfg.Settings.Path)
	assert.Equal(t, 2.0, cfg.Broadcast.RatePerSec)
	assert.Equal(t, "15s", cfg.Broadcast.SendTimeout)
	require.NoError(t, cfg.Validate())
}

func TestParseYAML(t *testing.T) {
	p := writeFile(t, t.TempDir(), "bot.yaml", `
telegram:
  token: "123:abc"
  channel: "-1001234567890"
  owner_user_ids: [42, 43]
settings:
  driver: sqlite
  path: ./promobot.db
  busy_timeout: 3s
observability:
  enabled: true
  pprof: true
`)
	cfg, err := NewConfigManager(p).Parse()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, []int64{42, 43}, cfg.Telegram.OwnerUserIDs)
	assert.Equal(t, 3*time.Second, cfg.SettingsStoreConfig().BusyTimeout)
	assert.Equal(t, "sqlite", cfg.SettingsStoreConfig().Driver)
	obs := cfg.ObservabilityConfig()
	assert.True(t, obs.Enabled)
	assert.True(t, obs.Pprof)
	assert.Equal(t, "127.0.0.1:9464", obs.Addr)
}

func TestParseRejectsUnknownFieldsAndTrailingData(t *testing.T) {
	dir := t.TempDir()
	_, err := NewConfigManager(writeFile(t, dir, "a.json", `{"telegram":{"tokn":"x"}}`)).Parse()
	require.Error(t, err)

	_, err = NewConfigManager(writeFile(t, dir, "b.json", `{} {}`)).Parse()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trailing data")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram.token is required")
	assert.Contains(t, err.Error(), "telegram.channel")

	cfg.Telegram.Token = "123:abc"
	cfg.Telegram.Channel = "@kedai"
	require.NoError(t, cfg.Validate())

	bad := *cfg
	bad.Broadcast.SendTimeout = "soon"
	assert.ErrorContains(t, bad.Validate(), "broadcast.send_timeout")

	bad = *cfg
	bad.Logging.Level = "loud"
	assert.ErrorContains(t, bad.Validate(), "logging.level")

	bad = *cfg
	bad.Settings.Driver = "redis"
	assert.ErrorContains(t, bad.Validate(), "settings.driver")

	bad = *cfg
	bad.Broadcast.RatePerSec = -1
	assert.ErrorContains(t, bad.Validate(), "rate_per_sec")
}

func TestBroadcastConfigDefaults(t *testing.T) {
	cfg := Default()
	cfg.Broadcast.SendTimeout = ""
	assert.Equal(t, broadcast.DefaultSendTimeout, cfg.BroadcastConfig().SendTimeout)
	cfg.Broadcast.SendTimeout = "3s"
	assert.Equal(t, 3*time.Second, cfg.BroadcastConfig().SendTimeout)
}

func TestSummarizeConfigChange(t *testing.T) {
	a := Default()
	a.Telegram.Token = "secret-token"
	b := *a
	b.Logging.Level = "debug"
	b.Observability.Enabled = true

	changed, attrs, restart := SummarizeConfigChange(a, &b)
	assert.Equal(t, []string{"logging", "observability"}, changed)
	assert.Equal(t, []string{"observability"}, restart)
	assert.NotEmpty(t, attrs)

	changed, _, _ = SummarizeConfigChange(a, a)
	assert.Empty(t, changed)
}

func TestSubscribeKeepsNewest(t *testing.T) {
	m := NewConfigManager("unused.json")
	ch := m.Subscribe(1)
	first, second := Default(), Default()
	second.Logging.Level = "debug"
	m.publish(first)
	m.publish(second)
	assert.Same(t, second, <-ch)
	m.Unsubscribe(ch)
	_, ok := <-ch
	assert.False(t, ok)
}

func TestWatchPublishesValidatedReload(t *testing.T) {
	dir := t.TempDir()
	body := `{"telegram":{"token":"1:a","channel":"@kedai"},"logging":{"level":"%s","console":true}}`
	p := writeFile(t, dir, "bot.json", fmt.Sprintf(body, "info"))

	m := NewConfigManager(p)
	_, err := m.Load()
	require.NoError(t, err)
	m.SetValidator(func(_ context.Context, c *Config) error { return c.Validate() })
	ch := m.Subscribe(4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = m.Watch(ctx)
		close(done)
	}()

	// Give the watcher a moment to register the directory.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(p, []byte(fmt.Sprintf(body, "debug")), 0o600))

	select {
	case cfg := <-ch:
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, "debug", m.Get().Logging.Level)
	case <-time.After(5 * time.Second):
		t.Fatal("reload was not published")
	}

	cancel()
	<-done
}

func TestReloadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "bot.json", `{"telegram":{"token":"1:a","channel":"@kedai"}}`)
	m := NewConfigManager(p)
	_, err := m.Load()
	require.NoError(t, err)
	m.SetValidator(func(_ context.Context, c *Config) error { return c.Validate() })

	require.NoError(t, os.WriteFile(p, []byte(`{"telegram":{"token":"","channel":"@kedai"}}`), 0o600))
	assert.False(t, m.Reload(context.Background()))
	assert.Equal(t, "1:a", m.Get().Telegram.Token)

	require.NoError(t, os.WriteFile(p, []byte(`{"telegram":{"token":"1:a","channel":"@kedai"}}`), 0o600))
	assert.False(t, m.Reload(context.Background()), "unchanged content is not republished")
}

func TestDurationField(t *testing.T) {
	d, err := duration("x", "", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, d)

	d, err = duration("x", " 2m ", 0)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, d)

	_, err = duration("broadcast.send_timeout", "-1s", 0)
	require.ErrorContains(t, err, "broadcast.send_timeout")
	_, err = duration("x", "soon", 0)
	require.Error(t, err)
}

func TestParseEmptyYAMLUsesDefaults(t *testing.T) {
	cfg, err := parseBytes("bot.yml", []byte("# nothing yet\n"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestOverrideSurvivesReload(t *testing.T) {
	p := writeFile(t, t.TempDir(), "bot.yaml", "logging:\n  level: info\n")
	m := NewConfigManager(p)
	m.SetOverride(func(c *Config) {
		c.Telegram.Token = "123:abc"
		c.Telegram.Channel = "@shop"
	})
	m.SetValidator(func(_ context.Context, c *Config) error { return c.Validate() })
	cfg, err := m.Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	sub := m.Subscribe(1)

	writeFile(t, filepath.Dir(p), "bot.yaml", "logging:\n  level: debug\n")
	require.True(t, m.Reload(context.Background()))

	next := <-sub
	assert.Equal(t, "debug", next.Logging.Level)
	assert.Equal(t, "123:abc", next.Telegram.Token)
	changed, _, restart := SummarizeConfigChange(cfg, next)
	assert.Equal(t, []string{"logging"}, changed)
	assert.Empty(t, restart)
}
