package config

import (
	"errors"
	"fmt"
	"strings"

	"promobot/internal/broadcast"
	"promobot/internal/observability"
	"promobot/internal/settings"
	"promobot/internal/transport"
	"promobot/internal/transport/telegram/adapter"
	logx "promobot/pkg/logx"
)

// Validate checks required fields and every duration string.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if strings.TrimSpace(c.Telegram.Token) == "" {
		errs = append(errs, errors.New("telegram.token is required"))
	}
	if _, err := transport.ParseChatTarget(c.Telegram.Channel); err != nil {
		errs = append(errs, fmt.Errorf("telegram.channel: %w", err))
	}
	if _, err := duration("telegram.poll_timeout", c.Telegram.PollTimeout, 0); err != nil {
		errs = append(errs, err)
	}
	if lvl := strings.TrimSpace(c.Logging.Level); lvl != "" && !logx.ValidLevel(lvl) {
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", c.Logging.Level))
	}
	switch strings.ToLower(strings.TrimSpace(c.Settings.Driver)) {
	case "", "file", "sqlite", "sqlite3":
	default:
		errs = append(errs, fmt.Errorf("settings.driver: unknown driver %q", c.Settings.Driver))
	}
	if _, err := duration("settings.busy_timeout", c.Settings.BusyTimeout, 0); err != nil {
		errs = append(errs, err)
	}
	if c.Broadcast.RatePerSec < 0 {
		errs = append(errs, errors.New("broadcast.rate_per_sec must be >= 0"))
	}
	if _, err := duration("broadcast.send_timeout", c.Broadcast.SendTimeout, 0); err != nil {
		errs = append(errs, err)
	}
	if _, err := duration("observability.read_timeout", c.Observability.ReadTimeout, 0); err != nil {
		errs = append(errs, err)
	}
	if _, err := duration("observability.write_timeout", c.Observability.WriteTimeout, 0); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// The converters below assume Validate passed; bad durations fall back to defaults.

func (c *Config) LogConfig() logx.Config {
	return logx.Config{
		Level:   c.Logging.Level,
		Console: c.Logging.Console,
		File:    logx.FileConfig{Enabled: c.Logging.File.Enabled, Path: c.Logging.File.Path},
	}
}

func (c *Config) SettingsStoreConfig() settings.Config {
	bt, _ := duration("settings.busy_timeout", c.Settings.BusyTimeout, 0)
	return settings.Config{Driver: c.Settings.Driver, Path: c.Settings.Path, BusyTimeout: bt}
}

func (c *Config) BroadcastConfig() broadcast.Config {
	st, _ := duration("broadcast.send_timeout", c.Broadcast.SendTimeout, broadcast.DefaultSendTimeout)
	return broadcast.Config{RatePerSec: c.Broadcast.RatePerSec, SendTimeout: st}
}

func (c *Config) ObservabilityConfig() observability.Config {
	rt, _ := duration("observability.read_timeout", c.Observability.ReadTimeout, 0)
	wt, _ := duration("observability.write_timeout", c.Observability.WriteTimeout, 0)
	return observability.Config{
		Enabled:       c.Observability.Enabled,
		Addr:          c.Observability.Addr,
		Token:         c.Observability.Token,
		AllowInsecure: c.Observability.AllowInsecure,
		Pprof:         c.Observability.Pprof,
		ReadTimeout:   rt,
		WriteTimeout:  wt,
	}
}

func (c *Config) AdapterConfig() adapter.Config {
	pt, _ := duration("telegram.poll_timeout", c.Telegram.PollTimeout, 0)
	return adapter.Config{Token: c.Telegram.Token, PollTimeout: pt}
}
