package config

import (
	"slices"
	"strings"

	logx "promobot/pkg/logx"
)

// SummarizeConfigChange lists changed sections, safe log fields (never
// tokens), and the changed sections that only take effect after a restart.
func SummarizeConfigChange(oldCfg, newCfg *Config) (changed []string, attrs []logx.Field, restart []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	if oldCfg.Telegram.Token != newCfg.Telegram.Token ||
		strings.TrimSpace(oldCfg.Telegram.Channel) != strings.TrimSpace(newCfg.Telegram.Channel) ||
		strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) {
		changed = append(changed, "telegram")
		restart = append(restart, "telegram")
		attrs = append(attrs,
			logx.String("telegram.channel", newCfg.Telegram.Channel),
			logx.String("telegram.poll_timeout", newCfg.Telegram.PollTimeout),
		)
	}
	if !slices.Equal(oldCfg.Telegram.OwnerUserIDs, newCfg.Telegram.OwnerUserIDs) {
		changed = append(changed, "telegram.owners")
		attrs = append(attrs, logx.Int("telegram.owner_count", len(newCfg.Telegram.OwnerUserIDs)))
	}
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}
	if oldCfg.Settings != newCfg.Settings {
		changed = append(changed, "settings")
		restart = append(restart, "settings")
		attrs = append(attrs, logx.String("settings.driver", newCfg.Settings.Driver), logx.String("settings.path", newCfg.Settings.Path))
	}
	if oldCfg.Catalog != newCfg.Catalog {
		changed = append(changed, "catalog")
		restart = append(restart, "catalog")
		attrs = append(attrs, logx.String("catalog.path", newCfg.Catalog.Path))
	}
	if oldCfg.Broadcast != newCfg.Broadcast {
		changed = append(changed, "broadcast")
		attrs = append(attrs,
			logx.Any("broadcast.rate_per_sec", newCfg.Broadcast.RatePerSec),
			logx.String("broadcast.send_timeout", newCfg.Broadcast.SendTimeout),
		)
	}
	if oldCfg.Observability != newCfg.Observability {
		changed = append(changed, "observability")
		restart = append(restart, "observability")
		attrs = append(attrs,
			logx.Bool("observability.enabled", newCfg.Observability.Enabled),
			logx.String("observability.addr", newCfg.Observability.Addr),
			logx.Bool("observability.token_set", newCfg.Observability.Token != ""),
		)
	}
	return changed, attrs, restart
}
