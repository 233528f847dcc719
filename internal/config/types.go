package config

// Config is the process configuration file. Durations are Go duration strings.
type Config struct {
	Telegram      TelegramConfig      `json:"telegram"`
	Logging       LoggingConfig       `json:"logging"`
	Settings      SettingsConfig      `json:"settings"`
	Catalog       CatalogConfig       `json:"catalog"`
	Broadcast     BroadcastConfig     `json:"broadcast"`
	Observability ObservabilityConfig `json:"observability"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// Channel is the destination chat: "@channelname" or a numeric chat id.
	Channel string `json:"channel"`
	// OwnerUserIDs restricts post/setup/set_interval when non-empty.
	OwnerUserIDs []int64 `json:"owner_user_ids,omitempty"`
	PollTimeout  string  `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SettingsConfig selects where the interval record lives.
//
// Example:
//
//	"settings": { "driver": "sqlite", "path": "./promobot.db", "busy_timeout": "5s" }
type SettingsConfig struct {
	Driver      string `json:"driver,omitempty"` // file (default) | sqlite
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// CatalogConfig points at an optional YAML/JSON catalog file. Empty uses the built-in list.
type CatalogConfig struct {
	Path string `json:"path,omitempty"`
}

type BroadcastConfig struct {
	RatePerSec  float64 `json:"rate_per_sec,omitempty"`
	SendTimeout string  `json:"send_timeout,omitempty"`
}

// ObservabilityConfig controls the metrics/health/pprof HTTP server.
// A non-loopback addr needs a token or allow_insecure.
type ObservabilityConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`
	ReadTimeout   string `json:"read_timeout,omitempty"`
	WriteTimeout  string `json:"write_timeout,omitempty"`
}

// Default mirrors the bot's historical behavior: console plus ./log.txt,
// settings in ./config.json.
func Default() *Config {
	return &Config{
		Telegram: TelegramConfig{PollTimeout: "10s"},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			File:    LoggingFile{Enabled: true, Path: "./log.txt"},
		},
		Settings:  SettingsConfig{Driver: "file", Path: "./config.json"},
		Broadcast: BroadcastConfig{RatePerSec: 1, SendTimeout: "15s"},
		Observability: ObservabilityConfig{
			Addr: "127.0.0.1:9464",
		},
	}
}
