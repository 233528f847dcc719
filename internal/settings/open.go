package settings

import (
	"errors"
	"strings"

	logx "promobot/pkg/logx"
)

// DefaultPath is where the file driver keeps settings when no path is configured.
const DefaultPath = "./config.json"

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown settings driver: " + driver)
	}
}
