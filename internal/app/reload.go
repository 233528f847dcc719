package app

import (
	"context"
	"os"
	"strings"

	"promobot/internal/config"
	logx "promobot/pkg/logx"
)

// startConfigReload watches the config file and applies the hot-reloadable
// sections: logging, broadcast pacing and the owner list.
func (a *App) startConfigReload() {
	if a.cfgm == nil {
		return
	}
	if _, err := os.Stat(a.cfgm.Path()); err != nil {
		a.log.Debug("config file not present; hot reload disabled", logx.String("path", a.cfgm.Path()))
		return
	}
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error { return cfg.Validate() })
	a.cfgm.Commit(a.cfg)

	sub := a.cfgm.Subscribe(4)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfg
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(last, next)
				last = next
			}
		}
	})
	a.sup.Go("config.watch", a.cfgm.Watch)
}

func (a *App) applyConfig(prev, next *config.Config) {
	sections, attrs, restart := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	a.log.Info("config changed", append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)...)
	if len(restart) > 0 {
		a.log.Warn("config sections changed that need a restart", logx.String("sections", strings.Join(restart, ",")))
	}

	a.logs.Apply(next.LogConfig())
	a.bc.Apply(next.BroadcastConfig())
	a.disp.SetOwners(next.Telegram.OwnerUserIDs)
}
