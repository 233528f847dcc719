package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/jessevdk/go-flags"

	"promobot/internal/app"
	"promobot/internal/config"
)

// Opts with all CLI options. Flags override the config file.
type Opts struct {
	Config   string `short:"c" long:"config" env:"BOT_CONFIG" default:"./promobot.yaml" description:"path to process config (yaml or json)"`
	Token    string `long:"token" env:"TELEGRAM_BOT_TOKEN" description:"telegram bot token"`
	Channel  string `long:"channel" env:"CHANNEL_ID" description:"destination channel (@name or numeric id)"`
	Settings string `long:"settings" env:"BOT_SETTINGS" description:"path to persisted interval settings"`
	Dbg      bool   `long:"dbg" env:"DEBUG" description:"debug logging"`
	Version  bool   `long:"version" description:"show version and exit"`
}

var revision = "unknown"

func main() {
	var opts Opts
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
	if opts.Version {
		fmt.Printf("promobot %s\n", revision)
		os.Exit(0)
	}

	cfgm, cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(cfgm, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		_ = a.Stop(context.Background())
		os.Exit(1)
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	go watchdog(ctx)

	select {
	case <-ctx.Done():
	case <-a.Done():
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	stopErr := a.Stop(stopCtx)
	if err := a.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
	if stopErr != nil {
		fmt.Fprintln(os.Stderr, "stop:", stopErr)
		os.Exit(1)
	}
}

// loadConfig reads the config file when present. Without one the process
// runs on defaults plus flags and hot reload is off. Flags are re-applied on
// every reload so env-only values survive it.
func loadConfig(opts Opts) (*config.ConfigManager, *config.Config, error) {
	cfgm := config.NewConfigManager(opts.Config)
	cfgm.SetOverride(opts.apply)
	cfg, err := cfgm.Load()
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist):
		cfg, cfgm = config.Default(), nil
		opts.apply(cfg)
	default:
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("config %s: %w", opts.Config, err)
	}
	return cfgm, cfg, nil
}

// apply copies the non-empty flag values over cfg.
func (o Opts) apply(cfg *config.Config) {
	if o.Token != "" {
		cfg.Telegram.Token = o.Token
	}
	if o.Channel != "" {
		cfg.Telegram.Channel = o.Channel
	}
	if o.Settings != "" {
		cfg.Settings.Path = o.Settings
	}
	if o.Dbg {
		cfg.Logging.Level = "debug"
	}
}

// watchdog pings systemd at half the configured WatchdogSec.
func watchdog(ctx context.Context) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	t := time.NewTicker(interval / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
		}
	}
}
