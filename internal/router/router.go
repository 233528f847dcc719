// Package router maps bot commands to scheduler, settings and broadcast
// operations and produces the text reply.
package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"promobot/internal/broadcast"
	"promobot/internal/scheduler"
	"promobot/internal/settings"
	logx "promobot/pkg/logx"
)

var (
	// ErrInvalidArgument is the scheduler's sentinel so one errors.Is covers both layers.
	ErrInvalidArgument = scheduler.ErrInvalidArgument
	ErrAlreadyArmed    = scheduler.ErrAlreadyArmed
	ErrUnknownCommand  = errors.New("unknown command")
)

// MaxIntervalHours caps set_interval at one year.
const MaxIntervalHours = 8760

// ArgError describes a rejected command argument. It matches ErrInvalidArgument.
type ArgError struct {
	Command string
	Reason  string
}

func (e *ArgError) Error() string { return e.Command + ": " + e.Reason }

func (e *ArgError) Unwrap() error { return ErrInvalidArgument }

type SettingsStore interface {
	Load(ctx context.Context) settings.Settings
	Save(ctx context.Context, s settings.Settings) error
}

type Job interface {
	Start(period time.Duration) error
	Reschedule(period time.Duration) error
	Snapshot() scheduler.Snapshot
}

type Poster interface {
	BroadcastAll(ctx context.Context) broadcast.Report
}

// Access controls who may run a command when owners are configured.
type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

// Command is one entry of the dispatch table.
type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Access      Access
	// Progress, when set, is sent before Run starts.
	Progress string
	Timeout  time.Duration
	Run      func(ctx context.Context, args []string) (string, error)
}

type Router struct {
	store  SettingsStore
	job    Job
	poster Poster
	log    logx.Logger
	now    func() time.Time

	cmds  []Command
	index map[string]*Command
}

func New(store SettingsStore, job Job, poster Poster, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Router{store: store, job: job, poster: poster, log: log.With(logx.String("comp", "router")), now: time.Now}
	r.cmds = r.table()
	r.index = make(map[string]*Command, len(r.cmds)*2)
	for i := range r.cmds {
		c := &r.cmds[i]
		r.index[c.Name] = c
		for _, a := range c.Aliases {
			r.index[a] = c
		}
	}
	return r
}

// Commands returns the dispatch table in help order.
func (r *Router) Commands() []Command { return append([]Command(nil), r.cmds...) }

// Lookup resolves a command name or alias.
func (r *Router) Lookup(name string) (Command, bool) {
	c, ok := r.index[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Command{}, false
	}
	return *c, true
}

// Handle runs the named command. The returned text is the reply for the
// caller and is set on error as well.
func (r *Router) Handle(ctx context.Context, name string, args []string) (string, error) {
	c, ok := r.Lookup(name)
	if !ok {
		return replyUnknown, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	return c.Run(ctx, args)
}
