package router

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	rtsup "promobot/internal/runtime/supervisor"
	kit "promobot/internal/transport"
	logx "promobot/pkg/logx"
)

const (
	defaultWorkers    = 2
	defaultQueue      = 64
	defaultCmdTimeout = 60 * time.Second

	replyForbidden = "⛔ Tiada kebenaran."
	replyBusy      = "⏳ Bot sibuk, cuba lagi sebentar."
)

// Dispatcher reads chat updates, resolves commands through the Router and
// runs them on a small worker pool, replying in the originating chat.
type Dispatcher struct {
	router *Router
	sender kit.Sender
	log    logx.Logger
	// self is this bot's username; commands addressed to other bots are ignored.
	self string

	ownersMu sync.RWMutex
	owners   []int64

	workers int
	jobs    chan func()
}

func NewDispatcher(r *Router, sender kit.Sender, owners []int64, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	var self string
	if id, ok := sender.(kit.BotIdentity); ok {
		self = id.BotUsername()
	}
	return &Dispatcher{
		router:  r,
		sender:  sender,
		self:    self,
		log:     log.With(logx.String("comp", "dispatch")),
		owners:  slices.Clone(owners),
		workers: defaultWorkers,
		jobs:    make(chan func(), defaultQueue),
	}
}

// SetOwners replaces the owner list. Safe during hot reload.
func (d *Dispatcher) SetOwners(owners []int64) {
	d.ownersMu.Lock()
	d.owners = slices.Clone(owners)
	d.ownersMu.Unlock()
}

func (d *Dispatcher) allowed(cmd Command, from int64) bool {
	if cmd.Access != AccessOwnerOnly {
		return true
	}
	d.ownersMu.RLock()
	defer d.ownersMu.RUnlock()
	return len(d.owners) == 0 || slices.Contains(d.owners, from)
}

// MenuCommands lists the primary command names for the chat client menu.
func (d *Dispatcher) MenuCommands() []kit.BotCommand {
	cmds := d.router.Commands()
	out := make([]kit.BotCommand, 0, len(cmds))
	for _, c := range cmds {
		name := c.Name
		// The menu shows the historical name where one exists.
		if name == "setup" {
			name = "setup_post"
		}
		out = append(out, kit.BotCommand{Command: name, Description: c.Description})
	}
	return out
}

// Run blocks until ctx ends or updates is closed.
func (d *Dispatcher) Run(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.New(ctx,
		rtsup.WithLogger(d.log),
		rtsup.WithCancelOnError(false),
	)

	jobs := d.jobs
	for i := 0; i < d.workers; i++ {
		sup.GoRestart(fmt.Sprintf("worker.%d", i), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case fn, ok := <-jobs:
					if !ok {
						return nil
					}
					fn()
				}
			}
		}, rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second))
	}

	if up, ok := d.sender.(kit.CommandMenuUpdater); ok {
		menu := d.MenuCommands()
		sup.Go("menu.update", func(c context.Context) error {
			cctx, cancel := context.WithTimeout(c, 10*time.Second)
			defer cancel()
			if err := up.UpdateMenuCommands(cctx, menu); err != nil {
				d.log.Warn("menu update failed", logx.Err(err))
			}
			return nil
		})
	}

	d.log.Info("command dispatcher started", logx.Int("workers", d.workers))
	defer func() {
		close(jobs)
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = sup.Wait(wctx)
		sup.Cancel()
		d.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			d.route(ctx, up)
		}
	}
}

func (d *Dispatcher) route(ctx context.Context, up kit.Update) {
	if up.Kind != kit.UpdateMessage || up.Message == nil {
		return
	}
	msg := up.Message
	name, bot, args, ok := parseCommand(msg.Text)
	if !ok || !addressedTo(bot, d.self) {
		return
	}
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}

	cmd, found := d.router.Lookup(name)
	if !found {
		d.reply(ctx, chat, replyUnknown)
		return
	}
	rid := newReqID()
	req := &Request{
		Chat:   chat,
		FromID: msg.FromID,
		Cmd:    cmd,
		Args:   args,
		ReqID:  rid,
		Logger: d.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", cmd.Name),
		),
	}
	final := Chain(d.handler,
		recoverPanic(d.reply),
		logRequest,
		requireAccess(d.allowed, d.reply),
		withDeadline(defaultCmdTimeout),
	)

	select {
	case d.jobs <- func() { _ = final(ctx, req) }:
	default:
		d.reply(ctx, chat, replyBusy)
	}
}

func (d *Dispatcher) handler(ctx context.Context, req *Request) error {
	if req.Cmd.Progress != "" {
		d.reply(ctx, req.Chat, req.Cmd.Progress)
	}
	text, err := req.Cmd.Run(ctx, req.Args)
	if text != "" {
		// The reply must go out even if the command used up its deadline.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		d.reply(rctx, req.Chat, text)
		cancel()
	}
	return err
}

func (d *Dispatcher) reply(ctx context.Context, chat kit.ChatTarget, text string) {
	if _, err := d.sender.SendText(ctx, chat, text, &kit.SendOptions{DisablePreview: true}); err != nil {
		d.log.Warn("reply failed", logx.Int64("chat_id", chat.ChatID), logx.Err(err))
	}
}
