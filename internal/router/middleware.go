package router

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	kit "promobot/internal/transport"
	logx "promobot/pkg/logx"
)

// slowRequest promotes successful request logs from debug to info.
const slowRequest = 750 * time.Millisecond

var errForbidden = errors.New("forbidden")

// Request is one inbound command as it passes through the chain.
type Request struct {
	Chat   kit.ChatTarget
	FromID int64
	Cmd    Command
	Args   []string
	ReqID  string
	Logger logx.Logger
}

type HandlerFunc func(ctx context.Context, req *Request) error

type Middleware func(next HandlerFunc) HandlerFunc

// Chain wraps h so that m[0] runs first.
func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

// recoverPanic turns a panicking command into an error and the generic
// internal-error reply.
func recoverPanic(reply func(context.Context, kit.ChatTarget, string)) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				if r := recover(); r != nil {
					req.Logger.Error("command panicked", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
					err = fmt.Errorf("panic: %v", r)
					reply(context.WithoutCancel(ctx), req.Chat, replyInternalError)
				}
			}()
			return next(ctx, req)
		}
	}
}

func logRequest(next HandlerFunc) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		start := time.Now()
		err := next(ctx, req)
		took := logx.Duration("took", time.Since(start))
		switch {
		case errors.Is(err, errForbidden):
			req.Logger.Warn("command refused", took)
		case err != nil:
			req.Logger.Warn("command failed", took, logx.Err(err))
		case time.Since(start) >= slowRequest:
			req.Logger.Info("command ok", took)
		default:
			req.Logger.Debug("command ok", took)
		}
		return err
	}
}

// requireAccess stops owner-only commands from anyone the allow func rejects.
func requireAccess(allow func(Command, int64) bool, reply func(context.Context, kit.ChatTarget, string)) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			if !allow(req.Cmd, req.FromID) {
				reply(ctx, req.Chat, replyForbidden)
				return errForbidden
			}
			return next(ctx, req)
		}
	}
}

// withDeadline bounds the command by its own timeout or def.
func withDeadline(def time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			d := req.Cmd.Timeout
			if d <= 0 {
				d = def
			}
			cctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(cctx, req)
		}
	}
}
