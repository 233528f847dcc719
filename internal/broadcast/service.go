// Package broadcast delivers the catalog to the destination chat, one
// message per item, in catalog order.
package broadcast

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"promobot/internal/catalog"
	kit "promobot/internal/transport"
	logx "promobot/pkg/logx"
)

type Broadcaster struct {
	sender  kit.Sender
	target  kit.ChatTarget
	catalog *catalog.Catalog
	log     logx.Logger
	metrics Metrics

	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	// pass is a one-slot semaphore; passes never interleave in the channel.
	pass chan struct{}
}

func New(cfg Config, sender kit.Sender, target kit.ChatTarget, cat *catalog.Catalog, log logx.Logger, metrics Metrics) *Broadcaster {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()
	return &Broadcaster{
		sender:  sender,
		target:  target,
		catalog: cat,
		log:     log,
		metrics: metrics,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1),
		pass:    make(chan struct{}, 1),
	}
}

// Apply swaps pacing and timeouts. A pass in progress keeps the limiter it started with.
func (b *Broadcaster) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	b.mu.Lock()
	defer b.mu.Unlock()
	if cfg.RatePerSec != b.cfg.RatePerSec {
		b.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
	}
	b.cfg = cfg
	b.log.Debug("broadcast config applied", logx.Any("rate_per_sec", cfg.RatePerSec), logx.Duration("send_timeout", cfg.SendTimeout))
}

func (b *Broadcaster) Target() kit.ChatTarget { return b.target }

// BroadcastAll runs one pass. It waits for a pass already in progress and
// returns a report with every item failed if ctx ends before its turn.
func (b *Broadcaster) BroadcastAll(ctx context.Context) Report {
	items := b.catalog.Items()
	rep := Report{ID: uuid.NewString(), Started: time.Now(), Outcomes: make([]Outcome, 0, len(items))}
	log := b.log.With(logx.String("pass", rep.ID))

	select {
	case b.pass <- struct{}{}:
	case <-ctx.Done():
		for i, it := range items {
			rep.Outcomes = append(rep.Outcomes, Outcome{Item: it, Err: &DeliveryError{Index: i, Item: it, Err: ctx.Err()}})
		}
		log.Warn("broadcast pass abandoned before start", logx.Err(ctx.Err()))
		return rep
	}
	defer func() { <-b.pass }()

	b.mu.Lock()
	cfg, limiter := b.cfg, b.limiter
	b.mu.Unlock()

	log.Info("broadcast pass started", logx.Int("items", len(items)), logx.String("target", b.target.String()))
	for i, it := range items {
		rep.Outcomes = append(rep.Outcomes, b.deliver(ctx, log, cfg, limiter, i, it))
	}
	rep.Duration = time.Since(rep.Started)

	fields := []logx.Field{logx.Int("sent", rep.Sent()), logx.Int("failed", rep.Failed()), logx.Duration("took", rep.Duration)}
	if rep.Failed() > 0 {
		log.Warn("broadcast pass finished with failures", fields...)
	} else {
		log.Info("broadcast pass finished", fields...)
	}
	return rep
}

func (b *Broadcaster) deliver(ctx context.Context, log logx.Logger, cfg Config, limiter *rate.Limiter, idx int, it catalog.Item) Outcome {
	start := time.Now()
	ictx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
	defer cancel()

	err := limiter.Wait(ictx)
	if err == nil {
		_, err = b.sender.SendText(ictx, b.target, it.Text(), &kit.SendOptions{})
	}
	if b.metrics != nil {
		b.metrics.ObserveDelivery(err == nil, time.Since(start))
	}
	if err != nil {
		derr := &DeliveryError{Index: idx, Item: it, Err: err}
		log.Warn("item delivery failed", logx.Int("index", idx), logx.String("title", it.Title), logx.Err(err))
		return Outcome{Item: it, Err: derr}
	}
	log.Debug("item delivered", logx.Int("index", idx), logx.String("title", it.Title))
	return Outcome{Item: it, OK: true}
}
