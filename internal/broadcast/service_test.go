package broadcast

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promobot/internal/catalog"
	kit "promobot/internal/transport"
	logx "promobot/pkg/logx"
)

type recordingSender struct {
	mu     sync.Mutex
	sent   []string
	failAt map[int]error
	calls  int
	delay  time.Duration

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (s *recordingSender) SendText(ctx context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		cur := s.maxInFlight.Load()
		if n <= cur || s.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return kit.MessageRef{}, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.calls
	s.calls++
	if err := s.failAt[idx]; err != nil {
		return kit.MessageRef{}, err
	}
	s.sent = append(s.sent, text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: idx + 1}, nil
}

type countingMetrics struct{ ok, failed atomic.Int32 }

func (m *countingMetrics) ObserveDelivery(ok bool, _ time.Duration) {
	if ok {
		m.ok.Add(1)
	} else {
		m.failed.Add(1)
	}
}

func fastConfig() Config { return Config{RatePerSec: 1000, SendTimeout: time.Second} }

func testItems(n int) []catalog.Item {
	items := make([]catalog.Item, n)
	for i := range items {
		items[i] = catalog.Item{Title: "Produk " + string(rune('A'+i)), Link: "https://example.com/" + string(rune('a'+i))}
	}
	return items
}

func TestBroadcastAllSendsEveryItemInOrder(t *testing.T) {
	items := testItems(4)
	s := &recordingSender{}
	m := &countingMetrics{}
	b := New(fastConfig(), s, kit.ChatTarget{Username: "@shop"}, catalog.New(items), logx.Nop(), m)

	rep := b.BroadcastAll(context.Background())

	require.Len(t, rep.Outcomes, 4)
	assert.Equal(t, 4, rep.Sent())
	assert.Equal(t, 0, rep.Failed())
	assert.NoError(t, rep.Err())
	assert.NotEmpty(t, rep.ID)
	want := make([]string, len(items))
	for i, it := range items {
		want[i] = it.Text()
	}
	assert.Equal(t, want, s.sent)
	assert.Equal(t, int32(4), m.ok.Load())
}

func TestBroadcastAllContinuesAfterItemFailure(t *testing.T) {
	items := testItems(4)
	boom := errors.New("chat not found")
	s := &recordingSender{failAt: map[int]error{1: boom}}
	m := &countingMetrics{}
	b := New(fastConfig(), s, kit.ChatTarget{ChatID: -100}, catalog.New(items), logx.Nop(), m)

	rep := b.BroadcastAll(context.Background())

	assert.Equal(t, 4, s.calls, "every item is attempted")
	assert.Equal(t, 3, rep.Sent())
	assert.Equal(t, 1, rep.Failed())
	assert.False(t, rep.Outcomes[1].OK)

	var derr *DeliveryError
	require.ErrorAs(t, rep.Outcomes[1].Err, &derr)
	assert.Equal(t, 1, derr.Index)
	assert.Equal(t, items[1], derr.Item)
	assert.ErrorIs(t, rep.Err(), boom)
	assert.Equal(t, int32(1), m.failed.Load())
	assert.Equal(t, []string{items[0].Text(), items[2].Text(), items[3].Text()}, s.sent)
}

func TestBroadcastAllPerItemTimeout(t *testing.T) {
	s := &recordingSender{delay: 500 * time.Millisecond}
	b := New(Config{RatePerSec: 1000, SendTimeout: 20 * time.Millisecond}, s, kit.ChatTarget{ChatID: 1}, catalog.New(testItems(2)), logx.Nop(), nil)

	rep := b.BroadcastAll(context.Background())
	require.Len(t, rep.Outcomes, 2)
	assert.Equal(t, 2, rep.Failed())
	assert.ErrorIs(t, rep.Outcomes[0].Err, context.DeadlineExceeded)
}

func TestBroadcastAllSerializesPasses(t *testing.T) {
	s := &recordingSender{delay: 5 * time.Millisecond}
	b := New(fastConfig(), s, kit.ChatTarget{ChatID: 1}, catalog.New(testItems(3)), logx.Nop(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.BroadcastAll(context.Background())
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), s.maxInFlight.Load())
	require.Len(t, s.sent, 9)
	// Each pass is contiguous: A B C repeated.
	for i, text := range s.sent {
		assert.Equal(t, testItems(3)[i%3].Text(), text)
	}
}

func TestBroadcastAllAbandonsWhenContextEndsWhileWaiting(t *testing.T) {
	b := New(fastConfig(), &recordingSender{}, kit.ChatTarget{ChatID: 1}, catalog.New(testItems(2)), logx.Nop(), nil)
	b.pass <- struct{}{} // simulate a pass in progress

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep := b.BroadcastAll(ctx)
	assert.Equal(t, 2, rep.Failed())
	assert.ErrorIs(t, rep.Err(), context.Canceled)
}

func TestApplyDefaults(t *testing.T) {
	b := New(Config{}, &recordingSender{}, kit.ChatTarget{ChatID: 1}, catalog.New(testItems(1)), logx.Nop(), nil)
	assert.Equal(t, DefaultRatePerSec, b.cfg.RatePerSec)
	assert.Equal(t, DefaultSendTimeout, b.cfg.SendTimeout)

	b.Apply(Config{RatePerSec: 5, SendTimeout: time.Second})
	assert.Equal(t, 5.0, b.cfg.RatePerSec)
	assert.InDelta(t, 5.0, float64(b.limiter.Limit()), 0.0001)
}
