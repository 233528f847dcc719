package router

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promobot/internal/broadcast"
	"promobot/internal/catalog"
	"promobot/internal/scheduler"
	"promobot/internal/settings"
	logx "promobot/pkg/logx"
)

type memStore struct {
	mu      sync.Mutex
	cur     settings.Settings
	saves   int
	saveErr error
}

func (m *memStore) Load(context.Context) settings.Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur
}

func (m *memStore) Save(_ context.Context, s settings.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.cur = s
	m.saves++
	return nil
}

type stubPoster struct {
	mu     sync.Mutex
	calls  int
	failed int
}

func (p *stubPoster) BroadcastAll(context.Context) broadcast.Report {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	rep := broadcast.Report{ID: "pass-1", Started: time.Now()}
	for i, it := range catalog.Default().Items() {
		o := broadcast.Outcome{Item: it, OK: i >= p.failed}
		if !o.OK {
			o.Err = &broadcast.DeliveryError{Index: i, Item: it, Err: errors.New("boom")}
		}
		rep.Outcomes = append(rep.Outcomes, o)
	}
	return rep
}

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestRouter(t *testing.T, hours int) (*Router, *memStore, *scheduler.Scheduler, *scheduler.FakeClock, *stubPoster) {
	t.Helper()
	store := &memStore{cur: settings.Settings{IntervalHours: hours}}
	clk := scheduler.NewFakeClock(t0)
	poster := &stubPoster{}
	job := scheduler.New(func(ctx context.Context) error { return poster.BroadcastAll(ctx).Err() }, logx.Nop(), scheduler.WithClock(clk))
	r := New(store, job, poster, logx.Nop())
	r.now = clk.Now
	return r, store, job, clk, poster
}

func TestHandleStartAndHelp(t *testing.T) {
	r, _, _, _, _ := newTestRouter(t, 1)
	for _, name := range []string{"start", "help", "HELP"} {
		reply, err := r.Handle(context.Background(), name, nil)
		require.NoError(t, err)
		assert.Contains(t, reply, "/set_interval <jam>")
		assert.Contains(t, reply, "/setup_post")
	}
}

func TestHandleUnknown(t *testing.T) {
	r, _, _, _, _ := newTestRouter(t, 1)
	reply, err := r.Handle(context.Background(), "nope", nil)
	assert.ErrorIs(t, err, ErrUnknownCommand)
	assert.Equal(t, replyUnknown, reply)
}

func TestSetupStartsWithPersistedInterval(t *testing.T) {
	r, _, job, _, _ := newTestRouter(t, 5)

	reply, err := r.Handle(context.Background(), "setup_post", nil)
	require.NoError(t, err)
	assert.Equal(t, "✅ Auto-post setiap 5 jam telah diaktifkan.", reply)
	assert.Equal(t, 5*time.Hour, job.Snapshot().Period)
	assert.Equal(t, scheduler.StateArmed, job.Snapshot().State)

	reply, err = r.Handle(context.Background(), "setup", nil)
	assert.ErrorIs(t, err, ErrAlreadyArmed)
	assert.Equal(t, replyAlreadyArmed, reply)
	assert.Equal(t, 5*time.Hour, job.Snapshot().Period, "no state change")
	assert.Equal(t, 1, job.PendingTimers())
}

func TestSetIntervalSavesThenReschedules(t *testing.T) {
	r, store, job, clk, poster := newTestRouter(t, 1)
	require.NoError(t, job.Start(time.Hour))
	clk.Advance(0)

	reply, err := r.Handle(context.Background(), "set_interval", []string{"3"})
	require.NoError(t, err)
	assert.Equal(t, "✅ Selang masa auto-post ditetapkan kepada setiap 3 jam.", reply)
	assert.Equal(t, settings.Settings{IntervalHours: 3}, store.cur)

	snap := job.Snapshot()
	assert.Equal(t, scheduler.StateArmed, snap.State)
	assert.Equal(t, 3*time.Hour, snap.Period)
	assert.Equal(t, 1, job.PendingTimers())
	assert.Equal(t, 1, clk.Pending())

	clk.Advance(0)
	assert.Equal(t, 2, poster.calls)
	clk.Advance(time.Hour)
	assert.Equal(t, 2, poster.calls, "old period is gone")
	clk.Advance(2 * time.Hour)
	assert.Equal(t, 3, poster.calls)
}

func TestSetIntervalRejectsBadArguments(t *testing.T) {
	cases := []struct {
		name  string
		args  []string
		reply string
	}{
		{"zero", []string{"0"}, replyTooSmall},
		{"negative", []string{"-3"}, replyBadFormat},
		{"word", []string{"abc"}, replyBadFormat},
		{"missing", nil, replyBadFormat},
		{"extra", []string{"2", "3"}, replyBadFormat},
		{"plus sign", []string{"+3"}, replyBadFormat},
		{"fraction", []string{"1.5"}, replyBadFormat},
		{"too large", []string{"8761"}, replyTooLarge},
		{"overflow", []string{"99999999999999999999999"}, replyTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, store, job, _, _ := newTestRouter(t, 2)
			require.NoError(t, job.Start(2*time.Hour))
			before := job.Snapshot()

			reply, err := r.Handle(context.Background(), "set_interval", tc.args)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidArgument)
			var argErr *ArgError
			assert.ErrorAs(t, err, &argErr)
			assert.Equal(t, tc.reply, reply)

			assert.Equal(t, 0, store.saves)
			assert.Equal(t, settings.Settings{IntervalHours: 2}, store.cur)
			assert.Equal(t, before.Generation, job.Snapshot().Generation)
			assert.Equal(t, 2*time.Hour, job.Snapshot().Period)
		})
	}
}

func TestSetIntervalMaximumAccepted(t *testing.T) {
	r, store, job, _, _ := newTestRouter(t, 1)
	_, err := r.Handle(context.Background(), "set_interval", []string{"8760"})
	require.NoError(t, err)
	assert.Equal(t, 8760, store.cur.IntervalHours)
	assert.Equal(t, 8760*time.Hour, job.Snapshot().Period)
}

func TestSetIntervalPersistenceFailureLeavesJobAlone(t *testing.T) {
	r, store, job, _, _ := newTestRouter(t, 1)
	require.NoError(t, job.Start(time.Hour))
	store.saveErr = &settings.PersistenceError{Path: "/ro/config.json", Err: errors.New("read-only file system")}

	reply, err := r.Handle(context.Background(), "set_interval", []string{"4"})
	var perr *settings.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, replySaveFailed, reply)
	assert.Equal(t, time.Hour, job.Snapshot().Period)
	assert.Equal(t, uint64(0), job.Snapshot().Reschedules)
}

func TestSetIntervalAfterStop(t *testing.T) {
	r, _, job, _, _ := newTestRouter(t, 1)
	require.NoError(t, job.Stop(context.Background()))

	reply, err := r.Handle(context.Background(), "set_interval", []string{"2"})
	assert.ErrorIs(t, err, scheduler.ErrStopped)
	assert.Equal(t, replyStopped, reply)
}

func TestPostReportsCounts(t *testing.T) {
	r, _, job, _, poster := newTestRouter(t, 1)

	reply, err := r.Handle(context.Background(), "post", nil)
	require.NoError(t, err)
	assert.Equal(t, replyPostDone, reply)
	assert.Equal(t, 1, poster.calls)
	assert.Equal(t, scheduler.StateIdle, job.Snapshot().State, "post does not arm the job")

	poster.failed = 1
	reply, err = r.Handle(context.Background(), "post", nil)
	require.NoError(t, err)
	assert.Equal(t, "⚠️ Promosi dihantar: 3 berjaya, 1 gagal.", reply)
}

func TestStatusDescribesJob(t *testing.T) {
	r, _, job, clk, _ := newTestRouter(t, 1)

	reply, err := r.Handle(context.Background(), "status", nil)
	require.NoError(t, err)
	assert.Contains(t, reply, "Keadaan: tidak aktif")

	require.NoError(t, job.Start(2*time.Hour))
	clk.Advance(0)
	reply, err = r.Handle(context.Background(), "status", nil)
	require.NoError(t, err)
	assert.Contains(t, reply, "Keadaan: aktif")
	assert.Contains(t, reply, "Selang masa: 2 jam")
	assert.Contains(t, reply, "Hantaran seterusnya: 2026-03-01 11:00 UTC (2j 0m lagi)")
	assert.Contains(t, reply, "Jumlah hantaran: 1 (gagal 0)")
}

func TestParseCommand(t *testing.T) {
	name, bot, args, ok := parseCommand(`/Set_Interval@promo_bot 3`)
	require.True(t, ok)
	assert.Equal(t, "set_interval", name)
	assert.Equal(t, "promo_bot", bot)
	assert.Equal(t, []string{"3"}, args)

	_, bot, args, ok = parseCommand(`/post "hello world" x`)
	require.True(t, ok)
	assert.Empty(t, bot)
	assert.Equal(t, []string{"hello world", "x"}, args)

	_, _, _, ok = parseCommand("hello")
	assert.False(t, ok)
	_, _, _, ok = parseCommand("/")
	assert.False(t, ok)
}

func TestAddressedTo(t *testing.T) {
	assert.True(t, addressedTo("", "promo_bot"))
	assert.True(t, addressedTo("Promo_Bot", "@promo_bot"))
	assert.True(t, addressedTo("otherbot", ""))
	assert.False(t, addressedTo("otherbot", "promo_bot"))
}
