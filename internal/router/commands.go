package router

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"promobot/internal/scheduler"
	"promobot/internal/settings"
	logx "promobot/pkg/logx"
)

const (
	replyHelp = "✅ Bot aktif!\n\nGuna:\n" +
		"/post – Hantar promosi sekarang\n" +
		"/setup_post – Aktifkan auto-post ikut config\n" +
		"/set_interval <jam> – Tukar selang masa (contoh: /set_interval 2)\n" +
		"/status – Semak status auto-post"
	replyUnknown       = "❓ Perintah tidak dikenal. Cuba /help"
	replyPostProgress  = "🔁 Menghantar promosi..."
	replyPostDone      = "✅ Promosi dihantar!"
	replyPostPartial   = "⚠️ Promosi dihantar: %d berjaya, %d gagal."
	replySetupOK       = "✅ Auto-post setiap %d jam telah diaktifkan."
	replyAlreadyArmed  = "⚠️ Auto-post sudah aktif. Guna /set_interval <jam> untuk tukar selang masa."
	replyBadFormat     = "❌ Format salah. Guna: /set_interval <jam>"
	replyTooSmall      = "❌ Minimum 1 jam diperlukan."
	replyTooLarge      = "❌ Maksimum 8760 jam dibenarkan."
	replyIntervalOK    = "✅ Selang masa auto-post ditetapkan kepada setiap %d jam."
	replySaveFailed    = "❌ Gagal simpan tetapan. Selang masa tidak ditukar."
	replyStopped       = "❌ Penjadual telah berhenti."
	replyInternalError = "❌ Ralat dalaman. Cuba lagi."
)

func (r *Router) table() []Command {
	return []Command{
		{
			Name:        "start",
			Aliases:     []string{"help"},
			Description: "Tunjuk bantuan",
			Usage:       "/start",
			Run:         r.cmdHelp,
		},
		{
			Name:        "post",
			Description: "Hantar promosi sekarang",
			Usage:       "/post",
			Access:      AccessOwnerOnly,
			Progress:    replyPostProgress,
			Timeout:     10 * time.Minute,
			Run:         r.cmdPost,
		},
		{
			Name:        "setup",
			Aliases:     []string{"setup_post"},
			Description: "Aktifkan auto-post ikut config",
			Usage:       "/setup_post",
			Access:      AccessOwnerOnly,
			Run:         r.cmdSetup,
		},
		{
			Name:        "set_interval",
			Description: "Tukar selang masa (jam)",
			Usage:       "/set_interval <jam>",
			Access:      AccessOwnerOnly,
			Run:         r.cmdSetInterval,
		},
		{
			Name:        "status",
			Description: "Semak status auto-post",
			Usage:       "/status",
			Run:         r.cmdStatus,
		},
	}
}

func (r *Router) cmdHelp(context.Context, []string) (string, error) {
	return replyHelp, nil
}

func (r *Router) cmdPost(ctx context.Context, _ []string) (string, error) {
	rep := r.poster.BroadcastAll(ctx)
	if n := rep.Failed(); n > 0 {
		return fmt.Sprintf(replyPostPartial, rep.Sent(), n), nil
	}
	return replyPostDone, nil
}

func (r *Router) cmdSetup(ctx context.Context, _ []string) (string, error) {
	st := r.store.Load(ctx)
	err := r.job.Start(st.Interval())
	switch {
	case err == nil:
		r.log.Info("auto-post armed", logx.Int("hours", st.IntervalHours))
		return fmt.Sprintf(replySetupOK, st.IntervalHours), nil
	case errors.Is(err, scheduler.ErrAlreadyArmed):
		return replyAlreadyArmed, err
	case errors.Is(err, scheduler.ErrStopped):
		return replyStopped, err
	default:
		return replyInternalError, err
	}
}

func (r *Router) cmdSetInterval(ctx context.Context, args []string) (string, error) {
	hours, reply, err := parseHours(args)
	if err != nil {
		return reply, err
	}

	// Persist first; the active period never drifts from the stored one.
	if err := r.store.Save(ctx, settings.Settings{IntervalHours: hours}); err != nil {
		r.log.Error("interval not saved", logx.Int("hours", hours), logx.Err(err))
		return replySaveFailed, err
	}
	if err := r.job.Reschedule(time.Duration(hours) * time.Hour); err != nil {
		if errors.Is(err, scheduler.ErrStopped) {
			return replyStopped, err
		}
		return replyInternalError, err
	}
	r.log.Info("interval changed", logx.Int("hours", hours))
	return fmt.Sprintf(replyIntervalOK, hours), nil
}

// parseHours accepts exactly one all-digit argument in [1, MaxIntervalHours].
func parseHours(args []string) (int, string, error) {
	if len(args) != 1 || !isDigits(args[0]) {
		return 0, replyBadFormat, &ArgError{Command: "set_interval", Reason: "expected one whole number of hours"}
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n > MaxIntervalHours {
		return 0, replyTooLarge, &ArgError{Command: "set_interval", Reason: "hours above " + strconv.Itoa(MaxIntervalHours)}
	}
	if n < 1 {
		return 0, replyTooSmall, &ArgError{Command: "set_interval", Reason: "hours below 1"}
	}
	return n, "", nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func (r *Router) cmdStatus(context.Context, []string) (string, error) {
	snap := r.job.Snapshot()
	var b strings.Builder
	b.WriteString("📊 Status auto-post\n")
	fmt.Fprintf(&b, "Keadaan: %s\n", stateLabel(snap))
	if snap.Period > 0 {
		fmt.Fprintf(&b, "Selang masa: %d jam\n", int(snap.Period/time.Hour))
	}
	switch {
	case snap.Running:
		b.WriteString("Hantaran seterusnya: sedang menghantar\n")
	case !snap.NextFire.IsZero():
		fmt.Fprintf(&b, "Hantaran seterusnya: %s (%s lagi)\n", snap.NextFire.Format("2006-01-02 15:04 MST"), humanDuration(snap.NextFire.Sub(r.now())))
	}
	if snap.Passes > 0 {
		fmt.Fprintf(&b, "Hantaran terakhir: %s, %s\n", snap.LastStart.Format("2006-01-02 15:04 MST"), snap.LastDur.Round(time.Second))
		fmt.Fprintf(&b, "Jumlah hantaran: %d (gagal %d)", snap.Passes, snap.Failures)
		if snap.LastError != "" {
			fmt.Fprintf(&b, "\nRalat terakhir: %s", snap.LastError)
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func stateLabel(s scheduler.Snapshot) string {
	switch s.State {
	case scheduler.StateArmed:
		return "aktif"
	case scheduler.StateStopped:
		return "berhenti"
	default:
		return "tidak aktif"
	}
}

func humanDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Minute)
	h := int(d / time.Hour)
	m := int((d % time.Hour) / time.Minute)
	if h > 0 {
		return fmt.Sprintf("%dj %dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
