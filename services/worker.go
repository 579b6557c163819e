package services

import (
	"context"
	"log/slog"
	"time"

	"rental-backend/availability"
	"rental-backend/notify"

	"github.com/redis/go-redis/v9"
)

const (
	reminderKeyPrefix = "worker:reminders:"
	reminderMarkerTTL = 48 * time.Hour
)

// Worker runs the periodic jobs: expiring stale unpaid reservations, purging
// expired login tokens, the daily check-in reminders and the WhatsApp queue.
type Worker struct {
	Reservations    *ReservationService
	Users           *UserService
	Queue           *notify.Queue    // nil when notifications are synchronous
	Messenger       notify.Messenger // delivers queued jobs
	Cache           redis.Cmdable    // shares the daily reminder marker across restarts and replicas
	CleanupInterval time.Duration
	ReminderHour    int
	Now             func() time.Time

	lastReminder time.Time
}

func NewWorker(res *ReservationService, users *UserService, interval time.Duration, reminderHour int) *Worker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Worker{
		Reservations:    res,
		Users:           users,
		CleanupInterval: interval,
		ReminderHour:    reminderHour,
		Now:             func() time.Time { return time.Now().UTC() },
	}
}

// Cleanup runs one maintenance pass.
func (w *Worker) Cleanup(ctx context.Context) {
	if _, err := w.Reservations.ExpireStale(ctx); err != nil {
		slog.Error("expire stale reservations", slog.Any("error", err))
	}
	if w.Users != nil {
		if n, err := w.Users.PurgeExpiredTokens(ctx); err != nil {
			slog.Error("purge auth tokens", slog.Any("error", err))
		} else if n > 0 {
			slog.Info("purged expired auth tokens", slog.Int64("count", n))
		}
	}
}

// RemindIfDue sends today's check-in reminders once, after ReminderHour.
func (w *Worker) RemindIfDue(ctx context.Context) {
	now := w.Now()
	today := availability.Day(now)
	if now.Hour() < w.ReminderHour || !w.lastReminder.Before(today) {
		return
	}
	day := today.Format("2006-01-02")
	if !w.claimReminders(ctx, day) {
		w.lastReminder = today
		return
	}
	n, err := w.Reservations.SendCheckinReminders(ctx, today)
	if err != nil {
		slog.Error("check-in reminders", slog.Any("error", err))
		w.releaseReminders(ctx, day)
		return
	}
	w.lastReminder = today
	slog.Info("check-in reminders sent", slog.Int("count", n), slog.String("day", day))
}

// claimReminders reports whether this process should send the reminders for
// day. Without redis only the in-memory marker applies.
func (w *Worker) claimReminders(ctx context.Context, day string) bool {
	if w.Cache == nil {
		return true
	}
	ok, err := w.Cache.SetNX(ctx, reminderKeyPrefix+day, w.Now().Format(time.RFC3339), reminderMarkerTTL).Result()
	if err != nil {
		slog.Warn("reminder marker unavailable", slog.String("day", day), slog.Any("error", err))
		return true
	}
	if !ok {
		slog.Debug("check-in reminders already sent", slog.String("day", day))
	}
	return ok
}

func (w *Worker) releaseReminders(ctx context.Context, day string) {
	if w.Cache == nil {
		return
	}
	if err := w.Cache.Del(ctx, reminderKeyPrefix+day).Err(); err != nil {
		slog.Warn("release reminder marker", slog.String("day", day), slog.Any("error", err))
	}
}

// Run blocks until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	if w.Queue != nil && w.Messenger != nil {
		go func() {
			if err := w.Queue.Consume(ctx, w.Messenger); err != nil && ctx.Err() == nil {
				slog.Error("notification queue stopped", slog.Any("error", err))
			}
		}()
	}

	ticker := time.NewTicker(w.CleanupInterval)
	defer ticker.Stop()

	w.Cleanup(ctx)
	w.RemindIfDue(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped")
			return nil
		case <-ticker.C:
			w.Cleanup(ctx)
			w.RemindIfDue(ctx)
		}
	}
}
