package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rohan/tablebook/config"
	"github.com/rohan/tablebook/internal/events"
	"github.com/rohan/tablebook/internal/model"
)

// ExpiredReason is the cancellation reason recorded when the confirmation
// deadline lapses.
const ExpiredReason = "Confirmation deadline expired"

// completionGrace is how long after a reservation's end time the completer
// waits before closing it out.
const completionGrace = time.Hour

// ReconcilerStore is the persistence surface of the background passes.
// Implemented by repository.ReservationRepository.
type ReconcilerStore interface {
	FindExpiredPending(ctx context.Context, asOf time.Time) ([]model.Reservation, error)
	FindUncompletedPast(ctx context.Context, asOf time.Time) ([]model.Reservation, error)
	CancelExpired(ctx context.Context, id, reason string, at time.Time) (bool, error)
	Complete(ctx context.Context, id string, status model.ReservationStatus, at time.Time) (bool, error)
	DeleteTerminalOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Reconciler runs the periodic lifecycle passes: expiring unconfirmed
// reservations, closing out past ones, and purging old terminal rows.
//
// Every pass is idempotent. The underlying transitions are conditional on
// the current status, so a rerun (or a second node running the same pass)
// finds zero matching rows and does nothing.
type Reconciler struct {
	store     ReconcilerStore
	quotas    QuotaStore
	tables    TableAssigner
	publisher EventPublisher
	cfg       config.SchedulingConfig
	now       func() time.Time

	// completionStatus decides the terminal state of a past CONFIRMED
	// reservation. The default closes everything as COMPLETED; a no-show
	// detector can swap in NO_SHOW per reservation.
	completionStatus func(r *model.Reservation) model.ReservationStatus

	cron         *cron.Cron
	cleanupTimer *time.Timer
}

// NewReconciler creates a new reconciler with the default completion
// policy.
func NewReconciler(
	store ReconcilerStore,
	quotas QuotaStore,
	tables TableAssigner,
	publisher EventPublisher,
	cfg config.SchedulingConfig,
) *Reconciler {
	return &Reconciler{
		store:     store,
		quotas:    quotas,
		tables:    tables,
		publisher: publisher,
		cfg:       cfg,
		now:       time.Now,
		completionStatus: func(*model.Reservation) model.ReservationStatus {
			return model.StatusCompleted
		},
	}
}

// SetCompletionPolicy replaces the completion policy. Must be called before
// Start.
func (r *Reconciler) SetCompletionPolicy(f func(*model.Reservation) model.ReservationStatus) {
	r.completionStatus = f
}

// Start schedules the passes: expire+complete on the expired-reservations
// interval, cleanup on its own interval after an initial delay.
func (r *Reconciler) Start(ctx context.Context) error {
	r.cron = cron.New()

	_, err := r.cron.AddFunc(fmt.Sprintf("@every %s", r.cfg.ExpiredReservationsInterval), func() {
		r.ExpirePass(ctx)
		r.CompletePass(ctx)
	})
	if err != nil {
		return fmt.Errorf("reconciler: schedule expire pass: %w", err)
	}

	r.cleanupTimer = time.AfterFunc(r.cfg.DataCleanupInitialDelay, func() {
		r.CleanupPass(ctx)
		if _, err := r.cron.AddFunc(fmt.Sprintf("@every %s", r.cfg.DataCleanupInterval), func() {
			r.CleanupPass(ctx)
		}); err != nil {
			log.Printf("[reconciler] schedule cleanup pass failed: %v", err)
		}
	})

	r.cron.Start()
	log.Printf("[reconciler] started: expire pass every %s, cleanup every %s after %s",
		r.cfg.ExpiredReservationsInterval, r.cfg.DataCleanupInterval, r.cfg.DataCleanupInitialDelay)
	return nil
}

// Stop halts the schedules and waits for a running pass to finish.
func (r *Reconciler) Stop() {
	if r.cleanupTimer != nil {
		r.cleanupTimer.Stop()
	}
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
}

// ExpirePass cancels PENDING reservations whose confirmation deadline has
// passed, releasing their quota claim and table.
func (r *Reconciler) ExpirePass(ctx context.Context) {
	now := r.now()
	expired, err := r.store.FindExpiredPending(ctx, now)
	if err != nil {
		log.Printf("[reconciler] expire pass query failed: %v", err)
		return
	}

	for i := range expired {
		res := &expired[i]
		ok, err := r.store.CancelExpired(ctx, res.ID, ExpiredReason, now)
		if err != nil {
			log.Printf("[reconciler] expire of %s failed: %v", res.ID, err)
			continue
		}
		if !ok {
			// Confirmed or cancelled since the query; nothing to undo.
			continue
		}

		date, slot := model.SlotOf(res.ReservationTime)
		if err := r.quotas.Release(ctx, res.RestaurantID, date, slot, res.PartySize); err != nil {
			log.Printf("[reconciler] quota release for %s failed: %v", res.ID, err)
		}
		if res.TableID != nil {
			r.tables.ReleaseTable(ctx, res.RestaurantID, *res.TableID, res.ID)
		}

		evt := events.ReservationCancelled{
			ReservationID:  res.ID,
			RestaurantID:   res.RestaurantID,
			UserID:         res.UserID,
			PreviousStatus: string(model.StatusPending),
			Reason:         ExpiredReason,
		}
		if err := r.publisher.Publish(ctx, events.TopicReservationCancel, res.ID, events.TypeReservationCancelled, evt); err != nil {
			log.Printf("[reconciler] cancelled event for %s failed: %v", res.ID, err)
		}
		log.Printf("[reconciler] expired reservation %s", res.ID)
	}
}

// CompletePass closes out CONFIRMED reservations whose end time passed more
// than the grace period ago. The quota claim is intentionally not released:
// the slot was consumed.
func (r *Reconciler) CompletePass(ctx context.Context) {
	now := r.now()
	past, err := r.store.FindUncompletedPast(ctx, now.Add(-completionGrace))
	if err != nil {
		log.Printf("[reconciler] complete pass query failed: %v", err)
		return
	}

	for i := range past {
		res := &past[i]
		status := r.completionStatus(res)
		ok, err := r.store.Complete(ctx, res.ID, status, now)
		if err != nil {
			log.Printf("[reconciler] completion of %s failed: %v", res.ID, err)
			continue
		}
		if !ok {
			continue
		}
		if res.TableID != nil {
			r.tables.ReleaseTable(ctx, res.RestaurantID, *res.TableID, res.ID)
		}
		log.Printf("[reconciler] closed reservation %s as %s", res.ID, status)
	}
}

// CleanupPass deletes terminal reservations older than the retention
// window.
func (r *Reconciler) CleanupPass(ctx context.Context) {
	cutoff := r.now().AddDate(0, 0, -r.cfg.DataCleanupAgeDays)
	n, err := r.store.DeleteTerminalOlderThan(ctx, cutoff)
	if err != nil {
		log.Printf("[reconciler] cleanup failed: %v", err)
		return
	}
	if n > 0 {
		log.Printf("[reconciler] purged %d terminal reservation(s) older than %s", n, cutoff.Format("2006-01-02"))
	}
}
