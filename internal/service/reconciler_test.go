package service

import (
	"context"
	"testing"
	"time"

	"github.com/rohan/tablebook/config"
	"github.com/rohan/tablebook/internal/events"
	"github.com/rohan/tablebook/internal/model"
)

type reconcilerFixture struct {
	store     *fakeStore
	quotas    *fakeQuotas
	tables    *fakeTables
	publisher *fakePublisher
	rec       *Reconciler
}

func newReconcilerFixture() *reconcilerFixture {
	f := &reconcilerFixture{
		store:     newFakeStore(),
		quotas:    &fakeQuotas{},
		tables:    &fakeTables{},
		publisher: &fakePublisher{},
	}
	f.rec = NewReconciler(f.store, f.quotas, f.tables, f.publisher, config.SchedulingConfig{
		ExpiredReservationsInterval: time.Minute,
		DataCleanupInterval:         24 * time.Hour,
		DataCleanupInitialDelay:     time.Hour,
		DataCleanupAgeDays:          90,
	})
	f.rec.now = func() time.Time { return testBase }
	return f
}

func seedForReconciler(f *reconcilerFixture, id string, status model.ReservationStatus, deadline, start time.Time) {
	tableID := "t1"
	f.store.put(&model.Reservation{
		ID:                   id,
		UserID:               "u1",
		RestaurantID:         "r1",
		TableID:              &tableID,
		ReservationTime:      start,
		DurationMinutes:      120,
		PartySize:            2,
		Status:               status,
		CustomerName:         "Ada Lovelace",
		ConfirmationDeadline: deadline,
	})
}

func TestExpirePass(t *testing.T) {
	f := newReconcilerFixture()
	seedForReconciler(f, "expired", model.StatusPending, testBase.Add(-time.Minute), testBase.Add(6*time.Hour))
	seedForReconciler(f, "fresh", model.StatusPending, testBase.Add(10*time.Minute), testBase.Add(6*time.Hour))
	seedForReconciler(f, "confirmed", model.StatusConfirmed, testBase.Add(-time.Hour), testBase.Add(6*time.Hour))

	f.rec.ExpirePass(context.Background())

	got := f.store.get("expired")
	if got.Status != model.StatusCancelled {
		t.Errorf("expired status = %s, want CANCELLED", got.Status)
	}
	if got.CancellationReason != ExpiredReason {
		t.Errorf("reason = %q", got.CancellationReason)
	}
	if len(got.History) != 1 || got.History[0].PerformedBy != model.SystemPerformer {
		t.Errorf("history = %+v, want one SYSTEM record", got.History)
	}
	if f.store.get("fresh").Status != model.StatusPending {
		t.Errorf("fresh reservation was touched")
	}
	if f.store.get("confirmed").Status != model.StatusConfirmed {
		t.Errorf("confirmed reservation was touched")
	}

	if len(f.quotas.releases) != 1 || f.quotas.releases[0].partySize != 2 {
		t.Errorf("quota releases = %+v", f.quotas.releases)
	}
	if len(f.tables.released) != 1 || f.tables.released[0].tableID != "t1" {
		t.Errorf("table releases = %+v", f.tables.released)
	}
	evts := f.publisher.byTopic(events.TopicReservationCancel)
	if len(evts) != 1 {
		t.Fatalf("cancel events = %d, want 1", len(evts))
	}
	if evt := evts[0].payload.(events.ReservationCancelled); evt.PreviousStatus != string(model.StatusPending) {
		t.Errorf("previous status = %s", evt.PreviousStatus)
	}
}

func TestExpirePassIsIdempotent(t *testing.T) {
	f := newReconcilerFixture()
	seedForReconciler(f, "expired", model.StatusPending, testBase.Add(-time.Minute), testBase.Add(6*time.Hour))

	f.rec.ExpirePass(context.Background())
	f.rec.ExpirePass(context.Background())

	got := f.store.get("expired")
	if len(got.History) != 1 {
		t.Errorf("history records = %d after two passes, want 1", len(got.History))
	}
	if len(f.quotas.releases) != 1 {
		t.Errorf("quota releases = %d after two passes, want 1", len(f.quotas.releases))
	}
	if evts := f.publisher.byTopic(events.TopicReservationCancel); len(evts) != 1 {
		t.Errorf("cancel events = %d after two passes, want 1", len(evts))
	}
}

func TestCompletePass(t *testing.T) {
	f := newReconcilerFixture()
	// Ended at base-2h, grace period long past.
	seedForReconciler(f, "done", model.StatusConfirmed, testBase.Add(-5*time.Hour), testBase.Add(-4*time.Hour))
	// Ended 30 minutes ago, still inside the grace period.
	seedForReconciler(f, "recent", model.StatusConfirmed, testBase.Add(-4*time.Hour), testBase.Add(-150*time.Minute))

	f.rec.CompletePass(context.Background())

	got := f.store.get("done")
	if got.Status != model.StatusCompleted {
		t.Errorf("status = %s, want COMPLETED", got.Status)
	}
	if len(got.History) != 1 || got.History[0].Action != model.ActionCompleted {
		t.Errorf("history = %+v", got.History)
	}
	if f.store.get("recent").Status != model.StatusConfirmed {
		t.Errorf("reservation inside grace period was closed")
	}

	// Completion consumes the slot; the quota stays claimed.
	if len(f.quotas.releases) != 0 {
		t.Errorf("quota released on completion: %+v", f.quotas.releases)
	}
	if len(f.tables.released) != 1 {
		t.Errorf("table releases = %d, want 1", len(f.tables.released))
	}
}

func TestCompletePassNoShowPolicy(t *testing.T) {
	f := newReconcilerFixture()
	seedForReconciler(f, "ghosted", model.StatusConfirmed, testBase.Add(-5*time.Hour), testBase.Add(-4*time.Hour))
	f.rec.SetCompletionPolicy(func(*model.Reservation) model.ReservationStatus {
		return model.StatusNoShow
	})

	f.rec.CompletePass(context.Background())

	got := f.store.get("ghosted")
	if got.Status != model.StatusNoShow {
		t.Errorf("status = %s, want NO_SHOW", got.Status)
	}
	if len(got.History) != 1 || got.History[0].Action != model.ActionNoShow {
		t.Errorf("history = %+v", got.History)
	}
}

func TestCleanupPass(t *testing.T) {
	f := newReconcilerFixture()
	seedForReconciler(f, "ancient", model.StatusCancelled, testBase, testBase.AddDate(0, 0, -120))
	seedForReconciler(f, "recent-terminal", model.StatusCompleted, testBase, testBase.AddDate(0, 0, -10))
	seedForReconciler(f, "ancient-live", model.StatusConfirmed, testBase, testBase.AddDate(0, 0, -120))

	f.rec.CleanupPass(context.Background())

	if f.store.get("ancient") != nil {
		t.Errorf("ancient terminal reservation survived cleanup")
	}
	if f.store.get("recent-terminal") == nil {
		t.Errorf("recent terminal reservation was purged")
	}
	if f.store.get("ancient-live") == nil {
		t.Errorf("live reservation was purged")
	}
}
