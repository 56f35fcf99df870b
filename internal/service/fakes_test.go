package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rohan/tablebook/config"
	"github.com/rohan/tablebook/internal/model"
	"github.com/rohan/tablebook/internal/repository"
)

// In-memory fakes for the coordinator's dependencies.

func testReservationConfig() config.ReservationConfig {
	return config.ReservationConfig{
		ConfirmationExpirationMinutes: 15,
		DefaultSessionLengthMinutes:   120,
		MinAdvanceBookingMinutes:      60,
		MaxPartySize:                  20,
		MaxFutureDays:                 90,
	}
}

// ─── Store ──────────────────────────────────────────────────

type fakeStore struct {
	mu         sync.Mutex
	res        map[string]*model.Reservation
	deleted    []string
	failCreate bool
	failUpdate bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{res: make(map[string]*model.Reservation)}
}

func (f *fakeStore) get(id string) *model.Reservation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.res[id]
}

func (f *fakeStore) put(r *model.Reservation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.res[r.ID] = r
}

func (f *fakeStore) FindByID(_ context.Context, id string) (*model.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.res[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	cp.History = append([]model.HistoryRecord(nil), r.History...)
	cp.MenuItems = append([]model.ReservationMenuItem(nil), r.MenuItems...)
	return &cp, nil
}

func (f *fakeStore) PageByUser(_ context.Context, userID string, limit, offset int) ([]model.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Reservation
	for _, r := range f.res {
		if r.UserID == userID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeStore) PageByRestaurant(_ context.Context, restaurantID string, limit, offset int) ([]model.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Reservation
	for _, r := range f.res {
		if r.RestaurantID == restaurantID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeStore) Create(_ context.Context, res *model.Reservation, at time.Time) error {
	if f.failCreate {
		return errors.New("store down")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	res.CreatedAt = at
	res.UpdatedAt = at
	res.History = []model.HistoryRecord{{
		ReservationID: res.ID, Action: model.ActionCreated, Timestamp: at, PerformedBy: res.UserID,
	}}
	cp := *res
	f.res[res.ID] = &cp
	return nil
}

func (f *fakeStore) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.res, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeStore) AssignTable(_ context.Context, id string, tableID *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.res[id]; ok {
		r.TableID = tableID
	}
	return nil
}

func (f *fakeStore) Confirm(_ context.Context, id string, at time.Time, performedBy string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.res[id]
	if !ok || r.Status != model.StatusPending {
		return false, nil
	}
	r.Status = model.StatusConfirmed
	r.ConfirmedAt = &at
	r.History = append(r.History, model.HistoryRecord{
		ReservationID: id, Action: model.ActionConfirmed, Timestamp: at, PerformedBy: performedBy,
	})
	return true, nil
}

func (f *fakeStore) Cancel(_ context.Context, id, reason, performedBy string, at time.Time) (model.ReservationStatus, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.res[id]
	if !ok {
		return "", false, nil
	}
	prev := r.Status
	if prev.IsTerminal() {
		return prev, false, nil
	}
	r.Status = model.StatusCancelled
	r.CancelledAt = &at
	r.CancellationReason = reason
	r.TableID = nil
	r.History = append(r.History, model.HistoryRecord{
		ReservationID: id, Action: model.ActionCancelled, Timestamp: at, Details: reason, PerformedBy: performedBy,
	})
	return prev, true, nil
}

func (f *fakeStore) UpdateDetails(_ context.Context, res *model.Reservation, details, performedBy string, at time.Time) error {
	if f.failUpdate {
		return errors.New("store down")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.res[res.ID]
	if !ok {
		return errors.New("no such reservation")
	}
	r.ReservationTime = res.ReservationTime
	r.DurationMinutes = res.DurationMinutes
	r.PartySize = res.PartySize
	r.CustomerName = res.CustomerName
	r.CustomerPhone = res.CustomerPhone
	r.CustomerEmail = res.CustomerEmail
	r.SpecialRequests = res.SpecialRequests
	r.RemindersEnabled = res.RemindersEnabled
	r.TableID = res.TableID
	r.History = append(r.History, model.HistoryRecord{
		ReservationID: res.ID, Action: model.ActionModified, Timestamp: at, Details: details, PerformedBy: performedBy,
	})
	return nil
}

func (f *fakeStore) AddMenuItems(_ context.Context, id string, items []model.ReservationMenuItem, performedBy string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.res[id]
	if !ok {
		return errors.New("no such reservation")
	}
	r.MenuItems = append(r.MenuItems, items...)
	r.History = append(r.History, model.HistoryRecord{
		ReservationID: id, Action: model.ActionMenuItemsAdded, Timestamp: at, PerformedBy: performedBy,
	})
	return nil
}

func (f *fakeStore) FindExpiredPending(_ context.Context, asOf time.Time) ([]model.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Reservation
	for _, r := range f.res {
		if r.Status == model.StatusPending && r.ConfirmationDeadline.Before(asOf) {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeStore) FindUncompletedPast(_ context.Context, asOf time.Time) ([]model.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Reservation
	for _, r := range f.res {
		if r.Status == model.StatusConfirmed && r.EndTime().Before(asOf) {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeStore) CancelExpired(_ context.Context, id, reason string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.res[id]
	if !ok || r.Status != model.StatusPending || !r.ConfirmationDeadline.Before(at) {
		return false, nil
	}
	r.Status = model.StatusCancelled
	r.CancelledAt = &at
	r.CancellationReason = reason
	r.TableID = nil
	r.History = append(r.History, model.HistoryRecord{
		ReservationID: id, Action: model.ActionCancelled, Timestamp: at, Details: reason, PerformedBy: model.SystemPerformer,
	})
	return true, nil
}

func (f *fakeStore) Complete(_ context.Context, id string, status model.ReservationStatus, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.res[id]
	if !ok || r.Status != model.StatusConfirmed {
		return false, nil
	}
	action := model.ActionCompleted
	if status == model.StatusNoShow {
		action = model.ActionNoShow
	}
	r.Status = status
	r.CompletedAt = &at
	r.TableID = nil
	r.History = append(r.History, model.HistoryRecord{
		ReservationID: id, Action: action, Timestamp: at, PerformedBy: model.SystemPerformer,
	})
	return true, nil
}

func (f *fakeStore) DeleteTerminalOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, r := range f.res {
		if r.Status.IsTerminal() && r.ReservationTime.Before(cutoff) {
			delete(f.res, id)
			n++
		}
	}
	return n, nil
}

// ─── Quotas ─────────────────────────────────────────────────

type quotaCall struct {
	restaurantID, date, slot string
	partySize                int
}

type fakeQuotas struct {
	mu       sync.Mutex
	result   repository.QuotaResult
	err      error
	reserves []quotaCall
	releases []quotaCall
	// reserveFn, when set, decides the result per call.
	reserveFn func(call quotaCall) repository.QuotaResult
}

func (f *fakeQuotas) TryReserve(_ context.Context, restaurantID, date, slot string, partySize int) (repository.QuotaResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := quotaCall{restaurantID, date, slot, partySize}
	f.reserves = append(f.reserves, call)
	if f.err != nil {
		return repository.QuotaUnavailable, f.err
	}
	if f.reserveFn != nil {
		return f.reserveFn(call), nil
	}
	return f.result, nil
}

func (f *fakeQuotas) Release(_ context.Context, restaurantID, date, slot string, partySize int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releases = append(f.releases, quotaCall{restaurantID, date, slot, partySize})
	return nil
}

// ─── Validator / tables / menu / publisher / cache ──────────

type fakeValidator struct {
	existsErr error
	hoursErr  error
	owner     bool
}

func (f *fakeValidator) EnsureExistsAndActive(context.Context, string) error { return f.existsErr }
func (f *fakeValidator) EnsureWithinOperatingHours(context.Context, string, time.Time) error {
	return f.hoursErr
}
func (f *fakeValidator) IsOwner(context.Context, string, string) bool { return f.owner }

type tableCall struct {
	tableID, reservationID string
}

type fakeTables struct {
	mu       sync.Mutex
	tableID  string
	findErr  error
	reserved []tableCall
	released []tableCall
}

func (f *fakeTables) FindTable(context.Context, *model.Reservation) (string, error) {
	return f.tableID, f.findErr
}

func (f *fakeTables) MarkReserved(_ context.Context, _, tableID, reservationID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reserved = append(f.reserved, tableCall{tableID, reservationID})
}

func (f *fakeTables) ReleaseTable(_ context.Context, _, tableID, reservationID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, tableCall{tableID, reservationID})
}

type fakeMenu struct {
	items map[string]*model.MenuItem
}

func (f *fakeMenu) FindByID(_ context.Context, id string) (*model.MenuItem, error) {
	return f.items[id], nil
}

type publishedEvent struct {
	topic, key, eventType string
	payload               any
}

type fakePublisher struct {
	mu        sync.Mutex
	events    []publishedEvent
	err       error
	onPublish func(topic, key, eventType string, payload any)
}

func (f *fakePublisher) Publish(_ context.Context, topic, key, eventType string, payload any) error {
	f.mu.Lock()
	f.events = append(f.events, publishedEvent{topic, key, eventType, payload})
	hook := f.onPublish
	err := f.err
	f.mu.Unlock()
	if hook != nil {
		hook(topic, key, eventType, payload)
	}
	return err
}

func (f *fakePublisher) byTopic(topic string) []publishedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []publishedEvent
	for _, e := range f.events {
		if e.topic == topic {
			out = append(out, e)
		}
	}
	return out
}

type fakeCache struct {
	mu     sync.Mutex
	status map[string]model.TableStatus
}

func newFakeCache() *fakeCache {
	return &fakeCache{status: make(map[string]model.TableStatus)}
}

func (f *fakeCache) Get(_ context.Context, tableID string) *model.TableStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.status[tableID]; ok {
		cp := s
		return &cp
	}
	return nil
}

func (f *fakeCache) Put(_ context.Context, tableID string, status model.TableStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status[tableID] = status
	return nil
}

type fakeConflicts struct {
	conflicting map[string][]model.Reservation
}

func (f *fakeConflicts) FindConflicting(_ context.Context, _, tableID string, _, _ time.Time) ([]model.Reservation, error) {
	return f.conflicting[tableID], nil
}
