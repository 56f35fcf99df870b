package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rohan/tablebook/internal/broker"
	"github.com/rohan/tablebook/internal/events"
	"github.com/rohan/tablebook/internal/model"
)

func tableReservation() *model.Reservation {
	return &model.Reservation{
		ID:              "res-1",
		RestaurantID:    "r1",
		ReservationTime: time.Date(2025, 7, 4, 19, 0, 0, 0, time.UTC),
		DurationMinutes: 120,
		PartySize:       4,
	}
}

func TestFindTableViaBus(t *testing.T) {
	finder := broker.New[events.FindAvailableTableResponse]("table-find")
	pub := &fakePublisher{}
	pub.onPublish = func(topic, key, _ string, _ any) {
		if topic != events.TopicTableFindRequest {
			return
		}
		finder.Deliver(key, events.FindAvailableTableResponse{
			CorrelationID: key, Success: true, TableID: "t5",
		})
	}
	s := NewTableAssignerService(pub, finder, newFakeCache(), &fakeConflicts{}, "http://127.0.0.1:1", time.Second)

	got, err := s.FindTable(context.Background(), tableReservation())
	if err != nil {
		t.Fatalf("FindTable: %v", err)
	}
	if got != "t5" {
		t.Errorf("table = %q, want t5", got)
	}
}

func TestFindTableBusSaysNone(t *testing.T) {
	var restCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		restCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"tables":[{"id":"t9","capacity":8}]}}`))
	}))
	defer srv.Close()

	finder := broker.New[events.FindAvailableTableResponse]("table-find")
	pub := &fakePublisher{}
	pub.onPublish = func(_, key, _ string, _ any) {
		finder.Deliver(key, events.FindAvailableTableResponse{CorrelationID: key, Success: true})
	}
	s := NewTableAssignerService(pub, finder, newFakeCache(), &fakeConflicts{}, srv.URL, time.Second)

	got, err := s.FindTable(context.Background(), tableReservation())
	if err != nil {
		t.Fatalf("FindTable: %v", err)
	}
	// A definitive empty answer is final; the fallback must not run.
	if got != "" {
		t.Errorf("table = %q, want none", got)
	}
	if restCalls.Load() != 0 {
		t.Errorf("REST fallback called %d times after a definitive bus answer", restCalls.Load())
	}
}

func TestFindTableRESTFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/restaurants/r1/tables/available" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"tables":[
			{"id":"t1","capacity":2},
			{"id":"t2","capacity":6},
			{"id":"t3","capacity":6},
			{"id":"t4","capacity":4}
		]}}`))
	}))
	defer srv.Close()

	cache := newFakeCache()
	cache.status["t2"] = model.TableReserved
	conflicts := &fakeConflicts{conflicting: map[string][]model.Reservation{
		"t3": {{ID: "other"}},
	}}

	// No bus consumer delivers, so the primary path times out.
	finder := broker.New[events.FindAvailableTableResponse]("table-find")
	s := NewTableAssignerService(&fakePublisher{}, finder, cache, conflicts, srv.URL, 50*time.Millisecond)

	got, err := s.FindTable(context.Background(), tableReservation())
	if err != nil {
		t.Fatalf("FindTable: %v", err)
	}
	// t1 too small, t2 reserved in cache, t3 conflicting; first fit is t4.
	if got != "t4" {
		t.Errorf("table = %q, want t4", got)
	}
}

func TestFindTableRESTFallbackNone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"tables":[]}}`))
	}))
	defer srv.Close()

	finder := broker.New[events.FindAvailableTableResponse]("table-find")
	s := NewTableAssignerService(&fakePublisher{}, finder, newFakeCache(), &fakeConflicts{}, srv.URL, 50*time.Millisecond)

	got, err := s.FindTable(context.Background(), tableReservation())
	if err != nil {
		t.Fatalf("FindTable: %v", err)
	}
	if got != "" {
		t.Errorf("table = %q, want none", got)
	}
}

func TestMarkReservedUpdatesCacheBeforeEvent(t *testing.T) {
	cache := newFakeCache()
	pub := &fakePublisher{}
	var statusAtPublish *model.TableStatus
	pub.onPublish = func(topic, _, _ string, _ any) {
		if topic == events.TopicTableStatus {
			statusAtPublish = cache.Get(context.Background(), "t1")
		}
	}

	finder := broker.New[events.FindAvailableTableResponse]("table-find")
	s := NewTableAssignerService(pub, finder, cache, &fakeConflicts{}, "http://127.0.0.1:1", time.Second)

	s.MarkReserved(context.Background(), "r1", "t1", "res-1")

	if statusAtPublish == nil || *statusAtPublish != model.TableReserved {
		t.Errorf("cache at publish time = %v, want RESERVED already set", statusAtPublish)
	}
	evts := pub.byTopic(events.TopicTableStatus)
	if len(evts) != 1 {
		t.Fatalf("status events = %d, want 1", len(evts))
	}
	evt := evts[0].payload.(events.TableStatusChanged)
	if evt.NewStatus != string(model.TableReserved) || evt.TableID != "t1" || evt.ReservationID != "res-1" {
		t.Errorf("event = %+v", evt)
	}
}

func TestReleaseTable(t *testing.T) {
	cache := newFakeCache()
	cache.status["t1"] = model.TableReserved
	pub := &fakePublisher{}

	finder := broker.New[events.FindAvailableTableResponse]("table-find")
	s := NewTableAssignerService(pub, finder, cache, &fakeConflicts{}, "http://127.0.0.1:1", time.Second)

	s.ReleaseTable(context.Background(), "r1", "t1", "res-1")

	if got := cache.Get(context.Background(), "t1"); got == nil || *got != model.TableAvailable {
		t.Errorf("cached status = %v, want AVAILABLE", got)
	}
	evts := pub.byTopic(events.TopicTableStatus)
	if len(evts) != 1 || evts[0].payload.(events.TableStatusChanged).NewStatus != string(model.TableAvailable) {
		t.Errorf("status events = %+v", evts)
	}
}
