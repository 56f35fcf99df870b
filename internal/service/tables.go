package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/rohan/tablebook/internal/broker"
	"github.com/rohan/tablebook/internal/events"
	"github.com/rohan/tablebook/internal/model"
)

// StatusCache is the last-known table status store. A nil Get result means
// the status is unknown, which callers must treat as possibly available.
type StatusCache interface {
	Get(ctx context.Context, tableID string) *model.TableStatus
	Put(ctx context.Context, tableID string, status model.TableStatus) error
}

// ConflictFinder checks for reservations already holding a table over a
// window.
type ConflictFinder interface {
	FindConflicting(ctx context.Context, restaurantID, tableID string, start, end time.Time) ([]model.Reservation, error)
}

// availableTablesResponse is the REST fallback payload from the restaurant
// service.
type availableTablesResponse struct {
	Data struct {
		Tables []struct {
			ID       string `json:"id"`
			Capacity int    `json:"capacity"`
			Status   string `json:"status,omitempty"`
		} `json:"tables"`
	} `json:"data"`
}

// TableAssignerService finds a concrete table for a reservation. The bus
// request/response path is primary; when it times out or fails, the service
// falls back to the restaurant's REST endpoint and applies the same local
// filters (capacity, cached status, conflicting holds) on the candidates.
type TableAssignerService struct {
	publisher EventPublisher
	finder    *broker.Broker[events.FindAvailableTableResponse]
	cache     StatusCache
	conflicts ConflictFinder
	rest      *resty.Client
	timeout   time.Duration
}

// NewTableAssignerService creates a new table assigner. baseURL is the
// restaurant service root for the REST fallback.
func NewTableAssignerService(
	publisher EventPublisher,
	finder *broker.Broker[events.FindAvailableTableResponse],
	cache StatusCache,
	conflicts ConflictFinder,
	baseURL string,
	timeout time.Duration,
) *TableAssignerService {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond)
	return &TableAssignerService{
		publisher: publisher,
		finder:    finder,
		cache:     cache,
		conflicts: conflicts,
		rest:      client,
		timeout:   timeout,
	}
}

// FindTable returns the id of a table that can seat the reservation, or ""
// when none exists. It never errors on a plain "nothing available" outcome;
// errors are reserved for infrastructure failures on both paths.
func (s *TableAssignerService) FindTable(ctx context.Context, r *model.Reservation) (string, error) {
	tableID, err := s.findViaBus(ctx, r)
	if err == nil {
		return tableID, nil
	}
	log.Printf("[tables] bus lookup for reservation %s failed (%v), trying REST fallback", r.ID, err)

	tableID, restErr := s.findViaREST(ctx, r)
	if restErr != nil {
		return "", fmt.Errorf("tables: both lookup paths failed: bus: %v; rest: %w", err, restErr)
	}
	return tableID, nil
}

func (s *TableAssignerService) findViaBus(ctx context.Context, r *model.Reservation) (string, error) {
	correlationID := uuid.NewString()
	if err := s.finder.Register(correlationID); err != nil {
		return "", fmt.Errorf("tables: register %s: %w", correlationID, err)
	}

	req := events.FindAvailableTableRequest{
		ReservationID: r.ID,
		RestaurantID:  r.RestaurantID,
		StartTime:     r.ReservationTime,
		EndTime:       r.EndTime(),
		PartySize:     r.PartySize,
		CorrelationID: correlationID,
	}
	if err := s.publisher.Publish(ctx, events.TopicTableFindRequest, correlationID, "FindAvailableTableRequest", req); err != nil {
		s.finder.Cancel(correlationID, "publish failed")
		s.finder.Sweep()
		return "", fmt.Errorf("tables: publish find request: %w", err)
	}

	resp, err := s.finder.Wait(ctx, correlationID, s.timeout)
	if errors.Is(err, broker.ErrWaitTimeout) {
		return "", fmt.Errorf("tables: find request timed out after %s", s.timeout)
	}
	if err != nil {
		return "", fmt.Errorf("tables: wait for find response: %w", err)
	}

	if !resp.Success {
		return "", fmt.Errorf("tables: restaurant service reported: %s", resp.ErrorMessage)
	}
	// Success with an empty table id is a definitive "no table", not a
	// failure, so the fallback is not tried.
	return resp.TableID, nil
}

func (s *TableAssignerService) findViaREST(ctx context.Context, r *model.Reservation) (string, error) {
	var out availableTablesResponse
	resp, err := s.rest.R().
		SetContext(ctx).
		SetResult(&out).
		SetQueryParams(map[string]string{
			"startTime": r.ReservationTime.UTC().Format(time.RFC3339),
			"endTime":   r.EndTime().UTC().Format(time.RFC3339),
		}).
		Get(fmt.Sprintf("/api/restaurants/%s/tables/available", r.RestaurantID))
	if err != nil {
		return "", fmt.Errorf("tables: rest lookup: %w", err)
	}
	if !resp.IsSuccess() {
		return "", fmt.Errorf("tables: rest lookup returned %s", resp.Status())
	}

	for _, t := range out.Data.Tables {
		if t.Capacity < r.PartySize {
			continue
		}
		if cached := s.cache.Get(ctx, t.ID); cached != nil && *cached != model.TableAvailable {
			continue
		}
		conflicting, err := s.conflicts.FindConflicting(ctx, r.RestaurantID, t.ID, r.ReservationTime, r.EndTime())
		if err != nil {
			return "", fmt.Errorf("tables: conflict probe for %s: %w", t.ID, err)
		}
		if len(conflicting) > 0 {
			continue
		}
		// Candidates arrive in the restaurant's order; first fit keeps the
		// choice deterministic across retries.
		return t.ID, nil
	}
	return "", nil
}

// MarkReserved records a freshly assigned table: the local cache first, then
// the status event. Cache before event, so a racing reader on this node
// never sees the table as AVAILABLE after the assignment was decided.
func (s *TableAssignerService) MarkReserved(ctx context.Context, restaurantID, tableID, reservationID string) {
	s.setStatus(ctx, restaurantID, tableID, reservationID, model.TableAvailable, model.TableReserved)
}

// ReleaseTable returns a table to AVAILABLE after a cancellation,
// expiration or completion.
func (s *TableAssignerService) ReleaseTable(ctx context.Context, restaurantID, tableID, reservationID string) {
	s.setStatus(ctx, restaurantID, tableID, reservationID, model.TableReserved, model.TableAvailable)
}

func (s *TableAssignerService) setStatus(ctx context.Context, restaurantID, tableID, reservationID string, from, to model.TableStatus) {
	if err := s.cache.Put(ctx, tableID, to); err != nil {
		log.Printf("[tables] cache update for %s failed: %v", tableID, err)
	}
	evt := events.TableStatusChanged{
		RestaurantID:  restaurantID,
		TableID:       tableID,
		OldStatus:     string(from),
		NewStatus:     string(to),
		ReservationID: reservationID,
	}
	if err := s.publisher.Publish(ctx, events.TopicTableStatus, tableID, events.TypeTableStatusChanged, evt); err != nil {
		log.Printf("[tables] status event for %s failed: %v", tableID, err)
	}
}
