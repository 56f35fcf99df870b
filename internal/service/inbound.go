package service

import (
	"context"
	"log"

	"github.com/rohan/tablebook/internal/broker"
	"github.com/rohan/tablebook/internal/events"
	"github.com/rohan/tablebook/internal/model"
)

// Inbound event handlers. Each one backs a single consumer group; a handler
// that cannot make sense of a record logs and drops it, it never stalls the
// group.

// MenuItemProjectionStore writes the local menu-item projection.
// Implemented by repository.MenuItemRepository.
type MenuItemProjectionStore interface {
	Upsert(ctx context.Context, m *model.MenuItem) error
	Deactivate(ctx context.Context, id string) error
}

// NewMenuItemHandler keeps the menu-item projection in sync: create and
// update events upsert the row, delete events deactivate it.
func NewMenuItemHandler(store MenuItemProjectionStore) events.Handler {
	return func(ctx context.Context, eventType string, value []byte) {
		evt, err := events.Decode[events.MenuItemEvent](value)
		if err != nil {
			log.Printf("[inbound] bad menu item event: %v", err)
			return
		}
		if evt.ID == "" {
			log.Printf("[inbound] menu item event without id, dropping")
			return
		}

		switch eventType {
		case events.TypeMenuItemDeleted:
			if err := store.Deactivate(ctx, evt.ID); err != nil {
				log.Printf("[inbound] deactivate menu item %s: %v", evt.ID, err)
			}
		default:
			m := &model.MenuItem{
				ID:           evt.ID,
				RestaurantID: evt.RestaurantID,
				Name:         evt.Name,
				Description:  evt.Description,
				PriceCents:   evt.PriceCents,
				CategoryID:   evt.CategoryID,
				Available:    evt.Available,
				Active:       evt.Active,
			}
			if err := store.Upsert(ctx, m); err != nil {
				log.Printf("[inbound] upsert menu item %s: %v", evt.ID, err)
			}
		}
	}
}

// NewTableStatusHandler keeps the table-status cache warm from status
// events, including our own.
func NewTableStatusHandler(cache StatusCache) events.Handler {
	return func(ctx context.Context, eventType string, value []byte) {
		evt, err := events.Decode[events.TableStatusChanged](value)
		if err != nil {
			log.Printf("[inbound] bad table status event: %v", err)
			return
		}
		if evt.TableID == "" || evt.NewStatus == "" {
			log.Printf("[inbound] table status event missing table id or status, dropping")
			return
		}
		if err := cache.Put(ctx, evt.TableID, model.TableStatus(evt.NewStatus)); err != nil {
			log.Printf("[inbound] cache table %s status: %v", evt.TableID, err)
		}
	}
}

// NewUserAuditHandler logs user lifecycle events. The core keeps no user
// projection; the trail exists so reservation incidents can be correlated
// with account changes.
func NewUserAuditHandler() events.Handler {
	return func(_ context.Context, eventType string, value []byte) {
		evt, err := events.Decode[events.UserEvent](value)
		if err != nil {
			log.Printf("[inbound] bad user event: %v", err)
			return
		}
		log.Printf("[inbound] user event %s for user %s", eventType, evt.UserID)
	}
}

// NewResponseHandler routes a request/response record to its waiting
// caller via the correlation broker for that response kind.
func NewResponseHandler[T any](b *broker.Broker[T], correlationID func(T) string) events.Handler {
	return func(_ context.Context, eventType string, value []byte) {
		resp, err := events.Decode[T](value)
		if err != nil {
			log.Printf("[inbound] bad %s response: %v", eventType, err)
			return
		}
		id := correlationID(resp)
		if id == "" {
			log.Printf("[inbound] %s response without correlation id, dropping", eventType)
			return
		}
		b.Deliver(id, resp)
	}
}
