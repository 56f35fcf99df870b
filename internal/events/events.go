// Package events defines the message-bus surface of the reservation core:
// topic names, consumer group ids, and the JSON payloads exchanged with the
// restaurant, table-inventory and user services.
//
// Wire format: JSON values with a "type" record header carrying the logical
// event name. Request/response pairs carry a correlationId field which is
// also used as the Kafka message key, so responses partition the same way
// as their requests.
package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// ─── Topics ─────────────────────────────────────────────────

const (
	// Outbound lifecycle events.
	TopicReservationCreate = "reservation.create"
	TopicReservationUpdate = "reservation.update"
	TopicReservationCancel = "reservation.cancel"
	TopicReservationEvents = "reservation.events"
	TopicTableStatus       = "table.status"

	// Request/response pairs with the restaurant service.
	TopicTableFindRequest          = "table.find.request"
	TopicTableFindResponse         = "table.find.response"
	TopicRestaurantValidationReq   = "restaurant.validation.request"
	TopicRestaurantValidationResp  = "restaurant.validation.response"
	TopicTimeValidationRequest     = "restaurant.time-validation.request"
	TopicTimeValidationResponse    = "restaurant.time-validation.response"
	TopicRestaurantSearchRequest   = "restaurant.search.request"
	TopicRestaurantSearchResponse  = "restaurant.search.response"
	TopicRestaurantOwnershipReq    = "restaurant.ownership.request"
	TopicRestaurantOwnershipResp   = "restaurant.ownership.response"

	// Inbound projections / audit.
	TopicMenuItemEvents = "menu.item.events"
	TopicUserEvents     = "user.events"
)

// Consumer group suffixes; the full group id is "<base><suffix>" so each
// event kind consumes independently and a stalled kind cannot hold back the
// others.
const (
	GroupUser                = "-user"
	GroupTableAvailability   = "-table-availability"
	GroupRestaurantValidation = "-restaurant-validation"
	GroupTimeValidation      = "-time-validation"
	GroupRestaurantOwnership = "-restaurant-ownership"
	GroupRestaurantSearch    = "-restaurant-search"
	GroupMenuItem            = "-menu-item"
	GroupTableStatus         = "-table-status"
)

// ─── Event type names (the "type" record header) ────────────

const (
	TypeReservationCreated   = "ReservationCreated"
	TypeReservationModified  = "ReservationModified"
	TypeReservationCancelled = "ReservationCancelled"
	TypeReservationConfirmed = "ReservationConfirmed"
	TypeTableAssigned        = "TableAssigned"
	TypeTableStatusChanged   = "TableStatusChanged"

	TypeMenuItemCreated = "MenuItemCreated"
	TypeMenuItemUpdated = "MenuItemUpdated"
	TypeMenuItemDeleted = "MenuItemDeleted"
)

// ─── Outbound payloads ──────────────────────────────────────

// ReservationCreated is published on reservation.create, keyed by the
// reservation id.
type ReservationCreated struct {
	ReservationID   string    `json:"reservationId"`
	RestaurantID    string    `json:"restaurantId"`
	UserID          string    `json:"userId"`
	ReservationTime time.Time `json:"reservationTime"`
	PartySize       int       `json:"partySize"`
	TableID         string    `json:"tableId,omitempty"`
}

// ReservationModified is published on reservation.update.
type ReservationModified struct {
	ReservationID      string    `json:"reservationId"`
	RestaurantID       string    `json:"restaurantId"`
	UserID             string    `json:"userId"`
	OldReservationTime time.Time `json:"oldReservationTime"`
	NewReservationTime time.Time `json:"newReservationTime"`
	OldPartySize       int       `json:"oldPartySize"`
	NewPartySize       int       `json:"newPartySize"`
}

// ReservationCancelled is published on reservation.cancel.
type ReservationCancelled struct {
	ReservationID  string `json:"reservationId"`
	RestaurantID   string `json:"restaurantId"`
	UserID         string `json:"userId"`
	PreviousStatus string `json:"previousStatus"`
	Reason         string `json:"reason,omitempty"`
}

// ReservationConfirmed is published on reservation.events.
type ReservationConfirmed struct {
	ReservationID string `json:"reservationId"`
	RestaurantID  string `json:"restaurantId"`
	UserID        string `json:"userId"`
	TableID       string `json:"tableId,omitempty"`
}

// TableStatusChanged travels on table.status in both directions: the core
// emits it when assigning/releasing a table and consumes it to keep the
// table-status cache warm.
type TableStatusChanged struct {
	RestaurantID  string `json:"restaurantId"`
	TableID       string `json:"tableId"`
	OldStatus     string `json:"oldStatus,omitempty"`
	NewStatus     string `json:"newStatus"`
	ReservationID string `json:"reservationId,omitempty"`
}

// ─── Request/response payloads ──────────────────────────────

// FindAvailableTableRequest is published on table.find.request, keyed by
// the correlation id.
type FindAvailableTableRequest struct {
	ReservationID string    `json:"reservationId"`
	RestaurantID  string    `json:"restaurantId"`
	StartTime     time.Time `json:"startTime"`
	EndTime       time.Time `json:"endTime"`
	PartySize     int       `json:"partySize"`
	CorrelationID string    `json:"correlationId"`
}

// FindAvailableTableResponse arrives on table.find.response.
type FindAvailableTableResponse struct {
	CorrelationID string `json:"correlationId"`
	Success       bool   `json:"success"`
	TableID       string `json:"tableId,omitempty"`
	ErrorMessage  string `json:"errorMessage,omitempty"`
}

// RestaurantValidationRequest asks whether a restaurant exists and is
// active.
type RestaurantValidationRequest struct {
	RestaurantID  string `json:"restaurantId"`
	CorrelationID string `json:"correlationId"`
}

// RestaurantValidationResponse arrives on restaurant.validation.response.
type RestaurantValidationResponse struct {
	CorrelationID string `json:"correlationId"`
	RestaurantID  string `json:"restaurantId"`
	Exists        bool   `json:"exists"`
	Active        bool   `json:"active"`
	ErrorMessage  string `json:"errorMessage,omitempty"`
}

// ReservationTimeValidationRequest asks whether an instant falls inside the
// restaurant's operating hours. The time travels as an ISO-8601 instant.
type ReservationTimeValidationRequest struct {
	RestaurantID    string    `json:"restaurantId"`
	CorrelationID   string    `json:"correlationId"`
	ReservationTime time.Time `json:"reservationTime"`
}

// ReservationTimeValidationResponse arrives on
// restaurant.time-validation.response. An empty ErrorMessage means the time
// is acceptable.
type ReservationTimeValidationResponse struct {
	CorrelationID string `json:"correlationId"`
	RestaurantID  string `json:"restaurantId"`
	ErrorMessage  string `json:"errorMessage,omitempty"`
}

// RestaurantOwnershipRequest asks whether a user owns a restaurant.
type RestaurantOwnershipRequest struct {
	RestaurantID  string `json:"restaurantId"`
	UserID        string `json:"userId"`
	CorrelationID string `json:"correlationId"`
}

// RestaurantOwnershipResponse arrives on restaurant.ownership.response.
type RestaurantOwnershipResponse struct {
	CorrelationID string `json:"correlationId"`
	RestaurantID  string `json:"restaurantId"`
	UserID        string `json:"userId"`
	IsOwner       bool   `json:"isOwner"`
	ErrorMessage  string `json:"errorMessage,omitempty"`
}

// RestaurantSearchRequest is published on restaurant.search.request on
// behalf of search callers.
type RestaurantSearchRequest struct {
	Date          string   `json:"date"`
	Time          string   `json:"time"`
	PartySize     int      `json:"partySize"`
	Cuisine       string   `json:"cuisine,omitempty"`
	City          string   `json:"city,omitempty"`
	Latitude      *float64 `json:"lat,omitempty"`
	Longitude     *float64 `json:"lng,omitempty"`
	Distance      *float64 `json:"distance,omitempty"`
	RestaurantID  string   `json:"restaurantId,omitempty"`
	CorrelationID string   `json:"correlationId"`
}

// RestaurantDTO is the search result projection of a restaurant.
type RestaurantDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	CuisineType string `json:"cuisineType,omitempty"`
	City        string `json:"city,omitempty"`
	Address     string `json:"address,omitempty"`
	Active      bool   `json:"active"`
}

// RestaurantSearchResponse arrives on restaurant.search.response.
type RestaurantSearchResponse struct {
	CorrelationID string          `json:"correlationId"`
	Success       bool            `json:"success"`
	Restaurants   []RestaurantDTO `json:"restaurants,omitempty"`
	ErrorMessage  string          `json:"errorMessage,omitempty"`
}

// ─── Inbound projection payloads ────────────────────────────

// MenuItemEvent drives the local menu-item projection. The "type" header
// distinguishes create/update (upsert) from delete (deactivate).
type MenuItemEvent struct {
	ID           string `json:"id"`
	RestaurantID string `json:"restaurantId"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	PriceCents   int64  `json:"priceCents"`
	CategoryID   string `json:"categoryId,omitempty"`
	Available    bool   `json:"available"`
	Active       bool   `json:"active"`
}

// UserEvent is consumed for auditing only; unknown fields are ignored.
type UserEvent struct {
	UserID string `json:"userId"`
	Email  string `json:"email,omitempty"`
}

// Decode unmarshals a record value into a typed payload.
func Decode[T any](value []byte) (T, error) {
	var v T
	if err := json.Unmarshal(value, &v); err != nil {
		return v, fmt.Errorf("events: decode %T: %w", v, err)
	}
	return v, nil
}
