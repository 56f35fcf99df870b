// Package model contains domain models for the reservation core.
// These structs map to the PostgreSQL schema defined in migrations/001_create_schema.up.sql.
package model

import (
	"fmt"
	"regexp"
	"time"
)

// ─── Enums ──────────────────────────────────────────────────

// ReservationStatus is the lifecycle state of a reservation.
//
// Transitions:
//
//	PENDING   → CONFIRMED (by the creator, before the confirmation deadline)
//	PENDING   → CANCELLED (creator, owner, or the system past the deadline)
//	CONFIRMED → CANCELLED (creator or owner)
//	CONFIRMED → COMPLETED (system, once end_time + 1h has passed)
//	CONFIRMED → NO_SHOW   (policy hook, instead of COMPLETED)
//
// CANCELLED, COMPLETED and NO_SHOW are terminal.
type ReservationStatus string

const (
	StatusPending   ReservationStatus = "PENDING"
	StatusConfirmed ReservationStatus = "CONFIRMED"
	StatusCancelled ReservationStatus = "CANCELLED"
	StatusCompleted ReservationStatus = "COMPLETED"
	StatusNoShow    ReservationStatus = "NO_SHOW"
)

// IsTerminal reports whether no further transitions are allowed.
func (s ReservationStatus) IsTerminal() bool {
	return s == StatusCancelled || s == StatusCompleted || s == StatusNoShow
}

// TableStatus is the last-known state of a physical table.
// The core only ever treats it as a hint; the restaurant service is
// authoritative.
type TableStatus string

const (
	TableAvailable    TableStatus = "AVAILABLE"
	TableReserved     TableStatus = "RESERVED"
	TableOccupied     TableStatus = "OCCUPIED"
	TableOutOfService TableStatus = "OUT_OF_SERVICE"
)

// HistoryAction identifies what a history record documents.
type HistoryAction string

const (
	ActionCreated        HistoryAction = "CREATED"
	ActionConfirmed      HistoryAction = "CONFIRMED"
	ActionCancelled      HistoryAction = "CANCELLED"
	ActionModified       HistoryAction = "MODIFIED"
	ActionMenuItemsAdded HistoryAction = "MENU_ITEMS_ADDED"
	ActionCompleted      HistoryAction = "COMPLETED"
	ActionNoShow         HistoryAction = "NO_SHOW"
)

// SystemPerformer is the performed_by sentinel for changes made by the
// background reconciler rather than a user.
const SystemPerformer = "SYSTEM"

// ─── Domain Models ──────────────────────────────────────────

// Reservation maps to the `reservations` table. It is the aggregate root:
// history records and menu items belong to it exclusively and are removed
// with it.
type Reservation struct {
	ID              string            `json:"id"`
	UserID          string            `json:"user_id"`
	RestaurantID    string            `json:"restaurant_id"`
	TableID         *string           `json:"table_id,omitempty"`
	ReservationTime time.Time         `json:"reservation_time"`
	DurationMinutes int               `json:"duration_minutes"`
	PartySize       int               `json:"party_size"`
	Status          ReservationStatus `json:"status"`

	CustomerName    string `json:"customer_name"`
	CustomerPhone   string `json:"customer_phone,omitempty"`
	CustomerEmail   string `json:"customer_email,omitempty"`
	SpecialRequests string `json:"special_requests,omitempty"`
	RemindersEnabled bool  `json:"reminders_enabled"`

	ConfirmationDeadline time.Time  `json:"confirmation_deadline"`
	ConfirmedAt          *time.Time `json:"confirmed_at,omitempty"`
	CancelledAt          *time.Time `json:"cancelled_at,omitempty"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
	CancellationReason   string     `json:"cancellation_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Loaded eagerly by FindByID, omitted on list queries.
	History   []HistoryRecord       `json:"history,omitempty"`
	MenuItems []ReservationMenuItem `json:"menu_items,omitempty"`
}

// EndTime is always derived; it is never stored independently.
func (r *Reservation) EndTime() time.Time {
	return r.ReservationTime.Add(time.Duration(r.DurationMinutes) * time.Minute)
}

// HistoryRecord maps to the `reservation_history` table. Immutable after
// append.
type HistoryRecord struct {
	ID            int64         `json:"id"`
	ReservationID string        `json:"reservation_id"`
	Action        HistoryAction `json:"action"`
	Timestamp     time.Time     `json:"timestamp"`
	Details       string        `json:"details,omitempty"`
	PerformedBy   string        `json:"performed_by"`
}

// ReservationMenuItem maps to the `reservation_menu_items` table. The price
// is a snapshot in cents taken when the item was attached.
type ReservationMenuItem struct {
	ID                  int64     `json:"id"`
	ReservationID       string    `json:"reservation_id"`
	MenuItemID          string    `json:"menu_item_id"`
	Quantity            int       `json:"quantity"`
	SpecialInstructions string    `json:"special_instructions,omitempty"`
	PriceCents          int64     `json:"price_cents"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// MenuItem maps to the `menu_items` table. It is a local projection kept in
// sync from menu.item.* events and is read-only to the core.
type MenuItem struct {
	ID           string `json:"id"`
	RestaurantID string `json:"restaurant_id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	PriceCents   int64  `json:"price_cents"`
	CategoryID   string `json:"category_id,omitempty"`
	Available    bool   `json:"available"`
	Active       bool   `json:"active"`
}

// Attachable reports whether the item may still be added to a reservation.
func (m *MenuItem) Attachable() bool {
	return m.Active && m.Available
}

// ReservationQuota maps to the `reservation_quotas` table, unique by
// (restaurant_id, quota_date, time_slot).
type ReservationQuota struct {
	RestaurantID        string `json:"restaurant_id"`
	Date                string `json:"date"`      // "2006-01-02"
	TimeSlot            string `json:"time_slot"` // "15:04"
	MaxReservations     int    `json:"max_reservations"`
	CurrentReservations int    `json:"current_reservations"`
	MaxCapacity         int    `json:"max_capacity"`
	CurrentCapacity     int    `json:"current_capacity"`
	ThresholdPercentage int    `json:"threshold_percentage"`
}

// HasAvailability reports whether another reservation fits in the slot.
// The threshold comparison is strictly less-than.
func (q *ReservationQuota) HasAvailability() bool {
	if q.CurrentReservations >= q.MaxReservations {
		return false
	}
	if q.ThresholdPercentage == 100 {
		return true
	}
	return q.CurrentCapacity*100/q.MaxCapacity < q.ThresholdPercentage
}

// CanAccommodate reports whether a party of n still fits the capacity.
func (q *ReservationQuota) CanAccommodate(n int) bool {
	return q.CurrentCapacity+n <= q.MaxCapacity
}

// ─── Slots ──────────────────────────────────────────────────

const (
	SlotDateLayout = "2006-01-02"
	SlotTimeLayout = "15:04"
)

// SlotOf splits an instant into the (date, time-of-day) quota key. Quota
// keys are always derived in UTC so that the same instant maps to the same
// slot on every node.
func SlotOf(t time.Time) (date, slot string) {
	u := t.UTC()
	return u.Format(SlotDateLayout), u.Format(SlotTimeLayout)
}

// SlotDescriptor renders the human-readable "<date>, <time>" form used in
// capacity error messages.
func SlotDescriptor(date, slot string) string {
	return fmt.Sprintf("%s, %s", date, slot)
}

// ─── Validation helpers ─────────────────────────────────────

var (
	phoneRe = regexp.MustCompile(`^\+?[0-9]{7,15}$`)
	emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// ValidPhone reports whether s looks like a phone number (E.164-ish).
func ValidPhone(s string) bool { return phoneRe.MatchString(s) }

// ValidEmail reports whether s looks like an email address.
func ValidEmail(s string) bool { return emailRe.MatchString(s) }
