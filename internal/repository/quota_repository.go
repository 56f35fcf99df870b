// Package repository provides database access for the reservation core.
//
// QuotaRepository owns the per-slot capacity counters with pessimistic
// locking (SELECT ... FOR UPDATE) so that concurrent reservations for the
// same slot serialize at the database.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rohan/tablebook/internal/model"
)

// QuotaResult is the outcome of a TryReserve or Check.
type QuotaResult int

const (
	// QuotaOK means the slot accepted the reservation (or would, for Check).
	QuotaOK QuotaResult = iota
	// QuotaUnavailable means the slot's reservation count or threshold is
	// exhausted.
	QuotaUnavailable
	// QuotaCannotAccommodate means the party does not fit the remaining
	// seat capacity.
	QuotaCannotAccommodate
)

// Defaults applied when a quota row is created implicitly on first use.
// Arbitrary for now; a later revision will derive them from the schedule
// store.
const (
	defaultMaxReservations = 10
	defaultMaxCapacity     = 100
)

// QuotaRepository manipulates reservation_quotas rows atomically.
type QuotaRepository struct {
	pool *pgxpool.Pool
}

// NewQuotaRepository creates a new quota repository.
func NewQuotaRepository(pool *pgxpool.Pool) *QuotaRepository {
	return &QuotaRepository{pool: pool}
}

// Get returns the quota row for a slot, or nil when none exists yet.
func (r *QuotaRepository) Get(ctx context.Context, restaurantID, date, timeSlot string) (*model.ReservationQuota, error) {
	q := &model.ReservationQuota{}
	err := r.pool.QueryRow(ctx, `
		SELECT restaurant_id, quota_date, time_slot,
		       max_reservations, current_reservations,
		       max_capacity, current_capacity, threshold_percentage
		FROM reservation_quotas
		WHERE restaurant_id = $1 AND quota_date = $2 AND time_slot = $3
	`, restaurantID, date, timeSlot).Scan(
		&q.RestaurantID, &q.Date, &q.TimeSlot,
		&q.MaxReservations, &q.CurrentReservations,
		&q.MaxCapacity, &q.CurrentCapacity, &q.ThresholdPercentage,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("quota: get (%s, %s, %s): %w", restaurantID, date, timeSlot, err)
	}
	return q, nil
}

// TryReserve atomically claims one reservation and partySize capacity in
// the slot.
//
// Concurrency strategy: PESSIMISTIC LOCKING, same as the reservation
// transitions. The row is created with defaults if missing (ON CONFLICT DO
// NOTHING keeps that race-free), then locked with FOR UPDATE, validated and
// updated inside one transaction. Two concurrent TryReserve calls for the
// last unit of capacity serialize on the row lock; the loser re-reads the
// updated counters and fails cleanly.
func (r *QuotaRepository) TryReserve(ctx context.Context, restaurantID, date, timeSlot string, partySize int) (QuotaResult, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return QuotaUnavailable, fmt.Errorf("quota: begin tx: %w", err)
	}
	// Defer rollback — no-op if tx was already committed.
	defer tx.Rollback(ctx)

	// Implicit row creation on first use.
	_, err = tx.Exec(ctx, `
		INSERT INTO reservation_quotas (restaurant_id, quota_date, time_slot, max_reservations, max_capacity)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (restaurant_id, quota_date, time_slot) DO NOTHING
	`, restaurantID, date, timeSlot, defaultMaxReservations, defaultMaxCapacity)
	if err != nil {
		return QuotaUnavailable, fmt.Errorf("quota: ensure row: %w", err)
	}

	q := &model.ReservationQuota{}
	err = tx.QueryRow(ctx, `
		SELECT max_reservations, current_reservations,
		       max_capacity, current_capacity, threshold_percentage
		FROM reservation_quotas
		WHERE restaurant_id = $1 AND quota_date = $2 AND time_slot = $3
		FOR UPDATE
	`, restaurantID, date, timeSlot).Scan(
		&q.MaxReservations, &q.CurrentReservations,
		&q.MaxCapacity, &q.CurrentCapacity, &q.ThresholdPercentage,
	)
	if err != nil {
		return QuotaUnavailable, fmt.Errorf("quota: lock (%s, %s, %s): %w", restaurantID, date, timeSlot, err)
	}

	if !q.HasAvailability() {
		return QuotaUnavailable, nil
	}
	if !q.CanAccommodate(partySize) {
		return QuotaCannotAccommodate, nil
	}

	_, err = tx.Exec(ctx, `
		UPDATE reservation_quotas
		SET current_reservations = current_reservations + 1,
		    current_capacity     = current_capacity + $4
		WHERE restaurant_id = $1 AND quota_date = $2 AND time_slot = $3
	`, restaurantID, date, timeSlot, partySize)
	if err != nil {
		return QuotaUnavailable, fmt.Errorf("quota: increment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return QuotaUnavailable, fmt.Errorf("quota: commit: %w", err)
	}
	return QuotaOK, nil
}

// Release atomically returns one reservation and partySize capacity to the
// slot, clamped at zero. Releasing a slot that has no row is a no-op —
// quota release must be infallible, drift here corrupts every availability
// decision downstream.
func (r *QuotaRepository) Release(ctx context.Context, restaurantID, date, timeSlot string, partySize int) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE reservation_quotas
		SET current_reservations = GREATEST(0, current_reservations - 1),
		    current_capacity     = GREATEST(0, current_capacity - $4)
		WHERE restaurant_id = $1 AND quota_date = $2 AND time_slot = $3
	`, restaurantID, date, timeSlot, partySize)
	if err != nil {
		return fmt.Errorf("quota: release (%s, %s, %s): %w", restaurantID, date, timeSlot, err)
	}
	return nil
}

// Check is a read-only availability probe; it never mutates the row. A
// missing row probes against the implicit defaults.
func (r *QuotaRepository) Check(ctx context.Context, restaurantID, date, timeSlot string, partySize int) (QuotaResult, error) {
	q, err := r.Get(ctx, restaurantID, date, timeSlot)
	if err != nil {
		return QuotaUnavailable, err
	}
	if q == nil {
		q = &model.ReservationQuota{
			MaxReservations:     defaultMaxReservations,
			MaxCapacity:         defaultMaxCapacity,
			ThresholdPercentage: 100,
		}
	}
	if !q.HasAvailability() {
		return QuotaUnavailable, nil
	}
	if !q.CanAccommodate(partySize) {
		return QuotaCannotAccommodate, nil
	}
	return QuotaOK, nil
}
