package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rohan/tablebook/internal/model"
)

// ReservationRepository handles the reservation aggregate: the row itself
// plus its history log and attached menu items.
//
// Every status transition runs in its own transaction, re-checks the
// current status under a row lock, and appends its history record in the
// same transaction. That is what makes the reconciler passes idempotent:
// a transition whose WHERE clause no longer matches affects zero rows and
// writes no history.
type ReservationRepository struct {
	pool *pgxpool.Pool
}

// NewReservationRepository creates a new reservation repository.
func NewReservationRepository(pool *pgxpool.Pool) *ReservationRepository {
	return &ReservationRepository{pool: pool}
}

const reservationColumns = `
	id, user_id, restaurant_id, table_id, reservation_time, duration_minutes,
	party_size, status, customer_name, customer_phone, customer_email,
	special_requests, reminders_enabled, confirmation_deadline, confirmed_at,
	cancelled_at, completed_at, cancellation_reason, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(row rowScanner) (*model.Reservation, error) {
	r := &model.Reservation{}
	var phone, email, requests, reason *string
	err := row.Scan(
		&r.ID, &r.UserID, &r.RestaurantID, &r.TableID, &r.ReservationTime,
		&r.DurationMinutes, &r.PartySize, &r.Status, &r.CustomerName,
		&phone, &email, &requests, &r.RemindersEnabled,
		&r.ConfirmationDeadline, &r.ConfirmedAt, &r.CancelledAt,
		&r.CompletedAt, &reason, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if phone != nil {
		r.CustomerPhone = *phone
	}
	if email != nil {
		r.CustomerEmail = *email
	}
	if requests != nil {
		r.SpecialRequests = *requests
	}
	if reason != nil {
		r.CancellationReason = *reason
	}
	return r, nil
}

// ─── Aggregate reads ────────────────────────────────────────

// FindByID loads the full aggregate: the reservation plus its history and
// menu items. Returns nil when no row exists.
func (r *ReservationRepository) FindByID(ctx context.Context, id string) (*model.Reservation, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = $1`, id)
	res, err := scanReservation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reservation: find %s: %w", id, err)
	}

	hrows, err := r.pool.Query(ctx, `
		SELECT id, reservation_id, action, ts, COALESCE(details, ''), performed_by
		FROM reservation_history
		WHERE reservation_id = $1
		ORDER BY ts, id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("reservation: load history for %s: %w", id, err)
	}
	defer hrows.Close()
	for hrows.Next() {
		h := model.HistoryRecord{}
		if err := hrows.Scan(&h.ID, &h.ReservationID, &h.Action, &h.Timestamp, &h.Details, &h.PerformedBy); err != nil {
			return nil, fmt.Errorf("reservation: scan history: %w", err)
		}
		res.History = append(res.History, h)
	}
	if err := hrows.Err(); err != nil {
		return nil, fmt.Errorf("reservation: history rows: %w", err)
	}

	mrows, err := r.pool.Query(ctx, `
		SELECT id, reservation_id, menu_item_id, quantity,
		       COALESCE(special_instructions, ''), price_cents, created_at, updated_at
		FROM reservation_menu_items
		WHERE reservation_id = $1
		ORDER BY id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("reservation: load menu items for %s: %w", id, err)
	}
	defer mrows.Close()
	for mrows.Next() {
		m := model.ReservationMenuItem{}
		if err := mrows.Scan(&m.ID, &m.ReservationID, &m.MenuItemID, &m.Quantity,
			&m.SpecialInstructions, &m.PriceCents, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("reservation: scan menu item: %w", err)
		}
		res.MenuItems = append(res.MenuItems, m)
	}
	if err := mrows.Err(); err != nil {
		return nil, fmt.Errorf("reservation: menu item rows: %w", err)
	}

	return res, nil
}

func (r *ReservationRepository) queryMany(ctx context.Context, query string, args ...any) ([]model.Reservation, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	return out, rows.Err()
}

// PageByUser lists a user's reservations newest-first. History and menu
// items are omitted on list queries.
func (r *ReservationRepository) PageByUser(ctx context.Context, userID string, limit, offset int) ([]model.Reservation, error) {
	out, err := r.queryMany(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE user_id = $1
		ORDER BY reservation_time DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("reservation: page by user %s: %w", userID, err)
	}
	return out, nil
}

// PageByRestaurant lists a restaurant's reservations soonest-first.
func (r *ReservationRepository) PageByRestaurant(ctx context.Context, restaurantID string, limit, offset int) ([]model.Reservation, error) {
	out, err := r.queryMany(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE restaurant_id = $1
		ORDER BY reservation_time ASC
		LIMIT $2 OFFSET $3
	`, restaurantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("reservation: page by restaurant %s: %w", restaurantID, err)
	}
	return out, nil
}

// FindExpiredPending returns reservations still PENDING whose confirmation
// deadline has passed.
func (r *ReservationRepository) FindExpiredPending(ctx context.Context, asOf time.Time) ([]model.Reservation, error) {
	out, err := r.queryMany(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE status = $1 AND confirmation_deadline < $2
	`, model.StatusPending, asOf)
	if err != nil {
		return nil, fmt.Errorf("reservation: find expired pending: %w", err)
	}
	return out, nil
}

// FindUncompletedPast returns CONFIRMED reservations whose end time is
// before asOf.
func (r *ReservationRepository) FindUncompletedPast(ctx context.Context, asOf time.Time) ([]model.Reservation, error) {
	out, err := r.queryMany(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE status = $1
		  AND reservation_time + make_interval(mins => duration_minutes) < $2
	`, model.StatusConfirmed, asOf)
	if err != nil {
		return nil, fmt.Errorf("reservation: find uncompleted past: %w", err)
	}
	return out, nil
}

// FindConflicting returns live reservations on the given table whose
// [reservation_time, end_time) window overlaps [start, end).
func (r *ReservationRepository) FindConflicting(ctx context.Context, restaurantID, tableID string, start, end time.Time) ([]model.Reservation, error) {
	out, err := r.queryMany(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE restaurant_id = $1
		  AND table_id = $2
		  AND status IN ($3, $4)
		  AND reservation_time < $6
		  AND reservation_time + make_interval(mins => duration_minutes) > $5
	`, restaurantID, tableID, model.StatusPending, model.StatusConfirmed, start, end)
	if err != nil {
		return nil, fmt.Errorf("reservation: find conflicting on table %s: %w", tableID, err)
	}
	return out, nil
}

// ─── Writes ─────────────────────────────────────────────────

// Create inserts the reservation row, its CREATED history record and any
// pre-resolved menu items from res.MenuItems, all in one transaction. The
// aggregate either lands complete or not at all; a half-created reservation
// without its CREATED record can never be observed.
func (r *ReservationRepository) Create(ctx context.Context, res *model.Reservation, at time.Time) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("reservation: begin create tx: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO reservations (
			id, user_id, restaurant_id, table_id, reservation_time,
			duration_minutes, party_size, status, customer_name,
			customer_phone, customer_email, special_requests,
			reminders_enabled, confirmation_deadline
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9,
		        NULLIF($10, ''), NULLIF($11, ''), NULLIF($12, ''), $13, $14)
		RETURNING created_at, updated_at
	`, res.ID, res.UserID, res.RestaurantID, res.TableID, res.ReservationTime,
		res.DurationMinutes, res.PartySize, res.Status, res.CustomerName,
		res.CustomerPhone, res.CustomerEmail, res.SpecialRequests,
		res.RemindersEnabled, res.ConfirmationDeadline,
	).Scan(&res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		return fmt.Errorf("reservation: create %s: %w", res.ID, err)
	}

	h := &model.HistoryRecord{
		ReservationID: res.ID,
		Action:        model.ActionCreated,
		Timestamp:     at,
		PerformedBy:   res.UserID,
	}
	if err := appendHistoryTx(ctx, tx, h); err != nil {
		return fmt.Errorf("reservation: create history for %s: %w", res.ID, err)
	}

	if err := attachMenuItemsTx(ctx, tx, res.ID, res.MenuItems); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("reservation: commit create: %w", err)
	}
	res.History = []model.HistoryRecord{*h}
	return nil
}

// Delete removes the aggregate; history and menu items cascade. Used only
// to unwind a half-created reservation when no table could be assigned.
func (r *ReservationRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM reservations WHERE id = $1`, id); err != nil {
		return fmt.Errorf("reservation: delete %s: %w", id, err)
	}
	return nil
}

// AssignTable persists the assigned (or cleared) table id.
func (r *ReservationRepository) AssignTable(ctx context.Context, id string, tableID *string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE reservations SET table_id = $2, updated_at = now() WHERE id = $1
	`, id, tableID)
	if err != nil {
		return fmt.Errorf("reservation: assign table for %s: %w", id, err)
	}
	return nil
}

type execQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func appendHistoryTx(ctx context.Context, q execQuerier, h *model.HistoryRecord) error {
	return q.QueryRow(ctx, `
		INSERT INTO reservation_history (reservation_id, action, ts, details, performed_by)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)
		RETURNING id
	`, h.ReservationID, h.Action, h.Timestamp, h.Details, h.PerformedBy).Scan(&h.ID)
}

// Confirm transitions PENDING → CONFIRMED and appends the CONFIRMED history
// record in one transaction. Returns false when the reservation is no
// longer PENDING (someone else won the race).
func (r *ReservationRepository) Confirm(ctx context.Context, id string, at time.Time, performedBy string) (bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return false, fmt.Errorf("reservation: begin confirm tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE reservations
		SET status = $2, confirmed_at = $3, updated_at = now()
		WHERE id = $1 AND status = $4
	`, id, model.StatusConfirmed, at, model.StatusPending)
	if err != nil {
		return false, fmt.Errorf("reservation: confirm %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	h := &model.HistoryRecord{
		ReservationID: id,
		Action:        model.ActionConfirmed,
		Timestamp:     at,
		PerformedBy:   performedBy,
	}
	if err := appendHistoryTx(ctx, tx, h); err != nil {
		return false, fmt.Errorf("reservation: confirm history for %s: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("reservation: commit confirm: %w", err)
	}
	return true, nil
}

// Cancel transitions a live reservation to CANCELLED, clears its table and
// appends the CANCELLED history record, all in one transaction. Returns
// the status the reservation had before the cancel; ok=false means it was
// already terminal and nothing changed.
func (r *ReservationRepository) Cancel(ctx context.Context, id, reason, performedBy string, at time.Time) (prev model.ReservationStatus, ok bool, err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return "", false, fmt.Errorf("reservation: begin cancel tx: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		SELECT status FROM reservations WHERE id = $1 FOR UPDATE
	`, id).Scan(&prev)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reservation: lock %s: %w", id, err)
	}
	if prev.IsTerminal() {
		return prev, false, nil
	}

	_, err = tx.Exec(ctx, `
		UPDATE reservations
		SET status = $2, cancelled_at = $3, cancellation_reason = NULLIF($4, ''),
		    table_id = NULL, updated_at = now()
		WHERE id = $1
	`, id, model.StatusCancelled, at, reason)
	if err != nil {
		return prev, false, fmt.Errorf("reservation: cancel %s: %w", id, err)
	}

	h := &model.HistoryRecord{
		ReservationID: id,
		Action:        model.ActionCancelled,
		Timestamp:     at,
		Details:       reason,
		PerformedBy:   performedBy,
	}
	if err := appendHistoryTx(ctx, tx, h); err != nil {
		return prev, false, fmt.Errorf("reservation: cancel history for %s: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return prev, false, fmt.Errorf("reservation: commit cancel: %w", err)
	}
	return prev, true, nil
}

// CancelExpired is the reconciler's variant of Cancel: it only fires while
// the reservation is still PENDING and its deadline is in the past, so
// re-running the pass (or racing an interactive confirm) is a no-op.
func (r *ReservationRepository) CancelExpired(ctx context.Context, id, reason string, at time.Time) (bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return false, fmt.Errorf("reservation: begin expire tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE reservations
		SET status = $2, cancelled_at = $3, cancellation_reason = $4,
		    table_id = NULL, updated_at = now()
		WHERE id = $1 AND status = $5 AND confirmation_deadline < $3
	`, id, model.StatusCancelled, at, reason, model.StatusPending)
	if err != nil {
		return false, fmt.Errorf("reservation: expire %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	h := &model.HistoryRecord{
		ReservationID: id,
		Action:        model.ActionCancelled,
		Timestamp:     at,
		Details:       reason,
		PerformedBy:   model.SystemPerformer,
	}
	if err := appendHistoryTx(ctx, tx, h); err != nil {
		return false, fmt.Errorf("reservation: expire history for %s: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("reservation: commit expire: %w", err)
	}
	return true, nil
}

// Complete transitions CONFIRMED to the given terminal status (COMPLETED,
// or NO_SHOW when a policy hook says so) and appends the matching history
// record. Returns false when the reservation is no longer CONFIRMED.
func (r *ReservationRepository) Complete(ctx context.Context, id string, status model.ReservationStatus, at time.Time) (bool, error) {
	action := model.ActionCompleted
	if status == model.StatusNoShow {
		action = model.ActionNoShow
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return false, fmt.Errorf("reservation: begin complete tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE reservations
		SET status = $2, completed_at = $3, table_id = NULL, updated_at = now()
		WHERE id = $1 AND status = $4
	`, id, status, at, model.StatusConfirmed)
	if err != nil {
		return false, fmt.Errorf("reservation: complete %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	h := &model.HistoryRecord{
		ReservationID: id,
		Action:        action,
		Timestamp:     at,
		PerformedBy:   model.SystemPerformer,
	}
	if err := appendHistoryTx(ctx, tx, h); err != nil {
		return false, fmt.Errorf("reservation: complete history for %s: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("reservation: commit complete: %w", err)
	}
	return true, nil
}

// UpdateDetails persists the patchable fields and appends a MODIFIED
// history record describing the old→new pairs, in one transaction.
func (r *ReservationRepository) UpdateDetails(ctx context.Context, res *model.Reservation, details, performedBy string, at time.Time) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("reservation: begin update tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE reservations
		SET reservation_time = $2, duration_minutes = $3, party_size = $4,
		    customer_name = $5, customer_phone = NULLIF($6, ''),
		    customer_email = NULLIF($7, ''), special_requests = NULLIF($8, ''),
		    reminders_enabled = $9, table_id = $10, updated_at = now()
		WHERE id = $1
	`, res.ID, res.ReservationTime, res.DurationMinutes, res.PartySize,
		res.CustomerName, res.CustomerPhone, res.CustomerEmail,
		res.SpecialRequests, res.RemindersEnabled, res.TableID)
	if err != nil {
		return fmt.Errorf("reservation: update %s: %w", res.ID, err)
	}

	h := &model.HistoryRecord{
		ReservationID: res.ID,
		Action:        model.ActionModified,
		Timestamp:     at,
		Details:       details,
		PerformedBy:   performedBy,
	}
	if err := appendHistoryTx(ctx, tx, h); err != nil {
		return fmt.Errorf("reservation: update history for %s: %w", res.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("reservation: commit update: %w", err)
	}
	return nil
}

func attachMenuItemsTx(ctx context.Context, tx pgx.Tx, id string, items []model.ReservationMenuItem) error {
	for i := range items {
		m := &items[i]
		err := tx.QueryRow(ctx, `
			INSERT INTO reservation_menu_items
				(reservation_id, menu_item_id, quantity, special_instructions, price_cents)
			VALUES ($1, $2, $3, NULLIF($4, ''), $5)
			RETURNING id, created_at, updated_at
		`, id, m.MenuItemID, m.Quantity, m.SpecialInstructions, m.PriceCents,
		).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
		if err != nil {
			return fmt.Errorf("reservation: attach item %s: %w", m.MenuItemID, err)
		}
	}
	return nil
}

// AddMenuItems attaches the already-resolved items and appends the
// MENU_ITEMS_ADDED history record, in one transaction.
func (r *ReservationRepository) AddMenuItems(ctx context.Context, id string, items []model.ReservationMenuItem, performedBy string, at time.Time) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("reservation: begin menu tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := attachMenuItemsTx(ctx, tx, id, items); err != nil {
		return err
	}

	h := &model.HistoryRecord{
		ReservationID: id,
		Action:        model.ActionMenuItemsAdded,
		Timestamp:     at,
		Details:       fmt.Sprintf("Added %d menu item(s)", len(items)),
		PerformedBy:   performedBy,
	}
	if err := appendHistoryTx(ctx, tx, h); err != nil {
		return fmt.Errorf("reservation: menu history for %s: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("reservation: commit menu items: %w", err)
	}
	return nil
}

// DeleteTerminalOlderThan removes terminal reservations whose reservation
// time is older than the retention cutoff. History and menu items cascade.
func (r *ReservationRepository) DeleteTerminalOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM reservations
		WHERE status IN ($1, $2, $3) AND reservation_time < $4
	`, model.StatusCancelled, model.StatusCompleted, model.StatusNoShow, cutoff)
	if err != nil {
		return 0, fmt.Errorf("reservation: cleanup: %w", err)
	}
	return tag.RowsAffected(), nil
}
