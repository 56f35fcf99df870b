package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rohan/tablebook/config"
	"github.com/rohan/tablebook/internal/events"
	"github.com/rohan/tablebook/internal/model"
	"github.com/rohan/tablebook/internal/repository"
)

// ─── Dependencies ───────────────────────────────────────────

// ReservationStore is the aggregate persistence surface the coordinator
// needs. Implemented by repository.ReservationRepository.
type ReservationStore interface {
	FindByID(ctx context.Context, id string) (*model.Reservation, error)
	PageByUser(ctx context.Context, userID string, limit, offset int) ([]model.Reservation, error)
	PageByRestaurant(ctx context.Context, restaurantID string, limit, offset int) ([]model.Reservation, error)
	Create(ctx context.Context, res *model.Reservation, at time.Time) error
	Delete(ctx context.Context, id string) error
	AssignTable(ctx context.Context, id string, tableID *string) error
	Confirm(ctx context.Context, id string, at time.Time, performedBy string) (bool, error)
	Cancel(ctx context.Context, id, reason, performedBy string, at time.Time) (model.ReservationStatus, bool, error)
	UpdateDetails(ctx context.Context, res *model.Reservation, details, performedBy string, at time.Time) error
	AddMenuItems(ctx context.Context, id string, items []model.ReservationMenuItem, performedBy string, at time.Time) error
}

// QuotaStore is the per-slot counter surface. Implemented by
// repository.QuotaRepository.
type QuotaStore interface {
	TryReserve(ctx context.Context, restaurantID, date, timeSlot string, partySize int) (repository.QuotaResult, error)
	Release(ctx context.Context, restaurantID, date, timeSlot string, partySize int) error
}

// MenuItemStore reads the local menu-item projection.
type MenuItemStore interface {
	FindByID(ctx context.Context, id string) (*model.MenuItem, error)
}

// RestaurantValidator asks the restaurant service about restaurants.
type RestaurantValidator interface {
	EnsureExistsAndActive(ctx context.Context, restaurantID string) error
	EnsureWithinOperatingHours(ctx context.Context, restaurantID string, at time.Time) error
	IsOwner(ctx context.Context, restaurantID, userID string) bool
}

// TableAssigner finds and releases physical tables.
type TableAssigner interface {
	FindTable(ctx context.Context, r *model.Reservation) (string, error)
	MarkReserved(ctx context.Context, restaurantID, tableID, reservationID string)
	ReleaseTable(ctx context.Context, restaurantID, tableID, reservationID string)
}

// ─── Requests ───────────────────────────────────────────────

// MenuItemSelection is one requested item; resolution against the local
// projection decides whether it actually attaches.
type MenuItemSelection struct {
	MenuItemID          string
	Quantity            int
	SpecialInstructions string
}

// CreateReservationRequest carries the caller's input for a new
// reservation. A zero DurationMinutes means the configured default session
// length.
type CreateReservationRequest struct {
	RestaurantID     string
	ReservationTime  time.Time
	DurationMinutes  int
	PartySize        int
	CustomerName     string
	CustomerPhone    string
	CustomerEmail    string
	SpecialRequests  string
	RemindersEnabled bool
	MenuItems        []MenuItemSelection
}

// UpdateReservationRequest is a patch: nil fields are left unchanged.
type UpdateReservationRequest struct {
	ReservationTime  *time.Time
	DurationMinutes  *int
	PartySize        *int
	CustomerName     *string
	CustomerPhone    *string
	CustomerEmail    *string
	SpecialRequests  *string
	RemindersEnabled *bool
}

// ─── Service ────────────────────────────────────────────────

// ReservationService coordinates the reservation lifecycle: create with
// quota claim and table assignment, confirm, cancel, update and menu-item
// attachment. Failures after the quota claim unwind it, so counters never
// drift on an aborted create.
type ReservationService struct {
	store     ReservationStore
	quotas    QuotaStore
	menu      MenuItemStore
	validator RestaurantValidator
	tables    TableAssigner
	publisher EventPublisher
	cfg       config.ReservationConfig
	now       func() time.Time
}

// NewReservationService creates a new reservation coordinator.
func NewReservationService(
	store ReservationStore,
	quotas QuotaStore,
	menu MenuItemStore,
	validator RestaurantValidator,
	tables TableAssigner,
	publisher EventPublisher,
	cfg config.ReservationConfig,
) *ReservationService {
	return &ReservationService{
		store:     store,
		quotas:    quotas,
		menu:      menu,
		validator: validator,
		tables:    tables,
		publisher: publisher,
		cfg:       cfg,
		now:       time.Now,
	}
}

// ─── Reads ──────────────────────────────────────────────────

// GetByID loads the full aggregate.
func (s *ReservationService) GetByID(ctx context.Context, id string) (*model.Reservation, error) {
	res, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, &NotFoundError{Resource: "reservation", ID: id}
	}
	return res, nil
}

// ListByUser pages a user's reservations newest-first.
func (s *ReservationService) ListByUser(ctx context.Context, userID string, limit, offset int) ([]model.Reservation, error) {
	return s.store.PageByUser(ctx, userID, normalizeLimit(limit), max(0, offset))
}

// ListByRestaurant pages a restaurant's reservations soonest-first.
func (s *ReservationService) ListByRestaurant(ctx context.Context, restaurantID string, limit, offset int) ([]model.Reservation, error) {
	return s.store.PageByRestaurant(ctx, restaurantID, normalizeLimit(limit), max(0, offset))
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return 20
	}
	return limit
}

// ─── Create ─────────────────────────────────────────────────

// Create books a new reservation for userID. On success the reservation is
// PENDING with a table assigned and the confirmation clock running.
func (s *ReservationService) Create(ctx context.Context, userID string, req CreateReservationRequest) (*model.Reservation, error) {
	now := s.now()

	if req.DurationMinutes == 0 {
		req.DurationMinutes = s.cfg.DefaultSessionLengthMinutes
	}
	if err := s.validateCreate(userID, req, now); err != nil {
		return nil, err
	}

	if err := s.validator.EnsureExistsAndActive(ctx, req.RestaurantID); err != nil {
		return nil, err
	}
	if err := s.validator.EnsureWithinOperatingHours(ctx, req.RestaurantID, req.ReservationTime); err != nil {
		return nil, err
	}

	date, slot := model.SlotOf(req.ReservationTime)
	result, err := s.quotas.TryReserve(ctx, req.RestaurantID, date, slot, req.PartySize)
	if err != nil {
		return nil, err
	}
	if result != repository.QuotaOK {
		return nil, capacityError(result, date, slot)
	}
	// The quota is claimed from here on; every failure path below has to
	// give it back.

	items, err := s.resolveMenuItems(ctx, req.RestaurantID, req.MenuItems)
	if err != nil {
		s.releaseQuota(ctx, req.RestaurantID, date, slot, req.PartySize)
		return nil, err
	}

	res := &model.Reservation{
		ID:                   uuid.NewString(),
		UserID:               userID,
		RestaurantID:         req.RestaurantID,
		ReservationTime:      req.ReservationTime,
		DurationMinutes:      req.DurationMinutes,
		PartySize:            req.PartySize,
		Status:               model.StatusPending,
		CustomerName:         req.CustomerName,
		CustomerPhone:        req.CustomerPhone,
		CustomerEmail:        req.CustomerEmail,
		SpecialRequests:      req.SpecialRequests,
		RemindersEnabled:     req.RemindersEnabled,
		ConfirmationDeadline: now.Add(time.Duration(s.cfg.ConfirmationExpirationMinutes) * time.Minute),
		MenuItems:            items,
	}
	// Row, CREATED history and menu items land in one store transaction;
	// a failure leaves nothing behind except the quota claim released here.
	if err := s.store.Create(ctx, res, now); err != nil {
		s.releaseQuota(ctx, req.RestaurantID, date, slot, req.PartySize)
		return nil, err
	}

	tableID, err := s.tables.FindTable(ctx, res)
	if err != nil || tableID == "" {
		if err != nil {
			log.Printf("[reservation] table lookup for %s failed: %v", res.ID, err)
		}
		if derr := s.store.Delete(ctx, res.ID); derr != nil {
			log.Printf("[reservation] unwind delete of %s failed: %v", res.ID, derr)
		}
		s.releaseQuota(ctx, req.RestaurantID, date, slot, req.PartySize)
		return nil, &CapacityError{Kind: NoSuitableTables, Slot: model.SlotDescriptor(date, slot)}
	}
	if err := s.store.AssignTable(ctx, res.ID, &tableID); err != nil {
		if derr := s.store.Delete(ctx, res.ID); derr != nil {
			log.Printf("[reservation] unwind delete of %s failed: %v", res.ID, derr)
		}
		s.releaseQuota(ctx, req.RestaurantID, date, slot, req.PartySize)
		return nil, err
	}
	res.TableID = &tableID
	s.tables.MarkReserved(ctx, res.RestaurantID, tableID, res.ID)

	evt := events.ReservationCreated{
		ReservationID:   res.ID,
		RestaurantID:    res.RestaurantID,
		UserID:          res.UserID,
		ReservationTime: res.ReservationTime,
		PartySize:       res.PartySize,
		TableID:         tableID,
	}
	if err := s.publisher.Publish(ctx, events.TopicReservationCreate, res.ID, events.TypeReservationCreated, evt); err != nil {
		log.Printf("[reservation] created event for %s failed: %v", res.ID, err)
	}

	return s.GetByID(ctx, res.ID)
}

func (s *ReservationService) validateCreate(userID string, req CreateReservationRequest, now time.Time) error {
	ve := &ValidationError{}
	if userID == "" {
		ve.Add("userId", "user id is required")
	}
	if req.RestaurantID == "" {
		ve.Add("restaurantId", "restaurant id is required")
	}
	if req.ReservationTime.IsZero() {
		ve.Add("reservationTime", "reservation time is required")
	}
	validateCommonFields(ve, req.CustomerName, req.CustomerPhone, req.CustomerEmail,
		req.SpecialRequests, req.PartySize, req.DurationMinutes, s.cfg.MaxPartySize)

	if !req.ReservationTime.IsZero() {
		s.validateTimeWindow(ve, req.ReservationTime, now)
	}

	if len(ve.Fields) > 0 {
		return ve
	}
	return nil
}

func (s *ReservationService) validateTimeWindow(ve *ValidationError, at, now time.Time) {
	minStart := now.Add(time.Duration(s.cfg.MinAdvanceBookingMinutes) * time.Minute)
	if at.Before(minStart) {
		ve.Add("reservationTime", fmt.Sprintf(
			"reservations require at least %d minutes advance booking", s.cfg.MinAdvanceBookingMinutes))
		return
	}
	maxStart := now.AddDate(0, 0, s.cfg.MaxFutureDays)
	if at.After(maxStart) {
		ve.Add("reservationTime", fmt.Sprintf(
			"reservations can be made at most %d days in advance", s.cfg.MaxFutureDays))
	}
}

func validateCommonFields(ve *ValidationError, name, phone, email, requests string, partySize, duration, maxParty int) {
	if n := len(strings.TrimSpace(name)); n < 2 || n > 100 {
		ve.Add("customerName", "customer name must be between 2 and 100 characters")
	}
	if phone == "" && email == "" {
		ve.Add("customerPhone", "at least one of phone or email is required")
	}
	if phone != "" && !model.ValidPhone(phone) {
		ve.Add("customerPhone", "invalid phone number")
	}
	if email != "" && !model.ValidEmail(email) {
		ve.Add("customerEmail", "invalid email address")
	}
	if len(requests) > 500 {
		ve.Add("specialRequests", "special requests must be at most 500 characters")
	}
	if partySize < 1 {
		ve.Add("partySize", "party size must be at least 1")
	} else if partySize > maxParty {
		ve.Add("partySize", fmt.Sprintf("party size must be at most %d", maxParty))
	}
	if duration < 15 || duration > 480 {
		ve.Add("durationMinutes", "duration must be between 15 and 480 minutes")
	}
}

func capacityError(result repository.QuotaResult, date, slot string) error {
	kind := NoAvailability
	if result == repository.QuotaCannotAccommodate {
		kind = NoSuitableTables
	}
	return &CapacityError{Kind: kind, Slot: model.SlotDescriptor(date, slot)}
}

func (s *ReservationService) releaseQuota(ctx context.Context, restaurantID, date, slot string, partySize int) {
	if err := s.quotas.Release(ctx, restaurantID, date, slot, partySize); err != nil {
		log.Printf("[reservation] quota release for (%s, %s, %s) failed: %v", restaurantID, date, slot, err)
	}
}

func (s *ReservationService) resolveMenuItems(ctx context.Context, restaurantID string, sels []MenuItemSelection) ([]model.ReservationMenuItem, error) {
	var out []model.ReservationMenuItem
	for _, sel := range sels {
		if sel.Quantity < 1 {
			log.Printf("[reservation] skipping menu item %s: quantity %d", sel.MenuItemID, sel.Quantity)
			continue
		}
		item, err := s.menu.FindByID(ctx, sel.MenuItemID)
		if err != nil {
			return nil, err
		}
		if item == nil || !item.Attachable() || item.RestaurantID != restaurantID {
			log.Printf("[reservation] skipping menu item %s: not attachable for restaurant %s", sel.MenuItemID, restaurantID)
			continue
		}
		out = append(out, model.ReservationMenuItem{
			MenuItemID:          item.ID,
			Quantity:            sel.Quantity,
			SpecialInstructions: sel.SpecialInstructions,
			PriceCents:          item.PriceCents,
		})
	}
	return out, nil
}

// ─── Confirm ────────────────────────────────────────────────

// Confirm transitions the caller's PENDING reservation to CONFIRMED before
// the deadline. A reservation that lost its table (none could be assigned
// at some point) gets one more assignment attempt here.
func (s *ReservationService) Confirm(ctx context.Context, id, userID string) (*model.Reservation, error) {
	res, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.UserID != userID {
		return nil, NewValidationError("userId", "only the creator can confirm a reservation")
	}
	if res.Status != model.StatusPending {
		return nil, NewValidationError("status", fmt.Sprintf("cannot confirm a %s reservation", res.Status))
	}
	now := s.now()
	if now.After(res.ConfirmationDeadline) {
		return nil, NewValidationError("confirmationDeadline", "confirmation deadline has passed")
	}

	ok, err := s.store.Confirm(ctx, id, now, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}

	if res.TableID == nil {
		if tableID, err := s.tables.FindTable(ctx, res); err == nil && tableID != "" {
			if err := s.store.AssignTable(ctx, id, &tableID); err != nil {
				log.Printf("[reservation] late table assign for %s failed: %v", id, err)
			} else {
				res.TableID = &tableID
				s.tables.MarkReserved(ctx, res.RestaurantID, tableID, id)
			}
		}
	}

	evt := events.ReservationConfirmed{
		ReservationID: id,
		RestaurantID:  res.RestaurantID,
		UserID:        res.UserID,
	}
	if res.TableID != nil {
		evt.TableID = *res.TableID
	}
	if err := s.publisher.Publish(ctx, events.TopicReservationEvents, id, events.TypeReservationConfirmed, evt); err != nil {
		log.Printf("[reservation] confirmed event for %s failed: %v", id, err)
	}

	return s.GetByID(ctx, id)
}

// ─── Cancel ─────────────────────────────────────────────────

// Cancel transitions a live reservation to CANCELLED. Allowed for the
// creator and for the restaurant owner; the quota claim and the table are
// both released.
func (s *ReservationService) Cancel(ctx context.Context, id, reason, callerID string) (*model.Reservation, error) {
	res, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.Status.IsTerminal() {
		return nil, NewValidationError("status", fmt.Sprintf("cannot cancel a %s reservation", res.Status))
	}
	if callerID != res.UserID && !s.validator.IsOwner(ctx, res.RestaurantID, callerID) {
		return nil, NewValidationError("userId", "only the creator or the restaurant owner can cancel")
	}

	now := s.now()
	prev, ok, err := s.store.Cancel(ctx, id, reason, callerID, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, NewValidationError("status", fmt.Sprintf("cannot cancel a %s reservation", prev))
	}

	date, slot := model.SlotOf(res.ReservationTime)
	s.releaseQuota(ctx, res.RestaurantID, date, slot, res.PartySize)
	if res.TableID != nil {
		s.tables.ReleaseTable(ctx, res.RestaurantID, *res.TableID, id)
	}

	evt := events.ReservationCancelled{
		ReservationID:  id,
		RestaurantID:   res.RestaurantID,
		UserID:         res.UserID,
		PreviousStatus: string(prev),
		Reason:         reason,
	}
	if err := s.publisher.Publish(ctx, events.TopicReservationCancel, id, events.TypeReservationCancelled, evt); err != nil {
		log.Printf("[reservation] cancelled event for %s failed: %v", id, err)
	}

	return s.GetByID(ctx, id)
}

// ─── Update ─────────────────────────────────────────────────

// Update patches a live reservation. A slot or party-size change swaps the
// quota claim (release old, claim new, restore old on failure); a time,
// size or duration change reassigns the table.
func (s *ReservationService) Update(ctx context.Context, id string, req UpdateReservationRequest, userID string) (*model.Reservation, error) {
	res, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.UserID != userID {
		return nil, NewValidationError("userId", "only the creator can modify a reservation")
	}
	if res.Status != model.StatusPending && res.Status != model.StatusConfirmed {
		return nil, NewValidationError("status", fmt.Sprintf("cannot modify a %s reservation", res.Status))
	}

	now := s.now()
	oldTime, oldSize, oldDuration := res.ReservationTime, res.PartySize, res.DurationMinutes

	newTime := oldTime
	if req.ReservationTime != nil {
		newTime = *req.ReservationTime
	}
	newSize := oldSize
	if req.PartySize != nil {
		newSize = *req.PartySize
	}
	newDuration := oldDuration
	if req.DurationMinutes != nil {
		newDuration = *req.DurationMinutes
	}
	newName := res.CustomerName
	if req.CustomerName != nil {
		newName = *req.CustomerName
	}
	newPhone := res.CustomerPhone
	if req.CustomerPhone != nil {
		newPhone = *req.CustomerPhone
	}
	newEmail := res.CustomerEmail
	if req.CustomerEmail != nil {
		newEmail = *req.CustomerEmail
	}
	newRequests := res.SpecialRequests
	if req.SpecialRequests != nil {
		newRequests = *req.SpecialRequests
	}
	newReminders := res.RemindersEnabled
	if req.RemindersEnabled != nil {
		newReminders = *req.RemindersEnabled
	}

	timeChanged := !newTime.Equal(oldTime)
	sizeChanged := newSize != oldSize
	durationChanged := newDuration != oldDuration

	ve := &ValidationError{}
	validateCommonFields(ve, newName, newPhone, newEmail, newRequests, newSize, newDuration, s.cfg.MaxPartySize)
	if timeChanged {
		s.validateTimeWindow(ve, newTime, now)
	}
	if len(ve.Fields) > 0 {
		return nil, ve
	}
	if timeChanged {
		if err := s.validator.EnsureWithinOperatingHours(ctx, res.RestaurantID, newTime); err != nil {
			return nil, err
		}
	}

	oldDate, oldSlot := model.SlotOf(oldTime)
	newDate, newSlot := model.SlotOf(newTime)
	slotChanged := oldDate != newDate || oldSlot != newSlot

	quotaSwapped := false
	if slotChanged || sizeChanged {
		if err := s.quotas.Release(ctx, res.RestaurantID, oldDate, oldSlot, oldSize); err != nil {
			return nil, err
		}
		result, err := s.quotas.TryReserve(ctx, res.RestaurantID, newDate, newSlot, newSize)
		if err != nil || result != repository.QuotaOK {
			// Put the old claim back before reporting failure.
			if _, rerr := s.quotas.TryReserve(ctx, res.RestaurantID, oldDate, oldSlot, oldSize); rerr != nil {
				log.Printf("[reservation] quota restore for %s failed: %v", id, rerr)
			}
			if err != nil {
				return nil, err
			}
			return nil, capacityError(result, newDate, newSlot)
		}
		quotaSwapped = true
	}
	restoreQuota := func() {
		if !quotaSwapped {
			return
		}
		s.releaseQuota(ctx, res.RestaurantID, newDate, newSlot, newSize)
		if _, err := s.quotas.TryReserve(ctx, res.RestaurantID, oldDate, oldSlot, oldSize); err != nil {
			log.Printf("[reservation] quota restore for %s failed: %v", id, err)
		}
	}

	// Apply the new shape before looking for a table, so the candidate is
	// probed against the updated window and party size.
	res.ReservationTime = newTime
	res.PartySize = newSize
	res.DurationMinutes = newDuration
	res.CustomerName = newName
	res.CustomerPhone = newPhone
	res.CustomerEmail = newEmail
	res.SpecialRequests = newRequests
	res.RemindersEnabled = newReminders

	oldTableID := res.TableID
	tableSwapped := false
	if timeChanged || sizeChanged || durationChanged {
		probe := *res
		probe.TableID = nil
		tableID, err := s.tables.FindTable(ctx, &probe)
		if err != nil || tableID == "" {
			if err != nil {
				log.Printf("[reservation] table lookup for %s failed: %v", id, err)
			}
			restoreQuota()
			return nil, &CapacityError{Kind: NoSuitableTables, Slot: model.SlotDescriptor(newDate, newSlot)}
		}
		if oldTableID == nil || *oldTableID != tableID {
			if oldTableID != nil {
				s.tables.ReleaseTable(ctx, res.RestaurantID, *oldTableID, id)
			}
			s.tables.MarkReserved(ctx, res.RestaurantID, tableID, id)
			tableSwapped = true
		}
		res.TableID = &tableID
	}
	// Undo the table swap's cache writes and status events when the row
	// update never commits, so listeners don't believe a move that didn't
	// happen.
	restoreTable := func() {
		if !tableSwapped {
			return
		}
		s.tables.ReleaseTable(ctx, res.RestaurantID, *res.TableID, id)
		if oldTableID != nil {
			s.tables.MarkReserved(ctx, res.RestaurantID, *oldTableID, id)
		}
		res.TableID = oldTableID
	}

	details := changeDetails(oldTime, newTime, oldSize, newSize, oldDuration, newDuration, req)
	if details == "" {
		return res, nil
	}
	if err := s.store.UpdateDetails(ctx, res, details, userID, now); err != nil {
		restoreQuota()
		restoreTable()
		return nil, err
	}

	evt := events.ReservationModified{
		ReservationID:      id,
		RestaurantID:       res.RestaurantID,
		UserID:             res.UserID,
		OldReservationTime: oldTime,
		NewReservationTime: newTime,
		OldPartySize:       oldSize,
		NewPartySize:       newSize,
	}
	if err := s.publisher.Publish(ctx, events.TopicReservationUpdate, id, events.TypeReservationModified, evt); err != nil {
		log.Printf("[reservation] modified event for %s failed: %v", id, err)
	}

	return s.GetByID(ctx, id)
}

func changeDetails(oldTime, newTime time.Time, oldSize, newSize, oldDuration, newDuration int, req UpdateReservationRequest) string {
	var parts []string
	if !newTime.Equal(oldTime) {
		parts = append(parts, fmt.Sprintf("reservationTime: %s -> %s",
			oldTime.UTC().Format(time.RFC3339), newTime.UTC().Format(time.RFC3339)))
	}
	if newSize != oldSize {
		parts = append(parts, fmt.Sprintf("partySize: %d -> %d", oldSize, newSize))
	}
	if newDuration != oldDuration {
		parts = append(parts, fmt.Sprintf("durationMinutes: %d -> %d", oldDuration, newDuration))
	}
	if req.CustomerName != nil {
		parts = append(parts, "customerName updated")
	}
	if req.CustomerPhone != nil {
		parts = append(parts, "customerPhone updated")
	}
	if req.CustomerEmail != nil {
		parts = append(parts, "customerEmail updated")
	}
	if req.SpecialRequests != nil {
		parts = append(parts, "specialRequests updated")
	}
	if req.RemindersEnabled != nil {
		parts = append(parts, "remindersEnabled updated")
	}
	return strings.Join(parts, "; ")
}

// ─── Menu items ─────────────────────────────────────────────

// AddMenuItems attaches items to a live reservation. Unknown, inactive,
// unavailable and foreign-restaurant items are skipped, not rejected; the
// price of each attached item is snapshotted from the projection.
func (s *ReservationService) AddMenuItems(ctx context.Context, id string, sels []MenuItemSelection, userID string) (*model.Reservation, error) {
	if len(sels) == 0 {
		return nil, NewValidationError("menuItems", "at least one menu item is required")
	}
	res, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.UserID != userID {
		return nil, NewValidationError("userId", "only the creator can add menu items")
	}
	if res.Status != model.StatusPending && res.Status != model.StatusConfirmed {
		return nil, NewValidationError("status", fmt.Sprintf("cannot add menu items to a %s reservation", res.Status))
	}

	items, err := s.resolveMenuItems(ctx, res.RestaurantID, sels)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, NewValidationError("menuItems", "none of the requested items can be added")
	}

	if err := s.store.AddMenuItems(ctx, id, items, userID, s.now()); err != nil {
		return nil, err
	}
	return s.GetByID(ctx, id)
}
