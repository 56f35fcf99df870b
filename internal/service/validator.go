package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/rohan/tablebook/internal/broker"
	"github.com/rohan/tablebook/internal/events"
)

// EventPublisher publishes a typed JSON record to the bus.
type EventPublisher interface {
	Publish(ctx context.Context, topic, key, eventType string, payload any) error
}

// ValidatorBrokers bundles the per-kind correlation brokers the validator
// waits on. The response consumers deliver into the same instances.
type ValidatorBrokers struct {
	Validation *broker.Broker[events.RestaurantValidationResponse]
	Time       *broker.Broker[events.ReservationTimeValidationResponse]
	Ownership  *broker.Broker[events.RestaurantOwnershipResponse]
	Search     *broker.Broker[events.RestaurantSearchResponse]
}

// NewValidatorBrokers creates one broker per restaurant-service oracle.
func NewValidatorBrokers() *ValidatorBrokers {
	return &ValidatorBrokers{
		Validation: broker.New[events.RestaurantValidationResponse]("restaurant-validation"),
		Time:       broker.New[events.ReservationTimeValidationResponse]("time-validation"),
		Ownership:  broker.New[events.RestaurantOwnershipResponse]("restaurant-ownership"),
		Search:     broker.New[events.RestaurantSearchResponse]("restaurant-search"),
	}
}

// RestaurantValidatorService asks the restaurant service yes/no questions
// over the bus: does the restaurant exist, is the time inside its operating
// hours, does this user own it. Each question is a request/response exchange
// bounded by the validation timeout.
type RestaurantValidatorService struct {
	publisher EventPublisher
	brokers   *ValidatorBrokers
	timeout   time.Duration
}

// NewRestaurantValidatorService creates a new restaurant validator.
func NewRestaurantValidatorService(publisher EventPublisher, brokers *ValidatorBrokers, timeout time.Duration) *RestaurantValidatorService {
	return &RestaurantValidatorService{
		publisher: publisher,
		brokers:   brokers,
		timeout:   timeout,
	}
}

// SearchQuery carries the caller's restaurant-search filters.
type SearchQuery struct {
	Date         string
	Time         string
	PartySize    int
	Cuisine      string
	City         string
	Latitude     *float64
	Longitude    *float64
	Distance     *float64
	RestaurantID string
}

// EnsureExistsAndActive fails with NotFoundError when the restaurant does
// not exist and ValidationError when it is inactive. A timeout also maps to
// ValidationError — the caller cannot book against an unverified restaurant,
// but may simply retry.
func (s *RestaurantValidatorService) EnsureExistsAndActive(ctx context.Context, restaurantID string) error {
	correlationID := uuid.NewString()
	if err := s.brokers.Validation.Register(correlationID); err != nil {
		return fmt.Errorf("validator: register %s: %w", correlationID, err)
	}

	req := events.RestaurantValidationRequest{
		RestaurantID:  restaurantID,
		CorrelationID: correlationID,
	}
	if err := s.publisher.Publish(ctx, events.TopicRestaurantValidationReq, correlationID, "RestaurantValidationRequest", req); err != nil {
		s.brokers.Validation.Cancel(correlationID, "publish failed")
		s.brokers.Validation.Sweep()
		return fmt.Errorf("validator: publish validation request: %w", err)
	}

	resp, err := s.brokers.Validation.Wait(ctx, correlationID, s.timeout)
	if errors.Is(err, broker.ErrWaitTimeout) {
		return NewValidationError("restaurantId", "restaurant validation timed out, please try again")
	}
	if err != nil {
		return fmt.Errorf("validator: wait for validation: %w", err)
	}

	if !resp.Exists {
		return &NotFoundError{Resource: "restaurant", ID: restaurantID}
	}
	if !resp.Active {
		return NewValidationError("restaurantId", "restaurant is not active")
	}
	return nil
}

// EnsureWithinOperatingHours fails with ValidationError when the restaurant
// rejects the instant. The restaurant's own message is preserved so the user
// sees the actual hours conflict.
func (s *RestaurantValidatorService) EnsureWithinOperatingHours(ctx context.Context, restaurantID string, at time.Time) error {
	correlationID := uuid.NewString()
	if err := s.brokers.Time.Register(correlationID); err != nil {
		return fmt.Errorf("validator: register %s: %w", correlationID, err)
	}

	req := events.ReservationTimeValidationRequest{
		RestaurantID:    restaurantID,
		CorrelationID:   correlationID,
		ReservationTime: at,
	}
	if err := s.publisher.Publish(ctx, events.TopicTimeValidationRequest, correlationID, "ReservationTimeValidationRequest", req); err != nil {
		s.brokers.Time.Cancel(correlationID, "publish failed")
		s.brokers.Time.Sweep()
		return fmt.Errorf("validator: publish time validation request: %w", err)
	}

	resp, err := s.brokers.Time.Wait(ctx, correlationID, s.timeout)
	if errors.Is(err, broker.ErrWaitTimeout) {
		return NewValidationError("reservationTime", "reservation time validation timed out, please try again")
	}
	if err != nil {
		return fmt.Errorf("validator: wait for time validation: %w", err)
	}

	if resp.ErrorMessage != "" {
		return NewValidationError("reservationTime", resp.ErrorMessage)
	}
	return nil
}

// IsOwner reports whether userID owns the restaurant. Fail-closed: any
// timeout or transport error counts as "not the owner", since ownership only
// ever grants extra privileges.
func (s *RestaurantValidatorService) IsOwner(ctx context.Context, restaurantID, userID string) bool {
	correlationID := uuid.NewString()
	if err := s.brokers.Ownership.Register(correlationID); err != nil {
		log.Printf("[validator] ownership register failed: %v", err)
		return false
	}

	req := events.RestaurantOwnershipRequest{
		RestaurantID:  restaurantID,
		UserID:        userID,
		CorrelationID: correlationID,
	}
	if err := s.publisher.Publish(ctx, events.TopicRestaurantOwnershipReq, correlationID, "RestaurantOwnershipRequest", req); err != nil {
		s.brokers.Ownership.Cancel(correlationID, "publish failed")
		s.brokers.Ownership.Sweep()
		log.Printf("[validator] ownership publish failed for %s: %v", restaurantID, err)
		return false
	}

	resp, err := s.brokers.Ownership.Wait(ctx, correlationID, s.timeout)
	if err != nil {
		log.Printf("[validator] ownership check for (%s, %s) failed closed: %v", restaurantID, userID, err)
		return false
	}
	if resp.ErrorMessage != "" {
		log.Printf("[validator] ownership check for (%s, %s) errored: %s", restaurantID, userID, resp.ErrorMessage)
		return false
	}
	return resp.IsOwner
}

// Search forwards a restaurant search to the restaurant service and waits
// for the result page.
func (s *RestaurantValidatorService) Search(ctx context.Context, q SearchQuery) ([]events.RestaurantDTO, error) {
	correlationID := uuid.NewString()
	if err := s.brokers.Search.Register(correlationID); err != nil {
		return nil, fmt.Errorf("validator: register %s: %w", correlationID, err)
	}

	req := events.RestaurantSearchRequest{
		Date:          q.Date,
		Time:          q.Time,
		PartySize:     q.PartySize,
		Cuisine:       q.Cuisine,
		City:          q.City,
		Latitude:      q.Latitude,
		Longitude:     q.Longitude,
		Distance:      q.Distance,
		RestaurantID:  q.RestaurantID,
		CorrelationID: correlationID,
	}
	if err := s.publisher.Publish(ctx, events.TopicRestaurantSearchRequest, correlationID, "RestaurantSearchRequest", req); err != nil {
		s.brokers.Search.Cancel(correlationID, "publish failed")
		s.brokers.Search.Sweep()
		return nil, fmt.Errorf("validator: publish search request: %w", err)
	}

	resp, err := s.brokers.Search.Wait(ctx, correlationID, s.timeout)
	if errors.Is(err, broker.ErrWaitTimeout) {
		return nil, NewValidationError("search", "restaurant search timed out, please try again")
	}
	if err != nil {
		return nil, fmt.Errorf("validator: wait for search: %w", err)
	}

	if !resp.Success {
		msg := resp.ErrorMessage
		if msg == "" {
			msg = "restaurant search failed"
		}
		return nil, NewValidationError("search", msg)
	}
	return resp.Restaurants, nil
}
