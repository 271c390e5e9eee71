package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"transit/internal/domain"
)

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationTripStarted     NotificationType = "TRIP_STARTED"
	NotificationTripCompleted   NotificationType = "TRIP_COMPLETED"
	NotificationTripCancelled   NotificationType = "TRIP_CANCELLED"
	NotificationPassengerJoined NotificationType = "PASSENGER_JOINED"
	NotificationPassengerExited NotificationType = "PASSENGER_EXITED"
)

// Notification represents a trip event delivered to interested parties.
type Notification struct {
	ID          string           `json:"id"`
	Type        NotificationType `json:"type"`
	RecipientID string           `json:"recipientId"`
	Title       string           `json:"title"`
	Message     string           `json:"message"`
	Data        map[string]any   `json:"data"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// EventPublisher delivers notifications to a message broker.
type EventPublisher interface {
	PublishJSON(ctx context.Context, routingKey string, payload any) error
}

// NotificationService emits trip lifecycle events. Events are always
// logged and also published when a publisher is configured.
type NotificationService struct {
	publisher EventPublisher
	log       *zap.Logger
}

// NewNotificationService creates a new NotificationService. publisher may be nil.
func NewNotificationService(publisher EventPublisher, log *zap.Logger) *NotificationService {
	return &NotificationService{
		publisher: publisher,
		log:       log.With(zap.String("service", "notification")),
	}
}

// NotifyTripStarted notifies the trip owner that boarding is open.
func (s *NotificationService) NotifyTripStarted(ctx context.Context, trip *domain.Trip) error {
	return s.send(ctx, Notification{
		Type:        NotificationTripStarted,
		RecipientID: trip.CreatedByID,
		Title:       "Trip Started",
		Message:     fmt.Sprintf("Trip %s has started", trip.ReferenceID),
		Data: map[string]any{
			"tripId":      trip.ID,
			"referenceId": trip.ReferenceID,
			"startTime":   trip.StartTime,
		},
	})
}

// NotifyTripCompleted notifies the trip owner that the trip finished.
func (s *NotificationService) NotifyTripCompleted(ctx context.Context, trip *domain.Trip, released int64) error {
	return s.send(ctx, Notification{
		Type:        NotificationTripCompleted,
		RecipientID: trip.CreatedByID,
		Title:       "Trip Completed",
		Message:     fmt.Sprintf("Trip %s has completed with %d passengers on board", trip.ReferenceID, released),
		Data: map[string]any{
			"tripId":      trip.ID,
			"referenceId": trip.ReferenceID,
			"endTime":     trip.EndTime,
			"released":    released,
		},
	})
}

// NotifyTripCancelled notifies the trip owner that the trip was cancelled.
func (s *NotificationService) NotifyTripCancelled(ctx context.Context, trip *domain.Trip, released int64) error {
	return s.send(ctx, Notification{
		Type:        NotificationTripCancelled,
		RecipientID: trip.CreatedByID,
		Title:       "Trip Cancelled",
		Message:     fmt.Sprintf("Trip %s was cancelled, %d reservations released", trip.ReferenceID, released),
		Data: map[string]any{
			"tripId":      trip.ID,
			"referenceId": trip.ReferenceID,
			"endTime":     trip.EndTime,
			"released":    released,
		},
	})
}

// NotifyPassengerJoined notifies a passenger that their seat is reserved.
func (s *NotificationService) NotifyPassengerJoined(ctx context.Context, userTrip *domain.UserTrip) error {
	return s.send(ctx, Notification{
		Type:        NotificationPassengerJoined,
		RecipientID: userTrip.UserID,
		Title:       "Seat Reserved",
		Message:     "You have boarded the trip",
		Data: map[string]any{
			"tripId":     userTrip.TripID,
			"userTripId": userTrip.ID,
			"startTime":  userTrip.StartTime,
		},
	})
}

// NotifyPassengerExited notifies a passenger that their seat was released.
func (s *NotificationService) NotifyPassengerExited(ctx context.Context, userTrip *domain.UserTrip) error {
	return s.send(ctx, Notification{
		Type:        NotificationPassengerExited,
		RecipientID: userTrip.UserID,
		Title:       "Trip Ended",
		Message:     fmt.Sprintf("Your trip ended with status %s", userTrip.Status),
		Data: map[string]any{
			"tripId":     userTrip.TripID,
			"userTripId": userTrip.ID,
			"status":     userTrip.Status,
			"endTime":    userTrip.EndTime,
		},
	})
}

// send logs the notification and hands it to the publisher.
func (s *NotificationService) send(ctx context.Context, notification Notification) error {
	notification.ID = uuid.New().String()
	notification.CreatedAt = time.Now()

	s.log.Info("notification",
		zap.String("type", string(notification.Type)),
		zap.String("recipient", notification.RecipientID),
		zap.String("title", notification.Title),
		zap.String("message", notification.Message),
	)

	if s.publisher == nil {
		return nil
	}

	if err := s.publisher.PublishJSON(ctx, routingKey(notification.Type), notification); err != nil {
		return fmt.Errorf("publish %s: %w", notification.Type, err)
	}
	return nil
}

// routingKey maps TRIP_STARTED to trip.started.
func routingKey(t NotificationType) string {
	return strings.ReplaceAll(strings.ToLower(string(t)), "_", ".")
}
