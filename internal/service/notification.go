package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"payments/internal/domain"
)

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationReservationPlaced NotificationType = "RESERVATION_PLACED"
	NotificationReservationFailed NotificationType = "RESERVATION_FAILED"
	NotificationCompensationFail  NotificationType = "COMPENSATION_FAILED"
	NotificationChargeSettled     NotificationType = "CHARGE_SETTLED"
	NotificationCreditSettled     NotificationType = "CREDIT_SETTLED"
)

// Notification represents a notification to be sent.
type Notification struct {
	Type        NotificationType
	ReferenceID string
	Title       string
	Message     string
	Data        map[string]interface{}
	CreatedAt   time.Time
}

// Notifier delivers notifications somewhere outside the process.
type Notifier interface {
	Send(ctx context.Context, notification Notification) error
}

// NotificationService tells the owner of a reference id what happened to its ledger.
// Without a Notifier notifications are only logged.
type NotificationService struct {
	notifier Notifier
	logger   *zap.Logger
}

// NewNotificationService creates a new NotificationService. notifier may be nil.
func NewNotificationService(notifier Notifier, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{notifier: notifier, logger: logger}
}

// NotifyReservation reports the outcome of a saga, and every void that could not be confirmed.
func (s *NotificationService) NotifyReservation(ctx context.Context, result *ReservationResult) error {
	if result == nil {
		return nil
	}

	notification := Notification{
		ReferenceID: result.ReferenceID,
		Data: map[string]interface{}{
			"total":  result.Total.String(),
			"events": len(result.Events),
		},
		CreatedAt: time.Now(),
	}
	if result.Success {
		notification.Type = NotificationReservationPlaced
		notification.Title = "Reservation Placed"
		notification.Message = fmt.Sprintf("%s reserved across %d instruments", result.Total, len(result.Events))
	} else {
		notification.Type = NotificationReservationFailed
		notification.Title = "Reservation Failed"
		notification.Message = fmt.Sprintf("Could not reserve %s. Held funds were released.", result.Total)
	}

	if err := s.send(ctx, notification); err != nil {
		return err
	}

	for _, comp := range result.Compensations {
		if comp.Succeeded() {
			continue
		}
		err := s.send(ctx, Notification{
			Type:        NotificationCompensationFail,
			ReferenceID: result.ReferenceID,
			Title:       "Hold Not Released",
			Message:     fmt.Sprintf("A hold of %s on instrument %s could not be released", comp.Amount, comp.InstrumentID),
			Data: map[string]interface{}{
				"event_id":      comp.EventID,
				"instrument_id": comp.InstrumentID,
				"amount":        comp.Amount.String(),
			},
			CreatedAt: time.Now(),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// NotifySettlement reports an approved charge or credit.
func (s *NotificationService) NotifySettlement(ctx context.Context, event *domain.PaymentEvent) error {
	if event == nil || !event.Approved() {
		return nil
	}

	notification := Notification{
		ReferenceID: event.ReferenceID,
		Data: map[string]interface{}{
			"event_id":      event.ID,
			"parent_id":     event.ParentID,
			"instrument_id": event.InstrumentID,
			"amount":        event.Amount.String(),
		},
		CreatedAt: time.Now(),
	}
	switch event.Type {
	case domain.EventTypeCharge:
		notification.Type = NotificationChargeSettled
		notification.Title = "Payment Charged"
		notification.Message = fmt.Sprintf("%s was charged", event.Amount)
	case domain.EventTypeCredit:
		notification.Type = NotificationCreditSettled
		notification.Title = "Refund Issued"
		notification.Message = fmt.Sprintf("%s was refunded", event.Amount)
	default:
		return nil
	}
	return s.send(ctx, notification)
}

func (s *NotificationService) send(ctx context.Context, notification Notification) error {
	s.logger.Info("notification",
		zap.String("type", string(notification.Type)),
		zap.String("reference_id", notification.ReferenceID),
		zap.String("title", notification.Title),
		zap.String("message", notification.Message),
	)

	if s.notifier == nil {
		return nil
	}
	return s.notifier.Send(ctx, notification)
}
