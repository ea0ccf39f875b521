package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/apperror"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/domain/event"
)

// NotificationService stores in-app notifications and optionally pushes them over IM
type NotificationService interface {
	NotifyUser(ctx context.Context, recipientID int64, message string, typ entity.NotificationType, processID *int64) error
	NotifyApproverPool(ctx context.Context, message string, processID *int64) error
	ListForUser(ctx context.Context, actor entity.Actor, unreadOnly bool) ([]*entity.Notification, error)
	MarkRead(ctx context.Context, actor entity.Actor, id int64) (*entity.Notification, error)

	// HandleNotifyUser is the effect handler for user notification events
	HandleNotifyUser(ctx context.Context, evt *event.Event) error

	// HandleNotifyApproverPool is the effect handler for approver pool events
	HandleNotifyApproverPool(ctx context.Context, evt *event.Event) error
}

type notificationServiceImpl struct {
	notificationRepo port.NotificationRepository
	userRepo         port.UserRepository
	messageSender    port.MessageSender
	logger           Logger
	now              func() time.Time
}

// NewNotificationService creates a new NotificationService. messageSender may
// be nil, in which case notifications are only stored.
func NewNotificationService(
	notificationRepo port.NotificationRepository,
	userRepo port.UserRepository,
	messageSender port.MessageSender,
	logger Logger,
) NotificationService {
	return &notificationServiceImpl{
		notificationRepo: notificationRepo,
		userRepo:         userRepo,
		messageSender:    messageSender,
		logger:           logger,
		now:              time.Now,
	}
}

// NotifyUser stores a notification for one user and pushes it if possible
func (s *notificationServiceImpl) NotifyUser(ctx context.Context, recipientID int64, message string, typ entity.NotificationType, processID *int64) error {
	user, err := s.userRepo.GetByID(ctx, recipientID)
	if err != nil {
		return fmt.Errorf("get recipient: %w", err)
	}
	if user == nil {
		return fmt.Errorf("recipient %d not found", recipientID)
	}
	return s.notify(ctx, user, message, typ, processID)
}

// NotifyApproverPool notifies every administrator and approver. Every
// member is attempted; failures are joined.
func (s *notificationServiceImpl) NotifyApproverPool(ctx context.Context, message string, processID *int64) error {
	users, err := s.userRepo.ListByRoles(ctx, entity.RoleAdmin, entity.RoleApprover)
	if err != nil {
		return fmt.Errorf("list approver pool: %w", err)
	}
	if len(users) == 0 {
		s.logger.Info("Approver pool is empty, nothing to notify", "process_id", processID)
		return nil
	}

	var errs []error
	for _, u := range users {
		if err := s.notify(ctx, u, message, entity.NotificationTypeActionRequired, processID); err != nil {
			errs = append(errs, fmt.Errorf("notify user %d: %w", u.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (s *notificationServiceImpl) notify(ctx context.Context, user *entity.User, message string, typ entity.NotificationType, processID *int64) error {
	n := &entity.Notification{
		RecipientID: user.ID,
		ProcessID:   processID,
		Message:     message,
		Type:        typ,
		CreatedAt:   s.now(),
	}
	if err := s.notificationRepo.Create(ctx, n); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}

	s.logger.Info("Notification stored",
		"notification_id", n.ID,
		"recipient_id", user.ID,
		"type", typ,
	)

	if s.messageSender == nil || user.LarkOpenID == "" {
		return nil
	}

	// The stored notification is authoritative; a failed push is only logged
	if err := s.messageSender.SendMessage(ctx, user.LarkOpenID, message); err != nil {
		s.logger.Error("Failed to push notification",
			"error", err,
			"notification_id", n.ID,
			"recipient_id", user.ID,
		)
		return nil
	}

	s.logger.Info("Notification pushed", "notification_id", n.ID, "recipient_id", user.ID)
	return nil
}

// ListForUser returns the actor's notifications, newest first
func (s *notificationServiceImpl) ListForUser(ctx context.Context, actor entity.Actor, unreadOnly bool) ([]*entity.Notification, error) {
	list, err := s.notificationRepo.ListByRecipient(ctx, actor.ID, unreadOnly)
	if err != nil {
		s.logger.Error("Failed to list notifications", "error", err, "recipient_id", actor.ID)
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return list, nil
}

// MarkRead sets the read flag of a notification. Only the recipient may do so.
func (s *notificationServiceImpl) MarkRead(ctx context.Context, actor entity.Actor, id int64) (*entity.Notification, error) {
	n, err := s.notificationRepo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("Failed to get notification", "error", err, "notification_id", id)
		return nil, fmt.Errorf("get notification: %w", err)
	}
	if n == nil {
		return nil, apperror.NotFound("notification %d not found", id)
	}
	if n.RecipientID != actor.ID {
		return nil, apperror.Forbidden("notification %d belongs to another user", id)
	}
	if n.Read {
		return n, nil
	}

	if err := s.notificationRepo.MarkRead(ctx, id); err != nil {
		s.logger.Error("Failed to mark notification read", "error", err, "notification_id", id)
		return nil, fmt.Errorf("mark notification read: %w", err)
	}
	n.Read = true
	return n, nil
}

// HandleNotifyUser executes a user notification effect
func (s *notificationServiceImpl) HandleNotifyUser(ctx context.Context, evt *event.Event) error {
	recipientID := evt.GetPayloadInt(event.KeyRecipientID)
	if recipientID == 0 {
		return fmt.Errorf("notification event %s has no recipient", evt.ID)
	}

	typ := entity.NotificationType(evt.GetPayloadString(event.KeyNotificationType))
	if typ == "" {
		typ = entity.NotificationTypeInfo
	}

	return s.NotifyUser(ctx, recipientID, evt.GetPayloadString(event.KeyMessage), typ, processIDPtr(evt.ProcessID))
}

// HandleNotifyApproverPool executes an approver pool notification effect
func (s *notificationServiceImpl) HandleNotifyApproverPool(ctx context.Context, evt *event.Event) error {
	return s.NotifyApproverPool(ctx, evt.GetPayloadString(event.KeyMessage), processIDPtr(evt.ProcessID))
}
