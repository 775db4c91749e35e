package service

import (
	"context"
	"errors"

	"suvidha-service/internal/model"
	"suvidha-service/internal/repository/sqlite"
	"suvidha-service/internal/util"
)

// NotificationService is the citizen inbox. Other services push entries
// through Notify; handlers read them by citizen ID.
type NotificationService struct {
	notifications *sqlite.NotificationRepository
	citizens      *sqlite.CitizenRepository
}

func NewNotificationService(
	notifications *sqlite.NotificationRepository,
	citizens *sqlite.CitizenRepository,
) *NotificationService {
	return &NotificationService{
		notifications: notifications,
		citizens:      citizens,
	}
}

// Notify writes one inbox entry. Failures are logged, not returned:
// a lost notification never fails the operation that produced it.
func (s *NotificationService) Notify(ctx context.Context, citizenRowID uint, kind, title, message string) {
	err := s.notifications.Create(ctx, &model.Notification{
		CitizenID: citizenRowID,
		Type:      kind,
		Title:     title,
		Message:   message,
	})
	if err != nil {
		util.Warn("Failed to store notification",
			util.String("type", kind),
			util.ErrorField(err),
		)
	}
}

func (s *NotificationService) List(ctx context.Context, citizenID string, unreadOnly bool, limit int) ([]model.Notification, error) {
	citizen, err := s.resolve(ctx, citizenID)
	if err != nil {
		return nil, err
	}
	return s.notifications.ListByCitizen(ctx, citizen.ID, unreadOnly, limit)
}

func (s *NotificationService) CountUnread(ctx context.Context, citizenID string) (int64, error) {
	citizen, err := s.resolve(ctx, citizenID)
	if err != nil {
		return 0, err
	}
	return s.notifications.CountUnread(ctx, citizen.ID)
}

func (s *NotificationService) MarkRead(ctx context.Context, citizenID string, notificationID uint) error {
	citizen, err := s.resolve(ctx, citizenID)
	if err != nil {
		return err
	}
	return s.notifications.MarkRead(ctx, citizen.ID, notificationID)
}

func (s *NotificationService) MarkAllRead(ctx context.Context, citizenID string) (int64, error) {
	citizen, err := s.resolve(ctx, citizenID)
	if err != nil {
		return 0, err
	}
	return s.notifications.MarkAllRead(ctx, citizen.ID)
}

func (s *NotificationService) resolve(ctx context.Context, citizenID string) (*model.Citizen, error) {
	citizen, err := s.citizens.FindByCitizenID(ctx, citizenID)
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return nil, ErrCitizenNotFound
		}
		return nil, err
	}
	return citizen, nil
}
