package sqlite

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"suvidha-service/internal/model"
)

type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Create(ctx context.Context, n *model.Notification) error {
	if err := r.db.WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (r *NotificationRepository) ListByCitizen(ctx context.Context, citizenID uint, unreadOnly bool, limit int) ([]model.Notification, error) {
	q := r.db.WithContext(ctx).Where("citizen_id = ?", citizenID).Order("created_at DESC")
	if unreadOnly {
		q = q.Where("is_read = ?", false)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var notifications []model.Notification
	if err := q.Find(&notifications).Error; err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return notifications, nil
}

func (r *NotificationRepository) CountUnread(ctx context.Context, citizenID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Notification{}).
		Where("citizen_id = ? AND is_read = ?", citizenID, false).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

func (r *NotificationRepository) MarkRead(ctx context.Context, citizenID uint, notificationID uint) error {
	res := r.db.WithContext(ctx).Model(&model.Notification{}).
		Where("id = ? AND citizen_id = ?", notificationID, citizenID).
		Update("is_read", true)
	if res.Error != nil {
		return fmt.Errorf("failed to mark notification read: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, citizenID uint) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.Notification{}).
		Where("citizen_id = ? AND is_read = ?", citizenID, false).
		Update("is_read", true)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", res.Error)
	}
	return res.RowsAffected, nil
}
