package sqlite

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"suvidha-service/internal/model"
)

type EmergencyRepository struct {
	db *gorm.DB
}

func NewEmergencyRepository(db *gorm.DB) *EmergencyRepository {
	return &EmergencyRepository{db: db}
}

func (r *EmergencyRepository) Create(ctx context.Context, report *model.EmergencyReport) error {
	if err := r.db.WithContext(ctx).Create(report).Error; err != nil {
		return fmt.Errorf("failed to create emergency report: %w", err)
	}
	return nil
}

func (r *EmergencyRepository) ListRecent(ctx context.Context, limit int) ([]model.EmergencyReport, error) {
	if limit <= 0 {
		limit = 50
	}
	var reports []model.EmergencyReport
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&reports).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list emergency reports: %w", err)
	}
	return reports, nil
}
