package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"suvidha-service/internal/model"
)

type CitizenRepository struct {
	db *gorm.DB
}

func NewCitizenRepository(db *gorm.DB) *CitizenRepository {
	return &CitizenRepository{db: db}
}

func (r *CitizenRepository) Create(ctx context.Context, citizen *model.Citizen) error {
	if err := r.db.WithContext(ctx).Create(citizen).Error; err != nil {
		return fmt.Errorf("failed to create citizen: %w", err)
	}
	return nil
}

func (r *CitizenRepository) FindByAadhaarHash(ctx context.Context, hash string) (*model.Citizen, error) {
	var citizen model.Citizen
	err := r.db.WithContext(ctx).Where("aadhaar_hash = ?", hash).First(&citizen).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find citizen by aadhaar: %w", err)
	}
	return &citizen, nil
}

func (r *CitizenRepository) FindByCitizenID(ctx context.Context, citizenID string) (*model.Citizen, error) {
	var citizen model.Citizen
	err := r.db.WithContext(ctx).Where("citizen_id = ?", citizenID).First(&citizen).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find citizen: %w", err)
	}
	return &citizen, nil
}

func (r *CitizenRepository) UpdateProfile(ctx context.Context, citizenID string, updates map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&model.Citizen{}).
		Where("citizen_id = ?", citizenID).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update citizen profile: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *CitizenRepository) TouchLastLogin(ctx context.Context, citizenID string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Citizen{}).
		Where("citizen_id = ?", citizenID).
		Update("last_login_at", at).Error
}

// CountCreatedSince reports how many citizens registered on or after the
// cutoff, for the analytics dashboard.
func (r *CitizenRepository) CountCreatedSince(ctx context.Context, cutoff time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Citizen{}).
		Where("created_at >= ?", cutoff).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count new citizens: %w", err)
	}
	return count, nil
}

// CountActiveSince reports citizens who logged in on or after the cutoff.
func (r *CitizenRepository) CountActiveSince(ctx context.Context, cutoff time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Citizen{}).
		Where("last_login_at >= ?", cutoff).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count active citizens: %w", err)
	}
	return count, nil
}
