package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"suvidha-service/internal/model"
)

type RequestRepository struct {
	db *gorm.DB
}

func NewRequestRepository(db *gorm.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// Create inserts the request together with its initial history row.
func (r *RequestRepository) Create(ctx context.Context, req *model.ServiceRequest) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(req).Error; err != nil {
			return fmt.Errorf("failed to create service request: %w", err)
		}
		history := model.RequestStatusHistory{
			RequestID: req.RequestID,
			Status:    req.Status,
			Comment:   "Request submitted",
			UpdatedBy: "system",
			CreatedAt: req.CreatedAt,
		}
		if err := tx.Create(&history).Error; err != nil {
			return fmt.Errorf("failed to record request history: %w", err)
		}
		return nil
	})
}

func (r *RequestRepository) FindByRequestID(ctx context.Context, requestID string) (*model.ServiceRequest, error) {
	var req model.ServiceRequest
	err := r.db.WithContext(ctx).Where("request_id = ?", requestID).First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find service request: %w", err)
	}
	return &req, nil
}

func (r *RequestRepository) ListByCitizen(ctx context.Context, citizenID uint) ([]model.ServiceRequest, error) {
	var reqs []model.ServiceRequest
	err := r.db.WithContext(ctx).
		Where("citizen_id = ?", citizenID).
		Order("created_at DESC").
		Find(&reqs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list service requests: %w", err)
	}
	return reqs, nil
}

// ListFilter narrows admin listings.
type ListFilter struct {
	Status     string
	Department string
	Limit      int
}

func (r *RequestRepository) List(ctx context.Context, filter ListFilter) ([]model.ServiceRequest, error) {
	q := r.db.WithContext(ctx).Order("created_at DESC")
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Department != "" {
		q = q.Where("department = ?", filter.Department)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var reqs []model.ServiceRequest
	if err := q.Find(&reqs).Error; err != nil {
		return nil, fmt.Errorf("failed to list service requests: %w", err)
	}
	return reqs, nil
}

// UpdateStatus transitions the request and appends a history row in one
// transaction. Resolved and Closed set the resolution timestamp.
func (r *RequestRepository) UpdateStatus(ctx context.Context, requestID, status, comment, updatedBy string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"status":     status,
			"updated_at": now,
		}
		if status == model.StatusResolved || status == model.StatusClosed {
			updates["resolved_at"] = now
		}

		res := tx.Model(&model.ServiceRequest{}).
			Where("request_id = ?", requestID).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("failed to update request status: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}

		history := model.RequestStatusHistory{
			RequestID: requestID,
			Status:    status,
			Comment:   comment,
			UpdatedBy: updatedBy,
			CreatedAt: now,
		}
		if err := tx.Create(&history).Error; err != nil {
			return fmt.Errorf("failed to record request history: %w", err)
		}
		return nil
	})
}

func (r *RequestRepository) History(ctx context.Context, requestID string) ([]model.RequestStatusHistory, error) {
	var rows []model.RequestStatusHistory
	err := r.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load request history: %w", err)
	}
	return rows, nil
}

func (r *RequestRepository) SaveFeedback(ctx context.Context, requestID string, rating int, feedback string) error {
	res := r.db.WithContext(ctx).Model(&model.ServiceRequest{}).
		Where("request_id = ?", requestID).
		Updates(map[string]interface{}{
			"rating":   rating,
			"feedback": feedback,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to save feedback: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SearchText is the LIKE fallback used when the search cluster is
// unavailable.
func (r *RequestRepository) SearchText(ctx context.Context, citizenID uint, text string, limit int) ([]model.ServiceRequest, error) {
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + text + "%"
	q := r.db.WithContext(ctx).
		Where("description LIKE ? OR service_type LIKE ? OR department LIKE ?", pattern, pattern, pattern).
		Order("created_at DESC").
		Limit(limit)
	if citizenID != 0 {
		q = q.Where("citizen_id = ?", citizenID)
	}

	var reqs []model.ServiceRequest
	if err := q.Find(&reqs).Error; err != nil {
		return nil, fmt.Errorf("failed to search requests: %w", err)
	}
	return reqs, nil
}

// Aggregates for the analytics dashboard.

func (r *RequestRepository) CountByStatus(ctx context.Context, status string) (int64, error) {
	var count int64
	q := r.db.WithContext(ctx).Model(&model.ServiceRequest{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count requests: %w", err)
	}
	return count, nil
}

func (r *RequestRepository) CountCreatedSince(ctx context.Context, cutoff time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.ServiceRequest{}).
		Where("created_at >= ?", cutoff).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count requests: %w", err)
	}
	return count, nil
}

// AverageResolutionDays averages resolved_at - created_at over resolved
// requests, in days.
func (r *RequestRepository) AverageResolutionDays(ctx context.Context) (float64, error) {
	var avg *float64
	err := r.db.WithContext(ctx).Model(&model.ServiceRequest{}).
		Where("resolved_at IS NOT NULL").
		Select("AVG((julianday(resolved_at) - julianday(created_at)))").
		Scan(&avg).Error
	if err != nil {
		return 0, fmt.Errorf("failed to compute average resolution time: %w", err)
	}
	if avg == nil {
		return 0, nil
	}
	return *avg, nil
}

// AverageRating averages submitted feedback ratings.
func (r *RequestRepository) AverageRating(ctx context.Context) (float64, error) {
	var avg *float64
	err := r.db.WithContext(ctx).Model(&model.ServiceRequest{}).
		Where("rating IS NOT NULL").
		Select("AVG(rating)").
		Scan(&avg).Error
	if err != nil {
		return 0, fmt.Errorf("failed to compute average rating: %w", err)
	}
	if avg == nil {
		return 0, nil
	}
	return *avg, nil
}
