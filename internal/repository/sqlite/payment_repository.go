package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"suvidha-service/internal/model"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) CreateBill(ctx context.Context, payment *model.Payment) error {
	if err := r.db.WithContext(ctx).Create(payment).Error; err != nil {
		return fmt.Errorf("failed to create bill: %w", err)
	}
	return nil
}

func (r *PaymentRepository) FindByPaymentID(ctx context.Context, paymentID string) (*model.Payment, error) {
	var payment model.Payment
	err := r.db.WithContext(ctx).Where("payment_id = ?", paymentID).First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find payment: %w", err)
	}
	return &payment, nil
}

// PendingByCitizen returns unpaid bills, soonest due first.
func (r *PaymentRepository) PendingByCitizen(ctx context.Context, citizenID uint) ([]model.Payment, error) {
	var payments []model.Payment
	err := r.db.WithContext(ctx).
		Where("citizen_id = ? AND status IN ?", citizenID, []string{model.PaymentPending, model.PaymentOverdue}).
		Order("due_date ASC").
		Find(&payments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending bills: %w", err)
	}
	return payments, nil
}

func (r *PaymentRepository) HistoryByCitizen(ctx context.Context, citizenID uint) ([]model.Payment, error) {
	var payments []model.Payment
	err := r.db.WithContext(ctx).
		Where("citizen_id = ? AND status = ?", citizenID, model.PaymentCompleted).
		Order("paid_at DESC").
		Find(&payments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list payment history: %w", err)
	}
	return payments, nil
}

// MarkCompleted settles a pending bill. Returns ErrNotFound when the
// bill does not exist or was already paid.
func (r *PaymentRepository) MarkCompleted(ctx context.Context, paymentID, method, transactionID string, paidAt time.Time) error {
	res := r.db.WithContext(ctx).Model(&model.Payment{}).
		Where("payment_id = ? AND status IN ?", paymentID, []string{model.PaymentPending, model.PaymentOverdue}).
		Updates(map[string]interface{}{
			"status":         model.PaymentCompleted,
			"method":         method,
			"transaction_id": transactionID,
			"paid_at":        paidAt,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to complete payment: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkOverdue flips pending bills whose due date has passed.
func (r *PaymentRepository) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.Payment{}).
		Where("status = ? AND due_date < ?", model.PaymentPending, asOf).
		Update("status", model.PaymentOverdue)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to mark overdue bills: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// TotalCollectedSince sums completed payments on or after the cutoff.
func (r *PaymentRepository) TotalCollectedSince(ctx context.Context, cutoff time.Time) (float64, error) {
	var total *float64
	err := r.db.WithContext(ctx).Model(&model.Payment{}).
		Where("status = ? AND paid_at >= ?", model.PaymentCompleted, cutoff).
		Select("SUM(amount)").
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum collections: %w", err)
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}
