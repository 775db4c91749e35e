package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"suvidha-service/internal/model"
	"suvidha-service/internal/repository/sqlite"
	"suvidha-service/internal/util"
)

var validPaymentMethods = map[string]bool{
	"upi":        true,
	"card":       true,
	"netbanking": true,
}

var validBillTypes = map[string]bool{
	"electricity":  true,
	"water":        true,
	"gas":          true,
	"property_tax": true,
}

// Receipt is the citizen-facing proof of a completed payment.
type Receipt struct {
	PaymentID     string    `json:"payment_id"`
	TransactionID string    `json:"transaction_id"`
	BillType      string    `json:"bill_type"`
	BillNumber    string    `json:"bill_number"`
	Amount        float64   `json:"amount"`
	Method        string    `json:"method"`
	PaidAt        time.Time `json:"paid_at"`
}

// PaymentService handles utility bill listing and settlement.
type PaymentService struct {
	payments      *sqlite.PaymentRepository
	citizens      *sqlite.CitizenRepository
	notifications *NotificationService
	events        EventPublisher
}

func NewPaymentService(
	payments *sqlite.PaymentRepository,
	citizens *sqlite.CitizenRepository,
	notifications *NotificationService,
	events EventPublisher,
) *PaymentService {
	return &PaymentService{
		payments:      payments,
		citizens:      citizens,
		notifications: notifications,
		events:        events,
	}
}

// CreateBill raises a bill against a citizen. Admin only.
func (s *PaymentService) CreateBill(ctx context.Context, citizenID, billType, billNumber string, amount float64, dueDate time.Time) (*model.Payment, error) {
	citizen, err := s.resolveCitizen(ctx, citizenID)
	if err != nil {
		return nil, err
	}

	if !validBillTypes[billType] {
		return nil, fmt.Errorf("%w: unknown bill type %q", ErrInvalidInput, billType)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}

	now := time.Now().UTC()
	payment := &model.Payment{
		PaymentID:  model.NewPaymentID(now),
		CitizenID:  citizen.ID,
		BillType:   billType,
		BillNumber: util.SanitizeInput(billNumber),
		Amount:     amount,
		DueDate:    dueDate,
		Status:     model.PaymentPending,
	}
	if err := s.payments.CreateBill(ctx, payment); err != nil {
		return nil, err
	}

	s.notifications.Notify(ctx, citizen.ID, model.NotificationPayment,
		"New bill",
		fmt.Sprintf("A %s bill of Rs %.2f is due by %s.", billType, amount, dueDate.Format("02 Jan 2006")),
	)

	util.Info("Bill created",
		util.String("payment_id", payment.PaymentID),
		util.String("bill_type", billType),
		util.Float64("amount", amount),
	)
	return payment, nil
}

// PendingBills lists unpaid bills, flipping past-due ones to Overdue on
// the way out.
func (s *PaymentService) PendingBills(ctx context.Context, citizenID string) ([]model.Payment, error) {
	citizen, err := s.resolveCitizen(ctx, citizenID)
	if err != nil {
		return nil, err
	}

	if _, err := s.payments.MarkOverdue(ctx, time.Now().UTC()); err != nil {
		util.Warn("Overdue sweep failed", util.ErrorField(err))
	}

	return s.payments.PendingByCitizen(ctx, citizen.ID)
}

// PayBill settles a bill the citizen owns and returns the receipt.
func (s *PaymentService) PayBill(ctx context.Context, citizenID, paymentID, method string) (*Receipt, error) {
	citizen, err := s.resolveCitizen(ctx, citizenID)
	if err != nil {
		return nil, err
	}
	if !validPaymentMethods[method] {
		return nil, fmt.Errorf("%w: unsupported payment method %q", ErrInvalidInput, method)
	}

	payment, err := s.payments.FindByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.CitizenID != citizen.ID {
		return nil, sqlite.ErrNotFound
	}
	if payment.Status == model.PaymentCompleted {
		return nil, fmt.Errorf("%w: bill is already paid", ErrInvalidInput)
	}

	now := time.Now().UTC()
	txnID := model.NewTxnID(now)
	if err := s.payments.MarkCompleted(ctx, paymentID, method, txnID, now); err != nil {
		return nil, err
	}

	s.notifications.Notify(ctx, citizen.ID, model.NotificationPayment,
		"Payment successful",
		fmt.Sprintf("Rs %.2f paid for %s bill %s. Transaction %s.", payment.Amount, payment.BillType, payment.BillNumber, txnID),
	)
	s.publish(ctx, "payment.completed", paymentID, map[string]interface{}{
		"payment_id":     paymentID,
		"transaction_id": txnID,
		"amount":         payment.Amount,
		"method":         method,
		"paid_at":        now,
	})

	util.Info("Payment completed",
		util.String("payment_id", paymentID),
		util.String("transaction_id", txnID),
		util.Float64("amount", payment.Amount),
	)

	return &Receipt{
		PaymentID:     paymentID,
		TransactionID: txnID,
		BillType:      payment.BillType,
		BillNumber:    payment.BillNumber,
		Amount:        payment.Amount,
		Method:        method,
		PaidAt:        now,
	}, nil
}

func (s *PaymentService) History(ctx context.Context, citizenID string) ([]model.Payment, error) {
	citizen, err := s.resolveCitizen(ctx, citizenID)
	if err != nil {
		return nil, err
	}
	return s.payments.HistoryByCitizen(ctx, citizen.ID)
}

func (s *PaymentService) resolveCitizen(ctx context.Context, citizenID string) (*model.Citizen, error) {
	citizen, err := s.citizens.FindByCitizenID(ctx, citizenID)
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return nil, ErrCitizenNotFound
		}
		return nil, err
	}
	return citizen, nil
}

func (s *PaymentService) publish(ctx context.Context, eventType, key string, payload interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishEvent(ctx, eventType, key, payload); err != nil {
		util.Warn("Failed to publish event",
			util.String("event_type", eventType),
			util.ErrorField(err),
		)
	}
}
