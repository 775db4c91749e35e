package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"suvidha-service/internal/service"
	"suvidha-service/internal/util"
)

// PaymentHandler exposes bill listing and settlement for citizens and
// bill creation for admins.
type PaymentHandler struct {
	payments *service.PaymentService
	auth     *service.AuthService
	logger   *zap.Logger
}

func NewPaymentHandler(payments *service.PaymentService, auth *service.AuthService, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{payments: payments, auth: auth, logger: logger}
}

func (h *PaymentHandler) RegisterRoutes(router chi.Router) {
	router.Route("/payments", func(r chi.Router) {
		r.Use(RequireAuth(h.auth))
		r.Use(RequireRole(service.RoleCitizen))

		r.Get("/pending", h.PendingBills)
		r.Get("/history", h.History)
		r.Post("/{paymentID}/pay", h.PayBill)
	})
}

func (h *PaymentHandler) RegisterAdminRoutes(router chi.Router) {
	router.Post("/bills", h.CreateBill)
}

func (h *PaymentHandler) PendingBills(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())

	bills, err := h.payments.PendingBills(r.Context(), claims.Subject)
	if err != nil {
		respondWithServiceError(w, err, "Failed to list pending bills")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(bills, "Pending bills retrieved"))
}

func (h *PaymentHandler) History(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())

	payments, err := h.payments.History(r.Context(), claims.Subject)
	if err != nil {
		respondWithServiceError(w, err, "Failed to list payment history")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(payments, "Payment history retrieved"))
}

type payRequest struct {
	Method string `json:"method"`
}

func (h *PaymentHandler) PayBill(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	claims := ClaimsFromContext(r.Context())
	paymentID := chi.URLParam(r, "paymentID")

	var req payRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	receipt, err := h.payments.PayBill(r.Context(), claims.Subject, paymentID, req.Method)
	if err != nil {
		respondWithServiceError(w, err, "Payment failed")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(receipt, "Payment successful"))
	h.logger.Info("Payment made via HTTP",
		util.String("payment_id", paymentID),
		util.String("transaction_id", receipt.TransactionID),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "PayBill"),
	)
}

type createBillRequest struct {
	CitizenID  string    `json:"citizen_id"`
	BillType   string    `json:"bill_type"`
	BillNumber string    `json:"bill_number"`
	Amount     float64   `json:"amount"`
	DueDate    time.Time `json:"due_date"`
}

func (h *PaymentHandler) CreateBill(w http.ResponseWriter, r *http.Request) {
	var req createBillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	bill, err := h.payments.CreateBill(r.Context(), req.CitizenID, req.BillType, req.BillNumber, req.Amount, req.DueDate)
	if err != nil {
		respondWithServiceError(w, err, "Failed to create bill")
		return
	}
	respondWithJSON(w, http.StatusCreated, successResponse(bill, "Bill created"))
}
