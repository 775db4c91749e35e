package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"suvidha-service/internal/service"
	"suvidha-service/internal/util"
)

// RequestHandler exposes the service request endpoints for citizens
// and the status management endpoints for admins.
type RequestHandler struct {
	requests *service.RequestService
	auth     *service.AuthService
	logger   *zap.Logger
}

func NewRequestHandler(requests *service.RequestService, auth *service.AuthService, logger *zap.Logger) *RequestHandler {
	return &RequestHandler{requests: requests, auth: auth, logger: logger}
}

func (h *RequestHandler) RegisterRoutes(router chi.Router) {
	router.Route("/requests", func(r chi.Router) {
		r.Use(RequireAuth(h.auth))
		r.Use(RequireRole(service.RoleCitizen))

		r.Post("/", h.CreateRequest)
		r.Get("/", h.ListMyRequests)
		r.Get("/search", h.Search)
		r.Get("/{requestID}", h.GetRequest)
		r.Post("/{requestID}/feedback", h.SubmitFeedback)
	})
}

// RegisterAdminRoutes mounts the operator endpoints. The caller wraps
// them in admin auth.
func (h *RequestHandler) RegisterAdminRoutes(router chi.Router) {
	router.Route("/requests", func(r chi.Router) {
		r.Get("/", h.ListRequests)
		r.Get("/{requestID}", h.GetRequestAdmin)
		r.Patch("/{requestID}/status", h.UpdateStatus)
	})
}

type createRequestRequest struct {
	Department  string `json:"department"`
	ServiceType string `json:"service_type"`
	Description string `json:"description"`
	Priority    string `json:"priority,omitempty"`
}

func (h *RequestHandler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	claims := ClaimsFromContext(r.Context())

	var req createRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	created, err := h.requests.CreateRequest(r.Context(), claims.Subject, req.Department, req.ServiceType, req.Description, req.Priority)
	if err != nil {
		respondWithServiceError(w, err, "Failed to create request")
		return
	}

	respondWithJSON(w, http.StatusCreated, successResponse(created, "Request submitted"))
	h.logger.Info("Request created via HTTP",
		util.String("request_id", created.RequestID),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "CreateRequest"),
	)
}

func (h *RequestHandler) ListMyRequests(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())

	requests, err := h.requests.ListMyRequests(r.Context(), claims.Subject)
	if err != nil {
		respondWithServiceError(w, err, "Failed to list requests")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(requests, "Requests retrieved"))
}

func (h *RequestHandler) GetRequest(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	requestID := chi.URLParam(r, "requestID")

	detail, err := h.requests.GetRequest(r.Context(), claims.Subject, requestID)
	if err != nil {
		respondWithServiceError(w, err, "Failed to get request")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(detail, "Request retrieved"))
}

func (h *RequestHandler) Search(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())

	query := r.URL.Query().Get("q")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	results, err := h.requests.Search(r.Context(), claims.Subject, query, limit)
	if err != nil {
		respondWithServiceError(w, err, "Search failed")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(results, "Search results"))
}

type feedbackRequest struct {
	Rating   int    `json:"rating"`
	Feedback string `json:"feedback,omitempty"`
}

func (h *RequestHandler) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	requestID := chi.URLParam(r, "requestID")

	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	if err := h.requests.SubmitFeedback(r.Context(), claims.Subject, requestID, req.Rating, req.Feedback); err != nil {
		respondWithServiceError(w, err, "Failed to submit feedback")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(nil, "Feedback recorded"))
}

// Admin endpoints.

func (h *RequestHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	department := r.URL.Query().Get("department")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	requests, err := h.requests.ListRequests(r.Context(), status, department, limit)
	if err != nil {
		respondWithServiceError(w, err, "Failed to list requests")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(requests, "Requests retrieved"))
}

func (h *RequestHandler) GetRequestAdmin(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")

	detail, err := h.requests.GetRequest(r.Context(), "", requestID)
	if err != nil {
		respondWithServiceError(w, err, "Failed to get request")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(detail, "Request retrieved"))
}

type statusUpdateRequest struct {
	Status  string `json:"status"`
	Comment string `json:"comment,omitempty"`
}

func (h *RequestHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	requestID := chi.URLParam(r, "requestID")

	var req statusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	if err := h.requests.UpdateStatus(r.Context(), requestID, req.Status, req.Comment, claims.Subject); err != nil {
		respondWithServiceError(w, err, "Failed to update status")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(nil, "Status updated"))
	h.logger.Info("Request status updated via HTTP",
		util.String("request_id", requestID),
		util.String("status", req.Status),
		util.String("method", "UpdateStatus"),
	)
}
