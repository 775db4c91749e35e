package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"suvidha-service/internal/service"
	"suvidha-service/internal/util"
)

// AccountHandler serves the citizen's inbox and document locker.
type AccountHandler struct {
	notifications *service.NotificationService
	documents     *service.DocumentService
	auth          *service.AuthService
	logger        *zap.Logger
}

func NewAccountHandler(
	notifications *service.NotificationService,
	documents *service.DocumentService,
	auth *service.AuthService,
	logger *zap.Logger,
) *AccountHandler {
	return &AccountHandler{
		notifications: notifications,
		documents:     documents,
		auth:          auth,
		logger:        logger,
	}
}

func (h *AccountHandler) RegisterRoutes(router chi.Router) {
	router.Group(func(r chi.Router) {
		r.Use(RequireAuth(h.auth))
		r.Use(RequireRole(service.RoleCitizen))

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", h.ListNotifications)
			r.Post("/{notificationID}/read", h.MarkRead)
			r.Post("/read-all", h.MarkAllRead)
		})

		r.Route("/documents", func(r chi.Router) {
			r.Post("/", h.UploadDocument)
			r.Get("/", h.ListDocuments)
		})
	})
}

func (h *AccountHandler) RegisterAdminRoutes(router chi.Router) {
	router.Post("/documents/{documentID}/review", h.ReviewDocument)
}

func (h *AccountHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())

	unreadOnly := r.URL.Query().Get("unread") == "true"
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	list, err := h.notifications.List(r.Context(), claims.Subject, unreadOnly, limit)
	if err != nil {
		respondWithServiceError(w, err, "Failed to list notifications")
		return
	}

	unread, err := h.notifications.CountUnread(r.Context(), claims.Subject)
	if err != nil {
		respondWithServiceError(w, err, "Failed to count notifications")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(map[string]interface{}{
		"notifications": list,
		"unread_count":  unread,
	}, "Notifications retrieved"))
}

func (h *AccountHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())

	id, err := strconv.ParseUint(chi.URLParam(r, "notificationID"), 10, 32)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid notification ID")
		return
	}

	if err := h.notifications.MarkRead(r.Context(), claims.Subject, uint(id)); err != nil {
		respondWithServiceError(w, err, "Failed to mark notification read")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(nil, "Notification marked read"))
}

func (h *AccountHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())

	n, err := h.notifications.MarkAllRead(r.Context(), claims.Subject)
	if err != nil {
		respondWithServiceError(w, err, "Failed to mark notifications read")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(map[string]int64{"marked": n}, "Notifications marked read"))
}

type uploadDocumentRequest struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	SizeBytes   int64  `json:"size_bytes"`
	ContentHash string `json:"content_hash,omitempty"`
}

func (h *AccountHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())

	var req uploadDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	doc, err := h.documents.Upload(r.Context(), claims.Subject, req.Name, req.Type, req.SizeBytes, req.ContentHash)
	if err != nil {
		respondWithServiceError(w, err, "Failed to upload document")
		return
	}

	respondWithJSON(w, http.StatusCreated, successResponse(doc, "Document uploaded"))
	h.logger.Info("Document uploaded via HTTP",
		util.String("document_id", doc.DocumentID),
		util.String("method", "UploadDocument"),
	)
}

func (h *AccountHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())

	docs, err := h.documents.List(r.Context(), claims.Subject)
	if err != nil {
		respondWithServiceError(w, err, "Failed to list documents")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(docs, "Documents retrieved"))
}

type reviewDocumentRequest struct {
	Status string `json:"status"`
}

func (h *AccountHandler) ReviewDocument(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")

	var req reviewDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	if err := h.documents.Review(r.Context(), documentID, req.Status); err != nil {
		respondWithServiceError(w, err, "Failed to review document")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(nil, "Document reviewed"))
}
