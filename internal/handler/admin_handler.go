package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"suvidha-service/internal/repository/sqlite"
	"suvidha-service/internal/service"
	"suvidha-service/internal/util"
)

// AdminHandler mounts the operator console: dashboard metrics, system
// settings, plus the admin surfaces of the other handlers under one
// authenticated subtree.
type AdminHandler struct {
	analytics *service.AnalyticsService
	settings  *sqlite.SettingRepository
	auth      *service.AuthService
	requests  *RequestHandler
	payments  *PaymentHandler
	accounts  *AccountHandler
	public    *PublicHandler
	logger    *zap.Logger
}

func NewAdminHandler(
	analytics *service.AnalyticsService,
	settings *sqlite.SettingRepository,
	auth *service.AuthService,
	requests *RequestHandler,
	payments *PaymentHandler,
	accounts *AccountHandler,
	public *PublicHandler,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{
		analytics: analytics,
		settings:  settings,
		auth:      auth,
		requests:  requests,
		payments:  payments,
		accounts:  accounts,
		public:    public,
		logger:    logger,
	}
}

func (h *AdminHandler) RegisterRoutes(router chi.Router) {
	router.Route("/admin", func(r chi.Router) {
		r.Use(RequireAuth(h.auth))
		r.Use(RequireRole(service.RoleAdmin))

		r.Get("/dashboard", h.Dashboard)
		r.Get("/settings", h.ListSettings)
		r.Put("/settings/{key}", h.PutSetting)

		h.requests.RegisterAdminRoutes(r)
		h.payments.RegisterAdminRoutes(r)
		h.accounts.RegisterAdminRoutes(r)
		h.public.RegisterAdminRoutes(r)
	})
}

func (h *AdminHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.analytics.Dashboard(r.Context())
	if err != nil {
		respondWithServiceError(w, err, "Failed to compute dashboard metrics")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(metrics, "Dashboard metrics"))
}

func (h *AdminHandler) ListSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settings.List(r.Context())
	if err != nil {
		respondWithServiceError(w, err, "Failed to list settings")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(settings, "Settings retrieved"))
}

type putSettingRequest struct {
	Value string `json:"value"`
}

func (h *AdminHandler) PutSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var req putSettingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	if err := h.settings.Put(r.Context(), key, req.Value); err != nil {
		respondWithServiceError(w, err, "Failed to store setting")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(nil, "Setting stored"))
	h.logger.Info("Setting updated via HTTP",
		util.String("key", key),
		util.String("method", "PutSetting"),
	)
}
