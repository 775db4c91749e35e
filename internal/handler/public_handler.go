package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"suvidha-service/internal/repository/sqlite"
	"suvidha-service/internal/service"
	"suvidha-service/internal/util"
)

// PublicHandler serves the department directory and the emergency
// desk. These work without a login; a valid token just enriches the
// emergency report with the citizen identity.
type PublicHandler struct {
	departments *sqlite.DepartmentRepository
	emergency   *service.EmergencyService
	auth        *service.AuthService
	logger      *zap.Logger
}

func NewPublicHandler(
	departments *sqlite.DepartmentRepository,
	emergency *service.EmergencyService,
	auth *service.AuthService,
	logger *zap.Logger,
) *PublicHandler {
	return &PublicHandler{
		departments: departments,
		emergency:   emergency,
		auth:        auth,
		logger:      logger,
	}
}

func (h *PublicHandler) RegisterRoutes(router chi.Router) {
	router.Get("/departments", h.ListDepartments)

	router.Route("/emergency", func(r chi.Router) {
		r.Get("/contacts", h.EmergencyContacts)
		r.With(OptionalAuth(h.auth)).Post("/report", h.ReportEmergency)
	})
}

func (h *PublicHandler) RegisterAdminRoutes(router chi.Router) {
	router.Get("/emergency/reports", h.RecentReports)
}

func (h *PublicHandler) ListDepartments(w http.ResponseWriter, r *http.Request) {
	departments, err := h.departments.List(r.Context())
	if err != nil {
		respondWithServiceError(w, err, "Failed to list departments")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(departments, "Departments retrieved"))
}

func (h *PublicHandler) EmergencyContacts(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, successResponse(h.emergency.Contacts(), "Emergency contacts"))
}

type emergencyReportRequest struct {
	Type          string `json:"type"`
	Location      string `json:"location"`
	Description   string `json:"description,omitempty"`
	ReporterName  string `json:"reporter_name,omitempty"`
	ReporterPhone string `json:"reporter_phone,omitempty"`
}

func (h *PublicHandler) ReportEmergency(w http.ResponseWriter, r *http.Request) {
	var req emergencyReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	citizenID := ""
	if claims := ClaimsFromContext(r.Context()); claims != nil && claims.Role == service.RoleCitizen {
		citizenID = claims.Subject
	}

	report, err := h.emergency.Report(r.Context(), citizenID, req.Type, req.Location, req.Description, req.ReporterName, req.ReporterPhone)
	if err != nil {
		respondWithServiceError(w, err, "Failed to file emergency report")
		return
	}

	respondWithJSON(w, http.StatusCreated, successResponse(report, "Emergency reported"))
	h.logger.Warn("Emergency reported via HTTP",
		util.String("report_id", report.ReportID),
		util.String("type", req.Type),
		util.String("method", "ReportEmergency"),
	)
}

func (h *PublicHandler) RecentReports(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	reports, err := h.emergency.RecentReports(r.Context(), limit)
	if err != nil {
		respondWithServiceError(w, err, "Failed to list emergency reports")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(reports, "Emergency reports retrieved"))
}
