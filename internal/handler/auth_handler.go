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

// AuthHandler exposes the login, session and profile endpoints.
type AuthHandler struct {
	auth   *service.AuthService
	logger *zap.Logger
}

func NewAuthHandler(auth *service.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, logger: logger}
}

func (h *AuthHandler) RegisterRoutes(router chi.Router) {
	router.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.StartLogin)
		r.Post("/resend", h.ResendLogin)
		r.Post("/verify", h.CompleteLogin)
		r.Post("/guest", h.GuestLogin)
		r.Post("/admin/login", h.AdminLogin)

		r.Group(func(r chi.Router) {
			r.Use(RequireAuth(h.auth))
			r.Post("/logout", h.Logout)
			r.Get("/profile", h.Profile)
			r.Put("/profile", h.UpdateProfile)
		})
	})
}

type loginRequest struct {
	Aadhaar string `json:"aadhaar"`
	Phone   string `json:"phone"`
	Name    string `json:"name,omitempty"`
}

func (h *AuthHandler) StartLogin(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	issue, err := h.auth.StartLogin(r.Context(), req.Aadhaar, req.Phone, req.Name)
	if err != nil {
		respondWithServiceError(w, err, "Failed to start login")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(issue, "Verification code issued"))
	h.logger.Info("Login started via HTTP",
		util.String("mode", string(issue.Mode)),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "StartLogin"),
	)
}

func (h *AuthHandler) ResendLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	issue, err := h.auth.ResendLogin(r.Context(), req.Aadhaar, req.Phone)
	if err != nil {
		respondWithServiceError(w, err, "Failed to resend code")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(issue, "Verification code reissued"))
}

type verifyRequest struct {
	Aadhaar string `json:"aadhaar"`
	Phone   string `json:"phone"`
	Code    string `json:"code"`
}

func (h *AuthHandler) CompleteLogin(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	result, err := h.auth.CompleteLogin(r.Context(), req.Aadhaar, req.Phone, req.Code)
	if err != nil {
		respondWithServiceError(w, err, "Verification failed")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(result, "Login successful"))
	h.logger.Info("Login completed via HTTP",
		util.String("citizen_id", result.Citizen.CitizenID),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "CompleteLogin"),
	)
}

func (h *AuthHandler) GuestLogin(w http.ResponseWriter, r *http.Request) {
	result, err := h.auth.GuestLogin(r.Context())
	if err != nil {
		respondWithServiceError(w, err, "Failed to open guest session")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(result, "Guest session opened"))
}

type adminLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *AuthHandler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var req adminLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	result, err := h.auth.AdminLogin(r.Context(), req.Username, req.Password)
	if err != nil {
		respondWithServiceError(w, err, "Admin login failed")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(result, "Admin login successful"))
	h.logger.Info("Admin login via HTTP", util.String("username", req.Username))
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())

	if err := h.auth.Logout(r.Context(), claims.Subject); err != nil {
		respondWithServiceError(w, err, "Logout failed")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(nil, "Logged out"))
}

func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims.Role != service.RoleCitizen {
		respondWithError(w, http.StatusForbidden, service.ErrCitizenNotFound, "Profile is only available to citizens")
		return
	}

	citizen, err := h.auth.Profile(r.Context(), claims.Subject)
	if err != nil {
		respondWithServiceError(w, err, "Failed to load profile")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(citizen, "Profile retrieved"))
}

type profileUpdateRequest struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Address  string `json:"address,omitempty"`
	Pincode  string `json:"pincode,omitempty"`
	Language string `json:"language,omitempty"`
}

func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims.Role != service.RoleCitizen {
		respondWithError(w, http.StatusForbidden, service.ErrCitizenNotFound, "Profile is only available to citizens")
		return
	}

	var req profileUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	citizen, err := h.auth.UpdateProfile(r.Context(), claims.Subject, req.Name, req.Email, req.Address, req.Pincode, req.Language)
	if err != nil {
		respondWithServiceError(w, err, "Failed to update profile")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(citizen, "Profile updated"))
}
