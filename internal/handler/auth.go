package handler

import (
	"net/http"

	"github.com/aiagenz/billing/internal/domain"
	"github.com/aiagenz/billing/internal/service"
)

// AuthHandler handles authentication HTTP endpoints.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// Signup handles POST /api/users/signup.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req domain.SignupRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}

	resp, err := h.auth.Signup(r.Context(), &req)
	if err != nil {
		Error(w, err)
		return
	}

	JSON(w, http.StatusCreated, resp)
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}

	resp, err := h.auth.Login(r.Context(), &req)
	if err != nil {
		Error(w, err)
		return
	}

	JSON(w, http.StatusOK, resp)
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(r.Context())
	if !ok {
		JSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	profile, err := h.auth.Profile(r.Context(), id)
	if err != nil {
		Error(w, err)
		return
	}

	JSON(w, http.StatusOK, profile)
}
