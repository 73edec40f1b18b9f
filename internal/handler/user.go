package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aiagenz/billing/internal/domain"
	"github.com/aiagenz/billing/internal/service"
)

// UserHandler handles profile and user management endpoints.
type UserHandler struct {
	auth *service.AuthService
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(auth *service.AuthService) *UserHandler {
	return &UserHandler{auth: auth}
}

// UpdateMe handles PATCH /api/users/me.
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(r.Context())
	if !ok {
		JSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	var req domain.UpdateProfileRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}

	profile, err := h.auth.UpdateProfile(r.Context(), id, &req)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, profile)
}

// List handles GET /api/users.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.auth.ListUsers(r.Context())
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, users)
}

// Create handles POST /api/users.
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateUserRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}

	user, err := h.auth.CreateUser(r.Context(), &req)
	if err != nil {
		Error(w, err)
		return
	}

	JSON(w, http.StatusCreated, user)
}

// Delete handles DELETE /api/users/{id}.
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.auth.DeleteUser(r.Context(), id); err != nil {
		Error(w, err)
		return
	}

	JSON(w, http.StatusOK, map[string]bool{"success": true})
}
