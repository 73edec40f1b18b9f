package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is an account plus its capability consumption state.
// UserLimit only means something while EntitlementID is set.
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	Phone         string    `json:"phone"`
	Password      string    `json:"-"` // bcrypt hash, empty for OAuth-only accounts
	Role          string    `json:"role"`
	FreeTrial     int       `json:"freeTrial"`
	EntitlementID *string   `json:"entitlementId,omitempty"`
	UserLimit     int       `json:"userLimit"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// HasEntitlement reports whether the user currently references an entitlement.
func (u *User) HasEntitlement() bool {
	return u.EntitlementID != nil && *u.EntitlementID != ""
}

// LoginRequest is the validated input for logging in.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password"`
}

// LoginResponse is the API response after successful login.
type LoginResponse struct {
	Token string    `json:"token"`
	User  LoginUser `json:"user"`
}

// LoginUser is the user info returned after login.
type LoginUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// JWTClaims represents the JWT payload.
type JWTClaims struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// SignupRequest is the public registration input.
type SignupRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"omitempty,max=120"`
	Phone    string `json:"phone" validate:"omitempty,min=8,max=20"`
	Password string `json:"password" validate:"omitempty,min=6"`
}

// CreateUserRequest is the validated input for creating a user (admin).
type CreateUserRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"omitempty,max=120"`
	Password string `json:"password" validate:"required,min=6"`
	Role     string `json:"role" validate:"omitempty,oneof=user admin"`
}

// UpdateProfileRequest carries the user-editable profile fields.
type UpdateProfileRequest struct {
	Name  *string `json:"name" validate:"omitempty,max=120"`
	Phone *string `json:"phone" validate:"omitempty,min=8,max=20"`
}

// UserResponse is the safe API response for a user (no password).
type UserResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// ProfileResponse is the caller's own profile including usage counters.
type ProfileResponse struct {
	UserResponse
	FreeTrial     int     `json:"freeTrial"`
	UserLimit     int     `json:"userLimit"`
	EntitlementID *string `json:"entitlementId,omitempty"`
}

// SignupResponse is returned after registration.
type SignupResponse struct {
	User  UserResponse `json:"user"`
	Token string       `json:"token"`
}

// NewUserID generates a new UUID for a user.
func NewUserID() string {
	return uuid.New().String()
}

// ToResponse strips credentials and counters.
func (u *User) ToResponse() UserResponse {
	return UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Phone:     u.Phone,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}
