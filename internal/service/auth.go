package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/aiagenz/billing/internal/domain"
)

const tokenTTL = 7 * 24 * time.Hour

// AuthConfig configures an AuthService.
type AuthConfig struct {
	JWTSecret        string
	AdminEmail       string
	AdminPassword    string
	DefaultFreeTrial int
}

// AuthService handles authentication, JWT, and user management.
type AuthService struct {
	cfg      AuthConfig
	users    domain.UserRepository
	validate *validator.Validate
	logger   zerolog.Logger
	now      func() time.Time
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg AuthConfig, store domain.Store) *AuthService {
	return &AuthService{
		cfg:      cfg,
		users:    store.Users(),
		validate: validator.New(),
		logger:   log.With().Str("component", "auth").Logger(),
		now:      time.Now,
	}
}

// SeedAdmin creates the default admin user if it doesn't exist.
func (s *AuthService) SeedAdmin(ctx context.Context) error {
	email := normalizeEmail(s.cfg.AdminEmail)
	exists, err := s.users.Exists(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to check admin existence: %w", err)
	}
	if exists {
		s.logger.Info().Str("email", email).Msg("admin user already exists")
		return nil
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(s.cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	now := s.now()
	admin := &domain.User{
		ID:        domain.NewUserID(),
		Email:     email,
		Name:      "Administrator",
		Password:  string(hashedPassword),
		Role:      domain.RoleAdmin,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.users.Create(ctx, admin); err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	s.logger.Info().Str("email", email).Msg("admin user created")
	return nil
}

// Signup registers a user with the default free trial and returns a token.
func (s *AuthService) Signup(ctx context.Context, req *domain.SignupRequest) (*domain.SignupResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, domain.ErrValidation(formatValidationErrors(err))
	}
	email := normalizeEmail(req.Email)

	var hashed string
	if req.Password != "" {
		h, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, domain.ErrInternal("failed to hash password", err)
		}
		hashed = string(h)
	}

	now := s.now()
	user := &domain.User{
		ID:        domain.NewUserID(),
		Email:     email,
		Name:      strings.TrimSpace(req.Name),
		Phone:     strings.TrimSpace(req.Phone),
		Password:  hashed,
		Role:      domain.RoleUser,
		FreeTrial: s.cfg.DefaultFreeTrial,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if domain.IsKind(err, domain.KindConflict) {
			return nil, domain.ErrConflict("email already registered")
		}
		return nil, domain.ErrInternal("failed to create user", err)
	}

	token, err := s.issueToken(user)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", user.ID).Msg("user signed up")
	return &domain.SignupResponse{User: user.ToResponse(), Token: token}, nil
}

// Login validates credentials against the database and returns a JWT token.
// Accounts without a password (created through an identity provider) log in
// by email alone.
func (s *AuthService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, domain.ErrValidation(formatValidationErrors(err))
	}

	user, err := s.users.FindByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		return nil, domain.ErrInternal("failed to find user", err)
	}
	if user == nil {
		return nil, domain.ErrUnauthorized("invalid credentials")
	}

	if user.Password != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
			return nil, domain.ErrUnauthorized("invalid credentials")
		}
	}

	token, err := s.issueToken(user)
	if err != nil {
		return nil, err
	}

	return &domain.LoginResponse{
		Token: token,
		User: domain.LoginUser{
			ID:    user.ID,
			Email: user.Email,
			Name:  user.Name,
			Role:  user.Role,
		},
	}, nil
}

func (s *AuthService) issueToken(user *domain.User) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"sub":   user.ID,
		"email": user.Email,
		"role":  user.Role,
		"exp":   now.Add(tokenTTL).Unix(),
		"iat":   now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", domain.ErrInternal("failed to sign token", err)
	}
	return signed, nil
}

// VerifyToken validates a JWT token and returns the claims.
func (s *AuthService) VerifyToken(tokenStr string) (*domain.JWTClaims, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, domain.ErrUnauthorized("invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, domain.ErrUnauthorized("invalid token claims")
	}

	return &domain.JWTClaims{
		Sub:   getClaimString(claims, "sub"),
		Email: getClaimString(claims, "email"),
		Role:  getClaimString(claims, "role"),
	}, nil
}

func getClaimString(claims jwt.MapClaims, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}

// Profile returns the caller's profile with usage counters.
func (s *AuthService) Profile(ctx context.Context, id string) (*domain.ProfileResponse, error) {
	user, err := s.findUser(ctx, id)
	if err != nil {
		return nil, err
	}
	return &domain.ProfileResponse{
		UserResponse:  user.ToResponse(),
		FreeTrial:     user.FreeTrial,
		UserLimit:     user.UserLimit,
		EntitlementID: user.EntitlementID,
	}, nil
}

// UpdateProfile changes the caller's name and phone. Absent fields keep
// their value.
func (s *AuthService) UpdateProfile(ctx context.Context, id string, req *domain.UpdateProfileRequest) (*domain.ProfileResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, domain.ErrValidation(formatValidationErrors(err))
	}
	user, err := s.findUser(ctx, id)
	if err != nil {
		return nil, err
	}

	name, phone := user.Name, user.Phone
	if req.Name != nil {
		name = strings.TrimSpace(*req.Name)
	}
	if req.Phone != nil {
		phone = strings.TrimSpace(*req.Phone)
	}
	if err := s.users.UpdateProfile(ctx, id, name, phone); err != nil {
		return nil, domain.ErrInternal("failed to update profile", err)
	}
	return s.Profile(ctx, id)
}

// ListUsers returns all users (admin only).
func (s *AuthService) ListUsers(ctx context.Context) ([]domain.UserResponse, error) {
	users, err := s.users.ListAll(ctx)
	if err != nil {
		return nil, domain.ErrInternal("failed to list users", err)
	}

	responses := make([]domain.UserResponse, len(users))
	for i, u := range users {
		responses[i] = u.ToResponse()
	}
	return responses, nil
}

// CreateUser creates a new user with bcrypt password (admin only).
func (s *AuthService) CreateUser(ctx context.Context, req *domain.CreateUserRequest) (*domain.UserResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, domain.ErrValidation(formatValidationErrors(err))
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, domain.ErrInternal("failed to hash password", err)
	}

	role := req.Role
	if role == "" {
		role = domain.RoleUser
	}

	now := s.now()
	user := &domain.User{
		ID:        domain.NewUserID(),
		Email:     normalizeEmail(req.Email),
		Name:      strings.TrimSpace(req.Name),
		Password:  string(hashedPassword),
		Role:      role,
		FreeTrial: s.cfg.DefaultFreeTrial,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if domain.IsKind(err, domain.KindConflict) {
			return nil, domain.ErrConflict("email already registered")
		}
		return nil, domain.ErrInternal("failed to create user", err)
	}

	resp := user.ToResponse()
	return &resp, nil
}

// DeleteUser removes a user by ID (admin only).
func (s *AuthService) DeleteUser(ctx context.Context, id string) error {
	user, err := s.findUser(ctx, id)
	if err != nil {
		return err
	}
	if user.Role == domain.RoleAdmin {
		return domain.ErrBadRequest("cannot delete admin user")
	}

	if err := s.users.Delete(ctx, id); err != nil {
		return domain.ErrInternal("failed to delete user", err)
	}
	return nil
}

func (s *AuthService) findUser(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, domain.ErrInternal("failed to find user", err)
	}
	if user == nil {
		return nil, domain.ErrNotFound("user not found")
	}
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
