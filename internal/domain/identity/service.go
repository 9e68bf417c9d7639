package identity

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vitalab/vitalab/internal/platform/auth"
	"github.com/vitalab/vitalab/internal/platform/db"
	"github.com/vitalab/vitalab/internal/platform/httperr"
)

type Service struct {
	users     UserRepository
	tokens    *auth.TokenManager
	accessTTL time.Duration
	now       func() time.Time
}

func NewService(users UserRepository, tokens *auth.TokenManager, accessTTL time.Duration) *Service {
	return &Service{users: users, tokens: tokens, accessTTL: accessTTL, now: time.Now}
}

// RegisterRequest is the signup payload.
type RegisterRequest struct {
	Username    string  `json:"username"`
	Email       string  `json:"email"`
	Password    string  `json:"password"`
	FirstName   *string `json:"first_name"`
	LastName    *string `json:"last_name"`
	PhoneNumber *string `json:"phone_number"`
}

// LoginRequest accepts a username or email in the username field.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenResponse is a token pair plus the access token lifetime in seconds.
type TokenResponse struct {
	auth.TokenPair
	ExpiresIn int `json:"expires_in"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	User   *User         `json:"user"`
	Tokens TokenResponse `json:"tokens"`
}

func (s *Service) issueTokens(u *User) (TokenResponse, error) {
	pair, err := s.tokens.IssuePair(u.ID.String(), u.Username)
	if err != nil {
		return TokenResponse{}, httperr.Internal(err)
	}
	return TokenResponse{TokenPair: *pair, ExpiresIn: int(s.accessTTL.Seconds())}, nil
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	if !ValidUsername(req.Username) {
		return nil, httperr.Validation("username must be 3-50 letters, digits or underscores")
	}
	if !ValidEmail(req.Email) {
		return nil, httperr.Validation("invalid email address")
	}
	if !ValidPassword(req.Password) {
		return nil, httperr.Validation("password must be at least 8 characters with a letter and a digit")
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, httperr.Internal(err)
	}

	u := &User{
		Username:     req.Username,
		Email:        strings.ToLower(req.Email),
		PasswordHash: hash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		PhoneNumber:  req.PhoneNumber,
		Role:         auth.RoleUser,
		IsActive:     true,
		IsVerified:   false,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if db.IsUniqueViolation(err) {
			if strings.Contains(db.ConstraintName(err), "email") {
				return nil, httperr.Conflict("email already registered")
			}
			return nil, httperr.Conflict("username already registered")
		}
		return nil, httperr.Internal(err)
	}

	tokens, err := s.issueTokens(u)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if err := s.users.StampLastLogin(ctx, u.ID, now); err != nil {
		return nil, httperr.Internal(err)
	}
	u.LastLoginAt = &now
	return &AuthResponse{User: u, Tokens: tokens}, nil
}

// Login authenticates by username or email. Every failure collapses to the
// same generic 401.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	u, err := s.users.GetByLogin(ctx, strings.TrimSpace(req.Username))
	if err != nil {
		if db.IsNotFound(err) {
			return nil, httperr.Authentication()
		}
		return nil, httperr.Internal(err)
	}
	if !auth.CheckPassword(req.Password, u.PasswordHash) {
		return nil, httperr.Authentication()
	}
	if !u.IsActive {
		return nil, httperr.Authentication()
	}

	tokens, err := s.issueTokens(u)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if err := s.users.StampLastLogin(ctx, u.ID, now); err != nil {
		return nil, httperr.Internal(err)
	}
	u.LastLoginAt = &now
	return &AuthResponse{User: u, Tokens: tokens}, nil
}

// Refresh exchanges a valid refresh token for a new pair, re-checking that
// the user still exists and is active.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	claims, err := s.tokens.Parse(refreshToken, auth.TokenTypeRefresh)
	if err != nil {
		return nil, httperr.Authentication()
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, httperr.Authentication()
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil || !u.IsActive {
		return nil, httperr.Authentication()
	}
	tokens, err := s.issueTokens(u)
	if err != nil {
		return nil, err
	}
	return &tokens, nil
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, httperr.NotFound("user")
		}
		return nil, httperr.Internal(err)
	}
	return u, nil
}

func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, current, updated string) error {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if db.IsNotFound(err) {
			return httperr.NotFound("user")
		}
		return httperr.Internal(err)
	}
	if !auth.CheckPassword(current, u.PasswordHash) {
		return httperr.Authentication()
	}
	if !ValidPassword(updated) {
		return httperr.Validation("password must be at least 8 characters with a letter and a digit")
	}
	hash, err := auth.HashPassword(updated)
	if err != nil {
		return httperr.Internal(err)
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return httperr.Internal(err)
	}
	return nil
}

func (s *Service) ListUsers(ctx context.Context, limit, offset int) ([]*User, int, error) {
	items, total, err := s.users.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, httperr.Internal(err)
	}
	return items, total, nil
}

// SetActive activates or deactivates an account.
func (s *Service) SetActive(ctx context.Context, id uuid.UUID, active bool) (*User, error) {
	u, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	u.IsActive = active
	if err := s.users.Update(ctx, u); err != nil {
		return nil, httperr.Internal(err)
	}
	return u, nil
}

// SetRole assigns one of the known roles.
func (s *Service) SetRole(ctx context.Context, id uuid.UUID, role string) (*User, error) {
	switch role {
	case auth.RoleAdmin, auth.RoleLabTechnician, auth.RoleUser:
	default:
		return nil, httperr.Validation("unknown role: " + role)
	}
	u, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	u.Role = role
	if err := s.users.Update(ctx, u); err != nil {
		return nil, httperr.Internal(err)
	}
	return u, nil
}

// Resolve implements auth.UserResolver: token subject to live principal,
// rejecting unknown and deactivated users.
func (s *Service) Resolve(ctx context.Context, userID string) (*auth.Principal, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return nil, httperr.Authentication()
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, httperr.Authentication()
	}
	if !u.IsActive {
		return nil, httperr.Authentication()
	}
	return &auth.Principal{ID: u.ID.String(), Username: u.Username, Role: u.Role}, nil
}
