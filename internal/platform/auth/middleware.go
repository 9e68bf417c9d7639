package auth

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/vitalab/vitalab/internal/platform/httperr"
)

type contextKey string

const (
	UserIDKey   contextKey = "user_id"
	UsernameKey contextKey = "username"
	RoleKey     contextKey = "role"
)

// Role names assigned to users.
const (
	RoleAdmin         = "admin"
	RoleLabTechnician = "lab_technician"
	RoleUser          = "user"
)

// Principal is the authenticated caller as resolved against storage.
type Principal struct {
	ID       string
	Username string
	Role     string
}

// UserResolver turns a token subject into a live principal. Implementations
// must fail for unknown or deactivated users so that a valid token alone is
// not enough to act.
type UserResolver interface {
	Resolve(ctx context.Context, userID string) (*Principal, error)
}

func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}

func withPrincipal(c echo.Context, p *Principal) {
	ctx := c.Request().Context()
	ctx = context.WithValue(ctx, UserIDKey, p.ID)
	ctx = context.WithValue(ctx, UsernameKey, p.Username)
	ctx = context.WithValue(ctx, RoleKey, p.Role)
	c.SetRequest(c.Request().WithContext(ctx))
}

// Authenticate requires a valid bearer access token resolving to an active
// user. Every failure collapses to the same generic 401 so callers cannot
// distinguish a bad signature from a deactivated account.
func Authenticate(tm *TokenManager, resolver UserResolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenStr := bearerToken(c)
			if tokenStr == "" {
				return httperr.Authentication()
			}
			claims, err := tm.Parse(tokenStr, TokenTypeAccess)
			if err != nil {
				return httperr.Authentication()
			}
			p, err := resolver.Resolve(c.Request().Context(), claims.Subject)
			if err != nil {
				return httperr.Authentication()
			}
			withPrincipal(c, p)
			return next(c)
		}
	}
}

// OptionalAuthenticate resolves a principal when a bearer token is present
// and valid but lets anonymous requests through. Used on public routes so
// the rate limiter can key by user instead of IP.
func OptionalAuthenticate(tm *TokenManager, resolver UserResolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenStr := bearerToken(c)
			if tokenStr == "" {
				return next(c)
			}
			claims, err := tm.Parse(tokenStr, TokenTypeAccess)
			if err != nil {
				return next(c)
			}
			if p, err := resolver.Resolve(c.Request().Context(), claims.Subject); err == nil {
				withPrincipal(c, p)
			}
			return next(c)
		}
	}
}

func UserIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(UserIDKey).(string)
	return uid
}

func UsernameFromContext(ctx context.Context) string {
	name, _ := ctx.Value(UsernameKey).(string)
	return name
}

func RoleFromContext(ctx context.Context) string {
	role, _ := ctx.Value(RoleKey).(string)
	return role
}
