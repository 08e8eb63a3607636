package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	apperrors "github.com/wekeepgrowing/paycore/pkg/errors"
)

// Staff represents an authenticated merchant staff member from JWT
type Staff struct {
	StaffID   string    `json:"staff_id"`
	StoreID   uuid.UUID `json:"store_id"`
	StoreSlug string    `json:"store_slug"`
	Role      string    `json:"role"`
}

// StaffClaims are the claims carried by merchant staff tokens.
type StaffClaims struct {
	StoreID   string `json:"store_id"`
	StoreSlug string `json:"store_slug"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

const (
	RoleOwner = "owner"
	RoleAdmin = "admin"
	RoleStaff = "staff"
)

type contextKey string

const (
	staffContextKey contextKey = "authenticated_staff"
)

// JWTConfig holds the configuration for JWT middleware
type JWTConfig struct {
	Secret    string
	Issuer    string
	Logger    *zap.Logger
	SkipPaths []string
}

// JWTMiddleware validates HS256 staff tokens and stores the staff identity
// in the request context.
func JWTMiddleware(config JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			for _, skipPath := range config.SkipPaths {
				if strings.HasPrefix(path, skipPath) {
					return next(c)
				}
			}

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				config.Logger.Warn("Missing authorization header",
					zap.String("path", path),
					zap.String("method", c.Request().Method))
				return unauthenticated(c, "Authorization header required")
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				config.Logger.Warn("Invalid authorization header format",
					zap.String("path", path))
				return unauthenticated(c, "Invalid authorization header format. Expected: Bearer <token>")
			}

			opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
			if config.Issuer != "" {
				opts = append(opts, jwt.WithIssuer(config.Issuer))
			}

			claims := &StaffClaims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return []byte(config.Secret), nil
			}, opts...)
			if err != nil || !token.Valid {
				config.Logger.Warn("JWT validation failed",
					zap.Error(err),
					zap.String("path", path))
				return unauthenticated(c, "Invalid or expired token")
			}

			staff, err := claims.staff()
			if err != nil {
				config.Logger.Warn("Invalid JWT claims",
					zap.Error(err),
					zap.String("path", path))
				return unauthenticated(c, "Invalid token claims")
			}

			ctx := context.WithValue(c.Request().Context(), staffContextKey, staff)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("store_id", staff.StoreID.String())

			config.Logger.Debug("Staff authenticated",
				zap.String("staff_id", staff.StaffID),
				zap.String("store_slug", staff.StoreSlug),
				zap.String("path", path))

			return next(c)
		}
	}
}

func (c *StaffClaims) staff() (*Staff, error) {
	if c.Subject == "" {
		return nil, fmt.Errorf("missing sub claim")
	}
	storeID, err := uuid.Parse(c.StoreID)
	if err != nil {
		return nil, fmt.Errorf("invalid store_id claim: %w", err)
	}
	if c.StoreSlug == "" {
		return nil, fmt.Errorf("missing store_slug claim")
	}
	switch c.Role {
	case RoleOwner, RoleAdmin, RoleStaff:
	default:
		return nil, fmt.Errorf("unknown role %q", c.Role)
	}
	return &Staff{
		StaffID:   c.Subject,
		StoreID:   storeID,
		StoreSlug: c.StoreSlug,
		Role:      c.Role,
	}, nil
}

func unauthenticated(c echo.Context, msg string) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{
		"success":   false,
		"error":     msg,
		"errorCode": apperrors.ErrUnauthenticated,
	})
}

// GetStaffFromContext extracts the authenticated staff member from the request context
func GetStaffFromContext(c echo.Context) (*Staff, error) {
	staff, ok := c.Request().Context().Value(staffContextKey).(*Staff)
	if !ok || staff == nil {
		return nil, fmt.Errorf("no authenticated staff found in context")
	}
	return staff, nil
}

// RequireStore returns the authenticated staff member when the token is
// scoped to storeSlug. A different store yields UNAUTHORIZED.
func RequireStore(c echo.Context, storeSlug string) (*Staff, error) {
	staff, err := GetStaffFromContext(c)
	if err != nil {
		return nil, apperrors.NewAppError(apperrors.ErrUnauthenticated, "Authentication required", err)
	}
	if storeSlug != "" && staff.StoreSlug != storeSlug {
		return nil, apperrors.Forbidden("token is not authorized for this store")
	}
	return staff, nil
}

// SignStaffToken issues a staff token. Used by cmd/seed and tests.
func SignStaffToken(secret string, claims StaffClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
