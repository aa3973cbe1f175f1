package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthUser is the credential view of a user, loaded before any tenant
// context exists. Authentication is the one deliberately cross-tenant read
// in the system; everything after it is scoped by the tenant claim.
type AuthUser struct {
	ID           int64
	TenantID     int64
	Email        string
	Name         string
	PasswordHash string
	IsActive     bool
}

type AuthTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Claims carry the user and tenant identity. The tenant_id claim is the
// sole source of the ambient tenant for the request.
type Claims struct {
	UserID   int64  `json:"user_id"`
	TenantID int64  `json:"tenant_id"`
	Email    string `json:"email"`
	jwt.RegisteredClaims
}

// TokenGenerator creates and validates signed tokens.
type TokenGenerator interface {
	GenerateAccessToken(user *AuthUser) (string, error)
	GenerateRefreshToken(user *AuthUser) (string, error)
	ValidateAccessToken(tokenString string) (*Claims, error)
	ValidateRefreshToken(tokenString string) (*Claims, error)
}

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
	ErrUserInactive       = errors.New("user is inactive")
)

type JWTTokenGenerator struct {
	AccessTokenSecret  []byte
	RefreshTokenSecret []byte
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
}
