package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims represents JWT token claims. The subject is the user id.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

func (c *Claims) UserID() string {
	return c.Subject
}

// TokenGenerator creates and validates access tokens.
type TokenGenerator interface {
	GenerateAccessToken(userID, email, role string) (string, error)
	ValidateToken(tokenString string) (*Claims, error)
}

// UserRecord is the row the middleware needs to authorize a request.
type UserRecord struct {
	ID       string `db:"id"`
	Email    string `db:"email"`
	Role     string `db:"role"`
	IsActive bool   `db:"is_active"`
}

type UserRepository interface {
	GetUserByID(ctx context.Context, userID string) (*UserRecord, error)
	GetUserByEmail(ctx context.Context, email string) (*UserRecord, error)
}

type JWTTokenGenerator struct {
	AccessTokenSecret []byte
	AccessTokenTTL    time.Duration
	Issuer            string
	now               func() time.Time
}

const Issuer = "offszn"

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrUserNotFound = errors.New("user not found")
	ErrUserInactive = errors.New("user is inactive")
)
