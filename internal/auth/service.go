package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/offszn/marketplace/internal"
)

type ServiceAPI interface {
	ValidateAccessToken(tokenString string) (*Claims, error)
	LoadUser(ctx context.Context, userID string) (*internal.User, error)
}

// Service is the main auth service with dependencies
type Service struct {
	userRepo       UserRepository
	tokenGenerator TokenGenerator
}

// NewService creates a new auth service
func NewService(userRepo UserRepository, tokenGen TokenGenerator) *Service {
	return &Service{
		userRepo:       userRepo,
		tokenGenerator: tokenGen,
	}
}

// NewJWTTokenGenerator creates a new JWT token generator
func NewJWTTokenGenerator(secret string, ttl time.Duration) *JWTTokenGenerator {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &JWTTokenGenerator{
		AccessTokenSecret: []byte(secret),
		AccessTokenTTL:    ttl,
		Issuer:            Issuer,
		now:               time.Now,
	}
}

// ValidateAccessToken validates access token and returns claims
func (s *Service) ValidateAccessToken(tokenString string) (*Claims, error) {
	return s.tokenGenerator.ValidateToken(tokenString)
}

// LoadUser resolves the active user behind a token subject.
func (s *Service) LoadUser(ctx context.Context, userID string) (*internal.User, error) {
	rec, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !rec.IsActive {
		return nil, ErrUserInactive
	}
	return &internal.User{ID: rec.ID, Email: rec.Email, Role: rec.Role}, nil
}

// IssueToken signs an access token for an existing user, looked up by id or email.
func (s *Service) IssueToken(ctx context.Context, idOrEmail string) (string, *internal.User, error) {
	rec, err := s.userRepo.GetUserByID(ctx, idOrEmail)
	if errors.Is(err, ErrUserNotFound) {
		rec, err = s.userRepo.GetUserByEmail(ctx, idOrEmail)
	}
	if err != nil {
		return "", nil, err
	}
	if !rec.IsActive {
		return "", nil, ErrUserInactive
	}

	token, err := s.tokenGenerator.GenerateAccessToken(rec.ID, rec.Email, rec.Role)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return token, &internal.User{ID: rec.ID, Email: rec.Email, Role: rec.Role}, nil
}

// GenerateAccessToken creates a new access token
func (j *JWTTokenGenerator) GenerateAccessToken(userID, email, role string) (string, error) {
	now := j.clock()
	claims := &Claims{
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.Issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(j.AccessTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.AccessTokenSecret)
}

// ValidateToken validates a JWT token and returns claims
func (j *JWTTokenGenerator) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.AccessTokenSecret, nil
	}, jwt.WithTimeFunc(j.clock), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

func (j *JWTTokenGenerator) clock() time.Time {
	if j.now == nil {
		return time.Now()
	}
	return j.now()
}
