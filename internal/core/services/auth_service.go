package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"telemeet/internal/core/domain"
	"telemeet/internal/core/ports"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the identity token payload issued by the external auth system.
type Claims struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// AuthService resolves opaque HS256 bearer tokens to user identities and can
// mint tokens for development setups.
type AuthService struct {
	jwtSecret []byte
	tokenTTL  time.Duration
}

func NewAuthService(jwtSecret string, tokenTTL time.Duration) *AuthService {
	return &AuthService{
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  tokenTTL,
	}
}

// Resolve maps a credential to an identity. Any parse or expiry problem is
// an authentication failure; the connection is refused before meeting state
// is touched.
func (s *AuthService) Resolve(_ context.Context, credential string) (ports.Identity, error) {
	token, err := jwt.ParseWithClaims(credential, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ports.Identity{}, fmt.Errorf("%w: token expired", domain.ErrAuthenticationFailure)
		}
		return ports.Identity{}, fmt.Errorf("%w: %v", domain.ErrAuthenticationFailure, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return ports.Identity{}, domain.ErrAuthenticationFailure
	}
	return ports.Identity{
		UserID: domain.UserID(claims.UserID),
		Name:   claims.Name,
		Role:   domain.Role(claims.Role),
	}, nil
}

// Mint issues a signed token. Production deployments get tokens from the
// external identity provider; this keeps development and tests self
// contained.
func (s *AuthService) Mint(userID domain.UserID, name string, role domain.Role) (string, error) {
	claims := &Claims{
		UserID: string(userID),
		Name:   name,
		Role:   string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}
