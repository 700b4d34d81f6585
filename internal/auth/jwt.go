package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mdawoud27/job-search-app-sub000/internal/apperr"
	"github.com/mdawoud27/job-search-app-sub000/internal/models"
)

// Identity is what a verified token tells us about the caller.
type Identity struct {
	UserID string
	Role   models.Role
}

// Verifier checks a pre-issued access token. Tokens are minted by the
// account service; this side never signs.
type Verifier interface {
	VerifyToken(token string) (Identity, error)
}

type Claims struct {
	UserID string `json:"id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

type JWTVerifier struct {
	key    any
	method string
}

func NewJWTVerifierHS256(secret string) (*JWTVerifier, error) {
	if secret == "" {
		return nil, errors.New("hs256 secret is empty")
	}
	return &JWTVerifier{key: []byte(secret), method: jwt.SigningMethodHS256.Alg()}, nil
}

// NewJWTVerifierRS256 loads an RSA public key from filesystem
func NewJWTVerifierRS256(pubPath string) (*JWTVerifier, error) {
	b, err := os.ReadFile(pubPath)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	pub, err := jwt.ParseRSAPublicKeyFromPEM(b)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	return &JWTVerifier{key: pub, method: jwt.SigningMethodRS256.Alg()}, nil
}

func (v *JWTVerifier) VerifyToken(tokenStr string) (Identity, error) {
	if tokenStr == "" {
		return Identity{}, apperr.Auth("missing token", nil)
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return v.key, nil
	}, jwt.WithValidMethods([]string{v.method}), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, apperr.Auth("token expired", err)
		}
		return Identity{}, apperr.Auth("invalid token", err)
	}

	uid := claims.UserID
	if uid == "" {
		uid = claims.Subject
	}
	if uid == "" {
		return Identity{}, apperr.Auth("token has no subject", nil)
	}
	return Identity{UserID: uid, Role: models.ParseRole(claims.Role)}, nil
}

// ParseBearerToken extracts the token from an Authorization header value.
func ParseBearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("authorization header empty")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", errors.New("invalid authorization header format")
	}
	return strings.TrimSpace(parts[1]), nil
}
