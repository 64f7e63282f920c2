package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "opensimcore"

// Role names carried in tokens.
const (
	RoleViewer   = "viewer"
	RoleOperator = "operator"
	RoleTester   = "tester"
)

type JWTClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type JWTHandler struct {
	secretKey []byte
	tokenTTL  time.Duration
	now       func() time.Time
}

func NewJWTHandler(secretKey string, ttl time.Duration) *JWTHandler {
	return &JWTHandler{
		secretKey: []byte(secretKey),
		tokenTTL:  ttl,
		now:       time.Now,
	}
}

// GenerateToken signs a token for subject with role.
func (j *JWTHandler) GenerateToken(subject, role string) (string, error) {
	if _, ok := rolePermissions[role]; !ok {
		return "", fmt.Errorf("unknown role %q", role)
	}

	now := j.now()
	claims := JWTClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.tokenTTL)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secretKey)
}

// ValidateToken validates and parses a token.
func (j *JWTHandler) ValidateToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secretKey, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(j.now))

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, fmt.Errorf("invalid token")
}
