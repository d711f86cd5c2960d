// Package auth issues and validates the signed session tokens that gate
// every privileged operation. Tokens are stateless HS256 JWTs carrying
// identity, role, and expiry; there is no revocation list and no key
// rotation (known limitation: one process-wide secret from config).
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/worldkeeper/internal/common"
	"github.com/dmitrijs2005/worldkeeper/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the token payload: registered claims plus the operator's
// username and role.
type Claims struct {
	jwt.RegisteredClaims
	Username string      `json:"username"`
	Role     models.Role `json:"role"`
}

// GenerateToken mints a signed token for username acting as role, valid
// for validityDuration from now.
func GenerateToken(username string, role models.Role, secretKey []byte, validityDuration time.Duration) (string, error) {
	if !role.Valid() {
		return "", fmt.Errorf("cannot issue token for unknown role %q", role)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Username: username,
		Role:     role,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ParseToken verifies the signature and expiry of tokenString and returns
// its claims. Expired tokens yield common.ErrTokenExpired; anything else
// that fails verification yields common.ErrInvalidToken.
func ParseToken(tokenString string, secretKey []byte) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrInvalidToken
	}

	if !token.Valid || !claims.Role.Valid() {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}
