package auth

import (
	"github.com/dmitrijs2005/worldkeeper/internal/common"
	"github.com/dmitrijs2005/worldkeeper/internal/server/models"
)

// Gate validates presented tokens and enforces role membership. One Gate
// is constructed at startup with the signing secret and shared by every
// privileged entry point.
type Gate struct {
	secret []byte
}

func NewGate(secret []byte) *Gate {
	return &Gate{secret: secret}
}

// Authorize verifies token and checks that the embedded role is one of
// requiredRoles. It returns the claims so the caller can act under the
// verified identity. Failure modes, in order: common.ErrInvalidToken,
// common.ErrTokenExpired, common.ErrForbidden.
func (g *Gate) Authorize(token string, requiredRoles ...models.Role) (*Claims, error) {
	claims, err := ParseToken(token, g.secret)
	if err != nil {
		return nil, err
	}

	if !claims.Role.In(requiredRoles...) {
		return nil, common.ErrForbidden
	}

	return claims, nil
}
