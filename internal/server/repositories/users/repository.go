package users

import (
	"context"

	"github.com/dmitrijs2005/worldkeeper/internal/server/models"
)

// Repository is pure persistence over user records; credential policy
// (hashing, role checks) lives in the service layer.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	UpdateRole(ctx context.Context, id int64, role models.Role) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context) ([]*models.UserInfo, error)
}
