package instances

import (
	"context"

	"github.com/dmitrijs2005/worldkeeper/internal/server/models"
)

// Repository is pure persistence over instance records. Transition
// validity is the lifecycle service's concern; the repository only
// guarantees atomic single-row operations and name uniqueness.
type Repository interface {
	Insert(ctx context.Context, inst *models.Instance) (*models.Instance, error)
	UpdateStatus(ctx context.Context, id int64, status models.Status) error
	Get(ctx context.Context, id int64) (*models.Instance, error)
	GetByName(ctx context.Context, name string) (*models.Instance, error)
	List(ctx context.Context) ([]*models.Instance, error)
	Delete(ctx context.Context, id int64) error
}
