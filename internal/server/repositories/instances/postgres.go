// Package instances provides the PostgreSQL-backed registry of managed
// world instances. Ids come from the store's autoincrement.
package instances

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/worldkeeper/internal/common"
	"github.com/dmitrijs2005/worldkeeper/internal/dbx"
	"github.com/dmitrijs2005/worldkeeper/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// PostgresRepository implements instance storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// storeError marks a driver-level failure as a store outage so callers
// can classify it with errors.Is(err, common.ErrStoreUnavailable).
func storeError(err error) error {
	return fmt.Errorf("%w: %w", common.ErrStoreUnavailable, err)
}

// Insert adds a new record and returns it with the assigned id. An active
// record with the same name yields common.ErrDuplicateName; under two
// concurrent inserts the unique index guarantees exactly one winner.
func (r *PostgresRepository) Insert(ctx context.Context, inst *models.Instance) (*models.Instance, error) {
	query := `
		INSERT INTO instances (name, address, status, machine_ref)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query,
		inst.Name, inst.Address, string(inst.Status), inst.MachineRef).Scan(&inst.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, common.ErrDuplicateName
		}
		return nil, storeError(err)
	}

	return inst, nil
}

// UpdateStatus sets the status of the record with the given id.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id int64, status models.Status) error {
	query := `UPDATE instances SET status = $2 WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id, string(status))
	if err != nil {
		return storeError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeError(err)
	}
	if n == 0 {
		return common.ErrInstanceNotFound
	}
	return nil
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.Instance, error) {
	inst := &models.Instance{}
	var status string
	err := row.Scan(&inst.ID, &inst.Name, &inst.Address, &status, &inst.MachineRef)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrInstanceNotFound
		}
		return nil, storeError(err)
	}

	parsed, err := models.ParseStatus(status)
	if err != nil {
		return nil, fmt.Errorf("corrupt instance row %d: %w", inst.ID, err)
	}
	inst.Status = parsed

	return inst, nil
}

// Get returns a snapshot of the record with the given id.
func (r *PostgresRepository) Get(ctx context.Context, id int64) (*models.Instance, error) {
	query := `
		SELECT id, name, address, status, machine_ref FROM instances
		WHERE id = $1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// GetByName returns a snapshot of the active record named name.
func (r *PostgresRepository) GetByName(ctx context.Context, name string) (*models.Instance, error) {
	query := `
		SELECT id, name, address, status, machine_ref FROM instances
		WHERE name = $1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, name))
}

// List returns snapshots of every record ordered by id.
func (r *PostgresRepository) List(ctx context.Context) ([]*models.Instance, error) {
	query := `SELECT id, name, address, status, machine_ref FROM instances ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, storeError(err)
	}
	defer rows.Close()

	var result []*models.Instance
	for rows.Next() {
		var item models.Instance
		var status string
		if err := rows.Scan(&item.ID, &item.Name, &item.Address, &status, &item.MachineRef); err != nil {
			return nil, storeError(err)
		}
		parsed, err := models.ParseStatus(status)
		if err != nil {
			return nil, fmt.Errorf("corrupt instance row %d: %w", item.ID, err)
		}
		item.Status = parsed
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError(err)
	}
	return result, nil
}

// Delete removes the record with the given id. Callers must only do this
// after the provisioner confirmed the backing machine is gone.
func (r *PostgresRepository) Delete(ctx context.Context, id int64) error {
	query := `DELETE FROM instances WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return storeError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeError(err)
	}
	if n == 0 {
		return common.ErrInstanceNotFound
	}
	return nil
}
