// Package users provides the PostgreSQL-backed repository for credential
// records.
package users

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

// uniqueViolation is the PostgreSQL error code for a unique constraint hit.
const uniqueViolation = "23505"

// PostgresRepository implements user storage over a dbx.DBTX (*sql.DB or *sql.Tx).
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

// Create inserts a new user and returns it with the assigned id. A taken
// username yields common.ErrDuplicateUsername.
func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query := `
		INSERT INTO users (username, password, role)
		VALUES ($1, $2, $3)
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query,
		user.Username, user.Password, string(user.Role)).Scan(&user.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, common.ErrDuplicateUsername
		}
		return nil, storeError(err)
	}

	return user, nil
}

// GetByUsername returns the full record, password material included, for
// credential verification. Missing users yield common.ErrUserNotFound.
func (r *PostgresRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `
		SELECT id, username, password, role FROM users
		WHERE username = $1
	`
	user := &models.User{}
	var role string
	err := r.db.QueryRowContext(ctx, query, username).Scan(&user.ID, &user.Username, &user.Password, &role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrUserNotFound
		}
		return nil, storeError(err)
	}

	parsed, err := models.ParseRole(role)
	if err != nil {
		return nil, fmt.Errorf("corrupt user row %d: %w", user.ID, err)
	}
	user.Role = parsed

	return user, nil
}

// UpdateRole sets the role of the user with the given id.
func (r *PostgresRepository) UpdateRole(ctx context.Context, id int64, role models.Role) error {
	query := `UPDATE users SET role = $2 WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id, string(role))
	if err != nil {
		return storeError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeError(err)
	}
	if n == 0 {
		return common.ErrUserNotFound
	}
	return nil
}

// Delete removes the user with the given id.
func (r *PostgresRepository) Delete(ctx context.Context, id int64) error {
	query := `DELETE FROM users WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return storeError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeError(err)
	}
	if n == 0 {
		return common.ErrUserNotFound
	}
	return nil
}

// List returns every user ordered by id, excluding password material.
func (r *PostgresRepository) List(ctx context.Context) ([]*models.UserInfo, error) {
	query := `SELECT id, username, role FROM users ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, storeError(err)
	}
	defer rows.Close()

	var result []*models.UserInfo
	for rows.Next() {
		var item models.UserInfo
		var role string
		if err := rows.Scan(&item.ID, &item.Username, &role); err != nil {
			return nil, storeError(err)
		}
		parsed, err := models.ParseRole(role)
		if err != nil {
			return nil, fmt.Errorf("corrupt user row %d: %w", item.ID, err)
		}
		item.Role = parsed
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError(err)
	}
	return result, nil
}
