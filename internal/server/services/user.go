// Package services contains server-side business logic: credential and
// session handling (UserService) and the instance lifecycle state machine
// (InstanceService). Services own all invariant enforcement; repositories
// stay pure persistence.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/worldkeeper/internal/common"
	"github.com/dmitrijs2005/worldkeeper/internal/dbx"
	"github.com/dmitrijs2005/worldkeeper/internal/keymu"
	"github.com/dmitrijs2005/worldkeeper/internal/server/auth"
	"github.com/dmitrijs2005/worldkeeper/internal/server/config"
	"github.com/dmitrijs2005/worldkeeper/internal/server/cryptox"
	"github.com/dmitrijs2005/worldkeeper/internal/server/models"
	"github.com/dmitrijs2005/worldkeeper/internal/server/repositories/repomanager"
)

// UserService provides credential-store operations plus session issuance:
//   - CreateUser / UpdateRole / DeleteUser / ListUsers: user management
//   - VerifyPassword: credential check returning the stored role
//   - Login: verify credentials and mint a session token
//   - Register: token-gated user creation (requester must be ADMIN)
type UserService struct {
	db            *sql.DB
	repomanager   repomanager.RepositoryManager
	jwtSecret     []byte
	tokenValidity time.Duration
	userLocks     *keymu.Mutex
}

// NewUserService constructs a UserService using repositories and server config.
func NewUserService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) *UserService {
	return &UserService{
		db:            db,
		repomanager:   m,
		jwtSecret:     []byte(cfg.SecretKey),
		tokenValidity: cfg.TokenValidityDuration,
		userLocks:     keymu.New(),
	}
}

// CreateUser hashes the password with a fresh salt and inserts the record.
// Writes for one username are serialized, so two concurrent creations
// cannot both pass the duplicate check; the unique index backstops the
// race across processes. Returns the assigned id.
func (s *UserService) CreateUser(ctx context.Context, username, password string, role models.Role) (int64, error) {
	if !role.Valid() {
		return 0, fmt.Errorf("cannot create user with unknown role %q", role)
	}

	s.userLocks.Lock(username)
	defer s.userLocks.Unlock(username)

	record, err := cryptox.EncodePassword(password)
	if err != nil {
		return 0, fmt.Errorf("error encoding password: %w", err)
	}
	user := &models.User{
		Username: username,
		Password: record,
		Role:     role,
	}

	repo := s.repomanager.Users(s.db)
	created, err := repo.Create(ctx, user)
	if err != nil {
		if errors.Is(err, common.ErrDuplicateUsername) {
			return 0, err
		}
		return 0, fmt.Errorf("error creating user: %w", err)
	}

	return created.ID, nil
}

// VerifyPassword checks the credential pair and returns the stored role.
// A missing user yields common.ErrUserNotFound and a wrong password yields
// common.ErrInvalidCredentials; callers that must not reveal which (the
// login path) collapse the two themselves.
func (s *UserService) VerifyPassword(ctx context.Context, username, password string) (models.Role, error) {
	repo := s.repomanager.Users(s.db)

	user, err := repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrUserNotFound) {
			return "", common.ErrUserNotFound
		}
		return "", fmt.Errorf("error loading user: %w", err)
	}

	ok, err := cryptox.VerifyPassword(user.Password, password)
	if err != nil {
		return "", fmt.Errorf("error verifying password for user %d: %w", user.ID, err)
	}
	if !ok {
		return "", common.ErrInvalidCredentials
	}

	return user.Role, nil
}

// Login verifies the credentials and returns a signed session token.
// Unknown users and wrong passwords both come back as
// common.ErrInvalidCredentials so the response never confirms whether a
// username exists.
func (s *UserService) Login(ctx context.Context, username, password string) (string, error) {
	role, err := s.VerifyPassword(ctx, username, password)
	if err != nil {
		if errors.Is(err, common.ErrUserNotFound) || errors.Is(err, common.ErrInvalidCredentials) {
			return "", common.ErrInvalidCredentials
		}
		return "", err
	}

	token, err := auth.GenerateToken(username, role, s.jwtSecret, s.tokenValidity)
	if err != nil {
		return "", fmt.Errorf("error issuing token: %w", err)
	}

	return token, nil
}

// Register creates a user on behalf of requesterRole. Only admins may
// register users; everyone else gets common.ErrForbidden.
func (s *UserService) Register(ctx context.Context, requesterRole models.Role, username, password string, role models.Role) (int64, error) {
	if requesterRole != models.RoleAdmin {
		return 0, common.ErrForbidden
	}
	return s.CreateUser(ctx, username, password, role)
}

// UpdateRole changes the role of the user with the given id.
func (s *UserService) UpdateRole(ctx context.Context, id int64, role models.Role) error {
	if !role.Valid() {
		return fmt.Errorf("cannot assign unknown role %q", role)
	}
	repo := s.repomanager.Users(s.db)
	return repo.UpdateRole(ctx, id, role)
}

// DeleteUser removes the user with the given id.
func (s *UserService) DeleteUser(ctx context.Context, id int64) error {
	repo := s.repomanager.Users(s.db)
	return repo.Delete(ctx, id)
}

// ListUsers returns every user, ordered by id, with no password material.
func (s *UserService) ListUsers(ctx context.Context) ([]*models.UserInfo, error) {
	repo := s.repomanager.Users(s.db)
	return repo.List(ctx)
}

// EnsureBootstrapAdmin seeds the fixed first-run admin record so that
// registration, which itself requires an admin token, can be bootstrapped.
// It is a no-op when the user already exists. Check and insert run in one
// transaction so a half-seeded record never becomes visible.
func (s *UserService) EnsureBootstrapAdmin(ctx context.Context, username, password string) error {
	s.userLocks.Lock(username)
	defer s.userLocks.Unlock(username)

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)

		_, err := repo.GetByUsername(ctx, username)
		if err == nil {
			return nil
		}
		if !errors.Is(err, common.ErrUserNotFound) {
			return fmt.Errorf("error checking bootstrap admin: %w", err)
		}

		record, err := cryptox.EncodePassword(password)
		if err != nil {
			return fmt.Errorf("error encoding password: %w", err)
		}
		user := &models.User{Username: username, Password: record, Role: models.RoleAdmin}
		if _, err := repo.Create(ctx, user); err != nil {
			// A concurrent replica may have seeded it first.
			if errors.Is(err, common.ErrDuplicateUsername) {
				return nil
			}
			return fmt.Errorf("error seeding bootstrap admin: %w", err)
		}
		return nil
	})
}
