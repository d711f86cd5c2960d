package grpc

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/worldkeeper/internal/common"
	"github.com/dmitrijs2005/worldkeeper/internal/dbx"
	"github.com/dmitrijs2005/worldkeeper/internal/logging"
	"github.com/dmitrijs2005/worldkeeper/internal/server/archive"
	"github.com/dmitrijs2005/worldkeeper/internal/server/auth"
	"github.com/dmitrijs2005/worldkeeper/internal/server/config"
	"github.com/dmitrijs2005/worldkeeper/internal/server/models"
	"github.com/dmitrijs2005/worldkeeper/internal/server/provisioner"
	instancesrepo "github.com/dmitrijs2005/worldkeeper/internal/server/repositories/instances"
	"github.com/dmitrijs2005/worldkeeper/internal/server/repositories/repomanager"
	usersrepo "github.com/dmitrijs2005/worldkeeper/internal/server/repositories/users"
	"github.com/dmitrijs2005/worldkeeper/internal/server/services"
)

type nopLogger struct{}

func (n nopLogger) Debug(context.Context, string, ...any) {}
func (n nopLogger) Info(context.Context, string, ...any)  {}
func (n nopLogger) Warn(context.Context, string, ...any)  {}
func (n nopLogger) Error(context.Context, string, ...any) {}
func (n nopLogger) With(...any) logging.Logger            { return n }

// ---- in-memory repositories ----

type memUsersRepo struct {
	mu     sync.Mutex
	nextID int64
	byName map[string]*models.User
}

func (r *memUsersRepo) Create(ctx context.Context, u *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[u.Username]; ok {
		return nil, common.ErrDuplicateUsername
	}
	r.nextID++
	u.ID = r.nextID
	cp := *u
	r.byName[u.Username] = &cp
	return u, nil
}

func (r *memUsersRepo) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byName[username]
	if !ok {
		return nil, common.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *memUsersRepo) UpdateRole(ctx context.Context, id int64, role models.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byName {
		if u.ID == id {
			u.Role = role
			return nil
		}
	}
	return common.ErrUserNotFound
}

func (r *memUsersRepo) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, u := range r.byName {
		if u.ID == id {
			delete(r.byName, name)
			return nil
		}
	}
	return common.ErrUserNotFound
}

func (r *memUsersRepo) List(ctx context.Context) ([]*models.UserInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*models.UserInfo
	for _, u := range r.byName {
		result = append(result, &models.UserInfo{ID: u.ID, Username: u.Username, Role: u.Role})
	}
	return result, nil
}

type memInstancesRepo struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*models.Instance
}

func (r *memInstancesRepo) Insert(ctx context.Context, inst *models.Instance) (*models.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byID {
		if existing.Name == inst.Name {
			return nil, common.ErrDuplicateName
		}
	}
	r.nextID++
	inst.ID = r.nextID
	cp := *inst
	r.byID[inst.ID] = &cp
	return inst, nil
}

func (r *memInstancesRepo) UpdateStatus(ctx context.Context, id int64, status models.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.byID[id]
	if !ok {
		return common.ErrInstanceNotFound
	}
	inst.Status = status
	return nil
}

func (r *memInstancesRepo) Get(ctx context.Context, id int64) (*models.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.byID[id]
	if !ok {
		return nil, common.ErrInstanceNotFound
	}
	cp := *inst
	return &cp, nil
}

func (r *memInstancesRepo) GetByName(ctx context.Context, name string) (*models.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inst := range r.byID {
		if inst.Name == name {
			cp := *inst
			return &cp, nil
		}
	}
	return nil, common.ErrInstanceNotFound
}

func (r *memInstancesRepo) List(ctx context.Context) ([]*models.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*models.Instance
	for _, inst := range r.byID {
		cp := *inst
		result = append(result, &cp)
	}
	return result, nil
}

func (r *memInstancesRepo) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return common.ErrInstanceNotFound
	}
	delete(r.byID, id)
	return nil
}

type memRepoManager struct {
	users     *memUsersRepo
	instances *memInstancesRepo
}

func newMemRepoManager() *memRepoManager {
	return &memRepoManager{
		users:     &memUsersRepo{byName: map[string]*models.User{}},
		instances: &memInstancesRepo{byID: map[int64]*models.Instance{}},
	}
}

func (m *memRepoManager) Users(db dbx.DBTX) usersrepo.Repository         { return m.users }
func (m *memRepoManager) Instances(db dbx.DBTX) instancesrepo.Repository { return m.instances }
func (m *memRepoManager) RunMigrations(context.Context, *sql.DB) error   { return nil }

var _ repomanager.RepositoryManager = (*memRepoManager)(nil)

// ---- provisioner and archive fakes ----

type okProvisioner struct {
	mu      sync.Mutex
	created int
}

func (p *okProvisioner) Create(ctx context.Context) (*provisioner.Machine, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created++
	return &provisioner.Machine{
		Ref:     fmt.Sprintf("m-%d", p.created),
		Address: fmt.Sprintf("203.0.113.%d", p.created),
	}, nil
}

func (p *okProvisioner) Delete(ctx context.Context, ref string) error { return nil }
func (p *okProvisioner) Start(ctx context.Context, ref string) error  { return nil }
func (p *okProvisioner) Stop(ctx context.Context, ref string) error   { return nil }
func (p *okProvisioner) ListRunning(ctx context.Context) ([]*provisioner.Machine, error) {
	return nil, nil
}

type memArchive struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newMemArchive() *memArchive {
	return &memArchive{blobs: map[string][]byte{}}
}

func (a *memArchive) Put(ctx context.Context, localPath, key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.blobs[key] = []byte(localPath)
	return nil
}

func (a *memArchive) Get(ctx context.Context, key, localPath string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.blobs[key]; !ok {
		return fmt.Errorf("no blob for key %q", key)
	}
	return nil
}

func (a *memArchive) Delete(ctx context.Context, key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.blobs, key)
	return nil
}

func (a *memArchive) List(ctx context.Context, prefix string) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var keys []string
	for k := range a.blobs {
		keys = append(keys, k)
	}
	return keys, nil
}

var _ archive.Archive = (*memArchive)(nil)

// ---- server construction ----

const testSecret = "grpc-test-secret"

func newTestServer() *GRPCServer {
	cfg := &config.Config{
		SecretKey:             testSecret,
		TokenValidityDuration: time.Hour,
		ProvisionerTimeout:    time.Minute,
		ArchivePrefix:         "worlds/",
	}
	rm := newMemRepoManager()
	us := services.NewUserService(nil, rm, cfg)
	is := services.NewInstanceService(nil, rm, &okProvisioner{}, newMemArchive(), nopLogger{}, cfg)
	s, _ := NewGRPCServer("127.0.0.1:0", nopLogger{}, us, is, auth.NewGate([]byte(testSecret)))
	return s
}

func ctxWithRole(role models.Role) context.Context {
	claims := &auth.Claims{Username: "tester", Role: role}
	return context.WithValue(context.Background(), claimsKey, claims)
}

func mustToken(username string, role models.Role) string {
	token, err := auth.GenerateToken(username, role, []byte(testSecret), time.Hour)
	if err != nil {
		panic(err)
	}
	return token
}
