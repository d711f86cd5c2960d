package services

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/worldkeeper/internal/common"
	"github.com/dmitrijs2005/worldkeeper/internal/dbx"
	"github.com/dmitrijs2005/worldkeeper/internal/server/models"
	"github.com/dmitrijs2005/worldkeeper/internal/server/provisioner"
	instancesrepo "github.com/dmitrijs2005/worldkeeper/internal/server/repositories/instances"
	usersrepo "github.com/dmitrijs2005/worldkeeper/internal/server/repositories/users"
)

// --- in-memory users repository ---

type fakeUsersRepo struct {
	mu     sync.Mutex
	nextID int64
	byName map[string]*models.User

	createErr error
	getErr    error
}

func newFakeUsersRepo() *fakeUsersRepo {
	return &fakeUsersRepo{byName: map[string]*models.User{}}
}

func (f *fakeUsersRepo) Create(ctx context.Context, u *models.User) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	if _, ok := f.byName[u.Username]; ok {
		return nil, common.ErrDuplicateUsername
	}
	f.nextID++
	u.ID = f.nextID
	cp := *u
	f.byName[u.Username] = &cp
	return u, nil
}

func (f *fakeUsersRepo) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byName[username]
	if !ok {
		return nil, common.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsersRepo) UpdateRole(ctx context.Context, id int64, role models.Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byName {
		if u.ID == id {
			u.Role = role
			return nil
		}
	}
	return common.ErrUserNotFound
}

func (f *fakeUsersRepo) Delete(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for name, u := range f.byName {
		if u.ID == id {
			delete(f.byName, name)
			return nil
		}
	}
	return common.ErrUserNotFound
}

func (f *fakeUsersRepo) List(ctx context.Context) ([]*models.UserInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []*models.UserInfo
	for _, u := range f.byName {
		result = append(result, &models.UserInfo{ID: u.ID, Username: u.Username, Role: u.Role})
	}
	return result, nil
}

// --- in-memory instances repository ---

type fakeInstancesRepo struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*models.Instance

	insertErr       error
	getErr          error
	updateStatusErr error
	deleteErr       error

	// when set, updateStatusErr fires only for writes to this status
	updateStatusErrOn models.Status
}

func newFakeInstancesRepo() *fakeInstancesRepo {
	return &fakeInstancesRepo{byID: map[int64]*models.Instance{}}
}

func (f *fakeInstancesRepo) Insert(ctx context.Context, inst *models.Instance) (*models.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	for _, existing := range f.byID {
		if existing.Name == inst.Name {
			return nil, common.ErrDuplicateName
		}
	}
	f.nextID++
	inst.ID = f.nextID
	cp := *inst
	f.byID[inst.ID] = &cp
	return inst, nil
}

func (f *fakeInstancesRepo) UpdateStatus(ctx context.Context, id int64, status models.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateStatusErr != nil && (f.updateStatusErrOn == "" || f.updateStatusErrOn == status) {
		return f.updateStatusErr
	}
	inst, ok := f.byID[id]
	if !ok {
		return common.ErrInstanceNotFound
	}
	inst.Status = status
	return nil
}

func (f *fakeInstancesRepo) Get(ctx context.Context, id int64) (*models.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	inst, ok := f.byID[id]
	if !ok {
		return nil, common.ErrInstanceNotFound
	}
	cp := *inst
	return &cp, nil
}

func (f *fakeInstancesRepo) GetByName(ctx context.Context, name string) (*models.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, inst := range f.byID {
		if inst.Name == name {
			cp := *inst
			return &cp, nil
		}
	}
	return nil, common.ErrInstanceNotFound
}

func (f *fakeInstancesRepo) List(ctx context.Context) ([]*models.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []*models.Instance
	for _, inst := range f.byID {
		cp := *inst
		result = append(result, &cp)
	}
	return result, nil
}

func (f *fakeInstancesRepo) Delete(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.byID[id]; !ok {
		return common.ErrInstanceNotFound
	}
	delete(f.byID, id)
	return nil
}

// --- repository manager over the fakes ---

type fakeRepoManager struct {
	users     *fakeUsersRepo
	instances *fakeInstancesRepo
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{users: newFakeUsersRepo(), instances: newFakeInstancesRepo()}
}

func (m *fakeRepoManager) Users(db dbx.DBTX) usersrepo.Repository         { return m.users }
func (m *fakeRepoManager) Instances(db dbx.DBTX) instancesrepo.Repository { return m.instances }
func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error   { return nil }

// --- provisioner fake ---

type fakeProvisioner struct {
	mu sync.Mutex

	createCalls int
	deleteCalls int
	startCalls  int
	stopCalls   int

	createErr error
	deleteErr error
	startErr  error
	stopErr   error

	running []*provisioner.Machine
	listErr error
}

func (f *fakeProvisioner) Create(ctx context.Context) (*provisioner.Machine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &provisioner.Machine{
		Ref:     fmt.Sprintf("m-%d", f.createCalls),
		Address: fmt.Sprintf("203.0.113.%d", f.createCalls),
	}, nil
}

func (f *fakeProvisioner) Delete(ctx context.Context, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	return f.deleteErr
}

func (f *fakeProvisioner) Start(ctx context.Context, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls++
	return f.startErr
}

func (f *fakeProvisioner) Stop(ctx context.Context, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	return f.stopErr
}

func (f *fakeProvisioner) ListRunning(ctx context.Context) ([]*provisioner.Machine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.running, nil
}

// --- archive fake ---

type fakeArchive struct {
	mu    sync.Mutex
	blobs map[string]string

	putErr    error
	getErr    error
	deleteErr error
	listErr   error
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{blobs: map[string]string{}}
}

func (f *fakeArchive) Put(ctx context.Context, localPath, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	f.blobs[key] = localPath
	return nil
}

func (f *fakeArchive) Get(ctx context.Context, key, localPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return f.getErr
	}
	if _, ok := f.blobs[key]; !ok {
		return fmt.Errorf("no blob %q", key)
	}
	return nil
}

func (f *fakeArchive) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.blobs, key)
	return nil
}

func (f *fakeArchive) List(ctx context.Context, prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var keys []string
	for k := range f.blobs {
		keys = append(keys, k)
	}
	return keys, nil
}
