package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/dmitrijs2005/worldkeeper/internal/common"
	"github.com/dmitrijs2005/worldkeeper/internal/keymu"
	"github.com/dmitrijs2005/worldkeeper/internal/logging"
	"github.com/dmitrijs2005/worldkeeper/internal/server/archive"
	"github.com/dmitrijs2005/worldkeeper/internal/server/config"
	"github.com/dmitrijs2005/worldkeeper/internal/server/models"
	"github.com/dmitrijs2005/worldkeeper/internal/server/provisioner"
	"github.com/dmitrijs2005/worldkeeper/internal/server/repositories/repomanager"
)

// InstanceService drives the lifecycle state machine for managed world
// instances. Transitions for one instance id are serialized with a keyed
// lock; instances are independent of each other. The registry row is the
// sole source of truth for status, and every status change happens only
// after the corresponding provisioner call has returned.
//
// A provisioner call that times out or is cancelled has an unknown remote
// outcome. The affected instance is forced into ERROR (never its prior or
// intended status) and common.ErrAmbiguousOutcome is returned; getting
// out of ERROR is an explicit administrator action (deprovision), not
// anything automatic.
type InstanceService struct {
	db            *sql.DB
	repomanager   repomanager.RepositoryManager
	prov          provisioner.Provisioner
	arch          archive.Archive
	logger        logging.Logger
	provTimeout   time.Duration
	archivePrefix string
	instLocks     *keymu.Mutex
	nameLocks     *keymu.Mutex
}

// NewInstanceService constructs an InstanceService from its collaborators
// and server config.
func NewInstanceService(db *sql.DB, m repomanager.RepositoryManager, prov provisioner.Provisioner, arch archive.Archive, logger logging.Logger, cfg *config.Config) *InstanceService {
	return &InstanceService{
		db:            db,
		repomanager:   m,
		prov:          prov,
		arch:          arch,
		logger:        logger.With("module", "instances"),
		provTimeout:   cfg.ProvisionerTimeout,
		archivePrefix: cfg.ArchivePrefix,
		instLocks:     keymu.New(),
		nameLocks:     keymu.New(),
	}
}

// callProvisioner runs one state-mutating provisioner call under the
// configured timeout and classifies the failure: a timeout or cancellation
// means the remote side effect may or may not have happened
// (ErrAmbiguousOutcome); anything else is a plain provisioner failure
// (ErrProvisionerUnavailable). Mutating calls are never retried here; only
// the caller may retry, explicitly, to avoid double-provisioning.
func (s *InstanceService) callProvisioner(ctx context.Context, call func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.provTimeout)
	defer cancel()

	err := call(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", common.ErrAmbiguousOutcome, err)
	}
	return fmt.Errorf("%w: %v", common.ErrProvisionerUnavailable, err)
}

// setStatusBestEffort records a status outside the normal flow (error
// recovery). It runs detached from the caller's cancellation so a dying
// request cannot also lose the ERROR marker.
func (s *InstanceService) setStatusBestEffort(ctx context.Context, id int64, status models.Status) {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	repo := s.repomanager.Instances(s.db)
	if err := repo.UpdateStatus(dctx, id, status); err != nil {
		s.logger.Error(ctx, "failed to record instance status", "id", id, "status", status, "error", err.Error())
	}
}

func (s *InstanceService) saveKey(name string) string {
	return s.archivePrefix + name
}

func instKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

// Provision brings up a fresh machine for a new named instance. Admins
// and visitors may provision. Duplicate active names are rejected before
// any machine is created; the registry's unique index backstops the check,
// so two concurrent calls for the same name yield exactly one winner.
// Creation is synchronous, so the record lands directly in ON. On any
// provisioner failure nothing is committed.
func (s *InstanceService) Provision(ctx context.Context, role models.Role, name string) (*models.Instance, error) {
	if !role.In(models.RoleAdmin, models.RoleVisitor) {
		return nil, common.ErrForbidden
	}
	if name == "" {
		return nil, fmt.Errorf("instance name must not be empty")
	}

	s.nameLocks.Lock(name)
	defer s.nameLocks.Unlock(name)

	repo := s.repomanager.Instances(s.db)

	_, err := repo.GetByName(ctx, name)
	if err == nil {
		return nil, common.ErrDuplicateName
	}
	if !errors.Is(err, common.ErrInstanceNotFound) {
		return nil, err
	}

	var machine *provisioner.Machine
	err = s.callProvisioner(ctx, func(ctx context.Context) error {
		var cerr error
		machine, cerr = s.prov.Create(ctx)
		return cerr
	})
	if err != nil {
		return nil, err
	}

	inst := &models.Instance{
		Name:       name,
		Address:    machine.Address,
		Status:     models.StatusOn,
		MachineRef: machine.Ref,
	}
	created, err := repo.Insert(ctx, inst)
	if err != nil {
		// The machine is up but the registry refused the row. Tear the
		// machine down again rather than leak it.
		s.logger.Warn(ctx, "registry insert failed after machine creation, deleting machine", "name", name, "machine_ref", machine.Ref)
		if delErr := s.callProvisioner(context.WithoutCancel(ctx), func(ctx context.Context) error {
			return s.prov.Delete(ctx, machine.Ref)
		}); delErr != nil {
			s.logger.Error(ctx, "failed to delete orphaned machine", "machine_ref", machine.Ref, "error", delErr.Error())
		}
		return nil, err
	}

	return created, nil
}

// Start boots a stopped instance. Admin only. Starting an instance that is
// already ON is a no-op success with no provisioner call. An instance
// stuck in a transient or ERROR state needs reconciliation first.
func (s *InstanceService) Start(ctx context.Context, role models.Role, id int64) (*models.Instance, error) {
	if role != models.RoleAdmin {
		return nil, common.ErrForbidden
	}

	s.instLocks.Lock(instKey(id))
	defer s.instLocks.Unlock(instKey(id))

	repo := s.repomanager.Instances(s.db)
	inst, err := repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	switch inst.Status {
	case models.StatusOn:
		return inst, nil
	case models.StatusOff:
		// proceed
	case models.StatusPending, models.StatusPendingDown, models.StatusError:
		return nil, fmt.Errorf("instance %d in status %s needs reconciliation: %w", id, inst.Status, common.ErrAmbiguousOutcome)
	default:
		return nil, fmt.Errorf("unhandled status %q on instance %d", inst.Status, id)
	}

	if err := repo.UpdateStatus(ctx, id, models.StatusPending); err != nil {
		return nil, err
	}

	if err := s.callProvisioner(ctx, func(ctx context.Context) error {
		return s.prov.Start(ctx, inst.MachineRef)
	}); err != nil {
		if errors.Is(err, common.ErrAmbiguousOutcome) {
			s.setStatusBestEffort(ctx, id, models.StatusError)
		} else {
			s.setStatusBestEffort(ctx, id, inst.Status)
		}
		return nil, err
	}

	if err := repo.UpdateStatus(ctx, id, models.StatusOn); err != nil {
		// The machine is running but the row still says PENDING. Force
		// ERROR so the instance is flagged for reconciliation instead of
		// sitting in a transient status forever.
		s.setStatusBestEffort(ctx, id, models.StatusError)
		return nil, err
	}
	inst.Status = models.StatusOn
	return inst, nil
}

// Stop shuts a running instance down. Admin only. Stopping an instance
// that is already OFF is a no-op success with no provisioner call.
func (s *InstanceService) Stop(ctx context.Context, role models.Role, id int64) (*models.Instance, error) {
	if role != models.RoleAdmin {
		return nil, common.ErrForbidden
	}

	s.instLocks.Lock(instKey(id))
	defer s.instLocks.Unlock(instKey(id))

	repo := s.repomanager.Instances(s.db)
	inst, err := repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	switch inst.Status {
	case models.StatusOff:
		return inst, nil
	case models.StatusOn:
		// proceed
	case models.StatusPending, models.StatusPendingDown, models.StatusError:
		return nil, fmt.Errorf("instance %d in status %s needs reconciliation: %w", id, inst.Status, common.ErrAmbiguousOutcome)
	default:
		return nil, fmt.Errorf("unhandled status %q on instance %d", inst.Status, id)
	}

	if err := repo.UpdateStatus(ctx, id, models.StatusPendingDown); err != nil {
		return nil, err
	}

	if err := s.callProvisioner(ctx, func(ctx context.Context) error {
		return s.prov.Stop(ctx, inst.MachineRef)
	}); err != nil {
		if errors.Is(err, common.ErrAmbiguousOutcome) {
			s.setStatusBestEffort(ctx, id, models.StatusError)
		} else {
			s.setStatusBestEffort(ctx, id, inst.Status)
		}
		return nil, err
	}

	if err := repo.UpdateStatus(ctx, id, models.StatusOff); err != nil {
		// Same recovery as in Start: the machine stopped but the row is
		// stuck in PENDING_DOWN.
		s.setStatusBestEffort(ctx, id, models.StatusError)
		return nil, err
	}
	inst.Status = models.StatusOff
	return inst, nil
}

// Deprovision destroys the backing machine and, only once the provisioner
// confirms the deletion, removes the registry row and the archived save
// blob. Admin only. A failed provisioner call leaves the row untouched:
// the machine is considered still live. Deletion is allowed from any
// status, including ERROR, since it is the reconciliation path.
func (s *InstanceService) Deprovision(ctx context.Context, role models.Role, id int64) error {
	if role != models.RoleAdmin {
		return common.ErrForbidden
	}

	s.instLocks.Lock(instKey(id))
	defer s.instLocks.Unlock(instKey(id))

	repo := s.repomanager.Instances(s.db)
	inst, err := repo.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.callProvisioner(ctx, func(ctx context.Context) error {
		return s.prov.Delete(ctx, inst.MachineRef)
	}); err != nil {
		if errors.Is(err, common.ErrAmbiguousOutcome) {
			s.setStatusBestEffort(ctx, id, models.StatusError)
		}
		return err
	}

	if err := repo.Delete(ctx, id); err != nil {
		// Machine already destroyed; a row we cannot remove gets ERROR so
		// it never looks live.
		s.setStatusBestEffort(ctx, id, models.StatusError)
		return err
	}

	// The row is gone and the machine is gone; a leftover blob is
	// harmless and reconcilable, so its deletion is best effort.
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := s.arch.Delete(dctx, s.saveKey(inst.Name)); err != nil {
		s.logger.Warn(ctx, "failed to delete archived save", "name", inst.Name, "error", err.Error())
	}

	return nil
}

func readBackoff() retry.Backoff {
	return retry.WithMaxRetries(2, retry.NewExponential(100*time.Millisecond))
}

// Get returns a snapshot of one instance. Any authenticated role may read.
// As an idempotent read it is retried with backoff on transient store
// failures.
func (s *InstanceService) Get(ctx context.Context, role models.Role, id int64) (*models.Instance, error) {
	if !role.In(models.RoleAdmin, models.RoleVisitor) {
		return nil, common.ErrForbidden
	}

	repo := s.repomanager.Instances(s.db)

	var inst *models.Instance
	err := retry.Do(ctx, readBackoff(), func(ctx context.Context) error {
		var gerr error
		inst, gerr = repo.Get(ctx, id)
		if gerr == nil {
			return nil
		}
		if errors.Is(gerr, common.ErrInstanceNotFound) {
			return gerr
		}
		return retry.RetryableError(gerr)
	})
	if err != nil {
		return nil, err
	}
	return inst, nil
}

// List returns snapshots of every instance. Any authenticated role may read.
func (s *InstanceService) List(ctx context.Context, role models.Role) ([]*models.Instance, error) {
	if !role.In(models.RoleAdmin, models.RoleVisitor) {
		return nil, common.ErrForbidden
	}

	repo := s.repomanager.Instances(s.db)

	var result []*models.Instance
	err := retry.Do(ctx, readBackoff(), func(ctx context.Context) error {
		var lerr error
		result, lerr = repo.List(ctx)
		if lerr != nil {
			return retry.RetryableError(lerr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListRunning reports the machines the provisioner currently sees up,
// regardless of registry state. Admin only: it exposes raw provider
// state, which is the input for reconciling ERROR instances.
func (s *InstanceService) ListRunning(ctx context.Context, role models.Role) ([]*provisioner.Machine, error) {
	if role != models.RoleAdmin {
		return nil, common.ErrForbidden
	}

	var machines []*provisioner.Machine
	err := retry.Do(ctx, readBackoff(), func(ctx context.Context) error {
		cctx, cancel := context.WithTimeout(ctx, s.provTimeout)
		defer cancel()

		ms, lerr := s.prov.ListRunning(cctx)
		if lerr != nil {
			return retry.RetryableError(lerr)
		}
		machines = ms
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrProvisionerUnavailable, err)
	}
	return machines, nil
}

// UploadSave stores the local save file as the archive blob for the
// instance. Admin only.
func (s *InstanceService) UploadSave(ctx context.Context, role models.Role, id int64, localPath string) error {
	if role != models.RoleAdmin {
		return common.ErrForbidden
	}

	inst, err := s.Get(ctx, role, id)
	if err != nil {
		return err
	}
	return s.arch.Put(ctx, localPath, s.saveKey(inst.Name))
}

// DownloadSave fetches the instance's archived save into a local file.
// Any authenticated role may download.
func (s *InstanceService) DownloadSave(ctx context.Context, role models.Role, id int64, localPath string) error {
	if !role.In(models.RoleAdmin, models.RoleVisitor) {
		return common.ErrForbidden
	}

	inst, err := s.Get(ctx, role, id)
	if err != nil {
		return err
	}
	return s.arch.Get(ctx, s.saveKey(inst.Name), localPath)
}

// ListSaves returns the names of archived world saves, with the archive
// prefix trimmed. Any authenticated role may read.
func (s *InstanceService) ListSaves(ctx context.Context, role models.Role) ([]string, error) {
	if !role.In(models.RoleAdmin, models.RoleVisitor) {
		return nil, common.ErrForbidden
	}

	keys, err := s.arch.List(ctx, s.archivePrefix)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(keys))
	for _, k := range keys {
		name := strings.TrimPrefix(k, s.archivePrefix)
		if name == "" {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}
