package instances

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/worldkeeper/internal/common"
	"github.com/dmitrijs2005/worldkeeper/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestInsert_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id"}).AddRow(1)
	mock.ExpectQuery(`INSERT\s+INTO\s+instances\s*\(name,\s*address,\s*status,\s*machine_ref\)`).
		WithArgs("world1", "203.0.113.7", "ON", "m-abc").
		WillReturnRows(rows)

	inst := &models.Instance{Name: "world1", Address: "203.0.113.7", Status: models.StatusOn, MachineRef: "m-abc"}
	got, err := repo.Insert(context.Background(), inst)
	if err != nil {
		t.Fatalf("Insert error: %v", err)
	}
	if got.ID != 1 {
		t.Fatalf("expected id 1, got %d", got.ID)
	}
}

func TestInsert_DuplicateName(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`INSERT\s+INTO\s+instances`).
		WithArgs("world1", "", "ON", "m-abc").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "instances_name_idx"})

	_, err := repo.Insert(context.Background(), &models.Instance{Name: "world1", Status: models.StatusOn, MachineRef: "m-abc"})
	if !errors.Is(err, common.ErrDuplicateName) {
		t.Fatalf("expected common.ErrDuplicateName, got %v", err)
	}
}

func TestUpdateStatus(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE\s+instances\s+SET\s+status\s*=\s*\$2\s+WHERE\s+id\s*=\s*\$1`).
		WithArgs(int64(1), "OFF").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpdateStatus(context.Background(), 1, models.StatusOff); err != nil {
		t.Fatalf("UpdateStatus error: %v", err)
	}
}

func TestUpdateStatus_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE\s+instances\s+SET\s+status`).
		WithArgs(int64(404), "ERROR").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), 404, models.StatusError)
	if !errors.Is(err, common.ErrInstanceNotFound) {
		t.Fatalf("expected common.ErrInstanceNotFound, got %v", err)
	}
}

func TestGet_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "name", "address", "status", "machine_ref"}).
		AddRow(1, "world1", "203.0.113.7", "ON", "m-abc")
	mock.ExpectQuery(`SELECT\s+id,\s*name,\s*address,\s*status,\s*machine_ref\s+FROM\s+instances\s+WHERE\s+id`).
		WithArgs(int64(1)).
		WillReturnRows(rows)

	got, err := repo.Get(context.Background(), 1)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.Name != "world1" || got.Status != models.StatusOn {
		t.Fatalf("unexpected instance: %+v", got)
	}
}

func TestGet_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT\s+id,\s*name,\s*address,\s*status,\s*machine_ref\s+FROM\s+instances\s+WHERE\s+id`).
		WithArgs(int64(404)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), 404)
	if !errors.Is(err, common.ErrInstanceNotFound) {
		t.Fatalf("expected common.ErrInstanceNotFound, got %v", err)
	}
}

func TestGet_CorruptStatus(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "name", "address", "status", "machine_ref"}).
		AddRow(1, "world1", "", "BOOTING", "m-abc")
	mock.ExpectQuery(`SELECT\s+id,\s*name,\s*address,\s*status,\s*machine_ref\s+FROM\s+instances\s+WHERE\s+id`).
		WithArgs(int64(1)).
		WillReturnRows(rows)

	if _, err := repo.Get(context.Background(), 1); err == nil {
		t.Fatalf("expected error for unknown stored status")
	}
}

func TestList(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "name", "address", "status", "machine_ref"}).
		AddRow(1, "world1", "a", "ON", "m-1").
		AddRow(2, "world2", "b", "OFF", "m-2")
	mock.ExpectQuery(`SELECT\s+id,\s*name,\s*address,\s*status,\s*machine_ref\s+FROM\s+instances\s+ORDER\s+BY\s+id`).
		WillReturnRows(rows)

	got, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(got) != 2 || got[1].Status != models.StatusOff {
		t.Fatalf("unexpected listing: %+v", got)
	}
}

func TestStoreFailure_MarkedUnavailable(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	connErr := errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")

	mock.ExpectQuery(`SELECT\s+id,\s*name,\s*address,\s*status,\s*machine_ref\s+FROM\s+instances\s+WHERE\s+id`).
		WithArgs(int64(1)).
		WillReturnError(connErr)

	_, err := repo.Get(context.Background(), 1)
	if !errors.Is(err, common.ErrStoreUnavailable) {
		t.Fatalf("expected common.ErrStoreUnavailable, got %v", err)
	}
	if !errors.Is(err, connErr) {
		t.Fatalf("expected wrapped driver error, got %v", err)
	}

	mock.ExpectExec(`UPDATE\s+instances\s+SET\s+status`).
		WithArgs(int64(1), "OFF").
		WillReturnError(connErr)

	if err := repo.UpdateStatus(context.Background(), 1, models.StatusOff); !errors.Is(err, common.ErrStoreUnavailable) {
		t.Fatalf("expected common.ErrStoreUnavailable, got %v", err)
	}
}

func TestDelete_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`DELETE\s+FROM\s+instances\s+WHERE\s+id\s*=\s*\$1`).
		WithArgs(int64(404)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), 404)
	if !errors.Is(err, common.ErrInstanceNotFound) {
		t.Fatalf("expected common.ErrInstanceNotFound, got %v", err)
	}
}
