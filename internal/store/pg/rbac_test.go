package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"dipdive.org/internal/rbac"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(db), mock
}

func accountRows(id, email string) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{
		"id", "first_name", "last_name", "email", "password_hash",
		"license_number", "active", "created_at", "updated_at", "deleted_at",
	}).AddRow(id, "Ada", "Diver", email, "hash", nil, true, now, now, nil)
}

func TestCreateAccountUniqueViolation(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("insert into accounts").
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	_, err := s.CreateAccount(context.Background(), rbac.Account{
		FirstName: "Ada", LastName: "Diver", Email: "ada@dipdive.local", Active: true,
	})
	if !errors.Is(err, rbac.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetAccountFiltersDeleted(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("select .* from accounts").
		WithArgs("acc-1").
		WillReturnRows(accountRows("acc-1", "ada@dipdive.local"))

	got, err := s.GetAccount(context.Background(), "acc-1")
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if got.Email != "ada@dipdive.local" {
		t.Fatalf("unexpected email: %s", got.Email)
	}

	mock.ExpectQuery("select .* from accounts").
		WithArgs("gone").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	if _, err := s.GetAccount(context.Background(), "gone"); !errors.Is(err, rbac.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetAccountMalformedIDReadsAsNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("select .* from accounts").
		WithArgs("not-a-uuid").
		WillReturnError(&pgconn.PgError{Code: pgErrInvalidTextRepresentation})

	if _, err := s.GetAccount(context.Background(), "not-a-uuid"); !errors.Is(err, rbac.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSetAccountActiveNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("update accounts set active").
		WithArgs("missing", false).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.SetAccountActive(context.Background(), "missing", false); !errors.Is(err, rbac.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSoftDeleteAccountCascades(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("update accounts set deleted_at").
		WithArgs("acc-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("delete from account_roles where account_id").
		WithArgs("acc-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("update account_roles set assigned_by = null").
		WithArgs("acc-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("update role_permissions set assigned_by = null").
		WithArgs("acc-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.SoftDeleteAccount(context.Background(), "acc-1"); err != nil {
		t.Fatalf("SoftDeleteAccount: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSoftDeleteRoleCascades(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("update roles set deleted_at").
		WithArgs("role-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("delete from account_roles where role_id").
		WithArgs("role-1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("delete from role_permissions where role_id").
		WithArgs("role-1").
		WillReturnResult(sqlmock.NewResult(0, 5))

	if err := s.SoftDeleteRole(context.Background(), "role-1"); err != nil {
		t.Fatalf("SoftDeleteRole: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInTxCommitsOnSuccess(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("update accounts set active").
		WithArgs("acc-1", true).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.InTx(context.Background(), func(st rbac.Store) error {
		return st.SetAccountActive(context.Background(), "acc-1", true)
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInTxRollsBackOnError(t *testing.T) {
	s, mock := newMockStore(t)

	boom := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectRollback()

	err := s.InTx(context.Background(), func(rbac.Store) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInTxNestedReusesTransaction(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("update roles set active").
		WithArgs("role-1", false).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.InTx(context.Background(), func(st rbac.Store) error {
		return st.InTx(context.Background(), func(inner rbac.Store) error {
			return inner.SetRoleActive(context.Background(), "role-1", false)
		})
	})
	if err != nil {
		t.Fatalf("nested InTx: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateAccountRoleForeignKeyViolation(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("insert into account_roles").
		WillReturnError(&pgconn.PgError{Code: pgErrForeignKeyViolation})

	_, err := s.CreateAccountRole(context.Background(), rbac.AccountRole{
		AccountID: "acc-1", RoleID: "gone", Active: true,
	})
	if !errors.Is(err, rbac.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
