package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usagebilling/core/internal/domain/customer"
	"github.com/usagebilling/core/internal/ierr"
	"github.com/usagebilling/core/internal/logger"
	"github.com/usagebilling/core/internal/postgres"
	"github.com/usagebilling/core/internal/types"
)

func newMockRepoDB(t *testing.T) (*postgres.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return postgres.WrapDB(sqlx.NewDb(sqlDB, "postgres"), logger.NewNop()), mock
}

func TestCustomerRepository_Create(t *testing.T) {
	db, mock := newMockRepoDB(t)
	repo := NewCustomerRepository(db, logger.NewNop())

	c := &customer.Customer{
		ID:         "cust_1",
		ExternalID: "ext_1",
		Name:       "Acme",
		Email:      "billing@acme.test",
		BaseModel: types.BaseModel{
			Status:    types.StatusActive,
			CreatedAt: time.Now().UTC(),
			UpdatedAt: time.Now().UTC(),
		},
	}

	mock.ExpectExec("INSERT INTO customers").WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Create(context.Background(), c)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCustomerRepository_Get(t *testing.T) {
	db, mock := newMockRepoDB(t)
	repo := NewCustomerRepository(db, logger.NewNop())

	cols := []string{"id", "external_id", "name", "email", "status", "created_at", "updated_at", "created_by", "updated_by"}
	now := time.Now().UTC()

	t.Run("found", func(t *testing.T) {
		mock.ExpectQuery("SELECT \\* FROM customers WHERE id = ").
			WillReturnRows(sqlmock.NewRows(cols).AddRow("cust_1", "ext_1", "Acme", "billing@acme.test", "active", now, now, "", ""))

		got, err := repo.Get(context.Background(), "cust_1")
		require.NoError(t, err)
		assert.Equal(t, "cust_1", got.ID)
		assert.Equal(t, "Acme", got.Name)
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT \\* FROM customers WHERE id = ").
			WillReturnRows(sqlmock.NewRows(cols))

		_, err := repo.Get(context.Background(), "missing")
		require.Error(t, err)
		assert.True(t, ierr.IsNotFound(err))
	})
}

func TestCustomerRepository_Update(t *testing.T) {
	db, mock := newMockRepoDB(t)
	repo := NewCustomerRepository(db, logger.NewNop())

	mock.ExpectExec("UPDATE customers SET").WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Update(context.Background(), &customer.Customer{ID: "cust_1", Name: "Acme Renamed"})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCustomerRepository_Delete(t *testing.T) {
	db, mock := newMockRepoDB(t)
	repo := NewCustomerRepository(db, logger.NewNop())

	mock.ExpectExec("UPDATE customers SET status = ").WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Delete(context.Background(), "cust_1")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
