package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usagebilling/core/internal/logger"
)

func TestSubscriptionLockRepository_TryAcquire(t *testing.T) {
	now := time.Now().UTC()
	expiresAt := now.Add(30 * time.Second)

	t.Run("acquired", func(t *testing.T) {
		db, mock := newMockRepoDB(t)
		repo := NewSubscriptionLockRepository(db, logger.NewNop())

		mock.ExpectQuery("INSERT INTO subscription_locks").
			WillReturnRows(sqlmock.NewRows([]string{"owner_token"}).AddRow("holder-1"))

		ok, err := repo.TryAcquire(context.Background(), "proj_1", "sub_1", "holder-1", now, expiresAt)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("contested, no row returned", func(t *testing.T) {
		db, mock := newMockRepoDB(t)
		repo := NewSubscriptionLockRepository(db, logger.NewNop())

		mock.ExpectQuery("INSERT INTO subscription_locks").
			WillReturnRows(sqlmock.NewRows([]string{"owner_token"}))

		ok, err := repo.TryAcquire(context.Background(), "proj_1", "sub_1", "holder-2", now, expiresAt)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestSubscriptionLockRepository_TryExtend(t *testing.T) {
	now := time.Now().UTC()
	expiresAt := now.Add(30 * time.Second)

	t.Run("still held by owner", func(t *testing.T) {
		db, mock := newMockRepoDB(t)
		repo := NewSubscriptionLockRepository(db, logger.NewNop())

		mock.ExpectExec("UPDATE subscription_locks SET expires_at").
			WillReturnResult(sqlmock.NewResult(0, 1))

		ok, err := repo.TryExtend(context.Background(), "proj_1", "sub_1", "holder-1", now, expiresAt)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("lock expired or owned elsewhere", func(t *testing.T) {
		db, mock := newMockRepoDB(t)
		repo := NewSubscriptionLockRepository(db, logger.NewNop())

		mock.ExpectExec("UPDATE subscription_locks SET expires_at").
			WillReturnResult(sqlmock.NewResult(0, 0))

		ok, err := repo.TryExtend(context.Background(), "proj_1", "sub_1", "holder-1", now, expiresAt)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestSubscriptionLockRepository_Release(t *testing.T) {
	db, mock := newMockRepoDB(t)
	repo := NewSubscriptionLockRepository(db, logger.NewNop())

	mock.ExpectExec("DELETE FROM subscription_locks").WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Release(context.Background(), "proj_1", "sub_1")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
