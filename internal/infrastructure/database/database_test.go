package database

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"jv-billing-backend/internal/domain"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_SQLiteMigrates(t *testing.T) {
	db, err := Open("sqlite::memory:")
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))
	assert.True(t, IsSQLite(db))
	assert.True(t, db.Migrator().HasTable(&domain.JointInterestBilling{}))
	assert.True(t, db.Migrator().HasTable(&domain.CashCallResponse{}))
}

func TestIsUniqueViolation(t *testing.T) {
	db, err := Open("sqlite::memory:")
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))

	seq := domain.CodeSequence{Scope: "JIB", Period: "2025-03", LastValue: 1}
	require.NoError(t, db.Create(&seq).Error)
	dup := domain.CodeSequence{Scope: "JIB", Period: "2025-03", LastValue: 2}
	err = db.Create(&dup).Error
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))

	assert.True(t, IsUniqueViolation(fmt.Errorf("wrap: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, IsUniqueViolation(errors.New("other")))
	assert.False(t, IsUniqueViolation(nil))
}

func TestWithRetry_RetriesTransientOnly(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), 3, func() error {
		calls++
		if calls < 3 {
			return &pgconn.PgError{Code: "40001"}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = WithRetry(context.Background(), 3, func() error {
		calls++
		return domain.ErrJIBLocked
	})
	assert.ErrorIs(t, err, domain.ErrJIBLocked)
	assert.Equal(t, 1, calls)

	calls = 0
	err = WithRetry(context.Background(), 2, func() error {
		calls++
		return errors.New("database is locked")
	})
	assert.Error(t, err)
	assert.Equal(t, 2, calls)
}
